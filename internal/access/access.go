// Package access decides whether an actor may read or delete a file.
//
// Reading is governed by visibility: elevated roles (MANAGER, ADMIN) read
// everything, everyone else reads files they own, PUBLIC files, and
// DEPARTMENT files of their own department. Deletion is narrower and is
// governed by role and ownership only.
//
// The per-record check and the list predicate share one definition
// (Predicate.Matches), so what a caller can fetch by id is exactly what a
// listing returns.
package access

import (
	"errors"
	"fmt"

	"github.com/dharsanguruparan/filevault/internal/model"
)

// ErrDenied is matched by every DeniedError via errors.Is.
var ErrDenied = errors.New("access denied")

// Reason explains a refusal to the caller.
type Reason string

const (
	ReasonNotVisible      Reason = "file is not visible to you"
	ReasonOtherDepartment Reason = "file belongs to another department"
	ReasonNotOwner        Reason = "only the owner can delete this file"
	ReasonUnknownRole     Reason = "role is not permitted"
)

// DeniedError is a policy refusal. It is surfaced, never retried.
type DeniedError struct {
	Op     string
	Reason Reason
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s denied: %s", e.Op, e.Reason)
}

// Is lets errors.Is(err, ErrDenied) match.
func (e *DeniedError) Is(target error) bool {
	return target == ErrDenied
}

// Predicate is the read filter for one actor. The zero value matches nothing
// except files owned by user 0, so always build one with ListPredicate.
type Predicate struct {
	// All is set for elevated actors; no restriction applies.
	All          bool
	OwnerID      int64
	DepartmentID int64
}

// ListPredicate returns the read filter for actor.
func ListPredicate(actor model.Actor) Predicate {
	if actor.Role.Elevated() {
		return Predicate{All: true}
	}
	return Predicate{OwnerID: actor.ID, DepartmentID: actor.DepartmentID}
}

// Matches evaluates the predicate against a single record.
func (p Predicate) Matches(f *model.FileRecord) bool {
	if p.All {
		return true
	}
	return f.OwnerID == p.OwnerID ||
		f.Visibility == model.VisibilityPublic ||
		(f.Visibility == model.VisibilityDepartment && f.DepartmentID == p.DepartmentID)
}

// SQL renders the predicate as a parenthesized boolean expression over the
// files table, numbering placeholders from next. An unrestricted predicate
// renders as the empty string.
func (p Predicate) SQL(next int) (string, []any) {
	if p.All {
		return "", nil
	}
	clause := fmt.Sprintf(
		"(owner_id = $%d OR visibility = $%d OR (visibility = $%d AND department_id = $%d))",
		next, next+1, next+2, next+3,
	)
	args := []any{
		p.OwnerID,
		string(model.VisibilityPublic),
		string(model.VisibilityDepartment),
		p.DepartmentID,
	}
	return clause, args
}

// CanRead reports whether actor may see file.
func CanRead(actor model.Actor, f *model.FileRecord) bool {
	return ListPredicate(actor).Matches(f)
}

// AuthorizeRead is CanRead returning a DeniedError on refusal.
func AuthorizeRead(actor model.Actor, f *model.FileRecord) error {
	if CanRead(actor, f) {
		return nil
	}
	return &DeniedError{Op: "read", Reason: ReasonNotVisible}
}

// CanDelete returns nil when actor may delete file, or a DeniedError naming
// why not. ADMIN deletes anything, MANAGER deletes within their department,
// USER deletes only their own files.
func CanDelete(actor model.Actor, f *model.FileRecord) error {
	switch actor.Role {
	case model.RoleAdmin:
		return nil
	case model.RoleManager:
		if f.DepartmentID != actor.DepartmentID {
			return &DeniedError{Op: "delete", Reason: ReasonOtherDepartment}
		}
		return nil
	case model.RoleUser:
		if f.OwnerID != actor.ID {
			return &DeniedError{Op: "delete", Reason: ReasonNotOwner}
		}
		return nil
	default:
		return &DeniedError{Op: "delete", Reason: ReasonUnknownRole}
	}
}

// ScopeDepartment resolves a requested department filter for a listing.
// Elevated actors get what they asked for; everyone else asking for a
// department other than their own is silently scoped to their own.
func ScopeDepartment(actor model.Actor, requested *int64) *int64 {
	if requested == nil || actor.Role.Elevated() {
		return requested
	}
	if *requested != actor.DepartmentID {
		own := actor.DepartmentID
		return &own
	}
	return requested
}
