// Package admission validates a proposed upload against per-role limits
// before anything is written.
package admission

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dharsanguruparan/filevault/internal/model"
)

const mib = 1 << 20

// ErrRejected is matched by every RejectedError via errors.Is.
var ErrRejected = errors.New("upload rejected")

// Code identifies why an upload was rejected.
type Code string

const (
	CodeSizeExceeded         Code = "SIZE_EXCEEDED"
	CodeExtensionNotAllowed  Code = "EXTENSION_NOT_ALLOWED"
	CodeVisibilityNotAllowed Code = "VISIBILITY_NOT_ALLOWED"
	CodeContentMismatch      Code = "CONTENT_MISMATCH"
	CodeEmptyFile            Code = "EMPTY_FILE"
	CodeUnknownRole          Code = "UNKNOWN_ROLE"
)

// RejectedError carries the specific sub-reason of a rejection.
type RejectedError struct {
	Code Code
	Role model.Role
	// Limit is set for CodeSizeExceeded.
	Limit  int64
	Detail string
}

func (e *RejectedError) Error() string {
	switch e.Code {
	case CodeSizeExceeded:
		return fmt.Sprintf("max size %d MB for role %s", e.Limit/mib, e.Role)
	case CodeExtensionNotAllowed:
		return fmt.Sprintf("extension .%s not allowed for role %s", e.Detail, e.Role)
	case CodeVisibilityNotAllowed:
		return fmt.Sprintf("visibility %q not allowed for role %s", e.Detail, e.Role)
	case CodeContentMismatch:
		return "file content does not match its extension: " + e.Detail
	case CodeEmptyFile:
		return "empty file"
	default:
		return fmt.Sprintf("role %q cannot upload", e.Role)
	}
}

// Is lets errors.Is(err, ErrRejected) match.
func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// RoleLimits bounds what one role may upload.
type RoleLimits struct {
	MaxBytes     int64
	Extensions   []string
	Visibilities []model.Visibility
	// Forced, when set, replaces whatever visibility was requested.
	Forced model.Visibility
}

// Limits maps each role to its upload limits.
type Limits map[model.Role]RoleLimits

// DefaultLimits is the stock table: users upload small private PDFs, managers
// and admins upload Word documents too and choose their visibility.
func DefaultLimits() Limits {
	all := []model.Visibility{model.VisibilityPrivate, model.VisibilityDepartment, model.VisibilityPublic}
	return Limits{
		model.RoleUser: {
			MaxBytes:     10 * mib,
			Extensions:   []string{"pdf"},
			Visibilities: []model.Visibility{model.VisibilityPrivate},
			Forced:       model.VisibilityPrivate,
		},
		model.RoleManager: {
			MaxBytes:     50 * mib,
			Extensions:   []string{"pdf", "doc", "docx"},
			Visibilities: all,
		},
		model.RoleAdmin: {
			MaxBytes:     100 * mib,
			Extensions:   []string{"pdf", "doc", "docx"},
			Visibilities: all,
		},
	}
}

// Policy applies a Limits table.
type Policy struct {
	limits Limits
}

// NewPolicy builds a Policy over limits.
func NewPolicy(limits Limits) *Policy {
	return &Policy{limits: limits}
}

// Limit returns the limits for role.
func (p *Policy) Limit(role model.Role) (RoleLimits, bool) {
	l, ok := p.limits[role]
	return l, ok
}

// Admit validates an upload and returns the visibility the file must be
// stored with. Checks run in order: size, extension, visibility.
func (p *Policy) Admit(role model.Role, ext string, sizeBytes int64, requested string) (model.Visibility, error) {
	limits, ok := p.limits[role]
	if !ok {
		return "", &RejectedError{Code: CodeUnknownRole, Role: role}
	}
	if sizeBytes > limits.MaxBytes {
		return "", &RejectedError{Code: CodeSizeExceeded, Role: role, Limit: limits.MaxBytes}
	}
	ext = NormalizeExtension(ext)
	if !slices.Contains(limits.Extensions, ext) {
		return "", &RejectedError{Code: CodeExtensionNotAllowed, Role: role, Detail: ext}
	}
	if limits.Forced != "" {
		return limits.Forced, nil
	}
	vis, ok := model.ParseVisibility(requested)
	if !ok || !slices.Contains(limits.Visibilities, vis) {
		return "", &RejectedError{Code: CodeVisibilityNotAllowed, Role: role, Detail: requested}
	}
	return vis, nil
}

// NormalizeExtension lower-cases ext and strips leading dots.
func NormalizeExtension(ext string) string {
	return strings.ToLower(strings.TrimLeft(strings.TrimSpace(ext), "."))
}

// ExtensionOf returns the normalized extension of filename, or "" if it has none.
func ExtensionOf(filename string) string {
	return NormalizeExtension(filepath.Ext(filename))
}
