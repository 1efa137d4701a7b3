// Package lifecycle defines the legal status transitions of a file record.
//
//	PENDING -> READY   extraction succeeded, metadata attached
//	PENDING -> FAILED  extraction raised any error
//
// READY and FAILED are terminal.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/dharsanguruparan/filevault/internal/model"
)

// ErrInvalidTransition is matched by every TransitionError via errors.Is.
var ErrInvalidTransition = errors.New("invalid status transition")

// TransitionError reports a transition that the table does not allow.
type TransitionError struct {
	From model.FileStatus
	To   model.FileStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// validTransitions maps each status to the statuses it may move to.
var validTransitions = map[model.FileStatus]map[model.FileStatus]bool{
	model.StatusPending: {model.StatusReady: true, model.StatusFailed: true},
	model.StatusReady:   {},
	model.StatusFailed:  {},
}

// Initial is the status every new record starts in.
func Initial() model.FileStatus {
	return model.StatusPending
}

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to model.FileStatus) bool {
	return validTransitions[from][to]
}

// Check returns a TransitionError when from -> to is illegal.
func Check(from, to model.FileStatus) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// IsTerminal reports whether no further transition can leave s.
func IsTerminal(s model.FileStatus) bool {
	next, ok := validTransitions[s]
	return ok && len(next) == 0
}

// Outcome is the terminal write an extraction job commits.
type Outcome struct {
	Status model.FileStatus
	// Metadata is replaced only on success; nil leaves it untouched.
	Metadata model.Metadata
}

// Succeeded is the READY outcome carrying metadata.
func Succeeded(meta model.Metadata) Outcome {
	if meta == nil {
		meta = model.Metadata{}
	}
	return Outcome{Status: model.StatusReady, Metadata: meta}
}

// Failed is the FAILED outcome. Metadata stays as it was.
func Failed() Outcome {
	return Outcome{Status: model.StatusFailed}
}

// Apply commits outcome to rec in place, enforcing the transition table.
// Repositories call it inside whatever atomic section they use, so status
// and metadata change together or not at all.
func Apply(rec *model.FileRecord, outcome Outcome) error {
	if err := Check(rec.Status, outcome.Status); err != nil {
		return err
	}
	rec.Status = outcome.Status
	if outcome.Metadata != nil {
		rec.Metadata = outcome.Metadata.Clone()
	}
	return nil
}
