package catalog

import (
	"errors"
	"fmt"

	"github.com/dharsanguruparan/filevault/internal/access"
	"github.com/dharsanguruparan/filevault/internal/admission"
	"github.com/dharsanguruparan/filevault/internal/repository"
)

var (
	// ErrNotFound is returned when the file does not exist.
	ErrNotFound = errors.New("file not found")
	// ErrUnavailable is matched by every StorageError.
	ErrUnavailable = errors.New("object storage unavailable")
)

// StorageError wraps an object store failure.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrUnavailable }

// Outcome is the result tag of a catalog operation.
type Outcome int

const (
	Success Outcome = iota
	NotFound
	Forbidden
	Rejected
	Unavailable
	Internal
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case NotFound:
		return "not_found"
	case Forbidden:
		return "forbidden"
	case Rejected:
		return "rejected"
	case Unavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Classify maps an error returned by the catalog to its Outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, ErrNotFound), errors.Is(err, repository.ErrNotFound):
		return NotFound
	case errors.Is(err, access.ErrDenied):
		return Forbidden
	case errors.Is(err, admission.ErrRejected):
		return Rejected
	case errors.Is(err, ErrUnavailable):
		return Unavailable
	default:
		return Internal
	}
}
