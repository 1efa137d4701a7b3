// Package repository persists files, users, and departments. Postgres
// implementations back production; the memory implementations back local
// runs and tests and honor the same atomicity guarantees.
package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dharsanguruparan/filevault/internal/access"
	"github.com/dharsanguruparan/filevault/internal/lifecycle"
	"github.com/dharsanguruparan/filevault/internal/model"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a unique constraint would be violated.
	ErrConflict = errors.New("record already exists")
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Filter narrows a file listing beyond the access predicate. Nil fields do
// not filter.
type Filter struct {
	// Filename matches a case-insensitive substring of the original name.
	Filename     *string
	Extension    *string
	Visibility   *model.Visibility
	OwnerID      *int64
	DepartmentID *int64
	Limit        int
	Offset       int
}

// normalized clamps paging and lower-cases the extension.
func (f Filter) normalized() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Extension != nil {
		ext := strings.ToLower(strings.TrimLeft(*f.Extension, "."))
		f.Extension = &ext
	}
	return f
}

// Matches evaluates the filter against one record, ignoring paging.
func (f Filter) Matches(rec *model.FileRecord) bool {
	f = f.normalized()
	if f.Filename != nil && *f.Filename != "" && !strings.Contains(strings.ToLower(rec.FilenameOriginal), strings.ToLower(*f.Filename)) {
		return false
	}
	if f.Extension != nil && *f.Extension != "" && rec.Extension != *f.Extension {
		return false
	}
	if f.Visibility != nil && rec.Visibility != *f.Visibility {
		return false
	}
	if f.OwnerID != nil && rec.OwnerID != *f.OwnerID {
		return false
	}
	if f.DepartmentID != nil && rec.DepartmentID != *f.DepartmentID {
		return false
	}
	return true
}

// FileRepository stores file records.
type FileRepository interface {
	// Insert stores rec as PENDING with empty metadata and assigns its ID.
	Insert(ctx context.Context, rec *model.FileRecord) error
	GetByID(ctx context.Context, id int64) (*model.FileRecord, error)
	// Finish commits a terminal outcome atomically, only from PENDING.
	Finish(ctx context.Context, id int64, outcome lifecycle.Outcome) error
	// IncrementDownloads atomically adds one and returns the new count.
	IncrementDownloads(ctx context.Context, id int64) (int64, error)
	// Query lists records matching pred and filter, newest first.
	Query(ctx context.Context, pred access.Predicate, filter Filter) ([]*model.FileRecord, error)
	Delete(ctx context.Context, id int64) error
}

// UserRepository stores user accounts.
type UserRepository interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateRole(ctx context.Context, id int64, role model.Role) error
	// List returns users ordered by id, optionally in one department.
	List(ctx context.Context, departmentID *int64) ([]*model.User, error)
}

// DepartmentRepository stores departments.
type DepartmentRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Department, error)
	// Ensure returns the department called name, creating it if needed.
	Ensure(ctx context.Context, name string) (*model.Department, error)
}

// DBTX is the subset of pgxpool.Pool and pgx.Tx the repositories use.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// isUniqueViolation reports a Postgres unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
