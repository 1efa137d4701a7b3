package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dharsanguruparan/filevault/internal/model"
)

const userColumns = `id, email, password_hash, role, is_active, department_id, created_at`

// UserStore is the Postgres UserRepository.
type UserStore struct {
	db DBTX
}

// NewUserStore constructs a UserStore.
func NewUserStore(db DBTX) *UserStore {
	return &UserStore{db: db}
}

func (r *UserStore) Create(ctx context.Context, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.CreatedAt = time.Now().UTC()
	err := r.db.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, role, is_active, department_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`, u.Email, u.PasswordHash, string(u.Role), u.Active, u.DepartmentID, u.CreatedAt).Scan(&u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert user %s: %w", u.Email, ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)))
}

func (r *UserStore) UpdateRole(ctx context.Context, id int64, role model.Role) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET role = $1 WHERE id = $2`, string(role), id)
	if err != nil {
		return fmt.Errorf("update user role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserStore) List(ctx context.Context, departmentID *int64) ([]*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if departmentID != nil {
		query += ` WHERE department_id = $1`
		args = append(args, *departmentID)
	}
	query += ` ORDER BY id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var out []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *UserStore) getOne(ctx context.Context, query string, arg any) (*model.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.Active, &u.DepartmentID, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// DepartmentStore is the Postgres DepartmentRepository.
type DepartmentStore struct {
	db DBTX
}

// NewDepartmentStore constructs a DepartmentStore.
func NewDepartmentStore(db DBTX) *DepartmentStore {
	return &DepartmentStore{db: db}
}

func (r *DepartmentStore) GetByID(ctx context.Context, id int64) (*model.Department, error) {
	var d model.Department
	err := r.db.QueryRow(ctx, `SELECT id, name FROM departments WHERE id = $1`, id).Scan(&d.ID, &d.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select department: %w", err)
	}
	return &d, nil
}

func (r *DepartmentStore) Ensure(ctx context.Context, name string) (*model.Department, error) {
	var d model.Department
	err := r.db.QueryRow(ctx, `
		INSERT INTO departments (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name
	`, name).Scan(&d.ID, &d.Name)
	if err != nil {
		return nil, fmt.Errorf("ensure department %q: %w", name, err)
	}
	return &d, nil
}
