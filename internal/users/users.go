// Package users administers accounts. Only managers and admins may call it;
// managers are confined to their own department.
package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dharsanguruparan/filevault/internal/auth"
	"github.com/dharsanguruparan/filevault/internal/model"
	"github.com/dharsanguruparan/filevault/internal/repository"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrForbidden  = errors.New("not permitted")
	ErrInvalid    = errors.New("invalid request")
	ErrEmailTaken = errors.New("email already registered")
)

// NewUser is a create request. Role defaults to USER; DepartmentID defaults
// to the creator's department and is ignored for managers.
type NewUser struct {
	Email        string
	Password     string
	Role         string
	DepartmentID *int64
}

// Forgetter drops cached identities after a role change.
type Forgetter interface {
	Forget(id int64)
}

// Service implements user administration.
type Service struct {
	users  repository.UserRepository
	depts  repository.DepartmentRepository
	cache  Forgetter
	logger *slog.Logger
}

// NewService wires a Service. cache may be nil.
func NewService(users repository.UserRepository, depts repository.DepartmentRepository, cache Forgetter, logger *slog.Logger) *Service {
	return &Service{users: users, depts: depts, cache: cache, logger: logger}
}

func requireElevated(actor model.Actor) error {
	if !actor.Role.Elevated() {
		return fmt.Errorf("%w: requires MANAGER or ADMIN", ErrForbidden)
	}
	return nil
}

// Create adds a user.
func (s *Service) Create(ctx context.Context, actor model.Actor, in NewUser) (*model.User, error) {
	if err := requireElevated(actor); err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalid)
	}

	role := model.RoleUser
	if in.Role != "" {
		r, ok := model.ParseRole(in.Role)
		if !ok {
			return nil, fmt.Errorf("%w: invalid role %q", ErrInvalid, in.Role)
		}
		role = r
	}

	deptID := actor.DepartmentID
	if actor.Role == model.RoleAdmin {
		if in.DepartmentID != nil {
			deptID = *in.DepartmentID
		}
		if _, err := s.depts.GetByID(ctx, deptID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: department %d does not exist", ErrInvalid, deptID)
			}
			return nil, fmt.Errorf("load department: %w", err)
		}
	} else if role == model.RoleAdmin {
		return nil, fmt.Errorf("%w: managers may only create USER or MANAGER", ErrForbidden)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u := &model.User{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		DepartmentID: deptID,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("user created", "user_id", u.ID, "role", u.Role, "department_id", u.DepartmentID, "by", actor.ID)
	return u, nil
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, actor model.Actor, id int64) (*model.User, error) {
	if err := requireElevated(actor); err != nil {
		return nil, err
	}
	u, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == model.RoleManager && u.DepartmentID != actor.DepartmentID {
		return nil, fmt.Errorf("%w: user is in another department", ErrForbidden)
	}
	return u, nil
}

// ChangeRole sets a user's role.
func (s *Service) ChangeRole(ctx context.Context, actor model.Actor, id int64, role string) (*model.User, error) {
	if err := requireElevated(actor); err != nil {
		return nil, err
	}
	newRole, ok := model.ParseRole(role)
	if !ok {
		return nil, fmt.Errorf("%w: invalid role %q", ErrInvalid, role)
	}
	u, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == model.RoleManager {
		switch {
		case u.DepartmentID != actor.DepartmentID:
			return nil, fmt.Errorf("%w: user is in another department", ErrForbidden)
		case newRole == model.RoleAdmin:
			return nil, fmt.Errorf("%w: managers cannot assign ADMIN", ErrForbidden)
		case u.Role == model.RoleAdmin:
			return nil, fmt.Errorf("%w: managers cannot modify an ADMIN", ErrForbidden)
		}
	}

	if err := s.users.UpdateRole(ctx, id, newRole); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update role: %w", err)
	}
	if s.cache != nil {
		s.cache.Forget(id)
	}
	s.logger.Info("user role changed", "user_id", id, "from", u.Role, "to", newRole, "by", actor.ID)
	u.Role = newRole
	return u, nil
}

// List returns users ordered by id. Managers always see their own department.
func (s *Service) List(ctx context.Context, actor model.Actor, departmentID *int64) ([]*model.User, error) {
	if err := requireElevated(actor); err != nil {
		return nil, err
	}
	if actor.Role == model.RoleManager {
		own := actor.DepartmentID
		departmentID = &own
	}
	out, err := s.users.List(ctx, departmentID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, id int64) (*model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", id, err)
	}
	return u, nil
}
