package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dharsanguruparan/filevault/internal/auth"
	"github.com/dharsanguruparan/filevault/internal/model"
	"github.com/dharsanguruparan/filevault/internal/repository"
)

// SeedDepartment is the department the demo accounts belong to.
const SeedDepartment = "IT"

// SeedAccount is a demo login created by Seed.
type SeedAccount struct {
	Email    string
	Password string
	Role     model.Role
}

// DefaultSeedAccounts returns one account per role.
func DefaultSeedAccounts() []SeedAccount {
	return []SeedAccount{
		{Email: "admin@example.com", Password: "admin123", Role: model.RoleAdmin},
		{Email: "manager@example.com", Password: "manager123", Role: model.RoleManager},
		{Email: "user@example.com", Password: "user123", Role: model.RoleUser},
	}
}

// Seed ensures the seed department and accounts exist. Existing accounts are
// left untouched, so it is safe to run repeatedly.
func Seed(ctx context.Context, users repository.UserRepository, depts repository.DepartmentRepository, accounts []SeedAccount, logger *slog.Logger) error {
	dept, err := depts.Ensure(ctx, SeedDepartment)
	if err != nil {
		return err
	}
	for _, a := range accounts {
		_, err := users.GetByEmail(ctx, a.Email)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("look up %s: %w", a.Email, err)
		}
		hash, err := auth.HashPassword(a.Password)
		if err != nil {
			return err
		}
		u := &model.User{
			Email:        a.Email,
			PasswordHash: hash,
			Role:         a.Role,
			Active:       true,
			DepartmentID: dept.ID,
		}
		if err := users.Create(ctx, u); err != nil && !errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("seed %s: %w", a.Email, err)
		}
		logger.Info("seeded user", "email", u.Email, "role", u.Role)
	}
	return nil
}
