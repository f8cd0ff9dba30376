package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/ec-storefront/internal/domain/user"
)

const userColumns = `id, email, password_hash, full_name, address, role, is_active, created_at, updated_at`

// PostgresUsers stores user accounts in PostgreSQL
type PostgresUsers struct {
	db *sql.DB
}

func NewPostgresUsers(db *sql.DB) *PostgresUsers {
	return &PostgresUsers{db: db}
}

func (r *PostgresUsers) CreateUser(ctx context.Context, u *user.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, u.ID, u.Email, u.PasswordHash, u.FullName, u.Address, u.Role, u.IsActive, u.CreatedAt, u.UpdatedAt)
	if pqCode(err) == pqUniqueViolation {
		return user.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *PostgresUsers) FindUserByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *PostgresUsers) FindUserByID(ctx context.Context, id string) (*user.User, error) {
	if !validID(id) {
		return nil, user.ErrUserNotFound
	}
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *PostgresUsers) UpdateUserAddress(ctx context.Context, id, address string) error {
	if !validID(id) {
		return user.ErrUserNotFound
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET address = $2, updated_at = NOW() WHERE id = $1`, id, address)
	if err != nil {
		return fmt.Errorf("update address: %w", err)
	}
	return requireRow(res, user.ErrUserNotFound)
}

func (r *PostgresUsers) findOne(ctx context.Context, query string, args ...any) (*user.User, error) {
	var u user.User
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Address, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, user.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}
