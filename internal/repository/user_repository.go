package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"bank-ledger/internal/domain"
	"bank-ledger/internal/errors"
)

const userColumns = `id, user_name, password_hash, role, is_active, email, phone, created_at, updated_at`

type userRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewUserRepository(db SQLExecutor, logger *slog.Logger) domain.UserRepository {
	return &userRepository{
		db:     db,
		logger: logger,
	}
}

func (r *userRepository) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, user_name, password_hash, role, is_active, email, phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.UserName, user.PasswordHash, string(user.Role), user.IsActive,
		user.Email, user.Phone, now, now)
	if err != nil {
		if dupErr := userConflict(err); dupErr != nil {
			return dupErr
		}
		r.logger.Error("Failed to create user", "user_id", user.ID, "error", err)
		return storeError("create user", err)
	}

	user.CreatedAt = now
	user.UpdatedAt = now
	r.logger.Info("User created", "user_id", user.ID)
	return nil
}

func (r *userRepository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *userRepository) GetUserByUserName(ctx context.Context, userName string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(user_name) = LOWER($1)`
	return r.getOne(ctx, query, userName)
}

func (r *userRepository) ListUsers(ctx context.Context) ([]*domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY seq`)
	if err != nil {
		return nil, storeError("list users", err)
	}
	defer rows.Close()

	users := make([]*domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, storeError("scan user", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list users", err)
	}
	return users, nil
}

func (r *userRepository) UpdateUser(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET user_name = $1, password_hash = $2, role = $3, is_active = $4, email = $5, phone = $6, updated_at = $7
		WHERE id = $8
	`

	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, query,
		user.UserName, user.PasswordHash, string(user.Role), user.IsActive,
		user.Email, user.Phone, now, user.ID)
	if err != nil {
		if dupErr := userConflict(err); dupErr != nil {
			return dupErr
		}
		r.logger.Error("Failed to update user", "user_id", user.ID, "error", err)
		return storeError("update user", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storeError("get rows affected", err)
	}
	if rowsAffected == 0 {
		return errors.ErrUserNotFound
	}

	user.UpdatedAt = now
	return nil
}

func (r *userRepository) DeleteUser(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, storeError("delete user", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, storeError("get rows affected", err)
	}
	return rowsAffected > 0, nil
}

func (r *userRepository) getOne(ctx context.Context, query string, arg string) (*domain.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, errors.ErrUserNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get user", "user", arg, "error", err)
		return nil, storeError("get user", err)
	}
	return user, nil
}

func scanUser(row rowScanner) (*domain.User, error) {
	var user domain.User
	var role string

	if err := row.Scan(
		&user.ID,
		&user.UserName,
		&user.PasswordHash,
		&role,
		&user.IsActive,
		&user.Email,
		&user.Phone,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}

	user.Role = domain.Role(role)
	return &user, nil
}

func userConflict(err error) error {
	constraint, ok := uniqueViolation(err)
	if !ok {
		return nil
	}
	if constraint == "idx_users_email" {
		return errors.ErrDuplicateEmail
	}
	return errors.ErrDuplicateUsername
}
