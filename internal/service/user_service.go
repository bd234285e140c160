package service

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"bank-ledger/internal/domain"
	"bank-ledger/internal/errors"
	"bank-ledger/internal/repository"
)

const (
	minUserNameLength = 3
	minPasswordLength = 6
)

type UserService struct {
	store    repository.Store
	logger   *slog.Logger
	hashCost int
}

func NewUserService(store repository.Store, logger *slog.Logger) *UserService {
	return &UserService{
		store:    store,
		logger:   logger,
		hashCost: bcrypt.DefaultCost,
	}
}

type CreateUserRequest struct {
	ID       string
	UserName string
	Password string
	Role     domain.Role
	Email    string
	Phone    string
	// IsActive defaults to true when nil.
	IsActive *bool
}

// UpdateUserRequest is a partial patch; nil fields are left unchanged.
type UpdateUserRequest struct {
	UserName *string
	Password *string
	Role     *domain.Role
	Email    *string
	Phone    *string
	IsActive *bool
}

func (s *UserService) ListUsers(ctx context.Context) ([]*domain.User, error) {
	return s.store.Users().ListUsers(ctx)
}

func (s *UserService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return s.store.Users().GetUser(ctx, id)
}

func (s *UserService) CreateUser(ctx context.Context, req *CreateUserRequest) (*domain.User, error) {
	user := &domain.User{
		ID:       req.ID,
		UserName: strings.TrimSpace(req.UserName),
		Role:     req.Role,
		IsActive: true,
		Email:    strings.TrimSpace(req.Email),
		Phone:    strings.TrimSpace(req.Phone),
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}

	if err := validateUser(user); err != nil {
		return nil, err
	}
	hash, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = hash

	if err := s.store.Users().CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("User created", "user_id", user.ID, "user_name", user.UserName, "role", user.Role)
	return user, nil
}

func (s *UserService) UpdateUser(ctx context.Context, id string, req *UpdateUserRequest) (*domain.User, error) {
	user, err := s.store.Users().GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.UserName != nil {
		user.UserName = strings.TrimSpace(*req.UserName)
	}
	if req.Email != nil {
		user.Email = strings.TrimSpace(*req.Email)
	}
	if req.Phone != nil {
		user.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Role != nil {
		user.Role = *req.Role
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}
	if err := validateUser(user); err != nil {
		return nil, err
	}

	if req.Password != nil {
		hash, err := s.hashPassword(*req.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}

	if err := s.store.Users().UpdateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("User updated", "user_id", user.ID)
	return user, nil
}

func (s *UserService) DeleteUser(ctx context.Context, id string) (bool, error) {
	removed, err := s.store.Users().DeleteUser(ctx, id)
	if err != nil {
		return false, err
	}
	s.logger.Info("User delete requested", "user_id", id, "removed", removed)
	return removed, nil
}

func (s *UserService) ToggleUserStatus(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.store.Users().GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	user.IsActive = !user.IsActive
	if err := s.store.Users().UpdateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("User status toggled", "user_id", id, "is_active", user.IsActive)
	return user, nil
}

// UsernameExists reports whether another user holds userName. excludeID lets
// an edit form ignore the user being edited.
func (s *UserService) UsernameExists(ctx context.Context, userName, excludeID string) (bool, error) {
	return s.exists(ctx, excludeID, func(u *domain.User) bool {
		return strings.EqualFold(u.UserName, strings.TrimSpace(userName))
	})
}

func (s *UserService) EmailExists(ctx context.Context, email, excludeID string) (bool, error) {
	return s.exists(ctx, excludeID, func(u *domain.User) bool {
		return strings.EqualFold(u.Email, strings.TrimSpace(email))
	})
}

func (s *UserService) exists(ctx context.Context, excludeID string, match func(*domain.User) bool) (bool, error) {
	users, err := s.store.Users().ListUsers(ctx)
	if err != nil {
		return false, err
	}
	for _, u := range users {
		if u.ID != excludeID && match(u) {
			return true, nil
		}
	}
	return false, nil
}

// UserStats is the admin summary of the directory.
type UserStats struct {
	Total  int `json:"total"`
	Active int `json:"active"`
	Admins int `json:"admins"`
}

func (s *UserService) Stats(ctx context.Context) (*UserStats, error) {
	users, err := s.store.Users().ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	stats := &UserStats{Total: len(users)}
	for _, u := range users {
		if u.IsActive {
			stats.Active++
		}
		if u.Role == domain.RoleAdmin {
			stats.Admins++
		}
	}
	return stats, nil
}

// Authenticate checks a username and password. Unknown users, wrong passwords
// and inactive users all fail the same way.
func (s *UserService) Authenticate(ctx context.Context, userName, password string) (*domain.User, error) {
	user, err := s.store.Users().GetUserByUserName(ctx, strings.TrimSpace(userName))
	if err != nil {
		if errors.As(err).Code == errors.UserNotFound {
			return nil, errors.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(strings.TrimSpace(password))); err != nil {
		s.logger.Warn("Authentication failed", "user_name", userName)
		return nil, errors.ErrInvalidCredentials
	}
	if !user.IsActive {
		s.logger.Warn("Inactive user attempted login", "user_id", user.ID)
		return nil, errors.ErrInvalidCredentials
	}

	return user, nil
}

func (s *UserService) hashPassword(password string) (string, error) {
	password = strings.TrimSpace(password)
	if len(password) < minPasswordLength {
		return "", errors.NewAppErrorf(errors.InvalidInput, "password must be at least %d characters", minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", errors.Wrap(errors.InternalError, "failed to hash password", err)
	}
	return string(hash), nil
}

func validateUser(user *domain.User) error {
	if len(user.UserName) < minUserNameLength {
		return errors.NewAppErrorf(errors.InvalidInput, "username must be at least %d characters", minUserNameLength)
	}
	if !strings.Contains(user.Email, "@") {
		return errors.NewAppError(errors.InvalidInput, "email must be a valid address")
	}
	if !user.Role.Valid() {
		return errors.NewAppErrorf(errors.InvalidInput, "role must be %s or %s", domain.RoleUser, domain.RoleAdmin)
	}
	return nil
}
