package repository

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"bank-ledger/internal/domain"
	"bank-ledger/internal/errors"
)

// Table models for the mysql backend. Seq is the physical insertion order.

type accountModel struct {
	Seq           int64           `gorm:"primaryKey;autoIncrement"`
	ID            string          `gorm:"type:varchar(64);uniqueIndex;not null"`
	AccountNumber string          `gorm:"type:varchar(64);uniqueIndex;not null"`
	AccountType   string          `gorm:"type:varchar(20);not null"`
	Balance       decimal.Decimal `gorm:"type:decimal(30,8);not null"`
	OwnerUserID   string          `gorm:"type:varchar(64);index;not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (accountModel) TableName() string { return "accounts" }

func (m *accountModel) toDomain() *domain.Account {
	return &domain.Account{
		ID:            m.ID,
		AccountNumber: m.AccountNumber,
		AccountType:   domain.AccountType(m.AccountType),
		Balance:       m.Balance,
		OwnerUserID:   m.OwnerUserID,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

type transactionModel struct {
	Seq               int64           `gorm:"primaryKey;autoIncrement"`
	ID                string          `gorm:"type:varchar(64);uniqueIndex;not null"`
	TransferID        string          `gorm:"type:varchar(64);index"`
	FromAccountNumber string          `gorm:"type:varchar(64);index;not null"`
	ToAccountNumber   string          `gorm:"type:varchar(64);index;not null"`
	Amount            decimal.Decimal `gorm:"type:decimal(30,8);not null"`
	Type              string          `gorm:"type:varchar(10);not null"`
	Date              time.Time       `gorm:"type:datetime(6);index;not null"`
	Description       string          `gorm:"type:varchar(512)"`
}

func (transactionModel) TableName() string { return "transactions" }

func (m *transactionModel) toDomain() *domain.Transaction {
	return &domain.Transaction{
		ID:                m.ID,
		TransferID:        m.TransferID,
		FromAccountNumber: m.FromAccountNumber,
		ToAccountNumber:   m.ToAccountNumber,
		Amount:            m.Amount,
		Type:              domain.TransactionType(m.Type),
		Date:              m.Date,
		Description:       m.Description,
	}
}

type userModel struct {
	Seq          int64  `gorm:"primaryKey;autoIncrement"`
	ID           string `gorm:"type:varchar(64);uniqueIndex;not null"`
	UserName     string `gorm:"type:varchar(128);uniqueIndex:idx_users_user_name;not null"`
	PasswordHash string `gorm:"type:varchar(255);not null"`
	Role         string `gorm:"type:varchar(20);not null"`
	IsActive     bool   `gorm:"not null"`
	Email        string `gorm:"type:varchar(255);uniqueIndex:idx_users_email;not null"`
	Phone        string `gorm:"type:varchar(32)"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (userModel) TableName() string { return "users" }

func (m *userModel) toDomain() *domain.User {
	return &domain.User{
		ID:           m.ID,
		UserName:     m.UserName,
		PasswordHash: m.PasswordHash,
		Role:         domain.Role(m.Role),
		IsActive:     m.IsActive,
		Email:        m.Email,
		Phone:        m.Phone,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// GormStore is the mysql backend.
type GormStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

// OpenMySQL connects through the gorm mysql driver and migrates the schema.
func OpenMySQL(dsn string, log *slog.Logger) (*GormStore, error) {
	// Scanning DATETIME into time.Time needs parseTime
	cfg, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	db, err := gorm.Open(mysql.Open(cfg.FormatDSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(25)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := db.AutoMigrate(&userModel{}, &accountModel{}, &transactionModel{}); err != nil {
		return nil, err
	}

	log.Info("Successfully connected to mysql")
	return NewGormStore(db, log), nil
}

func NewGormStore(db *gorm.DB, logger *slog.Logger) *GormStore {
	return &GormStore{db: db, logger: logger}
}

func (s *GormStore) Accounts() domain.AccountRepository {
	return &gormAccounts{db: s.db, logger: s.logger}
}

func (s *GormStore) Transactions() domain.TransactionRepository {
	return &gormTransactions{db: s.db, logger: s.logger}
}

func (s *GormStore) Users() domain.UserRepository {
	return &gormUsers{db: s.db, logger: s.logger}
}

func (s *GormStore) WithTransaction(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, logger: s.logger})
	})
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// accounts

type gormAccounts struct {
	db     *gorm.DB
	logger *slog.Logger
}

func (r *gormAccounts) CreateAccount(ctx context.Context, account *domain.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}

	model := &accountModel{
		ID:            account.ID,
		AccountNumber: account.AccountNumber,
		AccountType:   string(account.AccountType),
		Balance:       account.Balance,
		OwnerUserID:   account.OwnerUserID,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if _, ok := duplicateKey(err); ok {
			return errors.ErrDuplicateAccount
		}
		r.logger.Error("Failed to create account", "account_id", account.ID, "error", err)
		return storeError("create account", err)
	}

	account.CreatedAt = model.CreatedAt
	account.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *gormAccounts) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *gormAccounts) GetAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	return r.first(ctx, "account_number = ?", accountNumber)
}

func (r *gormAccounts) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	return r.find(r.db.WithContext(ctx))
}

func (r *gormAccounts) ListAccountsByOwner(ctx context.Context, userID string) ([]*domain.Account, error) {
	return r.find(r.db.WithContext(ctx).Where("owner_user_id = ?", userID))
}

func (r *gormAccounts) ApplyDelta(ctx context.Context, accountNumber string, delta decimal.Decimal) (*domain.Account, error) {
	result := r.db.WithContext(ctx).
		Model(&accountModel{}).
		Where("account_number = ? AND balance + CAST(? AS DECIMAL(30,8)) >= 0", accountNumber, delta.String()).
		Updates(map[string]interface{}{
			"balance":    gorm.Expr("balance + CAST(? AS DECIMAL(30,8))", delta.String()),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		r.logger.Error("Failed to update account balance", "account_number", accountNumber, "error", result.Error)
		return nil, storeError("update account balance", result.Error)
	}

	account, err := r.GetAccountByNumber(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 {
		return nil, errors.ErrInsufficientFunds
	}
	return account, nil
}

func (r *gormAccounts) first(ctx context.Context, query string, arg string) (*domain.Account, error) {
	var model accountModel
	if err := r.db.WithContext(ctx).Where(query, arg).First(&model).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrAccountNotFound
		}
		return nil, storeError("get account", err)
	}
	return model.toDomain(), nil
}

func (r *gormAccounts) find(q *gorm.DB) ([]*domain.Account, error) {
	var models []accountModel
	if err := q.Order("seq").Find(&models).Error; err != nil {
		return nil, storeError("list accounts", err)
	}

	out := make([]*domain.Account, len(models))
	for i := range models {
		out[i] = models[i].toDomain()
	}
	return out, nil
}

// transactions

type gormTransactions struct {
	db     *gorm.DB
	logger *slog.Logger
}

func (r *gormTransactions) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	prepareTransaction(tx)

	model := &transactionModel{
		ID:                tx.ID,
		TransferID:        tx.TransferID,
		FromAccountNumber: tx.FromAccountNumber,
		ToAccountNumber:   tx.ToAccountNumber,
		Amount:            tx.Amount,
		Type:              string(tx.Type),
		Date:              tx.Date,
		Description:       tx.Description,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		r.logger.Error("Failed to create transaction", "transaction_id", tx.ID, "error", err)
		return storeError("create transaction", err)
	}
	return nil
}

func (r *gormTransactions) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	var model transactionModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrTransactionNotFound
		}
		return nil, storeError("get transaction", err)
	}
	return model.toDomain(), nil
}

func (r *gormTransactions) ListTransactions(ctx context.Context) ([]*domain.Transaction, error) {
	return r.find(r.db.WithContext(ctx))
}

func (r *gormTransactions) ListTransactionsByAccountNumber(ctx context.Context, accountNumber string) ([]*domain.Transaction, error) {
	return r.find(r.db.WithContext(ctx).
		Where("from_account_number = ? OR to_account_number = ?", accountNumber, accountNumber))
}

func (r *gormTransactions) DeleteTransaction(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&transactionModel{})
	if result.Error != nil {
		return false, storeError("delete transaction", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *gormTransactions) find(q *gorm.DB) ([]*domain.Transaction, error) {
	var models []transactionModel
	if err := q.Order("date DESC").Order("seq DESC").Find(&models).Error; err != nil {
		return nil, storeError("list transactions", err)
	}

	out := make([]*domain.Transaction, len(models))
	for i := range models {
		out[i] = models[i].toDomain()
	}
	return out, nil
}

// users

type gormUsers struct {
	db     *gorm.DB
	logger *slog.Logger
}

func (r *gormUsers) CreateUser(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	model := userToModel(user)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return gormUserError("create user", err)
	}

	user.CreatedAt = model.CreatedAt
	user.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *gormUsers) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *gormUsers) GetUserByUserName(ctx context.Context, userName string) (*domain.User, error) {
	return r.first(ctx, "LOWER(user_name) = LOWER(?)", userName)
}

func (r *gormUsers) ListUsers(ctx context.Context) ([]*domain.User, error) {
	var models []userModel
	if err := r.db.WithContext(ctx).Order("seq").Find(&models).Error; err != nil {
		return nil, storeError("list users", err)
	}

	out := make([]*domain.User, len(models))
	for i := range models {
		out[i] = models[i].toDomain()
	}
	return out, nil
}

func (r *gormUsers) UpdateUser(ctx context.Context, user *domain.User) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&userModel{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"user_name":     user.UserName,
		"password_hash": user.PasswordHash,
		"role":          string(user.Role),
		"is_active":     user.IsActive,
		"email":         user.Email,
		"phone":         user.Phone,
		"updated_at":    now,
	})
	if result.Error != nil {
		return gormUserError("update user", result.Error)
	}
	if result.RowsAffected == 0 {
		// MySQL reports zero affected rows for no-op updates too
		if _, err := r.GetUser(ctx, user.ID); err != nil {
			return err
		}
	}

	user.UpdatedAt = now
	return nil
}

func (r *gormUsers) DeleteUser(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&userModel{})
	if result.Error != nil {
		return false, storeError("delete user", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *gormUsers) first(ctx context.Context, query string, arg string) (*domain.User, error) {
	var model userModel
	if err := r.db.WithContext(ctx).Where(query, arg).First(&model).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrUserNotFound
		}
		return nil, storeError("get user", err)
	}
	return model.toDomain(), nil
}

func userToModel(user *domain.User) *userModel {
	return &userModel{
		ID:           user.ID,
		UserName:     user.UserName,
		PasswordHash: user.PasswordHash,
		Role:         string(user.Role),
		IsActive:     user.IsActive,
		Email:        user.Email,
		Phone:        user.Phone,
	}
}

func gormUserError(op string, err error) error {
	if message, ok := duplicateKey(err); ok {
		if strings.Contains(message, "idx_users_email") {
			return errors.ErrDuplicateEmail
		}
		return errors.ErrDuplicateUsername
	}
	return storeError(op, err)
}

// duplicateKey reports a mysql ER_DUP_ENTRY along with its message, which
// names the violated index.
func duplicateKey(err error) (string, bool) {
	var myErr *mysqldriver.MySQLError
	if stderrors.As(err, &myErr) && myErr.Number == 1062 {
		return myErr.Message, true
	}
	return "", false
}
