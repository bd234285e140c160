package service

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"bank-ledger/internal/domain"
	domainmocks "bank-ledger/internal/domain/mocks"
	"bank-ledger/internal/errors"
	"bank-ledger/internal/events"
	eventmocks "bank-ledger/internal/events/mocks"
	"bank-ledger/internal/lock"
	"bank-ledger/internal/repository"
	storemocks "bank-ledger/internal/repository/mocks"
)

type TransferServiceSuite struct {
	suite.Suite
	ctx   context.Context
	store *repository.MemoryStore
	svc   *TransferService
	now   time.Time
}

func TestTransferService(t *testing.T) {
	suite.Run(t, new(TransferServiceSuite))
}

func (s *TransferServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = repository.NewMemoryStore(discardLogger())
	s.svc = NewTransferService(s.store, lock.NewLocalLocker(), events.NopPublisher{}, discardLogger())
	s.now = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	s.svc.now = func() time.Time { return s.now }

	seedAccount(s.T(), s.store, "A", "1001", "1", "2500.75")
	seedAccount(s.T(), s.store, "B", "1002", "2", "1200.50")
}

func (s *TransferServiceSuite) transfer(sender, receiver, amount, description string) (*domain.TransferResult, error) {
	return s.svc.Transfer(s.ctx, &TransferRequest{
		SenderAccountID:   sender,
		ReceiverAccountID: receiver,
		Amount:            decimal.RequireFromString(amount),
		Description:       description,
	})
}

func (s *TransferServiceSuite) assertBalance(id, expected string) {
	actual := balanceOf(s.T(), s.store, id)
	s.True(decimal.RequireFromString(expected).Equal(actual), "balance of %s: expected %s, got %s", id, expected, actual)
}

func (s *TransferServiceSuite) assertUntouched() {
	s.assertBalance("A", "2500.75")
	s.assertBalance("B", "1200.50")

	records, err := s.store.Transactions().ListTransactions(s.ctx)
	s.Require().NoError(err)
	s.Empty(records)
}

func (s *TransferServiceSuite) TestSuccessfulTransfer() {
	result, err := s.transfer("A", "B", "100.25", "")
	s.Require().NoError(err)

	s.assertBalance("A", "2400.50")
	s.assertBalance("B", "1300.75")
	s.True(decimal.RequireFromString("2400.50").Equal(result.Sender.Balance))
	s.True(decimal.RequireFromString("1300.75").Equal(result.Receiver.Balance))

	s.NotEmpty(result.TransferID)
	s.Equal(domain.TransactionTypeDebit, result.Debit.Type)
	s.Equal(domain.TransactionTypeCredit, result.Credit.Type)
	s.Equal("Transfer to 1002", result.Debit.Description)
	s.Equal("Transfer from 1001", result.Credit.Description)

	records, err := s.store.Transactions().ListTransactions(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(records, 2)

	// Credit was appended last, so it leads on the shared date
	s.Equal(result.Credit.ID, records[0].ID)
	s.Equal(result.Debit.ID, records[1].ID)
	for _, record := range records {
		s.Equal(result.TransferID, record.TransferID)
		s.Equal("1001", record.FromAccountNumber)
		s.Equal("1002", record.ToAccountNumber)
		s.True(decimal.RequireFromString("100.25").Equal(record.Amount))
		s.True(s.now.Equal(record.Date))
	}
}

func (s *TransferServiceSuite) TestDescriptionAppliesToBothLegs() {
	result, err := s.transfer("A", "B", "50", "Monthly Rent")
	s.Require().NoError(err)
	s.Equal("Monthly Rent", result.Debit.Description)
	s.Equal("Monthly Rent", result.Credit.Description)
}

func (s *TransferServiceSuite) TestWholeBalanceCanBeSent() {
	_, err := s.transfer("A", "B", "2500.75", "")
	s.Require().NoError(err)
	s.assertBalance("A", "0")
	s.assertBalance("B", "3701.25")
}

func (s *TransferServiceSuite) TestRejections() {
	tests := []struct {
		name     string
		sender   string
		receiver string
		amount   string
		code     errors.ErrorCode
		details  string
	}{
		{"same account", "A", "A", "10", errors.SameAccountTransfer, ""},
		{"same missing account", "X", "X", "10", errors.SameAccountTransfer, ""},
		{"zero amount", "A", "B", "0", errors.InvalidAmount, ""},
		{"negative amount", "A", "B", "-5", errors.InvalidAmount, ""},
		{"amount checked before existence", "X", "Y", "0", errors.InvalidAmount, ""},
		{"missing sender", "X", "B", "10", errors.AccountNotFound, "sender"},
		{"missing receiver", "A", "Y", "10", errors.AccountNotFound, "receiver"},
		{"both missing names sender", "X", "Y", "10", errors.AccountNotFound, "sender"},
		{"insufficient funds", "A", "B", "2500.76", errors.InsufficientFunds, ""},
		{"missing receiver checked before funds", "A", "Y", "99999", errors.AccountNotFound, "receiver"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			result, err := s.transfer(tt.sender, tt.receiver, tt.amount, "")
			s.Nil(result)
			s.Require().Error(err)

			appErr := errors.As(err)
			s.Equal(tt.code, appErr.Code)
			if tt.details != "" {
				s.Equal(tt.details, appErr.Details)
			}
			s.assertUntouched()
		})
	}
}

func (s *TransferServiceSuite) TestPartialFailureLeavesNoTrace() {
	failing := &failingStore{Store: s.store, failOnAppend: 2}
	svc := NewTransferService(failing, lock.NewLocalLocker(), events.NopPublisher{}, discardLogger())

	_, err := svc.Transfer(s.ctx, &TransferRequest{
		SenderAccountID:   "A",
		ReceiverAccountID: "B",
		Amount:            decimal.NewFromInt(100),
	})
	s.Require().Error(err)
	s.True(stderrors.Is(err, errors.ErrStoreUnavailable))
	s.assertUntouched()
}

func (s *TransferServiceSuite) TestConcurrentTransfersConserveMoney() {
	seedAccount(s.T(), s.store, "C", "1003", "3", "10")

	pairs := [][2]string{{"A", "B"}, {"B", "A"}, {"B", "C"}, {"C", "A"}, {"C", "B"}}
	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		pair := pairs[i%len(pairs)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.svc.Transfer(s.ctx, &TransferRequest{
				SenderAccountID:   pair[0],
				ReceiverAccountID: pair[1],
				Amount:            decimal.RequireFromString("7.5"),
			})
			if err != nil {
				// Only funds may run out
				assert.Equal(s.T(), errors.InsufficientFunds, errors.As(err).Code)
			}
		}()
	}
	wg.Wait()

	total := decimal.Zero
	for _, id := range []string{"A", "B", "C"} {
		balance := balanceOf(s.T(), s.store, id)
		s.False(balance.IsNegative())
		total = total.Add(balance)
	}
	s.True(decimal.RequireFromString("3711.25").Equal(total))

	records, err := s.store.Transactions().ListTransactions(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, len(records)%2)
}

func (s *TransferServiceSuite) TestPublisherFailureDoesNotFailTransfer() {
	ctrl := gomock.NewController(s.T())
	defer ctrl.Finish()

	publisher := eventmocks.NewMockPublisher(ctrl)
	publisher.EXPECT().
		PublishTransfer(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, result *domain.TransferResult) error {
			s.Equal("1001", result.Debit.FromAccountNumber)
			return stderrors.New("broker down")
		})

	svc := NewTransferService(s.store, lock.NewLocalLocker(), publisher, discardLogger())
	_, err := svc.Transfer(s.ctx, &TransferRequest{SenderAccountID: "A", ReceiverAccountID: "B", Amount: decimal.NewFromInt(1)})
	s.Require().NoError(err)
	s.assertBalance("A", "2499.75")
}

func (s *TransferServiceSuite) TestPublisherNotCalledOnFailure() {
	ctrl := gomock.NewController(s.T())
	defer ctrl.Finish()

	publisher := eventmocks.NewMockPublisher(ctrl)
	publisher.EXPECT().PublishTransfer(gomock.Any(), gomock.Any()).Times(0)

	svc := NewTransferService(s.store, lock.NewLocalLocker(), publisher, discardLogger())
	_, err := svc.Transfer(s.ctx, &TransferRequest{SenderAccountID: "A", ReceiverAccountID: "B", Amount: decimal.NewFromInt(1_000_000)})
	s.Require().Error(err)
}

func (s *TransferServiceSuite) TestLockFailure() {
	svc := NewTransferService(s.store, busyLocker{}, events.NopPublisher{}, discardLogger())

	_, err := svc.Transfer(s.ctx, &TransferRequest{SenderAccountID: "A", ReceiverAccountID: "B", Amount: decimal.NewFromInt(1)})
	s.Require().Error(err)
	s.Equal(errors.StoreUnavailable, errors.As(err).Code)
	s.True(stderrors.Is(err, lock.ErrLockFailed))
	s.assertUntouched()
}

// Effects must be issued in a fixed order: debit sender, credit receiver,
// append Debit, append Credit.
func TestTransferEffectOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	store := storemocks.NewMockStore(ctrl)
	accounts := domainmocks.NewMockAccountRepository(ctrl)
	transactions := domainmocks.NewMockTransactionRepository(ctrl)

	store.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(repository.Store) error) error {
			return fn(store)
		})
	store.EXPECT().Accounts().Return(accounts).AnyTimes()
	store.EXPECT().Transactions().Return(transactions).AnyTimes()

	sender := &domain.Account{ID: "A", AccountNumber: "1001", Balance: decimal.NewFromInt(100)}
	receiver := &domain.Account{ID: "B", AccountNumber: "1002", Balance: decimal.NewFromInt(5)}
	amount := decimal.NewFromInt(40)

	accounts.EXPECT().GetAccount(gomock.Any(), "A").Return(sender, nil)
	accounts.EXPECT().GetAccount(gomock.Any(), "B").Return(receiver, nil)

	gomock.InOrder(
		accounts.EXPECT().ApplyDelta(gomock.Any(), "1001", decimalEq(amount.Neg())).
			Return(&domain.Account{ID: "A", AccountNumber: "1001", Balance: decimal.NewFromInt(60)}, nil),
		accounts.EXPECT().ApplyDelta(gomock.Any(), "1002", decimalEq(amount)).
			Return(&domain.Account{ID: "B", AccountNumber: "1002", Balance: decimal.NewFromInt(45)}, nil),
		transactions.EXPECT().CreateTransaction(gomock.Any(), typeMatcher(domain.TransactionTypeDebit)).Return(nil),
		transactions.EXPECT().CreateTransaction(gomock.Any(), typeMatcher(domain.TransactionTypeCredit)).Return(nil),
	)

	svc := NewTransferService(store, lock.NewLocalLocker(), events.NopPublisher{}, discardLogger())
	result, err := svc.Transfer(ctx, &TransferRequest{SenderAccountID: "A", ReceiverAccountID: "B", Amount: amount})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(60).Equal(result.Sender.Balance))
	assert.True(t, decimal.NewFromInt(45).Equal(result.Receiver.Balance))
}

func TestTransferPropagatesStoreErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := storemocks.NewMockStore(ctrl)
	accounts := domainmocks.NewMockAccountRepository(ctrl)

	store.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(repository.Store) error) error {
			return fn(store)
		})
	store.EXPECT().Accounts().Return(accounts).AnyTimes()
	accounts.EXPECT().GetAccount(gomock.Any(), "A").Return(nil, errors.ErrStoreUnavailable)

	svc := NewTransferService(store, lock.NewLocalLocker(), events.NopPublisher{}, discardLogger())
	_, err := svc.Transfer(context.Background(), &TransferRequest{SenderAccountID: "A", ReceiverAccountID: "B", Amount: decimal.NewFromInt(1)})

	// An outage is reported as such, not as a missing account
	assert.Equal(t, errors.StoreUnavailable, errors.As(err).Code)
}

type typeMatcher domain.TransactionType

func (m typeMatcher) Matches(x interface{}) bool {
	tx, ok := x.(*domain.Transaction)
	return ok && tx.Type == domain.TransactionType(m)
}

func (m typeMatcher) String() string {
	return "transaction of type " + string(m)
}

type decimalMatcher struct{ d decimal.Decimal }

func decimalEq(d decimal.Decimal) gomock.Matcher { return decimalMatcher{d} }

func (m decimalMatcher) Matches(x interface{}) bool {
	d, ok := x.(decimal.Decimal)
	return ok && d.Equal(m.d)
}

func (m decimalMatcher) String() string { return "decimal equal to " + m.d.String() }

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, ...string) (func(), error) {
	return nil, lock.ErrLockFailed
}

// failingStore makes the n-th transaction append inside a unit of work fail
// as an unreachable backend would.
type failingStore struct {
	repository.Store
	failOnAppend int
}

func (f *failingStore) WithTransaction(ctx context.Context, fn func(repository.Store) error) error {
	appends := 0
	return f.Store.WithTransaction(ctx, func(tx repository.Store) error {
		return fn(&failingTxStore{Store: tx, appends: &appends, failOn: f.failOnAppend})
	})
}

type failingTxStore struct {
	repository.Store
	appends *int
	failOn  int
}

func (f *failingTxStore) Transactions() domain.TransactionRepository {
	return &failingTransactions{TransactionRepository: f.Store.Transactions(), store: f}
}

type failingTransactions struct {
	domain.TransactionRepository
	store *failingTxStore
}

func (f *failingTransactions) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	*f.store.appends++
	if *f.store.appends == f.store.failOn {
		return errors.Wrap(errors.StoreUnavailable, "remote store unreachable", stderrors.New("connection reset"))
	}
	return f.TransactionRepository.CreateTransaction(ctx, tx)
}
