package service

import (
	"context"

	"github.com/efreitasn/predictx/internal/domain"
	"github.com/efreitasn/predictx/internal/ledger"
)

// BalanceService handles balance queries, deposits and withdrawals.
type BalanceService struct {
	store          domain.Store
	ledger         *ledger.Ledger
	defaultBalance int64
}

// NewBalanceService creates a new BalanceService. defaultBalance funds
// accounts opened by a first deposit or withdrawal.
func NewBalanceService(store domain.Store, led *ledger.Ledger, defaultBalance int64) *BalanceService {
	return &BalanceService{store: store, ledger: led, defaultBalance: defaultBalance}
}

// Get returns the user's balance, or domain.ErrBalanceNotFound before the
// user's first order or deposit.
func (s *BalanceService) Get(ctx context.Context, userID string) (*domain.UserBalance, error) {
	var b *domain.UserBalance
	err := s.store.InReadTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		b, err = tx.Balances().Get(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Deposit credits dollars to the user's available balance.
func (s *BalanceService) Deposit(ctx context.Context, userID string, dollars float64) (*domain.UserBalance, error) {
	return s.apply(ctx, userID, dollars, s.ledger.Deposit)
}

// Withdraw debits dollars from the user's available balance. Locked funds
// cannot be withdrawn.
func (s *BalanceService) Withdraw(ctx context.Context, userID string, dollars float64) (*domain.UserBalance, error) {
	return s.apply(ctx, userID, dollars, s.ledger.Withdraw)
}

type ledgerOp func(ctx context.Context, balances domain.BalanceRepository, userID string, amount int64) (*domain.UserBalance, error)

func (s *BalanceService) apply(ctx context.Context, userID string, dollars float64, op ledgerOp) (*domain.UserBalance, error) {
	amount, err := amountCents(dollars)
	if err != nil {
		return nil, err
	}

	var b *domain.UserBalance
	err = s.store.InTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		balances := tx.Balances()
		if _, err := s.ledger.EnsureAccount(ctx, balances, userID, s.defaultBalance); err != nil {
			return err
		}
		var err error
		b, err = op(ctx, balances, userID, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func amountCents(dollars float64) (int64, error) {
	if dollars <= 0 {
		return 0, &domain.ValidationError{Field: "amount", Message: "amount must be > 0"}
	}
	if dollars > domain.CentsToDollars(domain.MaxAmount) {
		return 0, &domain.ValidationError{
			Field:   "amount",
			Message: "amount must be at most " + domain.FormatCents(domain.MaxAmount),
		}
	}
	cents, err := domain.DollarsToCents(dollars)
	if err != nil {
		return 0, &domain.ValidationError{Field: "amount", Message: "amount must have at most 2 decimal places"}
	}
	return cents, nil
}
