package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/efreitasn/predictx/internal/domain"
)

type balanceRepo struct{ tx *memTx }

func (r balanceRepo) Get(_ context.Context, userID string) (*domain.UserBalance, error) {
	b, ok := r.tx.s.balances[userID]
	if !ok {
		return nil, domain.ErrBalanceNotFound
	}
	cp := *b
	return &cp, nil
}

func (r balanceRepo) Create(_ context.Context, b *domain.UserBalance) error {
	s := r.tx.s
	if _, ok := s.balances[b.UserID]; ok {
		return fmt.Errorf("memory: balance for %s already exists", b.UserID)
	}
	cp := *b
	s.balances[b.UserID] = &cp
	r.tx.onRollback(func() { delete(s.balances, b.UserID) })
	r.tx.record(domain.ChangeInsert, domain.TableUserBalances, balanceRow(&cp), nil)
	return nil
}

func (r balanceRepo) Update(_ context.Context, b *domain.UserBalance) error {
	s := r.tx.s
	prev, ok := s.balances[b.UserID]
	if !ok {
		return domain.ErrBalanceNotFound
	}
	cp := *b
	s.balances[b.UserID] = &cp
	r.tx.onRollback(func() { s.balances[b.UserID] = prev })
	r.tx.record(domain.ChangeUpdate, domain.TableUserBalances, balanceRow(&cp), balanceRow(prev))
	return nil
}

func (r balanceRepo) All(_ context.Context) ([]*domain.UserBalance, error) {
	out := make([]*domain.UserBalance, 0, len(r.tx.s.balances))
	for _, b := range r.tx.s.balances {
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
