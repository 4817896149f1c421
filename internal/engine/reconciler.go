package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/efreitasn/predictx/internal/domain"
	"github.com/efreitasn/predictx/internal/metrics"
)

// Violation kinds reported by the reconciler.
const (
	ViolationConservation     = "conservation"
	ViolationLockedLiability  = "locked_liability_mismatch"
	ViolationNegativeBalance  = "negative_balance"
	ViolationInconsistentFill = "inconsistent_fill"
)

// Violation is one broken ledger or order invariant.
type Violation struct {
	Kind    string `json:"kind"`
	UserID  string `json:"userId,omitempty"`
	OrderID string `json:"orderId,omitempty"`
	Detail  string `json:"detail"`
}

// Report is the result of one reconciliation pass. Amounts are in cents.
type Report struct {
	CheckedAt   time.Time   `json:"checkedAt"`
	Users       int         `json:"users"`
	Markets     int         `json:"markets"`
	UserFunds   int64       `json:"userFunds"`
	Escrow      int64       `json:"escrow"`
	NetDeposits int64       `json:"netDeposits"`
	Violations  []Violation `json:"violations"`
}

// OK reports whether the pass found no violations.
func (r *Report) OK() bool {
	return len(r.Violations) == 0
}

// Reconciler periodically audits balances and orders:
//   - user funds plus market escrow equal net deposits
//   - each user's locked balance equals the liability of their resting orders
//   - no balance is negative
//   - every order's status agrees with its fill
type Reconciler struct {
	store    domain.Store
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewReconciler creates a Reconciler. An interval of zero disables the
// periodic loop; Check still works on demand.
func NewReconciler(store domain.Store, interval time.Duration, m *metrics.Metrics, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:    store,
		interval: interval,
		metrics:  m,
		logger:   logger.With(slog.String("component", "reconciler")),
	}
}

// Run checks at the configured interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	if r.interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Check(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("reconciliation failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Check runs one pass inside a single transaction and returns its report.
func (r *Reconciler) Check(ctx context.Context) (*Report, error) {
	report := &Report{CheckedAt: time.Now().UTC(), Violations: []Violation{}}

	err := r.store.InReadTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		balances, err := tx.Balances().All(ctx)
		if err != nil {
			return fmt.Errorf("list balances: %w", err)
		}
		markets, err := tx.Markets().List(ctx)
		if err != nil {
			return fmt.Errorf("list markets: %w", err)
		}
		liabilities, err := tx.Orders().RestingLiabilities(ctx)
		if err != nil {
			return fmt.Errorf("resting liabilities: %w", err)
		}
		inconsistent, err := tx.Orders().ListInconsistent(ctx)
		if err != nil {
			return fmt.Errorf("inconsistent orders: %w", err)
		}

		report.Users = len(balances)
		report.Markets = len(markets)
		seen := make(map[string]bool, len(balances))

		for _, b := range balances {
			seen[b.UserID] = true
			report.UserFunds += b.Total()
			report.NetDeposits += b.NetDeposits()

			if b.Available < 0 || b.Locked < 0 {
				report.add(Violation{
					Kind:   ViolationNegativeBalance,
					UserID: b.UserID,
					Detail: fmt.Sprintf("available %d locked %d", b.Available, b.Locked),
				})
			}
			if want := liabilities[b.UserID]; b.Locked != want {
				report.add(Violation{
					Kind:   ViolationLockedLiability,
					UserID: b.UserID,
					Detail: fmt.Sprintf("locked %d resting liability %d", b.Locked, want),
				})
			}
		}

		// Resting orders whose owner has no balance row at all.
		orphans := make([]string, 0)
		for userID, amount := range liabilities {
			if !seen[userID] && amount != 0 {
				orphans = append(orphans, userID)
			}
		}
		sort.Strings(orphans)
		for _, userID := range orphans {
			report.add(Violation{
				Kind:   ViolationLockedLiability,
				UserID: userID,
				Detail: fmt.Sprintf("no balance row, resting liability %d", liabilities[userID]),
			})
		}

		for _, m := range markets {
			report.Escrow += m.Escrow()
		}
		if report.UserFunds+report.Escrow != report.NetDeposits {
			report.add(Violation{
				Kind: ViolationConservation,
				Detail: fmt.Sprintf("user funds %d + escrow %d != net deposits %d",
					report.UserFunds, report.Escrow, report.NetDeposits),
			})
		}

		for _, o := range inconsistent {
			report.add(Violation{
				Kind:    ViolationInconsistentFill,
				UserID:  o.UserID,
				OrderID: o.OrderID,
				Detail: fmt.Sprintf("status %s filled %d of %d",
					o.Status, o.FilledQuantity, o.Quantity),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.metrics.Reconciled(len(report.Violations))
	if report.OK() {
		r.logger.Debug("reconciliation passed",
			slog.Int("users", report.Users),
			slog.Int64("escrow", report.Escrow),
		)
		return report, nil
	}
	for _, v := range report.Violations {
		r.logger.Error("invariant violated",
			slog.String("error", domain.ErrLedgerInvariant.Error()),
			slog.String("kind", v.Kind),
			slog.String("user_id", v.UserID),
			slog.String("order_id", v.OrderID),
			slog.String("detail", v.Detail),
		)
	}
	return report, nil
}

func (r *Report) add(v Violation) {
	r.Violations = append(r.Violations, v)
}
