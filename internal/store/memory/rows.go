package memory

import (
	"encoding/json"
	"time"

	"github.com/efreitasn/predictx/internal/domain"
)

// Row encodings mirror the Postgres column names so change events look
// the same regardless of backend.

func orderRow(o *domain.Order) map[string]any {
	return map[string]any{
		"id":              o.OrderID,
		"market_id":       o.MarketID,
		"user_id":         o.UserID,
		"side":            string(o.Side),
		"quantity":        o.Quantity,
		"price":           o.Price,
		"filled_quantity": o.FilledQuantity,
		"status":          string(o.Status),
		"seq":             o.Sequence,
		"created_at":      o.CreatedAt,
		"updated_at":      o.UpdatedAt,
	}
}

func tradeRow(t *domain.Trade) map[string]any {
	return map[string]any{
		"id":           t.TradeID,
		"market_id":    t.MarketID,
		"yes_order_id": t.YesOrderID,
		"no_order_id":  t.NoOrderID,
		"yes_user_id":  t.YesUserID,
		"no_user_id":   t.NoUserID,
		"quantity":     t.Quantity,
		"price":        t.Price,
		"status":       string(t.Status),
		"created_at":   t.CreatedAt,
	}
}

func balanceRow(b *domain.UserBalance) map[string]any {
	return map[string]any{
		"user_id":           b.UserID,
		"available_balance": b.Available,
		"locked_balance":    b.Locked,
		"total_deposited":   b.TotalDeposited,
		"total_withdrawn":   b.TotalWithdrawn,
		"total_trades":      b.TotalTrades,
		"winning_trades":    b.WinningTrades,
		"total_volume":      b.TotalVolume,
		"total_profit_loss": b.TotalProfitLoss,
		"created_at":        b.CreatedAt,
		"updated_at":        b.UpdatedAt,
	}
}

func marketRow(m *domain.Market) map[string]any {
	row := map[string]any{
		"id":         m.MarketID,
		"title":      m.Title,
		"status":     string(m.Status),
		"yes_volume": m.YesVolume,
		"no_volume":  m.NoVolume,
		"outcome":    nil,
		"created_at": m.CreatedAt,
	}
	if m.Outcome != nil {
		row["outcome"] = string(*m.Outcome)
	}
	return row
}

func (tx *memTx) record(op domain.ChangeOp, table string, newRow, oldRow map[string]any) {
	ev := domain.ChangeEvent{
		Operation: op,
		Table:     table,
		Timestamp: time.Now().UTC(),
	}
	if newRow != nil {
		ev.New, _ = json.Marshal(newRow)
	}
	if oldRow != nil {
		ev.Old, _ = json.Marshal(oldRow)
	}
	tx.changes = append(tx.changes, ev)
}
