package memory

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/efreitasn/predictx/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func seedMarket(t *testing.T, s *Store, id string) {
	t.Helper()
	err := s.InTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		return tx.Markets().Create(ctx, &domain.Market{MarketID: id, Title: id, Status: domain.MarketStatusActive})
	})
	if err != nil {
		t.Fatalf("seed market: %v", err)
	}
}

func createOrder(t *testing.T, s *Store, o *domain.Order) *domain.Order {
	t.Helper()
	err := s.InTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		return tx.Orders().Create(ctx, o)
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

func TestInTx_RollbackUndoesEveryWrite(t *testing.T) {
	s := newTestStore(t)
	seedMarket(t, s, "m1")
	boom := errors.New("boom")

	err := s.InTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		if err := tx.Balances().Create(ctx, &domain.UserBalance{UserID: "u1", Available: 100}); err != nil {
			return err
		}
		o := &domain.Order{UserID: "u1", MarketID: "m1", Side: domain.SideYes, Quantity: 10, Price: 40}
		if err := tx.Orders().Create(ctx, o); err != nil {
			return err
		}
		if err := tx.Trades().Create(ctx, &domain.Trade{MarketID: "m1", YesOrderID: o.OrderID, NoOrderID: "x", Quantity: 1, Price: 40}); err != nil {
			return err
		}
		if err := tx.Markets().AddVolume(ctx, "m1", 5); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx err = %v, want boom", err)
	}

	_ = s.InTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.Balances().Get(ctx, "u1"); !errors.Is(err, domain.ErrBalanceNotFound) {
			t.Errorf("balance survived rollback: %v", err)
		}
		resting, _ := tx.Orders().ListResting(ctx, "m1")
		if len(resting) != 0 {
			t.Errorf("resting orders after rollback = %d", len(resting))
		}
		trades, _ := tx.Trades().ListByMarket(ctx, "m1", 0)
		if len(trades) != 0 {
			t.Errorf("trades after rollback = %d", len(trades))
		}
		m, _ := tx.Markets().Get(ctx, "m1")
		if m.YesVolume != 0 || m.NoVolume != 0 {
			t.Errorf("volume after rollback = %d/%d", m.YesVolume, m.NoVolume)
		}
		return nil
	})

	// The sequence counter is rolled back too.
	o := createOrder(t, s, &domain.Order{UserID: "u1", MarketID: "m1", Side: domain.SideYes, Quantity: 1, Price: 1})
	if o.Sequence != 1 {
		t.Errorf("Sequence = %d, want 1", o.Sequence)
	}
}

func TestInTx_RollbackOnPanic(t *testing.T) {
	s := newTestStore(t)

	func() {
		defer func() { _ = recover() }()
		_ = s.InTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
			_ = tx.Balances().Create(ctx, &domain.UserBalance{UserID: "u1"})
			panic("boom")
		})
	}()

	err := s.InTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.Balances().Get(ctx, "u1")
		return err
	})
	if !errors.Is(err, domain.ErrBalanceNotFound) {
		t.Fatalf("Get after panic err = %v, want ErrBalanceNotFound", err)
	}
}

func TestOrders_FindOpposingAtPrice_FIFO(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// Timestamps run backwards; insertion sequence alone decides.
	a := createOrder(t, s, &domain.Order{OrderID: "a", UserID: "u", MarketID: "m1", Side: domain.SideNo, Quantity: 5, Price: 60, CreatedAt: base.Add(2 * time.Second)})
	b := createOrder(t, s, &domain.Order{OrderID: "b", UserID: "u", MarketID: "m1", Side: domain.SideNo, Quantity: 5, Price: 60, CreatedAt: base})
	c := createOrder(t, s, &domain.Order{OrderID: "c", UserID: "u", MarketID: "m1", Side: domain.SideNo, Quantity: 5, Price: 60, CreatedAt: base.Add(-time.Second)})
	createOrder(t, s, &domain.Order{OrderID: "other-price", UserID: "u", MarketID: "m1", Side: domain.SideNo, Quantity: 5, Price: 61, CreatedAt: base})
	createOrder(t, s, &domain.Order{OrderID: "other-side", UserID: "u", MarketID: "m1", Side: domain.SideYes, Quantity: 5, Price: 60, CreatedAt: base})
	createOrder(t, s, &domain.Order{OrderID: "other-market", UserID: "u", MarketID: "m2", Side: domain.SideNo, Quantity: 5, Price: 60, CreatedAt: base})

	var got []*domain.Order
	_ = s.InTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		var err error
		got, err = tx.Orders().FindOpposingAtPrice(ctx, "m1", domain.SideNo, 60)
		return err
	})

	want := []string{a.OrderID, b.OrderID, c.OrderID}
	if len(got) != len(want) {
		t.Fatalf("got %d orders, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].OrderID != id {
			t.Errorf("position %d = %s, want %s", i, got[i].OrderID, id)
		}
	}
}

func TestOrders_UpdateFill_LeavesIndexWhenFilled(t *testing.T) {
	s := newTestStore(t)
	o := createOrder(t, s, &domain.Order{UserID: "u1", MarketID: "m1", Side: domain.SideNo, Quantity: 10, Price: 60})

	err := s.InTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		if err := o.ApplyFill(10, time.Now()); err != nil {
			return err
		}
		return tx.Orders().UpdateFill(ctx, o)
	})
	if err != nil {
		t.Fatalf("UpdateFill: %v", err)
	}

	_ = s.InTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		found, _ := tx.Orders().FindOpposingAtPrice(ctx, "m1", domain.SideNo, 60)
		if len(found) != 0 {
			t.Errorf("filled order still resting")
		}
		liab, _ := tx.Orders().RestingLiabilities(ctx)
		if liab["u1"] != 0 {
			t.Errorf("liability = %d, want 0", liab["u1"])
		}
		got, _ := tx.Orders().Get(ctx, o.OrderID)
		if got.Status != domain.OrderStatusFilled {
			t.Errorf("status = %s", got.Status)
		}
		return nil
	})
}

func TestOrders_RestingLiabilities(t *testing.T) {
	s := newTestStore(t)
	createOrder(t, s, &domain.Order{UserID: "u1", MarketID: "m1", Side: domain.SideYes, Quantity: 10, Price: 40})
	o := createOrder(t, s, &domain.Order{UserID: "u1", MarketID: "m2", Side: domain.SideNo, Quantity: 10, Price: 30})
	createOrder(t, s, &domain.Order{UserID: "u2", MarketID: "m1", Side: domain.SideNo, Quantity: 2, Price: 60})

	_ = s.InTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		_ = o.ApplyFill(4, time.Now())
		return tx.Orders().UpdateFill(ctx, o)
	})

	var liab map[string]int64
	_ = s.InTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		liab, _ = tx.Orders().RestingLiabilities(ctx)
		return nil
	})
	if liab["u1"] != 400+180 {
		t.Errorf("u1 liability = %d, want 580", liab["u1"])
	}
	if liab["u2"] != 120 {
		t.Errorf("u2 liability = %d, want 120", liab["u2"])
	}
}

func TestOrders_ListByUser_NewestFirstWithPaging(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		createOrder(t, s, &domain.Order{UserID: "u1", MarketID: "m1", Side: domain.SideYes, Quantity: 1, Price: int64(10 + i)})
	}
	createOrder(t, s, &domain.Order{UserID: "u2", MarketID: "m1", Side: domain.SideYes, Quantity: 1, Price: 50})

	_ = s.InTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		page, total, err := tx.Orders().ListByUser(ctx, "u1", domain.OrderFilter{Page: 1, Limit: 2})
		if err != nil {
			t.Fatalf("ListByUser: %v", err)
		}
		if total != 5 || len(page) != 2 {
			t.Fatalf("total=%d len=%d, want 5/2", total, len(page))
		}
		if page[0].Price != 14 || page[1].Price != 13 {
			t.Errorf("prices = %d,%d, want 14,13", page[0].Price, page[1].Price)
		}

		page, _, _ = tx.Orders().ListByUser(ctx, "u1", domain.OrderFilter{Page: 3, Limit: 2})
		if len(page) != 1 || page[0].Price != 10 {
			t.Errorf("last page = %+v", page)
		}

		page, total, _ = tx.Orders().ListByUser(ctx, "u1", domain.OrderFilter{Status: domain.OrderStatusFilled, Page: 1, Limit: 10})
		if total != 0 || len(page) != 0 {
			t.Errorf("filled filter returned %d", total)
		}
		return nil
	})
}

func TestOrders_ListInconsistent(t *testing.T) {
	s := newTestStore(t)
	o := createOrder(t, s, &domain.Order{UserID: "u1", MarketID: "m1", Side: domain.SideYes, Quantity: 10, Price: 40})

	_ = s.InTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		o.FilledQuantity = 10 // status left open
		return tx.Orders().UpdateFill(ctx, o)
	})
	_ = s.InTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		bad, _ := tx.Orders().ListInconsistent(ctx)
		if len(bad) != 1 || bad[0].OrderID != o.OrderID {
			t.Errorf("ListInconsistent = %+v", bad)
		}
		return nil
	})
}

func TestTrades_ListByMarketAndOrder(t *testing.T) {
	s := newTestStore(t)
	err := s.InTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		for i := 0; i < 3; i++ {
			tr := &domain.Trade{MarketID: "m1", YesOrderID: "y", NoOrderID: "n", Quantity: int64(i + 1), Price: 40, Status: domain.TradeStatusSettled}
			if err := tx.Trades().Create(ctx, tr); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("create trades: %v", err)
	}

	_ = s.InTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		latest, _ := tx.Trades().ListByMarket(ctx, "m1", 2)
		if len(latest) != 2 || latest[0].Quantity != 3 {
			t.Errorf("ListByMarket = %+v", latest)
		}
		byOrder, _ := tx.Trades().ListByOrder(ctx, "n")
		if len(byOrder) != 3 || byOrder[0].Quantity != 1 {
			t.Errorf("ListByOrder = %+v", byOrder)
		}
		return nil
	})
}

func TestMarkets_CreateDuplicate(t *testing.T) {
	s := newTestStore(t)
	seedMarket(t, s, "m1")
	err := s.InTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		return tx.Markets().Create(ctx, &domain.Market{MarketID: "m1"})
	})
	if !errors.Is(err, domain.ErrMarketAlreadyExists) {
		t.Fatalf("err = %v, want ErrMarketAlreadyExists", err)
	}
}

func TestListen_PublishesOnlyCommittedChanges(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan domain.ChangeEvent, 16)
	done := make(chan struct{})
	go func() {
		_ = s.Listen(ctx, out)
		close(done)
	}()

	// Wait for the listener to register.
	deadline := time.Now().Add(time.Second)
	for {
		s.listenMu.Lock()
		n := len(s.listeners)
		s.listenMu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("listener never registered")
		}
		time.Sleep(time.Millisecond)
	}

	_ = s.InTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		_ = tx.Balances().Create(ctx, &domain.UserBalance{UserID: "ghost"})
		return errors.New("abort")
	})
	seedMarket(t, s, "m1")

	select {
	case ev := <-out:
		if ev.Table != domain.TableMarkets || ev.Operation != domain.ChangeInsert {
			t.Fatalf("event = %s %s", ev.Operation, ev.Table)
		}
		var row map[string]any
		if err := json.Unmarshal(ev.New, &row); err != nil {
			t.Fatalf("decode row: %v", err)
		}
		if row["id"] != "m1" {
			t.Errorf("row id = %v", row["id"])
		}
	case <-time.After(time.Second):
		t.Fatal("no change event")
	}

	select {
	case ev := <-out:
		t.Fatalf("unexpected extra event %s %s", ev.Operation, ev.Table)
	default:
	}

	cancel()
	<-done
}

func TestWebhooks_UpsertFindDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repo := s.Webhooks()

	w := &domain.Webhook{UserID: "u1", Event: domain.EventOrderFilled, URL: "https://a.example/hook"}
	created, err := repo.Upsert(ctx, w)
	if err != nil || !created {
		t.Fatalf("Upsert created=%v err=%v", created, err)
	}
	id := w.WebhookID

	w2 := &domain.Webhook{UserID: "u1", Event: domain.EventOrderFilled, URL: "https://b.example/hook"}
	created, _ = repo.Upsert(ctx, w2)
	if created {
		t.Error("second upsert should update")
	}
	if w2.WebhookID != id {
		t.Errorf("webhook id changed: %s -> %s", id, w2.WebhookID)
	}

	found, err := repo.Find(ctx, "u1", domain.EventOrderFilled)
	if err != nil || found.URL != "https://b.example/hook" {
		t.Fatalf("Find = %+v, %v", found, err)
	}

	if err := repo.Delete(ctx, "u2", id); !errors.Is(err, domain.ErrWebhookNotFound) {
		t.Errorf("delete by other user err = %v", err)
	}
	if err := repo.Delete(ctx, "u1", id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	list, _ := repo.ListByUser(ctx, "u1")
	if len(list) != 0 {
		t.Errorf("list after delete = %d", len(list))
	}
}

func TestListen_DeliversInCommitOrder(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const writers, perWriter = 8, 50
	out := make(chan domain.ChangeEvent, writers*perWriter)
	done := make(chan struct{})
	go func() {
		_ = s.Listen(ctx, out)
		close(done)
	}()
	deadline := time.Now().Add(time.Second)
	for {
		s.listenMu.Lock()
		n := len(s.listeners)
		s.listenMu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("listener never registered")
		}
		time.Sleep(time.Millisecond)
	}

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_ = s.InTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
					return tx.Orders().Create(ctx, &domain.Order{UserID: "u", MarketID: "m1", Side: domain.SideYes, Quantity: 1, Price: 50})
				})
			}
		}()
	}
	wg.Wait()

	var last float64
	for i := 0; i < writers*perWriter; i++ {
		ev := <-out
		var row map[string]any
		if err := json.Unmarshal(ev.New, &row); err != nil {
			t.Fatalf("decode row: %v", err)
		}
		seq, _ := row["seq"].(float64)
		if seq <= last {
			t.Fatalf("event %d has seq %v after %v", i, seq, last)
		}
		last = seq
	}

	cancel()
	<-done
}
