package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/efreitasn/predictx/internal/domain"
	"github.com/efreitasn/predictx/internal/ledger"
	"github.com/efreitasn/predictx/internal/store/memory"
)

func TestLocalLocker_SerializesSameMarket(t *testing.T) {
	l := NewLocalLocker()
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "m1")
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			n := inside.Add(1)
			for {
				cur := maxInside.Load()
				if n <= cur || maxInside.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	if maxInside.Load() != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxInside.Load())
	}
}

func TestLocalLocker_DifferentMarketsIndependent(t *testing.T) {
	l := NewLocalLocker()
	unlock1, err := l.Lock(context.Background(), "m1")
	if err != nil {
		t.Fatal(err)
	}
	defer unlock1()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlock2, err := l.Lock(ctx, "m2")
	if err != nil {
		t.Fatalf("m2 blocked by m1: %v", err)
	}
	unlock2()
}

func TestLocalLocker_ContextTimeout(t *testing.T) {
	l := NewLocalLocker()
	unlock, _ := l.Lock(context.Background(), "m1")
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := l.Lock(ctx, "m1")
	if !errors.Is(err, domain.ErrLockTimeout) {
		t.Fatalf("err = %v, want ErrLockTimeout", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded in chain", err)
	}
}

func TestLocalLocker_UnlockIsIdempotent(t *testing.T) {
	l := NewLocalLocker()
	unlock, _ := l.Lock(context.Background(), "m1")
	unlock()
	unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	again, err := l.Lock(ctx, "m1")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	again()
}

func TestLocalLocker_WaitBudget(t *testing.T) {
	l := NewLocalLocker().WithWait(20 * time.Millisecond)
	unlock, err := l.Lock(context.Background(), "m1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()

	start := time.Now()
	_, err = l.Lock(context.Background(), "m1")
	if !errors.Is(err, domain.ErrLockTimeout) {
		t.Fatalf("err = %v, want ErrLockTimeout", err)
	}
	if waited := time.Since(start); waited > time.Second {
		t.Errorf("waited %v, want about 20ms", waited)
	}
}

func TestLocalLocker_DropsIdleEntries(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "m1")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "m1"); !errors.Is(err, domain.ErrLockTimeout) {
		t.Fatalf("err = %v, want ErrLockTimeout", err)
	}
	if got := l.Len(); got != 1 {
		t.Errorf("Len() while held = %d, want 1", got)
	}

	unlock()
	unlock()
	if got := l.Len(); got != 0 {
		t.Errorf("Len() after unlock = %d, want 0", got)
	}
}

func TestLocalLocker_EntryOutlivesWaiter(t *testing.T) {
	l := NewLocalLocker()
	unlock, _ := l.Lock(context.Background(), "m1")

	acquired := make(chan func())
	go func() {
		next, err := l.Lock(context.Background(), "m1")
		if err != nil {
			t.Errorf("waiter: %v", err)
			close(acquired)
			return
		}
		acquired <- next
	}()

	// Let the waiter register before the holder leaves.
	time.Sleep(10 * time.Millisecond)
	unlock()
	next, ok := <-acquired
	if !ok {
		return
	}
	if got := l.Len(); got != 1 {
		t.Errorf("Len() with second holder = %d, want 1", got)
	}
	next()
	if got := l.Len(); got != 0 {
		t.Errorf("Len() after both unlock = %d, want 0", got)
	}
}

func TestCoordinator_UnknownMarketsLeaveNoLocks(t *testing.T) {
	st := memory.New(discardLogger())
	locker := NewLocalLocker()
	coord := NewCoordinator(st, ledger.New(), NewMatcher(SelfTradeSkip, nil, discardLogger()),
		locker, nil, testDefaultBalance, nil, discardLogger())

	for i := 0; i < 500; i++ {
		_, err := coord.Place(context.Background(), PlaceRequest{
			UserID: "u", MarketID: fmt.Sprintf("ghost-%d", i), Side: domain.SideYes, Quantity: 1, Price: 50,
		})
		if !errors.Is(err, domain.ErrMarketNotFound) {
			t.Fatalf("Place: err = %v, want ErrMarketNotFound", err)
		}
	}
	if got := locker.Len(); got != 0 {
		t.Errorf("lock entries = %d, want 0", got)
	}

	_, err := coord.Place(context.Background(), PlaceRequest{
		UserID: "u", MarketID: "bad market id!", Side: domain.SideYes, Quantity: 1, Price: 50,
	})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Field != "marketId" {
		t.Fatalf("malformed id: err = %v, want ValidationError on marketId", err)
	}
}
