package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/efreitasn/predictx/internal/domain"
)

// MarketLocker serializes order placements per market. The returned unlock
// func must be called exactly once.
type MarketLocker interface {
	Lock(ctx context.Context, marketID string) (func(), error)
}

// LocalLocker is an in-process MarketLocker holding one lock per market.
// Entries are reference counted and dropped once no caller holds or waits
// on them.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
	wait  time.Duration
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker creates an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		locks: make(map[string]*lockEntry),
	}
}

// WithWait bounds how long Lock blocks. Zero waits for ctx alone.
func (l *LocalLocker) WithWait(d time.Duration) *LocalLocker {
	l.wait = d
	return l
}

// Lock blocks until the market's lock is free, the wait budget is spent or
// ctx is done.
func (l *LocalLocker) Lock(ctx context.Context, marketID string) (func(), error) {
	e := l.acquire(marketID)
	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}
	select {
	case e.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.ch
				l.release(marketID, e)
			})
		}, nil
	case <-ctx.Done():
		l.release(marketID, e)
		return nil, fmt.Errorf("market %s: %w: %w", marketID, domain.ErrLockTimeout, ctx.Err())
	}
}

// Len returns the number of markets with a holder or waiter.
func (l *LocalLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *LocalLocker) acquire(marketID string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.locks[marketID]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		l.locks[marketID] = e
	}
	e.refs++
	return e
}

func (l *LocalLocker) release(marketID string, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, marketID)
	}
}
