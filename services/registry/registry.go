// Package registry keeps the set of ledger accounts the payment observer reacts to.
package registry

import (
	// Go Internal Packages
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	// Local Packages
	ledger "anchor-observer/ledger"
	models "anchor-observer/models"

	// External Packages
	"go.uber.org/zap"
)

type AccountStore interface {
	Upsert(ctx context.Context, accounts ...models.ObservedAccount) error
	Delete(ctx context.Context, accountIDs ...string) error
	List(ctx context.Context) ([]models.ObservedAccount, error)
}

type entry struct {
	class models.AccountClass
	// lastObserved is unix nanos; refreshed under the read lock.
	lastObserved atomic.Int64
	dirty        atomic.Bool
}

// Registry is an in-memory watch list backed by an AccountStore. The observer hot path
// only takes the read lock.
type Registry struct {
	// writeMu orders memory and store writes together so the store follows memory.
	// Taken before mu.
	writeMu  sync.Mutex
	mu       sync.RWMutex
	accounts map[string]*entry
	store    AccountStore
	logger   *zap.Logger
	now      func() time.Time
}

func New(store AccountStore, logger *zap.Logger) *Registry {
	return &Registry{
		accounts: make(map[string]*entry),
		store:    store,
		logger:   logger,
		now:      time.Now,
	}
}

// Init loads the persisted accounts. Entries already in memory win.
func (r *Registry) Init(ctx context.Context) error {
	stored, err := r.store.List(ctx)
	if err != nil {
		return fmt.Errorf("load observed accounts: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range stored {
		id := ledger.BaseAccount(a.AccountID)
		if _, ok := r.accounts[id]; ok {
			continue
		}
		e := &entry{class: a.Class}
		e.lastObserved.Store(a.LastObserved.UnixNano())
		r.accounts[id] = e
	}
	r.logger.Info("observed accounts loaded", zap.Int("count", len(stored)))
	return nil
}

// Upsert starts watching account. Watching an already watched account refreshes its
// timestamp and can promote it to RESIDENTIAL, never demote it.
func (r *Registry) Upsert(ctx context.Context, account string, class models.AccountClass) error {
	id := ledger.BaseAccount(account)
	now := r.now()

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	e, ok := r.accounts[id]
	if !ok {
		e = &entry{class: class}
		r.accounts[id] = e
	} else if class == models.AccountResidential {
		e.class = class
	}
	e.lastObserved.Store(now.UnixNano())
	e.dirty.Store(false)
	record := models.ObservedAccount{AccountID: id, Class: e.class, LastObserved: now}
	r.mu.Unlock()

	if err := r.store.Upsert(ctx, record); err != nil {
		return fmt.Errorf("persist observed account %s: %w", id, err)
	}
	return nil
}

// LookupAndUpdate reports whether account, or the base account of a muxed address, is
// watched, and refreshes its last observed time on a hit.
func (r *Registry) LookupAndUpdate(account string) bool {
	if account == "" {
		return false
	}
	id := ledger.BaseAccount(account)

	r.mu.RLock()
	e, ok := r.accounts[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	e.lastObserved.Store(r.now().UnixNano())
	e.dirty.Store(true)
	return true
}

// Flush persists timestamps refreshed by LookupAndUpdate since the last flush.
func (r *Registry) Flush(ctx context.Context) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.RLock()
	var records []models.ObservedAccount
	for id, e := range r.accounts {
		if !e.dirty.Swap(false) {
			continue
		}
		records = append(records, models.ObservedAccount{
			AccountID:    id,
			Class:        e.class,
			LastObserved: time.Unix(0, e.lastObserved.Load()),
		})
	}
	r.mu.RUnlock()

	if err := r.store.Upsert(ctx, records...); err != nil {
		return fmt.Errorf("flush %d observed accounts: %w", len(records), err)
	}
	return nil
}

// Evict removes TRANSIENT accounts not observed within maxAge and returns how many were
// removed.
func (r *Registry) Evict(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := r.now().Add(-maxAge).UnixNano()

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	var evicted []string
	for id, e := range r.accounts {
		if e.class == models.AccountResidential {
			continue
		}
		if e.lastObserved.Load() < cutoff {
			evicted = append(evicted, id)
			delete(r.accounts, id)
		}
	}
	r.mu.Unlock()

	if len(evicted) == 0 {
		return 0, nil
	}
	if err := r.store.Delete(ctx, evicted...); err != nil {
		return len(evicted), fmt.Errorf("delete %d evicted accounts: %w", len(evicted), err)
	}
	r.logger.Info("evicted stale observed accounts", zap.Int("count", len(evicted)))
	return len(evicted), nil
}

// Len returns the number of watched accounts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.accounts)
}
