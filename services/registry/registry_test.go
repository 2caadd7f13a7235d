package registry

import (
	// Go Internal Packages
	"context"
	"sync"
	"testing"
	"time"

	// Local Packages
	models "anchor-observer/models"
	memory "anchor-observer/repositories/memory"

	// External Packages
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/xdr"
	"go.uber.org/zap"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(t *testing.T) (*Registry, *memory.AccountRepository, *clock) {
	t.Helper()
	store := memory.NewAccountRepository()
	r := New(store, zap.NewNop())
	c := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	r.now = c.Now
	return r, store, c
}

func muxedAddress(t *testing.T, base string, id uint64) string {
	t.Helper()
	m, err := xdr.MuxedAccountFromAccountId(base, id)
	if err != nil {
		t.Fatalf("muxed account: %v", err)
	}
	address, err := m.GetAddress()
	if err != nil {
		t.Fatalf("muxed address: %v", err)
	}
	return address
}

// gatedStore holds Delete until release is closed.
type gatedStore struct {
	*memory.AccountRepository
	deleting chan struct{}
	release  chan struct{}
}

func (g *gatedStore) Delete(ctx context.Context, accountIDs ...string) error {
	close(g.deleting)
	<-g.release
	return g.AccountRepository.Delete(ctx, accountIDs...)
}

func TestUpsertDuringEvictionKeepsStoreInSync(t *testing.T) {
	ctx := context.Background()
	store := &gatedStore{
		AccountRepository: memory.NewAccountRepository(),
		deleting:          make(chan struct{}),
		release:           make(chan struct{}),
	}
	r := New(store, zap.NewNop())
	c := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	r.now = c.Now

	account := keypair.MustRandom().Address()
	if err := r.Upsert(ctx, account, models.AccountTransient); err != nil {
		t.Fatal(err)
	}
	c.Advance(2 * time.Hour)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = r.Evict(ctx, time.Hour)
	}()
	<-store.deleting
	go func() {
		defer wg.Done()
		_ = r.Upsert(ctx, account, models.AccountTransient)
	}()
	time.Sleep(20 * time.Millisecond)
	close(store.release)
	wg.Wait()

	stored, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	inStore := len(stored) == 1 && stored[0].AccountID == account
	if inMemory := r.LookupAndUpdate(account); inMemory != inStore {
		t.Fatalf("registry and store disagree: memory=%v store=%v", inMemory, inStore)
	}
	if !inStore {
		t.Fatal("account upserted after eviction must stay watched")
	}
}

func TestEvictRemovesOnlyStaleTransientAccounts(t *testing.T) {
	ctx := context.Background()
	r, store, c := newTestRegistry(t)

	staleTransient := keypair.MustRandom().Address()
	freshTransient := keypair.MustRandom().Address()
	oldResidential := keypair.MustRandom().Address()

	if err := r.Upsert(ctx, staleTransient, models.AccountTransient); err != nil {
		t.Fatal(err)
	}
	if err := r.Upsert(ctx, oldResidential, models.AccountResidential); err != nil {
		t.Fatal(err)
	}
	c.Advance(48 * time.Hour)
	if err := r.Upsert(ctx, freshTransient, models.AccountTransient); err != nil {
		t.Fatal(err)
	}

	evicted, err := r.Evict(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("evict: %v", err)
	}
	if evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}
	if r.LookupAndUpdate(staleTransient) {
		t.Fatal("stale transient account must be evicted")
	}
	if !r.LookupAndUpdate(freshTransient) {
		t.Fatal("fresh transient account must stay")
	}
	if !r.LookupAndUpdate(oldResidential) {
		t.Fatal("residential account must never be evicted")
	}

	stored, _ := store.List(ctx)
	if len(stored) != 2 {
		t.Fatalf("expected 2 persisted accounts, got %d", len(stored))
	}
}

func TestLookupRefreshKeepsAccountAlive(t *testing.T) {
	ctx := context.Background()
	r, _, c := newTestRegistry(t)
	account := keypair.MustRandom().Address()

	if err := r.Upsert(ctx, account, models.AccountTransient); err != nil {
		t.Fatal(err)
	}
	c.Advance(20 * time.Hour)
	if !r.LookupAndUpdate(account) {
		t.Fatal("expected hit")
	}
	c.Advance(20 * time.Hour)

	if n, _ := r.Evict(ctx, 24*time.Hour); n != 0 {
		t.Fatalf("refreshed account must survive, evicted %d", n)
	}
}

func TestLookupMatchesMuxedSubAccounts(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRegistry(t)
	base := keypair.MustRandom().Address()

	if err := r.Upsert(ctx, base, models.AccountTransient); err != nil {
		t.Fatal(err)
	}
	for _, id := range []uint64{0, 1, 42, 1 << 63} {
		if !r.LookupAndUpdate(muxedAddress(t, base, id)) {
			t.Fatalf("muxed id %d of a watched account must match", id)
		}
	}
	if r.LookupAndUpdate(keypair.MustRandom().Address()) {
		t.Fatal("unwatched account must not match")
	}
}

func TestUpsertMuxedStoresBaseAccountOnce(t *testing.T) {
	ctx := context.Background()
	r, store, _ := newTestRegistry(t)
	base := keypair.MustRandom().Address()

	addresses := make([]string, 16)
	for i := range addresses {
		addresses[i] = muxedAddress(t, base, uint64(i))
	}

	var wg sync.WaitGroup
	for _, address := range addresses {
		wg.Add(1)
		go func(address string) {
			defer wg.Done()
			_ = r.Upsert(ctx, address, models.AccountTransient)
		}(address)
	}
	wg.Wait()

	if r.Len() != 1 {
		t.Fatalf("expected a single entry, got %d", r.Len())
	}
	stored, _ := store.List(ctx)
	if len(stored) != 1 || stored[0].AccountID != base {
		t.Fatalf("expected base account persisted once, got %+v", stored)
	}
}

func TestUpsertNeverDemotesResidential(t *testing.T) {
	ctx := context.Background()
	r, _, c := newTestRegistry(t)
	account := keypair.MustRandom().Address()

	_ = r.Upsert(ctx, account, models.AccountResidential)
	_ = r.Upsert(ctx, account, models.AccountTransient)
	c.Advance(365 * 24 * time.Hour)

	if n, _ := r.Evict(ctx, time.Hour); n != 0 {
		t.Fatal("residential account demoted by a transient upsert")
	}
}

func TestInitAndFlushRoundTrip(t *testing.T) {
	ctx := context.Background()
	r, store, c := newTestRegistry(t)
	account := keypair.MustRandom().Address()
	_ = r.Upsert(ctx, account, models.AccountTransient)

	c.Advance(time.Hour)
	r.LookupAndUpdate(account)
	if err := r.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	reloaded := New(store, zap.NewNop())
	reloaded.now = c.Now
	if err := reloaded.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	c.Advance(23*time.Hour + 30*time.Minute)
	if n, _ := reloaded.Evict(ctx, 24*time.Hour); n != 0 {
		t.Fatal("flushed timestamp was not persisted")
	}
}
