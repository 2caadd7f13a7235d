package memory

import (
	// Go Internal Packages
	"context"
	"sync"
	"time"

	// Local Packages
	models "anchor-observer/models"
)

type CursorRepository struct {
	mu      sync.Mutex
	cursors map[string]string
}

func NewCursorRepository() *CursorRepository {
	return &CursorRepository{cursors: make(map[string]string)}
}

func (r *CursorRepository) Load(_ context.Context, source string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursors[source], nil
}

func (r *CursorRepository) Save(_ context.Context, source, cursor string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursors[source] = cursor
	return nil
}

type AccountRepository struct {
	mu       sync.Mutex
	accounts map[string]models.ObservedAccount
}

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{accounts: make(map[string]models.ObservedAccount)}
}

func (r *AccountRepository) Upsert(_ context.Context, accounts ...models.ObservedAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range accounts {
		r.accounts[a.AccountID] = a
	}
	return nil
}

func (r *AccountRepository) Delete(_ context.Context, accountIDs ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range accountIDs {
		delete(r.accounts, id)
	}
	return nil
}

func (r *AccountRepository) List(_ context.Context) ([]models.ObservedAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ObservedAccount, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, a)
	}
	return out, nil
}

type PendingTrustRepository struct {
	mu      sync.Mutex
	records map[string]models.PendingTrust
}

func NewPendingTrustRepository() *PendingTrustRepository {
	return &PendingTrustRepository{records: make(map[string]models.PendingTrust)}
}

func (r *PendingTrustRepository) Save(_ context.Context, record models.PendingTrust) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.TransactionID] = record
	return nil
}

func (r *PendingTrustRepository) List(_ context.Context) ([]models.PendingTrust, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.PendingTrust, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out, nil
}

func (r *PendingTrustRepository) Delete(_ context.Context, transactionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, transactionID)
	return nil
}

// Deduper keeps reservations until their ttl passes.
type Deduper struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

func NewDeduper() *Deduper {
	return &Deduper{keys: make(map[string]time.Time), now: time.Now}
}

func (d *Deduper) Reserve(_ context.Context, key string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if expires, ok := d.keys[key]; ok && (ttl <= 0 || now.Before(expires)) {
		return false, nil
	}
	d.keys[key] = now.Add(ttl)
	return true, nil
}

func (d *Deduper) Release(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.keys, key)
	return nil
}

type DeadLetterQueue struct {
	mu      sync.Mutex
	Records []models.FailedRecord
}

func NewDeadLetterQueue() *DeadLetterQueue {
	return &DeadLetterQueue{}
}

func (q *DeadLetterQueue) Send(_ context.Context, records ...models.FailedRecord) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.Records = append(q.Records, records...)
	return nil
}

func (q *DeadLetterQueue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.Records)), nil
}
