package observer

import (
	// Go Internal Packages
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	// Local Packages
	config "anchor-observer/config"
	ledger "anchor-observer/ledger"
	models "anchor-observer/models"
	memory "anchor-observer/repositories/memory"

	// External Packages
	"go.uber.org/zap"
)

const (
	watched   = "GWATCHED"
	unwatched = "GSTRANGER"
)

type session func(ctx context.Context, handler ledger.OperationHandler) error

type streamerStub struct {
	latest    string
	latestErr error

	mu       sync.Mutex
	sessions []session
	cursors  []string
}

func (s *streamerStub) LatestCursor(context.Context) (string, error) {
	return s.latest, s.latestErr
}

func (s *streamerStub) StreamOperations(ctx context.Context, cursor string, handler ledger.OperationHandler) error {
	s.mu.Lock()
	s.cursors = append(s.cursors, cursor)
	var next session
	if len(s.sessions) > 0 {
		next, s.sessions = s.sessions[0], s.sessions[1:]
	}
	s.mu.Unlock()

	if next == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return next(ctx, handler)
}

func (s *streamerStub) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cursors...)
}

type filterStub map[string]bool

func (f filterStub) LookupAndUpdate(account string) bool {
	return f[account]
}

type listenerStub struct {
	mu       sync.Mutex
	failures int
	events   []models.NormalizedPaymentEvent
	attempts int
}

func (l *listenerStub) OnReceived(_ context.Context, event models.NormalizedPaymentEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts++
	if l.failures > 0 {
		l.failures--
		return errors.New("transient")
	}
	l.events = append(l.events, event)
	return nil
}

func (l *listenerStub) received() []models.NormalizedPaymentEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.NormalizedPaymentEvent(nil), l.events...)
}

func testConfig() config.LedgerSource {
	return config.LedgerSource{
		Name:                  "test",
		HorizonURL:            "http://horizon.invalid",
		RequestTimeout:        time.Second,
		SilenceCheckInterval:  time.Hour,
		SilenceTimeout:        time.Hour,
		SilenceTimeoutRetries: 2,
		InitialStreamBackoff:  time.Millisecond,
		MaxStreamBackoff:      2 * time.Millisecond,
		InitialEventBackoff:   time.Millisecond,
		MaxEventBackoff:       2 * time.Millisecond,
		MaxEventRetries:       5,
	}
}

func payment(token, to string) ledger.Operation {
	return ledger.Operation{
		ID:              token,
		PagingToken:     token,
		Type:            ledger.OpPayment,
		TransactionHash: "hash-" + token,
		Successful:      true,
		From:            unwatched,
		To:              to,
		AssetType:       "native",
		Amount:          "1.0000000",
	}
}

func deliver(ops ...ledger.Operation) session {
	return func(ctx context.Context, handler ledger.OperationHandler) error {
		for _, op := range ops {
			if err := handler(ctx, op); err != nil {
				return err
			}
		}
		<-ctx.Done()
		return ctx.Err()
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestResumeSkipsOperationsAtOrBeforeCursor(t *testing.T) {
	ctx := context.Background()
	cursors := memory.NewCursorRepository()
	_ = cursors.Save(ctx, "test", "100")

	source := &streamerStub{sessions: []session{deliver(
		payment("99", watched),
		payment("100", watched),
		payment("101", watched),
		payment("102", watched),
	)}}
	listener := &listenerStub{}
	o := New(testConfig(), source, cursors, filterStub{watched: true}, zap.NewNop(), listener)

	if err := o.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer o.Stop()

	eventually(t, "two deliveries", func() bool { return len(listener.received()) == 2 })
	got := listener.received()
	if got[0].Cursor != "101" || got[1].Cursor != "102" {
		t.Fatalf("expected 101 and 102, got %s and %s", got[0].Cursor, got[1].Cursor)
	}
	if calls := source.calls(); calls[0] != "100" {
		t.Fatalf("stream must start from persisted cursor, got %q", calls[0])
	}
	eventually(t, "cursor persisted", func() bool {
		c, _ := cursors.Load(ctx, "test")
		return c == "102"
	})
	if h := o.Health(); h.Status != models.HealthGreen || h.State != models.ObserverStreaming {
		t.Fatalf("expected GREEN streaming, got %+v", h)
	}
}

func TestUnwatchedOperationsAdvanceCursorWithoutDelivery(t *testing.T) {
	ctx := context.Background()
	cursors := memory.NewCursorRepository()
	source := &streamerStub{latest: "9", sessions: []session{deliver(
		payment("10", unwatched),
		ledger.Operation{ID: "11", PagingToken: "11", Type: ledger.OpPayment, To: watched, AssetType: "liquidity_pool_shares", Amount: "1"},
		payment("12", watched),
	)}}
	listener := &listenerStub{}
	o := New(testConfig(), source, cursors, filterStub{watched: true}, zap.NewNop(), listener)
	_ = o.Start(ctx)
	defer o.Stop()

	eventually(t, "cursor at 12", func() bool { return o.Cursor() == "12" })
	got := listener.received()
	if len(got) != 1 || got[0].Cursor != "12" {
		t.Fatalf("only the watched payment must reach listeners, got %+v", got)
	}
	if calls := source.calls(); calls[0] != "9" {
		t.Fatalf("expected latest cursor 9, got %q", calls[0])
	}
}

func TestDegradedStartStreamsWithoutCursor(t *testing.T) {
	source := &streamerStub{latestErr: errors.New("horizon down")}
	o := New(testConfig(), source, memory.NewCursorRepository(), filterStub{}, zap.NewNop())
	_ = o.Start(context.Background())
	defer o.Stop()

	eventually(t, "stream opened", func() bool { return len(source.calls()) == 1 })
	if c := source.calls()[0]; c != "" {
		t.Fatalf("expected empty cursor, got %q", c)
	}
}

func TestEventRetriedUntilListenerSucceeds(t *testing.T) {
	source := &streamerStub{sessions: []session{deliver(payment("5", watched))}}
	listener := &listenerStub{failures: 2}
	o := New(testConfig(), source, memory.NewCursorRepository(), filterStub{watched: true}, zap.NewNop(), listener)
	_ = o.Start(context.Background())
	defer o.Stop()

	eventually(t, "delivery", func() bool { return len(listener.received()) == 1 })
	listener.mu.Lock()
	defer listener.mu.Unlock()
	if listener.attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", listener.attempts)
	}
}

func TestEventDroppedAfterMaxRetries(t *testing.T) {
	cfg := testConfig()
	cfg.MaxEventRetries = 2
	source := &streamerStub{sessions: []session{deliver(payment("5", watched), payment("6", watched))}}
	listener := &listenerStub{failures: 3}
	o := New(cfg, source, memory.NewCursorRepository(), filterStub{watched: true}, zap.NewNop(), listener)
	_ = o.Start(context.Background())
	defer o.Stop()

	eventually(t, "next event delivered", func() bool { return len(listener.received()) == 1 })
	if got := listener.received()[0].Cursor; got != "6" {
		t.Fatalf("expected the stream to move on to 6, got %s", got)
	}
}

func TestSilenceWatchdogForcesReconnect(t *testing.T) {
	cfg := testConfig()
	cfg.SilenceCheckInterval = 5 * time.Millisecond
	cfg.SilenceTimeout = 10 * time.Millisecond
	cfg.SilenceTimeoutRetries = 2

	source := &streamerStub{}
	o := New(cfg, source, memory.NewCursorRepository(), filterStub{}, zap.NewNop())
	_ = o.Start(context.Background())
	defer o.Stop()

	eventually(t, "forced reconnect", func() bool { return len(source.calls()) >= 2 })
	if h := o.Health(); h.Reconnects < 1 {
		t.Fatalf("expected reconnects to be counted, got %+v", h)
	}
}

func TestStreamErrorIsTerminalAfterMaxRetries(t *testing.T) {
	cfg := testConfig()
	cfg.MaxStreamRetries = 2
	broken := func(context.Context, ledger.OperationHandler) error { return errors.New("connection reset") }

	source := &streamerStub{sessions: []session{broken, broken, broken}}
	o := New(cfg, source, memory.NewCursorRepository(), filterStub{}, zap.NewNop())
	_ = o.Start(context.Background())
	defer o.Stop()

	eventually(t, "RED health", func() bool { return o.Health().Status == models.HealthRed && len(source.calls()) == 3 })
	time.Sleep(20 * time.Millisecond)
	if n := len(source.calls()); n != 3 {
		t.Fatalf("terminal observer must not reconnect, saw %d stream calls", n)
	}
	if h := o.Health(); h.State != models.ObserverStreamError || h.LastError == "" {
		t.Fatalf("expected STREAM_ERROR with an error, got %+v", h)
	}

	if err := o.Restart(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	eventually(t, "GREEN after restart", func() bool { return o.Health().Status == models.HealthGreen })
}

func TestProgressingConnectionsResetStreamRetries(t *testing.T) {
	cfg := testConfig()
	cfg.MaxStreamRetries = 2

	progressThenDrop := func(first int) session {
		return func(ctx context.Context, handler ledger.OperationHandler) error {
			for i := first; i < first+10; i++ {
				if err := handler(ctx, payment(strconv.Itoa(i), unwatched)); err != nil {
					return err
				}
			}
			return errors.New("connection reset")
		}
	}
	source := &streamerStub{sessions: []session{
		progressThenDrop(100), progressThenDrop(110), progressThenDrop(120), progressThenDrop(130),
	}}
	o := New(cfg, source, memory.NewCursorRepository(), filterStub{watched: true}, zap.NewNop())
	_ = o.Start(context.Background())
	defer o.Stop()

	eventually(t, "fifth connection", func() bool { return len(source.calls()) == 5 })
	eventually(t, "GREEN streaming", func() bool {
		h := o.Health()
		return h.Status == models.HealthGreen && h.State == models.ObserverStreaming
	})
	if c := o.Cursor(); c != "139" {
		t.Fatalf("expected cursor 139, got %q", c)
	}
	if calls := source.calls(); calls[4] != "139" {
		t.Fatalf("expected reconnect from 139, got %q", calls[4])
	}
}

func TestStopReturnsToIdle(t *testing.T) {
	o := New(testConfig(), &streamerStub{}, memory.NewCursorRepository(), filterStub{}, zap.NewNop())
	ctx := context.Background()
	_ = o.Start(ctx)
	if err := o.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	o.Stop()
	if h := o.Health(); h.State != models.ObserverIdle || h.Status != models.HealthYellow {
		t.Fatalf("expected IDLE/YELLOW after stop, got %+v", h)
	}
}

func TestCursorAfter(t *testing.T) {
	tests := []struct {
		token, cursor string
		want          bool
	}{
		{"101", "100", true},
		{"100", "100", false},
		{"99", "100", false},
		{"1", "", true},
		{"", "5", false},
		{"123456789012345678901", "99", true},
	}
	for _, tt := range tests {
		if got := CursorAfter(tt.token, tt.cursor); got != tt.want {
			t.Errorf("CursorAfter(%q, %q) = %v, want %v", tt.token, tt.cursor, got, tt.want)
		}
	}
}
