// Package observer owns the ledger read loop: it resolves where to resume, streams payment
// operations, filters them by the account registry and hands them to listeners.
package observer

import (
	// Go Internal Packages
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	// Local Packages
	config "anchor-observer/config"
	ledger "anchor-observer/ledger"
	metrics "anchor-observer/metrics"
	models "anchor-observer/models"

	// External Packages
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

var (
	ErrAlreadyRunning = errors.New("observer already running")
	errSilence        = errors.New("stream silent")
	errStreamClosed   = errors.New("stream closed by source")
	errRetriesSpent   = errors.New("stream retries exhausted")
)

type CursorStore interface {
	Load(ctx context.Context, source string) (string, error)
	Save(ctx context.Context, source, cursor string) error
}

type AccountFilter interface {
	LookupAndUpdate(account string) bool
}

// Listener receives watched payments. An error makes the observer retry the event with
// the event backoff.
type Listener interface {
	OnReceived(ctx context.Context, event models.NormalizedPaymentEvent) error
}

type Observer struct {
	cfg       config.LedgerSource
	source    ledger.Streamer
	cursors   CursorStore
	accounts  AccountFilter
	listeners []Listener
	logger    *zap.Logger
	now       func() time.Time

	mu            sync.Mutex
	state         models.ObserverState
	cursor        string
	lastEventAt   time.Time
	silentWindows int
	reconnects    int
	lastErr       error
	cancel        context.CancelFunc
	done          chan struct{}
}

func New(cfg config.LedgerSource, source ledger.Streamer, cursors CursorStore, accounts AccountFilter, logger *zap.Logger, listeners ...Listener) *Observer {
	o := &Observer{
		cfg:       cfg,
		source:    source,
		cursors:   cursors,
		accounts:  accounts,
		listeners: listeners,
		logger:    logger.Named("observer").With(zap.String("source", cfg.Name)),
		now:       time.Now,
	}
	o.setState(models.ObserverIdle)
	return o
}

// Run starts the read loop and blocks until ctx is done. A loop that ends in
// STREAM_ERROR stays there, reporting RED, until Restart is called.
func (o *Observer) Run(ctx context.Context) error {
	if err := o.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	o.Stop()
	return nil
}

// Start launches the read loop in the background.
func (o *Observer) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done != nil {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	o.cancel, o.done = cancel, done
	go func() {
		defer close(done)
		o.loop(loopCtx)
	}()
	return nil
}

// Stop cancels the read loop and waits for it to return.
func (o *Observer) Stop() {
	o.mu.Lock()
	cancel, done := o.cancel, o.done
	o.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done

	o.mu.Lock()
	o.cancel, o.done = nil, nil
	o.mu.Unlock()
}

// Restart stops a running or failed loop and starts a fresh one bounded by ctx.
func (o *Observer) Restart(ctx context.Context) error {
	o.Stop()
	o.mu.Lock()
	o.reconnects, o.silentWindows, o.lastErr = 0, 0, nil
	o.mu.Unlock()
	o.setState(models.ObserverIdle)
	o.logger.Info("observer restarted")
	return o.Start(ctx)
}

func (o *Observer) Name() string {
	return o.cfg.Name
}

func (o *Observer) Health() models.ObserverHealth {
	o.mu.Lock()
	defer o.mu.Unlock()

	h := models.ObserverHealth{
		Name:          o.cfg.Name,
		State:         o.state,
		Cursor:        o.cursor,
		SilentWindows: o.silentWindows,
		Reconnects:    o.reconnects,
	}
	switch o.state {
	case models.ObserverStreaming:
		h.Status = models.HealthGreen
	case models.ObserverStreamError:
		h.Status = models.HealthRed
	default:
		h.Status = models.HealthYellow
	}
	if !o.lastEventAt.IsZero() {
		t := o.lastEventAt
		h.LastEventAt = &t
	}
	if o.lastErr != nil {
		h.LastError = o.lastErr.Error()
	}
	return h
}

func (o *Observer) loop(ctx context.Context) {
	o.setCursor(o.resolveCursor(ctx))

	streamBackoff := o.newBackoff(o.cfg.InitialStreamBackoff, o.cfg.MaxStreamBackoff)
	failures := 0
	for {
		o.setState(models.ObserverStreaming)
		o.touch()

		progressed := false
		err := o.stream(ctx, func() {
			if !progressed {
				progressed = true
				streamBackoff.Reset()
				failures = 0
			}
		})
		if ctx.Err() != nil {
			o.setState(models.ObserverIdle)
			return
		}

		if errors.Is(err, errSilence) {
			o.reconnect("silence")
			continue
		}
		if err == nil {
			err = errStreamClosed
		}

		failures++
		o.fail(err)
		if o.cfg.MaxStreamRetries > 0 && failures > o.cfg.MaxStreamRetries {
			o.fail(fmt.Errorf("%w after %d attempts: %v", errRetriesSpent, failures, err))
			o.logger.Error("observer stopped, restart required", zap.Int("failures", failures), zap.Error(err))
			return
		}

		wait := streamBackoff.NextBackOff()
		o.logger.Warn("stream failed, reconnecting", zap.Error(err), zap.Duration("backoff", wait), zap.Int("failures", failures))
		select {
		case <-ctx.Done():
			o.setState(models.ObserverIdle)
			return
		case <-time.After(wait):
		}
		o.reconnect("error")
	}
}

// resolveCursor prefers the persisted cursor, then one just behind the latest ledger
// record. Without either the stream starts from the source's default position.
func (o *Observer) resolveCursor(ctx context.Context) string {
	cursor, err := o.cursors.Load(ctx, o.cfg.Name)
	if err != nil {
		o.logger.Warn("failed to load persisted cursor", zap.Error(err))
	}
	if cursor != "" {
		o.logger.Info("resuming from persisted cursor", zap.String("cursor", cursor))
		return cursor
	}

	lookupCtx, cancel := context.WithTimeout(ctx, o.requestTimeout())
	defer cancel()
	cursor, err = o.source.LatestCursor(lookupCtx)
	switch {
	case err != nil:
		o.logger.Warn("degraded start: latest ledger record unavailable, streaming without cursor", zap.Error(err))
		return ""
	case cursor == "":
		o.logger.Warn("degraded start: ledger returned no records, streaming without cursor")
		return ""
	}
	o.logger.Info("starting from latest ledger record", zap.String("cursor", cursor))
	return cursor
}

// stream runs one connection of the source stream guarded by the silence watchdog.
// onProgress runs whenever the connection moves the cursor.
func (o *Observer) stream(ctx context.Context, onProgress func()) error {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var silenced atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.watch(streamCtx, cancel, &silenced)
	}()

	err := o.source.StreamOperations(streamCtx, o.Cursor(), func(ctx context.Context, op ledger.Operation) error {
		return o.handle(ctx, op, onProgress)
	})
	cancel()
	wg.Wait()

	if silenced.Load() && ctx.Err() == nil {
		return errSilence
	}
	return err
}

// watch cancels the stream once SilenceTimeoutRetries consecutive check windows passed
// with nothing received for longer than SilenceTimeout.
func (o *Observer) watch(ctx context.Context, cancel context.CancelFunc, silenced *atomic.Bool) {
	ticker := time.NewTicker(o.cfg.SilenceCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		o.mu.Lock()
		quiet := o.now().Sub(o.lastEventAt)
		if quiet < o.cfg.SilenceTimeout {
			o.silentWindows = 0
			o.mu.Unlock()
			continue
		}
		o.silentWindows++
		windows := o.silentWindows
		o.mu.Unlock()

		o.logger.Warn("stream silent", zap.Duration("quiet", quiet), zap.Int("windows", windows))
		if windows >= o.cfg.SilenceTimeoutRetries {
			silenced.Store(true)
			cancel()
			return
		}
	}
}

func (o *Observer) handle(ctx context.Context, op ledger.Operation, onProgress func()) error {
	o.touch()

	if !CursorAfter(op.PagingToken, o.Cursor()) {
		metrics.ObserverOperations.WithLabelValues(o.cfg.Name, "stale").Inc()
		return nil
	}

	event, err := ledger.Normalize(op)
	if err != nil {
		o.logger.Debug("operation dropped", zap.String("operation", op.ID), zap.Error(err))
		metrics.ObserverOperations.WithLabelValues(o.cfg.Name, "unsupported").Inc()
		o.advance(ctx, op.PagingToken)
		onProgress()
		return nil
	}

	from := o.accounts.LookupAndUpdate(event.From)
	to := o.accounts.LookupAndUpdate(event.To)
	if !from && !to {
		metrics.ObserverOperations.WithLabelValues(o.cfg.Name, "unwatched").Inc()
		o.advance(ctx, op.PagingToken)
		onProgress()
		return nil
	}

	if err := o.deliver(ctx, event); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.logger.Error("event dropped after retries",
			zap.String("operation", event.ID),
			zap.String("tx_hash", event.TransactionHash),
			zap.Error(err),
		)
		metrics.ObserverOperations.WithLabelValues(o.cfg.Name, "dropped").Inc()
	} else {
		metrics.ObserverOperations.WithLabelValues(o.cfg.Name, "delivered").Inc()
	}
	o.advance(ctx, op.PagingToken)
	onProgress()
	return nil
}

func (o *Observer) deliver(ctx context.Context, event models.NormalizedPaymentEvent) error {
	var b backoff.BackOff = o.newBackoff(o.cfg.InitialEventBackoff, o.cfg.MaxEventBackoff)
	if o.cfg.MaxEventRetries > 0 {
		b = backoff.WithMaxRetries(b, uint64(o.cfg.MaxEventRetries))
	}
	b = backoff.WithContext(b, ctx)

	notify := func(err error, wait time.Duration) {
		o.logger.Warn("listener failed, retrying event",
			zap.String("operation", event.ID),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	}
	return backoff.RetryNotify(func() error {
		for _, l := range o.listeners {
			if err := l.OnReceived(ctx, event); err != nil {
				return err
			}
		}
		return nil
	}, b, notify)
}

// advance moves the cursor. A failed save keeps the in-memory cursor; the next processed
// operation persists a later one.
func (o *Observer) advance(ctx context.Context, cursor string) {
	o.setCursor(cursor)

	saveCtx, cancel := context.WithTimeout(ctx, o.requestTimeout())
	defer cancel()
	if err := o.cursors.Save(saveCtx, o.cfg.Name, cursor); err != nil {
		o.logger.Warn("failed to persist cursor", zap.String("cursor", cursor), zap.Error(err))
	}
}

func (o *Observer) newBackoff(initial, max time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (o *Observer) requestTimeout() time.Duration {
	if o.cfg.RequestTimeout > 0 {
		return o.cfg.RequestTimeout
	}
	return 30 * time.Second
}

func (o *Observer) Cursor() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cursor
}

func (o *Observer) setCursor(cursor string) {
	o.mu.Lock()
	o.cursor = cursor
	o.mu.Unlock()
}

func (o *Observer) touch() {
	o.mu.Lock()
	o.lastEventAt = o.now()
	o.silentWindows = 0
	o.mu.Unlock()
}

func (o *Observer) fail(err error) {
	o.mu.Lock()
	o.lastErr = err
	o.mu.Unlock()
	o.setState(models.ObserverStreamError)
}

func (o *Observer) reconnect(reason string) {
	o.mu.Lock()
	o.reconnects++
	o.mu.Unlock()
	metrics.ObserverReconnects.WithLabelValues(o.cfg.Name, reason).Inc()
	o.setState(models.ObserverReconnecting)
}

func (o *Observer) setState(state models.ObserverState) {
	o.mu.Lock()
	previous := o.state
	o.state = state
	o.mu.Unlock()

	if previous != "" {
		metrics.ObserverState.WithLabelValues(o.cfg.Name, string(previous)).Set(0)
	}
	metrics.ObserverState.WithLabelValues(o.cfg.Name, string(state)).Set(1)
	if previous != state {
		o.logger.Debug("observer state changed", zap.String("from", string(previous)), zap.String("to", string(state)))
	}
}
