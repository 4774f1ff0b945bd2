package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"carteira/internal/events"
	"carteira/internal/log"
	"carteira/internal/repository"
)

// OutboxRelayConfig holds configuration for the outbox relay
type OutboxRelayConfig struct {
	// PollInterval is how often to check for pending events (default: 5s)
	PollInterval time.Duration

	// BatchSize is the max number of events claimed per poll cycle (default: 50)
	BatchSize int

	// MaxRetries is the number of publish attempts before an event is marked failed (default: 5)
	MaxRetries int

	// RetryBaseDelay doubles with every failed attempt up to RetryMaxDelay
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// StaleAfter returns claimed events to pending when a relay died mid-batch (default: 5m)
	StaleAfter time.Duration

	// CleanupInterval is how often to delete completed events (default: 1h)
	CleanupInterval time.Duration

	// CleanupAge is how old completed events must be before cleanup (default: 24h)
	CleanupAge time.Duration
}

// DefaultOutboxRelayConfig returns sensible defaults
func DefaultOutboxRelayConfig() OutboxRelayConfig {
	return OutboxRelayConfig{
		PollInterval:    5 * time.Second,
		BatchSize:       50,
		MaxRetries:      5,
		RetryBaseDelay:  time.Second,
		RetryMaxDelay:   5 * time.Minute,
		StaleAfter:      5 * time.Minute,
		CleanupInterval: time.Hour,
		CleanupAge:      24 * time.Hour,
	}
}

// OutboxRelay publishes committed ledger events to the brokers.
type OutboxRelay struct {
	outbox    repository.OutboxRepository
	publisher events.Publisher
	config    OutboxRelayConfig
	logger    *log.Logger
	now       func() time.Time

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	stop    *sync.Once
}

func NewOutboxRelay(outbox repository.OutboxRepository, publisher events.Publisher, config OutboxRelayConfig, logger *log.Logger) *OutboxRelay {
	if publisher == nil {
		publisher = events.Discard{}
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &OutboxRelay{
		outbox:    outbox,
		publisher: publisher,
		config:    config,
		logger:    logger.WithComponent(log.ComponentOutbox),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start begins the relay loop. Returns an error if already running.
func (r *OutboxRelay) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("outbox relay is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.stop = &sync.Once{}
	r.mu.Unlock()

	// Events claimed by a relay that crashed go back to pending
	if n, err := r.outbox.ResetStale(ctx, r.now().Add(-r.config.StaleAfter)); err != nil {
		r.logger.WarnContext(ctx, "Failed to reset stale outbox events", log.FieldError, err)
	} else if n > 0 {
		r.logger.InfoContext(ctx, "Reset stale outbox events", log.FieldCount, n)
	}

	go r.runLoop(ctx)

	r.logger.InfoContext(ctx, "Outbox relay started",
		"poll_interval", r.config.PollInterval,
		"batch_size", r.config.BatchSize)
	return nil
}

// Stop gracefully stops the relay and waits for the current batch. After a
// timeout the relay still counts as running and Stop may be called again.
func (r *OutboxRelay) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	stopCh, doneCh, once := r.stopCh, r.doneCh, r.stop
	r.mu.Unlock()

	once.Do(func() { close(stopCh) })

	select {
	case <-doneCh:
		r.logger.InfoContext(ctx, "Outbox relay stopped gracefully")
	case <-ctx.Done():
		r.logger.WarnContext(ctx, "Outbox relay stop timed out")
		return ctx.Err()
	}

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	return nil
}

func (r *OutboxRelay) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *OutboxRelay) runLoop(ctx context.Context) {
	defer close(r.doneCh)

	pollTicker := time.NewTicker(r.config.PollInterval)
	defer pollTicker.Stop()

	cleanupTicker := time.NewTicker(r.config.CleanupInterval)
	defer cleanupTicker.Stop()

	r.drain(ctx)

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			r.drain(ctx)
		case <-cleanupTicker.C:
			r.cleanupCompleted(ctx)
		}
	}
}

// drain processes full batches until the outbox is empty or stopped.
func (r *OutboxRelay) drain(ctx context.Context) {
	for {
		n, err := r.ProcessOnce(ctx)
		if err != nil {
			r.logger.ErrorContext(ctx, "Failed to claim outbox batch", log.FieldError, err)
			return
		}
		if n < r.config.BatchSize {
			return
		}
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}
	}
}

// ProcessOnce claims and publishes one batch and returns its size.
func (r *OutboxRelay) ProcessOnce(ctx context.Context) (int, error) {
	msgs, err := r.outbox.Claim(ctx, r.config.BatchSize, r.now())
	if err != nil {
		return 0, err
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	r.logger.DebugContext(ctx, "Publishing outbox batch", log.FieldCount, len(msgs))
	for _, m := range msgs {
		if err := r.publisher.Publish(ctx, m.Event()); err != nil {
			r.handleFailure(ctx, m, err)
			continue
		}
		if err := r.outbox.MarkCompleted(ctx, m.ID); err != nil {
			r.logger.ErrorContext(ctx, "Failed to mark outbox event completed",
				log.FieldEventID, m.ID, log.FieldError, err)
		}
	}
	return len(msgs), nil
}

func (r *OutboxRelay) handleFailure(ctx context.Context, m repository.OutboxMessage, publishErr error) {
	attempt := m.Attempts + 1
	r.logger.WarnContext(ctx, "Outbox publish failed",
		log.FieldEventID, m.ID,
		log.FieldEventType, m.EventType,
		log.FieldAttempt, attempt,
		log.FieldError, publishErr)

	if attempt >= r.config.MaxRetries {
		if err := r.outbox.MarkFailed(ctx, m.ID, publishErr.Error()); err != nil {
			r.logger.ErrorContext(ctx, "Failed to mark outbox event failed",
				log.FieldEventID, m.ID, log.FieldError, err)
		}
		r.logger.ErrorContext(ctx, "Outbox event failed permanently after max retries",
			log.FieldEventID, m.ID,
			log.FieldMaxAttempts, r.config.MaxRetries)
		return
	}

	next := r.now().Add(r.backoff(m.Attempts))
	if err := r.outbox.Retry(ctx, m.ID, publishErr.Error(), next); err != nil {
		r.logger.ErrorContext(ctx, "Failed to schedule outbox retry",
			log.FieldEventID, m.ID, log.FieldError, err)
	}
}

// backoff is RetryBaseDelay * 2^attempts, capped at RetryMaxDelay.
func (r *OutboxRelay) backoff(attempts int) time.Duration {
	d := r.config.RetryBaseDelay
	for i := 0; i < attempts && d < r.config.RetryMaxDelay; i++ {
		d *= 2
	}
	if d > r.config.RetryMaxDelay {
		d = r.config.RetryMaxDelay
	}
	return d
}

func (r *OutboxRelay) cleanupCompleted(ctx context.Context) {
	cutoff := r.now().Add(-r.config.CleanupAge)
	n, err := r.outbox.CleanupCompleted(ctx, cutoff)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to cleanup completed outbox events", log.FieldError, err)
		return
	}
	if n > 0 {
		r.logger.DebugContext(ctx, "Cleaned up completed outbox events", log.FieldCount, n)
	}
}

// Stats returns current outbox statistics
func (r *OutboxRelay) Stats(ctx context.Context) (repository.OutboxStats, error) {
	return r.outbox.Stats(ctx)
}

// RetryFailed resets all failed events for another round of attempts
func (r *OutboxRelay) RetryFailed(ctx context.Context) (int64, error) {
	n, err := r.outbox.RetryFailed(ctx)
	if err == nil && n > 0 {
		r.logger.InfoContext(ctx, "Failed outbox events queued for retry", log.FieldCount, n)
	}
	return n, err
}
