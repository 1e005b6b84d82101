package signals

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/sharma-sourabh3435/promptqueue/internal/models"
)

// Handler applies a signal to the session. ResolveSignal names the job an
// unreferenced signal belongs to, so the dedup key is per job.
type Handler interface {
	ResolveSignal(signal models.Signal) models.Signal
	HandleSignal(ctx context.Context, signal models.Signal) error
}

// dedupCache is the subset of the ristretto cache the bus uses
type dedupCache interface {
	Get(key string) (string, bool)
	SetWithTTL(key, value string, cost int64, ttl time.Duration) bool
	Del(key string)
	Wait()
	Close()
}

// Bus is the single entry point for observer signals. The observer reports
// the same event over several transports; the bus forwards the first copy
// and drops the rest for the dedup window.
type Bus struct {
	handler  Handler
	window   time.Duration
	seen     dedupCache
	mu       sync.Mutex
	refused  map[string]time.Time // keys the cache would not admit, by expiry
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewBus creates a bus forwarding to handler
func NewBus(handler Handler, window time.Duration, logger arbor.ILogger) (*Bus, error) {
	if window <= 0 {
		window = 5 * time.Second
	}
	seen, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: 100000,
		MaxCost:     10000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create dedup cache: %w", err)
	}

	return &Bus{
		handler:  handler,
		window:   window,
		seen:     seen,
		refused:  make(map[string]time.Time),
		validate: validator.New(),
		logger:   logger,
	}, nil
}

// Publish validates and forwards a signal. It reports false when the
// signal was a duplicate and was dropped.
func (b *Bus) Publish(ctx context.Context, signal models.Signal, source string) (bool, error) {
	if err := b.validate.Struct(signal); err != nil {
		return false, fmt.Errorf("invalid signal: %w", err)
	}

	signal = b.handler.ResolveSignal(signal)
	key := signal.DedupKey()
	if !b.claim(key, source) {
		b.logger.Debug().
			Str("key", key).
			Str("source", source).
			Msg("Duplicate signal dropped")
		return false, nil
	}

	b.logger.Debug().
		Str("kind", string(signal.Kind)).
		Str("worker_id", signal.WorkerID).
		Str("channel_id", signal.ChannelID).
		Str("job_id", signal.JobID).
		Int("sequence", signal.SequenceNumber).
		Str("source", source).
		Msg("Signal received")

	if err := b.handler.HandleSignal(ctx, signal); err != nil {
		// a rejected signal may be redelivered once the session catches up
		b.release(key)
		return true, err
	}
	return true, nil
}

// claim records key and reports whether this was its first sighting
func (b *Bus) claim(key, source string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, found := b.seen.Get(key); found {
		return false
	}
	now := time.Now()
	if until, found := b.refused[key]; found && now.Before(until) {
		return false
	}

	if !b.seen.SetWithTTL(key, source, 1, b.window) {
		b.logger.Debug().Str("key", key).Msg("Dedup cache refused key, tracking it locally")
		for k, until := range b.refused {
			if !now.Before(until) {
				delete(b.refused, k)
			}
		}
		b.refused[key] = now.Add(b.window)
		return true
	}
	b.seen.Wait()
	return true
}

func (b *Bus) release(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seen.Del(key)
	b.seen.Wait()
	delete(b.refused, key)
}

// Close releases the dedup cache
func (b *Bus) Close() {
	b.seen.Close()
}
