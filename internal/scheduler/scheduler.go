package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/sharma-sourabh3435/promptqueue/internal/models"
	"github.com/sharma-sourabh3435/promptqueue/internal/storage"
)

// Sender submits a prompt into an external channel. It returns once the
// channel acknowledged (or refused) the prompt; generation runs asynchronously.
type Sender interface {
	SendPrompt(ctx context.Context, channelID, prompt string) (bool, error)
}

// ChannelOpener opens and releases external channels. Channel.WorkerIndex
// in the result is the position within the requested batch.
type ChannelOpener interface {
	OpenChannels(ctx context.Context, count int) ([]models.Channel, error)
	CloseChannel(ctx context.Context, channelID string) error
}

// Notifier receives scheduler events after each transition
type Notifier interface {
	Notify(ctx context.Context, event models.Event)
}

// Clock abstracts time so the dispatch timers can be driven in tests
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Config holds scheduler configuration
type Config struct {
	Storage  storage.Repository
	Sender   Sender
	Opener   ChannelOpener
	Notifier Notifier
	Clock    Clock
	Logger   arbor.ILogger

	ThresholdPercent       int
	Pipelining             bool
	GuardCooldown          time.Duration
	ThresholdDispatchDelay time.Duration
	ErrorRetryDelay        time.Duration
	SendDelay              time.Duration
	SendTimeout            time.Duration
	AutoResetStuck         bool
	MaxWorkers             int
}

// Scheduler owns the current session and applies every transition to it.
// All state changes happen under mu, each followed by a full snapshot save.
type Scheduler struct {
	config   Config
	storage  storage.Repository
	sender   Sender
	opener   ChannelOpener
	notifier Notifier
	clock    Clock
	logger   arbor.ILogger

	mu      sync.Mutex
	session *models.Session
	// log carries the current session id as correlation id
	log     arbor.ILogger
	outbox  []models.Event
	// threshold dispatches scheduled but not yet fired, by worker id
	thresholdTimers map[string]func() bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a new scheduler instance
func NewScheduler(config Config) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	if config.Clock == nil {
		config.Clock = realClock{}
	}
	if config.Logger == nil {
		config.Logger = arbor.NewLogger()
	}
	if config.Storage == nil {
		config.Storage = storage.NewMemoryStorage()
	}
	if config.ThresholdPercent <= 0 {
		config.ThresholdPercent = models.DefaultThresholdPercent
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = models.DefaultMaxWorkers
	}

	return &Scheduler{
		config:          config,
		storage:         config.Storage,
		sender:          config.Sender,
		opener:          config.Opener,
		notifier:        config.Notifier,
		clock:           config.Clock,
		logger:          config.Logger,
		log:             config.Logger,
		thresholdTimers: make(map[string]func() bool),
		ctx:             ctx,
		cancel:          cancel,
	}
}

// setSession replaces the current session. Callers hold mu.
func (s *Scheduler) setSession(session *models.Session) {
	s.session = session
	if session == nil {
		s.log = s.logger
		return
	}
	s.log = s.logger.WithCorrelationId(session.ID)
}

// Stop cancels outstanding sends and timers. The session stays persisted.
func (s *Scheduler) Stop() {
	s.logger.Info().Msg("Stopping scheduler")
	s.cancel()

	s.mu.Lock()
	s.stopThresholdTimers()
	s.mu.Unlock()
}

// Snapshot returns a copy of the current session
func (s *Scheduler) Snapshot() (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, ErrNoSession
	}
	return s.session.Clone(), nil
}

// Summary returns the progress view of the current session
func (s *Scheduler) Summary() (models.SessionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return models.SessionSummary{}, ErrNoSession
	}
	return s.session.Summary(), nil
}

// FailedJobs returns the failed list for bulk copy
func (s *Scheduler) FailedJobs() ([]models.FailedJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, ErrNoSession
	}
	return append([]models.FailedJob(nil), s.session.Failed...), nil
}

// GetStats returns current scheduler statistics
func (s *Scheduler) GetStats() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := map[string]interface{}{
		"has_session":       s.session != nil,
		"threshold_percent": s.config.ThresholdPercent,
		"pipelining":        s.config.Pipelining,
		"guard_cooldown":    s.config.GuardCooldown.String(),
	}
	if s.session != nil {
		completed, total := s.session.Totals()
		stats["session_id"] = s.session.ID
		stats["is_running"] = s.session.IsRunning
		stats["completed"] = completed
		stats["total"] = total
		stats["workers"] = len(s.session.Workers)
	}
	return stats
}

// update runs fn against the current session under the lock and then
// publishes the events it produced.
func (s *Scheduler) update(ctx context.Context, fn func(session *models.Session) error) error {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return ErrNoSession
	}
	err := fn(s.session)
	events := s.takeEvents()
	s.mu.Unlock()

	s.publish(ctx, events)
	return err
}

// react is update for timer and goroutine callbacks. It is a no-op when the
// session it was scheduled for has since been cleared or replaced.
func (s *Scheduler) react(sessionID string, fn func(ctx context.Context, session *models.Session)) {
	if s.ctx.Err() != nil {
		return
	}
	s.mu.Lock()
	if s.session == nil || s.session.ID != sessionID {
		s.mu.Unlock()
		return
	}
	fn(s.ctx, s.session)
	events := s.takeEvents()
	s.mu.Unlock()

	s.publish(s.ctx, events)
}

// persist writes the full session snapshot. Failures are logged and the
// in-memory state stays authoritative.
func (s *Scheduler) persist(ctx context.Context) {
	if s.session == nil {
		return
	}
	if err := s.storage.Save(ctx, s.session); err != nil {
		s.logger.Error().Err(err).Str("session_id", s.session.ID).Msg("Failed to persist session")
	}
}

func (s *Scheduler) emit(event models.Event) {
	if s.session != nil {
		event.SessionID = s.session.ID
		event.Label = s.session.Label
	}
	event.Time = s.clock.Now()
	s.outbox = append(s.outbox, event)
}

func (s *Scheduler) takeEvents() []models.Event {
	events := s.outbox
	s.outbox = nil
	return events
}

func (s *Scheduler) publish(ctx context.Context, events []models.Event) {
	if s.notifier == nil {
		return
	}
	for _, event := range events {
		s.notifier.Notify(ctx, event)
	}
}

func (s *Scheduler) stopThresholdTimers() {
	for workerID, stop := range s.thresholdTimers {
		stop()
		delete(s.thresholdTimers, workerID)
	}
}

func (s *Scheduler) stopThresholdTimer(workerID string) {
	if stop, ok := s.thresholdTimers[workerID]; ok {
		stop()
		delete(s.thresholdTimers, workerID)
	}
}
