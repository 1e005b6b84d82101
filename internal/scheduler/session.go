package scheduler

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sharma-sourabh3435/promptqueue/internal/models"
)

// PartitionPrompts splits prompts into n contiguous slices of ceil(len/n).
// Trailing slices may be shorter or empty.
func PartitionPrompts(prompts []string, n int) [][]string {
	if n < 1 {
		return nil
	}
	size := (len(prompts) + n - 1) / n

	parts := make([][]string, n)
	for i := 0; i < n; i++ {
		start := min(i*size, len(prompts))
		end := min(start+size, len(prompts))
		parts[i] = prompts[start:end]
	}
	return parts
}

// CreateSession builds a session from an API request
func (s *Scheduler) CreateSession(ctx context.Context, req models.CreateSessionRequest) (*models.Session, error) {
	prompts := cleanPrompts(req.Prompts)
	if len(prompts) == 0 {
		prompts = models.ParsePrompts(req.Text)
	}

	if req.Mode == models.ModeParallel {
		return s.CreateParallelSession(ctx, prompts, req.WorkerCount, req.Label)
	}
	return s.CreateSequentialSession(ctx, prompts, req.Label)
}

// CreateSequentialSession creates a session with one worker holding every prompt
func (s *Scheduler) CreateSequentialSession(ctx context.Context, prompts []string, label string) (*models.Session, error) {
	prompts = cleanPrompts(prompts)
	if len(prompts) == 0 {
		return nil, ErrNoPrompts
	}

	session := s.newSession(models.ModeSequential, label)
	session.Workers = []*models.Worker{s.newWorker(0, prompts, 1)}
	return s.install(ctx, session)
}

// CreateParallelSession partitions the prompt pool across n workers.
// Sequence numbers are positions in the pool.
func (s *Scheduler) CreateParallelSession(ctx context.Context, prompts []string, n int, label string) (*models.Session, error) {
	prompts = cleanPrompts(prompts)
	if len(prompts) == 0 {
		return nil, ErrNoPrompts
	}
	if n < 1 || n > s.config.MaxWorkers {
		return nil, fmt.Errorf("%w: %d (allowed 1-%d)", ErrInvalidWorkerCount, n, s.config.MaxWorkers)
	}

	session := s.newSession(models.ModeParallel, label)
	session.Prompts = prompts

	offset := 0
	for i, part := range PartitionPrompts(prompts, n) {
		session.Workers = append(session.Workers, s.newWorker(i, part, offset+1))
		offset += len(part)
	}
	return s.install(ctx, session)
}

func (s *Scheduler) newSession(mode models.SessionMode, label string) *models.Session {
	now := s.clock.Now()
	if label == "" {
		label = fmt.Sprintf("%s batch %s", mode, now.Format("2006-01-02 15:04"))
	}
	return &models.Session{
		ID:        uuid.New().String(),
		Mode:      mode,
		Label:     label,
		CreatedAt: now,
	}
}

func (s *Scheduler) newWorker(index int, prompts []string, firstSeq int) *models.Worker {
	now := s.clock.Now()
	w := &models.Worker{
		ID:     fmt.Sprintf("worker-%d", index+1),
		Index:  index,
		Status: models.WorkerStatusPending,
	}
	for i, prompt := range prompts {
		w.Queue.Jobs = append(w.Queue.Jobs, &models.Job{
			ID:             uuid.New().String(),
			SequenceNumber: firstSeq + i,
			Prompt:         prompt,
			Status:         models.JobStatusPending,
			CreatedAt:      now,
		})
	}
	return w
}

// install replaces the current session with a new one. A running session
// must be paused or cleared first.
func (s *Scheduler) install(ctx context.Context, session *models.Session) (*models.Session, error) {
	s.mu.Lock()
	if s.session != nil && s.session.IsRunning {
		s.mu.Unlock()
		return nil, ErrSessionExists
	}
	released := s.detachAll()
	s.setSession(session)
	s.persist(ctx)
	snapshot := session.Clone()
	s.mu.Unlock()

	s.releaseChannels(ctx, released)

	total := 0
	for _, w := range session.Workers {
		total += w.Queue.Total()
	}
	s.logger.Info().
		Str("session_id", session.ID).
		Str("mode", string(session.Mode)).
		Int("workers", len(session.Workers)).
		Int("prompts", total).
		Msg("Session created")

	return snapshot, nil
}

func cleanPrompts(prompts []string) []string {
	var cleaned []string
	for _, p := range prompts {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return cleaned
}
