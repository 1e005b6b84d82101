package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/sharma-sourabh3435/promptqueue/internal/models"
)

// Start marks the session running, opens missing channels and dispatches
// the first pending job of every worker.
func (s *Scheduler) Start(ctx context.Context) error {
	return s.update(ctx, func(session *models.Session) error {
		if session.IsRunning {
			return nil
		}
		if session.AllDone() {
			s.logger.Info().Str("session_id", session.ID).Msg("Nothing left to run")
			return nil
		}

		session.IsRunning = true
		session.FinishedAt = nil
		s.persist(ctx)

		s.logger.Info().
			Str("session_id", session.ID).
			Str("mode", string(session.Mode)).
			Int("workers", len(session.Workers)).
			Msg("Session started")

		s.openChannels(ctx)
		for _, w := range session.Workers {
			s.dispatchNext(ctx, w)
		}
		return nil
	})
}

// Pause stops further dispatches. Outstanding jobs still accept signals.
func (s *Scheduler) Pause(ctx context.Context) error {
	return s.update(ctx, func(session *models.Session) error {
		if !session.IsRunning {
			return nil
		}
		session.IsRunning = false
		s.stopThresholdTimers()
		s.persist(ctx)

		s.logger.Info().Str("session_id", session.ID).Msg("Session paused")
		return nil
	})
}

// PauseWorker stops dispatches for one worker
func (s *Scheduler) PauseWorker(ctx context.Context, workerID string) error {
	return s.withWorker(ctx, workerID, func(session *models.Session, w *models.Worker) error {
		w.IsPaused = true
		s.stopThresholdTimer(w.ID)
		s.persist(ctx)

		s.logger.Info().Str("worker_id", w.ID).Msg("Worker paused")
		return nil
	})
}

// ResumeWorker clears the pause flag and fills the slot if it is free
func (s *Scheduler) ResumeWorker(ctx context.Context, workerID string) error {
	return s.withWorker(ctx, workerID, func(session *models.Session, w *models.Worker) error {
		w.IsPaused = false
		s.persist(ctx)

		s.logger.Info().Str("worker_id", w.ID).Msg("Worker resumed")
		s.dispatchNext(ctx, w)
		return nil
	})
}

// ResetWorker returns every job of the worker to pending
func (s *Scheduler) ResetWorker(ctx context.Context, workerID string) error {
	return s.withWorker(ctx, workerID, func(session *models.Session, w *models.Worker) error {
		s.stopThresholdTimer(w.ID)
		for _, job := range w.Queue.Jobs {
			job.Reset()
			session.RemoveFailed(job.ID)
		}
		w.DispatchGuardUntil = time.Time{}
		w.RefreshCompleted()
		s.refreshWorkerStatus(w)
		s.persist(ctx)

		s.logger.Info().Str("worker_id", w.ID).Int("jobs", w.Queue.Total()).Msg("Worker reset")
		s.dispatchNext(ctx, w)
		return nil
	})
}

// ResetSession returns every job to pending and stops the run. Channels stay bound.
func (s *Scheduler) ResetSession(ctx context.Context) error {
	return s.update(ctx, func(session *models.Session) error {
		s.stopThresholdTimers()
		session.IsRunning = false
		session.FinishedAt = nil
		session.Failed = nil
		session.ManualPaste = nil
		for _, w := range session.Workers {
			for _, job := range w.Queue.Jobs {
				job.Reset()
			}
			w.IsPaused = false
			w.DispatchGuardUntil = time.Time{}
			w.RefreshCompleted()
			s.refreshWorkerStatus(w)
		}
		s.persist(ctx)

		s.logger.Info().Str("session_id", session.ID).Msg("Session reset")
		return nil
	})
}

// RetryJob puts a failed job back in its queue
func (s *Scheduler) RetryJob(ctx context.Context, jobID string) error {
	return s.withJob(ctx, jobID, func(session *models.Session, w *models.Worker, job *models.Job) error {
		if job.Status != models.JobStatusError {
			return fmt.Errorf("%w: job %d is %s", ErrInvalidTransition, job.SequenceNumber, job.Status)
		}
		s.requeue(ctx, session, w, job)
		return nil
	})
}

// ResetJob puts a job back to pending from any state, for jobs stuck
// waiting on a signal that will never arrive.
func (s *Scheduler) ResetJob(ctx context.Context, jobID string) error {
	return s.withJob(ctx, jobID, func(session *models.Session, w *models.Worker, job *models.Job) error {
		if job.Status == models.JobStatusPending {
			return nil
		}
		s.requeue(ctx, session, w, job)
		return nil
	})
}

// RetryFailed requeues every failed job and returns how many were requeued
func (s *Scheduler) RetryFailed(ctx context.Context) (int, error) {
	count := 0
	err := s.update(ctx, func(session *models.Session) error {
		for _, w := range session.Workers {
			for _, job := range w.Queue.Jobs {
				if job.Status == models.JobStatusError {
					job.Reset()
					count++
				}
			}
			s.refreshWorkerStatus(w)
		}
		session.Failed = nil
		s.persist(ctx)

		s.logger.Info().Int("count", count).Msg("Retrying failed jobs")
		for _, w := range session.Workers {
			s.dispatchNext(ctx, w)
		}
		return nil
	})
	return count, err
}

// Clear drops the session, its snapshot and its channels
func (s *Scheduler) Clear(ctx context.Context) error {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return ErrNoSession
	}
	sessionID := s.session.ID
	released := s.detachAll()
	s.setSession(nil)
	s.outbox = nil
	err := s.storage.Clear(ctx)
	s.mu.Unlock()

	s.releaseChannels(ctx, released)
	if err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}

	s.logger.Info().Str("session_id", sessionID).Msg("Session cleared")
	return nil
}

func (s *Scheduler) requeue(ctx context.Context, session *models.Session, w *models.Worker, job *models.Job) {
	previous := job.Status
	job.Reset()
	session.RemoveFailed(job.ID)
	w.RefreshCompleted()
	s.refreshWorkerStatus(w)
	s.persist(ctx)

	s.logger.Info().
		Str("worker_id", w.ID).
		Int("sequence", job.SequenceNumber).
		Str("from", string(previous)).
		Msg("Job requeued")

	s.dispatchNext(ctx, w)
}

func (s *Scheduler) withWorker(ctx context.Context, workerID string, fn func(*models.Session, *models.Worker) error) error {
	return s.update(ctx, func(session *models.Session) error {
		w := session.Worker(workerID)
		if w == nil {
			return fmt.Errorf("%w: %s", ErrWorkerNotFound, workerID)
		}
		return fn(session, w)
	})
}

func (s *Scheduler) withJob(ctx context.Context, jobID string, fn func(*models.Session, *models.Worker, *models.Job) error) error {
	return s.update(ctx, func(session *models.Session) error {
		w, job := session.FindJob(jobID)
		if job == nil {
			return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return fn(session, w, job)
	})
}
