package scheduler

import (
	"context"
	"fmt"

	"github.com/sharma-sourabh3435/promptqueue/internal/models"
)

// HandleSignal applies one observer report to the session. Signals that
// no longer match an outstanding job are dropped, so redelivery is harmless.
func (s *Scheduler) HandleSignal(ctx context.Context, signal models.Signal) error {
	return s.update(ctx, func(session *models.Session) error {
		w := resolveWorker(session, signal)
		if w == nil {
			return fmt.Errorf("%w: %s%s", ErrWorkerNotFound, signal.WorkerID, signal.ChannelID)
		}

		switch signal.Kind {
		case models.SignalProgress:
			s.onProgress(ctx, w, signal)
		case models.SignalCompleted:
			s.onCompleted(ctx, w, signal)
		case models.SignalError:
			s.onError(ctx, w, signal)
		default:
			return fmt.Errorf("%w: %q", ErrUnknownSignal, signal.Kind)
		}
		return nil
	})
}

func resolveWorker(session *models.Session, signal models.Signal) *models.Worker {
	if signal.WorkerID != "" {
		return session.Worker(signal.WorkerID)
	}
	if signal.ChannelID != "" {
		return session.WorkerByChannel(signal.ChannelID)
	}
	return nil
}

// ResolveSignal fills in the job reference of a signal that arrived
// without one, so every copy of the same report keys to the same job.
// Signals that match nothing come back unchanged.
func (s *Scheduler) ResolveSignal(signal models.Signal) models.Signal {
	if signal.JobID != "" {
		return signal
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return signal
	}
	w := resolveWorker(s.session, signal)
	if w == nil {
		return signal
	}

	var job *models.Job
	switch {
	case signal.SequenceNumber > 0:
		for _, candidate := range w.Queue.Jobs {
			if candidate.SequenceNumber == signal.SequenceNumber {
				job = candidate
			}
		}
	default:
		job = duplicateCompletion(w, signal)
		if job == nil {
			job = matchJob(w, signal)
		}
		if job == nil && signal.Kind == models.SignalError {
			job = lastFailure(w, failureMessage(signal))
		}
	}
	if job != nil {
		signal.JobID = job.ID
	}
	return signal
}

// duplicateCompletion returns the completed job already holding the
// artifact of an unreferenced completion
func duplicateCompletion(w *models.Worker, signal models.Signal) *models.Job {
	if signal.Kind != models.SignalCompleted || signal.JobID != "" || signal.SequenceNumber != 0 || signal.ArtifactURL == "" {
		return nil
	}
	for _, job := range w.Queue.Jobs {
		if job.Status == models.JobStatusCompleted && job.ResultURL == signal.ArtifactURL {
			return job
		}
	}
	return nil
}

// lastFailure returns the most recent errored job that failed with message
func lastFailure(w *models.Worker, message string) *models.Job {
	for i := len(w.Queue.Jobs) - 1; i >= 0; i-- {
		job := w.Queue.Jobs[i]
		if job.Status == models.JobStatusError && job.Error == message {
			return job
		}
	}
	return nil
}

func failureMessage(signal models.Signal) string {
	if signal.Message == "" {
		return "generation failed"
	}
	return signal.Message
}

// matchJob finds the job a signal refers to. A signal carrying a reference
// must match exactly; one without falls back to the oldest candidate, or
// the newest for progress. Completions and errors also match a job whose
// send is not acknowledged yet.
func matchJob(w *models.Worker, signal models.Signal) *models.Job {
	candidates := w.Queue.Outstanding()
	if signal.Kind != models.SignalProgress {
		candidates = w.Queue.Unresolved()
	}

	switch {
	case signal.JobID != "":
		for _, job := range candidates {
			if job.ID == signal.JobID {
				return job
			}
		}
		return nil
	case signal.SequenceNumber > 0:
		for _, job := range candidates {
			if job.SequenceNumber == signal.SequenceNumber {
				return job
			}
		}
		return nil
	}

	if len(candidates) == 0 {
		return nil
	}
	if signal.Kind == models.SignalProgress {
		return candidates[len(candidates)-1]
	}
	return candidates[0]
}

func (s *Scheduler) onProgress(ctx context.Context, w *models.Worker, signal models.Signal) {
	job := matchJob(w, signal)
	if job == nil {
		s.log.Debug().Str("worker_id", w.ID).Int("percent", signal.Percent).Msg("Progress without outstanding job")
		return
	}

	if signal.Percent > job.Progress {
		job.Progress = signal.Percent
	}
	s.emit(models.Event{
		Type:           models.EventJobProgress,
		WorkerID:       w.ID,
		JobID:          job.ID,
		SequenceNumber: job.SequenceNumber,
		Percent:        signal.Percent,
	})

	if s.config.Pipelining && signal.Percent >= s.config.ThresholdPercent {
		s.armThreshold(ctx, w, job)
	}
}

func (s *Scheduler) onCompleted(ctx context.Context, w *models.Worker, signal models.Signal) {
	if duplicateCompletion(w, signal) != nil {
		s.log.Debug().Str("worker_id", w.ID).Str("artifact", signal.ArtifactURL).Msg("Duplicate completion dropped")
		return
	}

	job := matchJob(w, signal)
	if job == nil {
		s.log.Debug().Str("worker_id", w.ID).Msg("Completion without outstanding job dropped")
		return
	}

	if err := job.Complete(signal.ArtifactURL, s.clock.Now()); err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("Cannot complete job")
		return
	}
	w.RefreshCompleted()
	s.refreshWorkerStatus(w)
	s.persist(ctx)

	s.log.Info().
		Str("worker_id", w.ID).
		Int("sequence", job.SequenceNumber).
		Int("worker_completed", w.CompletedCount).
		Int("worker_total", w.Queue.Total()).
		Msg("Job completed")

	s.emit(models.Event{
		Type:           models.EventJobCompleted,
		WorkerID:       w.ID,
		JobID:          job.ID,
		SequenceNumber: job.SequenceNumber,
		ArtifactURL:    job.ResultURL,
		Percent:        w.Queue.Percentage(),
	})

	// a pending threshold dispatch already owns the next send
	if _, scheduled := s.thresholdTimers[w.ID]; !scheduled {
		s.dispatchNext(ctx, w)
	}
	s.checkSessionComplete(ctx)
}

func (s *Scheduler) onError(ctx context.Context, w *models.Worker, signal models.Signal) {
	job := matchJob(w, signal)
	if job == nil {
		s.log.Debug().Str("worker_id", w.ID).Msg("Error without outstanding job dropped")
		return
	}

	message := failureMessage(signal)
	if err := job.Fail(message); err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("Cannot fail job")
		return
	}

	s.session.RemoveFailed(job.ID)
	s.session.Failed = append(s.session.Failed, models.FailedJob{
		JobID:          job.ID,
		WorkerID:       w.ID,
		SequenceNumber: job.SequenceNumber,
		Prompt:         job.Prompt,
		Message:        message,
		FailedAt:       s.clock.Now(),
	})
	s.refreshWorkerStatus(w)
	s.persist(ctx)

	s.log.Warn().
		Str("worker_id", w.ID).
		Int("sequence", job.SequenceNumber).
		Str("message", message).
		Msg("Job failed")

	s.emit(models.Event{
		Type:           models.EventJobFailed,
		WorkerID:       w.ID,
		JobID:          job.ID,
		SequenceNumber: job.SequenceNumber,
		Prompt:         job.Prompt,
		Message:        message,
	})

	if s.session.IsRunning {
		if _, scheduled := s.thresholdTimers[w.ID]; !scheduled {
			s.scheduleRetry(ctx, w)
		}
	}
}
