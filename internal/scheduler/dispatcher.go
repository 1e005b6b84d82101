package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sharma-sourabh3435/promptqueue/internal/models"
)

var errNotAccepted = errors.New("channel did not accept the prompt")

// dispatchNext sends the worker's lowest pending job when the submission
// slot is free. Caller holds mu. Returns true when a job was dispatched.
func (s *Scheduler) dispatchNext(ctx context.Context, w *models.Worker) bool {
	session := s.session
	if !session.IsRunning || w.IsPaused || !w.HasChannel() {
		return false
	}
	if inFlight := w.Queue.InFlight(); inFlight != nil {
		s.log.Debug().
			Str("worker_id", w.ID).
			Int("sequence", inFlight.SequenceNumber).
			Msg("Submission slot busy")
		return false
	}

	job := w.Queue.NextPending()
	if job == nil {
		s.refreshWorkerStatus(w)
		s.checkSessionComplete(ctx)
		return false
	}

	if err := job.Transition(models.JobStatusSending); err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("Cannot dispatch job")
		return false
	}
	now := s.clock.Now()
	job.SentAt = &now
	job.Attempts++
	job.Error = ""
	job.Progress = 0
	w.Status = models.WorkerStatusProcessing
	s.persist(ctx)

	s.log.Info().
		Str("worker_id", w.ID).
		Str("job_id", job.ID).
		Int("sequence", job.SequenceNumber).
		Int("attempt", job.Attempts).
		Msg("Dispatching prompt")

	s.emit(models.Event{
		Type:           models.EventJobDispatched,
		WorkerID:       w.ID,
		JobID:          job.ID,
		SequenceNumber: job.SequenceNumber,
		Prompt:         job.Prompt,
	})

	s.scheduleSend(session.ID, w.ID, w.ChannelID, job.ID, job.Prompt)
	return true
}

// scheduleSend hands the prompt to the sender outside the lock
func (s *Scheduler) scheduleSend(sessionID, workerID, channelID, jobID, prompt string) {
	run := func() {
		go s.deliver(sessionID, workerID, channelID, jobID, prompt)
	}
	if s.config.SendDelay > 0 {
		s.clock.AfterFunc(s.config.SendDelay, run)
		return
	}
	run()
}

func (s *Scheduler) deliver(sessionID, workerID, channelID, jobID, prompt string) {
	if s.ctx.Err() != nil || !s.awaitingSend(sessionID, jobID) {
		return
	}

	var err error
	if s.sender == nil {
		err = errors.New("no sender configured")
	} else {
		ctx, cancel := s.sendContext()
		var accepted bool
		accepted, err = s.sender.SendPrompt(ctx, channelID, prompt)
		cancel()
		if err == nil && !accepted {
			err = errNotAccepted
		}
	}

	s.react(sessionID, func(ctx context.Context, session *models.Session) {
		s.onSendResult(ctx, session, workerID, jobID, err)
	})
}

// awaitingSend reports whether the job is still waiting for its prompt.
// An outcome may arrive while the send is delayed.
func (s *Scheduler) awaitingSend(sessionID, jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil || s.session.ID != sessionID {
		return false
	}
	_, job := s.session.FindJob(jobID)
	return job != nil && job.Status == models.JobStatusSending
}

func (s *Scheduler) sendContext() (context.Context, context.CancelFunc) {
	if s.config.SendTimeout > 0 {
		return context.WithTimeout(s.ctx, s.config.SendTimeout)
	}
	return context.WithCancel(s.ctx)
}

// onSendResult moves a sending job to processing. A failed send still
// occupies the slot; the prompt goes to the manual-paste fallback and the
// operator delivers it by hand.
func (s *Scheduler) onSendResult(ctx context.Context, session *models.Session, workerID, jobID string, sendErr error) {
	w, job := session.FindJob(jobID)
	if job == nil || w.ID != workerID || job.Status != models.JobStatusSending {
		s.log.Debug().Str("job_id", jobID).Msg("Dropping stale send result")
		return
	}

	if err := job.Transition(models.JobStatusProcessing); err != nil {
		s.log.Error().Err(err).Str("job_id", jobID).Msg("Cannot record send result")
		return
	}

	if sendErr != nil {
		s.log.Warn().
			Err(sendErr).
			Str("worker_id", w.ID).
			Int("sequence", job.SequenceNumber).
			Msg("Automatic send failed, prompt needs manual paste")

		session.ManualPaste = append(session.ManualPaste, models.ManualPaste{
			JobID:          job.ID,
			WorkerID:       w.ID,
			SequenceNumber: job.SequenceNumber,
			Prompt:         job.Prompt,
			Reason:         sendErr.Error(),
			RecordedAt:     s.clock.Now(),
		})
		s.emit(models.Event{
			Type:           models.EventManualPaste,
			WorkerID:       w.ID,
			JobID:          job.ID,
			SequenceNumber: job.SequenceNumber,
			Prompt:         job.Prompt,
			Message:        sendErr.Error(),
		})
	}

	s.persist(ctx)
}

// armThreshold schedules an early dispatch once the in-flight job passed
// the progress threshold. Caller holds mu.
func (s *Scheduler) armThreshold(ctx context.Context, w *models.Worker, job *models.Job) bool {
	now := s.clock.Now()

	if w.GuardActive(now) {
		s.log.Debug().
			Str("worker_id", w.ID).
			Int("sequence", job.SequenceNumber).
			Str("guard_until", w.DispatchGuardUntil.Format(time.RFC3339)).
			Msg("Threshold ignored, dispatch guard active")
		return false
	}
	if _, scheduled := s.thresholdTimers[w.ID]; scheduled {
		return false
	}
	if !s.session.IsRunning || w.IsPaused || !w.Queue.HasPending() {
		return false
	}
	if w.Queue.InFlight() != job || job.Status != models.JobStatusProcessing {
		return false
	}
	if w.Queue.Trailing() != nil {
		return false
	}

	w.DispatchGuardUntil = now.Add(s.config.GuardCooldown)
	s.persist(ctx)

	s.log.Info().
		Str("worker_id", w.ID).
		Int("sequence", job.SequenceNumber).
		Str("delay", s.config.ThresholdDispatchDelay.String()).
		Msg("Threshold reached, scheduling next dispatch")

	sessionID, workerID, jobID := s.session.ID, w.ID, job.ID
	s.thresholdTimers[w.ID] = s.clock.AfterFunc(s.config.ThresholdDispatchDelay, func() {
		s.react(sessionID, func(ctx context.Context, session *models.Session) {
			s.fireThreshold(ctx, session, workerID, jobID)
		})
	})
	return true
}

// fireThreshold re-checks the worker and, if still eligible, hands the
// triggering job off to downloading and fills the slot with the next job.
func (s *Scheduler) fireThreshold(ctx context.Context, session *models.Session, workerID, jobID string) {
	delete(s.thresholdTimers, workerID)

	w := session.Worker(workerID)
	if w == nil {
		return
	}
	if !session.IsRunning || w.IsPaused || !w.HasChannel() || !w.Queue.HasPending() {
		s.log.Debug().Str("worker_id", workerID).Msg("Threshold dispatch no longer eligible")
		return
	}

	if job := w.Queue.Find(jobID); job != nil && job.Status == models.JobStatusProcessing && w.Queue.InFlight() == job {
		if err := job.Transition(models.JobStatusDownloading); err != nil {
			s.log.Error().Err(err).Str("job_id", jobID).Msg("Cannot hand off job")
			return
		}
	}

	if !s.dispatchNext(ctx, w) {
		s.persist(ctx)
	}
}

// scheduleRetry advances the worker's queue after an error
func (s *Scheduler) scheduleRetry(ctx context.Context, w *models.Worker) {
	if s.config.ErrorRetryDelay <= 0 {
		s.dispatchNext(ctx, w)
		return
	}
	sessionID, workerID := s.session.ID, w.ID
	s.clock.AfterFunc(s.config.ErrorRetryDelay, func() {
		s.react(sessionID, func(ctx context.Context, session *models.Session) {
			if w := session.Worker(workerID); w != nil {
				s.dispatchNext(ctx, w)
			}
		})
	})
}

// checkSessionComplete finishes the session once every queue is done.
// The running flag guards against emitting batch_finished twice.
func (s *Scheduler) checkSessionComplete(ctx context.Context) {
	session := s.session
	if !session.IsRunning || !session.AllDone() {
		return
	}

	now := s.clock.Now()
	session.IsRunning = false
	session.FinishedAt = &now
	s.stopThresholdTimers()
	for _, w := range session.Workers {
		s.refreshWorkerStatus(w)
	}
	s.persist(ctx)

	completed, total := session.Totals()
	s.log.Info().
		Str("session_id", session.ID).
		Int("completed", completed).
		Int("total", total).
		Msg("Batch finished")

	s.emit(models.Event{
		Type:    models.EventBatchFinished,
		Percent: session.Percentage(),
		Message: fmt.Sprintf("%d/%d prompts completed", completed, total),
	})
}

func (s *Scheduler) refreshWorkerStatus(w *models.Worker) {
	if !w.HasChannel() {
		return
	}
	if w.Queue.InFlight() != nil || w.Queue.Trailing() != nil {
		w.Status = models.WorkerStatusProcessing
		return
	}
	w.Status = models.WorkerStatusReady
}
