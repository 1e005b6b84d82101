package scheduler

import (
	"context"
	"fmt"

	"github.com/sharma-sourabh3435/promptqueue/internal/models"
)

// StuckJob is a job restored in a state that needs a signal which was lost
// with the previous process.
type StuckJob struct {
	JobID          string           `json:"job_id"`
	WorkerID       string           `json:"worker_id"`
	SequenceNumber int              `json:"sequence_number"`
	Status         models.JobStatus `json:"status"`
}

// RestoreReport describes what reconciliation found in the loaded snapshot
type RestoreReport struct {
	SessionID  string     `json:"session_id,omitempty"`
	WasRunning bool       `json:"was_running"`
	Stuck      []StuckJob `json:"stuck,omitempty"`
	ResetCount int        `json:"reset_count"`
}

// Restore loads the last persisted session. Channel handles do not survive
// a restart, so workers come back unbound and the run comes back paused.
// Jobs left in transient states are reported, and reset when AutoResetStuck is set.
func (s *Scheduler) Restore(ctx context.Context) (*RestoreReport, error) {
	loaded, err := s.storage.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	report := &RestoreReport{}
	if loaded == nil {
		s.logger.Info().Msg("No persisted session to restore")
		return report, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopThresholdTimers()
	s.setSession(loaded)
	report.SessionID = loaded.ID
	report.WasRunning = loaded.IsRunning
	loaded.IsRunning = false

	for _, w := range loaded.Workers {
		w.ChannelID = ""
		w.Status = models.WorkerStatusPending
		for _, job := range w.Queue.Jobs {
			if !job.Status.IsTransient() {
				continue
			}
			report.Stuck = append(report.Stuck, StuckJob{
				JobID:          job.ID,
				WorkerID:       w.ID,
				SequenceNumber: job.SequenceNumber,
				Status:         job.Status,
			})
			if s.config.AutoResetStuck {
				job.Reset()
				report.ResetCount++
			}
		}
		w.RefreshCompleted()
	}
	s.persist(ctx)

	completed, total := loaded.Totals()
	s.logger.Info().
		Str("session_id", loaded.ID).
		Bool("was_running", report.WasRunning).
		Int("completed", completed).
		Int("total", total).
		Int("stuck", len(report.Stuck)).
		Int("reset", report.ResetCount).
		Msg("Session restored")

	return report, nil
}
