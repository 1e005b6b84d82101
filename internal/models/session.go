package models

import "time"

// Session aggregates the workers of one run and is the unit of persistence
type Session struct {
	ID          string        `json:"id"`
	Mode        SessionMode   `json:"mode"`
	Label       string        `json:"label"`
	Workers     []*Worker     `json:"workers"`
	Prompts     []string      `json:"prompts,omitempty"`
	IsRunning   bool          `json:"is_running"`
	Failed      []FailedJob   `json:"failed,omitempty"`
	ManualPaste []ManualPaste `json:"manual_paste,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
}

// Worker returns the worker with the given id
func (s *Session) Worker(workerID string) *Worker {
	for _, w := range s.Workers {
		if w.ID == workerID {
			return w
		}
	}
	return nil
}

// WorkerByChannel returns the worker bound to an external channel
func (s *Session) WorkerByChannel(channelID string) *Worker {
	if channelID == "" {
		return nil
	}
	for _, w := range s.Workers {
		if w.ChannelID == channelID {
			return w
		}
	}
	return nil
}

// FindJob returns a job and its owning worker
func (s *Session) FindJob(jobID string) (*Worker, *Job) {
	for _, w := range s.Workers {
		if job := w.Queue.Find(jobID); job != nil {
			return w, job
		}
	}
	return nil, nil
}

// AllDone reports whether every worker's queue is fully completed
func (s *Session) AllDone() bool {
	for _, w := range s.Workers {
		if !w.Queue.IsDone() {
			return false
		}
	}
	return true
}

// Totals returns completed and total job counts across workers
func (s *Session) Totals() (completed, total int) {
	for _, w := range s.Workers {
		completed += w.Queue.Completed()
		total += w.Queue.Total()
	}
	return completed, total
}

// Percentage returns overall completion as 0-100
func (s *Session) Percentage() int {
	completed, total := s.Totals()
	if total == 0 {
		return 0
	}
	return completed * 100 / total
}

// RemoveFailed drops a job from the failed list
func (s *Session) RemoveFailed(jobID string) {
	kept := s.Failed[:0]
	for _, f := range s.Failed {
		if f.JobID != jobID {
			kept = append(kept, f)
		}
	}
	s.Failed = kept
}

// Clone returns a deep copy
func (s *Session) Clone() *Session {
	c := *s
	c.Workers = make([]*Worker, len(s.Workers))
	for i, w := range s.Workers {
		c.Workers[i] = w.Clone()
	}
	c.Prompts = append([]string(nil), s.Prompts...)
	c.Failed = append([]FailedJob(nil), s.Failed...)
	c.ManualPaste = append([]ManualPaste(nil), s.ManualPaste...)
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

// WorkerSummary is the progress view of one worker
type WorkerSummary struct {
	ID         string       `json:"id"`
	Index      int          `json:"index"`
	Status     WorkerStatus `json:"status"`
	IsPaused   bool         `json:"is_paused"`
	ChannelID  string       `json:"channel_id,omitempty"`
	Completed  int          `json:"completed"`
	Total      int          `json:"total"`
	Percentage int          `json:"percentage"`
}

// SessionSummary is the progress view of a session
type SessionSummary struct {
	ID         string            `json:"id"`
	Mode       SessionMode       `json:"mode"`
	Label      string            `json:"label"`
	IsRunning  bool              `json:"is_running"`
	Completed  int               `json:"completed"`
	Total      int               `json:"total"`
	Percentage int               `json:"percentage"`
	Failed     int               `json:"failed"`
	Statuses   map[JobStatus]int `json:"statuses"`
	Workers    []WorkerSummary   `json:"workers"`
	CreatedAt  time.Time         `json:"created_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}

// Summary builds the progress view
func (s *Session) Summary() SessionSummary {
	completed, total := s.Totals()
	summary := SessionSummary{
		ID:         s.ID,
		Mode:       s.Mode,
		Label:      s.Label,
		IsRunning:  s.IsRunning,
		Completed:  completed,
		Total:      total,
		Percentage: s.Percentage(),
		Failed:     len(s.Failed),
		Statuses:   make(map[JobStatus]int),
		CreatedAt:  s.CreatedAt,
		FinishedAt: s.FinishedAt,
	}
	for _, w := range s.Workers {
		for status, n := range w.Queue.CountByStatus() {
			summary.Statuses[status] += n
		}
		summary.Workers = append(summary.Workers, WorkerSummary{
			ID:         w.ID,
			Index:      w.Index,
			Status:     w.Status,
			IsPaused:   w.IsPaused,
			ChannelID:  w.ChannelID,
			Completed:  w.Queue.Completed(),
			Total:      w.Queue.Total(),
			Percentage: w.Queue.Percentage(),
		})
	}
	return summary
}
