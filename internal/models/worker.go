package models

import "time"

// Queue is the ordered list of jobs owned by one worker
type Queue struct {
	Jobs []*Job `json:"jobs"`
}

// Total returns the number of jobs
func (q *Queue) Total() int {
	return len(q.Jobs)
}

// Completed returns the number of completed jobs
func (q *Queue) Completed() int {
	count := 0
	for _, job := range q.Jobs {
		if job.Status == JobStatusCompleted {
			count++
		}
	}
	return count
}

// Percentage returns completed/total as 0-100, 0 for an empty queue
func (q *Queue) Percentage() int {
	if len(q.Jobs) == 0 {
		return 0
	}
	return q.Completed() * 100 / len(q.Jobs)
}

// IsDone reports whether every job is completed. An empty queue is done.
func (q *Queue) IsDone() bool {
	return q.Completed() == len(q.Jobs)
}

// NextPending returns the lowest-sequence pending job
func (q *Queue) NextPending() *Job {
	var next *Job
	for _, job := range q.Jobs {
		if job.Status == JobStatusPending && (next == nil || job.SequenceNumber < next.SequenceNumber) {
			next = job
		}
	}
	return next
}

// HasPending reports whether any job is waiting to be sent
func (q *Queue) HasPending() bool {
	return q.NextPending() != nil
}

// InFlight returns the job holding the submission slot, if any
func (q *Queue) InFlight() *Job {
	for _, job := range q.Jobs {
		if job.Status.IsInFlight() {
			return job
		}
	}
	return nil
}

// Trailing returns the pipelined job still waiting for its artifact, if any
func (q *Queue) Trailing() *Job {
	for _, job := range q.Jobs {
		if job.Status == JobStatusDownloading {
			return job
		}
	}
	return nil
}

// Outstanding returns sent jobs awaiting an outcome, oldest first
func (q *Queue) Outstanding() []*Job {
	var jobs []*Job
	for _, job := range q.Jobs {
		if job.Status.IsOutstanding() {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

// Unresolved returns every job in a transient status, oldest first,
// including one whose send is not acknowledged yet
func (q *Queue) Unresolved() []*Job {
	var jobs []*Job
	for _, job := range q.Jobs {
		if job.Status.IsTransient() {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

// Find returns the job with the given id
func (q *Queue) Find(jobID string) *Job {
	for _, job := range q.Jobs {
		if job.ID == jobID {
			return job
		}
	}
	return nil
}

// CountByStatus counts jobs per status
func (q *Queue) CountByStatus() map[JobStatus]int {
	counts := make(map[JobStatus]int)
	for _, job := range q.Jobs {
		counts[job.Status]++
	}
	return counts
}

// Worker represents one independent submission channel with its own queue
type Worker struct {
	ID                 string       `json:"id"`
	Index              int          `json:"index"`
	Queue              Queue        `json:"queue"`
	Status             WorkerStatus `json:"status"`
	ChannelID          string       `json:"channel_id,omitempty"`
	IsPaused           bool         `json:"is_paused"`
	CompletedCount     int          `json:"completed_count"`
	DispatchGuardUntil time.Time    `json:"dispatch_guard_until"`
}

// HasChannel reports whether the worker's external channel is usable
func (w *Worker) HasChannel() bool {
	return w.Status == WorkerStatusReady || w.Status == WorkerStatusProcessing
}

// GuardActive reports whether the pipelining guard still suppresses threshold signals
func (w *Worker) GuardActive(now time.Time) bool {
	return now.Before(w.DispatchGuardUntil)
}

// RefreshCompleted recomputes the completed-count cache
func (w *Worker) RefreshCompleted() {
	w.CompletedCount = w.Queue.Completed()
}

// Clone returns a deep copy
func (w *Worker) Clone() *Worker {
	c := *w
	c.Queue.Jobs = make([]*Job, len(w.Queue.Jobs))
	for i, job := range w.Queue.Jobs {
		c.Queue.Jobs[i] = job.Clone()
	}
	return &c
}
