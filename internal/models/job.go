package models

import (
	"fmt"
	"strings"
	"time"
)

// Job represents one queued prompt and its lifecycle
type Job struct {
	ID             string     `json:"id"`
	SequenceNumber int        `json:"sequence_number"`
	Prompt         string     `json:"prompt"`
	Status         JobStatus  `json:"status"`
	ResultURL      string     `json:"result_url,omitempty"`
	Error          string     `json:"error,omitempty"`
	Progress       int        `json:"progress,omitempty"`
	Attempts       int        `json:"attempts"`
	CreatedAt      time.Time  `json:"created_at"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Transition moves the job forward through the state machine
func (j *Job) Transition(to JobStatus) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("job %d: %s -> %s not allowed", j.SequenceNumber, j.Status, to)
	}
	j.Status = to
	return nil
}

// Complete marks the job completed with its artifact
func (j *Job) Complete(resultURL string, at time.Time) error {
	if err := j.Transition(JobStatusCompleted); err != nil {
		return err
	}
	j.ResultURL = resultURL
	j.Error = ""
	j.Progress = 100
	j.CompletedAt = &at
	return nil
}

// Fail marks the job as errored
func (j *Job) Fail(message string) error {
	if err := j.Transition(JobStatusError); err != nil {
		return err
	}
	j.Error = message
	j.ResultURL = ""
	return nil
}

// Reset puts the job back to pending and drops any outcome
func (j *Job) Reset() {
	j.Status = JobStatusPending
	j.ResultURL = ""
	j.Error = ""
	j.Progress = 0
	j.SentAt = nil
	j.CompletedAt = nil
}

// Clone returns a deep copy
func (j *Job) Clone() *Job {
	c := *j
	if j.SentAt != nil {
		t := *j.SentAt
		c.SentAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// FailedJob is an entry in the session's failed list, kept for bulk retry or copy
type FailedJob struct {
	JobID          string    `json:"job_id"`
	WorkerID       string    `json:"worker_id"`
	SequenceNumber int       `json:"sequence_number"`
	Prompt         string    `json:"prompt"`
	Message        string    `json:"message"`
	FailedAt       time.Time `json:"failed_at"`
}

// ManualPaste records a prompt that could not be sent automatically
type ManualPaste struct {
	JobID          string    `json:"job_id"`
	WorkerID       string    `json:"worker_id"`
	SequenceNumber int       `json:"sequence_number"`
	Prompt         string    `json:"prompt"`
	Reason         string    `json:"reason"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// ParsePrompts splits raw text into one prompt per non-empty line
func ParsePrompts(text string) []string {
	var prompts []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if p := strings.TrimSpace(line); p != "" {
			prompts = append(prompts, p)
		}
	}
	return prompts
}
