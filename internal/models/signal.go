package models

import (
	"fmt"
	"time"
)

// SignalKind is the type of outcome reported by the observer
type SignalKind string

// Signal kinds
const (
	SignalProgress  SignalKind = "progress"
	SignalCompleted SignalKind = "completed"
	SignalError     SignalKind = "error"
)

// Signal is an asynchronous report from the observer about a generation.
// WorkerID or ChannelID identifies the worker; JobID or SequenceNumber
// identifies the job when the observer knows it.
type Signal struct {
	WorkerID       string     `json:"worker_id,omitempty" validate:"required_without=ChannelID"`
	ChannelID      string     `json:"channel_id,omitempty" validate:"required_without=WorkerID"`
	JobID          string     `json:"job_id,omitempty"`
	SequenceNumber int        `json:"sequence_number,omitempty" validate:"gte=0"`
	Kind           SignalKind `json:"kind" validate:"required,oneof=progress completed error"`
	Percent        int        `json:"percent,omitempty" validate:"gte=0,lte=100"`
	ArtifactURL    string     `json:"artifact_url,omitempty"`
	Message        string     `json:"message,omitempty"`
}

// DedupKey identifies one logical event across redundant transports
func (s Signal) DedupKey() string {
	source := s.WorkerID
	if source == "" {
		source = "ch:" + s.ChannelID
	}
	ref := s.JobID
	if ref == "" {
		ref = fmt.Sprintf("seq:%d", s.SequenceNumber)
	}
	detail := ""
	switch s.Kind {
	case SignalProgress:
		detail = fmt.Sprintf("%d", s.Percent)
	case SignalCompleted:
		detail = s.ArtifactURL
	case SignalError:
		detail = s.Message
	}
	return source + "|" + ref + "|" + string(s.Kind) + "|" + detail
}

// EventType names a scheduler notification
type EventType string

// Event types
const (
	EventJobDispatched EventType = "job_dispatched"
	EventJobProgress   EventType = "progress"
	EventJobCompleted  EventType = "job_completed"
	EventJobFailed     EventType = "job_failed"
	EventManualPaste   EventType = "manual_paste"
	EventWorkerClosed  EventType = "worker_closed"
	EventBatchFinished EventType = "batch_finished"
)

// Event is emitted by the scheduler after a state transition
type Event struct {
	Type           EventType `json:"type"`
	SessionID      string    `json:"session_id"`
	Label          string    `json:"label,omitempty"`
	WorkerID       string    `json:"worker_id,omitempty"`
	JobID          string    `json:"job_id,omitempty"`
	SequenceNumber int       `json:"sequence_number,omitempty"`
	Prompt         string    `json:"prompt,omitempty"`
	Percent        int       `json:"percent,omitempty"`
	ArtifactURL    string    `json:"artifact_url,omitempty"`
	Message        string    `json:"message,omitempty"`
	Time           time.Time `json:"time"`
}

// Channel is an opened external channel (a browser tab) bound to a worker slot
type Channel struct {
	ID          string `json:"channel_id"`
	WorkerIndex int    `json:"worker_index"`
}

// CreateSessionRequest represents the request payload for creating a new session
type CreateSessionRequest struct {
	Prompts     []string    `json:"prompts,omitempty" validate:"required_without=Text,dive,required"`
	Text        string      `json:"text,omitempty" validate:"required_without=Prompts"`
	Mode        SessionMode `json:"mode,omitempty" validate:"omitempty,oneof=sequential parallel"`
	WorkerCount int         `json:"worker_count,omitempty" validate:"omitempty,gte=1,lte=16"`
	Label       string      `json:"label,omitempty" validate:"max=200"`
}

// AttachChannelRequest binds an externally opened channel to a worker
type AttachChannelRequest struct {
	WorkerIndex int    `json:"worker_index" validate:"gte=0"`
	ChannelID   string `json:"channel_id" validate:"required"`
}
