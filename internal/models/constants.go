package models

// JobStatus is the lifecycle state of a single prompt
type JobStatus string

// Job status constants
const (
	JobStatusPending     JobStatus = "pending"
	JobStatusSending     JobStatus = "sending"
	JobStatusProcessing  JobStatus = "processing"
	JobStatusDownloading JobStatus = "downloading"
	JobStatusCompleted   JobStatus = "completed"
	JobStatusError       JobStatus = "error"
)

// WorkerStatus is the state of a worker's external channel
type WorkerStatus string

// Worker status constants
const (
	WorkerStatusPending    WorkerStatus = "pending"
	WorkerStatusOpening    WorkerStatus = "opening"
	WorkerStatusReady      WorkerStatus = "ready"
	WorkerStatusProcessing WorkerStatus = "processing"
	WorkerStatusError      WorkerStatus = "error"
)

// SessionMode selects between one worker and a partitioned pool
type SessionMode string

// Session mode constants
const (
	ModeSequential SessionMode = "sequential"
	ModeParallel   SessionMode = "parallel"
)

// Default configuration values
const (
	DefaultThresholdPercent = 65
	DefaultGuardCooldown    = 10 // seconds
	DefaultDispatchDelay    = 2  // seconds - wait after a threshold before sending the next prompt
	DefaultErrorRetryDelay  = 3  // seconds
	DefaultMaxWorkers       = 16
)

// transitions lists the forward moves of the job state machine.
// Moves back to pending go through Reset and are not listed here.
var transitions = map[JobStatus][]JobStatus{
	JobStatusPending:     {JobStatusSending},
	JobStatusSending:     {JobStatusProcessing, JobStatusCompleted, JobStatusError},
	JobStatusProcessing:  {JobStatusDownloading, JobStatusCompleted, JobStatusError},
	JobStatusDownloading: {JobStatusCompleted, JobStatusError},
}

// CanTransition reports whether a job may move from one status to another
func CanTransition(from, to JobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsInFlight reports whether the status occupies the worker's submission slot
func (s JobStatus) IsInFlight() bool {
	return s == JobStatusSending || s == JobStatusProcessing
}

// IsOutstanding reports whether the job was sent and still awaits an outcome
func (s JobStatus) IsOutstanding() bool {
	return s == JobStatusProcessing || s == JobStatusDownloading
}

// IsTransient reports whether the status needs an external signal to resolve
func (s JobStatus) IsTransient() bool {
	return s == JobStatusSending || s == JobStatusProcessing || s == JobStatusDownloading
}

// Valid reports whether the mode is known
func (m SessionMode) Valid() bool {
	return m == ModeSequential || m == ModeParallel
}
