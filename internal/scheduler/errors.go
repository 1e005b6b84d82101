package scheduler

import "errors"

var (
	ErrNoSession          = errors.New("no active session")
	ErrSessionExists      = errors.New("a session is already running")
	ErrNoPrompts          = errors.New("no prompts supplied")
	ErrInvalidWorkerCount = errors.New("invalid worker count")
	ErrWorkerNotFound     = errors.New("worker not found")
	ErrJobNotFound        = errors.New("job not found")
	ErrInvalidTransition  = errors.New("invalid job transition")
	ErrUnknownSignal      = errors.New("unknown signal kind")
)
