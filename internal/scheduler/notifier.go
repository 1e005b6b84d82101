package scheduler

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/sharma-sourabh3435/promptqueue/internal/models"
)

// Notifiers fans an event out to several notifiers in order
type Notifiers []Notifier

func (n Notifiers) Notify(ctx context.Context, event models.Event) {
	for _, notifier := range n {
		if notifier != nil {
			notifier.Notify(ctx, event)
		}
	}
}

// LogNotifier writes events to the log
type LogNotifier struct {
	Logger arbor.ILogger
}

func (n LogNotifier) Notify(_ context.Context, event models.Event) {
	if event.Type == models.EventJobProgress {
		n.Logger.Debug().
			Str("worker_id", event.WorkerID).
			Int("sequence", event.SequenceNumber).
			Int("percent", event.Percent).
			Msg("Progress")
		return
	}
	n.Logger.Info().
		Str("event", string(event.Type)).
		Str("session_id", event.SessionID).
		Str("worker_id", event.WorkerID).
		Int("sequence", event.SequenceNumber).
		Msg("Scheduler event")
}
