package fallback

import (
	"context"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/ternarybob/arbor"

	"github.com/sharma-sourabh3435/promptqueue/internal/models"
)

// ClipboardNotifier puts prompts that could not be sent automatically on
// the system clipboard so the operator can paste them into the tab.
type ClipboardNotifier struct {
	logger arbor.ILogger
	write  func(string) error

	mu   sync.Mutex
	last string
}

// NewClipboardNotifier creates a notifier writing to the system clipboard
func NewClipboardNotifier(logger arbor.ILogger) *ClipboardNotifier {
	return &ClipboardNotifier{
		logger: logger,
		write:  clipboard.WriteAll,
	}
}

// Available reports whether the platform has a clipboard utility
func Available() bool {
	return !clipboard.Unsupported
}

// Notify implements the scheduler notifier
func (c *ClipboardNotifier) Notify(_ context.Context, event models.Event) {
	if event.Type != models.EventManualPaste || event.Prompt == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.write(event.Prompt); err != nil {
		c.logger.Warn().
			Err(err).
			Str("worker_id", event.WorkerID).
			Int("sequence", event.SequenceNumber).
			Msg("Failed to copy prompt to clipboard")
		return
	}
	c.last = event.Prompt

	c.logger.Info().
		Str("worker_id", event.WorkerID).
		Int("sequence", event.SequenceNumber).
		Msg("Prompt copied to clipboard, paste it into the tab")
}

// Last returns the most recently copied prompt
func (c *ClipboardNotifier) Last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
