package scheduler

import (
	"context"
	"fmt"

	"github.com/sharma-sourabh3435/promptqueue/internal/models"
)

// openChannels requests channels for every worker that has none. Without an
// opener, workers are marked ready and prompts are delivered by the sender
// (or by hand) without a channel id. Caller holds mu.
func (s *Scheduler) openChannels(ctx context.Context) {
	session := s.session

	var needed []*models.Worker
	for _, w := range session.Workers {
		if w.Status == models.WorkerStatusPending || w.Status == models.WorkerStatusError {
			needed = append(needed, w)
		}
	}
	if len(needed) == 0 {
		return
	}

	if s.opener == nil {
		for _, w := range needed {
			w.Status = models.WorkerStatusReady
		}
		s.persist(ctx)
		return
	}

	workerIDs := make([]string, len(needed))
	for i, w := range needed {
		w.Status = models.WorkerStatusOpening
		workerIDs[i] = w.ID
	}
	s.persist(ctx)

	s.logger.Info().Int("count", len(needed)).Msg("Opening channels")

	sessionID := session.ID
	go func() {
		channels, err := s.opener.OpenChannels(s.ctx, len(workerIDs))
		s.react(sessionID, func(ctx context.Context, session *models.Session) {
			s.onChannelsOpened(ctx, session, workerIDs, channels, err)
		})
	}()
}

func (s *Scheduler) onChannelsOpened(ctx context.Context, session *models.Session, workerIDs []string, channels []models.Channel, openErr error) {
	if openErr != nil {
		s.logger.Error().Err(openErr).Int("count", len(workerIDs)).Msg("Failed to open channels")
	}

	for _, ch := range channels {
		if ch.WorkerIndex < 0 || ch.WorkerIndex >= len(workerIDs) {
			continue
		}
		if w := session.Worker(workerIDs[ch.WorkerIndex]); w != nil && w.Status == models.WorkerStatusOpening {
			s.bind(w, ch.ID)
		}
	}

	for _, id := range workerIDs {
		if w := session.Worker(id); w != nil && w.Status == models.WorkerStatusOpening {
			w.Status = models.WorkerStatusError
			s.logger.Warn().Str("worker_id", id).Msg("No channel opened for worker")
		}
	}
	s.persist(ctx)

	for _, w := range session.Workers {
		s.dispatchNext(ctx, w)
	}
}

func (s *Scheduler) bind(w *models.Worker, channelID string) {
	w.ChannelID = channelID
	w.Status = models.WorkerStatusReady
	s.refreshWorkerStatus(w)

	s.logger.Info().Str("worker_id", w.ID).Str("channel_id", channelID).Msg("Channel attached")
}

// AttachChannel binds an externally opened channel to the worker at index
func (s *Scheduler) AttachChannel(ctx context.Context, workerIndex int, channelID string) error {
	return s.update(ctx, func(session *models.Session) error {
		if workerIndex < 0 || workerIndex >= len(session.Workers) {
			return fmt.Errorf("%w: index %d", ErrWorkerNotFound, workerIndex)
		}
		w := session.Workers[workerIndex]
		if other := session.WorkerByChannel(channelID); other != nil && other != w {
			other.ChannelID = ""
			other.Status = models.WorkerStatusError
		}

		s.bind(w, channelID)
		s.persist(ctx)
		s.dispatchNext(ctx, w)
		return nil
	})
}

// ChannelClosed detaches a worker whose channel went away. Its outstanding
// jobs stay as they are until the operator resets them or a channel is attached.
func (s *Scheduler) ChannelClosed(ctx context.Context, channelID string) error {
	return s.update(ctx, func(session *models.Session) error {
		w := session.WorkerByChannel(channelID)
		if w == nil {
			return fmt.Errorf("%w: channel %s", ErrWorkerNotFound, channelID)
		}

		w.ChannelID = ""
		w.Status = models.WorkerStatusError
		s.stopThresholdTimer(w.ID)
		s.persist(ctx)

		s.logger.Warn().Str("worker_id", w.ID).Str("channel_id", channelID).Msg("Channel closed")

		s.emit(models.Event{
			Type:     models.EventWorkerClosed,
			WorkerID: w.ID,
			Message:  "channel " + channelID + " closed",
		})
		return nil
	})
}

// ChannelIDs lists the channels currently bound to workers
func (s *Scheduler) ChannelIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil
	}
	var ids []string
	for _, w := range s.session.Workers {
		if w.ChannelID != "" {
			ids = append(ids, w.ChannelID)
		}
	}
	return ids
}

// detachAll unbinds every channel and returns the released ids. Caller holds mu.
func (s *Scheduler) detachAll() []string {
	s.stopThresholdTimers()
	if s.session == nil {
		return nil
	}
	var released []string
	for _, w := range s.session.Workers {
		if w.ChannelID != "" {
			released = append(released, w.ChannelID)
		}
	}
	return released
}

func (s *Scheduler) releaseChannels(ctx context.Context, channelIDs []string) {
	if s.opener == nil {
		return
	}
	for _, id := range channelIDs {
		if err := s.opener.CloseChannel(ctx, id); err != nil {
			s.logger.Warn().Err(err).Str("channel_id", id).Msg("Failed to close channel")
		}
	}
}
