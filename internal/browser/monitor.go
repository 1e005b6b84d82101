package browser

import (
	"context"
	"time"
)

// Monitor probes every open tab on the health interval until ctx is done.
// Tabs that stop responding are reported through the closed callback.
func (p *Pool) Monitor(ctx context.Context) {
	ticker := time.NewTicker(p.config.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug().Msg("Tab monitor stopped")
			return
		case <-ticker.C:
			p.checkTabs(ctx)
		}
	}
}

// checkTabs probes each tab once
func (p *Pool) checkTabs(ctx context.Context) {
	p.mu.Lock()
	tabs := make(map[string]*tab, len(p.tabs))
	for id, t := range p.tabs {
		tabs[id] = t
	}
	p.mu.Unlock()

	for id, t := range tabs {
		if ctx.Err() != nil {
			return
		}
		if t.ctx.Err() != nil {
			p.tabGone(id, "context closed")
			continue
		}

		probeCtx, cancel := context.WithTimeout(t.ctx, 5*time.Second)
		err := p.probe(probeCtx)
		cancel()
		if err != nil {
			p.logger.Warn().Err(err).Str("channel_id", id).Msg("Tab failed health check")
			p.tabGone(id, "health check failed")
		}
	}
}
