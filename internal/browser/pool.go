package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/sharma-sourabh3435/promptqueue/internal/models"
)

var (
	ErrNotStarted     = errors.New("browser not started")
	ErrUnknownChannel = errors.New("unknown channel")
)

// Config holds configuration for the browser pool
type Config struct {
	TargetURL       string
	PromptSelector  string
	SubmitSelector  string
	UserAgent       string
	Headless        bool
	NoSandbox       bool
	NavigateTimeout time.Duration
	HealthInterval  time.Duration
}

type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
	opened time.Time
}

// Pool drives one browser with a tab per worker channel. Channel ids are
// the tabs' target ids.
type Pool struct {
	config Config
	logger arbor.ILogger

	mu            sync.Mutex
	tabs          map[string]*tab
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	onClosed      func(channelID string)

	// probe checks a tab is still alive
	probe func(ctx context.Context) error
}

// NewPool creates a browser pool; Start launches the browser
func NewPool(config Config, logger arbor.ILogger) *Pool {
	if config.NavigateTimeout <= 0 {
		config.NavigateTimeout = 30 * time.Second
	}
	if config.HealthInterval <= 0 {
		config.HealthInterval = 10 * time.Second
	}
	return &Pool{
		config: config,
		logger: logger,
		tabs:   make(map[string]*tab),
		probe: func(ctx context.Context) error {
			var ready string
			return chromedp.Run(ctx, chromedp.Evaluate(`document.readyState`, &ready))
		},
	}
}

// Start launches the browser process
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.browserCtx != nil {
		return fmt.Errorf("browser already started")
	}

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.config.Headless),
		chromedp.Flag("no-sandbox", p.config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
	)
	if p.config.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(p.config.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	startCtx, cancel := context.WithTimeout(browserCtx, p.config.NavigateTimeout)
	defer cancel()
	if err := chromedp.Run(startCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("failed to start browser: %w", err)
	}

	chromedp.ListenBrowser(browserCtx, func(ev interface{}) {
		if destroyed, ok := ev.(*target.EventTargetDestroyed); ok {
			go p.tabGone(string(destroyed.TargetID), "target destroyed")
		}
	})

	p.browserCtx = browserCtx
	p.browserCancel = browserCancel
	p.allocCancel = allocCancel

	p.logger.Info().
		Bool("headless", p.config.Headless).
		Str("target_url", p.config.TargetURL).
		Msg("Browser started")
	return nil
}

// OnClosed registers the callback invoked when a tab goes away unexpectedly
func (p *Pool) OnClosed(fn func(channelID string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClosed = fn
}

// OpenChannels opens count tabs on the target page
func (p *Pool) OpenChannels(ctx context.Context, count int) ([]models.Channel, error) {
	p.mu.Lock()
	browserCtx := p.browserCtx
	p.mu.Unlock()

	if browserCtx == nil {
		return nil, ErrNotStarted
	}

	var channels []models.Channel
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return channels, err
		}
		id, err := p.openTab(browserCtx)
		if err != nil {
			p.logger.Warn().Err(err).Int("worker_index", i).Msg("Failed to open tab")
			return channels, err
		}
		channels = append(channels, models.Channel{ID: id, WorkerIndex: i})
	}

	p.logger.Info().Int("count", len(channels)).Msg("Tabs opened")
	return channels, nil
}

func (p *Pool) openTab(browserCtx context.Context) (string, error) {
	tabCtx, cancel := chromedp.NewContext(browserCtx)

	// the first Run allocates the tab; a timeout on it would close the tab
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(tabCtx,
			chromedp.Navigate(p.config.TargetURL),
			chromedp.WaitVisible(p.config.PromptSelector, chromedp.ByQuery),
		)
	}()

	select {
	case err := <-done:
		if err != nil {
			cancel()
			return "", fmt.Errorf("failed to load %s: %w", p.config.TargetURL, err)
		}
	case <-time.After(p.config.NavigateTimeout):
		cancel()
		return "", fmt.Errorf("timed out loading %s", p.config.TargetURL)
	}

	id := string(chromedp.FromContext(tabCtx).Target.TargetID)

	p.mu.Lock()
	p.tabs[id] = &tab{ctx: tabCtx, cancel: cancel, opened: time.Now()}
	p.mu.Unlock()

	return id, nil
}

// SendPrompt types the prompt into the tab and submits it
func (p *Pool) SendPrompt(ctx context.Context, channelID, prompt string) (bool, error) {
	t := p.tab(channelID)
	if t == nil {
		return false, fmt.Errorf("%w: %s", ErrUnknownChannel, channelID)
	}

	runCtx, cancel := context.WithTimeout(t.ctx, p.config.NavigateTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx,
		chromedp.WaitVisible(p.config.PromptSelector, chromedp.ByQuery),
		chromedp.Clear(p.config.PromptSelector, chromedp.ByQuery),
		chromedp.SendKeys(p.config.PromptSelector, prompt, chromedp.ByQuery),
		chromedp.WaitEnabled(p.config.SubmitSelector, chromedp.ByQuery),
		chromedp.Click(p.config.SubmitSelector, chromedp.ByQuery),
	)
	if err != nil {
		return false, fmt.Errorf("failed to submit prompt: %w", err)
	}

	p.logger.Debug().Str("channel_id", channelID).Int("length", len(prompt)).Msg("Prompt submitted")
	return true, nil
}

// CloseChannel closes a tab on request; no closed callback fires
func (p *Pool) CloseChannel(_ context.Context, channelID string) error {
	p.mu.Lock()
	t, ok := p.tabs[channelID]
	delete(p.tabs, channelID)
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, channelID)
	}
	t.cancel()
	return nil
}

// Close shuts down every tab and the browser
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, t := range p.tabs {
		t.cancel()
		delete(p.tabs, id)
	}
	if p.browserCancel != nil {
		p.browserCancel()
		p.allocCancel()
		p.browserCtx = nil
	}
	p.logger.Info().Msg("Browser closed")
}

// ChannelCount returns the number of open tabs
func (p *Pool) ChannelCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tabs)
}

func (p *Pool) tab(channelID string) *tab {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tabs[channelID]
}

// tabGone forgets a tab that closed on its own and reports it
func (p *Pool) tabGone(channelID, reason string) {
	p.mu.Lock()
	t, ok := p.tabs[channelID]
	delete(p.tabs, channelID)
	onClosed := p.onClosed
	p.mu.Unlock()

	if !ok {
		return
	}
	t.cancel()

	p.logger.Warn().Str("channel_id", channelID).Str("reason", reason).Msg("Tab closed")
	if onClosed != nil {
		onClosed(channelID)
	}
}
