package browser

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/m4xw311/superagent/errors"
)

// RodFetcher renders pages in a local Chrome over the DevTools protocol.
// Chrome is launched on the first Fetch.
type RodFetcher struct {
	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	headless bool
	settle   time.Duration
	// loadTimeout bounds waiting for a page to load and settle.
	loadTimeout time.Duration
	logger      *slog.Logger
}

func NewRodFetcher(headless bool, logger *slog.Logger) *RodFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RodFetcher{
		headless:    headless,
		settle:      500 * time.Millisecond,
		loadTimeout: 30 * time.Second,
		logger:      logger,
	}
}

func (r *RodFetcher) start() error {
	if r.browser != nil {
		return nil
	}
	l := launcher.New().
		Headless(r.headless).
		Set("disable-gpu").
		Set("no-first-run").
		Set("no-default-browser-check")

	controlURL, err := l.Launch()
	if err != nil {
		return errors.Wrapf(err, "launch Chrome")
	}
	r.logger.Info("Chrome launched", "cdp", controlURL, "headless", r.headless)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return errors.Wrapf(err, "connect to Chrome")
	}
	r.launcher = l
	r.browser = b
	return nil
}

func (r *RodFetcher) Fetch(ctx context.Context, url string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.start(); err != nil {
		return "", err
	}

	page, err := r.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return "", errors.Wrapf(err, "open page")
	}
	defer page.Close()

	bounded := page.Timeout(r.loadTimeout)
	if err := bounded.WaitLoad(); err != nil {
		return "", errors.Wrapf(err, "wait for page load")
	}
	// Allow scripts to render dynamic content.
	if err := bounded.WaitStable(r.settle); err != nil {
		r.logger.Debug("page did not settle", "url", url, "error", err)
	}
	doc, err := page.HTML()
	if err != nil {
		return "", errors.Wrapf(err, "read page HTML")
	}
	return doc, nil
}

// Close shuts Chrome down. It is a no-op if Chrome was never launched.
func (r *RodFetcher) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.browser = nil
	if r.launcher != nil {
		r.launcher.Kill()
		r.launcher.Cleanup()
		r.launcher = nil
	}
	return err
}
