// CLAUDE:SUMMARY Public browser handle — wraps the internal Chrome manager for callers outside the package.
package anchor

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/chartfill/anchor/internal/browser"
)

// BrowserConfig configures the Chrome connection behind live sessions.
type BrowserConfig struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local headless Chrome.
	RemoteURL string

	// NavigateTimeout bounds navigation plus initial load. Default: 30s.
	NavigateTimeout time.Duration

	Logger *slog.Logger
}

// Browser is a connected Chrome instance sessions are opened against.
type Browser struct {
	mgr *browser.Manager
}

// StartBrowser connects to Chrome, launching one when no remote URL is set.
func StartBrowser(ctx context.Context, cfg BrowserConfig) (*Browser, error) {
	mgr := browser.NewManager(browser.Config{
		RemoteURL:       cfg.RemoteURL,
		NavigateTimeout: cfg.NavigateTimeout,
		Logger:          cfg.Logger,
	})
	if err := mgr.Start(ctx); err != nil {
		return nil, err
	}
	return &Browser{mgr: mgr}, nil
}

// OpenSession navigates a new tab to the URL and binds a Session to it.
func (b *Browser) OpenSession(ctx context.Context, pageURL string, opts ...SessionOption) (*Session, error) {
	return open(ctx, b.mgr, pageURL, opts...)
}

// Close disconnects and tears down a locally launched Chrome.
func (b *Browser) Close() error {
	return b.mgr.Close()
}
