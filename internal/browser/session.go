package browser

import (
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

// SessionOptions selects the browser to drive and the thread to open.
type SessionOptions struct {
	// ControlURL attaches to an already running browser, typically the
	// operator's logged-in session. Empty launches a fresh one.
	ControlURL string
	Bin        string
	Headless   bool
	// ThreadURL is opened in a new page. Empty attaches to the browser's
	// current active page instead, which requires ControlURL.
	ThreadURL string
}

// Session owns the connection to one browser and the thread page.
type Session struct {
	browser  *rod.Browser
	page     *rod.Page
	launched *launcher.Launcher
	log      zerolog.Logger
}

// NewSession connects to (or launches) a browser and opens the thread.
func NewSession(opts SessionOptions, logger zerolog.Logger) (*Session, error) {
	log := logger.With().Str("component", "browser").Logger()

	controlURL := opts.ControlURL
	var launched *launcher.Launcher
	if controlURL == "" {
		if opts.ThreadURL == "" {
			return nil, errors.New("thread url required when launching a browser")
		}
		launched = launcher.New().Headless(opts.Headless)
		if opts.Bin != "" {
			launched = launched.Bin(opts.Bin)
		}
		u, err := launched.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
		log.Info().Bool("headless", opts.Headless).Msg("browser launched")
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		if launched != nil {
			launched.Cleanup()
		}
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	page, err := openThread(b, opts.ThreadURL)
	if err != nil {
		if launched != nil {
			_ = b.Close()
			launched.Cleanup()
		}
		return nil, err
	}
	log.Info().Str("thread", opts.ThreadURL).Msg("thread page ready")
	return &Session{browser: b, page: page, launched: launched, log: log}, nil
}

func openThread(b *rod.Browser, threadURL string) (*rod.Page, error) {
	if threadURL == "" {
		pages, err := b.Pages()
		if err != nil {
			return nil, fmt.Errorf("list pages: %w", err)
		}
		if len(pages) == 0 {
			return nil, errors.New("no open page to attach to")
		}
		return pages.First(), nil
	}
	page, err := b.Page(proto.TargetCreateTarget{URL: threadURL})
	if err != nil {
		return nil, fmt.Errorf("open thread: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("load thread: %w", err)
	}
	return page, nil
}

// Page returns the thread page shared by the detector and the follower.
func (s *Session) Page() *rod.Page { return s.page }

// Close shuts the browser down when this process launched it. An attached
// browser is left running.
func (s *Session) Close() {
	if s.launched == nil {
		return
	}
	if err := s.browser.Close(); err != nil {
		s.log.Warn().Err(err).Msg("browser close failed")
	}
	s.launched.Cleanup()
}
