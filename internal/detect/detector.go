package detect

import (
	"context"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/rs/zerolog"
)

// Selectors for the thread markup. Best effort: the site may change them.
const (
	tweetSelector    = `article[data-testid="tweet"]`
	userNameSelector = `div[data-testid="User-Name"]`
	verifiedSelector = `svg[data-testid="icon-verified"]`
	toastSelector    = `div[data-testid="toast"]`
)

const streamBuffer = 64

// Detector periodically scans the open thread page for account cells and
// emits each unique handle once on its output stream. It also watches for
// the site's own rate-limit warning toast.
type Detector struct {
	page     *rod.Page
	interval time.Duration
	log      zerolog.Logger

	out            chan Account
	seen           map[string]struct{}
	onLimitWarning func()
	warned         bool
}

// NewDetector builds a detector over an already opened thread page.
func NewDetector(page *rod.Page, interval time.Duration, logger zerolog.Logger) *Detector {
	return &Detector{
		page:     page,
		interval: interval,
		log:      logger.With().Str("component", "detector").Logger(),
		out:      make(chan Account, streamBuffer),
		seen:     make(map[string]struct{}),
	}
}

// Accounts is the stream of newly detected accounts. It closes when Run
// returns.
func (d *Detector) Accounts() <-chan Account { return d.out }

// OnLimitWarning registers a callback fired once if the page shows a
// rate-limit warning. Set before calling Run.
func (d *Detector) OnLimitWarning(fn func()) { d.onLimitWarning = fn }

// Run scans the page every interval until ctx ends.
func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	defer close(d.out)

	d.log.Info().Dur("interval", d.interval).Msg("detector started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !d.scan(ctx) {
				return
			}
		}
	}
}

// scan walks the visible account cells once. Returns false when ctx ended
// mid-emit.
func (d *Detector) scan(ctx context.Context) bool {
	cells, err := d.page.Elements(tweetSelector)
	if err != nil {
		// the page may be navigating or detached, try again next tick
		d.log.Debug().Err(err).Msg("scan failed")
		return true
	}
	found := 0
	for _, cell := range cells {
		acc, ok := extract(cell)
		if !ok {
			continue
		}
		if _, dup := d.seen[acc.Handle]; dup {
			continue
		}
		d.seen[acc.Handle] = struct{}{}
		found++
		select {
		case d.out <- acc:
		case <-ctx.Done():
			return false
		}
	}
	if found > 0 {
		d.log.Debug().Int("new", found).Int("total", len(d.seen)).Msg("accounts detected")
	}
	d.checkLimitBanner()
	return true
}

// extract pulls one account identity out of a thread cell.
func extract(cell *rod.Element) (Account, bool) {
	hasName, nameEl, err := cell.Has(userNameSelector)
	if err != nil || !hasName {
		return Account{}, false
	}
	hasLink, linkEl, err := nameEl.Has("a[href]")
	if err != nil || !hasLink {
		return Account{}, false
	}
	href, err := linkEl.Attribute("href")
	if err != nil || href == nil {
		return Account{}, false
	}
	handle := HandleFromHref(*href)
	if handle == "" {
		return Account{}, false
	}
	verified, _, err := nameEl.Has(verifiedSelector)
	if err != nil {
		verified = false
	}
	var name string
	if hasSpan, span, serr := nameEl.Has("span"); serr == nil && hasSpan {
		if txt, terr := span.Text(); terr == nil {
			name = strings.TrimSpace(txt)
		}
	}
	return Account{Handle: handle, DisplayName: name, Verified: verified}, true
}

// checkLimitBanner looks for the site's rate-limit toast and fires the
// registered callback at most once.
func (d *Detector) checkLimitBanner() {
	if d.warned || d.onLimitWarning == nil {
		return
	}
	has, toast, err := d.page.Has(toastSelector)
	if err != nil || !has {
		return
	}
	txt, err := toast.Text()
	if err != nil {
		return
	}
	lower := strings.ToLower(txt)
	if strings.Contains(lower, "limit") || strings.Contains(lower, "try again later") {
		d.warned = true
		d.log.Warn().Str("toast", strings.TrimSpace(txt)).Msg("rate limit warning on page")
		d.onLimitWarning()
	}
}
