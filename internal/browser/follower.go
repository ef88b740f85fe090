package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

// Selectors for the profile hover card. The follow button's data-testid ends
// in "-follow", but "-unfollow" shares that suffix, so the positive match has
// to exclude it and the following-state check runs first.
const (
	hoverCardSelector    = `div[data-testid="HoverCard"]`
	followBtnSelector    = `button[data-testid$="-follow"]:not([data-testid$="-unfollow"])`
	followingBtnSelector = `button[data-testid$="-unfollow"]`
)

const (
	findTimeout   = 5 * time.Second
	cardTimeout   = 3 * time.Second
	verifyTimeout = 3 * time.Second
)

var (
	// ErrAccountNotFound means no link to the account is present on the page.
	ErrAccountNotFound = errors.New("account link not found on page")
	// ErrNoFollowControl means the hover card rendered without a follow button.
	ErrNoFollowControl = errors.New("no follow control in profile card")
)

// Follower performs follow actions on the thread page with human-like mouse
// movement, so the flow matches what a person at the keyboard produces.
type Follower struct {
	page *rod.Page
	log  zerolog.Logger
}

func NewFollower(page *rod.Page, logger zerolog.Logger) *Follower {
	return &Follower{
		page: page,
		log:  logger.With().Str("component", "follower").Logger(),
	}
}

// Follow hovers the account's profile link, waits for the hover card and
// clicks its follow button. It reports true when the card shows the account
// as followed afterwards, including the case where it already was, so the
// account is recorded and never attempted again.
func (f *Follower) Follow(ctx context.Context, handle string) (bool, error) {
	page := f.page.Context(ctx)
	name := strings.TrimPrefix(handle, "@")

	// hrefs keep the account's display casing, the handle is normalized.
	link, err := page.Timeout(findTimeout).Element(fmt.Sprintf(`a[href="/%s" i]`, name))
	if err != nil {
		return false, fmt.Errorf("%s: %w", handle, ErrAccountNotFound)
	}
	if err := link.ScrollIntoView(); err != nil {
		return false, fmt.Errorf("scroll to %s: %w", handle, err)
	}
	if err := f.hover(page, link); err != nil {
		return false, fmt.Errorf("hover %s: %w", handle, err)
	}
	if err := randomPause(ctx, 200*time.Millisecond, 600*time.Millisecond); err != nil {
		return false, err
	}

	card, err := page.Timeout(cardTimeout).Element(hoverCardSelector)
	if err != nil {
		return false, fmt.Errorf("%s: %w", handle, ErrNoFollowControl)
	}
	if ok, _, _ := card.Has(followingBtnSelector); ok {
		f.log.Debug().Str("handle", handle).Msg("already following")
		return true, nil
	}
	ok, btn, err := card.Has(followBtnSelector)
	if err != nil || !ok {
		return false, fmt.Errorf("%s: %w", handle, ErrNoFollowControl)
	}

	if err := f.click(page, btn); err != nil {
		return false, fmt.Errorf("click follow for %s: %w", handle, err)
	}
	f.log.Debug().Str("handle", handle).Msg("follow clicked")
	return f.verify(ctx, page, card, handle)
}

// hover moves the mouse to a jittered point inside el. When the element
// shape is unavailable it falls back to rod's own hover.
func (f *Follower) hover(page *rod.Page, el *rod.Element) error {
	shape, err := el.Shape()
	if err != nil || len(shape.Quads) == 0 {
		return el.Hover()
	}
	return page.Mouse.MoveLinear(jitterPoint(shape.Quads[0]), moveSteps())
}

func (f *Follower) click(page *rod.Page, el *rod.Element) error {
	shape, err := el.Shape()
	if err != nil || len(shape.Quads) == 0 {
		return el.Click(proto.InputMouseButtonLeft, 1)
	}
	if err := page.Mouse.MoveLinear(jitterPoint(shape.Quads[0]), moveSteps()); err != nil {
		return err
	}
	return page.Mouse.Click(proto.InputMouseButtonLeft, 1)
}

// verify polls for the followed state until verifyTimeout. The card can close
// on its own after the click, so the page-wide aria-label check backs up the
// card check. A quiet timeout reports an unconfirmed follow, not an error.
func (f *Follower) verify(ctx context.Context, page *rod.Page, card *rod.Element, handle string) (bool, error) {
	ariaSel := fmt.Sprintf(`button[aria-label="Following %s" i]`, handle)
	deadline := time.Now().Add(verifyTimeout)
	for time.Now().Before(deadline) {
		if ok, _, err := card.Has(followingBtnSelector); err == nil && ok {
			return true, nil
		}
		if ok, _, err := page.Has(ariaSel); err == nil && ok {
			return true, nil
		}
		if err := randomPause(ctx, 120*time.Millisecond, 250*time.Millisecond); err != nil {
			return false, err
		}
	}
	f.log.Warn().Str("handle", handle).Msg("follow not confirmed")
	return false, nil
}
