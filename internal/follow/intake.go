package follow

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"verifollow/internal/detect"
)

// FollowedStore remembers which handles were already followed.
type FollowedStore interface {
	IsFollowed(handle string) bool
	MarkFollowed(handle string, at time.Time) error
}

// Follower performs the page interaction for one handle and reports
// whether the UI visibly changed.
type Follower interface {
	Follow(ctx context.Context, handle string) (bool, error)
}

// Intake turns detected accounts into engine tasks: it counts unique
// candidates, skips handles already followed, and wraps the rest around
// the follower. The engine's key dedup still guards the queue itself.
type Intake struct {
	engine   *Engine
	store    FollowedStore
	follower Follower
	log      zerolog.Logger

	mu           sync.Mutex
	verifiedOnly bool
	seen         map[string]struct{}
	detected     int
	onUpdate     func(detected int)
}

// NewIntake bridges the detector stream to the engine.
func NewIntake(engine *Engine, store FollowedStore, follower Follower, verifiedOnly bool, logger zerolog.Logger) *Intake {
	return &Intake{
		engine:       engine,
		store:        store,
		follower:     follower,
		verifiedOnly: verifiedOnly,
		seen:         make(map[string]struct{}),
		log:          logger.With().Str("component", "intake").Logger(),
	}
}

// Run consumes accounts until the stream closes or ctx ends.
func (in *Intake) Run(ctx context.Context, accounts <-chan detect.Account) {
	for {
		select {
		case <-ctx.Done():
			return
		case acc, ok := <-accounts:
			if !ok {
				return
			}
			in.offer(acc)
		}
	}
}

// offer applies the candidate policy to one detected account. Every unique
// handle is counted and announced; the verified filter only decides whether
// it gets queued.
func (in *Intake) offer(acc detect.Account) {
	in.mu.Lock()
	if _, dup := in.seen[acc.Handle]; dup {
		in.mu.Unlock()
		return
	}
	in.seen[acc.Handle] = struct{}{}
	in.detected++
	total := in.detected
	notify := in.onUpdate
	skip := in.verifiedOnly && !acc.Verified
	in.mu.Unlock()

	if notify != nil {
		notify(total)
	}
	if skip {
		in.log.Debug().Str("handle", acc.Handle).Msg("not verified, skipping")
		return
	}
	if in.store.IsFollowed(acc.Handle) {
		in.log.Debug().Str("handle", acc.Handle).Msg("already followed, skipping")
		return
	}
	handle := acc.Handle
	in.engine.Enqueue(Task{
		Key: handle,
		Execute: func(ctx context.Context) (bool, error) {
			done, err := in.follower.Follow(ctx, handle)
			if err != nil || !done {
				return done, err
			}
			if merr := in.store.MarkFollowed(handle, time.Now()); merr != nil {
				in.log.Error().Err(merr).Str("handle", handle).Msg("mark followed failed")
			}
			return true, nil
		},
	})
	in.log.Info().Str("handle", handle).Str("name", acc.DisplayName).Msg("follow queued")
}

// Detected returns the number of unique candidates seen so far.
func (in *Intake) Detected() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.detected
}

// OnUpdate registers the listener notified when the detected count grows.
func (in *Intake) OnUpdate(fn func(detected int)) {
	in.mu.Lock()
	in.onUpdate = fn
	in.mu.Unlock()
}

// SetVerifiedOnly toggles the badge requirement for future candidates.
func (in *Intake) SetVerifiedOnly(v bool) {
	in.mu.Lock()
	in.verifiedOnly = v
	in.mu.Unlock()
}

// VerifiedOnly reports the current filter setting.
func (in *Intake) VerifiedOnly() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.verifiedOnly
}
