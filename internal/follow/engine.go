package follow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"verifollow/internal/state"
)

// dailyResetCron marks local midnight, the boundary at which the daily
// quota rolls over.
const dailyResetCron = "0 0 * * *"

// StateStore is the slice of the persistent store the engine reads on
// restore and writes through on every transition a restart must survive.
type StateStore interface {
	RateLimit() (state.RateLimitRecord, bool, error)
	SaveRateLimit(rec state.RateLimitRecord) error
	ClearRateLimit() error
	DailyLimit() (state.DailyLimitRecord, bool, error)
	SaveDailyLimit(rec state.DailyLimitRecord) error
	ClearDailyLimit() error
	DailyStats(now time.Time) (state.DailyStats, error)
	IncrementToday(now time.Time) (int, error)
}

// Engine is a single-consumer follow queue. Tasks execute strictly in
// enqueue order under three throttles: a randomized inter-task delay, a
// cooldown entered after a burst of successes, and a calendar-day quota.
// All state transitions a restart must survive are written through to the
// store as they happen.
type Engine struct {
	store StateStore
	log   zerolog.Logger
	sched cron.Schedule

	mu                sync.Mutex
	status            Status
	queue             []Task
	pending           map[string]struct{}
	processed         int
	success           int
	successSincePause int
	pauseUntil        time.Time
	dailyResetAt      time.Time
	todayCount        int
	todayDate         string
	runID             string

	minDelay      time.Duration
	maxDelay      time.Duration
	threshold     int
	pauseDuration time.Duration
	dailyLimit    int

	runCtx context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	wg     sync.WaitGroup
}

// NewEngine creates an idle engine. Zero option fields take defaults;
// invalid combinations fail construction instead of being clamped.
func NewEngine(store StateStore, opts Options, logger zerolog.Logger) (*Engine, error) {
	if store == nil {
		return nil, errors.New("nil state store")
	}
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(dailyResetCron)
	if err != nil {
		return nil, fmt.Errorf("parse daily reset schedule: %w", err)
	}
	return &Engine{
		store:         store,
		log:           logger.With().Str("component", "engine").Logger(),
		sched:         sched,
		status:        StatusIdle,
		pending:       make(map[string]struct{}),
		minDelay:      opts.MinDelay,
		maxDelay:      opts.MaxDelay,
		threshold:     opts.RateLimitThreshold,
		pauseDuration: opts.RateLimitDuration,
		dailyLimit:    opts.DailyFollowLimit,
		wake:          make(chan struct{}, 1),
	}, nil
}

// Enqueue appends the task unless another pending task shares its key.
// Duplicates are dropped silently.
func (e *Engine) Enqueue(task Task) {
	if task.Key == "" || task.Execute == nil {
		return
	}
	e.mu.Lock()
	if _, dup := e.pending[task.Key]; dup {
		e.mu.Unlock()
		e.log.Debug().Str("key", task.Key).Msg("duplicate task dropped")
		return
	}
	e.pending[task.Key] = struct{}{}
	e.queue = append(e.queue, task)
	queued := len(e.queue)
	e.mu.Unlock()

	e.signal()
	e.log.Debug().Str("key", task.Key).Int("queued", queued).Msg("task enqueued")
}

// Start launches the processing loop, or wakes it when it is already
// alive. A limited status restored from persistence is kept: the loop waits
// the limit out instead of clobbering it. Idempotent while running.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.loopAliveLocked() {
		if e.status == StatusPaused {
			e.status = StatusRunning
			e.log.Info().Msg("engine resumed")
		}
		e.mu.Unlock()
		e.signal()
		return
	}

	now := time.Now()
	switch e.status {
	case StatusRateLimited, StatusDailyLimitReached:
		// keep the restored limit, the loop waits it out
	default:
		// a stop in the middle of a limit does not forget it: no follow
		// may run while a cooldown or quota stop is live
		e.rollDayLocked(now)
		switch {
		case e.todayCount >= e.dailyLimit:
			e.status = StatusDailyLimitReached
			if e.dailyResetAt.IsZero() {
				e.dailyResetAt = e.sched.Next(now)
			}
		case e.pauseUntil.After(now):
			e.status = StatusRateLimited
		default:
			e.status = StatusRunning
		}
	}
	e.runID = uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	e.runCtx, e.cancel = ctx, cancel
	e.wg.Add(1)
	go e.run(ctx)
	e.log.Info().Str("run_id", e.runID).Str("status", string(e.status)).Msg("engine started")
	e.mu.Unlock()
}

// Stop clears the queue, cancels every outstanding wait and is terminal
// until the next Start. Counters are kept; persisted limit records are kept
// too, so a later boot still resumes an unfinished cooldown.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.queue = nil
	e.pending = make(map[string]struct{})
	if e.cancel != nil {
		e.cancel()
	}
	prev := e.status
	e.status = StatusStopped
	e.mu.Unlock()

	if prev != StatusStopped {
		e.log.Info().Str("from", string(prev)).Msg("engine stopped")
	}
}

// Pause makes the loop cease dequeuing without clearing the queue. Only a
// running or idle engine can be paused; a limited engine is already not
// dequeuing and Stop always remains available.
func (e *Engine) Pause() {
	e.mu.Lock()
	if e.status == StatusRunning || e.status == StatusIdle {
		e.status = StatusPaused
		e.log.Info().Msg("engine paused")
	}
	e.mu.Unlock()
}

// Snapshot returns current queue progress. Safe to call at any time.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	remaining := len(e.queue)
	return Snapshot{
		Total:     e.processed + remaining,
		Remaining: remaining,
		Processed: e.processed,
		Success:   e.success,
		Status:    e.status,
		RunID:     e.runID,
	}
}

// RateLimitInfo reports the cooldown state relative to the current time.
func (e *Engine) RateLimitInfo() RateLimitInfo {
	now := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	info := RateLimitInfo{
		IsRateLimited:     e.status == StatusRateLimited,
		Threshold:         e.threshold,
		DurationMs:        e.pauseDuration.Milliseconds(),
		SuccessSincePause: e.successSincePause,
	}
	if info.IsRateLimited {
		until := e.pauseUntil
		info.PauseUntil = &until
		if d := until.Sub(now); d > 0 {
			info.RemainingMs = d.Milliseconds()
		}
	}
	return info
}

// DailyLimitInfo reports the quota state relative to the current time.
func (e *Engine) DailyLimitInfo() DailyLimitInfo {
	now := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	resetAt := e.dailyResetAt
	if resetAt.IsZero() {
		resetAt = e.sched.Next(now)
	}
	if e.status != StatusDailyLimitReached {
		e.rollDayLocked(now)
	}
	remaining := e.dailyLimit - e.todayCount
	if remaining < 0 {
		remaining = 0
	}
	return DailyLimitInfo{
		IsDailyLimited: e.status == StatusDailyLimitReached,
		TodayCount:     e.todayCount,
		Limit:          e.dailyLimit,
		Remaining:      remaining,
		ResetAt:        resetAt,
	}
}

// EnterRateLimit resumes an in-progress cooldown, typically one persisted
// before a restart. A deadline already in the past is ignored.
func (e *Engine) EnterRateLimit(until time.Time, successCount int) {
	if !until.After(time.Now()) {
		return
	}
	e.mu.Lock()
	e.pauseUntil = until
	e.successSincePause = successCount
	if e.status != StatusDailyLimitReached {
		e.status = StatusRateLimited
	}
	e.persist("rate_limit", func() error {
		return e.store.SaveRateLimit(state.RateLimitRecord{PauseUntil: until, SuccessCount: successCount})
	})
	e.mu.Unlock()

	e.signal()
	e.log.Info().Time("pause_until", until).Int("success_count", successCount).Msg("cooldown resumed")
}

// Restore rehydrates limit state from the store. Persisted records are
// authoritative: a live cooldown or same-day quota record is resumed, stale
// records are cleared. The daily quota wins when both are live. Call once
// before Start.
func (e *Engine) Restore() error {
	now := time.Now()
	stats, err := e.store.DailyStats(now)
	if err != nil {
		return fmt.Errorf("restore daily stats: %w", err)
	}
	dailyRec, dailyOK, err := e.store.DailyLimit()
	if err != nil {
		return fmt.Errorf("restore daily limit: %w", err)
	}
	rateRec, rateOK, err := e.store.RateLimit()
	if err != nil {
		return fmt.Errorf("restore rate limit: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.todayCount = stats.Today.Count
	e.todayDate = stats.Today.Date
	if dailyOK {
		if dailyRec.Live(now) {
			e.status = StatusDailyLimitReached
			e.dailyResetAt = e.sched.Next(dailyRec.ReachedAt)
			e.log.Info().Time("reset_at", e.dailyResetAt).Int("today", e.todayCount).Msg("daily limit restored")
		} else {
			e.persist("daily_limit", e.store.ClearDailyLimit)
		}
	}
	if rateOK {
		if rateRec.Live(now) {
			e.pauseUntil = rateRec.PauseUntil
			e.successSincePause = rateRec.SuccessCount
			if e.status != StatusDailyLimitReached {
				e.status = StatusRateLimited
			}
			e.log.Info().Time("pause_until", e.pauseUntil).Msg("cooldown restored")
		} else {
			e.persist("rate_limit", e.store.ClearRateLimit)
		}
	}
	return nil
}

// ResumeAfterRateLimit clears an active cooldown early.
func (e *Engine) ResumeAfterRateLimit() {
	e.mu.Lock()
	if e.status == StatusRateLimited {
		e.pauseUntil = time.Time{}
		e.successSincePause = 0
		e.status = e.activeStatusLocked()
		e.persist("rate_limit", e.store.ClearRateLimit)
		e.log.Info().Msg("cooldown cleared early")
	}
	e.mu.Unlock()
	e.signal()
}

// ResumeFromDailyLimit zeroes the in-memory day counter and clears an
// active quota stop. Pairs with a daily-stats reset on the store.
func (e *Engine) ResumeFromDailyLimit() {
	e.mu.Lock()
	e.todayCount = 0
	e.todayDate = state.DayOf(time.Now())
	e.dailyResetAt = time.Time{}
	if e.status == StatusDailyLimitReached {
		e.status = e.activeStatusLocked()
		e.persist("daily_limit", e.store.ClearDailyLimit)
		e.log.Info().Msg("daily limit cleared early")
	}
	e.mu.Unlock()
	e.signal()
}

// UpdateRateLimit replaces the cooldown threshold and duration. An already
// running cooldown keeps its original deadline.
func (e *Engine) UpdateRateLimit(threshold int, duration time.Duration) error {
	if threshold < 1 {
		return fmt.Errorf("invalid rate limit threshold: %d (must be >= 1)", threshold)
	}
	if duration < 1 {
		return fmt.Errorf("invalid rate limit duration: %v (must be > 0)", duration)
	}
	e.mu.Lock()
	e.threshold = threshold
	e.pauseDuration = duration
	e.mu.Unlock()
	return nil
}

// UpdateDailyLimit replaces the per-day quota. An already entered quota
// stop stays until midnight or an explicit reset.
func (e *Engine) UpdateDailyLimit(limit int) error {
	if limit < 1 {
		return fmt.Errorf("invalid daily follow limit: %d (must be >= 1)", limit)
	}
	e.mu.Lock()
	e.dailyLimit = limit
	e.mu.Unlock()
	return nil
}

// UpdateDelays replaces the inter-task wait bounds. The wait in progress,
// if any, is unaffected.
func (e *Engine) UpdateDelays(minDelay, maxDelay time.Duration) error {
	if minDelay < 0 {
		return fmt.Errorf("invalid min delay: %v (must be >= 0)", minDelay)
	}
	if maxDelay < minDelay {
		return fmt.Errorf("invalid max delay: %v (must be >= min delay %v)", maxDelay, minDelay)
	}
	e.mu.Lock()
	e.minDelay = minDelay
	e.maxDelay = maxDelay
	e.mu.Unlock()
	return nil
}

// Wait blocks until the processing loop exits or the context is done.
// Returns true if the loop finished, false if the context won.
func (e *Engine) Wait(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// rollDayLocked zeroes the day counter when its stamp is from a prior local
// day, so a count carried across midnight in memory cannot block or misreport
// a fresh day. Callers hold e.mu.
func (e *Engine) rollDayLocked(now time.Time) {
	if today := state.DayOf(now); e.todayDate != "" && e.todayDate != today {
		e.todayCount = 0
		e.todayDate = today
	}
}

// activeStatusLocked is the status an early limit clear lands on: running
// when a loop is alive to continue, idle otherwise. Callers hold e.mu.
func (e *Engine) activeStatusLocked() Status {
	if e.loopAliveLocked() {
		return StatusRunning
	}
	return StatusIdle
}

// loopAliveLocked reports whether a processing loop can still dequeue.
// Callers hold e.mu.
func (e *Engine) loopAliveLocked() bool {
	return e.runCtx != nil && e.runCtx.Err() == nil
}

// signal nudges the loop out of an interruptible wait. Never blocks.
func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}
