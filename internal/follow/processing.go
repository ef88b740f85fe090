package follow

import (
	"context"
	"math/rand"
	"time"

	"verifollow/internal/state"
)

// Idle polling bounds for a drained queue.
const (
	idlePollMin = 500 * time.Millisecond
	idlePollMax = 2 * time.Second
)

// run is the processing loop. Exactly one loop may dequeue per engine; a
// cancelled loop never takes another task even when a new run has already
// begun, so overlapping goroutines cannot double-consume the queue.
func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		if ctx.Err() != nil || e.status == StatusStopped {
			e.mu.Unlock()
			return
		}
		switch e.status {
		case StatusPaused:
			e.mu.Unlock()
			if !e.waitWake(ctx, 0) {
				return
			}
			continue

		case StatusRateLimited:
			until := e.pauseUntil
			e.mu.Unlock()
			if d := time.Until(until); d > 0 {
				if !e.waitWake(ctx, d) {
					return
				}
				continue
			}
			e.finishCooldown()
			continue

		case StatusDailyLimitReached:
			resetAt := e.dailyResetAt
			e.mu.Unlock()
			if d := time.Until(resetAt); d > 0 {
				if !e.waitWake(ctx, d) {
					return
				}
				continue
			}
			e.finishDailyLimit()
			continue
		}

		// running or idle: take the queue head
		if len(e.queue) == 0 {
			if e.status == StatusRunning {
				e.status = StatusIdle
				e.log.Debug().Msg("queue drained")
			}
			e.mu.Unlock()
			if !e.waitWake(ctx, randDuration(idlePollMin, idlePollMax)) {
				return
			}
			continue
		}
		task := e.queue[0]
		e.queue = e.queue[1:]
		delete(e.pending, task.Key)
		e.status = StatusRunning
		e.mu.Unlock()

		ok, err := task.Execute(ctx)

		e.mu.Lock()
		e.processed++
		stopped := ctx.Err() != nil || e.status == StatusStopped
		if err != nil {
			e.log.Warn().Str("key", task.Key).Err(err).Msg("task failed")
		}
		throttled := false
		if ok && err == nil {
			e.success++
			e.incrementTodayLocked()
			if !stopped {
				e.successSincePause++
				// quota before cooldown: a hard day stop must not also arm
				// the transient pause for the same success
				if e.todayCount >= e.dailyLimit {
					e.enterDailyLimitLocked()
					throttled = true
				} else if e.successSincePause >= e.threshold {
					e.enterCooldownLocked()
					throttled = true
				}
			}
		}
		queued := len(e.queue)
		lo, hi := e.minDelay, e.maxDelay
		e.mu.Unlock()

		e.log.Debug().Str("key", task.Key).Bool("success", ok && err == nil).Msg("task processed")
		if stopped || throttled || queued == 0 {
			continue
		}
		if !e.sleep(ctx, randDuration(lo, hi)) {
			return
		}
	}
}

// incrementTodayLocked attributes one success to the local day via the
// store and mirrors the returned count, so a run crossing midnight restarts
// the in-memory counter. Callers hold e.mu.
func (e *Engine) incrementTodayLocked() {
	now := time.Now()
	n, err := e.store.IncrementToday(now)
	if err != nil {
		n, err = e.store.IncrementToday(now)
	}
	if err != nil {
		e.rollDayLocked(now)
		e.todayCount++
		e.todayDate = state.DayOf(now)
		e.log.Error().Err(err).Msg("persist daily count failed, continuing in memory")
		return
	}
	e.todayCount = n
	e.todayDate = state.DayOf(now)
}

// enterCooldownLocked starts the self-imposed pause after a burst of
// successes. Callers hold e.mu.
func (e *Engine) enterCooldownLocked() {
	e.pauseUntil = time.Now().Add(e.pauseDuration)
	e.status = StatusRateLimited
	e.persist("rate_limit", func() error {
		return e.store.SaveRateLimit(state.RateLimitRecord{PauseUntil: e.pauseUntil, SuccessCount: e.successSincePause})
	})
	e.log.Info().Time("pause_until", e.pauseUntil).Int("successes", e.successSincePause).Msg("cooldown entered")
}

// enterDailyLimitLocked stops processing until local midnight. Callers
// hold e.mu.
func (e *Engine) enterDailyLimitLocked() {
	now := time.Now()
	e.status = StatusDailyLimitReached
	e.dailyResetAt = e.sched.Next(now)
	e.persist("daily_limit", func() error {
		return e.store.SaveDailyLimit(state.DailyLimitRecord{Limited: true, ReachedAt: now})
	})
	e.log.Info().Int("today", e.todayCount).Time("reset_at", e.dailyResetAt).Msg("daily limit reached")
}

// finishCooldown ends an elapsed cooldown. Rechecked under the lock since a
// manual resume or stop may have beaten the timer.
func (e *Engine) finishCooldown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusRateLimited || e.pauseUntil.After(time.Now()) {
		return
	}
	e.pauseUntil = time.Time{}
	e.successSincePause = 0
	e.status = StatusRunning
	e.persist("rate_limit", e.store.ClearRateLimit)
	e.log.Info().Msg("cooldown finished")
}

// finishDailyLimit resets the quota once local midnight has passed.
func (e *Engine) finishDailyLimit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusDailyLimitReached || e.dailyResetAt.After(time.Now()) {
		return
	}
	e.todayCount = 0
	e.todayDate = state.DayOf(time.Now())
	e.dailyResetAt = time.Time{}
	e.status = StatusRunning
	e.persist("daily_limit", e.store.ClearDailyLimit)
	e.log.Info().Msg("daily limit reset at midnight")
}

// persist runs one write-through, retrying once. On repeated failure the
// transition still proceeds in memory.
func (e *Engine) persist(op string, fn func() error) {
	err := fn()
	if err != nil {
		err = fn()
	}
	if err != nil {
		e.log.Error().Err(err).Str("op", op).Msg("state write failed, continuing in memory")
	}
}

// waitWake blocks until the timer fires, the engine is nudged, or the run
// is cancelled. d <= 0 waits for a nudge alone. Returns false only on
// cancellation; the caller re-evaluates state after every other wakeup.
func (e *Engine) waitWake(ctx context.Context, d time.Duration) bool {
	var fire <-chan time.Time
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		fire = t.C
	}
	select {
	case <-ctx.Done():
		return false
	case <-e.wake:
		return true
	case <-fire:
		return true
	}
}

// sleep is the strict variant for throttle delays: only cancellation cuts
// it short.
func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// randDuration picks uniformly from [lo, hi] inclusive.
func randDuration(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)+1))
}
