package follow

import (
	"context"
	"fmt"
	"time"
)

// Status is the engine lifecycle state visible to callers.
type Status string

const (
	StatusIdle              Status = "idle"
	StatusRunning           Status = "running"
	StatusPaused            Status = "paused"
	StatusStopped           Status = "stopped"
	StatusRateLimited       Status = "rate_limited"
	StatusDailyLimitReached Status = "daily_limit_reached"
)

// Task is one follow action. Key identifies the target account so the queue
// can refuse duplicates while one is still pending; Execute performs the
// action and reports whether the UI visibly changed. The engine owns a task
// once enqueued and discards it after execution, it is never retried.
type Task struct {
	Key     string
	Execute func(ctx context.Context) (bool, error)
}

// Snapshot is a non-blocking view of queue progress.
type Snapshot struct {
	Total     int    `json:"total"`
	Remaining int    `json:"remaining"`
	Processed int    `json:"processed"`
	Success   int    `json:"success"`
	Status    Status `json:"status"`
	RunID     string `json:"run_id,omitempty"`
}

// RateLimitInfo describes the cooldown throttle, computed fresh per call.
type RateLimitInfo struct {
	IsRateLimited     bool       `json:"is_rate_limited"`
	PauseUntil        *time.Time `json:"pause_until,omitempty"`
	RemainingMs       int64      `json:"remaining_ms"`
	Threshold         int        `json:"threshold"`
	DurationMs        int64      `json:"duration_ms"`
	SuccessSincePause int        `json:"success_since_pause"`
}

// DailyLimitInfo describes the calendar-day quota, computed fresh per call.
type DailyLimitInfo struct {
	IsDailyLimited bool      `json:"is_daily_limited"`
	TodayCount     int       `json:"today_count"`
	Limit          int       `json:"limit"`
	Remaining      int       `json:"remaining"`
	ResetAt        time.Time `json:"reset_at"`
}

const (
	defaultMinDelay           = time.Second
	defaultMaxDelay           = 3 * time.Second
	defaultRateLimitThreshold = 10
	defaultRateLimitDuration  = 10 * time.Minute
	defaultDailyFollowLimit   = 100
)

// Options configures a new engine. Zero fields take the documented defaults.
type Options struct {
	MinDelay           time.Duration
	MaxDelay           time.Duration
	RateLimitThreshold int
	RateLimitDuration  time.Duration
	DailyFollowLimit   int
}

func (o Options) withDefaults() Options {
	if o.MinDelay == 0 {
		o.MinDelay = defaultMinDelay
	}
	if o.MaxDelay == 0 {
		o.MaxDelay = defaultMaxDelay
	}
	if o.RateLimitThreshold == 0 {
		o.RateLimitThreshold = defaultRateLimitThreshold
	}
	if o.RateLimitDuration == 0 {
		o.RateLimitDuration = defaultRateLimitDuration
	}
	if o.DailyFollowLimit == 0 {
		o.DailyFollowLimit = defaultDailyFollowLimit
	}
	return o
}

// Validate rejects option combinations the engine refuses to run with.
// Defaults are not applied first, so zero limits fail here.
func (o Options) Validate() error {
	if o.MinDelay < 0 {
		return fmt.Errorf("invalid min delay: %v (must be >= 0)", o.MinDelay)
	}
	if o.MaxDelay < o.MinDelay {
		return fmt.Errorf("invalid max delay: %v (must be >= min delay %v)", o.MaxDelay, o.MinDelay)
	}
	if o.RateLimitThreshold < 1 {
		return fmt.Errorf("invalid rate limit threshold: %d (must be >= 1)", o.RateLimitThreshold)
	}
	if o.RateLimitDuration < 1 {
		return fmt.Errorf("invalid rate limit duration: %v (must be > 0)", o.RateLimitDuration)
	}
	if o.DailyFollowLimit < 1 {
		return fmt.Errorf("invalid daily follow limit: %d (must be >= 1)", o.DailyFollowLimit)
	}
	return nil
}
