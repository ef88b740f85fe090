package state

import "time"

// RateLimitRecord captures an in-progress follow cooldown so a restart
// resumes the pause instead of forgetting it.
type RateLimitRecord struct {
	PauseUntil   time.Time `json:"pause_until"`
	SuccessCount int       `json:"success_count"`
}

// Live reports whether the cooldown is still in effect at the given time.
func (r RateLimitRecord) Live(now time.Time) bool { return r.PauseUntil.After(now) }

// DailyLimitRecord marks that the daily follow quota was exhausted.
type DailyLimitRecord struct {
	Limited   bool      `json:"limited"`
	ReachedAt time.Time `json:"reached_at"`
}

// Live reports whether the record still applies. The quota resets at local
// midnight, so a record from a previous day is stale.
func (r DailyLimitRecord) Live(now time.Time) bool {
	return r.Limited && DayOf(r.ReachedAt) == DayOf(now)
}

// DayCount is one calendar day's follow total.
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// DailyStats tracks today's follow count plus a capped history of past days.
type DailyStats struct {
	Today   DayCount   `json:"today"`
	History []DayCount `json:"history"`
}

// Settings holds the runtime-adjustable engine knobs saved from the control
// surface. On boot they take precedence over the config file.
type Settings struct {
	MinDelayMs          int  `json:"min_delay_ms"`
	MaxDelayMs          int  `json:"max_delay_ms"`
	RateLimitThreshold  int  `json:"rate_limit_threshold"`
	RateLimitDurationMs int  `json:"rate_limit_duration_ms"`
	DailyFollowLimit    int  `json:"daily_follow_limit"`
	VerifiedOnly        bool `json:"verified_only"`
}

// DayOf formats t as the local calendar date used for stats keys.
func DayOf(t time.Time) string { return t.Local().Format("2006-01-02") }
