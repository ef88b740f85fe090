package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"verifollow/internal/follow"
	"verifollow/internal/state"
)

type statusResponse struct {
	Total     int           `json:"total"`
	Remaining int           `json:"remaining"`
	Processed int           `json:"processed"`
	Success   int           `json:"success"`
	Status    follow.Status `json:"status"`
	Detected  int           `json:"detected"`
	RunID     string        `json:"run_id,omitempty"`
}

// API exposes the engine, the detector intake and the persistent store over
// REST. Settings are held here as the current full document, so GET returns
// exactly what the last PUT (or boot merge) established.
type API struct {
	engine *follow.Engine
	intake *follow.Intake
	store  *state.Store
	broker *eventBroker
	log    zerolog.Logger

	mu       sync.Mutex
	settings state.Settings
}

func NewAPI(engine *follow.Engine, intake *follow.Intake, store *state.Store, settings state.Settings, logger zerolog.Logger) *API {
	a := &API{
		engine:   engine,
		intake:   intake,
		store:    store,
		broker:   newEventBroker(),
		log:      logger.With().Str("component", "api").Logger(),
		settings: settings,
	}
	intake.OnUpdate(a.broker.publish)
	return a
}

// RegisterRoutes registers API routes on the provided gin engine
func (a *API) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.GET("/status", a.Status)
		api.POST("/follow/start", a.StartFollowing)
		api.POST("/follow/stop", a.StopFollowing)
		api.POST("/follow/pause", a.PauseFollowing)
		api.GET("/limits/rate", a.RateLimit)
		api.POST("/limits/rate/resume", a.ResumeRateLimit)
		api.GET("/limits/daily", a.DailyLimit)
		api.GET("/stats/daily", a.DailyStats)
		api.POST("/stats/reset", a.ResetStats)
		api.GET("/settings", a.GetSettings)
		api.PUT("/settings", a.UpdateSettings)
		api.GET("/events", a.Events)
	}
}

// Status returns queue progress plus the detector's candidate count
func (a *API) Status(c *gin.Context) {
	s := a.engine.Snapshot()
	c.JSON(http.StatusOK, statusResponse{
		Total:     s.Total,
		Remaining: s.Remaining,
		Processed: s.Processed,
		Success:   s.Success,
		Status:    s.Status,
		Detected:  a.intake.Detected(),
		RunID:     s.RunID,
	})
}

// StartFollowing launches or resumes the processing loop
func (a *API) StartFollowing(c *gin.Context) {
	a.engine.Start()
	status := a.engine.Snapshot().Status
	a.log.Info().Str("status", string(status)).Msg("follow run started")
	c.JSON(http.StatusAccepted, gin.H{"status": status})
}

// StopFollowing clears the queue and halts processing until the next start
func (a *API) StopFollowing(c *gin.Context) {
	a.engine.Stop()
	a.log.Info().Msg("follow run stopped")
	c.JSON(http.StatusOK, gin.H{"status": a.engine.Snapshot().Status})
}

// PauseFollowing suspends dequeuing while keeping the queue intact
func (a *API) PauseFollowing(c *gin.Context) {
	a.engine.Pause()
	c.JSON(http.StatusOK, gin.H{"status": a.engine.Snapshot().Status})
}

// RateLimit reports the cooldown throttle state
func (a *API) RateLimit(c *gin.Context) {
	c.JSON(http.StatusOK, a.engine.RateLimitInfo())
}

// ResumeRateLimit clears an active cooldown ahead of its deadline
func (a *API) ResumeRateLimit(c *gin.Context) {
	a.engine.ResumeAfterRateLimit()
	a.log.Info().Msg("cooldown resumed via api")
	c.JSON(http.StatusOK, a.engine.RateLimitInfo())
}

// DailyLimit reports the calendar-day quota state
func (a *API) DailyLimit(c *gin.Context) {
	c.JSON(http.StatusOK, a.engine.DailyLimitInfo())
}

// DailyStats returns today's follow count and the recent day history
func (a *API) DailyStats(c *gin.Context) {
	stats, err := a.store.DailyStats(time.Now())
	if err != nil {
		a.log.Error().Err(err).Msg("read daily stats failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read daily stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ResetStats zeroes today's counter and lifts an active daily limit stop
func (a *API) ResetStats(c *gin.Context) {
	if err := a.store.ResetDailyStats(); err != nil {
		a.log.Error().Err(err).Msg("reset daily stats failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset daily stats"})
		return
	}
	a.engine.ResumeFromDailyLimit()
	a.log.Info().Msg("daily stats reset")
	c.JSON(http.StatusOK, a.engine.DailyLimitInfo())
}

// GetSettings returns the active settings document
func (a *API) GetSettings(c *gin.Context) {
	a.mu.Lock()
	s := a.settings
	a.mu.Unlock()
	c.JSON(http.StatusOK, s)
}

// UpdateSettings validates a full settings document, applies it to the live
// engine and intake, and persists it. An in-progress cooldown or quota stop
// keeps its original deadline.
func (a *API) UpdateSettings(c *gin.Context) {
	var req state.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		a.log.Warn().Err(err).Msg("invalid settings request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := a.applySettings(req); err != nil {
		a.log.Warn().Err(err).Msg("settings rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.store.SaveSettings(req); err != nil {
		a.log.Error().Err(err).Msg("persist settings failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "persist settings"})
		return
	}
	a.mu.Lock()
	a.settings = req
	a.mu.Unlock()
	a.log.Info().
		Int("min_delay_ms", req.MinDelayMs).
		Int("max_delay_ms", req.MaxDelayMs).
		Int("rate_limit_threshold", req.RateLimitThreshold).
		Int("daily_follow_limit", req.DailyFollowLimit).
		Bool("verified_only", req.VerifiedOnly).
		Msg("settings updated")
	c.JSON(http.StatusOK, req)
}

// applySettings validates the whole document before touching anything, so a
// rejected update never leaves the engine half-configured.
func (a *API) applySettings(s state.Settings) error {
	opts := follow.Options{
		MinDelay:           time.Duration(s.MinDelayMs) * time.Millisecond,
		MaxDelay:           time.Duration(s.MaxDelayMs) * time.Millisecond,
		RateLimitThreshold: s.RateLimitThreshold,
		RateLimitDuration:  time.Duration(s.RateLimitDurationMs) * time.Millisecond,
		DailyFollowLimit:   s.DailyFollowLimit,
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	if err := a.engine.UpdateDelays(opts.MinDelay, opts.MaxDelay); err != nil {
		return err
	}
	if err := a.engine.UpdateRateLimit(opts.RateLimitThreshold, opts.RateLimitDuration); err != nil {
		return err
	}
	if err := a.engine.UpdateDailyLimit(opts.DailyFollowLimit); err != nil {
		return err
	}
	a.intake.SetVerifiedOnly(s.VerifiedOnly)
	return nil
}
