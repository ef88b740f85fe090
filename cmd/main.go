package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"verifollow/internal/api"
	"verifollow/internal/browser"
	"verifollow/internal/config"
	"verifollow/internal/detect"
	"verifollow/internal/follow"
	"verifollow/internal/state"
)

func main() {

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load("config.yml")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	store, err := state.NewStore(cfg.DataDir)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("open state store")
	}
	settings := effectiveSettings(cfg, store, logger)

	session, err := browser.NewSession(browser.SessionOptions{
		ControlURL: cfg.Browser.ControlURL,
		Bin:        cfg.Browser.Bin,
		Headless:   cfg.Browser.Headless,
		ThreadURL:  cfg.ThreadURL,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("browser session")
	}

	engine, err := buildEngine(store, settings, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build engine")
	}

	follower := browser.NewFollower(session.Page(), logger)
	detector := detect.NewDetector(session.Page(), cfg.Detect.ScanInterval(), logger)
	intake := follow.NewIntake(engine, store, follower, settings.VerifiedOnly, logger)

	// a platform warning banner means every further action digs the hole
	// deeper, so the whole run stops
	detector.OnLimitWarning(func() {
		logger.Warn().Msg("platform limit banner detected, stopping run")
		engine.Stop()
	})

	router := setupRouter(logger)
	apiHandler := api.NewAPI(engine, intake, store, settings, logger)
	apiHandler.RegisterRoutes(router)
	apiHandler.RegisterUIRoutes(router)

	baseCtx, baseCancel := context.WithCancel(context.Background())
	go detector.Run(baseCtx)
	go intake.Run(baseCtx, detector.Accounts())

	if cfg.AutoStart {
		engine.Start()
	}

	const (
		readHeaderTimeout = 5 * time.Second
		shutdownTimeout   = 10 * time.Second
	)

	srv := newHTTPServer(cfg.Port, router, readHeaderTimeout)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()
	logger.Info().Int("port", cfg.Port).Str("thread", cfg.ThreadURL).Msg("server started")

	waitForShutdownSignal(logger)

	gracefulShutdown(srv, baseCancel, engine, session, shutdownTimeout, logger)
}

func setupRouter(logger zerolog.Logger) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(api.RequestLogger(logger))
	return r
}

// effectiveSettings merges the three setting layers: built-in defaults are
// already folded into cfg by config.Load, and a settings document saved
// through the API overrides the config file. A saved document that no longer
// validates is ignored rather than wedging the boot.
func effectiveSettings(cfg config.Config, store *state.Store, logger zerolog.Logger) state.Settings {
	fromConfig := state.Settings{
		MinDelayMs:          cfg.Follow.MinDelayMs,
		MaxDelayMs:          cfg.Follow.MaxDelayMs,
		RateLimitThreshold:  cfg.Follow.RateLimitThreshold,
		RateLimitDurationMs: cfg.Follow.RateLimitDurationMs,
		DailyFollowLimit:    cfg.Follow.DailyFollowLimit,
		VerifiedOnly:        cfg.Detect.VerifiedOnly,
	}
	saved, ok, err := store.LoadSettings()
	if err != nil {
		logger.Warn().Err(err).Msg("saved settings unreadable, using config")
		return fromConfig
	}
	if !ok {
		return fromConfig
	}
	if err := settingsOptions(saved).Validate(); err != nil {
		logger.Warn().Err(err).Msg("saved settings invalid, using config")
		return fromConfig
	}
	return saved
}

func settingsOptions(s state.Settings) follow.Options {
	return follow.Options{
		MinDelay:           time.Duration(s.MinDelayMs) * time.Millisecond,
		MaxDelay:           time.Duration(s.MaxDelayMs) * time.Millisecond,
		RateLimitThreshold: s.RateLimitThreshold,
		RateLimitDuration:  time.Duration(s.RateLimitDurationMs) * time.Millisecond,
		DailyFollowLimit:   s.DailyFollowLimit,
	}
}

func buildEngine(store *state.Store, settings state.Settings, logger zerolog.Logger) (*follow.Engine, error) {
	engine, err := follow.NewEngine(store, settingsOptions(settings), logger)
	if err != nil {
		return nil, err
	}
	if err := engine.Restore(); err != nil {
		return nil, err
	}
	return engine, nil
}

func newHTTPServer(port int, handler http.Handler, readHeaderTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func waitForShutdownSignal(logger zerolog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutdown signal received")
}

func gracefulShutdown(srv *http.Server, cancelBase context.CancelFunc, engine *follow.Engine, session *browser.Session, timeout time.Duration, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("http server shutdown warning")
	}

	engine.Stop()
	cancelBase()
	if !engine.Wait(ctx) {
		logger.Warn().Msg("processing loop did not finish before timeout")
	}
	session.Close()
	logger.Info().Msg("server exited cleanly")
}
