package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"verifollow/internal/follow"
	"verifollow/internal/state"
)

type noopFollower struct{}

func (noopFollower) Follow(ctx context.Context, handle string) (bool, error) { return true, nil }

type testEnv struct {
	router *gin.Engine
	engine *follow.Engine
	store  *state.Store
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st, err := state.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	eng, err := follow.NewEngine(st, follow.Options{
		MinDelay:           time.Millisecond,
		MaxDelay:           2 * time.Millisecond,
		RateLimitThreshold: 100,
		RateLimitDuration:  time.Minute,
		DailyFollowLimit:   1000,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() {
		eng.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		eng.Wait(ctx)
	})

	intake := follow.NewIntake(eng, st, noopFollower{}, true, zerolog.Nop())
	apiHandler := NewAPI(eng, intake, st, state.Settings{
		MinDelayMs:          1000,
		MaxDelayMs:          3000,
		RateLimitThreshold:  10,
		RateLimitDurationMs: 600000,
		DailyFollowLimit:    100,
		VerifiedOnly:        true,
	}, zerolog.Nop())

	router := gin.New()
	router.Use(RequestLogger(zerolog.Nop()), gin.Recovery())
	apiHandler.RegisterRoutes(router)
	apiHandler.RegisterUIRoutes(router)
	return &testEnv{router: router, engine: eng, store: st}
}

func doRequest(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return resp
}

func TestStatusEndpoint(t *testing.T) {
	env := setupEnv(t)

	w := doRequest(t, env.router, http.MethodGet, "/api/v1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	resp := decode(t, w)
	if resp["status"] != string(follow.StatusIdle) {
		t.Fatalf("expected idle, got %v", resp["status"])
	}
	if resp["total"] != float64(0) || resp["detected"] != float64(0) {
		t.Fatalf("expected empty counters, got %v", resp)
	}
}

func TestFollowControlFlow(t *testing.T) {
	env := setupEnv(t)

	w := doRequest(t, env.router, http.MethodPost, "/api/v1/follow/start", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, w.Code)
	}
	// an empty queue may already have flipped the fresh run to idle
	if s := decode(t, w)["status"]; s != string(follow.StatusRunning) && s != string(follow.StatusIdle) {
		t.Fatalf("expected running or idle after start, got %v", s)
	}

	w = doRequest(t, env.router, http.MethodPost, "/api/v1/follow/pause", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if s := decode(t, w)["status"]; s != string(follow.StatusPaused) {
		t.Fatalf("expected paused, got %v", s)
	}

	w = doRequest(t, env.router, http.MethodPost, "/api/v1/follow/stop", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if s := decode(t, w)["status"]; s != string(follow.StatusStopped) {
		t.Fatalf("expected stopped, got %v", s)
	}
}

func TestRateLimitEndpoints(t *testing.T) {
	env := setupEnv(t)

	w := doRequest(t, env.router, http.MethodGet, "/api/v1/limits/rate", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp := decode(t, w); resp["is_rate_limited"] != false {
		t.Fatalf("fresh engine should not be rate limited: %v", resp)
	}

	env.engine.EnterRateLimit(time.Now().Add(time.Hour), 5)
	w = doRequest(t, env.router, http.MethodGet, "/api/v1/limits/rate", "")
	resp := decode(t, w)
	if resp["is_rate_limited"] != true || resp["success_since_pause"] != float64(5) {
		t.Fatalf("expected active cooldown with 5 successes, got %v", resp)
	}
	if resp["pause_until"] == nil || resp["remaining_ms"].(float64) <= 0 {
		t.Fatalf("expected a live deadline, got %v", resp)
	}

	w = doRequest(t, env.router, http.MethodPost, "/api/v1/limits/rate/resume", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp := decode(t, w); resp["is_rate_limited"] != false {
		t.Fatalf("resume should clear the cooldown: %v", resp)
	}
	if _, ok, _ := env.store.RateLimit(); ok {
		t.Fatal("resume should drop the persisted record")
	}
}

func TestDailyLimitAndReset(t *testing.T) {
	env := setupEnv(t)
	now := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := env.store.IncrementToday(now); err != nil {
			t.Fatalf("IncrementToday: %v", err)
		}
	}
	if err := env.store.SaveDailyLimit(state.DailyLimitRecord{Limited: true, ReachedAt: now}); err != nil {
		t.Fatalf("SaveDailyLimit: %v", err)
	}
	if err := env.engine.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	w := doRequest(t, env.router, http.MethodGet, "/api/v1/limits/daily", "")
	resp := decode(t, w)
	if resp["is_daily_limited"] != true || resp["today_count"] != float64(3) {
		t.Fatalf("expected active daily limit with 3 follows, got %v", resp)
	}

	w = doRequest(t, env.router, http.MethodPost, "/api/v1/stats/reset", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp = decode(t, w)
	if resp["is_daily_limited"] != false || resp["today_count"] != float64(0) {
		t.Fatalf("reset should clear the limit, got %v", resp)
	}
	stats, err := env.store.DailyStats(time.Now())
	if err != nil {
		t.Fatalf("DailyStats: %v", err)
	}
	if stats.Today.Count != 0 {
		t.Fatalf("today count = %d, want 0 after reset", stats.Today.Count)
	}
}

func TestDailyStatsEndpoint(t *testing.T) {
	env := setupEnv(t)
	now := time.Now()
	for i := 0; i < 2; i++ {
		if _, err := env.store.IncrementToday(now); err != nil {
			t.Fatalf("IncrementToday: %v", err)
		}
	}

	w := doRequest(t, env.router, http.MethodGet, "/api/v1/stats/daily", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decode(t, w)
	today, ok := resp["today"].(map[string]any)
	if !ok || today["count"] != float64(2) {
		t.Fatalf("expected today count 2, got %v", resp)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	env := setupEnv(t)

	w := doRequest(t, env.router, http.MethodGet, "/api/v1/settings", "")
	if resp := decode(t, w); resp["min_delay_ms"] != float64(1000) || resp["verified_only"] != true {
		t.Fatalf("unexpected initial settings: %v", resp)
	}

	body := `{"min_delay_ms":500,"max_delay_ms":900,"rate_limit_threshold":5,"rate_limit_duration_ms":120000,"daily_follow_limit":50,"verified_only":false}`
	w = doRequest(t, env.router, http.MethodPut, "/api/v1/settings", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(t, env.router, http.MethodGet, "/api/v1/settings", "")
	if resp := decode(t, w); resp["max_delay_ms"] != float64(900) || resp["verified_only"] != false {
		t.Fatalf("settings not applied: %v", resp)
	}

	// the live engine picked the new limits up
	w = doRequest(t, env.router, http.MethodGet, "/api/v1/limits/rate", "")
	if resp := decode(t, w); resp["threshold"] != float64(5) {
		t.Fatalf("engine threshold not updated: %v", resp)
	}
	w = doRequest(t, env.router, http.MethodGet, "/api/v1/limits/daily", "")
	if resp := decode(t, w); resp["limit"] != float64(50) {
		t.Fatalf("engine daily limit not updated: %v", resp)
	}

	saved, ok, err := env.store.LoadSettings()
	if err != nil || !ok {
		t.Fatalf("settings should be persisted, ok = %v err = %v", ok, err)
	}
	if saved.RateLimitThreshold != 5 || saved.DailyFollowLimit != 50 {
		t.Fatalf("persisted settings = %+v", saved)
	}
}

func TestSettingsValidation(t *testing.T) {
	env := setupEnv(t)

	w := doRequest(t, env.router, http.MethodPut, "/api/v1/settings", `{"min_delay`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", w.Code)
	}

	body := `{"min_delay_ms":5000,"max_delay_ms":900,"rate_limit_threshold":5,"rate_limit_duration_ms":120000,"daily_follow_limit":50,"verified_only":true}`
	w = doRequest(t, env.router, http.MethodPut, "/api/v1/settings", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for max below min, got %d", w.Code)
	}

	// rejected updates must not half-apply
	w = doRequest(t, env.router, http.MethodGet, "/api/v1/settings", "")
	if resp := decode(t, w); resp["min_delay_ms"] != float64(1000) {
		t.Fatalf("rejected settings leaked: %v", resp)
	}
}

func TestUIHomeRenders(t *testing.T) {
	env := setupEnv(t)

	w := doRequest(t, env.router, http.MethodGet, "/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	page := w.Body.String()
	for _, want := range []string{"VeriFollow", "Queue", "Cooldown", "Daily limit", "Settings"} {
		if !strings.Contains(page, want) {
			t.Fatalf("page missing %q", want)
		}
	}
}

func TestUISaveSettingsRejectsBadNumber(t *testing.T) {
	env := setupEnv(t)

	form := "min_delay_ms=abc&max_delay_ms=900&rate_limit_threshold=5&rate_limit_duration_ms=1000&daily_follow_limit=50"
	req := httptest.NewRequest(http.MethodPost, "/ui/settings", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestUIStartRedirects(t *testing.T) {
	env := setupEnv(t)

	w := doRequest(t, env.router, http.MethodPost, "/ui/follow/start", "")
	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/" {
		t.Fatalf("expected redirect to /, got %q", loc)
	}
}
