package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestFollowedSetSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if s.IsFollowed("@alice") {
		t.Fatalf("fresh store should not know @alice")
	}
	if err := s.MarkFollowed("@alice", time.Now()); err != nil {
		t.Fatalf("mark followed: %v", err)
	}
	if !s.IsFollowed("@alice") {
		t.Fatalf("@alice not tracked after mark")
	}

	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	if !reopened.IsFollowed("@alice") || reopened.FollowedCount() != 1 {
		t.Fatalf("followed set lost across reopen")
	}
}

func TestCorruptFollowedFileFailsOpen(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "followed.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewStore(dir); err == nil {
		t.Fatalf("expected error for corrupt followed set")
	}
}

func TestRateLimitRecordRoundTrip(t *testing.T) {
	s := newTestStore(t)
	if _, ok, err := s.RateLimit(); err != nil || ok {
		t.Fatalf("expected empty store, got ok=%v err=%v", ok, err)
	}

	until := time.Now().Add(10 * time.Minute)
	if err := s.SaveRateLimit(RateLimitRecord{PauseUntil: until, SuccessCount: 7}); err != nil {
		t.Fatalf("save: %v", err)
	}
	rec, ok, err := s.RateLimit()
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if !rec.PauseUntil.Equal(until) || rec.SuccessCount != 7 {
		t.Fatalf("unexpected record: %+v", rec)
	}

	if err := s.ClearRateLimit(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := s.RateLimit(); ok {
		t.Fatalf("record survived clear")
	}
	// clearing an absent record is fine
	if err := s.ClearRateLimit(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}

func TestDailyLimitRecordLiveness(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.Local)
	rec := DailyLimitRecord{Limited: true, ReachedAt: now.Add(-2 * time.Hour)}
	if !rec.Live(now) {
		t.Fatalf("same-day record should be live")
	}
	if rec.Live(now.AddDate(0, 0, 1)) {
		t.Fatalf("record from yesterday should be stale")
	}
	if (DailyLimitRecord{ReachedAt: now}).Live(now) {
		t.Fatalf("unlimited record should never be live")
	}
}

func TestRateLimitRecordLiveness(t *testing.T) {
	now := time.Now()
	if !(RateLimitRecord{PauseUntil: now.Add(time.Minute)}).Live(now) {
		t.Fatalf("future pause should be live")
	}
	if (RateLimitRecord{PauseUntil: now.Add(-time.Minute)}).Live(now) {
		t.Fatalf("expired pause should be stale")
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	if _, ok, err := s.LoadSettings(); err != nil || ok {
		t.Fatalf("expected no settings, got ok=%v err=%v", ok, err)
	}
	want := Settings{
		MinDelayMs:          500,
		MaxDelayMs:          900,
		RateLimitThreshold:  5,
		RateLimitDurationMs: 60000,
		DailyFollowLimit:    42,
		VerifiedOnly:        true,
	}
	if err := s.SaveSettings(want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := s.LoadSettings()
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Fatalf("settings mismatch: got %+v want %+v", got, want)
	}
}
