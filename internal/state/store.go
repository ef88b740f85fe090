package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"verifollow/internal/file"
)

const (
	followedFile   = "followed.json"
	settingsFile   = "settings.json"
	rateLimitFile  = "rate_limit.json"
	dailyLimitFile = "daily_limit.json"
	dailyStatsFile = "daily_stats.json"
)

// Store persists service state as JSON files under a single directory, one
// file per logical record. Writes are atomic (temp file + rename) and the
// store assumes a single owning process.
type Store struct {
	dir string

	mu       sync.Mutex
	followed map[string]time.Time
}

// NewStore ensures dir exists and loads the followed set into memory.
func NewStore(dir string) (*Store, error) {
	if err := file.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}
	s := &Store{dir: dir, followed: make(map[string]time.Time)}
	if err := file.ReadJSON(s.path(followedFile), &s.followed); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load followed set: %w", err)
	}
	if s.followed == nil {
		s.followed = make(map[string]time.Time)
	}
	return s, nil
}

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

// IsFollowed reports whether the handle was already followed in a past or
// current run.
func (s *Store) IsFollowed(handle string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.followed[handle]
	return ok
}

// MarkFollowed records a successful follow and persists the full set.
func (s *Store) MarkFollowed(handle string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.followed[handle] = at
	if err := file.WriteJSONAtomic(s.path(followedFile), s.followed); err != nil {
		return fmt.Errorf("persist followed set: %w", err)
	}
	return nil
}

// FollowedCount returns the size of the followed set.
func (s *Store) FollowedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.followed)
}

// LoadSettings returns the saved runtime settings. ok is false when none were
// ever saved.
func (s *Store) LoadSettings() (Settings, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st Settings
	ok, err := s.readRecord(settingsFile, &st)
	return st, ok, err
}

// SaveSettings persists runtime settings for the next boot.
func (s *Store) SaveSettings(st Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeRecord(settingsFile, st)
}

// RateLimit returns the persisted cooldown record, if any.
func (s *Store) RateLimit() (RateLimitRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rec RateLimitRecord
	ok, err := s.readRecord(rateLimitFile, &rec)
	return rec, ok, err
}

// SaveRateLimit persists an entered cooldown.
func (s *Store) SaveRateLimit(rec RateLimitRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeRecord(rateLimitFile, rec)
}

// ClearRateLimit removes the cooldown record. Clearing an absent record is
// not an error.
func (s *Store) ClearRateLimit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(rateLimitFile)
}

// DailyLimit returns the persisted daily-quota record, if any.
func (s *Store) DailyLimit() (DailyLimitRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rec DailyLimitRecord
	ok, err := s.readRecord(dailyLimitFile, &rec)
	return rec, ok, err
}

// SaveDailyLimit persists a reached daily quota.
func (s *Store) SaveDailyLimit(rec DailyLimitRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeRecord(dailyLimitFile, rec)
}

// ClearDailyLimit removes the daily-quota record.
func (s *Store) ClearDailyLimit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(dailyLimitFile)
}

// readRecord loads one JSON record. A missing file means no record and is
// not an error. Callers hold s.mu.
func (s *Store) readRecord(name string, v any) (bool, error) {
	err := file.ReadJSON(s.path(name), v)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	return true, nil
}

// writeRecord persists one JSON record atomically. Callers hold s.mu.
func (s *Store) writeRecord(name string, v any) error {
	if err := file.WriteJSONAtomic(s.path(name), v); err != nil {
		return fmt.Errorf("persist %s: %w", name, err)
	}
	return nil
}

// remove deletes one record file, tolerating its absence. Callers hold s.mu.
func (s *Store) remove(name string) error {
	if err := os.Remove(s.path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}
