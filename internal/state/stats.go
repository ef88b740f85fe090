package state

import "time"

const historyCap = 30

// DailyStats returns the stats with the day rollover applied for the given
// time. The roll is computed in memory and persisted on the next increment,
// so repeated reads across midnight stay consistent.
func (s *Store) DailyStats(now time.Time) (DailyStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadStats(now)
}

// IncrementToday applies the rollover, bumps today's count, persists, and
// returns the new count. A run crossing midnight therefore restarts from 1.
func (s *Store) IncrementToday(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats, err := s.loadStats(now)
	if err != nil {
		return 0, err
	}
	stats.Today.Count++
	if err := s.writeRecord(dailyStatsFile, stats); err != nil {
		return 0, err
	}
	return stats.Today.Count, nil
}

// ResetDailyStats discards today's count and the history.
func (s *Store) ResetDailyStats() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(dailyStatsFile)
}

// loadStats reads the stats record and rolls it over to the current day.
// Days without any follows are not archived. Callers hold s.mu.
func (s *Store) loadStats(now time.Time) (DailyStats, error) {
	var stats DailyStats
	if _, err := s.readRecord(dailyStatsFile, &stats); err != nil {
		return DailyStats{}, err
	}
	today := DayOf(now)
	if stats.Today.Date == today {
		return stats, nil
	}
	if stats.Today.Date != "" && stats.Today.Count > 0 {
		stats.History = append(stats.History, stats.Today)
		if len(stats.History) > historyCap {
			stats.History = stats.History[len(stats.History)-historyCap:]
		}
	}
	stats.Today = DayCount{Date: today}
	return stats, nil
}
