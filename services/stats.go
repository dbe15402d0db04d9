package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prepmate/backend/models"
	"github.com/prepmate/backend/repository"
)

// StatsService maintains per-user solve totals and streaks. Stats are only
// ever advanced on a confirmed solve, never decremented.
type StatsService struct {
	repo *repository.GORMRepository
}

func NewStatsService(repo *repository.GORMRepository) *StatsService {
	return &StatsService{repo: repo}
}

// RecordSolve updates the user's stats for a solve at solvedAt and persists
// the result. A same-day resubmission is idempotent and writes nothing.
func (s *StatsService) RecordSolve(ctx context.Context, userID string, solvedAt time.Time) (*models.UserStats, error) {
	stats, err := s.repo.GetUserStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user stats: %w", err)
	}

	if stats == nil {
		stats = &models.UserStats{UserID: userID}
	}

	if !applySolve(stats, solvedAt) {
		slog.Debug("Solve already recorded today", "user_id", userID)
		return stats, nil
	}

	if err := s.repo.SaveUserStats(ctx, stats); err != nil {
		return nil, fmt.Errorf("failed to save user stats: %w", err)
	}

	slog.Info("Solve recorded",
		"user_id", userID,
		"total_solved", stats.TotalSolved,
		"current_streak", stats.CurrentStreak,
		"longest_streak", stats.LongestStreak)
	return stats, nil
}

// Stats returns the user's stats, or a zeroed record if none exist yet
func (s *StatsService) Stats(ctx context.Context, userID string) (*models.UserStats, error) {
	stats, err := s.repo.GetUserStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user stats: %w", err)
	}
	if stats == nil {
		return &models.UserStats{UserID: userID}, nil
	}
	return stats, nil
}

// applySolve advances the stats record in place using calendar-day adjacency:
//   - first ever solve: everything starts at 1
//   - last solve was yesterday: current streak advances
//   - last solve was today: no change, reported as false
//   - anything older: current streak resets to 1
//
// longest_streak = max(longest_streak, current_streak) holds after every
// update.
func applySolve(stats *models.UserStats, solvedAt time.Time) bool {
	today := startOfDay(solvedAt)

	if stats.LastSolvedDate != nil {
		lastDay := startOfDay(*stats.LastSolvedDate)
		switch {
		case lastDay.Equal(today):
			return false
		case lastDay.Equal(today.AddDate(0, 0, -1)):
			stats.CurrentStreak++
		default:
			stats.CurrentStreak = 1
		}
	} else {
		stats.CurrentStreak = 1
	}

	stats.TotalSolved++
	if stats.CurrentStreak > stats.LongestStreak {
		stats.LongestStreak = stats.CurrentStreak
	}
	stats.LastSolvedDate = &today
	return true
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
