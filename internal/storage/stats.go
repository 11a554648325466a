package storage

import (
	"context"
	"time"

	"github.com/dukerupert/ritual/internal/model"
)

// GetUserStats summarizes the journal. It is recomputed on every call.
func (e *Engine) GetUserStats(ctx context.Context) (model.UserStats, error) {
	entries, err := e.GetEntries(ctx)
	if err != nil {
		return model.UserStats{}, err
	}
	return computeStats(entries, e.now()), nil
}

func computeStats(entries []model.Entry, now time.Time) model.UserStats {
	stats := model.UserStats{TotalEntries: len(entries)}
	if len(entries) == 0 {
		return stats
	}

	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	var (
		last     time.Time
		satSum   int
		satCount int
		counts   = make(map[string]int)
		order    []string
		byID     = make(map[string]model.ActivityType)
	)
	for _, en := range entries {
		if !en.Date.Before(startOfMonth) {
			stats.ThisMonth++
		}
		if en.Date.After(last) {
			last = en.Date
		}
		if en.Satisfaction != nil {
			satSum += *en.Satisfaction
			satCount++
		}
		id := en.ActivityType.ID
		if _, seen := counts[id]; !seen {
			order = append(order, id)
			byID[id] = en.ActivityType
		}
		counts[id]++
	}

	stats.LastActivity = &last
	if satCount > 0 {
		avg := float64(satSum) / float64(satCount)
		stats.AverageSatisfaction = &avg
	}

	// Ties go to the activity seen first.
	best := order[0]
	for _, id := range order[1:] {
		if counts[id] > counts[best] {
			best = id
		}
	}
	at := byID[best]
	stats.MostCommonActivity = &at

	return stats
}
