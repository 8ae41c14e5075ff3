// Package planning provides estimation and prioritisation helpers.
package planning

import (
	"math"
	"time"

	"projecthub/internal/domain"
)

// UrgencyWindow is how close to its due date a task becomes urgent.
const UrgencyWindow = 48 * time.Hour

// Estimate returns the three-point estimate for a realistic effort in hours.
func Estimate(hours float64) domain.Estimate {
	return domain.Estimate{
		Optimistic:  math.Round(hours * 0.8),
		Realistic:   hours,
		Pessimistic: math.Round(hours * 1.2),
	}
}

// Classify places a task in the Eisenhower matrix. A task without a due date
// is never urgent.
func Classify(priority domain.Priority, due *time.Time, now time.Time) domain.Quadrant {
	urgent := due != nil && now.After(due.Add(-UrgencyWindow))
	important := priority == domain.PriorityCritical || priority == domain.PriorityHigh
	switch {
	case urgent && important:
		return domain.QuadrantDoFirst
	case important:
		return domain.QuadrantSchedule
	case urgent:
		return domain.QuadrantDelegate
	default:
		return domain.QuadrantDelete
	}
}
