package planning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"projecthub/internal/domain"
)

func TestEstimate(t *testing.T) {
	assert.Equal(t, domain.Estimate{Optimistic: 8, Realistic: 10, Pessimistic: 12}, Estimate(10))
	assert.Equal(t, domain.Estimate{Optimistic: 0, Realistic: 0, Pessimistic: 0}, Estimate(0))
	assert.Equal(t, domain.Estimate{Optimistic: 2, Realistic: 2.5, Pessimistic: 3}, Estimate(2.5))
}

func TestEstimateIsOrdered(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		h := float64(rapid.IntRange(0, 400).Draw(t, "quarter_hours")) / 4
		e := Estimate(h)
		if e.Optimistic > e.Pessimistic {
			t.Fatalf("optimistic %v above pessimistic %v", e.Optimistic, e.Pessimistic)
		}
	})
}

func TestClassify(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	soon := now.Add(24 * time.Hour)
	later := now.Add(10 * 24 * time.Hour)
	edge := now.Add(UrgencyWindow)
	month := now.Add(30 * 24 * time.Hour)

	tests := []struct {
		name     string
		priority domain.Priority
		due      *time.Time
		want     domain.Quadrant
	}{
		{"critical due soon", domain.PriorityCritical, &soon, domain.QuadrantDoFirst},
		{"high due tomorrow", domain.PriorityHigh, &soon, domain.QuadrantDoFirst},
		{"low due in a month", domain.PriorityLow, &month, domain.QuadrantDelete},
		{"high due later", domain.PriorityHigh, &later, domain.QuadrantSchedule},
		{"low due soon", domain.PriorityLow, &soon, domain.QuadrantDelegate},
		{"medium due later", domain.PriorityMedium, &later, domain.QuadrantDelete},
		{"no due date", domain.PriorityCritical, nil, domain.QuadrantSchedule},
		{"exactly two days out", domain.PriorityLow, &edge, domain.QuadrantDelete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.priority, tt.due, now))
		})
	}
}
