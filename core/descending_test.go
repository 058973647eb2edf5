package core

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/check"
)

func TestDescendingPrice(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	end := start.Add(time.Hour)

	tests := []struct {
		name     string
		now      time.Time
		expected string
	}{
		{"before start", start.Add(-time.Minute), "3"},
		{"at start", start, "3"},
		{"halfway", start.Add(30 * time.Minute), "2"},
		{"three quarters", start.Add(45 * time.Minute), "1.5"},
		{"at end", end, "1"},
		{"after end", end.Add(24 * time.Hour), "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price := DescendingPrice(d("3"), d("1"), start, end, tt.now)
			check.Equal(t, d(tt.expected).String(), price.String())
		})
	}
}

func TestDescendingPrice_Monotonic(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	end := start.Add(7 * time.Hour)

	prev := DescendingPrice(d("10"), d("0.3"), start, end, start)
	for step := time.Duration(0); step <= 8*time.Hour; step += 7 * time.Minute {
		price := DescendingPrice(d("10"), d("0.3"), start, end, start.Add(step))
		check.True(t, price.LessThanOrEqual(prev))
		check.True(t, price.GreaterThanOrEqual(d("0.3")))
		prev = price
	}
}

func TestDescendingPrice_RoundsDown(t *testing.T) {
	start := time.Unix(0, 0)
	end := start.Add(3 * time.Second)

	// 1 - 1/3 = 0.666... rounded down at 18 decimals
	price := DescendingPrice(d("1"), d("0"), start, end, start.Add(time.Second))
	check.Equal(t, "0.666666666666666666", price.String())
}
