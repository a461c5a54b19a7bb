package main

import (
	"testing"
	"time"
)

func TestNextAlignedTick(t *testing.T) {
	loc := time.Local
	interval := 6 * time.Hour

	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			"mid-window",
			time.Date(2025, 3, 10, 14, 30, 0, 0, loc),
			time.Date(2025, 3, 10, 18, 0, 0, 0, loc),
		},
		{
			"exactly on a boundary schedules the next one",
			time.Date(2025, 3, 10, 12, 0, 0, 0, loc),
			time.Date(2025, 3, 10, 18, 0, 0, 0, loc),
		},
		{
			"just after midnight",
			time.Date(2025, 3, 10, 0, 0, 1, 0, loc),
			time.Date(2025, 3, 10, 6, 0, 0, 0, loc),
		},
		{
			"last window rolls into the next day",
			time.Date(2025, 3, 10, 23, 59, 0, 0, loc),
			time.Date(2025, 3, 11, 0, 0, 0, 0, loc),
		},
	}

	for _, tc := range cases {
		if got := nextAlignedTick(tc.now, interval); !got.Equal(tc.want) {
			t.Errorf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}
