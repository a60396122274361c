package chat

import (
	"testing"
	"time"
)

func TestIsFresh(t *testing.T) {
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	threshold := 5 * time.Second

	cases := []struct {
		name string
		ts   time.Time
		want bool
	}{
		{"just stamped", now, true},
		{"inside the window", now.Add(-threshold + time.Millisecond), true},
		{"exactly at the threshold", now.Add(-threshold), false},
		{"past the threshold", now.Add(-threshold - time.Second), false},
		{"stamped in the future", now.Add(time.Second), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsFresh(tc.ts, now, threshold); got != tc.want {
				t.Fatalf("IsFresh(%v) = %v, want %v", now.Sub(tc.ts), got, tc.want)
			}
		})
	}
}

func TestHeartbeatStaysUnderStalenessFloor(t *testing.T) {
	// A live client that beats on schedule must never read as stale, even if
	// one beat is dropped.
	if 2*HeartbeatPeriod >= PresenceFreshFor {
		t.Fatalf("heartbeat period %v too close to staleness floor %v", HeartbeatPeriod, PresenceFreshFor)
	}
}
