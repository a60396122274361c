package chat

import "time"

// Staleness floors. Presence and typing records are filtered by comparing
// timestamps at read time; the store never enforces expiry itself, so these
// thresholds are the single source of the liveness policy.
const (
	// TypingFreshFor is how long a typing indicator counts as active after its
	// last keystroke-triggered update.
	TypingFreshFor = 5 * time.Second

	// PresenceFreshFor is the presence staleness floor: a record older than
	// this is treated as offline regardless of its stored isOnline flag.
	PresenceFreshFor = 2 * time.Minute

	// HeartbeatPeriod is how often an announced user re-stamps lastSeen. Must
	// be well under PresenceFreshFor so a live client never reads as stale.
	HeartbeatPeriod = 30 * time.Second
)

// IsFresh reports whether a record stamped at ts is still live at now given
// the threshold. Applied uniformly wherever presence/typing records are read.
func IsFresh(ts, now time.Time, threshold time.Duration) bool {
	return now.Sub(ts) < threshold
}
