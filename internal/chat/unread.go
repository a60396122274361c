package chat

import (
	"context"
	"time"

	"github.com/campushub/internal/logger"
)

// UnreadCount returns the number of messages in the channel not sent by and
// not yet read by userID. A store failure is swallowed into 0 with a logged
// warning: the UI treats "no data yet" and "fetch failed" identically.
func (s *Service) UnreadCount(ctx context.Context, channel, userID string) int {
	n, err := s.store.UnreadCount(ctx, channel, userID)
	if err != nil {
		logger.Errorf("chat.UnreadCount channel=%s user=%s: %v", channel, userID, err)
		return 0
	}
	return n
}

// UnreadCounts batches UnreadCount across the channels a user has access to,
// for the per-chat badges on the channel list.
func (s *Service) UnreadCounts(ctx context.Context, channels []string, userID string) map[string]int {
	defer logger.DeferLogDuration("chat.UnreadCounts", time.Now())()
	out := make(map[string]int, len(channels))
	for _, ch := range channels {
		out[ch] = s.UnreadCount(ctx, ch, userID)
	}
	return out
}
