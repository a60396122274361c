package presence

import (
	"context"
	"sync"
	"time"

	"github.com/campushub/internal/chat"
	"github.com/campushub/internal/logger"
)

// CountSubscription is a live feed of the online count for one filter,
// re-evaluated on every presence record change.
type CountSubscription struct {
	filter Filter
	ch     chan int
	cancel func()
	once   sync.Once
}

// Updates is the stream of online counts. Closed after Cancel.
func (s *CountSubscription) Updates() <-chan int {
	return s.ch
}

// Cancel releases the subscription. Safe to call more than once.
func (s *CountSubscription) Cancel() {
	s.once.Do(s.cancel)
}

// push coalesces: a lagging consumer sees only the most recent count.
func (s *CountSubscription) push(n int) {
	for {
		select {
		case s.ch <- n:
			return
		default:
			select {
			case <-s.ch:
			default:
			}
		}
	}
}

// SubscribeCount registers a live online-count feed for the filter. The
// current count is pushed immediately, then again on every record change.
func (t *Tracker) SubscribeCount(ctx context.Context, f Filter) *CountSubscription {
	sub := &CountSubscription{filter: f, ch: make(chan int, 1)}
	sub.cancel = func() {
		t.subMu.Lock()
		delete(t.subs, sub)
		t.subMu.Unlock()
		close(sub.ch)
	}

	t.subMu.Lock()
	t.subs[sub] = struct{}{}
	t.subMu.Unlock()

	sub.push(t.CountOnline(ctx, f))
	return sub
}

// notify re-evaluates every count subscription against the current records.
func (t *Tracker) notify() {
	t.subMu.RLock()
	n := len(t.subs)
	t.subMu.RUnlock()
	if n == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	recs, err := t.store.ListPresence(ctx)
	if err != nil {
		logger.Errorf("presence.notify: %v", err)
		return
	}
	now := t.now()

	t.subMu.RLock()
	defer t.subMu.RUnlock()
	for sub := range t.subs {
		count := 0
		for _, rec := range recs {
			if rec.IsOnline && chat.IsFresh(rec.LastSeen, now, chat.PresenceFreshFor) && sub.filter.matches(rec) {
				count++
			}
		}
		sub.push(count)
	}
}
