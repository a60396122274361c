package typing

import (
	"context"
	"sync"

	"github.com/campushub/internal/model"
)

// Subscription is a live feed of the active typers in one channel, excluding
// the subscribing user.
type Subscription struct {
	exclude string
	ch      chan []model.TypingIndicator
	cancel  func()
	once    sync.Once
}

// Updates is the stream of active-typer sets. Closed after Cancel.
func (s *Subscription) Updates() <-chan []model.TypingIndicator {
	return s.ch
}

// Cancel releases the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

func (s *Subscription) push(inds []model.TypingIndicator) {
	for {
		select {
		case s.ch <- inds:
			return
		default:
			select {
			case <-s.ch:
			default:
			}
		}
	}
}

// Subscribe registers a live feed of active typers in the channel, excluding
// excludeUserID (the caller). The current set is pushed immediately. The
// filter is time-based and re-evaluated only on pushes, so a stale record can
// read as active for up to the freshness window — accepted latency.
func (t *Tracker) Subscribe(ctx context.Context, channel, excludeUserID string) *Subscription {
	sub := &Subscription{exclude: excludeUserID, ch: make(chan []model.TypingIndicator, 1)}
	sub.cancel = func() {
		t.mu.Lock()
		if set, ok := t.subs[channel]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(t.subs, channel)
			}
		}
		t.mu.Unlock()
		close(sub.ch)
	}

	t.mu.Lock()
	set, ok := t.subs[channel]
	if !ok {
		set = make(map[*Subscription]struct{})
		t.subs[channel] = set
	}
	set[sub] = struct{}{}
	t.mu.Unlock()

	sub.push(t.active(ctx, channel, excludeUserID))
	return sub
}
