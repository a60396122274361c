package chat

import (
	"sync"

	"github.com/campushub/internal/model"
)

// Subscription is a live feed of one channel's message log. Every update
// carries the complete ordered list, not a delta, so consumers never merge.
// The buffer coalesces: when the consumer lags, older snapshots are replaced
// by newer ones and the latest state always wins.
type Subscription struct {
	ch     chan []model.Message
	cancel func()
	once   sync.Once
}

// Updates is the stream of full ordered snapshots. Closed after Cancel.
func (s *Subscription) Updates() <-chan []model.Message {
	return s.ch
}

// Cancel releases the subscription. Safe to call more than once. Failing to
// cancel leaks a registered listener for the lifetime of the service.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

// push delivers a snapshot without blocking: if the buffer is full the stale
// snapshot is dropped in favor of the new one.
func (s *Subscription) push(msgs []model.Message) {
	for {
		select {
		case s.ch <- msgs:
			return
		default:
			select {
			case <-s.ch:
			default:
			}
		}
	}
}
