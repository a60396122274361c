// Package presence tracks who is online. Records are advisory: a user counts
// as online only while the heartbeat keeps lastSeen inside the staleness
// floor, so crashed clients fall out of the counts on their own.
package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/campushub/internal/chat"
	"github.com/campushub/internal/logger"
	"github.com/campushub/internal/model"
	"github.com/campushub/internal/storage"
)

// Filter narrows online counts by role and/or academic level. Zero values
// match everyone.
type Filter struct {
	Role          model.Role
	AcademicLevel string
}

func (f Filter) matches(rec model.PresenceRecord) bool {
	if f.Role != "" && rec.Role != f.Role {
		return false
	}
	if f.AcademicLevel != "" && rec.AcademicLevel != f.AcademicLevel {
		return false
	}
	return true
}

// Tracker owns the presence store connection and the per-user heartbeat
// tasks. Construct once per process and Close on shutdown; the explicit
// lifecycle replaces ambient global state.
type Tracker struct {
	store  storage.PresenceStore
	period time.Duration

	mu         sync.Mutex
	heartbeats map[string]context.CancelFunc
	wg         sync.WaitGroup

	subMu sync.RWMutex
	subs  map[*CountSubscription]struct{}

	now func() time.Time
}

// NewTracker creates a tracker. period <= 0 uses the default heartbeat period.
func NewTracker(store storage.PresenceStore, period time.Duration) *Tracker {
	if period <= 0 {
		period = chat.HeartbeatPeriod
	}
	return &Tracker{
		store:      store,
		period:     period,
		heartbeats: make(map[string]context.CancelFunc),
		subs:       make(map[*CountSubscription]struct{}),
		now:        time.Now,
	}
}

// Announce marks the user online with a merged profile snippet and starts a
// recurring heartbeat that re-stamps lastSeen until Withdraw or Close.
func (t *Tracker) Announce(ctx context.Context, profile model.UserPublic) error {
	if profile.ID == "" {
		return chat.ErrUnauthenticated
	}
	rec := model.PresenceRecord{
		UserID:        profile.ID,
		IsOnline:      true,
		LastSeen:      t.now().UTC(),
		Name:          profile.FullName,
		Role:          profile.Role,
		AcademicLevel: profile.AcademicLevel,
		AvatarURL:     profile.AvatarURL,
	}
	if err := t.store.UpsertPresence(ctx, rec); err != nil {
		return fmt.Errorf("presence.Announce: %w", err)
	}
	t.startHeartbeat(profile.ID)
	t.notify()
	return nil
}

// Withdraw stamps the user offline and cancels the heartbeat. Best-effort by
// contract: a failed write must not block logout — the record simply goes
// stale and the freshness filter takes over.
func (t *Tracker) Withdraw(ctx context.Context, userID string) error {
	t.stopHeartbeat(userID)
	if err := t.store.SetOffline(ctx, userID, t.now().UTC()); err != nil {
		return fmt.Errorf("presence.Withdraw: %w", err)
	}
	t.notify()
	return nil
}

// CountOnline returns the number of users who are online, fresh and match the
// filter. Store failures read as 0 with a logged warning.
func (t *Tracker) CountOnline(ctx context.Context, f Filter) int {
	recs, err := t.store.ListPresence(ctx)
	if err != nil {
		logger.Errorf("presence.CountOnline: %v", err)
		return 0
	}
	now := t.now()
	n := 0
	for _, rec := range recs {
		if rec.IsOnline && chat.IsFresh(rec.LastSeen, now, chat.PresenceFreshFor) && f.matches(rec) {
			n++
		}
	}
	return n
}

// OnlineUsers returns the fresh online records matching the filter, for the
// members sheet in the chat header.
func (t *Tracker) OnlineUsers(ctx context.Context, f Filter) []model.PresenceRecord {
	recs, err := t.store.ListPresence(ctx)
	if err != nil {
		logger.Errorf("presence.OnlineUsers: %v", err)
		return nil
	}
	now := t.now()
	out := make([]model.PresenceRecord, 0, len(recs))
	for _, rec := range recs {
		if rec.IsOnline && chat.IsFresh(rec.LastSeen, now, chat.PresenceFreshFor) && f.matches(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Close cancels every heartbeat task and waits for them to exit. Does not
// write offline records; per-user Withdraw is the caller's job on logout.
func (t *Tracker) Close() {
	t.mu.Lock()
	for id, cancel := range t.heartbeats {
		cancel()
		delete(t.heartbeats, id)
	}
	t.mu.Unlock()
	t.wg.Wait()
}

func (t *Tracker) startHeartbeat(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cancel, ok := t.heartbeats[userID]; ok {
		cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.heartbeats[userID] = cancel

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				beatCtx, beatCancel := context.WithTimeout(ctx, 5*time.Second)
				err := t.store.Heartbeat(beatCtx, userID, t.now().UTC())
				beatCancel()
				if err != nil {
					// Fire-and-forget: a missed beat only risks reading as
					// stale until the next one lands.
					logger.Errorf("presence heartbeat user=%s: %v", userID, err)
					continue
				}
				t.notify()
			}
		}
	}()
}

func (t *Tracker) stopHeartbeat(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cancel, ok := t.heartbeats[userID]; ok {
		cancel()
		delete(t.heartbeats, userID)
	}
}
