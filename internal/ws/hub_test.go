package ws

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/campushub/internal/chat"
	"github.com/campushub/internal/directory"
	"github.com/campushub/internal/model"
	"github.com/campushub/internal/presence"
	"github.com/campushub/internal/repository"
	"github.com/campushub/internal/storage/memory"
	"github.com/campushub/internal/typing"
)

func TestTruncateBody(t *testing.T) {
	t.Run("short text unchanged", func(t *testing.T) {
		if got := truncateBody("hello", 120); got != "hello" {
			t.Fatalf("got %q", got)
		}
	})

	t.Run("exactly at the limit unchanged", func(t *testing.T) {
		s := strings.Repeat("a", 120)
		if got := truncateBody(s, 120); got != s {
			t.Fatalf("got %d bytes", len(got))
		}
	})

	t.Run("long ascii gets an ellipsis", func(t *testing.T) {
		got := truncateBody(strings.Repeat("a", 200), 120)
		if len(got) != 120 || !strings.HasSuffix(got, "...") {
			t.Fatalf("got %d bytes: %q", len(got), got)
		}
	})

	t.Run("never splits a multi-byte rune", func(t *testing.T) {
		for _, s := range []string{
			strings.Repeat("é", 100),  // 2-byte runes
			strings.Repeat("🔥", 50),   // 4-byte runes
			strings.Repeat("a", 116) + "🔥🔥", // rune straddles the cut
		} {
			got := truncateBody(s, 120)
			if len(got) > 120 {
				t.Fatalf("got %d bytes from %q", len(got), s)
			}
			if !utf8.ValidString(got) {
				t.Fatalf("invalid UTF-8 after truncation: %q", got)
			}
		}
	})
}

type hubTestUsers map[string]*model.User

func (f hubTestUsers) GetByID(ctx context.Context, id string) (*model.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

type hubTestCourses map[string][]string

func (f hubTestCourses) EnrolledCourses(ctx context.Context, userID string) ([]string, error) {
	return f[userID], nil
}

func (f hubTestCourses) TeachingCourses(ctx context.Context, lecturerName string) ([]string, error) {
	return nil, nil
}

// newJoinedClient builds a hub over the memory stores and a client enrolled in
// CSM101, without a network connection behind it.
func newJoinedClient(t *testing.T) (*Hub, *chat.Service, *Client) {
	t.Helper()
	chatSvc := chat.NewService(memory.New(), nil)
	typingTr := typing.NewTracker(memory.New())
	presenceTr := presence.NewTracker(memory.New(), time.Hour)
	t.Cleanup(presenceTr.Close)
	hub := NewHub(chatSvc, typingTr, presenceTr, nil, 0, nil)

	dir := directory.New(
		hubTestUsers{"u1": {ID: "u1", FullName: "Ama Boateng", Role: model.RoleStudent, AcademicLevel: "100"}},
		hubTestCourses{"u1": {"CSM101"}},
	)
	m, err := dir.Resolve(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	c := &Client{
		hub:        hub,
		send:       make(chan OutgoingMessage, sendBufSize),
		userID:     "u1",
		profile:    model.UserPublic{ID: "u1", FullName: "Ama Boateng", Role: model.RoleStudent, AcademicLevel: "100"},
		membership: m,
		feeds:      make(map[string]*channelFeeds),
		done:       make(chan struct{}),
	}
	t.Cleanup(c.cancelFeeds)
	return hub, chatSvc, c
}

func recvEvent(t *testing.T, c *Client) OutgoingMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for an event")
		return OutgoingMessage{}
	}
}

func TestJoinChannel(t *testing.T) {
	ctx := context.Background()
	hub, chatSvc, c := newJoinedClient(t)

	sender := model.UserPublic{ID: "u2", FullName: "Kofi Mensah", Role: model.RoleStudent}
	if _, err := chatSvc.Send(ctx, "CSM101", sender, "before join", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}

	hub.HandleMessage(ctx, c, IncomingMessage{Type: EventJoinChannel, Channel: "CSM101"})

	// The join opens two feeds; each pushes its initial state in either order.
	seen := map[EventType]bool{}
	for i := 0; i < 2; i++ {
		evt := recvEvent(t, c)
		seen[evt.Type] = true
		if evt.Type == EventChannelMessages {
			payload := evt.Payload.(ChannelMessagesPayload)
			if len(payload.Messages) != 1 || payload.Messages[0].Text != "before join" {
				t.Fatalf("initial snapshot = %+v", payload)
			}
		}
	}
	if !seen[EventChannelMessages] || !seen[EventTypingUsers] {
		t.Fatalf("initial events = %v", seen)
	}

	// A second join is a no-op: still one feed set, no duplicate streams.
	hub.HandleMessage(ctx, c, IncomingMessage{Type: EventJoinChannel, Channel: "CSM101"})
	c.feedMu.Lock()
	n := len(c.feeds)
	c.feedMu.Unlock()
	if n != 1 {
		t.Fatalf("feeds after double join = %d, want 1", n)
	}

	// The surviving feed keeps delivering snapshots.
	if _, err := chatSvc.Send(ctx, "CSM101", sender, "after join", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	evt := recvEvent(t, c)
	if evt.Type != EventChannelMessages {
		t.Fatalf("event type = %s", evt.Type)
	}
	payload := evt.Payload.(ChannelMessagesPayload)
	if len(payload.Messages) != 2 || payload.Messages[1].Text != "after join" {
		t.Fatalf("snapshot after send = %+v", payload)
	}
}

func TestJoinChannelDeniedForNonMember(t *testing.T) {
	ctx := context.Background()
	hub, _, c := newJoinedClient(t)

	hub.HandleMessage(ctx, c, IncomingMessage{Type: EventJoinChannel, Channel: "MATH161"})
	evt := recvEvent(t, c)
	if evt.Type != EventError {
		t.Fatalf("event type = %s, want error", evt.Type)
	}
	if payload := evt.Payload.(ErrorPayload); payload.Reason != "not_a_member" {
		t.Fatalf("reason = %q", payload.Reason)
	}
	c.feedMu.Lock()
	n := len(c.feeds)
	c.feedMu.Unlock()
	if n != 0 {
		t.Fatalf("feeds after denied join = %d, want 0", n)
	}
}
