package typing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/campushub/internal/chat"
	"github.com/campushub/internal/model"
	"github.com/campushub/internal/storage/memory"
)

func newTestTracker() (*Tracker, *time.Time) {
	now := time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)
	tr := NewTracker(memory.New())
	tr.now = func() time.Time { return now }
	return tr, &now
}

func typer(id, name string) model.UserPublic {
	return model.UserPublic{ID: id, FullName: name, Role: model.RoleStudent}
}

func TestSetTyping(t *testing.T) {
	ctx := context.Background()

	t.Run("indicator visible to others, not to self", func(t *testing.T) {
		tr, _ := newTestTracker()
		if err := tr.SetTyping(ctx, "CSM101", typer("u1", "Ama"), true); err != nil {
			t.Fatalf("SetTyping: %v", err)
		}

		others := tr.active(ctx, "CSM101", "u2")
		if len(others) != 1 || others[0].UserID != "u1" || others[0].Name != "Ama" {
			t.Fatalf("active for u2 = %+v", others)
		}
		if self := tr.active(ctx, "CSM101", "u1"); len(self) != 0 {
			t.Fatalf("active for u1 = %+v, want empty", self)
		}
	})

	t.Run("false clears the indicator", func(t *testing.T) {
		tr, _ := newTestTracker()
		if err := tr.SetTyping(ctx, "CSM101", typer("u1", "Ama"), true); err != nil {
			t.Fatalf("SetTyping: %v", err)
		}
		if err := tr.SetTyping(ctx, "CSM101", typer("u1", "Ama"), false); err != nil {
			t.Fatalf("SetTyping false: %v", err)
		}
		if got := tr.active(ctx, "CSM101", "u2"); len(got) != 0 {
			t.Fatalf("active after clear = %+v", got)
		}
	})

	t.Run("channels are isolated", func(t *testing.T) {
		tr, _ := newTestTracker()
		if err := tr.SetTyping(ctx, "CSM101", typer("u1", "Ama"), true); err != nil {
			t.Fatalf("SetTyping: %v", err)
		}
		if got := tr.active(ctx, "MATH161", "u2"); len(got) != 0 {
			t.Fatalf("active in other channel = %+v", got)
		}
	})

	t.Run("rejects missing user", func(t *testing.T) {
		tr, _ := newTestTracker()
		if err := tr.SetTyping(ctx, "CSM101", model.UserPublic{}, true); !errors.Is(err, chat.ErrUnauthenticated) {
			t.Fatalf("err = %v, want ErrUnauthenticated", err)
		}
	})
}

func TestStaleIndicatorsExpire(t *testing.T) {
	ctx := context.Background()
	tr, now := newTestTracker()

	if err := tr.SetTyping(ctx, "CSM101", typer("u1", "Ama"), true); err != nil {
		t.Fatalf("SetTyping: %v", err)
	}

	// Just inside the freshness window the indicator still shows.
	*now = now.Add(chat.TypingFreshFor - time.Millisecond)
	if got := tr.active(ctx, "CSM101", "u2"); len(got) != 1 {
		t.Fatalf("active inside window = %+v", got)
	}

	// At the window boundary it disappears even though the delete never ran.
	*now = now.Add(time.Millisecond)
	if got := tr.active(ctx, "CSM101", "u2"); len(got) != 0 {
		t.Fatalf("active past window = %+v", got)
	}

	// A fresh update from the same user revives it.
	if err := tr.SetTyping(ctx, "CSM101", typer("u1", "Ama"), true); err != nil {
		t.Fatalf("SetTyping again: %v", err)
	}
	if got := tr.active(ctx, "CSM101", "u2"); len(got) != 1 {
		t.Fatalf("active after refresh = %+v", got)
	}
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestTracker()

	sub := tr.Subscribe(ctx, "CSM101", "u2")
	defer sub.Cancel()

	if initial := <-sub.Updates(); len(initial) != 0 {
		t.Fatalf("initial set = %+v, want empty", initial)
	}

	if err := tr.SetTyping(ctx, "CSM101", typer("u1", "Ama"), true); err != nil {
		t.Fatalf("SetTyping: %v", err)
	}
	update := <-sub.Updates()
	if len(update) != 1 || update[0].UserID != "u1" {
		t.Fatalf("update = %+v", update)
	}

	// The subscriber's own typing must not echo back.
	if err := tr.SetTyping(ctx, "CSM101", typer("u2", "Kofi"), true); err != nil {
		t.Fatalf("SetTyping self: %v", err)
	}
	update = <-sub.Updates()
	if len(update) != 1 || update[0].UserID != "u1" {
		t.Fatalf("update with self typing = %+v", update)
	}

	if err := tr.Clear(ctx, "CSM101", "u1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if update = <-sub.Updates(); len(update) != 0 {
		t.Fatalf("update after clear = %+v", update)
	}

	sub.Cancel()
	for range sub.Updates() {
	}
}
