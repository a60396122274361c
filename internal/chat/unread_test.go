package chat

import (
	"context"
	"testing"

	"github.com/campushub/internal/model"
	"github.com/campushub/internal/storage/memory"
)

func TestUnreadCount(t *testing.T) {
	ctx := context.Background()

	t.Run("counts only others' unread messages", func(t *testing.T) {
		svc := NewService(memory.New(), nil)

		// u1 sends two, u2 sends three. For u2: two unread from u1.
		for i := 0; i < 2; i++ {
			if _, err := svc.Send(ctx, "CSM101", testSender("u1", "Ama"), "from u1", nil); err != nil {
				t.Fatalf("Send: %v", err)
			}
		}
		for i := 0; i < 3; i++ {
			if _, err := svc.Send(ctx, "CSM101", testSender("u2", "Kofi"), "from u2", nil); err != nil {
				t.Fatalf("Send: %v", err)
			}
		}

		if got := svc.UnreadCount(ctx, "CSM101", "u2"); got != 2 {
			t.Fatalf("unread for u2 = %d, want 2", got)
		}
		if got := svc.UnreadCount(ctx, "CSM101", "u1"); got != 3 {
			t.Fatalf("unread for u1 = %d, want 3", got)
		}
		// A third user never wrote anything: everything is unread.
		if got := svc.UnreadCount(ctx, "CSM101", "u3"); got != 5 {
			t.Fatalf("unread for u3 = %d, want 5", got)
		}
	})

	t.Run("mark read drops to zero and stays there", func(t *testing.T) {
		svc := NewService(memory.New(), nil)
		if _, err := svc.Send(ctx, "CSM101", testSender("u1", "Ama"), "hello", nil); err != nil {
			t.Fatalf("Send: %v", err)
		}

		msgs := mustMessages(t, svc, "CSM101")
		if err := svc.MarkRead(ctx, "CSM101", msgs, "u2"); err != nil {
			t.Fatalf("MarkRead: %v", err)
		}
		if got := svc.UnreadCount(ctx, "CSM101", "u2"); got != 0 {
			t.Fatalf("unread after mark = %d, want 0", got)
		}

		// Re-marking is a no-op, and the readBy set never shrinks.
		if err := svc.MarkRead(ctx, "CSM101", mustMessages(t, svc, "CSM101"), "u2"); err != nil {
			t.Fatalf("second MarkRead: %v", err)
		}
		got := mustMessages(t, svc, "CSM101")[0]
		if len(got.ReadBy) != 2 {
			t.Fatalf("ReadBy = %v, want exactly [u1 u2]", got.ReadBy)
		}
	})

	t.Run("partial read leaves the rest unread", func(t *testing.T) {
		svc := NewService(memory.New(), nil)
		var first *model.Message
		for i, text := range []string{"one", "two", "three"} {
			m, err := svc.Send(ctx, "CSM101", testSender("u1", "Ama"), text, nil)
			if err != nil {
				t.Fatalf("Send: %v", err)
			}
			if i == 0 {
				first = m
			}
		}

		if err := svc.MarkRead(ctx, "CSM101", []model.Message{*first}, "u2"); err != nil {
			t.Fatalf("MarkRead: %v", err)
		}
		if got := svc.UnreadCount(ctx, "CSM101", "u2"); got != 2 {
			t.Fatalf("unread = %d, want 2", got)
		}
	})

	t.Run("batch counts across channels", func(t *testing.T) {
		svc := NewService(memory.New(), nil)
		if _, err := svc.Send(ctx, "CSM101", testSender("u1", "Ama"), "a", nil); err != nil {
			t.Fatalf("Send: %v", err)
		}
		if _, err := svc.Send(ctx, "MATH161", testSender("u1", "Ama"), "b", nil); err != nil {
			t.Fatalf("Send: %v", err)
		}

		counts := svc.UnreadCounts(ctx, []string{"CSM101", "MATH161", "GENERAL"}, "u2")
		want := map[string]int{"CSM101": 1, "MATH161": 1, "GENERAL": 0}
		for ch, n := range want {
			if counts[ch] != n {
				t.Fatalf("counts[%s] = %d, want %d (all: %v)", ch, counts[ch], n, counts)
			}
		}
	})
}

func TestReactions(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.New(), nil)

	sent, err := svc.Send(ctx, "CSM101", testSender("u1", "Ama"), "react to me", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	t.Run("add is idempotent per user and emoji", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			if err := svc.AddReaction(ctx, "CSM101", sent.ID, "u2", "🔥"); err != nil {
				t.Fatalf("AddReaction: %v", err)
			}
		}
		m := mustMessages(t, svc, "CSM101")[0]
		if got := m.Reactions["🔥"]; len(got) != 1 || got[0] != "u2" {
			t.Fatalf("reactions = %v", m.Reactions)
		}
	})

	t.Run("several emojis per user coexist", func(t *testing.T) {
		if err := svc.AddReaction(ctx, "CSM101", sent.ID, "u2", "👍"); err != nil {
			t.Fatalf("AddReaction: %v", err)
		}
		m := mustMessages(t, svc, "CSM101")[0]
		if !m.ReactedWith("u2", "🔥") || !m.ReactedWith("u2", "👍") {
			t.Fatalf("reactions = %v", m.Reactions)
		}
	})

	t.Run("toggle flips the state", func(t *testing.T) {
		if err := svc.ToggleReaction(ctx, "CSM101", sent.ID, "u3", "🔥"); err != nil {
			t.Fatalf("ToggleReaction add: %v", err)
		}
		if m := mustMessages(t, svc, "CSM101")[0]; !m.ReactedWith("u3", "🔥") {
			t.Fatal("toggle did not add the reaction")
		}
		if err := svc.ToggleReaction(ctx, "CSM101", sent.ID, "u3", "🔥"); err != nil {
			t.Fatalf("ToggleReaction remove: %v", err)
		}
		if m := mustMessages(t, svc, "CSM101")[0]; m.ReactedWith("u3", "🔥") {
			t.Fatal("toggle did not remove the reaction")
		}
	})

	t.Run("remove drops empty emoji buckets", func(t *testing.T) {
		if err := svc.RemoveReaction(ctx, "CSM101", sent.ID, "u2", "👍"); err != nil {
			t.Fatalf("RemoveReaction: %v", err)
		}
		m := mustMessages(t, svc, "CSM101")[0]
		if _, ok := m.Reactions["👍"]; ok {
			t.Fatalf("empty bucket kept: %v", m.Reactions)
		}
	})
}
