package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/campushub/internal/model"
	"github.com/campushub/internal/storage/memory"
)

type typingClearerFunc func(ctx context.Context, channel, userID string) error

func (f typingClearerFunc) Clear(ctx context.Context, channel, userID string) error {
	return f(ctx, channel, userID)
}

func testSender(id, name string) model.UserPublic {
	return model.UserPublic{ID: id, FullName: name, Role: model.RoleStudent, AcademicLevel: "100"}
}

func TestSend(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns order and self-read", func(t *testing.T) {
		store := memory.New()
		svc := NewService(store, nil)

		for _, text := range []string{"first", "second", "third"} {
			if _, err := svc.Send(ctx, "CSM101", testSender("u1", "Ama"), text, nil); err != nil {
				t.Fatalf("Send(%q): %v", text, err)
			}
		}

		msgs, err := svc.Messages(ctx, "CSM101")
		if err != nil {
			t.Fatalf("Messages: %v", err)
		}
		if len(msgs) != 3 {
			t.Fatalf("got %d messages, want 3", len(msgs))
		}
		for i, want := range []string{"first", "second", "third"} {
			if msgs[i].Text != want {
				t.Fatalf("message %d text = %q, want %q", i, msgs[i].Text, want)
			}
		}
		m := msgs[0]
		if len(m.ReadBy) != 1 || m.ReadBy[0] != "u1" {
			t.Fatalf("ReadBy = %v, want [u1]", m.ReadBy)
		}
		if m.Status != model.MessageStatusSent {
			t.Fatalf("Status = %q, want %q", m.Status, model.MessageStatusSent)
		}
	})

	t.Run("rejects empty text", func(t *testing.T) {
		svc := NewService(memory.New(), nil)
		for _, text := range []string{"", "   ", "\n\t"} {
			if _, err := svc.Send(ctx, "CSM101", testSender("u1", "Ama"), text, nil); !errors.Is(err, ErrEmptyMessage) {
				t.Fatalf("Send(%q) err = %v, want ErrEmptyMessage", text, err)
			}
		}
	})

	t.Run("rejects missing sender", func(t *testing.T) {
		svc := NewService(memory.New(), nil)
		if _, err := svc.Send(ctx, "CSM101", model.UserPublic{}, "hi", nil); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("err = %v, want ErrUnauthenticated", err)
		}
	})

	t.Run("clears sender typing indicator", func(t *testing.T) {
		var clearedChannel, clearedUser string
		clearer := typingClearerFunc(func(ctx context.Context, channel, userID string) error {
			clearedChannel, clearedUser = channel, userID
			return nil
		})
		svc := NewService(memory.New(), clearer)
		if _, err := svc.Send(ctx, "CSM101", testSender("u1", "Ama"), "hello", nil); err != nil {
			t.Fatalf("Send: %v", err)
		}
		if clearedChannel != "CSM101" || clearedUser != "u1" {
			t.Fatalf("typing cleared for (%q,%q), want (CSM101,u1)", clearedChannel, clearedUser)
		}
	})

	t.Run("updates channel preview", func(t *testing.T) {
		svc := NewService(memory.New(), nil)
		if _, err := svc.Send(ctx, "CSM101", testSender("u1", "Ama"), "latest", nil); err != nil {
			t.Fatalf("Send: %v", err)
		}
		preview, err := svc.LastMessagePreview(ctx, "CSM101")
		if err != nil {
			t.Fatalf("LastMessagePreview: %v", err)
		}
		if preview == nil || preview.LastMessage == nil {
			t.Fatal("preview missing after send")
		}
		if preview.LastMessage.Text != "latest" || preview.LastMessage.SenderID != "u1" {
			t.Fatalf("preview = %+v", preview.LastMessage)
		}
	})

	t.Run("preview is nil for an empty channel", func(t *testing.T) {
		svc := NewService(memory.New(), nil)
		preview, err := svc.LastMessagePreview(ctx, "MATH161")
		if err != nil {
			t.Fatalf("LastMessagePreview: %v", err)
		}
		if preview != nil {
			t.Fatalf("preview = %+v, want nil", preview)
		}
	})
}

func TestEdit(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewService(store, nil)
	edited := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return edited }

	sent, err := svc.Send(ctx, "CSM101", testSender("u1", "Ama"), "original", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := svc.MarkRead(ctx, "CSM101", mustMessages(t, svc, "CSM101"), "u2"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if err := svc.AddReaction(ctx, "CSM101", sent.ID, "u2", "👍"); err != nil {
		t.Fatalf("AddReaction: %v", err)
	}

	t.Run("non-sender denied", func(t *testing.T) {
		if _, err := svc.Edit(ctx, "CSM101", sent.ID, "u2", "hacked"); !errors.Is(err, ErrPermissionDenied) {
			t.Fatalf("err = %v, want ErrPermissionDenied", err)
		}
	})

	t.Run("sender edit preserves reads and reactions", func(t *testing.T) {
		if _, err := svc.Edit(ctx, "CSM101", sent.ID, "u1", "corrected"); err != nil {
			t.Fatalf("Edit: %v", err)
		}
		msgs := mustMessages(t, svc, "CSM101")
		m := msgs[0]
		if m.Text != "corrected" || !m.Edited {
			t.Fatalf("message after edit = %+v", m)
		}
		if m.EditedAt == nil || !m.EditedAt.Equal(edited) {
			t.Fatalf("EditedAt = %v, want %v", m.EditedAt, edited)
		}
		if !m.ReadBySet("u2") {
			t.Fatal("edit dropped the readBy set")
		}
		if !m.ReactedWith("u2", "👍") {
			t.Fatal("edit dropped the reactions")
		}
	})

	t.Run("empty replacement rejected", func(t *testing.T) {
		if _, err := svc.Edit(ctx, "CSM101", sent.ID, "u1", "  "); !errors.Is(err, ErrEmptyMessage) {
			t.Fatalf("err = %v, want ErrEmptyMessage", err)
		}
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.New(), nil)

	sent, err := svc.Send(ctx, "CSM101", testSender("u1", "Ama"), "to delete", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if err := svc.Delete(ctx, "CSM101", sent.ID, "u2"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("non-sender delete err = %v, want ErrPermissionDenied", err)
	}
	if err := svc.Delete(ctx, "CSM101", sent.ID, "u1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if msgs := mustMessages(t, svc, "CSM101"); len(msgs) != 0 {
		t.Fatalf("got %d messages after delete, want 0", len(msgs))
	}
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.New(), nil)

	if _, err := svc.Send(ctx, "CSM101", testSender("u1", "Ama"), "before", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}

	sub := svc.Subscribe(ctx, "CSM101")
	defer sub.Cancel()

	initial := <-sub.Updates()
	if len(initial) != 1 || initial[0].Text != "before" {
		t.Fatalf("initial snapshot = %v", initial)
	}

	if _, err := svc.Send(ctx, "CSM101", testSender("u2", "Kofi"), "after", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	update := <-sub.Updates()
	if len(update) != 2 || update[1].Text != "after" {
		t.Fatalf("update snapshot = %v", update)
	}

	// Cancel closes the stream once any buffered snapshots are drained.
	sub.Cancel()
	for range sub.Updates() {
	}
}

func TestSubscribeOtherChannelUnaffected(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.New(), nil)

	sub := svc.Subscribe(ctx, "CSM101")
	defer sub.Cancel()
	<-sub.Updates()

	if _, err := svc.Send(ctx, "MATH161", testSender("u1", "Ama"), "elsewhere", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case msgs := <-sub.Updates():
		t.Fatalf("unexpected push %v for a different channel", msgs)
	case <-time.After(50 * time.Millisecond):
	}
}

func mustMessages(t *testing.T, svc *Service, channel string) []model.Message {
	t.Helper()
	msgs, err := svc.Messages(context.Background(), channel)
	if err != nil {
		t.Fatalf("Messages(%s): %v", channel, err)
	}
	return msgs
}
