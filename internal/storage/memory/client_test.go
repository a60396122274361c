package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/campushub/internal/model"
	"github.com/campushub/internal/storage"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func appendText(t *testing.T, c *Client, channel, id, sender, text string) {
	t.Helper()
	m := &model.Message{ID: id, Channel: channel, SenderID: sender, Text: text, Status: model.MessageStatusSent}
	if err := c.AppendMessage(context.Background(), m); err != nil {
		t.Fatalf("AppendMessage(%s): %v", id, err)
	}
}

func TestMessageOrdering(t *testing.T) {
	ctx := context.Background()
	c := New()
	// With a frozen clock every message shares one timestamp; the sequence
	// number keeps insertion order.
	c.Now = fixedClock(time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC))

	for _, id := range []string{"m1", "m2", "m3"} {
		appendText(t, c, "CSM101", id, "u1", id)
	}

	msgs, err := c.ChannelMessages(ctx, "CSM101")
	if err != nil {
		t.Fatalf("ChannelMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if msgs[i].ID != want {
			t.Fatalf("order[%d] = %s, want %s", i, msgs[i].ID, want)
		}
	}
	if msgs[0].Seq >= msgs[1].Seq || msgs[1].Seq >= msgs[2].Seq {
		t.Fatalf("sequence not increasing: %d %d %d", msgs[0].Seq, msgs[1].Seq, msgs[2].Seq)
	}
}

func TestAddReader(t *testing.T) {
	ctx := context.Background()
	c := New()
	appendText(t, c, "CSM101", "m1", "u1", "hello")

	for i := 0; i < 2; i++ {
		if err := c.AddReader(ctx, "CSM101", "m1", "u2"); err != nil {
			t.Fatalf("AddReader: %v", err)
		}
	}
	m, err := c.GetMessage(ctx, "CSM101", "m1")
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if len(m.ReadBy) != 1 || m.ReadBy[0] != "u2" {
		t.Fatalf("ReadBy = %v, want [u2]", m.ReadBy)
	}
	if m.Status != model.MessageStatusDelivered {
		t.Fatalf("Status = %q, want delivered", m.Status)
	}

	if err := c.AddReader(ctx, "CSM101", "missing", "u2"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("AddReader missing err = %v, want ErrNotFound", err)
	}
}

func TestUnreadCount(t *testing.T) {
	ctx := context.Background()
	c := New()
	appendText(t, c, "CSM101", "m1", "u1", "a")
	appendText(t, c, "CSM101", "m2", "u1", "b")
	appendText(t, c, "CSM101", "m3", "u2", "c")

	// Own messages never count; one read drops the count by one.
	if err := c.AddReader(ctx, "CSM101", "m1", "u2"); err != nil {
		t.Fatalf("AddReader: %v", err)
	}
	if n, err := c.UnreadCount(ctx, "CSM101", "u2"); err != nil || n != 1 {
		t.Fatalf("unread for u2 = %d (%v), want 1", n, err)
	}
	if n, err := c.UnreadCount(ctx, "CSM101", "u1"); err != nil || n != 1 {
		t.Fatalf("unread for u1 = %d (%v), want 1", n, err)
	}
	if n, err := c.UnreadCount(ctx, "empty", "u1"); err != nil || n != 0 {
		t.Fatalf("unread for empty channel = %d (%v), want 0", n, err)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	c := New()
	appendText(t, c, "CSM101", "m1", "u1", "original")

	edited := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	if err := c.UpdateMessageText(ctx, "CSM101", "m1", "fixed", edited); err != nil {
		t.Fatalf("UpdateMessageText: %v", err)
	}
	m, err := c.GetMessage(ctx, "CSM101", "m1")
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if m.Text != "fixed" || !m.Edited || m.EditedAt == nil || !m.EditedAt.Equal(edited) {
		t.Fatalf("after edit: %+v", m)
	}

	if err := c.UpdateMessageText(ctx, "CSM101", "missing", "x", edited); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("update missing err = %v, want ErrNotFound", err)
	}

	if err := c.DeleteMessage(ctx, "CSM101", "m1"); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}
	if _, err := c.GetMessage(ctx, "CSM101", "m1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get after delete err = %v, want ErrNotFound", err)
	}
	if err := c.DeleteMessage(ctx, "CSM101", "m1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestChannelPreview(t *testing.T) {
	ctx := context.Background()
	c := New()

	if _, err := c.ChannelPreview(ctx, "CSM101"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("preview before set err = %v, want ErrNotFound", err)
	}

	last := model.LastMessage{Text: "latest", SenderID: "u1", SenderName: "Ama"}
	if err := c.SetChannelPreview(ctx, "CSM101", last); err != nil {
		t.Fatalf("SetChannelPreview: %v", err)
	}
	got, err := c.ChannelPreview(ctx, "CSM101")
	if err != nil {
		t.Fatalf("ChannelPreview: %v", err)
	}
	if got.Code != "CSM101" || got.LastMessage == nil || got.LastMessage.Text != "latest" {
		t.Fatalf("preview = %+v", got)
	}
}

func TestSnapshotsAreIsolated(t *testing.T) {
	ctx := context.Background()
	c := New()
	appendText(t, c, "CSM101", "m1", "u1", "hello")
	if err := c.AddReaction(ctx, "CSM101", "m1", "u2", "👍"); err != nil {
		t.Fatalf("AddReaction: %v", err)
	}

	msgs, err := c.ChannelMessages(ctx, "CSM101")
	if err != nil {
		t.Fatalf("ChannelMessages: %v", err)
	}
	// Mutating the returned snapshot must not leak into the store.
	msgs[0].ReadBy = append(msgs[0].ReadBy, "intruder")
	msgs[0].Reactions["👍"] = append(msgs[0].Reactions["👍"], "intruder")

	m, err := c.GetMessage(ctx, "CSM101", "m1")
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if m.ReadBySet("intruder") || m.ReactedWith("intruder", "👍") {
		t.Fatalf("snapshot mutation leaked into the store: %+v", m)
	}
}
