// Package postgres implements storage.MessageStore on pgx. The message log,
// readBy sets and reaction sets live in normal relational tables; readBy and
// reactions use ON CONFLICT DO NOTHING inserts so re-marking and re-reacting
// stay idempotent at the store level.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campushub/internal/logger"
	"github.com/campushub/internal/model"
	"github.com/campushub/internal/storage"
)

type Client struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Client {
	return &Client{pool: pool}
}

const messageCols = `id, channel, sender_id, sender_name, sender_role, COALESCE(sender_level,''), COALESCE(sender_avatar,''),
	text, type, status, reply_to_message_id, reply_to_sender_id, reply_to_sender_name, reply_to_text,
	edited, edited_at, created_at, seq`

func scanMessage(s interface{ Scan(dest ...any) error }, m *model.Message) error {
	var replyID, replySenderID, replySenderName, replyText *string
	err := s.Scan(&m.ID, &m.Channel, &m.SenderID, &m.SenderName, &m.SenderRole, &m.SenderLevel, &m.SenderAvatar,
		&m.Text, &m.Type, &m.Status, &replyID, &replySenderID, &replySenderName, &replyText,
		&m.Edited, &m.EditedAt, &m.CreatedAt, &m.Seq)
	if err != nil {
		return err
	}
	if replyID != nil {
		m.ReplyTo = &model.ReplyRef{MessageID: *replyID}
		if replySenderID != nil {
			m.ReplyTo.SenderID = *replySenderID
		}
		if replySenderName != nil {
			m.ReplyTo.SenderName = *replySenderName
		}
		if replyText != nil {
			m.ReplyTo.Text = *replyText
		}
	}
	return nil
}

// AppendMessage inserts the message and the sender's self-read in one
// transaction. created_at and seq are assigned by the database and written
// back onto m, so the caller sees the store-assigned order.
func (c *Client) AppendMessage(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("pg.AppendMessage", time.Now())()
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgStore.AppendMessage begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var replyID, replySenderID, replySenderName, replyText *string
	if m.ReplyTo != nil {
		replyID = &m.ReplyTo.MessageID
		replySenderID = &m.ReplyTo.SenderID
		replySenderName = &m.ReplyTo.SenderName
		replyText = &m.ReplyTo.Text
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO messages (id, channel, sender_id, sender_name, sender_role, sender_level, sender_avatar,
		                       text, type, status, reply_to_message_id, reply_to_sender_id, reply_to_sender_name, reply_to_text)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6,''), NULLIF($7,''), $8, $9, $10, $11, $12, $13, $14)
		 RETURNING created_at, seq`,
		m.ID, m.Channel, m.SenderID, m.SenderName, m.SenderRole, m.SenderLevel, m.SenderAvatar,
		m.Text, m.Type, m.Status, replyID, replySenderID, replySenderName, replyText,
	).Scan(&m.CreatedAt, &m.Seq)
	if err != nil {
		return fmt.Errorf("pgStore.AppendMessage insert: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO message_reads (message_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		m.ID, m.SenderID,
	)
	if err != nil {
		return fmt.Errorf("pgStore.AppendMessage self-read: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pgStore.AppendMessage commit: %w", err)
	}
	return nil
}

func (c *Client) ChannelMessages(ctx context.Context, channel string) ([]model.Message, error) {
	defer logger.DeferLogDuration("pg.ChannelMessages", time.Now())()
	rows, err := c.pool.Query(ctx,
		`SELECT `+messageCols+` FROM messages WHERE channel = $1 ORDER BY created_at, seq`, channel,
	)
	if err != nil {
		return nil, fmt.Errorf("pgStore.ChannelMessages query: %w", err)
	}
	defer rows.Close()

	messages := make([]model.Message, 0, 64)
	index := make(map[string]int, 64)
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("pgStore.ChannelMessages scan: %w", err)
		}
		index[m.ID] = len(messages)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgStore.ChannelMessages rows: %w", err)
	}
	if len(messages) == 0 {
		return messages, nil
	}

	if err := c.attachReads(ctx, channel, messages, index); err != nil {
		return nil, err
	}
	if err := c.attachReactions(ctx, channel, messages, index); err != nil {
		return nil, err
	}
	return messages, nil
}

func (c *Client) attachReads(ctx context.Context, channel string, messages []model.Message, index map[string]int) error {
	rows, err := c.pool.Query(ctx,
		`SELECT r.message_id, r.user_id
		 FROM message_reads r
		 JOIN messages m ON m.id = r.message_id
		 WHERE m.channel = $1
		 ORDER BY r.read_at`, channel,
	)
	if err != nil {
		return fmt.Errorf("pgStore.attachReads query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var messageID, userID string
		if err := rows.Scan(&messageID, &userID); err != nil {
			return fmt.Errorf("pgStore.attachReads scan: %w", err)
		}
		if i, ok := index[messageID]; ok {
			messages[i].ReadBy = append(messages[i].ReadBy, userID)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("pgStore.attachReads rows: %w", err)
	}
	return nil
}

func (c *Client) attachReactions(ctx context.Context, channel string, messages []model.Message, index map[string]int) error {
	rows, err := c.pool.Query(ctx,
		`SELECT x.message_id, x.emoji, x.user_id
		 FROM message_reactions x
		 JOIN messages m ON m.id = x.message_id
		 WHERE m.channel = $1
		 ORDER BY x.reacted_at`, channel,
	)
	if err != nil {
		return fmt.Errorf("pgStore.attachReactions query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var messageID, emoji, userID string
		if err := rows.Scan(&messageID, &emoji, &userID); err != nil {
			return fmt.Errorf("pgStore.attachReactions scan: %w", err)
		}
		i, ok := index[messageID]
		if !ok {
			continue
		}
		if messages[i].Reactions == nil {
			messages[i].Reactions = make(map[string][]string, 4)
		}
		messages[i].Reactions[emoji] = append(messages[i].Reactions[emoji], userID)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("pgStore.attachReactions rows: %w", err)
	}
	return nil
}

func (c *Client) GetMessage(ctx context.Context, channel, messageID string) (*model.Message, error) {
	defer logger.DeferLogDuration("pg.GetMessage", time.Now())()
	m := &model.Message{}
	row := c.pool.QueryRow(ctx,
		`SELECT `+messageCols+` FROM messages WHERE channel = $1 AND id = $2`, channel, messageID,
	)
	if err := scanMessage(row, m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("pgStore.GetMessage: %w", err)
	}
	index := map[string]int{m.ID: 0}
	msgs := []model.Message{*m}
	if err := c.attachReads(ctx, channel, msgs, index); err != nil {
		return nil, err
	}
	if err := c.attachReactions(ctx, channel, msgs, index); err != nil {
		return nil, err
	}
	return &msgs[0], nil
}

func (c *Client) UpdateMessageText(ctx context.Context, channel, messageID, text string, editedAt time.Time) error {
	defer logger.DeferLogDuration("pg.UpdateMessageText", time.Now())()
	tag, err := c.pool.Exec(ctx,
		`UPDATE messages SET text = $1, edited = true, edited_at = $2 WHERE channel = $3 AND id = $4`,
		text, editedAt, channel, messageID,
	)
	if err != nil {
		return fmt.Errorf("pgStore.UpdateMessageText: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (c *Client) DeleteMessage(ctx context.Context, channel, messageID string) error {
	defer logger.DeferLogDuration("pg.DeleteMessage", time.Now())()
	// Hard delete; reads and reactions go with it via ON DELETE CASCADE.
	tag, err := c.pool.Exec(ctx,
		`DELETE FROM messages WHERE channel = $1 AND id = $2`, channel, messageID,
	)
	if err != nil {
		return fmt.Errorf("pgStore.DeleteMessage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (c *Client) AddReader(ctx context.Context, channel, messageID, userID string) error {
	defer logger.DeferLogDuration("pg.AddReader", time.Now())()
	tag, err := c.pool.Exec(ctx,
		`INSERT INTO message_reads (message_id, user_id)
		 SELECT id, $3 FROM messages WHERE channel = $1 AND id = $2
		 ON CONFLICT DO NOTHING`,
		channel, messageID, userID,
	)
	if err != nil {
		return fmt.Errorf("pgStore.AddReader: %w", err)
	}
	if tag.RowsAffected() > 0 {
		// Advisory delivery status; never reported as an error.
		if _, err := c.pool.Exec(ctx,
			`UPDATE messages SET status = 'delivered' WHERE id = $1 AND status = 'sent'`, messageID,
		); err != nil {
			logger.Errorf("pgStore.AddReader status message=%s: %v", messageID, err)
		}
	}
	return nil
}

func (c *Client) AddReaction(ctx context.Context, channel, messageID, userID, emoji string) error {
	defer logger.DeferLogDuration("pg.AddReaction", time.Now())()
	_, err := c.pool.Exec(ctx,
		`INSERT INTO message_reactions (message_id, user_id, emoji)
		 SELECT id, $3, $4 FROM messages WHERE channel = $1 AND id = $2
		 ON CONFLICT DO NOTHING`,
		channel, messageID, userID, emoji,
	)
	if err != nil {
		return fmt.Errorf("pgStore.AddReaction: %w", err)
	}
	return nil
}

func (c *Client) RemoveReaction(ctx context.Context, channel, messageID, userID, emoji string) error {
	defer logger.DeferLogDuration("pg.RemoveReaction", time.Now())()
	_, err := c.pool.Exec(ctx,
		`DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`,
		messageID, userID, emoji,
	)
	if err != nil {
		return fmt.Errorf("pgStore.RemoveReaction: %w", err)
	}
	return nil
}

func (c *Client) UnreadCount(ctx context.Context, channel, userID string) (int, error) {
	defer logger.DeferLogDuration("pg.UnreadCount", time.Now())()
	var count int
	err := c.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages m
		 WHERE m.channel = $1 AND m.sender_id != $2
		   AND NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = m.id AND r.user_id = $2)`,
		channel, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("pgStore.UnreadCount: %w", err)
	}
	return count, nil
}

func (c *Client) ChannelPreview(ctx context.Context, channel string) (*model.Channel, error) {
	defer logger.DeferLogDuration("pg.ChannelPreview", time.Now())()
	ch := &model.Channel{Code: channel}
	last := &model.LastMessage{}
	err := c.pool.QueryRow(ctx,
		`SELECT last_message_text, last_message_sender_id, last_message_sender_name, last_message_at, last_activity
		 FROM channels WHERE code = $1`, channel,
	).Scan(&last.Text, &last.SenderID, &last.SenderName, &last.Timestamp, &ch.LastActivity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pgStore.ChannelPreview: %w", err)
	}
	ch.LastMessage = last
	return ch, nil
}

func (c *Client) SetChannelPreview(ctx context.Context, channel string, last model.LastMessage) error {
	defer logger.DeferLogDuration("pg.SetChannelPreview", time.Now())()
	_, err := c.pool.Exec(ctx,
		`INSERT INTO channels (code, last_message_text, last_message_sender_id, last_message_sender_name, last_message_at, last_activity)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (code) DO UPDATE SET
		   last_message_text = EXCLUDED.last_message_text,
		   last_message_sender_id = EXCLUDED.last_message_sender_id,
		   last_message_sender_name = EXCLUDED.last_message_sender_name,
		   last_message_at = EXCLUDED.last_message_at,
		   last_activity = now()`,
		channel, last.Text, last.SenderID, last.SenderName, last.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("pgStore.SetChannelPreview: %w", err)
	}
	return nil
}
