// Package redis implements the ephemeral stores (presence, typing) on Redis.
// Records are JSON values under key-per-entry with an index set per scope;
// typing keys carry a TTL backstop twice the freshness window, so abandoned
// indicators evaporate even if the delete never arrives.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/campushub/internal/model"
	"github.com/campushub/internal/storage"
)

const (
	presenceIndexKey = "presence:index"
	// Presence records are kept a day so "last seen" survives short outages.
	presenceTTL = 24 * time.Hour
	typingTTL   = 10 * time.Second
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func presenceKey(userID string) string {
	return "presence:" + userID
}

func typingKey(channel, userID string) string {
	return "typing:" + channel + ":" + userID
}

func typingIndexKey(channel string) string {
	return "typing:index:" + channel
}

// UpsertPresence writes the full record, last-write-wins.
func (c *Client) UpsertPresence(ctx context.Context, rec model.PresenceRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redisStore.UpsertPresence marshal: %w", err)
	}
	pipe := c.cli.TxPipeline()
	pipe.Set(ctx, presenceKey(rec.UserID), raw, presenceTTL)
	pipe.SAdd(ctx, presenceIndexKey, rec.UserID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisStore.UpsertPresence: %w", err)
	}
	return nil
}

// SetOffline flips isOnline on the stored record and stamps lastSeen. A
// missing record is not an error; there is nothing to mark offline.
func (c *Client) SetOffline(ctx context.Context, userID string, lastSeen time.Time) error {
	rec, err := c.getPresence(ctx, userID)
	if err == storage.ErrNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redisStore.SetOffline: %w", err)
	}
	rec.IsOnline = false
	rec.LastSeen = lastSeen
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redisStore.SetOffline marshal: %w", err)
	}
	if err := c.cli.Set(ctx, presenceKey(userID), raw, presenceTTL).Err(); err != nil {
		return fmt.Errorf("redisStore.SetOffline: %w", err)
	}
	return nil
}

// Heartbeat re-stamps lastSeen on the stored record. Beating for a user with
// no record is a no-op rather than an error; Announce will recreate it.
func (c *Client) Heartbeat(ctx context.Context, userID string, at time.Time) error {
	rec, err := c.getPresence(ctx, userID)
	if err == storage.ErrNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redisStore.Heartbeat: %w", err)
	}
	rec.LastSeen = at
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redisStore.Heartbeat marshal: %w", err)
	}
	if err := c.cli.Set(ctx, presenceKey(userID), raw, presenceTTL).Err(); err != nil {
		return fmt.Errorf("redisStore.Heartbeat: %w", err)
	}
	return nil
}

// ListPresence returns every stored record. Index members whose key expired
// are dropped from the set on the way through.
func (c *Client) ListPresence(ctx context.Context) ([]model.PresenceRecord, error) {
	ids, err := c.cli.SMembers(ctx, presenceIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redisStore.ListPresence index: %w", err)
	}
	recs := make([]model.PresenceRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := c.getPresence(ctx, id)
		if err == storage.ErrNotFound {
			c.cli.SRem(ctx, presenceIndexKey, id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redisStore.ListPresence: %w", err)
		}
		recs = append(recs, *rec)
	}
	return recs, nil
}

func (c *Client) getPresence(ctx context.Context, userID string) (*model.PresenceRecord, error) {
	raw, err := c.cli.Get(ctx, presenceKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec := &model.PresenceRecord{}
	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, fmt.Errorf("unmarshal presence %s: %w", userID, err)
	}
	return rec, nil
}

// SetTyping upserts the indicator under a short TTL.
func (c *Client) SetTyping(ctx context.Context, ind model.TypingIndicator) error {
	raw, err := json.Marshal(ind)
	if err != nil {
		return fmt.Errorf("redisStore.SetTyping marshal: %w", err)
	}
	pipe := c.cli.TxPipeline()
	pipe.Set(ctx, typingKey(ind.Channel, ind.UserID), raw, typingTTL)
	pipe.SAdd(ctx, typingIndexKey(ind.Channel), ind.UserID)
	pipe.Expire(ctx, typingIndexKey(ind.Channel), typingTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisStore.SetTyping: %w", err)
	}
	return nil
}

func (c *Client) ClearTyping(ctx context.Context, channel, userID string) error {
	pipe := c.cli.TxPipeline()
	pipe.Del(ctx, typingKey(channel, userID))
	pipe.SRem(ctx, typingIndexKey(channel), userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisStore.ClearTyping: %w", err)
	}
	return nil
}

func (c *Client) ListTyping(ctx context.Context, channel string) ([]model.TypingIndicator, error) {
	ids, err := c.cli.SMembers(ctx, typingIndexKey(channel)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisStore.ListTyping index: %w", err)
	}
	inds := make([]model.TypingIndicator, 0, len(ids))
	for _, id := range ids {
		raw, err := c.cli.Get(ctx, typingKey(channel, id)).Bytes()
		if err == redis.Nil {
			c.cli.SRem(ctx, typingIndexKey(channel), id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redisStore.ListTyping: %w", err)
		}
		var ind model.TypingIndicator
		if err := json.Unmarshal(raw, &ind); err != nil {
			return nil, fmt.Errorf("redisStore.ListTyping unmarshal %s: %w", id, err)
		}
		inds = append(inds, ind)
	}
	return inds, nil
}
