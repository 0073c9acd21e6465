package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// presence key: presence:<user>
// Hash fields: status ("online"/"offline"), last_seen (RFC3339, set on offline).
func presenceKey(userID int64) string {
	return "presence:" + strconv.FormatInt(userID, 10)
}

// RedisPresence persists online/offline status and last-seen timestamps.
// Presence is advisory: callers log failures and carry on.
type RedisPresence struct {
	rdb *redis.Client
}

func NewRedisPresence(rdb *redis.Client) *RedisPresence {
	return &RedisPresence{rdb: rdb}
}

func (p *RedisPresence) SetOnline(ctx context.Context, userID int64) error {
	err := p.rdb.HSet(ctx, presenceKey(userID), "status", "online").Err()
	return errors.Wrap(err, "presence online")
}

func (p *RedisPresence) SetOffline(ctx context.Context, userID int64, lastSeen time.Time) error {
	err := p.rdb.HSet(ctx, presenceKey(userID),
		"status", "offline",
		"last_seen", lastSeen.UTC().Format(time.RFC3339),
	).Err()
	return errors.Wrap(err, "presence offline")
}

// LastSeen returns the stored last-seen timestamp; ok is false when the
// user has never gone offline before.
func (p *RedisPresence) LastSeen(ctx context.Context, userID int64) (time.Time, bool, error) {
	val, err := p.rdb.HGet(ctx, presenceKey(userID), "last_seen").Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, errors.Wrap(err, "presence last_seen")
	}
	ts, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, false, errors.Wrap(err, "presence last_seen parse")
	}
	return ts, true, nil
}
