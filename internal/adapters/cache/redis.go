package cache

import (
	"context"
	"encoding/json"
	"time"

	"timeclock/internal/core/state"
	"timeclock/internal/platform/logger"
	"timeclock/internal/platform/store"
)

// Redis is the store.KV backed Activity implementation.
// A nil KV (redis disabled) degrades to a permanent miss
type Redis struct {
	kv  store.KV
	ttl time.Duration
	log *logger.Logger
}

var _ Activity = (*Redis)(nil)

// NewRedis builds the Activity cache over the platform KV seam.
// ttl <= 0 falls back to DefaultTTL
func NewRedis(kv store.KV, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{kv: kv, ttl: ttl, log: logger.Named("cache")}
}

// LastActivity implements Activity
func (c *Redis) LastActivity(ctx context.Context, userID string) (LastActivity, bool) {
	var out LastActivity
	if c.kv == nil {
		return out, false
	}
	raw, ok, err := c.kv.Get(ctx, keyActivity(userID))
	if err != nil {
		c.log.Warn().Err(err).Str("user_id", userID).Msg("cache read failed")
		return out, false
	}
	if !ok {
		return out, false
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		c.log.Warn().Err(err).Str("user_id", userID).Msg("cache payload corrupt")
		return LastActivity{}, false
	}
	return out, true
}

// SetLastActivity implements Activity
func (c *Redis) SetLastActivity(ctx context.Context, userID string, v LastActivity) {
	c.setJSON(ctx, keyActivity(userID), v)
}

// State implements Activity
func (c *Redis) State(ctx context.Context, userID string) (state.State, bool) {
	if c.kv == nil {
		return state.None, false
	}
	raw, ok, err := c.kv.Get(ctx, keyState(userID))
	if err != nil {
		c.log.Warn().Err(err).Str("user_id", userID).Msg("cache read failed")
		return state.None, false
	}
	if !ok {
		return state.None, false
	}
	return state.State(raw), true
}

// SetState implements Activity
func (c *Redis) SetState(ctx context.Context, userID string, s state.State) {
	if c.kv == nil {
		return
	}
	if err := c.kv.Set(ctx, keyState(userID), string(s), c.ttl); err != nil {
		c.log.Warn().Err(err).Str("user_id", userID).Msg("cache write failed")
	}
}

// SetAttendance implements Activity
func (c *Redis) SetAttendance(ctx context.Context, userID string, snapshot any) {
	c.setJSON(ctx, keyAttendance(userID), snapshot)
}

// Clear implements Activity
func (c *Redis) Clear(ctx context.Context, userID string) {
	if c.kv == nil {
		return
	}
	err := c.kv.Del(ctx, keyAttendance(userID), keyActivity(userID), keyState(userID))
	if err != nil {
		c.log.Warn().Err(err).Str("user_id", userID).Msg("cache clear failed")
	}
}

func (c *Redis) setJSON(ctx context.Context, key string, v any) {
	if c.kv == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache marshal failed")
		return
	}
	if err := c.kv.Set(ctx, key, string(b), c.ttl); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}
