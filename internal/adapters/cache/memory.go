package cache

import (
	"context"
	"sync"

	"timeclock/internal/core/state"
)

// Memory is a process-local Activity implementation for tests and for
// running without redis. No TTL: entries live until Clear
type Memory struct {
	mu       sync.RWMutex
	activity map[string]LastActivity
	states   map[string]state.State
	attend   map[string]any
}

var _ Activity = (*Memory)(nil)

// NewMemory builds an empty in-process cache
func NewMemory() *Memory {
	return &Memory{
		activity: map[string]LastActivity{},
		states:   map[string]state.State{},
		attend:   map[string]any{},
	}
}

// LastActivity implements Activity
func (c *Memory) LastActivity(_ context.Context, userID string) (LastActivity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.activity[userID]
	return v, ok
}

// SetLastActivity implements Activity
func (c *Memory) SetLastActivity(_ context.Context, userID string, v LastActivity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activity[userID] = v
}

// State implements Activity
func (c *Memory) State(_ context.Context, userID string) (state.State, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.states[userID]
	return s, ok
}

// SetState implements Activity
func (c *Memory) SetState(_ context.Context, userID string, s state.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[userID] = s
}

// SetAttendance implements Activity
func (c *Memory) SetAttendance(_ context.Context, userID string, snapshot any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attend[userID] = snapshot
}

// Clear implements Activity
func (c *Memory) Clear(_ context.Context, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.activity, userID)
	delete(c.states, userID)
	delete(c.attend, userID)
}
