package module

import (
	"timeclock/internal/adapters/cache"
	"timeclock/internal/services/attendance/domain"
)

// Ports exposed by the attendance module for cross-module wiring.
// The heartbeat pipeline and the janitor drive the same commands and share
// the activity cache so everyone sees one set of user:{id}:* keys
type Ports struct {
	Commands domain.CommandPort
	Queries  domain.QueryPort
	Cache    cache.Activity
}

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }
