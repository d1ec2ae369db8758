package module

import (
	"timeclock/internal/adapters/cache"
	attdomain "timeclock/internal/services/attendance/domain"
)

// Ports the heartbeat module needs injected from attendance
type Ports struct {
	Checkout attdomain.CommandPort
	Cache    cache.Activity
}

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }
