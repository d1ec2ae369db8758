package module

import (
	"timeclock/internal/adapters/cache"
	attdomain "timeclock/internal/services/attendance/domain"
	jandomain "timeclock/internal/services/janitor/domain"
)

// Ports carries what the janitor needs injected from attendance, plus the
// reconciler port it exposes back to the host binary
type Ports struct {
	Checkout    attdomain.CommandPort
	Cache       cache.Activity
	Reconcilers jandomain.ReconcilerPort
}

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }
