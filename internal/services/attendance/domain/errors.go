package domain

import (
	perr "timeclock/internal/platform/errors"
)

// Domain rejections surfaced at the API boundary. Compared with errors.Is;
// none of them mutate state
var (
	// ErrNotCheckedIn rejects operations that need an open attendance record
	ErrNotCheckedIn = perr.Conflictf("NOT_CHECKED_IN: no open attendance record for today")

	// ErrAlreadyCheckedIn rejects a second check-in on an open record
	ErrAlreadyCheckedIn = perr.Conflictf("ALREADY_CHECKED_IN: attendance record already open")

	// ErrAlreadyCheckedOut rejects operations on a finalised record
	ErrAlreadyCheckedOut = perr.Conflictf("ALREADY_CHECKED_OUT: attendance record already finalised")

	// ErrBreakAlreadyStarted rejects a second open lunch break
	ErrBreakAlreadyStarted = perr.Conflictf("BREAK_ALREADY_STARTED: a lunch break is already open")

	// ErrNoActiveBreak rejects ending a break that is not open
	ErrNoActiveBreak = perr.Conflictf("NO_ACTIVE_BREAK: no open lunch break")
)
