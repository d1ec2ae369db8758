package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"timeclock/internal/core/state"
	"timeclock/internal/platform/logger"
	"timeclock/internal/services/attendance/domain"
	"timeclock/internal/services/attendance/repo"
)

// The helpers below are the transactional face of the state engine. They run
// inside the caller's transaction against a row already locked by
// GetForUpdate, mutate the in-memory record to match what was persisted, and
// are shared by commands, the heartbeat pipeline, and the reconcilers so
// every path speaks the same transition language.

// ApplyTransition credits the open state and moves rec to next at the given
// instant. Returns applied=false when the transition is dropped because at
// precedes the last state change; the record is left untouched
func ApplyTransition(
	ctx context.Context,
	r repo.Storage,
	rec *domain.AttendanceRecord,
	next state.State,
	at time.Time,
) (bool, error) {
	if rec.CurrentState != state.None && !state.Valid(rec.CurrentState) {
		logger.C(ctx).Warn().
			Str("record_id", rec.ID).
			Str("state", string(rec.CurrentState)).
			Msg("unknown prior state, crediting idle")
	}
	cred, ok := state.Transition(rec.Snapshot(), next, at)
	if !ok {
		logger.C(ctx).Warn().
			Str("record_id", rec.ID).
			Time("at", at).
			Time("last_change", rec.Snapshot().LastChangeAt).
			Msg("transition dropped, event precedes last state change")
		return false, nil
	}
	if err := r.ApplyCredit(ctx, rec.ID, cred); err != nil {
		return false, err
	}
	bump(rec, cred)
	rec.CurrentState = next
	t := at
	rec.LastStateChangeAt = &t
	return true, nil
}

// TransitionWithAudit applies the transition and swaps the open audit
// segment for one matching the new state
func TransitionWithAudit(
	ctx context.Context,
	r repo.Storage,
	rec *domain.AttendanceRecord,
	next state.State,
	at time.Time,
) (bool, error) {
	applied, err := ApplyTransition(ctx, r, rec, next, at)
	if err != nil || !applied {
		return applied, err
	}
	if err := r.CloseOpenSegments(ctx, rec.ID, at); err != nil {
		return false, err
	}
	seg := domain.ActivitySegment{
		ID:                 uuid.NewString(),
		AttendanceRecordID: rec.ID,
		Type:               domain.SegmentFor(next),
		StartedAt:          at,
	}
	return true, r.OpenSegment(ctx, seg)
}

// FinalizeRecord credits the open state and clears it. Returns applied=false
// on clock skew, leaving the record untouched
func FinalizeRecord(
	ctx context.Context,
	r repo.Storage,
	rec *domain.AttendanceRecord,
	at time.Time,
) (bool, error) {
	cred, ok := state.Finalize(rec.Snapshot(), at)
	if !ok {
		logger.C(ctx).Warn().
			Str("record_id", rec.ID).
			Time("at", at).
			Msg("finalise dropped, event precedes last state change")
		return false, nil
	}
	if err := r.FinalizeCredit(ctx, rec.ID, cred); err != nil {
		return false, err
	}
	bump(rec, cred)
	rec.CurrentState = state.None
	rec.LastStateChangeAt = nil
	return true, nil
}

func bump(rec *domain.AttendanceRecord, c state.Credit) {
	switch c.Counter {
	case state.CounterActive:
		rec.ActiveSeconds += c.Seconds
	case state.CounterLunch:
		rec.LunchSeconds += c.Seconds
	default:
		rec.IdleSeconds += c.Seconds
	}
}
