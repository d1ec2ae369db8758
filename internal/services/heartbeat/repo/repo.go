// Package repo provides the heartbeat telemetry repository
package repo

import (
	"context"

	"timeclock/internal/modkit/repokit"
	"timeclock/internal/services/heartbeat/domain"
)

type (
	pg     struct{ q repokit.Queryer }
	binder struct{}
)

// NewPG constructs a new repo binder for Postgres
func NewPG() repokit.Binder[Storage] { return binder{} }

// Bind implements repokit.Binder
func (binder) Bind(q repokit.Queryer) Storage { return &pg{q: q} }

// Storage persists raw input samples
type Storage interface {
	InsertSample(ctx context.Context, s domain.InputSample) error
}

// InsertSample implements Storage
func (s *pg) InsertSample(ctx context.Context, in domain.InputSample) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO input_samples
			(id, attendance_record_id, user_id, ts,
			active_window, active_application, url,
			mouse_clicks, keyboard_strokes, mouse_moves,
			is_active, idle_time_seconds)
		VALUES ($1,$2,$3,$4,NULLIF($5,''),NULLIF($6,''),NULLIF($7,''),$8,$9,$10,$11,$12)
	`,
		in.ID, in.AttendanceRecordID, in.UserID, in.Timestamp,
		in.ActiveWindow, in.ActiveApplication, in.URL,
		in.MouseClicks, in.KeyboardStrokes, in.MouseMoves,
		in.IsActive, in.IdleTimeSeconds,
	)
	return err
}
