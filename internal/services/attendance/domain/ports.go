package domain

import "context"

// CommandPort is the state-mutating surface: one transaction per call
type CommandPort interface {
	CheckIn(ctx context.Context, in CheckInInput) (AttendanceRecord, error)
	CheckOut(ctx context.Context, in CheckOutInput) (AttendanceRecord, error)
	StartBreak(ctx context.Context, in BreakInput) (LunchBreak, error)
	EndBreak(ctx context.Context, in BreakInput) (LunchBreak, error)
}

// QueryPort is the read-only surface. Live figures never mutate the record
type QueryPort interface {
	Today(ctx context.Context, userID string) (TodayView, error)
	History(ctx context.Context, in HistoryInput) ([]AttendanceRecord, error)
}
