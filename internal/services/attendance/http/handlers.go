// Package http provides http transport for attendance
package http

import (
	"context"
	stdhttp "net/http"
	"time"

	"timeclock/internal/modkit/httpkit"
	perr "timeclock/internal/platform/errors"
	"timeclock/internal/platform/logger"
	"timeclock/internal/services/attendance/domain"
	svc "timeclock/internal/services/attendance/service"
)

// Register mounts attendance endpoints on the given router
func Register(r httpkit.Router, s svc.Service) {
	h := &handlers{svc: s}

	httpkit.PostJSON[checkInReq](r, "/check-in", h.checkIn)
	httpkit.PostJSON[checkOutReq](r, "/check-out", h.checkOut)
	httpkit.PostJSON[breakReq](r, "/break/start", h.startBreak)
	httpkit.PostJSON[breakReq](r, "/break/end", h.endBreak)

	httpkit.Get(r, "/today", h.today)
	httpkit.Get(r, "/history", h.history)
}

type handlers struct{ svc svc.Service }

// userCtx tags the request context with the acting user for downstream logs
func userCtx(r *stdhttp.Request, userID string) context.Context {
	return logger.WithRequest(r.Context(), "", userID)
}

func (h *handlers) checkIn(r *stdhttp.Request, in checkInReq) (any, error) {
	if in.UserID == "" {
		return nil, perr.InvalidArgf("user_id is required")
	}
	rec, err := h.svc.CheckIn(userCtx(r, in.UserID), domain.CheckInInput{
		UserID:   in.UserID,
		IP:       clientIP(r, in.IP),
		Location: in.Location,
	})
	if err != nil {
		return nil, err
	}
	return toRecordDTO(rec), nil
}

func (h *handlers) checkOut(r *stdhttp.Request, in checkOutReq) (any, error) {
	if in.UserID == "" {
		return nil, perr.InvalidArgf("user_id is required")
	}
	rec, err := h.svc.CheckOut(userCtx(r, in.UserID), domain.CheckOutInput{
		UserID:   in.UserID,
		IP:       clientIP(r, in.IP),
		Location: in.Location,
		Reason:   in.Reason,
	})
	if err != nil {
		return nil, err
	}
	return toRecordDTO(rec), nil
}

func (h *handlers) startBreak(r *stdhttp.Request, in breakReq) (any, error) {
	if in.UserID == "" {
		return nil, perr.InvalidArgf("user_id is required")
	}
	b, err := h.svc.StartBreak(userCtx(r, in.UserID), domain.BreakInput{UserID: in.UserID, Location: in.Location})
	if err != nil {
		return nil, err
	}
	return toBreakDTO(b), nil
}

func (h *handlers) endBreak(r *stdhttp.Request, in breakReq) (any, error) {
	if in.UserID == "" {
		return nil, perr.InvalidArgf("user_id is required")
	}
	b, err := h.svc.EndBreak(userCtx(r, in.UserID), domain.BreakInput{UserID: in.UserID, Location: in.Location})
	if err != nil {
		return nil, err
	}
	return toBreakDTO(b), nil
}

func (h *handlers) today(r *stdhttp.Request) (any, error) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		return nil, perr.InvalidArgf("user_id is required")
	}
	v, err := h.svc.Today(userCtx(r, userID), userID)
	if err != nil {
		return nil, err
	}
	return todayDTO{
		Record: toRecordDTO(v.Record),
		Live: liveDTO{
			ActiveSeconds:  v.Live.ActiveSeconds,
			IdleSeconds:    v.Live.IdleSeconds,
			BreakSeconds:   v.Live.BreakSeconds,
			TrackedSeconds: v.Live.TrackedSeconds,
		},
	}, nil
}

func (h *handlers) history(r *stdhttp.Request) (any, error) {
	q := r.URL.Query()
	userID := q.Get("user_id")
	if userID == "" {
		return nil, perr.InvalidArgf("user_id is required")
	}
	in := domain.HistoryInput{UserID: userID}
	var err error
	if in.Since, err = parseDate(q.Get("start")); err != nil {
		return nil, perr.InvalidArgf("start: %v", err)
	}
	if in.Until, err = parseDate(q.Get("end")); err != nil {
		return nil, perr.InvalidArgf("end: %v", err)
	}
	recs, err := h.svc.History(userCtx(r, userID), in)
	if err != nil {
		return nil, err
	}
	out := make([]recordDTO, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toRecordDTO(rec))
	}
	return out, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}

// clientIP prefers the explicit payload value, falling back to RemoteAddr
// (RealIP middleware has already unwrapped X-Forwarded-For)
func clientIP(r *stdhttp.Request, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return r.RemoteAddr
}
