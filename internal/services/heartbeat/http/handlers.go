// Package http provides http transport for heartbeat ingestion
package http

import (
	stdhttp "net/http"

	"timeclock/internal/modkit/httpkit"
	perr "timeclock/internal/platform/errors"
	"timeclock/internal/platform/logger"
	"timeclock/internal/services/heartbeat/domain"
	svc "timeclock/internal/services/heartbeat/service"
)

// Register mounts the heartbeat endpoint on the given router
func Register(r httpkit.Router, s svc.Service) {
	h := &handlers{svc: s}
	httpkit.PostJSON[heartbeatReq](r, "/", h.heartbeat)
}

type handlers struct{ svc svc.Service }

type heartbeatReq struct {
	UserID            string `json:"user_id" validate:"required"`
	ActiveWindow      string `json:"active_window,omitempty"`
	ActiveApplication string `json:"active_application,omitempty"`
	URL               string `json:"url,omitempty"`
	MouseClicks       int    `json:"mouse_clicks" validate:"min=0"`
	KeyboardStrokes   int    `json:"keyboard_strokes" validate:"min=0"`
	MouseMoves        int    `json:"mouse_moves" validate:"min=0"`
	IsActive          bool   `json:"is_active"`
	IdleTimeSeconds   int    `json:"idle_time_seconds" validate:"min=0"`
}

type heartbeatResp struct {
	Status       string `json:"status"`
	CurrentState string `json:"current_state,omitempty"`
}

func (h *handlers) heartbeat(r *stdhttp.Request, in heartbeatReq) (any, error) {
	if in.UserID == "" {
		return nil, perr.InvalidArgf("user_id is required")
	}
	ctx := logger.WithRequest(r.Context(), "", in.UserID)
	res, err := h.svc.Heartbeat(ctx, in.UserID, domain.Sample{
		ActiveWindow:      in.ActiveWindow,
		ActiveApplication: in.ActiveApplication,
		URL:               in.URL,
		MouseClicks:       in.MouseClicks,
		KeyboardStrokes:   in.KeyboardStrokes,
		MouseMoves:        in.MouseMoves,
		IsActive:          in.IsActive,
		IdleTimeSeconds:   in.IdleTimeSeconds,
	})
	if err != nil {
		return nil, err
	}
	return heartbeatResp{Status: string(res.Status), CurrentState: string(res.CurrentState)}, nil
}
