// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"encoding/json"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"codeberg.org/oliverandrich/ballot-ledger/internal/auth"
	"codeberg.org/oliverandrich/ballot-ledger/internal/models"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/candidates"
	"codeberg.org/oliverandrich/ballot-ledger/internal/sse"
	"github.com/labstack/echo/v4"
)

// auditFlushEvery is how many audit entries are written between flushes.
const auditFlushEvery = 64

// heartbeatInterval keeps event streams alive through proxies.
var heartbeatInterval = 30 * time.Second

// ReviewRequest optionally explains a review decision.
type ReviewRequest struct {
	Reason string `json:"reason"`
}

// Statistics returns voter counts and per-candidate totals.
func (h *Handlers) Statistics(c echo.Context) error {
	stats, err := h.svc.Tally.Statistics(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// Audit streams the anonymised ledger as a JSON array. Once the first byte is
// sent a read failure can only truncate the stream, so it is logged.
func (h *Handlers) Audit(c echo.Context) error {
	ctx := c.Request().Context()
	next, stop := iter.Pull2(h.svc.Tally.AuditView(ctx))
	defer stop()

	// Surface errors before the status line is written.
	first, err, ok := next()
	if err != nil {
		return err
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	res.Header().Set("Cache-Control", "no-store")
	res.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(res)
	if _, err := res.Write([]byte("[")); err != nil {
		return nil //nolint:nilerr // client went away
	}

	for n := 0; ok; n++ {
		if n > 0 {
			if _, err := res.Write([]byte(",")); err != nil {
				return nil //nolint:nilerr // client went away
			}
		}
		if err := enc.Encode(first); err != nil {
			return nil //nolint:nilerr // client went away
		}
		if n%auditFlushEvery == auditFlushEvery-1 {
			res.Flush()
		}

		first, err, ok = next()
		if err != nil {
			slog.ErrorContext(ctx, "audit_stream_failed", "entries", n+1, "error", err)
			return nil
		}
	}

	_, _ = res.Write([]byte("]\n"))
	return nil
}

// VerifyLedger re-derives the hash chain and reports the first break.
func (h *Handlers) VerifyLedger(c echo.Context) error {
	report, err := h.svc.Tally.VerifyChain(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

// ListApplications lists candidate applications, optionally by status.
func (h *Handlers) ListApplications(c echo.Context) error {
	status := models.ApplicationStatus(c.QueryParam("status"))
	apps, err := h.svc.Candidates.ListApplications(c.Request().Context(), status)
	if err != nil {
		return err
	}
	if apps == nil {
		apps = []models.CandidateApplication{}
	}
	return c.JSON(http.StatusOK, map[string]any{"applications": apps})
}

// ReviewApplication verifies, approves or rejects an application.
func (h *Handlers) ReviewApplication(c echo.Context) error {
	var req ReviewRequest
	if c.Request().ContentLength > 0 {
		if err := bind(c, &req); err != nil {
			return err
		}
	}

	app, err := h.svc.Candidates.Review(c.Request().Context(), c.Param("id"), candidates.Action(c.Param("action")), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, app)
}

// Events streams ledger activity to an administrator dashboard as
// server-sent events. Events carry sequence numbers only.
func (h *Handlers) Events(c echo.Context) error {
	ctx := c.Request().Context()
	p := auth.GetPrincipal(ctx)

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	ch := h.svc.Events.Register(p.Subject)
	defer h.svc.Events.Unregister(p.Subject, ch)

	hello := sse.Event{Name: "connected", Data: "ok"}
	if _, err := res.Write([]byte(hello.String())); err != nil {
		return nil //nolint:nilerr // client went away
	}
	res.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := res.Write([]byte(sse.Heartbeat)); err != nil {
				return nil //nolint:nilerr // client went away
			}
			res.Flush()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if _, err := res.Write([]byte(msg)); err != nil {
				return nil //nolint:nilerr // client went away
			}
			res.Flush()
		}
	}
}
