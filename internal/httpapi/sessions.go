package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/session"
)

// ---------- Sessions ----------

type sessionView struct {
	Session session.Session `json:"session"`
	Payload string          `json:"payload"`
}

func (h *Handler) sessionResponse(c *gin.Context, status int, s session.Session) {
	text, err := session.Payload(s)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(status, sessionView{Session: s, Payload: text})
}

func (h *Handler) CreateSession(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	s, err := h.app.Sessions.CreateSession(c.Request.Context(), session.Issuer{ID: claims.Subject, Name: claims.Name})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.sessionResponse(c, http.StatusCreated, s)
}

// ListSessions returns the sessions of ?date=, or the whole history.
func (h *Handler) ListSessions(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		items []session.Session
		err   error
	)
	if date := c.Query("date"); date != "" {
		items, err = h.app.Sessions.ListByDate(ctx, date)
	} else {
		items, err = h.app.Sessions.History(ctx)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	if items == nil {
		items = []session.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": items})
}

func (h *Handler) ActiveSession(c *gin.Context) {
	s, ok, err := h.app.Sessions.ActiveSession(c.Request.Context(), h.dateQuery(c, "date"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if !ok {
		h.fail(c, attendance.ErrNoActiveSession)
		return
	}
	h.sessionResponse(c, http.StatusOK, s)
}

func (h *Handler) RegenerateSession(c *gin.Context) {
	s, err := h.app.Sessions.Regenerate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.sessionResponse(c, http.StatusOK, s)
}

func (h *Handler) DeactivateSession(c *gin.Context) {
	if err := h.app.Sessions.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
