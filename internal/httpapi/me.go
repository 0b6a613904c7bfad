package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rollcall/internal/leave"
	"rollcall/internal/notify"
)

// ---------- Me ----------

func (h *Handler) Profile(c *gin.Context) {
	subj, ok := h.me(c)
	if !ok {
		return
	}
	rate, err := h.app.Reports.RateForSubject(c.Request.Context(), subj.ID, "", "")
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subject": subj, "rate": rate})
}

func (h *Handler) MyAttendance(c *gin.Context) {
	subj, ok := h.me(c)
	if !ok {
		return
	}
	records, err := h.app.Attendance.BySubject(c.Request.Context(), subj.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": h.views(records)})
}

func (h *Handler) MyLeave(c *gin.Context) {
	subj, ok := h.me(c)
	if !ok {
		return
	}
	items, err := h.app.Leave.BySubject(c.Request.Context(), subj.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if items == nil {
		items = []leave.Request{}
	}
	c.JSON(http.StatusOK, gin.H{"requests": items})
}

func (h *Handler) MyNotifications(c *gin.Context) {
	subj, ok := h.me(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	items, err := h.app.Inbox.ByRecipient(ctx, subj.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	unread := 0
	for _, n := range items {
		if !n.Read {
			unread++
		}
	}
	if items == nil {
		items = []notify.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items, "unread": unread})
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	subj, ok := h.me(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	items, err := h.app.Inbox.ByRecipient(ctx, subj.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	for _, n := range items {
		if n.ID == c.Param("id") {
			if err := h.app.Inbox.MarkRead(ctx, n.ID); err != nil {
				h.fail(c, err)
				return
			}
			c.Status(http.StatusNoContent)
			return
		}
	}
	h.fail(c, notify.ErrNotFound)
}
