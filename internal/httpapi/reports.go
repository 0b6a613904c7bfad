package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"rollcall/internal/apperr"
)

// ---------- Reports ----------

func (h *Handler) DailyReport(c *gin.Context) {
	st, err := h.app.Reports.StatsForDate(c.Request.Context(), h.dateQuery(c, "date"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) RangeReport(c *gin.Context) {
	days, err := h.app.Reports.StatsForRange(c.Request.Context(), c.Query("start"), c.Query("end"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days})
}

// MonthlyReport defaults to the current month.
func (h *Handler) MonthlyReport(c *gin.Context) {
	now := h.app.Clock.Now()
	year, month := now.Year(), int(now.Month())
	var err error
	if v := c.Query("year"); v != "" {
		if year, err = strconv.Atoi(v); err != nil {
			h.fail(c, fmt.Errorf("year %q: %w", v, apperr.ErrInvalid))
			return
		}
	}
	if v := c.Query("month"); v != "" {
		if month, err = strconv.Atoi(v); err != nil {
			h.fail(c, fmt.Errorf("month %q: %w", v, apperr.ErrInvalid))
			return
		}
	}
	days, err := h.app.Reports.Monthly(c.Request.Context(), year, time.Month(month))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"year": year, "month": month, "days": days})
}

func (h *Handler) GroupReport(c *gin.Context) {
	group := c.Query("group")
	if group == "" {
		h.fail(c, fmt.Errorf("group is required: %w", apperr.ErrInvalid))
		return
	}
	st, err := h.app.Reports.StatsForGroup(c.Request.Context(), group, h.dateQuery(c, "date"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": group, "stats": st})
}

func (h *Handler) SubjectRate(c *gin.Context) {
	id := c.Param("subjectId")
	rate, err := h.app.Reports.RateForSubject(c.Request.Context(), id, c.Query("start"), c.Query("end"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subjectId": id, "rate": rate})
}
