package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
)

// ---------- Attendance ----------

type recordView struct {
	attendance.Record
	Late bool `json:"late"`
}

func (h *Handler) views(records []attendance.Record) []recordView {
	out := make([]recordView, 0, len(records))
	for _, r := range records {
		out = append(out, h.view(r))
	}
	return out
}

func (h *Handler) view(r attendance.Record) recordView {
	late, _ := r.IsLate(h.app.Config.LateThreshold)
	return recordView{Record: r, Late: late}
}

type scanRequest struct {
	Payload string `json:"payload" binding:"required"`
}

// ScanSubject redeems a scanned subject payload or bare code against
// today's active session.
func (h *Handler) ScanSubject(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := h.app.Attendance.Redeem(c.Request.Context(), req.Payload)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.view(rec))
}

// ScanSession redeems a scanned session payload for the calling subject.
func (h *Handler) ScanSession(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	claims, _ := auth.ClaimsFrom(c)
	rec, err := h.app.Attendance.RedeemSession(c.Request.Context(), req.Payload, claims.Subject)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.view(rec))
}

func (h *Handler) RecordAttendance(c *gin.Context) {
	var req struct {
		SubjectID string `json:"subjectId" binding:"required"`
		SessionID string `json:"sessionId" binding:"required"`
		Status    string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	var status attendance.Status
	if req.Status != "" {
		var err error
		if status, err = attendance.ParseStatus(req.Status); err != nil {
			h.fail(c, err)
			return
		}
	}
	rec, err := h.app.Attendance.Record(c.Request.Context(), req.SubjectID, req.SessionID, status)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.view(rec))
}

// ListAttendance filters by ?subjectId=, ?start=&end=, ?group= (with
// optional ?date=) or ?date=, in that order of precedence. No filter means
// today.
func (h *Handler) ListAttendance(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		records []attendance.Record
		err     error
	)
	switch {
	case c.Query("subjectId") != "":
		records, err = h.app.Attendance.BySubject(ctx, c.Query("subjectId"))
	case c.Query("start") != "" || c.Query("end") != "":
		records, err = h.app.Attendance.ByDateRange(ctx, c.Query("start"), c.Query("end"))
	case c.Query("group") != "":
		records, err = h.app.Attendance.ByGroup(ctx, c.Query("group"), c.Query("date"))
	default:
		records, err = h.app.Attendance.ByDate(ctx, h.dateQuery(c, "date"))
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": h.views(records)})
}

func (h *Handler) GetAttendance(c *gin.Context) {
	rec, err := h.app.Attendance.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(rec))
}

func (h *Handler) UpdateAttendance(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
		Note   string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	status, err := attendance.ParseStatus(req.Status)
	if err != nil {
		h.fail(c, err)
		return
	}
	rec, err := h.app.Attendance.UpdateStatus(c.Request.Context(), c.Param("id"), status, req.Note)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(rec))
}

func (h *Handler) UploadAttendanceProof(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := h.app.Attendance.Get(ctx, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	ref, err := h.readImage(c, "attendance")
	if err != nil {
		h.uploadFailed(c, err)
		return
	}
	rec, err := h.app.Attendance.AttachProof(ctx, c.Param("id"), ref)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(rec))
}

func (h *Handler) NotifyAbsences(c *gin.Context) {
	var req struct {
		Date string `json:"date"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	if req.Date == "" {
		req.Date = h.dateQuery(c, "date")
	}
	absent, err := h.app.Attendance.NotifyAbsences(c.Request.Context(), req.Date)
	if err != nil {
		h.fail(c, err)
		return
	}
	if absent == nil {
		absent = []string{}
	}
	c.JSON(http.StatusAccepted, gin.H{"date": req.Date, "notified": absent})
}
