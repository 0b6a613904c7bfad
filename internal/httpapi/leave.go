package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"rollcall/internal/auth"
	"rollcall/internal/leave"
)

// ---------- Leave ----------

// SubmitLeave files a request for the calling subject. An optional
// proofData data URL is uploaded and stored as the proof reference.
func (h *Handler) SubmitLeave(c *gin.Context) {
	var req struct {
		Type      string `json:"type" binding:"required"`
		StartDate string `json:"startDate" binding:"required"`
		EndDate   string `json:"endDate"`
		Reason    string `json:"reason" binding:"required"`
		ProofRef  string `json:"proofRef"`
		ProofData string `json:"proofData"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	subj, ok := h.me(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if req.EndDate == "" {
		req.EndDate = req.StartDate
	}
	if req.ProofData != "" {
		ref, err := h.app.Uploader.UploadDataURL(ctx, "leave", req.ProofData)
		if err != nil {
			h.uploadFailed(c, err)
			return
		}
		req.ProofRef = ref
	}
	created, err := h.app.Leave.Submit(ctx, leave.Submission{
		SubjectID: subj.ID,
		Type:      leave.Type(req.Type),
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Reason:    req.Reason,
		ProofRef:  req.ProofRef,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// ListLeave supports ?status=.
func (h *Handler) ListLeave(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		items []leave.Request
		err   error
	)
	if status := c.Query("status"); status != "" {
		items, err = h.app.Leave.ByStatus(ctx, leave.Status(status))
	} else {
		items, err = h.app.Leave.All(ctx)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	if items == nil {
		items = []leave.Request{}
	}
	c.JSON(http.StatusOK, gin.H{"requests": items})
}

func (h *Handler) LeaveStats(c *gin.Context) {
	st, err := h.app.Leave.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) ApproveLeave(c *gin.Context) {
	h.reviewLeave(c, h.app.Leave.Approve)
}

func (h *Handler) RejectLeave(c *gin.Context) {
	h.reviewLeave(c, h.app.Leave.Reject)
}

func (h *Handler) reviewLeave(c *gin.Context, review func(context.Context, string, string) (leave.Request, error)) {
	claims, _ := auth.ClaimsFrom(c)
	reviewer := claims.Name
	if reviewer == "" {
		reviewer = claims.Subject
	}
	updated, err := review(c.Request.Context(), c.Param("id"), reviewer)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}
