package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rollcall/internal/apperr"
	"rollcall/internal/cloudinary"
	"rollcall/internal/payload"
	"rollcall/internal/subject"
)

// ---------- Subjects ----------

type subjectRequest struct {
	ExternalCode string `json:"externalCode"`
	OwnerRef     string `json:"ownerRef"`
	Name         string `json:"name"`
	Group        string `json:"group"`
	Contact      string `json:"contact"`
	PhotoRef     string `json:"photoRef"`
}

type subjectPatch struct {
	ExternalCode *string `json:"externalCode"`
	OwnerRef     *string `json:"ownerRef"`
	Name         *string `json:"name"`
	Group        *string `json:"group"`
	Contact      *string `json:"contact"`
	PhotoRef     *string `json:"photoRef"`
}

// ListSubjects supports ?group= and ?q= filters.
func (h *Handler) ListSubjects(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		items []subject.Subject
		err   error
	)
	switch {
	case c.Query("q") != "":
		items, err = h.app.Subjects.Search(ctx, c.Query("q"))
	case c.Query("group") != "":
		items, err = h.app.Subjects.ListByGroup(ctx, c.Query("group"))
	default:
		items, err = h.app.Subjects.List(ctx)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	if items == nil {
		items = []subject.Subject{}
	}
	c.JSON(http.StatusOK, gin.H{"subjects": items})
}

func (h *Handler) CreateSubject(c *gin.Context) {
	var req subjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	created, err := h.app.Subjects.Create(c.Request.Context(), subject.NewSubject(req))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// GetSubject accepts an id or an external code.
func (h *Handler) GetSubject(c *gin.Context) {
	subj, err := h.app.Subjects.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, subj)
}

func (h *Handler) UpdateSubject(c *gin.Context) {
	var req subjectPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	updated, err := h.app.Subjects.Update(c.Request.Context(), c.Param("id"), subject.Patch(req))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) DeleteSubject(c *gin.Context) {
	if err := h.app.Subjects.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SubjectPayload renders the scannable identity of a subject.
func (h *Handler) SubjectPayload(c *gin.Context) {
	subj, err := h.app.Subjects.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	text, err := payload.EncodeSubject(payload.Subject{
		SubjectID:      subj.ID,
		ExternalCode:   subj.ExternalCode,
		IssuedAtMillis: h.app.Clock.Now().UnixMilli(),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payload": text})
}

func (h *Handler) UploadSubjectPhoto(c *gin.Context) {
	ctx := c.Request.Context()
	subj, err := h.app.Subjects.Get(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ref, err := h.readImage(c, "subjects")
	if err != nil {
		h.uploadFailed(c, err)
		return
	}
	updated, err := h.app.Subjects.Update(ctx, subj.ID, subject.Patch{PhotoRef: &ref})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) Groups(c *gin.Context) {
	ctx := c.Request.Context()
	groups, err := h.app.Subjects.Groups(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	stats, err := h.app.Subjects.Stats(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	if groups == nil {
		groups = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups, "stats": stats})
}

func (h *Handler) uploadFailed(c *gin.Context, err error) {
	if errors.Is(err, apperr.ErrInvalid) || errors.Is(err, cloudinary.ErrNotConfigured) {
		h.fail(c, err)
		return
	}
	h.log.Warn("image upload failed", zap.Error(err))
	c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
}
