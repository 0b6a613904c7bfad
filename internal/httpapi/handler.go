package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rollcall/internal/app"
	"rollcall/internal/apperr"
	"rollcall/internal/auth"
	"rollcall/internal/clock"
	"rollcall/internal/cloudinary"
	"rollcall/internal/subject"
)

// Handler serves every route.
type Handler struct {
	app *app.App
	log *zap.Logger
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	if err := h.app.Healthy(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "online": h.app.Connectivity.Online()})
}

// ---------- Auth ----------

func (h *Handler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cfg := h.app.Config
	pair, err := auth.Refresh(req.RefreshToken, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

// ---------- helpers ----------

func (h *Handler) fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		status = http.StatusUnauthorized
	case errors.Is(err, cloudinary.ErrNotConfigured):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		msg := "internal error"
		if status == http.StatusServiceUnavailable {
			msg = err.Error()
		}
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": apperr.Kind(err)})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": apperr.Kind(apperr.ErrInvalid)})
}

// dateQuery returns the named query date, defaulting to today.
func (h *Handler) dateQuery(c *gin.Context, name string) string {
	if d := c.Query(name); d != "" {
		return d
	}
	return clock.Today(h.app.Clock)
}

// me resolves the subject named by the caller's token.
func (h *Handler) me(c *gin.Context) (subject.Subject, bool) {
	claims, _ := auth.ClaimsFrom(c)
	subj, err := h.app.Subjects.Resolve(c.Request.Context(), claims.Subject)
	if err != nil {
		h.fail(c, err)
		return subject.Subject{}, false
	}
	return subj, true
}

// readImage uploads either a multipart "file" field or a JSON
// {"data": "<data URL>"} body and returns the hosted reference.
func (h *Handler) readImage(c *gin.Context, purpose string) (string, error) {
	ctx := c.Request.Context()
	if strings.Contains(c.ContentType(), "multipart/form-data") {
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			return "", fmt.Errorf("file field required: %w", apperr.ErrInvalid)
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return "", fmt.Errorf("read file failed: %w", err)
		}
		return h.app.Uploader.Upload(ctx, purpose, data, header.Filename)
	}
	var body struct {
		Data string `json:"data" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		return "", fmt.Errorf(`provide {"data": "<base64 data URL>"}: %w`, apperr.ErrInvalid)
	}
	return h.app.Uploader.UploadDataURL(ctx, purpose, body.Data)
}
