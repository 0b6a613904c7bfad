package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ---------- Store ----------

// StoreStatus reports connectivity and the keys awaiting reconciliation.
func (h *Handler) StoreStatus(c *gin.Context) {
	ctx := c.Request.Context()
	st := h.app.Store
	keys, err := st.Keys(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	pending, err := st.ListPendingKeys(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	errored, err := st.ListErrorKeys(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"online":   st.Online(),
		"failMode": st.FailMode().String(),
		"keys":     nonNil(keys),
		"pending":  nonNil(pending),
		"errored":  nonNil(errored),
	})
}

func (h *Handler) SetConnectivity(c *gin.Context) {
	var req struct {
		Online *bool `json:"online" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	prev := h.app.Connectivity.Set(*req.Online)
	h.log.Info("connectivity changed", zap.Bool("from", prev), zap.Bool("to", *req.Online))
	c.JSON(http.StatusOK, gin.H{"online": *req.Online, "previous": prev})
}

func (h *Handler) MarkKeySynced(c *gin.Context) {
	if err := h.app.Store.MarkSynced(c.Request.Context(), c.Param("key")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) MarkKeyErrored(c *gin.Context) {
	if err := h.app.Store.MarkError(c.Request.Context(), c.Param("key")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
