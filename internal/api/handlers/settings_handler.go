package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"bazaar/leadhub/internal/apperr"
)

// SettingsWriter persists a runtime setting.
type SettingsWriter interface {
	Set(ctx context.Context, key string, value interface{}) error
}

type SettingsHandler struct {
	settings SettingsWriter
}

func NewSettingsHandler(settings SettingsWriter) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

type settingRequest struct {
	Value interface{} `json:"value"`
}

// Update handles PUT /v1/admin/settings/:key
func (h *SettingsHandler) Update(c *gin.Context) {
	var req settingRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Value == nil {
		respondError(c, apperr.Validation("value is required"))
		return
	}
	key := c.Param("key")
	if err := h.settings.Set(c.Request.Context(), key, req.Value); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"message": "Setting updated", "data": gin.H{"key": key, "value": req.Value}})
}
