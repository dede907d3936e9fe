package handle

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (h *Handle) Health(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   AppName + " API",
		"version":   AppVersion,
	})
}

func (h *Handle) Status(c *gin.Context) {
	provider, _ := h.svc.Selection()
	aiStatus := "available"
	if !h.svc.CredentialStatus()[provider] {
		aiStatus = "not_configured"
	}
	writeJSON(c, http.StatusOK, gin.H{
		"api":        "running",
		"ai_service": aiStatus,
		"model":      h.svc.CurrentModelInfo(),
		"uptime":     time.Since(h.started).Round(time.Second).String(),
	})
}
