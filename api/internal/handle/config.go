package handle

import (
	"errors"
	"net/http"
	"strings"

	"screenmind/api/internal/logger"
	"screenmind/api/internal/store"
	"screenmind/api/internal/vision"

	"github.com/gin-gonic/gin"
)

type APIKeyRequest struct {
	Provider string `json:"provider" binding:"required"`
	APIKey   string `json:"api_key" binding:"required"`
}

type ModelConfigRequest struct {
	Provider string `json:"provider" binding:"required"`
	Model    string `json:"model" binding:"required"`
	APIKey   string `json:"api_key,omitempty"`
}

type providerView struct {
	Name           string   `json:"name"`
	Models         []string `json:"models"`
	RequiresAPIKey bool     `json:"requires_api_key"`
}

// Models lists the catalog keyed by provider id.
func (h *Handle) Models(c *gin.Context) {
	out := map[string]providerView{}
	for _, p := range h.svc.Providers() {
		out[p.ID] = providerView{Name: p.DisplayName, Models: p.Models, RequiresAPIKey: true}
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "data": out})
}

func (h *Handle) ConfigModels(c *gin.Context) {
	available := map[string]vision.ProviderConfig{}
	for _, p := range h.svc.Providers() {
		available[p.ID] = p
	}
	provider, model := h.svc.Selection()
	writeJSON(c, http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"available_models": available,
			"current_config":   gin.H{"provider": provider, "model": model},
		},
	})
}

func (h *Handle) SetAPIKey(c *gin.Context) {
	var req APIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "bad json: "+err.Error())
		return
	}
	req.Provider = strings.TrimSpace(req.Provider)
	key := strings.TrimSpace(req.APIKey)
	if _, ok := vision.Lookup(req.Provider); !ok {
		badRequest(c, "无效的AI提供商")
		return
	}
	if key == "" {
		badRequest(c, "API密钥不能为空")
		return
	}

	// persist first; a failed save leaves the service untouched
	if h.settings != nil {
		if err := h.settings.SaveCredential(c.Request.Context(), req.Provider, key); err != nil {
			logger.WithError(err).WithField("provider", req.Provider).Error("persist api key")
			respondError(c, http.StatusInternalServerError, "设置API密钥失败: "+err.Error(), "")
			return
		}
	}
	if err := h.svc.SetCredential(req.Provider, key); err != nil {
		badRequest(c, "设置API密钥失败: "+err.Error())
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "message": req.Provider + " API密钥设置成功"})
}

func (h *Handle) RemoveAPIKey(c *gin.Context) {
	provider := c.Param("provider")
	if _, ok := vision.Lookup(provider); !ok {
		badRequest(c, "无效的AI提供商")
		return
	}
	if h.settings != nil {
		err := h.settings.DeleteCredential(c.Request.Context(), provider)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			logger.WithError(err).WithField("provider", provider).Error("delete api key")
			respondError(c, http.StatusInternalServerError, "删除API密钥失败: "+err.Error(), "")
			return
		}
	}
	if err := h.svc.RemoveCredential(provider); err != nil {
		badRequest(c, "无效的AI提供商")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "message": provider + " API密钥已删除"})
}

func (h *Handle) SetModel(c *gin.Context) {
	var req ModelConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "bad json: "+err.Error())
		return
	}
	p, ok := vision.Lookup(req.Provider)
	if !ok {
		badRequest(c, "无效的AI提供商")
		return
	}
	if !p.AllowsModel(req.Model) {
		badRequest(c, "该提供商不支持指定的模型")
		return
	}
	if h.settings != nil {
		ctx := c.Request.Context()
		err := h.settings.SaveSelection(ctx, req.Provider, req.Model)
		if err == nil && strings.TrimSpace(req.APIKey) != "" {
			err = h.settings.SaveCredential(ctx, req.Provider, strings.TrimSpace(req.APIKey))
		}
		if err != nil {
			logger.WithError(err).Error("persist model selection")
			respondError(c, http.StatusInternalServerError, "设置模型失败: "+err.Error(), "")
			return
		}
	}
	if !h.svc.Configure(req.Provider, req.Model, req.APIKey) {
		badRequest(c, "该提供商不支持指定的模型")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"success": true,
		"message": "模型已切换到 " + req.Provider + ":" + req.Model,
		"data":    h.svc.CurrentModelInfo(),
	})
}

func (h *Handle) Settings(c *gin.Context) {
	provider, model := h.svc.Selection()
	writeJSON(c, http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"current_provider":    provider,
			"current_model":       model,
			"api_keys_configured": h.svc.CredentialStatus(),
			"app_info": gin.H{
				"name":        AppName,
				"version":     AppVersion,
				"description": "智能截图答题助手 - 网页版",
			},
		},
	})
}

func (h *Handle) TestConnection(c *gin.Context) {
	ok := h.svc.TestConnection(c.Request.Context())
	code := http.StatusOK
	if !ok {
		code = http.StatusServiceUnavailable
	}
	writeJSON(c, code, gin.H{"success": ok, "data": h.svc.CurrentModelInfo()})
}
