package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"content-ai-api/internal/config"
	"content-ai-api/internal/interfaces/http/dto"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	cfg *config.Config
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(cfg *config.Config) *HealthHandler {
	return &HealthHandler{cfg: cfg}
}

type readinessCheck struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type readinessResponse struct {
	Status string                     `json:"status"`
	Checks map[string]*readinessCheck `json:"checks,omitempty"`
}

// Health 健康检查接口
// @Summary 健康检查
// @Description 返回服务名、当前模型后端与版本
// @Tags System
// @Produce json
// @Success 200 {object} dto.HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, dto.HealthResponse{
		Status:   "healthy",
		Service:  h.cfg.App.Name,
		Provider: strings.ToLower(h.cfg.LLM.Provider),
		Version:  h.cfg.App.Version,
	})
}

// Ready 就绪检查接口
// @Summary 就绪检查
// @Description 检查模型后端凭据是否已配置
// @Tags System
// @Produce json
// @Success 200 {object} readinessResponse
// @Failure 503 {object} readinessResponse
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	provider := strings.ToLower(h.cfg.LLM.Provider)
	active := h.cfg.LLM.Active()
	check := &readinessCheck{Status: "ok"}

	switch provider {
	case config.ProviderFalcon:
		if active.BaseURL == "" {
			check.Status, check.Error = "missing", "falcon base url not configured"
		}
	default:
		if active.APIKey == "" {
			check.Status, check.Error = "missing", provider+" api key not configured"
		}
	}

	resp := readinessResponse{
		Status: "ok",
		Checks: map[string]*readinessCheck{"provider": check},
	}
	if check.Status != "ok" {
		resp.Status = "not_ready"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Live 存活检查接口
// @Summary 存活检查
// @Description 检查服务是否存活
// @Tags System
// @Produce json
// @Success 200 {object} dto.HealthResponse
// @Router /live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, dto.HealthResponse{Status: "ok"})
}
