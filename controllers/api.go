package controllers

import (
	"net/http"
	"time"

	"flowkeeper/internal/middleware"
	"flowkeeper/internal/models"
	"flowkeeper/internal/registry"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type APIController struct {
	reg       *registry.Registry
	version   string
	session   string
	startTime time.Time
}

/**
 * Create new API controller instance
 * @param {*registry.Registry} reg - Registry of the running orchestrator
 * @param {string} version - Program version reported by /healthz
 * @param {string} session - Orchestrator session id
 * @returns {*APIController} New API controller instance
 */
func NewAPIController(reg *registry.Registry, version, session string) *APIController {
	return &APIController{
		reg:       reg,
		version:   version,
		session:   session,
		startTime: time.Now(),
	}
}

func (a *APIController) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", a.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// @Summary 业务就绪探针
// @Description 返回程序版本、会话、运行时长以及设备和请求统计
// @Tags System
// @Produce json
// @Success 200 {object} models.HealthResponse
// @Router /healthz [get]
func (a *APIController) Healthz(c *gin.Context) {
	metrics := models.Metrics{
		TotalRequests: middleware.GetTotalRequests(),
		ErrorRequests: middleware.GetErrorRequests(),
		Devices:       a.reg.Len(),
	}
	for _, detail := range a.reg.Snapshot() {
		if detail.Active {
			metrics.ActiveDevices++
		}
		if detail.ReadyToQuit {
			metrics.ReadyToQuit++
		}
	}
	c.JSON(http.StatusOK, &models.HealthResponse{
		Version:   a.version,
		Session:   a.session,
		StartTime: a.startTime.Format(time.RFC3339),
		Status:    "UP",
		Uptime:    time.Since(a.startTime).Truncate(time.Second).String(),
		Metrics:   metrics,
	})
}
