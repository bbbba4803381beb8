package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/linkcard/internal/app"
	"github.com/charlesng35/linkcard/internal/monitoring"
	"github.com/charlesng35/linkcard/pkg/response"
)

// MonitoringHandler surfaces maintenance and health summaries for administrators.
type MonitoringHandler struct {
	module *monitoring.Module
	cfg    *app.Config
}

// NewMonitoringHandler constructs a monitoring handler. Returns nil when monitoring is disabled.
func NewMonitoringHandler(module *monitoring.Module, cfg *app.Config) *MonitoringHandler {
	if module == nil || cfg == nil {
		return nil
	}
	if !cfg.Monitoring.Health.Enabled && !cfg.Monitoring.Prometheus.Enabled {
		return nil
	}
	return &MonitoringHandler{module: module, cfg: cfg}
}

// Summary returns maintenance job state, readiness and configuration hints.
func (h *MonitoringHandler) Summary(c *gin.Context) {
	endpoint := strings.TrimSpace(h.cfg.Monitoring.Prometheus.Endpoint)
	if endpoint == "" {
		endpoint = "/metrics"
	}

	payload := gin.H{
		"jobs": h.module.Jobs().Snapshot(),
		"prometheus": gin.H{
			"enabled":  h.cfg.Monitoring.Prometheus.Enabled,
			"endpoint": endpoint,
		},
		"generated_at": time.Now().UTC(),
	}
	if h.cfg.Monitoring.Health.Enabled {
		payload["readiness"] = h.module.Health().EvaluateReadiness(c.Request.Context())
	}

	response.Success(c, http.StatusOK, payload)
}
