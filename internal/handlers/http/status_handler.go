package http

import (
	"net/http"
	"time"

	"stressmon/internal/core/domain"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SessionView is the read-only surface the status API exposes. The session
// controller satisfies it.
type SessionView interface {
	State() domain.SessionState
	Connected() bool
	Session() domain.CaptureSession
	LatestStress() *domain.StressUpdate
	Alerts() []domain.Alert
	TimelineSamples() []domain.TimelineSample
	TimelineTrend() domain.Trend
	Info() *domain.SessionInfo
	LastError() error
}

type StatusHandler struct {
	view SessionView
}

func NewStatusHandler(view SessionView) *StatusHandler {
	return &StatusHandler{view: view}
}

func (h *StatusHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		api.GET("/status", h.GetStatus)
		api.GET("/session", h.GetSession)
		api.GET("/stress", h.GetStress)
		api.GET("/alerts", h.GetAlerts)
		api.GET("/timeline", h.GetTimeline)
	}
}

func (h *StatusHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *StatusHandler) GetStatus(c *gin.Context) {
	resp := gin.H{
		"state":     h.view.State().String(),
		"connected": h.view.Connected(),
	}
	if err := h.view.LastError(); err != nil {
		resp["last_error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *StatusHandler) GetSession(c *gin.Context) {
	session := h.view.Session()
	resp := gin.H{"session": session}
	if !session.StartedAt.IsZero() {
		resp["uptime"] = domain.FormatDuration(time.Since(session.StartedAt))
	}
	if info := h.view.Info(); info != nil {
		resp["info"] = info
	}
	c.JSON(http.StatusOK, resp)
}

func (h *StatusHandler) GetStress(c *gin.Context) {
	latest := h.view.LatestStress()
	if latest == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no stress update received yet"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"update":         latest,
		"classification": domain.Classify(latest.StressScore),
	})
}

func (h *StatusHandler) GetAlerts(c *gin.Context) {
	alerts := h.view.Alerts()
	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (h *StatusHandler) GetTimeline(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"timeline": h.view.TimelineSamples(),
		"trend":    h.view.TimelineTrend(),
	})
}
