package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stressmon/internal/core/domain"
)

// stubView is a canned SessionView.
type stubView struct {
	state     domain.SessionState
	connected bool
	session   domain.CaptureSession
	latest    *domain.StressUpdate
	alerts    []domain.Alert
	samples   []domain.TimelineSample
	trend     domain.Trend
	info      *domain.SessionInfo
	lastErr   error
}

func (v *stubView) State() domain.SessionState               { return v.state }
func (v *stubView) Connected() bool                          { return v.connected }
func (v *stubView) Session() domain.CaptureSession           { return v.session }
func (v *stubView) LatestStress() *domain.StressUpdate       { return v.latest }
func (v *stubView) Alerts() []domain.Alert                   { return v.alerts }
func (v *stubView) TimelineSamples() []domain.TimelineSample { return v.samples }
func (v *stubView) TimelineTrend() domain.Trend              { return v.trend }
func (v *stubView) Info() *domain.SessionInfo                { return v.info }
func (v *stubView) LastError() error                         { return v.lastErr }

func newTestRouter(view *stubView) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewStatusHandler(view).SetupRoutes(router)
	return router
}

func doGet(t *testing.T, router *gin.Engine, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)

	var body map[string]interface{}
	if len(w.Body.Bytes()) > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestStatusHandler(t *testing.T) {
	t.Run("Health", func(t *testing.T) {
		router := newTestRouter(&stubView{})

		w, body := doGet(t, router, "/healthz")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("StatusReportsStateAndConnection", func(t *testing.T) {
		view := &stubView{state: domain.StateActive, connected: true}
		router := newTestRouter(view)

		w, body := doGet(t, router, "/api/v1/status")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ACTIVE", body["state"])
		assert.Equal(t, true, body["connected"])
		assert.NotContains(t, body, "last_error")
	})

	t.Run("StressBeforeFirstUpdateIs404", func(t *testing.T) {
		router := newTestRouter(&stubView{})

		w, _ := doGet(t, router, "/api/v1/stress")

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("StressCarriesClassification", func(t *testing.T) {
		view := &stubView{
			latest: &domain.StressUpdate{StressScore: 0.8, StressLevel: domain.StressHigh},
		}
		router := newTestRouter(view)

		w, body := doGet(t, router, "/api/v1/stress")

		require.Equal(t, http.StatusOK, w.Code)
		classification := body["classification"].(map[string]interface{})
		assert.Equal(t, "High", classification["level"])
		assert.Equal(t, "red", classification["color"])
	})

	t.Run("AlertsWithCount", func(t *testing.T) {
		view := &stubView{alerts: []domain.Alert{
			{Severity: "high", Title: "High stress"},
		}}
		router := newTestRouter(view)

		w, body := doGet(t, router, "/api/v1/alerts")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(1), body["count"])
	})

	t.Run("TimelineWithTrend", func(t *testing.T) {
		view := &stubView{
			samples: []domain.TimelineSample{{Timestamp: 1, StressScore: 0.4}},
			trend:   domain.Trend{Trend: "stable", Direction: "neutral"},
		}
		router := newTestRouter(view)

		w, body := doGet(t, router, "/api/v1/timeline")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, body["timeline"], 1)
		trend := body["trend"].(map[string]interface{})
		assert.Equal(t, "stable", trend["trend"])
	})

	t.Run("SessionIncludesInfoWhenPresent", func(t *testing.T) {
		view := &stubView{
			session: domain.CaptureSession{
				ID:             "sess-1",
				State:          domain.StateActive,
				ConsentGranted: true,
				StartedAt:      time.Now(),
			},
			info: &domain.SessionInfo{SessionID: "sess-1", DurationFormatted: "2m 3s"},
		}
		router := newTestRouter(view)

		w, body := doGet(t, router, "/api/v1/session")

		assert.Equal(t, http.StatusOK, w.Code)
		info := body["info"].(map[string]interface{})
		assert.Equal(t, "2m 3s", info["duration_formatted"])
	})

	t.Run("SessionReportsUptimeOnceStarted", func(t *testing.T) {
		view := &stubView{
			session: domain.CaptureSession{
				ID:        "sess-1",
				State:     domain.StateActive,
				StartedAt: time.Now().Add(-90 * time.Second),
			},
		}
		router := newTestRouter(view)

		w, body := doGet(t, router, "/api/v1/session")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "1m 30s", body["uptime"])
	})

	t.Run("SessionOmitsUptimeBeforeStart", func(t *testing.T) {
		router := newTestRouter(&stubView{})

		w, body := doGet(t, router, "/api/v1/session")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, body, "uptime")
	})
}
