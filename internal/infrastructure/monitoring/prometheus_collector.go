package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector records capture pipeline activity. It implements
// ports.MetricsRecorder.
type PrometheusCollector struct {
	audioChunksTotal    prometheus.Counter
	videoFramesTotal    prometheus.Counter
	fusionRequestsTotal prometheus.Counter
	reconnectsTotal     prometheus.Counter
	alertsTotal         *prometheus.CounterVec
	payloadBytesTotal   *prometheus.CounterVec

	connectionState prometheus.Gauge
	stressScore     prometheus.Gauge
}

// NewPrometheusCollector registers the agent metrics on the given registerer
// (pass prometheus.DefaultRegisterer in production; a fresh registry in
// tests).
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		audioChunksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "stressmon_audio_chunks_sent_total",
			Help: "Total number of audio chunks published",
		}),

		videoFramesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "stressmon_video_frames_sent_total",
			Help: "Total number of video frames published",
		}),

		fusionRequestsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "stressmon_fusion_requests_total",
			Help: "Total number of fusion requests triggered by the correlator",
		}),

		reconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "stressmon_reconnect_attempts_total",
			Help: "Total number of channel reconnect attempts",
		}),

		alertsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stressmon_alerts_received_total",
			Help: "Total number of alerts received, by severity",
		}, []string{"severity"}),

		payloadBytesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stressmon_payload_bytes_total",
			Help: "Total encoded payload bytes published, by modality",
		}, []string{"modality"}),

		connectionState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "stressmon_connection_state",
			Help: "Whether the channel is currently connected (1) or not (0)",
		}),

		stressScore: factory.NewGauge(prometheus.GaugeOpts{
			Name: "stressmon_stress_score",
			Help: "Latest fused stress score (0-1)",
		}),
	}
}

func (c *PrometheusCollector) AudioChunkSent(bytes int) {
	c.audioChunksTotal.Inc()
	c.payloadBytesTotal.WithLabelValues("audio").Add(float64(bytes))
}

func (c *PrometheusCollector) VideoFrameSent(bytes int) {
	c.videoFramesTotal.Inc()
	c.payloadBytesTotal.WithLabelValues("video").Add(float64(bytes))
}

func (c *PrometheusCollector) FusionRequested() {
	c.fusionRequestsTotal.Inc()
}

func (c *PrometheusCollector) ReconnectAttempted() {
	c.reconnectsTotal.Inc()
}

func (c *PrometheusCollector) AlertReceived(severity string) {
	c.alertsTotal.WithLabelValues(severity).Inc()
}

func (c *PrometheusCollector) SetConnected(connected bool) {
	if connected {
		c.connectionState.Set(1)
	} else {
		c.connectionState.Set(0)
	}
}

func (c *PrometheusCollector) SetStressScore(score float64) {
	c.stressScore.Set(score)
}
