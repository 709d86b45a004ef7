package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"stressmon/internal/core/domain"
	"stressmon/internal/core/ports"
)

// Config holds the cadences of the three session producers.
type Config struct {
	AudioChunkDuration time.Duration
	VideoFrameInterval time.Duration
	TelemetryInterval  time.Duration
	TimelineLimit      int
	Constraints        ports.MediaConstraints
}

func (c *Config) applyDefaults() {
	if c.AudioChunkDuration <= 0 {
		c.AudioChunkDuration = 3 * time.Second
	}
	if c.VideoFrameInterval <= 0 {
		c.VideoFrameInterval = 200 * time.Millisecond
	}
	if c.TelemetryInterval <= 0 {
		c.TelemetryInterval = 5 * time.Second
	}
	if c.TimelineLimit <= 0 {
		c.TimelineLimit = 100
	}
}

type consentState int

const (
	consentUnasked consentState = iota
	consentGranted
	consentDeclined
)

type subRecord struct {
	event ports.EventType
	sub   ports.Subscription
}

// nopMetrics keeps the controller usable without a metrics backend.
type nopMetrics struct{}

func (nopMetrics) AudioChunkSent(int)     {}
func (nopMetrics) VideoFrameSent(int)     {}
func (nopMetrics) FusionRequested()       {}
func (nopMetrics) ReconnectAttempted()    {}
func (nopMetrics) AlertReceived(string)   {}
func (nopMetrics) SetConnected(bool)      {}
func (nopMetrics) SetStressScore(float64) {}

// SessionController coordinates consent, connection, capture and periodic
// telemetry polling for one monitoring session, and exposes read-only
// projections for the presentation layer.
type SessionController struct {
	cfg     Config
	channel ports.Channel
	media   ports.MediaOrchestrator
	metrics ports.MetricsRecorder
	logger  *zap.SugaredLogger

	correlator *ResultCorrelator

	mu        sync.RWMutex
	state     domain.SessionState
	consent   consentState
	stopping  bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
	subs      []subRecord
	startedAt time.Time

	latest   *domain.StressUpdate
	alerts   []domain.Alert
	timeline *domain.Timeline
	info     *domain.SessionInfo
	lastErr  error
}

// NewSessionController wires the channel, capture orchestrator and metrics
// into a controller in the AwaitingConsent state.
func NewSessionController(
	cfg Config,
	channel ports.Channel,
	media ports.MediaOrchestrator,
	metrics ports.MetricsRecorder,
	logger *zap.SugaredLogger,
) *SessionController {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}

	c := &SessionController{
		cfg:      cfg,
		channel:  channel,
		media:    media,
		metrics:  metrics,
		logger:   logger,
		state:    domain.StateAwaitingConsent,
		timeline: domain.NewTimeline(cfg.TimelineLimit),
	}
	c.correlator = NewResultCorrelator(c.publishFusion)
	c.channel.OnDisconnect(c.handleChannelLost)
	return c
}

// GrantConsent records user acceptance and starts the session: connect,
// acquire devices, start the three producers. Consent is asked once; a
// declined consent terminates the flow permanently.
func (c *SessionController) GrantConsent(ctx context.Context) error {
	c.mu.Lock()
	if c.consent == consentDeclined {
		c.mu.Unlock()
		return domain.ErrConsentDeclined
	}
	if c.state != domain.StateAwaitingConsent && c.state != domain.StateDisconnected {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot start session from state %s", state)
	}
	c.consent = consentGranted
	c.state = domain.StateConnecting
	c.stopping = false
	c.stopCh = make(chan struct{})
	c.lastErr = nil
	c.mu.Unlock()

	return c.start(ctx)
}

// DeclineConsent terminates the flow. No connection or device access is ever
// attempted.
func (c *SessionController) DeclineConsent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consent = consentDeclined
	c.state = domain.StateDisconnected
	c.logger.Infow("consent declined, session terminated")
}

func (c *SessionController) start(ctx context.Context) error {
	c.subscribeEvents()

	if err := c.channel.Connect(ctx); err != nil {
		c.failStartup(fmt.Errorf("connect: %w", err))
		return err
	}
	c.metrics.SetConnected(true)

	if c.isStopping() {
		c.channel.Disconnect()
		c.failStartup(domain.ErrSessionNotActive)
		return domain.ErrSessionNotActive
	}

	if err := c.media.AcquireDevices(c.cfg.Constraints); err != nil {
		c.channel.Disconnect()
		c.metrics.SetConnected(false)
		c.failStartup(err)
		return err
	}

	// A terminal channel loss may have run the full teardown while devices
	// were being acquired; the freshly acquired tracks must not outlive it.
	if c.isStopping() {
		c.media.StopAllStreams()
		c.channel.Disconnect()
		c.metrics.SetConnected(false)
		c.failStartup(domain.ErrSessionNotActive)
		return domain.ErrSessionNotActive
	}

	if err := c.media.StartAudioCapture(c.cfg.AudioChunkDuration, c.publishAudioChunk); err != nil {
		c.media.StopAllStreams()
		c.channel.Disconnect()
		c.metrics.SetConnected(false)
		c.failStartup(err)
		return err
	}

	c.mu.Lock()
	if c.stopping || c.stopCh == nil {
		c.mu.Unlock()
		c.media.StopAllStreams()
		c.channel.Disconnect()
		c.metrics.SetConnected(false)
		c.failStartup(domain.ErrSessionNotActive)
		return domain.ErrSessionNotActive
	}
	stopCh := c.stopCh
	c.state = domain.StateActive
	c.startedAt = time.Now()
	c.wg.Add(2)
	c.mu.Unlock()

	go c.videoLoop(stopCh)
	go c.telemetryLoop(stopCh)

	c.logger.Infow("session active",
		"session_id", c.channel.SessionID(),
		"chunk_duration", c.cfg.AudioChunkDuration,
		"frame_interval", c.cfg.VideoFrameInterval,
	)
	return nil
}

// Stop tears the session down: cancel producers, stop device tracks, close
// audio capture, disconnect the channel, in that order. Safe to call more
// than once and from any state.
func (c *SessionController) Stop() {
	c.stop(nil)
}

func (c *SessionController) stop(cause error) {
	c.mu.Lock()
	if c.stopping || c.stopCh == nil {
		c.state = domain.StateDisconnected
		if cause != nil && c.lastErr == nil {
			c.lastErr = cause
		}
		c.mu.Unlock()
		return
	}
	c.stopping = true
	stopCh := c.stopCh
	c.mu.Unlock()

	// The stopping flag is visible to every producer callback before any
	// timer is cancelled, so a late-firing tick cannot publish.
	close(stopCh)
	c.wg.Wait()

	c.media.StopAllStreams()
	c.channel.Disconnect()
	c.unsubscribeEvents()
	c.correlator.Reset()
	c.metrics.SetConnected(false)

	c.mu.Lock()
	c.state = domain.StateDisconnected
	c.stopCh = nil
	if cause != nil {
		c.lastErr = cause
	}
	c.mu.Unlock()

	c.logger.Infow("session stopped", "cause", cause)
}

func (c *SessionController) failStartup(err error) {
	c.unsubscribeEvents()
	c.mu.Lock()
	c.state = domain.StateDisconnected
	c.stopCh = nil
	c.stopping = false
	if c.lastErr == nil {
		// A concurrent teardown may have recorded the root cause already.
		c.lastErr = err
	}
	c.mu.Unlock()
	c.logger.Errorw("session startup failed", "error", err)
}

// isStopping reports whether a teardown began (or completed) since the
// session started connecting.
func (c *SessionController) isStopping() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stopping || c.stopCh == nil
}

func (c *SessionController) handleChannelLost(err error) {
	c.logger.Warnw("channel terminally disconnected", "error", err)
	c.stop(fmt.Errorf("%w: %v", domain.ErrConnectionLost, err))
}

// --- producers ---

func (c *SessionController) producing() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == domain.StateActive && !c.stopping
}

func (c *SessionController) publishAudioChunk(encoded string) {
	if !c.producing() {
		return
	}
	payload := domain.AudioChunkPayload{
		SessionID: c.channel.SessionID(),
		AudioData: encoded,
	}
	if err := c.channel.Publish(ports.EventAudioChunk, payload); err != nil {
		c.logger.Warnw("publish audio chunk failed", "error", err)
		return
	}
	c.metrics.AudioChunkSent(len(encoded))
}

func (c *SessionController) videoLoop(stopCh <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.VideoFrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if !c.producing() {
				continue
			}
			frame := c.media.SampleVideoFrame()
			if frame == "" {
				// No frame available yet, skip this tick.
				continue
			}
			payload := domain.VideoFramePayload{
				SessionID: c.channel.SessionID(),
				FrameData: frame,
			}
			if err := c.channel.Publish(ports.EventVideoFrame, payload); err != nil {
				c.logger.Warnw("publish video frame failed", "error", err)
				continue
			}
			c.metrics.VideoFrameSent(len(frame))
		}
	}
}

func (c *SessionController) telemetryLoop(stopCh <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.TelemetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if !c.producing() {
				continue
			}
			sid := c.channel.SessionID()
			if err := c.channel.Publish(ports.EventGetTimeline, domain.TimelineRequest{
				SessionID: sid,
				Limit:     c.cfg.TimelineLimit,
			}); err != nil {
				c.logger.Warnw("timeline poll failed", "error", err)
			}
			if err := c.channel.Publish(ports.EventGetSessionInfo, domain.SessionInfoRequest{
				SessionID: sid,
			}); err != nil {
				c.logger.Warnw("session info poll failed", "error", err)
			}
		}
	}
}

func (c *SessionController) publishFusion(audio, video domain.ModalityResult) {
	if !c.producing() {
		return
	}
	req := domain.FusionRequest{
		SessionID:   c.channel.SessionID(),
		AudioResult: &audio,
		VideoResult: &video,
	}
	if err := c.channel.Publish(ports.EventFusionRequest, req); err != nil {
		c.logger.Warnw("publish fusion request failed", "error", err)
		return
	}
	c.metrics.FusionRequested()
}

// --- inbound events ---

func (c *SessionController) subscribeEvents() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.subs) > 0 {
		return
	}

	subscribe := func(event ports.EventType, h ports.EventHandler) {
		c.subs = append(c.subs, subRecord{event: event, sub: c.channel.Subscribe(event, h)})
	}

	subscribe(ports.EventAudioResult, c.handleAudioResult)
	subscribe(ports.EventVideoResult, c.handleVideoResult)
	subscribe(ports.EventStressUpdate, c.handleStressUpdate)
	subscribe(ports.EventSessionUpdate, c.handleSessionInfo)
	subscribe(ports.EventSessionInfo, c.handleSessionInfo)
	subscribe(ports.EventAlert, c.handleAlert)
	subscribe(ports.EventTimelineData, c.handleTimelineData)
	subscribe(ports.EventError, c.handleRemoteError)
}

func (c *SessionController) unsubscribeEvents() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, s := range subs {
		c.channel.Unsubscribe(s.event, s.sub)
	}
}

func (c *SessionController) handleAudioResult(payload json.RawMessage) {
	var r domain.ModalityResult
	if err := json.Unmarshal(payload, &r); err != nil {
		c.logger.Warnw("bad audio result payload", "error", err)
		return
	}
	c.correlator.OnAudioResult(r)
}

func (c *SessionController) handleVideoResult(payload json.RawMessage) {
	var r domain.ModalityResult
	if err := json.Unmarshal(payload, &r); err != nil {
		c.logger.Warnw("bad video result payload", "error", err)
		return
	}
	c.correlator.OnVideoResult(r)
}

func (c *SessionController) handleStressUpdate(payload json.RawMessage) {
	var u domain.StressUpdate
	if err := json.Unmarshal(payload, &u); err != nil {
		c.logger.Warnw("bad stress update payload", "error", err)
		return
	}

	c.mu.Lock()
	c.latest = &u
	c.mu.Unlock()
	c.metrics.SetStressScore(u.StressScore)
}

func (c *SessionController) handleSessionInfo(payload json.RawMessage) {
	var info domain.SessionInfo
	if err := json.Unmarshal(payload, &info); err != nil {
		c.logger.Warnw("bad session info payload", "error", err)
		return
	}

	c.mu.Lock()
	c.info = &info
	c.mu.Unlock()
}

func (c *SessionController) handleAlert(payload json.RawMessage) {
	var a domain.Alert
	if err := json.Unmarshal(payload, &a); err != nil {
		c.logger.Warnw("bad alert payload", "error", err)
		return
	}

	c.mu.Lock()
	c.alerts = append(c.alerts, a)
	c.mu.Unlock()
	c.metrics.AlertReceived(a.Severity)
	c.logger.Warnw("alert received", "severity", a.Severity, "title", a.Title)
}

func (c *SessionController) handleTimelineData(payload json.RawMessage) {
	var data domain.TimelineDataPayload
	if err := json.Unmarshal(payload, &data); err != nil {
		c.logger.Warnw("bad timeline payload", "error", err)
		return
	}
	c.timeline.Replace(data.Timeline)
}

func (c *SessionController) handleRemoteError(payload json.RawMessage) {
	var e domain.ErrorPayload
	if err := json.Unmarshal(payload, &e); err != nil {
		c.logger.Warnw("bad error payload", "error", err)
		return
	}

	c.mu.Lock()
	c.lastErr = fmt.Errorf("remote error: %s", e.Message)
	c.mu.Unlock()
	c.logger.Errorw("remote error", "message", e.Message)
}

// --- read-only projections ---

func (c *SessionController) State() domain.SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *SessionController) Connected() bool {
	return c.channel.Connected()
}

// Session returns a snapshot of the session identity and lifecycle.
func (c *SessionController) Session() domain.CaptureSession {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.CaptureSession{
		ID:             c.channel.SessionID(),
		State:          c.state,
		ConsentGranted: c.consent == consentGranted,
		StartedAt:      c.startedAt,
	}
}

// LatestStress returns the most recent fused update, or nil before the
// first one arrives.
func (c *SessionController) LatestStress() *domain.StressUpdate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.latest == nil {
		return nil
	}
	u := *c.latest
	return &u
}

// Alerts returns a copy of the append-only alert list for this session.
func (c *SessionController) Alerts() []domain.Alert {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Alert(nil), c.alerts...)
}

func (c *SessionController) TimelineSamples() []domain.TimelineSample {
	return c.timeline.Samples()
}

// TimelineTrend analyzes the direction of the buffered timeline.
func (c *SessionController) TimelineTrend() domain.Trend {
	return domain.AnalyzeTrend(c.timeline.Scores(), 10)
}

// Info returns the latest session metadata pushed by the service.
func (c *SessionController) Info() *domain.SessionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.info == nil {
		return nil
	}
	info := *c.info
	return &info
}

func (c *SessionController) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}
