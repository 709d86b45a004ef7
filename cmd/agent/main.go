package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"stressmon/internal/core/ports"
	"stressmon/internal/core/services"
	httphandlers "stressmon/internal/handlers/http"
	"stressmon/internal/infrastructure/capture"
	"stressmon/internal/infrastructure/middleware"
	"stressmon/internal/infrastructure/monitoring"
	"stressmon/internal/infrastructure/transport"
	"stressmon/pkg/config"
	"stressmon/pkg/logger"
	"stressmon/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	autoConsent := flag.Bool("yes", false, "grant monitoring consent without prompting")
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"config.yaml",
	}
	if *configPath != "" {
		configPaths = []string{*configPath}
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Initialize tracing
	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: "production",
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tp.Shutdown(ctx)
	}()

	// Initialize monitoring
	var metricsRecorder ports.MetricsRecorder
	if cfg.Monitoring.PrometheusEnabled {
		metricsRecorder = monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)
	}

	// Wire the transport channel
	channelCfg := transport.DefaultConfig(cfg.Server.URL)
	channelCfg.ConnectTimeout = cfg.Server.ConnectTimeout
	channelCfg.WriteTimeout = cfg.Server.WriteTimeout
	channelCfg.Reconnect = cfg.Server.Reconnect
	channelCfg.ReconnectInterval = cfg.Server.ReconnectInterval
	channelCfg.MaxReconnectAttempts = cfg.Server.MaxReconnectAttempts

	channel := transport.NewWebSocketChannel(channelCfg, metricsRecorder, log)

	// Wire the capture pipeline. The synthetic provider stands in where no
	// capture hardware integration is present.
	provider := &capture.SyntheticProvider{}
	orchestrator := capture.NewOrchestrator(provider, log)
	orchestrator.SetJPEGQuality(cfg.Capture.JPEGQuality)

	controller := services.NewSessionController(services.Config{
		AudioChunkDuration: cfg.Capture.ChunkDuration,
		VideoFrameInterval: cfg.Capture.FrameInterval,
		TelemetryInterval:  cfg.Telemetry.PollInterval,
		TimelineLimit:      cfg.Telemetry.TimelineLimit,
		Constraints: ports.MediaConstraints{
			SampleRate:  cfg.Capture.SampleRate,
			Channels:    cfg.Capture.Channels,
			FrameWidth:  cfg.Capture.FrameWidth,
			FrameHeight: cfg.Capture.FrameHeight,
		},
	}, channel, orchestrator, metricsRecorder, log)

	// Status API
	var statusServer *http.Server
	if cfg.Status.Enabled {
		if cfg.Logging.Level != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}
		router := gin.Default()
		router.Use(middleware.NewTracingMiddleware())
		router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

		statusHandler := httphandlers.NewStatusHandler(controller)
		statusHandler.SetupRoutes(router)

		statusServer = &http.Server{
			Addr:    cfg.Status.Address,
			Handler: router,
		}
		go func() {
			log.Infow("status API listening", "address", cfg.Status.Address)
			if err := statusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorw("status API server failed", "error", err)
			}
		}()
	}

	// Consent gate. Nothing connects and no device is touched until the
	// operator agrees.
	if !*autoConsent && !promptConsent() {
		controller.DeclineConsent()
		log.Infow("monitoring declined by operator")
		shutdownStatus(statusServer, log)
		return
	}

	startCtx, startSpan := tracing.StartSpan(context.Background(), "session.start")
	if err := controller.GrantConsent(startCtx); err != nil {
		tracing.RecordError(startCtx, err)
		startSpan.End()
		log.Errorw("failed to start monitoring session", "error", err)
		shutdownStatus(statusServer, log)
		os.Exit(1)
	}
	tracing.AddSpanAttributes(startCtx,
		tracing.SessionIDKey.String(string(controller.Session().ID)))
	startSpan.End()

	log.Infow("monitoring session active",
		"server", cfg.Server.URL,
		"chunk_duration", cfg.Capture.ChunkDuration,
		"frame_interval", cfg.Capture.FrameInterval)

	// Wait for termination
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Infow("shutting down", "signal", sig.String())

	stopCtx, stopSpan := tracing.StartSpan(context.Background(), "session.stop")
	tracing.AddSpanAttributes(stopCtx,
		tracing.SessionIDKey.String(string(controller.Session().ID)))
	controller.Stop()
	stopSpan.End()

	shutdownStatus(statusServer, log)
}

func promptConsent() bool {
	fmt.Print("Allow stress monitoring to capture microphone and camera? [y/N]: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func shutdownStatus(srv *http.Server, log interface{ Errorw(string, ...interface{}) }) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("status API shutdown failed", "error", err)
	}
}
