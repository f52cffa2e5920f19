package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skypro1111/usb-audio-bridge/internal/config"
	"github.com/skypro1111/usb-audio-bridge/internal/metrics"
	"github.com/skypro1111/usb-audio-bridge/internal/playback"
	"github.com/skypro1111/usb-audio-bridge/internal/server"
	"github.com/skypro1111/usb-audio-bridge/internal/session"
	"github.com/skypro1111/usb-audio-bridge/internal/transport"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "usb-audio-bridge"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	port := flag.String("port", "", "Serial port override (e.g. /dev/ttyACM0)")
	rate := flag.Int("rate", 0, "Sample rate override in Hz")
	maxLatency := flag.Float64("max-latency", 0, "Max buffered latency override in ms")
	flag.Parse()

	// Load configuration; flags beat the file, the file beats the defaults
	cfg := loadConfig(*configPath)
	if *port != "" {
		cfg.Serial.Port = *port
	}
	if *rate > 0 {
		cfg.Audio.SampleRate = *rate
	}
	if *maxLatency > 0 {
		cfg.Playback.MaxBufferLatencyMS = *maxLatency
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
	)

	logger.Info("Configuration loaded",
		slog.String("serial_port", cfg.Serial.Port),
		slog.Int("baudrate", cfg.Serial.Baudrate),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Float64("max_buffer_latency_ms", cfg.Playback.MaxBufferLatencyMS),
		slog.Int("sink_depth_frames", cfg.Playback.SinkDepthFrames),
		slog.String("log_level", cfg.Logging.Level),
	)

	// os.Exit skips defers, so everything that needs cleanup lives in run
	if err := run(cfg, logger); err != nil {
		os.Exit(1)
	}

	logger.Info("Service stopped")
}

// run wires the pipeline and executes the session; errors are already logged
// when it returns
func run(cfg *config.Config, logger *slog.Logger) error {
	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()

	// Open the audio output device
	sink, err := playback.NewOtoSink(cfg.Audio.SampleRate, cfg.Playback.SinkDepthFrames, logger)
	if err != nil {
		logger.Error("Failed to open audio output", slog.String("error", err.Error()))
		return err
	}
	defer sink.Close()

	regulator := playback.NewRegulator(playback.Config{
		SampleRate:       cfg.Audio.SampleRate,
		MaxBufferLatency: cfg.Playback.GetMaxBufferLatency(),
		SinkDepthFrames:  cfg.Playback.SinkDepthFrames,
	}, sink, logger)

	// Open the serial transport; the session owns and closes it
	source, err := transport.OpenSerial(cfg.Serial.Port, cfg.Serial.Baudrate, logger)
	if err != nil {
		logger.Error("Failed to open serial port", slog.String("error", err.Error()))
		return err
	}

	sess := session.New(source, regulator, cfg.Playback.GetMaxBufferLatency(), logger, appMetrics)

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, sess, appMetrics)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			source.Close()
			return err
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	// Run the playback session in the main goroutine; it returns on
	// cancellation or transport failure
	runErr := sess.Run(ctx)

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	if runErr != nil {
		logger.Error("Session terminated", slog.String("error", runErr.Error()))
		return runErr
	}

	return nil
}

// loadConfig reads the config file if present; a missing file at the default
// path is not an error, the built-in defaults apply
func loadConfig(path string) *config.Config {
	if _, err := os.Stat(path); os.IsNotExist(err) && path == defaultConfigPath {
		return config.Default()
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
