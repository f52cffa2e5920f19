package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/skypro1111/usb-audio-bridge/internal/audio"
	"github.com/skypro1111/usb-audio-bridge/internal/config"
	"github.com/skypro1111/usb-audio-bridge/internal/session"
	"github.com/skypro1111/usb-audio-bridge/internal/transport"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	port := flag.String("port", "", "Serial port override (e.g. /dev/ttyACM0)")
	rate := flag.Int("rate", 0, "Sample rate override in Hz")
	duration := flag.Float64("duration", 0, "Recording duration override in seconds")
	output := flag.String("output", "", "Output WAV file override")
	flag.Parse()

	cfg := loadConfig(*configPath)
	if *port != "" {
		cfg.Serial.Port = *port
	}
	if *rate > 0 {
		cfg.Audio.SampleRate = *rate
	}
	if *duration > 0 {
		cfg.Recording.DurationSeconds = *duration
	}
	if *output != "" {
		cfg.Recording.Output = *output
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Starting capture",
		slog.String("serial_port", cfg.Serial.Port),
		slog.Int("baudrate", cfg.Serial.Baudrate),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Float64("duration_seconds", cfg.Recording.DurationSeconds),
		slog.String("output", cfg.Recording.Output),
	)

	// Ctrl-C ends the capture early; whatever was collected is still written
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Received signal, finishing capture", slog.String("signal", sig.String()))
		cancel()
	}()

	source, err := transport.OpenSerial(cfg.Serial.Port, cfg.Serial.Baudrate, logger)
	if err != nil {
		logger.Error("Failed to open serial port", slog.String("error", err.Error()))
		os.Exit(1)
	}

	recorder := session.NewRecorder(source, cfg.Audio.SampleRate, logger)

	samples, err := recorder.Record(ctx, cfg.Recording.GetDuration())
	if err != nil {
		logger.Error("Capture failed", slog.String("error", err.Error()))
		if len(samples) == 0 {
			os.Exit(1)
		}
		// A partial capture is still worth keeping
	}

	if err := audio.WriteWAV(cfg.Recording.Output, samples, cfg.Audio.SampleRate); err != nil {
		logger.Error("Failed to write WAV file", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Capture written",
		slog.String("output", cfg.Recording.Output),
		slog.Int("samples", len(samples)),
		slog.Float64("seconds", audio.Duration(len(samples), cfg.Audio.SampleRate)),
	)
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
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

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
