package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/skypro1111/usb-audio-bridge/internal/protocol"
	"github.com/skypro1111/usb-audio-bridge/internal/transport"
)

// Recorder captures decoded audio to memory instead of playing it. No
// latency regulation applies: recording wants every frame it can get, and
// gaps simply shorten the capture.
type Recorder struct {
	source     transport.ByteSource
	decoder    *protocol.Decoder
	sampleRate int
	logger     *slog.Logger
}

// NewRecorder creates a recording session
func NewRecorder(source transport.ByteSource, sampleRate int, logger *slog.Logger) *Recorder {
	return &Recorder{
		source:     source,
		decoder:    protocol.NewDecoder(),
		sampleRate: sampleRate,
		logger:     logger,
	}
}

// Record captures audio for the given duration, or until the context is
// cancelled. An interrupted capture returns the samples collected so far,
// not an error; only transport failure is fatal.
func (r *Recorder) Record(ctx context.Context, duration time.Duration) ([]int16, error) {
	defer r.source.Close()

	deadline := time.Now().Add(duration)
	progress := time.NewTicker(statsInterval)
	defer progress.Stop()

	r.logger.Info("Recording started",
		slog.Duration("duration", duration),
		slog.Int("sample_rate", r.sampleRate),
	)

	var samples []int16

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			r.logger.Info("Recording interrupted",
				slog.Int("samples_captured", len(samples)),
			)
			r.logFinal(samples)
			return samples, nil
		case <-progress.C:
			r.logger.Info("Recording progress",
				slog.Float64("seconds_captured", float64(len(samples))/float64(r.sampleRate)),
				slog.Uint64("frames_received", r.decoder.Stats().FramesReceived),
			)
		default:
		}

		chunk, err := r.source.PollAvailable()
		if err != nil {
			r.logFinal(samples)
			return samples, fmt.Errorf("transport failure: %w", err)
		}

		if len(chunk) == 0 {
			time.Sleep(pollBackoff)
			continue
		}

		r.decoder.Ingest(chunk)
		for {
			before := r.decoder.BacklogSize()
			frame, ok := r.decoder.TryExtractFrame()
			if ok {
				samples = append(samples, frame...)
				continue
			}
			if r.decoder.BacklogSize() == before {
				break
			}
		}
	}

	r.logFinal(samples)
	return samples, nil
}

// Stats returns a snapshot of the decoder statistics
func (r *Recorder) Stats() protocol.Stats {
	return r.decoder.Stats()
}

func (r *Recorder) logFinal(samples []int16) {
	stats := r.decoder.Stats()
	r.logger.Info("Recording finished",
		slog.Int("samples_captured", len(samples)),
		slog.Float64("seconds_captured", float64(len(samples))/float64(r.sampleRate)),
		slog.Uint64("frames_received", stats.FramesReceived),
		slog.Uint64("frames_lost_transit", stats.FramesDroppedBySequenceGap),
		slog.Uint64("checksum_errors", stats.ChecksumErrors),
		slog.Uint64("sync_errors", stats.SyncErrors),
	)
}
