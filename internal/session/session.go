package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skypro1111/usb-audio-bridge/internal/metrics"
	"github.com/skypro1111/usb-audio-bridge/internal/playback"
	"github.com/skypro1111/usb-audio-bridge/internal/protocol"
	"github.com/skypro1111/usb-audio-bridge/internal/transport"
)

const (
	// statsInterval is how often the session reports statistics and checks
	// the latency bound
	statsInterval = time.Second

	// pollBackoff is the idle sleep when the transport had nothing for us.
	// The serial read timeout provides most of the pacing on real hardware;
	// this only prevents busy-spinning against an instantly-returning source.
	pollBackoff = 500 * time.Microsecond
)

// Snapshot is an immutable view of the session's accumulated statistics,
// safe to hand to concurrent readers such as the HTTP API
type Snapshot struct {
	Decoder         protocol.Stats           `json:"decoder"`
	Playback        playback.RegulatorStats  `json:"playback"`
	BacklogBytes    int                      `json:"backlog_bytes"`
	QueuedLatencyMS float64                  `json:"queued_latency_ms"`
	BacklogFlushes  uint64                   `json:"backlog_flushes"`
	UptimeSeconds   float64                  `json:"uptime_seconds"`
}

// Session owns one decoder, one regulator and one byte source, and runs the
// cooperative polling loop between them. All mutable state is owned by the
// goroutine calling Run; outside readers only ever see snapshots.
type Session struct {
	source     transport.ByteSource
	decoder    *protocol.Decoder
	regulator  *playback.Regulator
	maxLatency time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics // nil when the metrics endpoint is disabled

	backlogFlushes uint64
	startTime      time.Time

	// Previously published counter values, for converting the decoder's
	// absolute counters into Prometheus increments
	lastDecoder  protocol.Stats
	lastPlayback playback.RegulatorStats

	mu       sync.RWMutex
	snapshot Snapshot
}

// New creates a playback session
func New(source transport.ByteSource, regulator *playback.Regulator,
	maxLatency time.Duration, logger *slog.Logger, m *metrics.Metrics) *Session {

	return &Session{
		source:     source,
		decoder:    protocol.NewDecoder(),
		regulator:  regulator,
		maxLatency: maxLatency,
		logger:     logger,
		metrics:    m,
	}
}

// Run executes the polling loop until the context is cancelled or the
// transport fails. Cancellation is the clean path and returns nil; a
// transport failure is the only fatal condition and is returned after
// resources are released. Either way the final statistics are logged.
func (s *Session) Run(ctx context.Context) error {
	s.startTime = time.Now()
	defer s.source.Close()

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	s.logger.Info("Playback session started",
		slog.Duration("max_latency", s.maxLatency),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Session stopping")
			s.logFinalStats()
			return nil
		case <-ticker.C:
			s.tick()
		default:
		}

		chunk, err := s.source.PollAvailable()
		if err != nil {
			s.logger.Error("Transport failure, terminating session",
				slog.String("error", err.Error()),
			)
			s.logFinalStats()
			return fmt.Errorf("transport failure: %w", err)
		}

		if len(chunk) == 0 {
			time.Sleep(pollBackoff)
			continue
		}

		s.decoder.Ingest(chunk)
		s.drainFrames()
	}
}

// drainFrames extracts and submits every frame currently decodable. A
// corrupted frame consumes backlog bytes without producing output, so the
// loop only stops once an attempt makes no progress at all.
func (s *Session) drainFrames() {
	for {
		before := s.decoder.BacklogSize()
		samples, ok := s.decoder.TryExtractFrame()
		if ok {
			s.regulator.Submit(samples)
			continue
		}
		if s.decoder.BacklogSize() == before {
			return
		}
	}
}

// tick runs the once-per-second housekeeping: statistics report, metrics
// publication, and the latency-bound check that flushes the backlog when the
// output pipeline has fallen behind real time
func (s *Session) tick() {
	latency := s.regulator.EstimateQueuedLatency()
	dec := s.decoder.Stats()
	play := s.regulator.Stats()

	s.logger.Info("Session statistics",
		slog.Uint64("frames_received", dec.FramesReceived),
		slog.Uint64("frames_lost_transit", dec.FramesDroppedBySequenceGap),
		slog.Uint64("frames_dropped_playback", play.FramesDroppedByPlayback),
		slog.Uint64("checksum_errors", dec.ChecksumErrors),
		slog.Uint64("sync_errors", dec.SyncErrors),
		slog.Duration("queued_latency", latency),
	)

	if latency > s.maxLatency {
		// Falling behind: throw away stale undecoded bytes so decoding
		// realigns with the live stream. Degradation, not an error. The
		// transport is flushed too: after a stall most of the stale audio
		// sits in the OS serial buffer, not in the decoder backlog.
		s.logger.Warn("Queued latency exceeds bound, flushing backlog",
			slog.Duration("queued_latency", latency),
			slog.Duration("max_latency", s.maxLatency),
			slog.Int("backlog_bytes", s.decoder.BacklogSize()),
		)
		s.decoder.FlushBacklog()
		if err := s.source.Flush(); err != nil {
			s.logger.Warn("Failed to flush transport buffer",
				slog.String("error", err.Error()),
			)
		}
		s.backlogFlushes++
		if s.metrics != nil {
			s.metrics.RecordBacklogFlush()
		}
	}

	s.publishMetrics(dec, play, latency)
	s.publishSnapshot(dec, play, latency)
}

// publishMetrics converts absolute counters to Prometheus increments
func (s *Session) publishMetrics(dec protocol.Stats, play playback.RegulatorStats, latency time.Duration) {
	if s.metrics == nil {
		return
	}

	s.metrics.AddBytesReceived(dec.BytesReceived - s.lastDecoder.BytesReceived)
	s.metrics.AddFramesReceived(dec.FramesReceived - s.lastDecoder.FramesReceived)
	s.metrics.AddSyncErrors(dec.SyncErrors - s.lastDecoder.SyncErrors)
	s.metrics.AddChecksumErrors(dec.ChecksumErrors - s.lastDecoder.ChecksumErrors)
	s.metrics.AddFramesLostInTransit(dec.FramesDroppedBySequenceGap - s.lastDecoder.FramesDroppedBySequenceGap)
	s.metrics.AddFramesPlayed(play.FramesPlayed - s.lastPlayback.FramesPlayed)
	s.metrics.AddFramesDroppedPlayback(play.FramesDroppedByPlayback - s.lastPlayback.FramesDroppedByPlayback)
	s.metrics.SetBacklogBytes(s.decoder.BacklogSize())
	s.metrics.SetQueuedLatencySeconds(latency.Seconds())

	s.lastDecoder = dec
	s.lastPlayback = play
}

// publishSnapshot refreshes the view handed to concurrent readers
func (s *Session) publishSnapshot(dec protocol.Stats, play playback.RegulatorStats, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot = Snapshot{
		Decoder:         dec,
		Playback:        play,
		BacklogBytes:    s.decoder.BacklogSize(),
		QueuedLatencyMS: float64(latency) / float64(time.Millisecond),
		BacklogFlushes:  s.backlogFlushes,
		UptimeSeconds:   time.Since(s.startTime).Seconds(),
	}
}

// StatsSnapshot returns the most recently published statistics view
func (s *Session) StatsSnapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// logFinalStats emits the end-of-session report
func (s *Session) logFinalStats() {
	dec := s.decoder.Stats()
	play := s.regulator.Stats()

	totalDropped := dec.FramesDroppedBySequenceGap + play.FramesDroppedByPlayback
	successRate := 0.0
	if dec.FramesReceived+totalDropped > 0 {
		successRate = 100.0 * float64(dec.FramesReceived) / float64(dec.FramesReceived+totalDropped)
	}

	s.logger.Info("Final session statistics",
		slog.Uint64("frames_received", dec.FramesReceived),
		slog.Uint64("frames_lost_transit", dec.FramesDroppedBySequenceGap),
		slog.Uint64("frames_played", play.FramesPlayed),
		slog.Uint64("frames_dropped_playback", play.FramesDroppedByPlayback),
		slog.Uint64("checksum_errors", dec.ChecksumErrors),
		slog.Uint64("sync_errors", dec.SyncErrors),
		slog.Uint64("bytes_received", dec.BytesReceived),
		slog.Uint64("backlog_flushes", s.backlogFlushes),
		slog.String("success_rate", fmt.Sprintf("%.2f%%", successRate)),
	)
}
