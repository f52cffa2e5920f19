package playback

import (
	"log/slog"
	"time"

	"github.com/skypro1111/usb-audio-bridge/internal/protocol"
)

// Result is the outcome of a single playback submission
type Result int

const (
	// Played means the frame was accepted by the sink
	Played Result = iota
	// Dropped means the frame was discarded to protect the latency bound
	Dropped
)

// String returns a human-readable representation of the result
func (r Result) String() string {
	switch r {
	case Played:
		return "played"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Config contains playback regulation parameters
type Config struct {
	// SampleRate in Hz, fixed for the session
	SampleRate int

	// MaxBufferLatency is the queued-latency threshold above which the
	// session flushes the decoder backlog to realign with the live stream
	MaxBufferLatency time.Duration

	// SinkDepthFrames is the assumed total buffer depth of the output device
	// in frames. Output libraries do not expose their real depth, so this is
	// an explicit, configurable estimate rather than a hidden constant; the
	// latency estimate is only as good as this value.
	SinkDepthFrames int
}

// RegulatorStats holds playback accounting. Counters only increase; callers
// always receive a copy.
type RegulatorStats struct {
	FramesPlayed            uint64 `json:"frames_played"`
	FramesDroppedByPlayback uint64 `json:"frames_dropped_playback"`
}

// Regulator forwards decoded PCM frames to a sink with finite throughput,
// dropping whole frames when the sink saturates instead of queueing or
// blocking. It is owned and mutated by a single goroutine.
type Regulator struct {
	cfg    Config
	sink   Sink
	logger *slog.Logger
	stats  RegulatorStats
}

// NewRegulator creates a playback regulator in front of the given sink
func NewRegulator(cfg Config, sink Sink, logger *slog.Logger) *Regulator {
	return &Regulator{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
	}
}

// EstimateQueuedLatency derives the currently queued output latency from the
// sink's reported free capacity against the configured total depth. When the
// sink cannot report capacity it returns zero: playback must never be held
// back by an introspection failure.
func (r *Regulator) EstimateQueuedLatency() time.Duration {
	available := r.sink.AvailableFrames()
	if available < 0 {
		return 0
	}

	queued := r.cfg.SinkDepthFrames - available
	if queued < 0 {
		queued = 0
	}

	return time.Duration(queued) * time.Second / time.Duration(r.cfg.SampleRate)
}

// Submit makes a single best-effort attempt to hand the frame to the sink.
// A sink with less free capacity than twice the frame's sample count is
// treated as saturated and the frame is dropped without touching the device.
// Write failures are also drops, never fatal errors. Submit never sleeps.
func (r *Regulator) Submit(samples []int16) Result {
	available := r.sink.AvailableFrames()
	if available >= 0 && available < 2*len(samples) {
		r.stats.FramesDroppedByPlayback++
		return Dropped
	}

	if err := r.sink.Write(protocol.BytesFromSamples(samples)); err != nil {
		r.stats.FramesDroppedByPlayback++
		r.logger.Debug("Sink rejected frame",
			slog.Int("samples", len(samples)),
			slog.String("error", err.Error()),
		)
		return Dropped
	}

	r.stats.FramesPlayed++
	return Played
}

// Stats returns a snapshot of the playback accounting
func (r *Regulator) Stats() RegulatorStats {
	return r.stats
}
