package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/skypro1111/usb-audio-bridge/internal/protocol"
)

// errSinkSaturated is returned by the pending buffer when a write would
// exceed its capacity
var errSinkSaturated = errors.New("output buffer saturated")

// OtoSink renders PCM-16 mono audio through the oto library. Decoded frames
// are staged in a small pending buffer that the persistent oto player drains;
// when the stream underruns the device simply plays silence, and when the
// pending buffer fills, writes fail instead of blocking.
type OtoSink struct {
	otoCtx      *oto.Context
	player      *oto.Player
	pending     *pendingBuffer
	depthFrames int
	logger      *slog.Logger
}

// NewOtoSink opens the default output device at the given rate. depthFrames
// is the modeled total queue depth used for capacity reporting; the pending
// buffer is sized at twice that so the regulator's saturation check fires
// before hard write failures do.
func NewOtoSink(sampleRate, depthFrames int, logger *slog.Logger) (*OtoSink, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   time.Duration(depthFrames) * time.Second / time.Duration(sampleRate),
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	pending := &pendingBuffer{
		max: 2 * depthFrames * protocol.BytesPerSample,
	}

	player := ctx.NewPlayer(pending)
	player.SetBufferSize(depthFrames * protocol.BytesPerSample)
	player.Play()

	logger.Info("Audio output initialized",
		slog.Int("sample_rate", sampleRate),
		slog.Int("depth_frames", depthFrames),
	)

	return &OtoSink{
		otoCtx:      ctx,
		player:      player,
		pending:     pending,
		depthFrames: depthFrames,
		logger:      logger,
	}, nil
}

// AvailableFrames reports free capacity against the modeled depth, counting
// both the staged bytes and whatever the oto player has read but not yet
// rendered
func (s *OtoSink) AvailableFrames() int {
	queuedBytes := s.pending.queued() + s.player.BufferedSize()
	available := s.depthFrames - queuedBytes/protocol.BytesPerSample
	if available < 0 {
		available = 0
	}
	return available
}

// Write stages PCM bytes for the player. It never blocks: a full pending
// buffer returns an error and the caller drops the frame.
func (s *OtoSink) Write(p []byte) error {
	return s.pending.push(p)
}

// Close stops playback and releases the output device
func (s *OtoSink) Close() error {
	if err := s.player.Close(); err != nil {
		return fmt.Errorf("failed to close player: %w", err)
	}
	return s.otoCtx.Suspend()
}

// pendingBuffer is a mutex-guarded byte queue between the session goroutine
// and the oto player's reader goroutine. Read returns whatever is staged,
// possibly nothing; oto retries on short reads and renders silence while the
// queue is empty.
type pendingBuffer struct {
	mu   sync.Mutex
	data []byte
	max  int
}

// Read returns (0, nil) on an empty queue, which io.Reader tells
// implementations to avoid. oto's player is the only reader and treats a zero
// read as "no data yet", retrying on its own cadence; a generic io.Reader
// consumer could spin on this.
func (b *pendingBuffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := copy(p, b.data)
	remaining := copy(b.data, b.data[n:])
	b.data = b.data[:remaining]
	return n, nil
}

func (b *pendingBuffer) push(p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.data)+len(p) > b.max {
		return errSinkSaturated
	}
	b.data = append(b.data, p...)
	return nil
}

func (b *pendingBuffer) queued() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}
