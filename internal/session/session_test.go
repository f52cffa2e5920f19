package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/skypro1111/usb-audio-bridge/internal/playback"
	"github.com/skypro1111/usb-audio-bridge/internal/protocol"
)

// scriptedSource hands out queued chunks, then empty polls, then optionally
// a terminal error. While held, polls return nothing and the chunks sit
// undelivered, like bytes queued in the OS serial buffer.
type scriptedSource struct {
	mu      sync.Mutex
	chunks  [][]byte
	err     error
	held    bool
	flushed bool
	closed  bool
}

func (s *scriptedSource) PollAvailable() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.held {
		return nil, nil
	}
	if len(s.chunks) > 0 {
		chunk := s.chunks[0]
		s.chunks = s.chunks[1:]
		return chunk, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	return nil, nil
}

func (s *scriptedSource) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	s.flushed = true
	return nil
}

func (s *scriptedSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *scriptedSource) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held = false
}

func (s *scriptedSource) wasFlushed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushed
}

func (s *scriptedSource) wasClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// collectSink records written frames; safe for cross-goroutine inspection
type collectSink struct {
	mu        sync.Mutex
	available int
	writes    [][]byte
}

func (c *collectSink) AvailableFrames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.available
}

func (c *collectSink) Write(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data := make([]byte, len(p))
	copy(data, p)
	c.writes = append(c.writes, data)
	return nil
}

func (c *collectSink) Close() error { return nil }

func (c *collectSink) setAvailable(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.available = n
}

func (c *collectSink) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

func (c *collectSink) writtenFrame(i int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes[i]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegulator(sink playback.Sink) *playback.Regulator {
	return playback.NewRegulator(playback.Config{
		SampleRate:       48000,
		MaxBufferLatency: 5 * time.Millisecond,
		SinkDepthFrames:  240,
	}, sink, testLogger())
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("Condition not met before timeout")
}

func TestSessionPlaysDecodedFrames(t *testing.T) {
	frameA := []int16{1, 2, 3, 4}
	frameB := []int16{5, 6, 7, 8}

	src := &scriptedSource{chunks: [][]byte{
		protocol.EncodeFrame(0, frameA),
		protocol.EncodeFrame(1, frameB),
	}}
	sink := &collectSink{available: 10000}
	s := New(src, testRegulator(sink), 5*time.Millisecond, testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return sink.writeCount() == 2 })
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	got := protocol.SamplesFromBytes(sink.writtenFrame(0))
	for i, want := range frameA {
		if got[i] != want {
			t.Errorf("Frame A sample %d: expected %d, got %d", i, want, got[i])
		}
	}

	if !src.wasClosed() {
		t.Error("Transport not closed on session exit")
	}
}

func TestSessionRecoversAroundCorruptedFrame(t *testing.T) {
	bad := protocol.EncodeFrame(1, []int16{9, 9})
	bad[protocol.HeaderSize] ^= 0xFF

	src := &scriptedSource{chunks: [][]byte{
		protocol.EncodeFrame(0, []int16{1, 2}),
		bad,
		protocol.EncodeFrame(2, []int16{3, 4}),
	}}
	sink := &collectSink{available: 10000}
	s := New(src, testRegulator(sink), 5*time.Millisecond, testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return sink.writeCount() == 2 })
	cancel()
	<-done
}

func TestSessionTransportFailureIsFatal(t *testing.T) {
	src := &scriptedSource{
		chunks: [][]byte{protocol.EncodeFrame(0, []int16{1})},
		err:    errors.New("device unplugged"),
	}
	sink := &collectSink{available: 10000}
	s := New(src, testRegulator(sink), 5*time.Millisecond, testLogger(), nil)

	err := s.Run(context.Background())
	if err == nil {
		t.Fatal("Expected transport failure error")
	}
	if !src.wasClosed() {
		t.Error("Transport not closed after failure")
	}
}

func TestSessionCancelWithoutData(t *testing.T) {
	src := &scriptedSource{}
	sink := &collectSink{available: 10000}
	s := New(src, testRegulator(sink), 5*time.Millisecond, testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Expected clean shutdown, got %v", err)
	}
}

func TestSessionFlushesBacklogWhenLatencyExceeded(t *testing.T) {
	if testing.Short() {
		t.Skip("timing-dependent")
	}

	// Saturated sink: zero free capacity means the full modeled depth is
	// queued, 5ms at 48kHz, above the 2ms bound used here. A partial frame
	// parks in the backlog and must be gone after the next housekeeping tick.
	full := protocol.EncodeFrame(0, []int16{1, 2, 3})
	partial := full[:len(full)-2]

	src := &scriptedSource{chunks: [][]byte{partial}}
	sink := &collectSink{available: 0}
	s := New(src, testRegulator(sink), 2*time.Millisecond, testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitFor(t, 3*time.Second, func() bool {
		return s.StatsSnapshot().BacklogFlushes >= 1
	})

	snap := s.StatsSnapshot()
	if snap.BacklogBytes != 0 {
		t.Errorf("Expected empty backlog after flush, got %d bytes", snap.BacklogBytes)
	}

	cancel()
	<-done
}

func TestSessionFlushDiscardsTransportBufferedBytes(t *testing.T) {
	if testing.Short() {
		t.Skip("timing-dependent")
	}

	// Stale frames sit undelivered in the transport while the output is
	// saturated. The latency flush must discard them there too; flushing only
	// the decoder backlog would let them decode and play after the flush.
	src := &scriptedSource{
		held: true,
		chunks: [][]byte{
			protocol.EncodeFrame(0, []int16{1, 2, 3}),
			protocol.EncodeFrame(1, []int16{4, 5, 6}),
		},
	}
	sink := &collectSink{available: 0}
	s := New(src, testRegulator(sink), 2*time.Millisecond, testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitFor(t, 3*time.Second, func() bool { return src.wasFlushed() })

	// Nothing pre-flush may surface once the output drains and the transport
	// delivers again; a frame that survived the flush would play now
	sink.setAvailable(10000)
	src.release()
	time.Sleep(20 * time.Millisecond)

	if n := sink.writeCount(); n != 0 {
		t.Errorf("Expected no frames played after flush, got %d", n)
	}
	if s.StatsSnapshot().BacklogFlushes < 1 {
		t.Error("Expected at least one backlog flush")
	}

	cancel()
	<-done
}

func TestRecorderCapturesSamples(t *testing.T) {
	src := &scriptedSource{chunks: [][]byte{
		protocol.EncodeFrame(0, []int16{1, 2}),
		protocol.EncodeFrame(2, []int16{3, 4}), // seq 1 lost in transit
	}}
	r := NewRecorder(src, 48000, testLogger())

	samples, err := r.Record(context.Background(), 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	want := []int16{1, 2, 3, 4}
	if len(samples) != len(want) {
		t.Fatalf("Expected %d samples, got %d", len(want), len(samples))
	}
	for i := range want {
		if samples[i] != want[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, want[i], samples[i])
		}
	}

	stats := r.Stats()
	if stats.FramesReceived != 2 {
		t.Errorf("Expected 2 frames received, got %d", stats.FramesReceived)
	}
	if stats.FramesDroppedBySequenceGap != 1 {
		t.Errorf("Expected 1 frame lost in transit, got %d", stats.FramesDroppedBySequenceGap)
	}
	if !src.wasClosed() {
		t.Error("Transport not closed after recording")
	}
}

func TestRecorderInterrupted(t *testing.T) {
	src := &scriptedSource{chunks: [][]byte{
		protocol.EncodeFrame(0, []int16{7, 8}),
	}}
	r := NewRecorder(src, 48000, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	samples, err := r.Record(ctx, time.Hour)
	if err != nil {
		t.Fatalf("Interrupted recording returned error: %v", err)
	}
	if len(samples) != 2 {
		t.Errorf("Expected 2 samples from interrupted capture, got %d", len(samples))
	}
}
