package protocol

import "encoding/binary"

// Stats holds the decoder's protocol statistics. Counters only increase for
// the lifetime of a session; callers always receive a copy.
type Stats struct {
	FramesReceived             uint64 `json:"frames_received"`
	FramesDroppedBySequenceGap uint64 `json:"frames_dropped_sequence_gap"`
	ChecksumErrors             uint64 `json:"checksum_errors"`
	SyncErrors                 uint64 `json:"sync_errors"`
	BytesReceived              uint64 `json:"bytes_received"`
}

// Decoder is a stateful byte-stream parser that recovers validated audio
// frames from an unreliable serial transport. It accumulates raw bytes in a
// backlog, resynchronizes on the frame magic after noise or corruption, and
// tracks protocol statistics.
//
// A Decoder is owned by a single goroutine; it performs no locking and never
// blocks.
type Decoder struct {
	backlog []byte

	// Sequence tracking for gap detection. haveSeq is false until the first
	// frame passes checksum, and again after a backlog flush.
	lastSeq uint16
	haveSeq bool

	stats Stats
}

// NewDecoder creates a frame decoder with an empty backlog
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Ingest appends raw transport bytes to the backlog. No validation happens
// here; zero-length input is a no-op.
func (d *Decoder) Ingest(p []byte) {
	if len(p) == 0 {
		return
	}
	d.backlog = append(d.backlog, p...)
	d.stats.BytesReceived += uint64(len(p))
}

// TryExtractFrame attempts exactly one frame extraction. It returns the
// decoded PCM samples and true when a complete, valid frame was available.
//
// A false return does not always mean "wait for more bytes": a frame that
// fails its checksum is consumed and dropped silently, and the next frame may
// already be buffered. Callers drain the backlog by re-invoking until no
// further bytes are consumed (see BacklogSize).
func (d *Decoder) TryExtractFrame() ([]int16, bool) {
	if !d.findSync() {
		return nil, false
	}

	// Wait for the complete header, then the complete frame. Nothing is
	// consumed while waiting.
	if len(d.backlog) < HeaderSize {
		return nil, false
	}

	header, err := ParseHeader(d.backlog[:HeaderSize])
	if err != nil {
		return nil, false
	}

	frameSize := header.FrameSize()
	if len(d.backlog) < frameSize {
		return nil, false
	}

	frame := d.backlog[:frameSize]
	d.backlog = d.backlog[frameSize:]

	// A payload that is not a whole number of 16-bit samples cannot have come
	// from the device; treat it like any other corrupted frame.
	if header.Length%BytesPerSample != 0 {
		d.stats.ChecksumErrors++
		return nil, false
	}

	received := binary.LittleEndian.Uint16(frame[frameSize-ChecksumSize:])
	if Checksum(frame[:frameSize-ChecksumSize]) != received {
		// Corrupted frame: dropped without advancing sequence tracking, so a
		// single bad frame is not also counted as a transit gap.
		d.stats.ChecksumErrors++
		return nil, false
	}

	if d.haveSeq {
		expected := d.lastSeq + 1 // wraps mod 65536
		if header.Seq != expected {
			// Counts frames lost in transit, wraparound-safe
			d.stats.FramesDroppedBySequenceGap += uint64(header.Seq - expected)
		}
	}
	d.lastSeq = header.Seq
	d.haveSeq = true
	d.stats.FramesReceived++

	return SamplesFromBytes(frame[HeaderSize : frameSize-ChecksumSize]), true
}

// findSync discards backlog bytes until the frame magic is at the front.
// Every discarded byte counts as a sync error. When the magic is not found,
// at most one byte is retained since it could be the first half of a magic
// split across reads.
func (d *Decoder) findSync() bool {
	for len(d.backlog) >= 2 {
		if binary.LittleEndian.Uint16(d.backlog[:2]) == FrameMagic {
			return true
		}
		d.backlog = d.backlog[1:]
		d.stats.SyncErrors++
	}
	return false
}

// FlushBacklog discards all buffered bytes and resets sequence tracking.
// The bytes thrown away make the next frame's predecessor unknown, so the
// first frame accepted after a flush never reports a spurious gap. Counters
// are untouched.
func (d *Decoder) FlushBacklog() {
	d.backlog = d.backlog[:0]
	d.haveSeq = false
}

// BacklogSize returns the number of buffered, unparsed bytes
func (d *Decoder) BacklogSize() int {
	return len(d.backlog)
}

// Stats returns a snapshot of the protocol statistics
func (d *Decoder) Stats() Stats {
	return d.stats
}
