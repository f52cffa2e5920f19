package protocol

import (
	"encoding/binary"
	"fmt"
)

// Frame format constants for the USB CDC audio stream
const (
	// FrameMagic marks the start of every frame (0xAA55, little-endian on the wire)
	FrameMagic = 0xAA55

	// Frame structure sizes
	HeaderSize   = 6 // magic(2) + seq(2) + length(2), all uint16 little-endian
	ChecksumSize = 2 // unsigned 16-bit wraparound byte sum
	MinFrameSize = HeaderSize + ChecksumSize

	// BytesPerSample is fixed by the protocol: signed 16-bit mono PCM
	BytesPerSample = 2
)

// Header represents the 6-byte frame header
// Layout: [Magic:2][Seq:2][Length:2], little-endian
type Header struct {
	Magic  uint16 // Must equal FrameMagic
	Seq    uint16 // Frame sequence number, wraps mod 65536
	Length uint16 // Payload length in bytes (must be even)
}

// ParseHeader parses the 6-byte frame header
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("header too short: expected %d bytes, got %d", HeaderSize, len(data))
	}

	header := &Header{
		Magic:  binary.LittleEndian.Uint16(data[0:2]),
		Seq:    binary.LittleEndian.Uint16(data[2:4]),
		Length: binary.LittleEndian.Uint16(data[4:6]),
	}

	return header, nil
}

// FrameSize returns the total on-wire size of the frame this header describes
func (h *Header) FrameSize() int {
	return HeaderSize + int(h.Length) + ChecksumSize
}

// String returns a human-readable representation of the header
func (h *Header) String() string {
	return fmt.Sprintf("Header{Magic:0x%04X, Seq:%d, Length:%d}", h.Magic, h.Seq, h.Length)
}

// Checksum computes the unsigned 16-bit wraparound sum of all bytes
func Checksum(data []byte) uint16 {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	return sum
}

// EncodeFrame builds a complete wire frame for the given sequence number and
// PCM samples. Used by tests and loopback tooling; the device side normally
// produces these frames.
func EncodeFrame(seq uint16, samples []int16) []byte {
	payloadLen := len(samples) * BytesPerSample
	frame := make([]byte, HeaderSize+payloadLen+ChecksumSize)

	binary.LittleEndian.PutUint16(frame[0:2], FrameMagic)
	binary.LittleEndian.PutUint16(frame[2:4], seq)
	binary.LittleEndian.PutUint16(frame[4:6], uint16(payloadLen))

	for i, s := range samples {
		binary.LittleEndian.PutUint16(frame[HeaderSize+i*2:], uint16(s))
	}

	checksum := Checksum(frame[:HeaderSize+payloadLen])
	binary.LittleEndian.PutUint16(frame[HeaderSize+payloadLen:], checksum)

	return frame
}

// SamplesFromBytes converts little-endian PCM-16 bytes to samples.
// The input length must be even.
func SamplesFromBytes(data []byte) []int16 {
	samples := make([]int16, len(data)/BytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// BytesFromSamples converts PCM-16 samples to little-endian bytes
func BytesFromSamples(samples []int16) []byte {
	data := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data
}
