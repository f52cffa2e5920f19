package protocol

import (
	"encoding/binary"
	"testing"
)

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		expected    *Header
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid header",
			data: []byte{
				0x55, 0xAA, // Magic: 0xAA55 little-endian
				0x2A, 0x00, // Seq: 42
				0x78, 0x00, // Length: 120
			},
			expected: &Header{
				Magic:  FrameMagic,
				Seq:    42,
				Length: 120,
			},
			expectError: false,
		},
		{
			name: "sequence near wraparound",
			data: []byte{
				0x55, 0xAA,
				0xFF, 0xFF, // Seq: 65535
				0x02, 0x00, // Length: 2
			},
			expected: &Header{
				Magic:  FrameMagic,
				Seq:    65535,
				Length: 2,
			},
			expectError: false,
		},
		{
			name:        "header too short",
			data:        []byte{0x55, 0xAA, 0x00},
			expected:    nil,
			expectError: true,
			errorMsg:    "header too short",
		},
		{
			name:        "empty data",
			data:        []byte{},
			expected:    nil,
			expectError: true,
			errorMsg:    "header too short",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseHeader(tt.data)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				} else if *result != *tt.expected {
					t.Errorf("Expected header %+v, got %+v", tt.expected, result)
				}
			}
		})
	}
}

func TestChecksum(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{
			name:     "empty data",
			data:     []byte{},
			expected: 0,
		},
		{
			name:     "simple sum",
			data:     []byte{0x01, 0x02, 0x03},
			expected: 6,
		},
		{
			name:     "near uint16 limit without wrap",
			data:     bytesOf(0xFF, 256), // 256 * 255 = 65280
			expected: 65280,
		},
		{
			name:     "wraps mod 65536",
			data:     bytesOf(0xFF, 300), // 300 * 255 = 76500 -> 10964
			expected: uint16((300 * 255) % 65536),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.data); got != tt.expected {
				t.Errorf("Checksum = %d, expected %d", got, tt.expected)
			}
		})
	}
}

func TestEncodeFrame(t *testing.T) {
	samples := []int16{100, -200, 32767, -32768}
	frame := EncodeFrame(7, samples)

	expectedSize := HeaderSize + len(samples)*BytesPerSample + ChecksumSize
	if len(frame) != expectedSize {
		t.Fatalf("Expected frame size %d, got %d", expectedSize, len(frame))
	}

	header, err := ParseHeader(frame)
	if err != nil {
		t.Fatalf("ParseHeader failed: %v", err)
	}
	if header.Magic != FrameMagic {
		t.Errorf("Expected magic 0x%04X, got 0x%04X", FrameMagic, header.Magic)
	}
	if header.Seq != 7 {
		t.Errorf("Expected seq 7, got %d", header.Seq)
	}
	if int(header.Length) != len(samples)*BytesPerSample {
		t.Errorf("Expected length %d, got %d", len(samples)*BytesPerSample, header.Length)
	}
	if header.FrameSize() != expectedSize {
		t.Errorf("Expected FrameSize %d, got %d", expectedSize, header.FrameSize())
	}

	// Trailing checksum covers everything before it
	want := Checksum(frame[:len(frame)-ChecksumSize])
	got := binary.LittleEndian.Uint16(frame[len(frame)-ChecksumSize:])
	if got != want {
		t.Errorf("Expected checksum %d, got %d", want, got)
	}
}

func TestSampleConversionRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 12345, -12345, 32767, -32768}
	data := BytesFromSamples(samples)

	if len(data) != len(samples)*BytesPerSample {
		t.Fatalf("Expected %d bytes, got %d", len(samples)*BytesPerSample, len(data))
	}

	back := SamplesFromBytes(data)
	if len(back) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(back))
	}
	for i := range samples {
		if back[i] != samples[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, samples[i], back[i])
		}
	}
}

// bytesOf returns n copies of b
func bytesOf(b byte, n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = b
	}
	return data
}

// contains checks if a string contains a substring
func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(substr) == 0 ||
		(len(s) > len(substr) && containsHelper(s, substr)))
}

func containsHelper(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
