// Package protocol implements the USB CDC audio frame format and decoder.
// It handles frame synchronization against a noisy byte stream, checksum
// verification, sequence gap accounting, and PCM-16 payload extraction.
package protocol
