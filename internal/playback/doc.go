// Package playback bounds the audio output pipeline's queued latency.
// It decides per decoded frame whether to forward it to the output device or
// drop it, and provides the oto-backed output device implementation.
package playback
