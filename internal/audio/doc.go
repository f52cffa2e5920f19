// Package audio handles WAV encoding of captured PCM streams.
package audio
