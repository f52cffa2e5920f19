// Package session composes the serial transport, frame decoder and playback
// regulator into the single-threaded polling loop that moves live audio from
// the device to the speakers, and the recording loop that captures it to
// memory instead.
package session
