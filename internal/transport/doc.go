// Package transport provides the non-blocking byte source abstraction and
// its USB CDC serial port implementation.
package transport
