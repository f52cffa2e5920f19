package playback

// Sink is the non-blocking sample sink the regulator writes to. Both methods
// must return promptly; a sink that cannot honor that contract does not
// belong behind this interface.
type Sink interface {
	// AvailableFrames reports how many more 16-bit mono frames the sink can
	// accept right now. A negative value means the sink cannot report
	// capacity; the regulator then fails open and attempts the write.
	AvailableFrames() int

	// Write queues little-endian PCM-16 bytes for output. It never blocks;
	// a saturated or broken device returns an error and the data is lost.
	Write(p []byte) error

	// Close releases the output device
	Close() error
}
