package audioio

import "time"

// AudioChunk is one buffer of interleaved PCM16 samples, tagged with the
// layout it was captured or decoded in.
type AudioChunk struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Bytes returns the chunk as little-endian PCM16 wire bytes.
func (c *AudioChunk) Bytes() []byte {
	return SamplesToBytes(c.Samples)
}

// FromBytes fills the chunk from little-endian PCM16 wire bytes.
func (c *AudioChunk) FromBytes(data []byte, sampleRate, channels int) {
	c.Samples = BytesToSamples(data)
	c.SampleRate = sampleRate
	c.Channels = channels
}

// Duration returns how long the chunk plays for.
func (c *AudioChunk) Duration() time.Duration {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	frames := len(c.Samples) / c.Channels
	return time.Duration(float64(frames) / float64(c.SampleRate) * float64(time.Second))
}
