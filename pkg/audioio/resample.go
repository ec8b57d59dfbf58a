package audioio

import "math"

// Resample converts PCM16 audio between sample rates by linear
// interpolation. Every hop in this system is between the fixed rates the
// providers and devices speak (16k, 24k, 48k), and speech tolerates the
// interpolation loss well, so nothing fancier is needed. Samples must be
// mono; interpolating across interleaved channels would smear them.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}

	step := float64(fromRate) / float64(toRate)
	outLen := int(float64(len(samples)) / step)
	if outLen == 0 {
		return []int16{}
	}

	out := make([]int16, outLen)
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(idx)
		a := float64(samples[idx])
		b := float64(samples[idx+1])
		out[i] = int16(a + frac*(b-a))
	}
	return out
}

// BytesToSamples reads little-endian PCM16 bytes as int16 samples. A
// trailing odd byte is dropped.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// SamplesToBytes writes int16 samples as little-endian PCM16 bytes.
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}

// StereoToMono mixes interleaved stereo down to mono by averaging each
// frame's channels.
func StereoToMono(samples []int16) []int16 {
	mono := make([]int16, len(samples)/2)
	for i := range mono {
		mono[i] = int16((int32(samples[i*2]) + int32(samples[i*2+1])) / 2)
	}
	return mono
}

// MonoToStereo duplicates each mono sample into both channels of an
// interleaved stereo buffer.
func MonoToStereo(samples []int16) []int16 {
	stereo := make([]int16, len(samples)*2)
	for i, s := range samples {
		stereo[i*2] = s
		stereo[i*2+1] = s
	}
	return stereo
}

// CalculateRMS returns the root mean square level of samples scaled to
// [0, 1], where 1 is a full-scale square wave. Level meters convert it to
// dBFS with 20*log10.
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum/float64(len(samples))) / 32768
}
