package audio

import "time"

// Utterance is a contiguous speech region cut out of the chunk stream.
// Samples include the preroll captured before speech onset and the trailing
// silence that closed the segment.
type Utterance struct {
	Samples    []float32
	SampleRate int
	StartChunk int64
	EndChunk   int64
	StartTime  time.Time
	EndTime    time.Time
}

// Duration returns the audio length of the utterance.
func (u *Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	sec := float64(len(u.Samples)) / float64(u.SampleRate)
	return time.Duration(sec * float64(time.Second))
}

// Seconds returns the audio length in seconds.
func (u *Utterance) Seconds() float64 {
	if u.SampleRate <= 0 {
		return 0
	}
	return float64(len(u.Samples)) / float64(u.SampleRate)
}

// Int16ToFloat32 converts little-endian int16 PCM bytes to normalized samples.
// Odd trailing bytes are ignored.
func Int16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(pcm[2*i]) | int16(pcm[2*i+1])<<8
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Float32ToInt16 converts normalized samples to int16 PCM with clipping.
func Float32ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, v := range samples {
		switch {
		case v > 1.0:
			out[i] = 32767
		case v < -1.0:
			out[i] = -32768
		default:
			out[i] = int16(v * 32767.0)
		}
	}
	return out
}
