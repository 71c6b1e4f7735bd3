package vad

import (
	"fmt"
	"math"
)

// Detector assigns each chunk a speech probability in [0, 1]. Implementations
// may carry internal state across chunks (recurrent models, noise floors);
// Reset clears it. Long silence degrades such state, so the segmenter resets
// the detector after extended idle periods.
type Detector interface {
	Score(chunk []float32) (float64, error)
	Reset()
}

// EnergyDetector is a lightweight RMS-energy detector with an adaptive noise
// floor. It tracks the quietest recent energy as the floor estimate and maps
// the floor-to-speech ratio onto [0, 1]. It is mono and rate-agnostic.
//
// It is a stand-in scorer: the hysteresis thresholds were tuned against a
// neural VAD, and a noisy room will push energy scores past them far more
// often.
type EnergyDetector struct {
	expectedSize int

	noiseFloor float64
	smoothed   float64
	primed     bool
}

const (
	initialNoiseFloor = 0.001
	floorDecay        = 0.999 // slow floor rise tracks gradual noise changes
	floorAttack       = 0.90  // fast floor drop locks onto quiet passages
	scoreSmoothing    = 0.7
	speechRatio       = 8.0 // energy this many times the floor scores 1.0
)

// NewEnergyDetector creates a detector expecting chunks of the given size.
func NewEnergyDetector(chunkSize int) *EnergyDetector {
	return &EnergyDetector{
		expectedSize: chunkSize,
		noiseFloor:   initialNoiseFloor,
	}
}

// Score returns the speech probability of one chunk.
func (d *EnergyDetector) Score(chunk []float32) (float64, error) {
	if len(chunk) != d.expectedSize {
		return 0, fmt.Errorf("chunk size %d, want %d", len(chunk), d.expectedSize)
	}

	var sum float64
	for _, s := range chunk {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(chunk)))

	// Track the noise floor: drop quickly toward quiet chunks, rise slowly.
	if rms < d.noiseFloor {
		d.noiseFloor = d.noiseFloor*floorAttack + rms*(1-floorAttack)
	} else {
		d.noiseFloor = d.noiseFloor/floorDecay + 1e-9
	}
	if d.noiseFloor < 1e-6 {
		d.noiseFloor = 1e-6
	}

	ratio := rms / d.noiseFloor
	raw := (ratio - 1) / (speechRatio - 1)
	if raw < 0 {
		raw = 0
	}
	if raw > 1 {
		raw = 1
	}

	if !d.primed {
		d.smoothed = raw
		d.primed = true
	} else {
		d.smoothed = d.smoothed*scoreSmoothing + raw*(1-scoreSmoothing)
	}
	return d.smoothed, nil
}

// Reset clears the noise floor and smoothing state.
func (d *EnergyDetector) Reset() {
	d.noiseFloor = initialNoiseFloor
	d.smoothed = 0
	d.primed = false
}
