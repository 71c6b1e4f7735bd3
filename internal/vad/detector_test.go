package vad

import (
	"math"
	"testing"
)

func sineChunk(size int, amplitude float64) []float32 {
	chunk := make([]float32, size)
	for i := range chunk {
		chunk[i] = float32(amplitude * math.Sin(2*math.Pi*200*float64(i)/16000))
	}
	return chunk
}

func TestEnergyDetectorSeparatesSpeechFromSilence(t *testing.T) {
	d := NewEnergyDetector(512)

	// Establish a noise floor with near-silent chunks.
	quiet := sineChunk(512, 0.0005)
	for i := 0; i < 20; i++ {
		if _, err := d.Score(quiet); err != nil {
			t.Fatalf("Score() error: %v", err)
		}
	}
	quietScore, _ := d.Score(quiet)

	loud := sineChunk(512, 0.3)
	var loudScore float64
	for i := 0; i < 5; i++ {
		loudScore, _ = d.Score(loud)
	}

	if quietScore > 0.3 {
		t.Errorf("quiet score = %v, want < 0.3", quietScore)
	}
	if loudScore < 0.5 {
		t.Errorf("loud score = %v, want >= 0.5", loudScore)
	}
}

func TestEnergyDetectorScoreBounds(t *testing.T) {
	d := NewEnergyDetector(512)
	chunks := [][]float32{
		make([]float32, 512),
		sineChunk(512, 1.0),
		sineChunk(512, 0.00001),
	}
	for i := 0; i < 50; i++ {
		score, err := d.Score(chunks[i%len(chunks)])
		if err != nil {
			t.Fatalf("Score() error: %v", err)
		}
		if score < 0 || score > 1 {
			t.Fatalf("score %v out of [0, 1]", score)
		}
	}
}

func TestEnergyDetectorRejectsWrongChunkSize(t *testing.T) {
	d := NewEnergyDetector(512)
	if _, err := d.Score(make([]float32, 256)); err == nil {
		t.Error("expected error for undersized chunk")
	}
}

func TestEnergyDetectorReset(t *testing.T) {
	d := NewEnergyDetector(512)
	loud := sineChunk(512, 0.5)
	for i := 0; i < 10; i++ {
		d.Score(loud)
	}
	d.Reset()
	if d.noiseFloor != initialNoiseFloor || d.primed {
		t.Error("Reset did not restore initial state")
	}
}
