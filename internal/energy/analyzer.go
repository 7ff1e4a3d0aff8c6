package energy

import (
	"fmt"
	"math"
	"time"
)

// Analyzer classifies clip loudness against a configured noise floor.
// It carries no state between clips; Analyze is a pure function of the
// samples and the configuration.
type Analyzer struct {
	frameDuration time.Duration
	noiseFloor    float64
}

// Profile holds the per-frame RMS trace of one clip together with the
// derived sound decision. HasSound is always recomputed from the trace and
// the configured threshold, never set independently.
type Profile struct {
	FrameRMS      []float64     `json:"frame_rms"`
	FrameDuration time.Duration `json:"frame_duration"`
	Aggregate     float64       `json:"aggregate_rms"`
	HasSound      bool          `json:"has_sound"`
}

// NewAnalyzer creates an energy analyzer. The noise floor is a normalized
// RMS amplitude in (0, 1), tunable per deployment since microphone gain
// varies by hardware.
func NewAnalyzer(frameDuration time.Duration, noiseFloor float64) (*Analyzer, error) {
	if frameDuration <= 0 {
		return nil, fmt.Errorf("frame duration must be positive, got %v", frameDuration)
	}

	if noiseFloor <= 0 || noiseFloor >= 1 {
		return nil, fmt.Errorf("noise floor must be between 0 and 1, got %f", noiseFloor)
	}

	return &Analyzer{
		frameDuration: frameDuration,
		noiseFloor:    noiseFloor,
	}, nil
}

// Analyze partitions the clip into fixed-duration frames, computes RMS
// amplitude per frame, and derives the sound decision. The aggregate
// reduction is the maximum frame RMS: a short knock train in an otherwise
// quiet clip still registers as sound. Silent and near-silent clips are
// valid inputs, never errors.
//
// A trailing partial frame shorter than the frame size is dropped, except
// for clips shorter than one frame, which are analyzed as a single partial
// frame.
func (a *Analyzer) Analyze(samples []float64, sampleRate int) (*Profile, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	frameSize := int(float64(sampleRate) * a.frameDuration.Seconds())
	if frameSize < 1 {
		frameSize = 1
	}

	numFrames := len(samples) / frameSize
	if numFrames == 0 && len(samples) > 0 {
		numFrames = 1 // Short clip: one partial frame
	}

	frameRMS := make([]float64, 0, numFrames)
	aggregate := 0.0

	for f := 0; f < numFrames; f++ {
		start := f * frameSize
		end := start + frameSize
		if end > len(samples) {
			end = len(samples)
		}

		rms := RMS(samples[start:end])
		frameRMS = append(frameRMS, rms)
		if rms > aggregate {
			aggregate = rms
		}
	}

	return &Profile{
		FrameRMS:      frameRMS,
		FrameDuration: a.frameDuration,
		Aggregate:     aggregate,
		HasSound:      aggregate > a.noiseFloor,
	}, nil
}

// NoiseFloor returns the configured noise floor threshold
func (a *Analyzer) NoiseFloor() float64 {
	return a.noiseFloor
}

// FrameDuration returns the configured frame duration
func (a *Analyzer) FrameDuration() time.Duration {
	return a.frameDuration
}

// RMS computes the root-mean-square amplitude of a sample window using
// plain left-to-right summation. An empty window is 0.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += s * s
	}

	return math.Sqrt(sum / float64(len(samples)))
}
