package peaks

import (
	"fmt"
	"time"

	"github.com/willsarg/Sundai-LaundryAlert/internal/energy"
)

// Peak is one accepted amplitude transient: its time from clip start and
// its envelope magnitude.
type Peak struct {
	Time      time.Duration `json:"time"`
	Magnitude float64       `json:"magnitude"`
}

// PeakSet is an ordered sequence of accepted peaks. Peaks are strictly
// increasing in time and separated by at least the configured refractory
// interval.
type PeakSet []Peak

// Detector locates sharp amplitude transients in a clip's envelope.
// Detection is deterministic: identical samples always yield an identical
// PeakSet.
type Detector struct {
	envelopeResolution time.Duration
	thresholdFactor    float64
	minHeight          float64
	refractory         time.Duration
}

// NewDetector creates a transient peak detector. The acceptance threshold
// is dynamic, derived per clip as thresholdFactor times the clip's overall
// RMS so detection adapts to per-clip loudness; minHeight is an absolute
// envelope floor below which nothing is ever accepted.
func NewDetector(envelopeResolution time.Duration, thresholdFactor, minHeight float64, refractory time.Duration) (*Detector, error) {
	if envelopeResolution <= 0 {
		return nil, fmt.Errorf("envelope resolution must be positive, got %v", envelopeResolution)
	}

	if thresholdFactor <= 1 {
		return nil, fmt.Errorf("threshold factor must be greater than 1, got %f", thresholdFactor)
	}

	if minHeight <= 0 || minHeight >= 1 {
		return nil, fmt.Errorf("min height must be between 0 and 1, got %f", minHeight)
	}

	if refractory <= 0 {
		return nil, fmt.Errorf("refractory interval must be positive, got %v", refractory)
	}

	return &Detector{
		envelopeResolution: envelopeResolution,
		thresholdFactor:    thresholdFactor,
		minHeight:          minHeight,
		refractory:         refractory,
	}, nil
}

// Detect scans the clip's amplitude envelope for local maxima above the
// dynamic threshold. A candidate within the refractory interval of the
// previously accepted peak is absorbed into it: the stronger magnitude is
// kept and no second entry is produced, so one physical knock's ringing
// cannot be counted twice. Zero peaks is a valid output.
//
// The first and last envelope frames have no neighbor on one side and are
// never peak candidates, and a trailing partial frame shorter than the hop
// is dropped. A transient inside the final hop of the clip is therefore
// not detected.
func (d *Detector) Detect(samples []float64, sampleRate int) (PeakSet, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	envelope, hop := d.envelope(samples, sampleRate)
	if len(envelope) < 3 {
		return PeakSet{}, nil
	}

	threshold := d.thresholdFactor * energy.RMS(samples)
	if threshold < d.minHeight {
		threshold = d.minHeight
	}

	peaks := make(PeakSet, 0)

	for i := 1; i < len(envelope)-1; i++ {
		v := envelope[i]
		if v <= threshold {
			continue
		}

		// Local maximum; the >= on the right side keeps the first frame of
		// a flat-topped transient.
		if v <= envelope[i-1] || v < envelope[i+1] {
			continue
		}

		// Frame center as the peak timestamp.
		t := time.Duration((float64(i) + 0.5) * float64(hop) / float64(sampleRate) * float64(time.Second))

		if len(peaks) > 0 {
			last := &peaks[len(peaks)-1]
			if t-last.Time < d.refractory {
				// Duplicate trigger inside the refractory window.
				if v > last.Magnitude {
					last.Magnitude = v
				}
				continue
			}
		}

		peaks = append(peaks, Peak{Time: t, Magnitude: v})
	}

	return peaks, nil
}

// Refractory returns the configured refractory interval
func (d *Detector) Refractory() time.Duration {
	return d.refractory
}

// envelope computes the short-frame RMS trace of the samples and returns it
// with the hop size in samples.
func (d *Detector) envelope(samples []float64, sampleRate int) ([]float64, int) {
	hop := int(float64(sampleRate) * d.envelopeResolution.Seconds())
	if hop < 1 {
		hop = 1
	}

	numFrames := len(samples) / hop
	env := make([]float64, 0, numFrames)

	for f := 0; f < numFrames; f++ {
		start := f * hop
		end := start + hop
		if end > len(samples) {
			end = len(samples)
		}
		env = append(env, energy.RMS(samples[start:end]))
	}

	return env, hop
}
