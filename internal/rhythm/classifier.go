package rhythm

import (
	"fmt"
	"math"
	"time"

	"github.com/willsarg/Sundai-LaundryAlert/internal/peaks"
)

// Verdict is the outcome of rhythm classification for one clip.
// Confidence scores the regularity and coverage of the peak train, not the
// IsKnocking decision itself: a perfectly regular train outside the
// knock-rate band reports IsKnocking false with a high Confidence.
// Confidence is only meaningful when at least the configured minimum peak
// count was observed; below that floor it is forced to zero.
type Verdict struct {
	IsKnocking bool    `json:"is_knocking"`
	Confidence float64 `json:"confidence"`
}

// Classifier decides whether a set of peak timestamps forms a periodic
// knocking pattern. It is a pure function of the PeakSet and its
// configuration; no state is carried between clips.
type Classifier struct {
	minPeaks      int
	minInterval   time.Duration
	maxInterval   time.Duration
	maxIntervalCV float64
}

// NewClassifier creates a rhythm classifier. The [minInterval, maxInterval]
// band bounds plausible knock spacing and maxIntervalCV caps the relative
// variance of the inter-peak intervals.
func NewClassifier(minPeaks int, minInterval, maxInterval time.Duration, maxIntervalCV float64) (*Classifier, error) {
	if minPeaks < 2 {
		return nil, fmt.Errorf("min peaks must be at least 2, got %d", minPeaks)
	}

	if minInterval <= 0 {
		return nil, fmt.Errorf("min interval must be positive, got %v", minInterval)
	}

	if maxInterval <= minInterval {
		return nil, fmt.Errorf("max interval (%v) must be greater than min interval (%v)", maxInterval, minInterval)
	}

	if maxIntervalCV <= 0 || maxIntervalCV >= 1 {
		return nil, fmt.Errorf("max interval CV must be between 0 and 1, got %f", maxIntervalCV)
	}

	return &Classifier{
		minPeaks:      minPeaks,
		minInterval:   minInterval,
		maxInterval:   maxInterval,
		maxIntervalCV: maxIntervalCV,
	}, nil
}

// Classify computes the inter-peak intervals and scores their regularity.
// Knocking requires the minimum peak count, every interval inside the
// knock-rate band, and a coefficient of variation below the ceiling.
// Exactly the minimum peak count is scored normally, so the boundary is
// smooth rather than a step.
func (c *Classifier) Classify(set peaks.PeakSet, clipDuration time.Duration) Verdict {
	if len(set) < c.minPeaks {
		return Verdict{IsKnocking: false, Confidence: 0}
	}

	intervals := make([]float64, len(set)-1)
	inBand := true
	for i := 1; i < len(set); i++ {
		iv := set[i].Time - set[i-1].Time
		intervals[i-1] = iv.Seconds()
		if iv < c.minInterval || iv > c.maxInterval {
			inBand = false
		}
	}

	cv := coefficientOfVariation(intervals)

	// Regularity: 1 at perfectly even spacing, 0 at (or beyond) the
	// configured variance ceiling.
	regularity := 1 - cv/c.maxIntervalCV
	if regularity < 0 {
		regularity = 0
	}

	// Coverage: observed peak count against the count a knock train at the
	// band's midpoint interval would produce over the clip.
	coverage := 1.0
	midInterval := (c.minInterval.Seconds() + c.maxInterval.Seconds()) / 2
	if clipDuration > 0 && midInterval > 0 {
		expected := clipDuration.Seconds() / midInterval
		if expected > 1 {
			coverage = float64(len(set)) / expected
			if coverage > 1 {
				coverage = 1
			}
		}
	}

	confidence := clamp01(regularity * coverage)

	return Verdict{
		IsKnocking: inBand && cv <= c.maxIntervalCV,
		Confidence: confidence,
	}
}

// MinPeaks returns the configured minimum peak count
func (c *Classifier) MinPeaks() int {
	return c.minPeaks
}

// coefficientOfVariation is the standard deviation of the values divided by
// their mean. A zero or negative mean yields 0.
func coefficientOfVariation(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	if mean <= 0 {
		return 0
	}

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))

	return math.Sqrt(variance) / mean
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
