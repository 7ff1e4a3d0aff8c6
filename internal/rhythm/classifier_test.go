package rhythm

import (
	"testing"
	"time"

	"github.com/willsarg/Sundai-LaundryAlert/internal/peaks"
)

// peakSetAt builds a PeakSet from offsets expressed in milliseconds
func peakSetAt(offsetsMs ...int) peaks.PeakSet {
	set := make(peaks.PeakSet, len(offsetsMs))
	for i, ms := range offsetsMs {
		set[i] = peaks.Peak{
			Time:      time.Duration(ms) * time.Millisecond,
			Magnitude: 0.8,
		}
	}
	return set
}

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()

	classifier, err := NewClassifier(3, 200*time.Millisecond, 2*time.Second, 0.35)
	if err != nil {
		t.Fatalf("Failed to create classifier: %v", err)
	}
	return classifier
}

func TestNewClassifierValidation(t *testing.T) {
	tests := []struct {
		name        string
		minPeaks    int
		minInterval time.Duration
		maxInterval time.Duration
		maxCV       float64
		expectError bool
	}{
		{"valid parameters", 3, 200 * time.Millisecond, 2 * time.Second, 0.35, false},
		{"min peaks below two", 1, 200 * time.Millisecond, 2 * time.Second, 0.35, true},
		{"zero min interval", 3, 0, 2 * time.Second, 0.35, true},
		{"inverted band", 3, 2 * time.Second, 200 * time.Millisecond, 0.35, true},
		{"cv ceiling at one", 3, 200 * time.Millisecond, 2 * time.Second, 1.0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClassifier(tt.minPeaks, tt.minInterval, tt.maxInterval, tt.maxCV)
			if tt.expectError && err == nil {
				t.Errorf("Expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestClassifyBelowMinimumPeaks(t *testing.T) {
	classifier := newTestClassifier(t)

	tests := []struct {
		name string
		set  peaks.PeakSet
	}{
		{"empty set", peakSetAt()},
		{"single peak", peakSetAt(500)},
		{"two peaks", peakSetAt(500, 1000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := classifier.Classify(tt.set, 3*time.Second)

			if verdict.IsKnocking {
				t.Errorf("Expected IsKnocking=false below the minimum peak count")
			}

			if verdict.Confidence != 0 {
				t.Errorf("Expected zero confidence below the minimum peak count, got %f", verdict.Confidence)
			}
		})
	}
}

func TestClassifyEvenKnockTrain(t *testing.T) {
	classifier := newTestClassifier(t)

	// Five knocks at perfectly even 500ms spacing over a 3s clip
	set := peakSetAt(500, 1000, 1500, 2000, 2500)

	verdict := classifier.Classify(set, 3*time.Second)

	if !verdict.IsKnocking {
		t.Errorf("Expected IsKnocking=true for an even knock train")
	}

	if verdict.Confidence <= 0.8 {
		t.Errorf("Expected high confidence for perfectly even spacing, got %f", verdict.Confidence)
	}
}

func TestClassifyIrregularPeaks(t *testing.T) {
	classifier := newTestClassifier(t)

	// Intervals all inside the band but wildly uneven: 300ms, 1400ms,
	// 250ms, 1800ms
	set := peakSetAt(200, 500, 1900, 2150, 3950)

	verdict := classifier.Classify(set, 4*time.Second)

	if verdict.IsKnocking {
		t.Errorf("Expected IsKnocking=false for irregular spacing")
	}

	if verdict.Confidence > 0.2 {
		t.Errorf("Expected low confidence for irregular spacing, got %f", verdict.Confidence)
	}
}

func TestClassifyIntervalsOutsideBand(t *testing.T) {
	classifier := newTestClassifier(t)

	tests := []struct {
		name string
		set  peaks.PeakSet
	}{
		// 100ms intervals, below the band
		{"too fast", peakSetAt(100, 200, 300, 400)},
		// 2.5s intervals, above the band
		{"too slow", peakSetAt(0, 2500, 5000, 7500)},
		// last gap is 3s
		{"one outlier", peakSetAt(500, 1000, 1500, 4500)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := classifier.Classify(tt.set, 8*time.Second)

			if verdict.IsKnocking {
				t.Errorf("Expected IsKnocking=false for out-of-band intervals")
			}
		})
	}
}

func TestClassifyRegularOutOfBandScoresRegularity(t *testing.T) {
	classifier := newTestClassifier(t)

	// Perfectly even 2.5s spacing: regular, but above the knock-rate band.
	// The verdict rejects knocking while confidence still scores the
	// regularity of the train.
	verdict := classifier.Classify(peakSetAt(0, 2500, 5000, 7500), 8*time.Second)

	if verdict.IsKnocking {
		t.Errorf("Expected IsKnocking=false for out-of-band intervals")
	}

	if verdict.Confidence <= 0.4 {
		t.Errorf("Expected confidence to reflect regular spacing, got %f", verdict.Confidence)
	}
}

func TestClassifyConfidenceDecreasesWithJitter(t *testing.T) {
	classifier := newTestClassifier(t)

	even := classifier.Classify(peakSetAt(500, 1000, 1500, 2000, 2500), 3*time.Second)
	jittered := classifier.Classify(peakSetAt(500, 950, 1550, 1980, 2560), 3*time.Second)

	if jittered.Confidence >= even.Confidence {
		t.Errorf("Expected jittered confidence (%f) below even confidence (%f)",
			jittered.Confidence, even.Confidence)
	}

	if !jittered.IsKnocking {
		t.Errorf("Expected mild jitter to still classify as knocking")
	}
}

func TestClassifySparseCoverageLowersConfidence(t *testing.T) {
	classifier := newTestClassifier(t)

	// The same three-knock pattern scores lower over a long clip than a
	// short one: fewer knocks than the clip length would suggest.
	short := classifier.Classify(peakSetAt(500, 1000, 1500), 2*time.Second)
	long := classifier.Classify(peakSetAt(500, 1000, 1500), 10*time.Second)

	if long.Confidence >= short.Confidence {
		t.Errorf("Expected sparse coverage confidence (%f) below dense coverage (%f)",
			long.Confidence, short.Confidence)
	}
}

func TestClassifyConfidenceBounds(t *testing.T) {
	classifier := newTestClassifier(t)

	sets := []peaks.PeakSet{
		peakSetAt(500, 1000, 1500, 2000, 2500),
		peakSetAt(200, 500, 1900, 2150, 3950),
		peakSetAt(0, 2500, 5000),
		peakSetAt(500, 501, 502, 503),
	}

	for i, set := range sets {
		verdict := classifier.Classify(set, 5*time.Second)
		if verdict.Confidence < 0 || verdict.Confidence > 1 {
			t.Errorf("Set %d: confidence %f outside [0, 1]", i, verdict.Confidence)
		}
	}
}

func TestClassifyExactMinimumPeaks(t *testing.T) {
	classifier := newTestClassifier(t)

	// Exactly the minimum count with even spacing still classifies
	verdict := classifier.Classify(peakSetAt(500, 1000, 1500), 2*time.Second)

	if !verdict.IsKnocking {
		t.Errorf("Expected IsKnocking=true at exactly the minimum peak count")
	}

	if verdict.Confidence <= 0 {
		t.Errorf("Expected positive confidence at the minimum peak count, got %f", verdict.Confidence)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	classifier := newTestClassifier(t)

	set := peakSetAt(500, 980, 1510, 2030, 2490)

	first := classifier.Classify(set, 3*time.Second)
	second := classifier.Classify(set, 3*time.Second)

	if first != second {
		t.Errorf("Verdict differs across runs: %+v vs %+v", first, second)
	}
}
