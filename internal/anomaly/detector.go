package anomaly

import (
	"fmt"
)

// Detector screens incoming meter readings with configurable thresholds
type Detector struct {
	spikeThreshold            float64
	minDataPointsForDetection int
}

// NewDetector creates a new detector with the specified thresholds
func NewDetector(spikeThreshold float64, minDataPointsForDetection int) *Detector {
	return &Detector{
		spikeThreshold:            spikeThreshold,
		minDataPointsForDetection: minDataPointsForDetection,
	}
}

// ScreenReading checks a new cumulative counter value against recent
// history (most recent first). A flagged reading is still stored, the
// status just marks it for review.
func (d *Detector) ScreenReading(value float64, recentValues []float64) (bool, string) {
	// Counters never go below zero
	if value < 0 {
		return true, "negative reading value"
	}

	if len(recentValues) == 0 {
		return false, ""
	}

	// Cumulative counters are non-decreasing under normal operation
	if value < recentValues[0] {
		return true, fmt.Sprintf("reading regression: value %.2f below previous reading %.2f",
			value, recentValues[0])
	}

	// Need enough historical data for spike detection
	if len(recentValues) < d.minDataPointsForDetection {
		return false, ""
	}

	// Average increment across the recent history
	increments := 0.0
	for i := 0; i+1 < len(recentValues); i++ {
		increments += recentValues[i] - recentValues[i+1]
	}
	average := increments / float64(len(recentValues)-1)

	increment := value - recentValues[0]
	if average > 0 && increment > d.spikeThreshold*average {
		return true, fmt.Sprintf("consumption spike: increment %.2f exceeds %.1fx average increment %.2f",
			increment, d.spikeThreshold, average)
	}

	return false, ""
}
