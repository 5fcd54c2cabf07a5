// Package survey holds the core domain model for road-surface survey runs:
// adaptive detection parameters, the track confirmation engine, the bounded
// frame log, and the report structures persisted at job completion.
package survey

// AdaptiveParams are the detection parameters selected for a run based on
// the reported vehicle speed.
type AdaptiveParams struct {
	// ROIRatio is the fraction of frame height, measured from the bottom,
	// submitted to the detector.
	ROIRatio float64

	// Confidence is the minimum detector score accepted for this run.
	Confidence float64

	// Description is a human-readable label for the selected band.
	Description string
}

// BandValues are the per-band detection values applied over the fixed speed
// boundaries at 30 and 60 km/h. The tuning config may override individual
// values; the boundaries and band labels never change.
type BandValues struct {
	LowROI, LowConfidence       float64
	MediumROI, MediumConfidence float64
	HighROI, HighConfidence     float64
}

// DefaultBandValues returns the stock detection values for the three bands.
func DefaultBandValues() BandValues {
	return BandValues{
		LowROI: 0.50, LowConfidence: 0.35,
		MediumROI: 0.65, MediumConfidence: 0.28,
		HighROI: 0.75, HighConfidence: 0.22,
	}
}

// SelectParams picks detection parameters for the reported vehicle speed in
// km/h. Three fixed bands with boundaries at 30 and 60: faster vehicles get a
// taller region of interest and a lower confidence threshold. Total over all
// non-negative speeds, no side effects.
func SelectParams(speedKMH float64) AdaptiveParams {
	return SelectParamsFrom(speedKMH, DefaultBandValues())
}

// SelectParamsFrom is SelectParams with the band values supplied by the
// caller, typically from the tuning config.
func SelectParamsFrom(speedKMH float64, v BandValues) AdaptiveParams {
	switch {
	case speedKMH < 30:
		return AdaptiveParams{ROIRatio: v.LowROI, Confidence: v.LowConfidence, Description: "Low Speed - Focused ROI"}
	case speedKMH < 60:
		return AdaptiveParams{ROIRatio: v.MediumROI, Confidence: v.MediumConfidence, Description: "Medium Speed - Moderate ROI"}
	default:
		return AdaptiveParams{ROIRatio: v.HighROI, Confidence: v.HighConfidence, Description: "High Speed - Extended ROI"}
	}
}
