package analysis

// Confidence thresholds. Display unblocks read-only presentation of
// extracted data; Action gates anything with monetary or legal effect.
const (
	ThresholdDisplay = 0.5
	ThresholdAction  = 0.6
)

// GateConfidence rejects a result whose confidence falls below the given
// threshold. Flows without a confidence score are not gated; pass a nil
// confidence to skip.
func GateConfidence(confidence *float64, threshold float64) error {
	if confidence == nil {
		return nil
	}
	if *confidence >= threshold {
		return nil
	}
	return &LowConfidenceError{Confidence: *confidence, Threshold: threshold}
}
