package analysis

import "strings"

// Normalization of model-reported vocabulary. The detection model is told
// to use the closed sets but cannot be trusted to comply, so every value
// coming off the wire passes through here before it reaches the database
// or the aggregator's downstream consumers. Total functions: anything
// unrecognized (including empty) maps to a safe default.

// NormalizeCategory maps a raw type string to a Category; unknown -> other.
func NormalizeCategory(raw string) Category {
	switch Category(strings.ToLower(strings.TrimSpace(raw))) {
	case CategoryReentrancy:
		return CategoryReentrancy
	case CategoryIntegerOverflow:
		return CategoryIntegerOverflow
	case CategoryAccessControl:
		return CategoryAccessControl
	case CategoryUncheckedCall:
		return CategoryUncheckedCall
	case CategoryFrontrunning:
		return CategoryFrontrunning
	}
	return CategoryOther
}

// NormalizeSeverity maps a raw severity string to a Severity; unknown -> medium.
func NormalizeSeverity(raw string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(raw))) {
	case SeverityCritical:
		return SeverityCritical
	case SeverityHigh:
		return SeverityHigh
	case SeverityMedium:
		return SeverityMedium
	case SeverityLow:
		return SeverityLow
	case SeverityInfo:
		return SeverityInfo
	}
	return SeverityMedium
}

// NormalizeConfidence maps a raw confidence string to a Confidence; unknown -> medium.
func NormalizeConfidence(raw string) Confidence {
	switch Confidence(strings.ToLower(strings.TrimSpace(raw))) {
	case ConfidenceHigh:
		return ConfidenceHigh
	case ConfidenceMedium:
		return ConfidenceMedium
	case ConfidenceLow:
		return ConfidenceLow
	}
	return ConfidenceMedium
}
