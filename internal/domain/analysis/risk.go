package analysis

import "strings"

// Aggregation works on the severity strings exactly as the detection model
// reported them, before normalization, so the overall risk of a run is
// reproducible from the detection response alone and independent of
// whether any explanation call succeeded.

// severityOrder is the precedence scan order, highest first.
var severityOrder = []Severity{
	SeverityCritical,
	SeverityHigh,
	SeverityMedium,
	SeverityLow,
	SeverityInfo,
}

// severityPoints is the per-finding contribution to the risk score.
// 10 is the fallback for values outside the closed set; unreachable for
// normalized findings but this runs on raw detection output.
var severityPoints = map[Severity]int{
	SeverityCritical: 40,
	SeverityHigh:     25,
	SeverityMedium:   15,
	SeverityLow:      5,
	SeverityInfo:     1,
}

// HighestSeverity returns the highest-precedence severity present among
// the raw detection severities. An empty set is reported as info: a clean
// scan is informational, not absent.
func HighestSeverity(raw []string) Severity {
	for _, sev := range severityOrder {
		for _, r := range raw {
			if Severity(strings.ToLower(r)) == sev {
				return sev
			}
		}
	}
	return SeverityInfo
}

// RiskScore sums a fixed point value per finding and caps at 100.
// Additive and saturating rather than worst-case: five mediums (75)
// outweigh a single critical (40).
func RiskScore(raw []string) int {
	if len(raw) == 0 {
		return 0
	}
	total := 0
	for _, r := range raw {
		pts, ok := severityPoints[Severity(strings.ToLower(r))]
		if !ok {
			pts = 10
		}
		total += pts
	}
	if total > 100 {
		return 100
	}
	return total
}
