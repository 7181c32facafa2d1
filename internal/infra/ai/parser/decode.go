package parser

import (
	"strconv"
	"strings"
)

// Typed views over the parsed mapping. Decoding is lenient by design:
// missing or wrong-typed fields come back zeroed instead of failing the
// decode, because normalization downstream handles absent values anyway.

// DetectedVuln is one entry of the detection response's vulnerabilities
// array, as reported by the model (pre-normalization).
type DetectedVuln struct {
	Type           string
	Severity       string
	Confidence     string
	LineStart      *int
	LineEnd        *int
	FunctionName   string
	VulnerableCode string
	BriefReason    string
}

// DetectionResult is the detection stage's response shape.
type DetectionResult struct {
	Vulnerabilities []DetectedVuln
	Summary         string
	TotalIssues     int
}

// ExplanationResult is the explanation stage's response shape.
type ExplanationResult struct {
	Description    string
	Impact         string
	Recommendation string
	FixedCode      string
}

// DecodeDetection extracts the detection shape from a parsed mapping.
func DecodeDetection(m map[string]any) DetectionResult {
	res := DetectionResult{
		Summary:     stringField(m, "summary"),
		TotalIssues: intField(m, "total_issues"),
	}
	list, _ := m["vulnerabilities"].([]any)
	for _, item := range list {
		vm, ok := item.(map[string]any)
		if !ok {
			continue
		}
		res.Vulnerabilities = append(res.Vulnerabilities, DetectedVuln{
			Type:           stringField(vm, "type"),
			Severity:       stringField(vm, "severity"),
			Confidence:     stringField(vm, "confidence"),
			LineStart:      intPtrField(vm, "line_start"),
			LineEnd:        intPtrField(vm, "line_end"),
			FunctionName:   stringField(vm, "function_name"),
			VulnerableCode: stringField(vm, "vulnerable_code"),
			BriefReason:    stringField(vm, "brief_reason"),
		})
	}
	return res
}

// DecodeExplanation extracts the explanation shape from a parsed mapping.
func DecodeExplanation(m map[string]any) ExplanationResult {
	return ExplanationResult{
		Description:    stringField(m, "description"),
		Impact:         stringField(m, "impact"),
		Recommendation: stringField(m, "recommendation"),
		FixedCode:      stringField(m, "fixed_code"),
	}
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func intField(m map[string]any, key string) int {
	if p := intPtrField(m, key); p != nil {
		return *p
	}
	return 0
}

// intPtrField tolerates the number arriving as a JSON number or as a
// numeric string.
func intPtrField(m map[string]any, key string) *int {
	switch v := m[key].(type) {
	case float64:
		n := int(v)
		return &n
	case int:
		n := v
		return &n
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return &n
		}
	}
	return nil
}
