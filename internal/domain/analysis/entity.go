package analysis

import (
	"time"

	"github.com/bryanwahyu/solidity-sentinel/internal/domain/contracts"
)

// RunID identifier type
type RunID string

// FindingID identifier type
type FindingID string

// Status enum. A run only moves forward: pending -> processing -> completed
// or pending -> processing -> failed. Terminal states are never left.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Severity enum, ordered critical > high > medium > low > info
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Category enum for detected vulnerability classes
type Category string

const (
	CategoryReentrancy      Category = "reentrancy"
	CategoryIntegerOverflow Category = "integer_overflow"
	CategoryAccessControl   Category = "access_control"
	CategoryUncheckedCall   Category = "unchecked_call"
	CategoryFrontrunning    Category = "frontrunning"
	CategoryOther           Category = "other"
)

// Confidence enum
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Aggregate root: one scan of one contract. Owned exclusively by the
// orchestrator while processing; a contract owns many runs.
type Run struct {
	ID         RunID                `json:"id"`
	ContractID contracts.ContractID `json:"contract_id"`
	Status     Status               `json:"status"`

	// Results; nil until the run completes.
	OverallRisk *Severity `json:"overall_risk,omitempty"`
	RiskScore   *int      `json:"risk_score,omitempty"` // 0-100
	Summary     string    `json:"summary,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`

	// Code statistics. FunctionsAnalyzed is a textual approximation
	// (occurrences of the "function " keyword), not a parser result.
	TotalLines        int `json:"total_lines,omitempty"`
	FunctionsAnalyzed int `json:"functions_analyzed,omitempty"`

	DetectionModel   string `json:"detection_model,omitempty"`
	ExplanationModel string `json:"explanation_model,omitempty"`

	DurationMS  int64      `json:"scan_duration_ms,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Finding is one detected vulnerability, owned by exactly one run.
// Detection-derived fields are set at creation; explanation fields are
// attached afterwards and may stay empty when the explanation call fails.
type Finding struct {
	ID    FindingID `json:"id"`
	RunID RunID     `json:"run_id"`

	Category   Category   `json:"category"`
	Severity   Severity   `json:"severity"`
	Confidence Confidence `json:"confidence"`

	// Reserved for future dynamic verification; always false for now.
	Verified bool `json:"verified"`

	// Best-effort source location.
	LineStart    *int   `json:"line_start,omitempty"`
	LineEnd      *int   `json:"line_end,omitempty"`
	FunctionName string `json:"function_name,omitempty"`
	CodeSnippet  string `json:"code_snippet,omitempty"`

	Description    string `json:"description,omitempty"`
	Impact         string `json:"impact,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
	FixedCode      string `json:"fixed_code,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Summary is the aggregate the stats endpoint reports.
type SummaryStats struct {
	TotalRuns     int `json:"total_runs"`
	CompletedRuns int `json:"completed_runs"`
	FailedRuns    int `json:"failed_runs"`
	Critical      int `json:"critical"`
	High          int `json:"high"`
	Medium        int `json:"medium"`
	Low           int `json:"low"`
	Info          int `json:"info"`
}
