package ai

import "errors"

// ErrAIService indicates the model-serving endpoint failed: unreachable,
// timed out, or returned a non-success status. Retryable by the user once
// the service is back; never conflated with a parse failure.
var ErrAIService = errors.New("ai service error")

// ErrAnalysis indicates the analysis pipeline itself failed after it was
// accepted (detection output unparseable, or an unexpected internal error).
var ErrAnalysis = errors.New("analysis failed")
