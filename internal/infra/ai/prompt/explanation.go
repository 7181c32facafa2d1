package prompt

import "fmt"

const explanationSystemPrompt = `You are a smart contract security expert who explains vulnerabilities in simple terms.

Your job is to:
1. Explain what the vulnerability is
2. Explain why it is dangerous
3. Provide a clear recommendation to fix it
4. Show the corrected code if possible

Be clear and concise. Avoid overly technical jargon when possible.`

const explanationUserPrompt = `Explain this smart contract vulnerability:

VULNERABILITY TYPE: %s
SEVERITY: %s
FUNCTION NAME: %s

VULNERABLE CODE:
%s

BRIEF REASON: %s

FULL CONTRACT CONTEXT:
%s

Please provide:
1. DESCRIPTION: A clear explanation of what this vulnerability is (2-3 sentences)
2. IMPACT: What could happen if this is exploited (2-3 sentences)
3. RECOMMENDATION: How to fix this issue (2-3 sentences)
4. FIXED_CODE: The corrected version of the vulnerable code

Format your response as JSON:
{
    "description": "...",
    "impact": "...",
    "recommendation": "...",
    "fixed_code": "..."
}

Return ONLY the JSON object. No other text.`

// ExplanationInput carries one finding's detection-stage fields plus the
// full contract code for context.
type ExplanationInput struct {
	VulnType       string
	Severity       string
	FunctionName   string
	VulnerableCode string
	BriefReason    string
	ContractCode   string
}

// Explanation builds the (system, user) pair for the per-finding
// explanation stage.
func Explanation(in ExplanationInput) (string, string) {
	fn := in.FunctionName
	if fn == "" {
		fn = "unknown"
	}
	user := fmt.Sprintf(explanationUserPrompt,
		in.VulnType,
		in.Severity,
		fn,
		in.VulnerableCode,
		in.BriefReason,
		in.ContractCode,
	)
	return explanationSystemPrompt, user
}
