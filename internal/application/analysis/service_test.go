package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domai "github.com/bryanwahyu/solidity-sentinel/internal/domain/ai"
	domain "github.com/bryanwahyu/solidity-sentinel/internal/domain/analysis"
	"github.com/bryanwahyu/solidity-sentinel/internal/domain/contracts"
)

const vaultCode = `pragma solidity ^0.8.0;

contract Vault {
    mapping(address => uint256) public balances;

    function deposit() external payable {
        balances[msg.sender] += msg.value;
    }

    function withdraw() external {
        uint256 bal = balances[msg.sender];
        (bool ok, ) = msg.sender.call{value: bal}("");
        require(ok);
        balances[msg.sender] = 0;
    }
}`

type fakeContracts struct {
	mu     sync.Mutex
	byHash map[string]*contracts.Contract
	saves  int
}

func newFakeContracts() *fakeContracts {
	return &fakeContracts{byHash: map[string]*contracts.Contract{}}
}

func (f *fakeContracts) Save(_ context.Context, c *contracts.Contract) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byHash[c.CodeHash] = c
	f.saves++
	return nil
}

func (f *fakeContracts) Get(_ context.Context, id contracts.ContractID) (*contracts.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.byHash {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeContracts) FindByHash(_ context.Context, hash string) (*contracts.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byHash[hash], nil
}

func (f *fakeContracts) List(_ context.Context, _ string, _, _ int) ([]*contracts.Contract, int64, error) {
	return nil, 0, nil
}

func (f *fakeContracts) Delete(_ context.Context, _ contracts.ContractID) error { return nil }

type fakeRuns struct {
	mu       sync.Mutex
	runs     map[domain.RunID]domain.Run
	findings map[domain.RunID][]*domain.Finding
	statuses []domain.Status
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{
		runs:     map[domain.RunID]domain.Run{},
		findings: map[domain.RunID][]*domain.Finding{},
	}
}

func (f *fakeRuns) CreateRun(_ context.Context, run *domain.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[run.ID] = *run
	f.statuses = append(f.statuses, run.Status)
	return nil
}

func (f *fakeRuns) Get(_ context.Context, id domain.RunID) (*domain.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.runs[id]; ok {
		return &r, nil
	}
	return nil, nil
}

func (f *fakeRuns) Save(_ context.Context, run *domain.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[run.ID] = *run
	f.statuses = append(f.statuses, run.Status)
	return nil
}

func (f *fakeRuns) UpdateStatus(_ context.Context, id domain.RunID, status domain.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.runs[id]
	r.Status = status
	f.runs[id] = r
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeRuns) AddFinding(_ context.Context, fd *domain.Finding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findings[fd.RunID] = append(f.findings[fd.RunID], fd)
	return nil
}

func (f *fakeRuns) FindingsByRun(_ context.Context, runID domain.RunID) ([]*domain.Finding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findings[runID], nil
}

func (f *fakeRuns) ByContract(_ context.Context, _ string, _ int) ([]*domain.Run, error) {
	return nil, nil
}

func (f *fakeRuns) Latest(_ context.Context, _ int) ([]*domain.Run, error) { return nil, nil }

func (f *fakeRuns) Summary(_ context.Context, _ int) (domain.SummaryStats, error) {
	return domain.SummaryStats{}, nil
}

// fakeAI routes Generate by model name: the detection model gets one
// canned response, every other model gets the explanation response.
type fakeAI struct {
	mu           sync.Mutex
	available    bool
	detectResp   string
	detectErr    error
	explainResp  string
	explainErr   error
	explainCalls int
}

func (f *fakeAI) CheckAvailability(_ context.Context) bool { return f.available }

func (f *fakeAI) Generate(_ context.Context, model, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if model == "det-model" {
		return f.detectResp, f.detectErr
	}
	f.explainCalls++
	return f.explainResp, f.explainErr
}

type fakeArtifacts struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (f *fakeArtifacts) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.keys = append(f.keys, key)
	return "https://store.local/" + key, nil
}

func newService(ai *fakeAI, cs *fakeContracts, rs *fakeRuns) *Service {
	return &Service{
		Contracts:        cs,
		Runs:             rs,
		AI:               ai,
		DetectionModel:   "det-model",
		ExplanationModel: "expl-model",
		ExplainWorkers:   2,
	}
}

const detectionOneCritical = `{
	"vulnerabilities": [
		{
			"type": "reentrancy",
			"severity": "critical",
			"confidence": "high",
			"line_start": 10,
			"line_end": 14,
			"function_name": "withdraw",
			"vulnerable_code": "msg.sender.call{value: bal}(\"\");",
			"brief_reason": "State update happens after external call"
		}
	],
	"summary": "One critical reentrancy issue",
	"total_issues": 1
}`

const explanationOK = `{
	"description": "The withdraw function sends funds before zeroing the balance.",
	"impact": "An attacker can drain the contract by re-entering withdraw.",
	"recommendation": "Zero the balance before the external call.",
	"fixed_code": "balances[msg.sender] = 0;\n(bool ok, ) = msg.sender.call{value: bal}(\"\");"
}`

func TestAnalyzeCode_OneCriticalFinding(t *testing.T) {
	ai := &fakeAI{available: true, detectResp: detectionOneCritical, explainResp: explanationOK}
	cs := newFakeContracts()
	rs := newFakeRuns()
	svc := newService(ai, cs, rs)

	run, err := svc.AnalyzeCode(context.Background(), "Vault", vaultCode, "ethereum")
	require.NoError(t, err)
	require.NotNil(t, run)

	assert.Equal(t, domain.StatusCompleted, run.Status)
	require.NotNil(t, run.OverallRisk)
	assert.Equal(t, domain.SeverityCritical, *run.OverallRisk)
	require.NotNil(t, run.RiskScore)
	assert.Equal(t, 40, *run.RiskScore)
	assert.Equal(t, "One critical reentrancy issue", run.Summary)
	assert.Equal(t, CountLines(vaultCode), run.TotalLines)
	assert.Equal(t, 2, run.FunctionsAnalyzed)
	assert.NotNil(t, run.CompletedAt)

	findings, err := rs.FindingsByRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	f := findings[0]
	assert.Equal(t, domain.CategoryReentrancy, f.Category)
	assert.Equal(t, domain.SeverityCritical, f.Severity)
	assert.Equal(t, domain.ConfidenceHigh, f.Confidence)
	assert.Equal(t, "withdraw", f.FunctionName)
	assert.Contains(t, f.Description, "before zeroing the balance")
	assert.Contains(t, f.FixedCode, "balances[msg.sender] = 0;\n")

	// pending -> processing -> completed, each persisted in order
	assert.Equal(t, []domain.Status{
		domain.StatusPending, domain.StatusProcessing, domain.StatusCompleted,
	}, rs.statuses)
}

func TestAnalyzeCode_ServiceUnavailable(t *testing.T) {
	ai := &fakeAI{available: false}
	cs := newFakeContracts()
	rs := newFakeRuns()
	svc := newService(ai, cs, rs)

	run, err := svc.AnalyzeCode(context.Background(), "Vault", vaultCode, "ethereum")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domai.ErrAIService))
	assert.Nil(t, run)
	assert.Equal(t, 0, cs.saves)
	assert.Empty(t, rs.runs)
}

func TestAnalyzeCode_DetectionTimeoutFailsRun(t *testing.T) {
	detErr := fmt.Errorf("%w: request timed out, the model may still be loading", domai.ErrAIService)
	ai := &fakeAI{available: true, detectErr: detErr}
	cs := newFakeContracts()
	rs := newFakeRuns()
	svc := newService(ai, cs, rs)

	run, err := svc.AnalyzeCode(context.Background(), "Vault", vaultCode, "ethereum")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domai.ErrAIService))
	require.NotNil(t, run)

	stored, _ := rs.Get(context.Background(), run.ID)
	require.NotNil(t, stored)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "timed out")
	assert.Nil(t, stored.OverallRisk)

	findings, _ := rs.FindingsByRun(context.Background(), run.ID)
	assert.Empty(t, findings)
}

func TestAnalyzeCode_UnparseableDetection(t *testing.T) {
	ai := &fakeAI{available: true, detectResp: "I could not find any JSON for you today, sorry."}
	cs := newFakeContracts()
	rs := newFakeRuns()
	svc := newService(ai, cs, rs)

	run, err := svc.AnalyzeCode(context.Background(), "Vault", vaultCode, "ethereum")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domai.ErrAnalysis))
	require.NotNil(t, run)

	stored, _ := rs.Get(context.Background(), run.ID)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "failed to parse AI detection response")
	assert.Contains(t, stored.ErrorMessage, "could not find any JSON")
}

func TestAnalyzeCode_CleanContract(t *testing.T) {
	ai := &fakeAI{available: true, detectResp: `{"vulnerabilities": [], "total_issues": 0}`}
	cs := newFakeContracts()
	rs := newFakeRuns()
	svc := newService(ai, cs, rs)

	run, err := svc.AnalyzeCode(context.Background(), "Vault", vaultCode, "ethereum")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, run.Status)
	require.NotNil(t, run.OverallRisk)
	assert.Equal(t, domain.SeverityInfo, *run.OverallRisk)
	require.NotNil(t, run.RiskScore)
	assert.Equal(t, 0, *run.RiskScore)
	assert.Equal(t, "Found 0 potential vulnerabilities", run.Summary)
	assert.Equal(t, 0, ai.explainCalls)
}

func TestAnalyzeCode_ExplanationFailureIsNonFatal(t *testing.T) {
	ai := &fakeAI{
		available:  true,
		detectResp: detectionOneCritical,
		explainErr: fmt.Errorf("%w: request timed out", domai.ErrAIService),
	}
	cs := newFakeContracts()
	rs := newFakeRuns()
	svc := newService(ai, cs, rs)

	run, err := svc.AnalyzeCode(context.Background(), "Vault", vaultCode, "ethereum")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, run.Status)

	findings, _ := rs.FindingsByRun(context.Background(), run.ID)
	require.Len(t, findings, 1)
	// falls back to the detection stage's brief reason
	assert.Equal(t, "State update happens after external call", findings[0].Description)
	assert.Empty(t, findings[0].Impact)
	assert.Empty(t, findings[0].FixedCode)
}

func TestAnalyzeCode_UnparseableExplanationIsNonFatal(t *testing.T) {
	ai := &fakeAI{
		available:   true,
		detectResp:  detectionOneCritical,
		explainResp: "Here is my explanation in plain prose instead of JSON.",
	}
	cs := newFakeContracts()
	rs := newFakeRuns()
	svc := newService(ai, cs, rs)

	run, err := svc.AnalyzeCode(context.Background(), "Vault", vaultCode, "ethereum")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, run.Status)

	findings, _ := rs.FindingsByRun(context.Background(), run.ID)
	require.Len(t, findings, 1)
	assert.Equal(t, "State update happens after external call", findings[0].Description)
}

func TestAnalyzeCode_UnknownVocabularyNormalized(t *testing.T) {
	ai := &fakeAI{available: true, detectResp: `{
		"vulnerabilities": [
			{"type": "timestamp_dependence", "severity": "catastrophic", "confidence": "certain", "brief_reason": "uses block.timestamp"}
		],
		"summary": "one oddity",
		"total_issues": 1
	}`, explainResp: explanationOK}
	cs := newFakeContracts()
	rs := newFakeRuns()
	svc := newService(ai, cs, rs)

	run, err := svc.AnalyzeCode(context.Background(), "Vault", vaultCode, "ethereum")
	require.NoError(t, err)

	findings, _ := rs.FindingsByRun(context.Background(), run.ID)
	require.Len(t, findings, 1)
	assert.Equal(t, domain.CategoryOther, findings[0].Category)
	assert.Equal(t, domain.SeverityMedium, findings[0].Severity)
	assert.Equal(t, domain.ConfidenceMedium, findings[0].Confidence)

	// aggregation sees the raw label, so it takes the unknown-severity path
	require.NotNil(t, run.RiskScore)
	assert.Equal(t, 10, *run.RiskScore)
	require.NotNil(t, run.OverallRisk)
	assert.Equal(t, domain.SeverityInfo, *run.OverallRisk)
}

func TestAnalyzeCode_DedupesByContentHash(t *testing.T) {
	ai := &fakeAI{available: true, detectResp: `{"vulnerabilities": [], "summary": "clean", "total_issues": 0}`}
	cs := newFakeContracts()
	rs := newFakeRuns()
	svc := newService(ai, cs, rs)

	first, err := svc.AnalyzeCode(context.Background(), "Vault", vaultCode, "ethereum")
	require.NoError(t, err)
	second, err := svc.AnalyzeCode(context.Background(), "VaultAgain", vaultCode, "ethereum")
	require.NoError(t, err)

	assert.Equal(t, 1, cs.saves)
	assert.Equal(t, first.ContractID, second.ContractID)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestAnalyzeCode_ManyFindingsSaturateScore(t *testing.T) {
	vulns := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		vulns = append(vulns, `{"type": "reentrancy", "severity": "critical", "confidence": "high", "brief_reason": "r"}`)
	}
	resp := fmt.Sprintf(`{"vulnerabilities": [%s], "summary": "bad", "total_issues": 5}`,
		strings.Join(vulns, ","))
	ai := &fakeAI{available: true, detectResp: resp, explainResp: explanationOK}
	cs := newFakeContracts()
	rs := newFakeRuns()
	svc := newService(ai, cs, rs)

	run, err := svc.AnalyzeCode(context.Background(), "Vault", vaultCode, "ethereum")
	require.NoError(t, err)
	require.NotNil(t, run.RiskScore)
	assert.Equal(t, 100, *run.RiskScore)
	assert.Equal(t, 5, ai.explainCalls)

	findings, _ := rs.FindingsByRun(context.Background(), run.ID)
	assert.Len(t, findings, 5)
}

func TestAnalyzeCode_ReportExport(t *testing.T) {
	ai := &fakeAI{available: true, detectResp: detectionOneCritical, explainResp: explanationOK}
	cs := newFakeContracts()
	rs := newFakeRuns()
	svc := newService(ai, cs, rs)
	store := &fakeArtifacts{}
	svc.Artifacts = store

	run, err := svc.AnalyzeCode(context.Background(), "Vault", vaultCode, "ethereum")
	require.NoError(t, err)
	require.Len(t, store.keys, 1)
	assert.Equal(t, fmt.Sprintf("reports/%s.json", run.ID), store.keys[0])
}

func TestAnalyzeCode_ReportExportFailureIgnored(t *testing.T) {
	ai := &fakeAI{available: true, detectResp: detectionOneCritical, explainResp: explanationOK}
	cs := newFakeContracts()
	rs := newFakeRuns()
	svc := newService(ai, cs, rs)
	svc.Artifacts = &fakeArtifacts{err: errors.New("bucket gone")}

	run, err := svc.AnalyzeCode(context.Background(), "Vault", vaultCode, "ethereum")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, run.Status)
}

func TestCountLines(t *testing.T) {
	assert.Equal(t, 1, CountLines("single"))
	assert.Equal(t, 3, CountLines("a\nb\nc"))
}

func TestCountFunctions(t *testing.T) {
	assert.Equal(t, 2, CountFunctions(vaultCode))
	assert.Equal(t, 0, CountFunctions("contract Empty {}"))
}
