package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appanalysis "github.com/bryanwahyu/solidity-sentinel/internal/application/analysis"
	domain "github.com/bryanwahyu/solidity-sentinel/internal/domain/analysis"
	"github.com/bryanwahyu/solidity-sentinel/internal/domain/contracts"
)

const testContract = `pragma solidity ^0.8.0;

contract Vault {
    function withdraw() external {
        (bool ok, ) = msg.sender.call{value: 1}("");
        require(ok);
    }
}`

type memContracts struct {
	byID map[contracts.ContractID]*contracts.Contract
}

func (m *memContracts) Save(_ context.Context, c *contracts.Contract) error {
	m.byID[c.ID] = c
	return nil
}

func (m *memContracts) Get(_ context.Context, id contracts.ContractID) (*contracts.Contract, error) {
	return m.byID[id], nil
}

func (m *memContracts) FindByHash(_ context.Context, hash string) (*contracts.Contract, error) {
	for _, c := range m.byID {
		if c.CodeHash == hash {
			return c, nil
		}
	}
	return nil, nil
}

func (m *memContracts) List(_ context.Context, _ string, _, _ int) ([]*contracts.Contract, int64, error) {
	out := make([]*contracts.Contract, 0, len(m.byID))
	for _, c := range m.byID {
		out = append(out, c)
	}
	return out, int64(len(out)), nil
}

func (m *memContracts) Delete(_ context.Context, id contracts.ContractID) error {
	delete(m.byID, id)
	return nil
}

type memRuns struct {
	byID     map[domain.RunID]*domain.Run
	findings map[domain.RunID][]*domain.Finding
}

func (m *memRuns) CreateRun(_ context.Context, run *domain.Run) error {
	cp := *run
	m.byID[run.ID] = &cp
	return nil
}

func (m *memRuns) Get(_ context.Context, id domain.RunID) (*domain.Run, error) {
	return m.byID[id], nil
}

func (m *memRuns) Save(_ context.Context, run *domain.Run) error {
	cp := *run
	m.byID[run.ID] = &cp
	return nil
}

func (m *memRuns) UpdateStatus(_ context.Context, id domain.RunID, status domain.Status) error {
	if r, ok := m.byID[id]; ok {
		r.Status = status
	}
	return nil
}

func (m *memRuns) AddFinding(_ context.Context, f *domain.Finding) error {
	m.findings[f.RunID] = append(m.findings[f.RunID], f)
	return nil
}

func (m *memRuns) FindingsByRun(_ context.Context, runID domain.RunID) ([]*domain.Finding, error) {
	return m.findings[runID], nil
}

func (m *memRuns) ByContract(_ context.Context, contractID string, _ int) ([]*domain.Run, error) {
	var out []*domain.Run
	for _, r := range m.byID {
		if string(r.ContractID) == contractID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRuns) Latest(_ context.Context, _ int) ([]*domain.Run, error) {
	out := make([]*domain.Run, 0, len(m.byID))
	for _, r := range m.byID {
		out = append(out, r)
	}
	return out, nil
}

func (m *memRuns) Summary(_ context.Context, _ int) (domain.SummaryStats, error) {
	stats := domain.SummaryStats{TotalRuns: len(m.byID)}
	for _, r := range m.byID {
		if r.Status == domain.StatusCompleted {
			stats.CompletedRuns++
		}
	}
	return stats, nil
}

type stubAI struct {
	available bool
	response  string
}

func (s *stubAI) CheckAvailability(_ context.Context) bool { return s.available }

func (s *stubAI) Generate(_ context.Context, model, _, _ string) (string, error) {
	if model == "det-model" {
		return s.response, nil
	}
	return `{"description": "d", "impact": "i", "recommendation": "r", "fixed_code": "f"}`, nil
}

func newTestRouter(ai *stubAI) (http.Handler, *memRuns, *memContracts) {
	cs := &memContracts{byID: map[contracts.ContractID]*contracts.Contract{}}
	rs := &memRuns{
		byID:     map[domain.RunID]*domain.Run{},
		findings: map[domain.RunID][]*domain.Finding{},
	}
	svc := &appanalysis.Service{
		Contracts:        cs,
		Runs:             rs,
		AI:               ai,
		DetectionModel:   "det-model",
		ExplanationModel: "expl-model",
		ExplainWorkers:   1,
	}
	return NewRouter(svc, zap.NewNop(), 500, nil), rs, cs
}

func postAnalyze(t *testing.T, h http.Handler, body map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze/code", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAnalyzeEndpoint(t *testing.T) {
	h, _, _ := newTestRouter(&stubAI{available: true, response: `{
		"vulnerabilities": [
			{"type": "reentrancy", "severity": "high", "confidence": "high", "function_name": "withdraw", "brief_reason": "call before state update"}
		],
		"summary": "one issue",
		"total_issues": 1
	}`})

	rec := postAnalyze(t, h, map[string]string{
		"contract_name": "Vault",
		"contract_code": testContract,
		"network":       "ethereum",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status      string `json:"status"`
		OverallRisk string `json:"overall_risk"`
		RiskScore   int    `json:"risk_score"`
		Findings    []struct {
			Category string `json:"category"`
			Severity string `json:"severity"`
		} `json:"findings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "completed", resp.Status)
	assert.Equal(t, "high", resp.OverallRisk)
	assert.Equal(t, 25, resp.RiskScore)
	require.Len(t, resp.Findings, 1)
	assert.Equal(t, "reentrancy", resp.Findings[0].Category)
}

func TestAnalyzeEndpoint_EmptyCode(t *testing.T) {
	h, _, _ := newTestRouter(&stubAI{available: true})

	rec := postAnalyze(t, h, map[string]string{"contract_name": "Vault", "contract_code": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var apiErr apiError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, "validation_error", apiErr.Error)
}

func TestAnalyzeEndpoint_InvalidNetwork(t *testing.T) {
	h, _, _ := newTestRouter(&stubAI{available: true})

	rec := postAnalyze(t, h, map[string]string{
		"contract_name": "Vault",
		"contract_code": testContract,
		"network":       "dogechain",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeEndpoint_AIUnavailable(t *testing.T) {
	h, _, _ := newTestRouter(&stubAI{available: false})

	rec := postAnalyze(t, h, map[string]string{
		"contract_name": "Vault",
		"contract_code": testContract,
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var apiErr apiError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, "ai_unavailable", apiErr.Error)
}

func TestGetRun_NotFound(t *testing.T) {
	h, _, _ := newTestRouter(&stubAI{available: true})

	req := httptest.NewRequest(http.MethodGet, "/v1/analyze/no-such-run", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var apiErr apiError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, "not_found", apiErr.Error)
}

func TestReport_NotCompleted(t *testing.T) {
	h, rs, _ := newTestRouter(&stubAI{available: true})
	rs.byID["run-1"] = &domain.Run{ID: "run-1", Status: domain.StatusFailed}

	req := httptest.NewRequest(http.MethodGet, "/v1/reports/run-1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteContract(t *testing.T) {
	h, _, cs := newTestRouter(&stubAI{available: true})
	cs.byID["c-1"] = &contracts.Contract{ID: "c-1", Name: "Vault"}

	req := httptest.NewRequest(http.MethodDelete, "/v1/contracts/c-1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, cs.byID)

	req = httptest.NewRequest(http.MethodDelete, "/v1/contracts/c-1", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatsEndpoint(t *testing.T) {
	h, rs, _ := newTestRouter(&stubAI{available: true})
	rs.byID["run-1"] = &domain.Run{ID: "run-1", Status: domain.StatusCompleted}

	req := httptest.NewRequest(http.MethodGet, "/v1/stats?days=30", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats domain.SummaryStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalRuns)
	assert.Equal(t, 1, stats.CompletedRuns)
}
