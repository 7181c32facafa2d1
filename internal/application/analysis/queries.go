package analysis

import (
	"context"

	domain "github.com/bryanwahyu/solidity-sentinel/internal/domain/analysis"
	"github.com/bryanwahyu/solidity-sentinel/internal/domain/contracts"
)

// Read-side use cases consumed by the route layer. Thin passthroughs;
// "not found" is a normal nil result, not an error.

// GetRun fetches one run by id.
func (s *Service) GetRun(ctx context.Context, id domain.RunID) (*domain.Run, error) {
	return s.Runs.Get(ctx, id)
}

// RunFindings lists a run's findings in insertion order.
func (s *Service) RunFindings(ctx context.Context, id domain.RunID) ([]*domain.Finding, error) {
	return s.Runs.FindingsByRun(ctx, id)
}

// LatestRuns lists the most recent runs.
func (s *Service) LatestRuns(ctx context.Context, limit int) ([]*domain.Run, error) {
	return s.Runs.Latest(ctx, limit)
}

// Stats aggregates run and severity counts over the last sinceDays days.
func (s *Service) Stats(ctx context.Context, sinceDays int) (domain.SummaryStats, error) {
	return s.Runs.Summary(ctx, sinceDays)
}

// GetContract fetches one contract by id.
func (s *Service) GetContract(ctx context.Context, id contracts.ContractID) (*contracts.Contract, error) {
	return s.Contracts.Get(ctx, id)
}

// ListContracts pages through stored contracts, optionally filtered by network.
func (s *Service) ListContracts(ctx context.Context, network string, page, pageSize int) ([]*contracts.Contract, int64, error) {
	return s.Contracts.List(ctx, network, page, pageSize)
}

// ContractRuns lists a contract's runs, newest first.
func (s *Service) ContractRuns(ctx context.Context, id contracts.ContractID, limit int) ([]*domain.Run, error) {
	return s.Runs.ByContract(ctx, string(id), limit)
}

// DeleteContract removes a contract; runs and findings cascade.
func (s *Service) DeleteContract(ctx context.Context, id contracts.ContractID) error {
	return s.Contracts.Delete(ctx, id)
}
