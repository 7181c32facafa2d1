package analysis

import "context"

// Repository port (interface for persistence)
type Repository interface {
	CreateRun(ctx context.Context, run *Run) error
	Get(ctx context.Context, id RunID) (*Run, error)
	// Save is an atomic full-record update of an existing run.
	Save(ctx context.Context, run *Run) error
	UpdateStatus(ctx context.Context, id RunID, status Status) error
	AddFinding(ctx context.Context, f *Finding) error
	FindingsByRun(ctx context.Context, runID RunID) ([]*Finding, error)
	// ByContract lists a contract's runs, newest first.
	ByContract(ctx context.Context, contractID string, limit int) ([]*Run, error)
	Latest(ctx context.Context, limit int) ([]*Run, error)
	Summary(ctx context.Context, sinceDays int) (SummaryStats, error)
}
