package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domain "github.com/bryanwahyu/solidity-sentinel/internal/domain/analysis"
)

type AnalysisRepository struct{ db *sql.DB }

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository { return &AnalysisRepository{db: db} }

const runColumns = `id, contract_id, status, overall_risk, risk_score, summary, error_message,
       total_lines, functions_analyzed, detection_model, explanation_model,
       scan_duration_ms, created_at, completed_at`

// CreateRun inserts the initial pending row
func (r *AnalysisRepository) CreateRun(ctx context.Context, run *domain.Run) error {
	const q = `
INSERT INTO analyses
(id, contract_id, status, detection_model, explanation_model, created_at)
VALUES ($1,$2,$3,$4,$5,$6);`
	created := run.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		run.ID, run.ContractID, run.Status,
		nullString(run.DetectionModel), nullString(run.ExplanationModel), created,
	)
	return err
}

// Get by ID; nil when absent
func (r *AnalysisRepository) Get(ctx context.Context, id domain.RunID) (*domain.Run, error) {
	const q = `SELECT ` + runColumns + ` FROM analyses WHERE id=$1 LIMIT 1;`
	run, err := scanRun(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// Save atomic full-record update
func (r *AnalysisRepository) Save(ctx context.Context, run *domain.Run) error {
	const q = `
UPDATE analyses
SET status=$1, overall_risk=$2, risk_score=$3, summary=$4, error_message=$5,
    total_lines=$6, functions_analyzed=$7, scan_duration_ms=$8, completed_at=$9
WHERE id=$10;`
	var risk sql.NullString
	if run.OverallRisk != nil {
		risk = nullString(string(*run.OverallRisk))
	}
	_, err := r.db.ExecContext(ctx, q,
		run.Status, risk, nullIntPtr(run.RiskScore),
		nullString(run.Summary), nullString(run.ErrorMessage),
		run.TotalLines, run.FunctionsAnalyzed, run.DurationMS,
		nullTimePtr(run.CompletedAt),
		run.ID,
	)
	return err
}

// UpdateStatus only touches the status column
func (r *AnalysisRepository) UpdateStatus(ctx context.Context, id domain.RunID, status domain.Status) error {
	_, err := r.db.ExecContext(ctx, `UPDATE analyses SET status=$1 WHERE id=$2;`, status, id)
	return err
}

// AddFinding appends one finding owned by a run
func (r *AnalysisRepository) AddFinding(ctx context.Context, f *domain.Finding) error {
	const q = `
INSERT INTO vulnerabilities
(id, analysis_id, type, severity, confidence, verified,
 line_start, line_end, function_name, code_snippet,
 description, impact, recommendation, fixed_code, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15);`
	created := f.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		f.ID, f.RunID, f.Category, f.Severity, f.Confidence, f.Verified,
		nullIntPtr(f.LineStart), nullIntPtr(f.LineEnd),
		nullString(f.FunctionName), nullString(f.CodeSnippet),
		nullString(f.Description), nullString(f.Impact),
		nullString(f.Recommendation), nullString(f.FixedCode),
		created,
	)
	return err
}

// FindingsByRun returns a run's findings in insertion order
func (r *AnalysisRepository) FindingsByRun(ctx context.Context, runID domain.RunID) ([]*domain.Finding, error) {
	const q = `
SELECT id, analysis_id, type, severity, confidence, verified,
       line_start, line_end, function_name, code_snippet,
       description, impact, recommendation, fixed_code, created_at
FROM vulnerabilities
WHERE analysis_id=$1 ORDER BY created_at ASC, id ASC;`
	rows, err := r.db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Finding
	for rows.Next() {
		var f domain.Finding
		var lineStart, lineEnd sql.NullInt64
		var fn, snippet, desc, impact, rec, fixed sql.NullString
		if err := rows.Scan(
			&f.ID, &f.RunID, &f.Category, &f.Severity, &f.Confidence, &f.Verified,
			&lineStart, &lineEnd, &fn, &snippet,
			&desc, &impact, &rec, &fixed, &f.CreatedAt,
		); err != nil {
			return nil, err
		}
		f.LineStart = intPtr(lineStart)
		f.LineEnd = intPtr(lineEnd)
		f.FunctionName = fn.String
		f.CodeSnippet = snippet.String
		f.Description = desc.String
		f.Impact = impact.String
		f.Recommendation = rec.String
		f.FixedCode = fixed.String
		out = append(out, &f)
	}
	return out, rows.Err()
}

// ByContract lists a contract's runs newest first
func (r *AnalysisRepository) ByContract(ctx context.Context, contractID string, limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `SELECT ` + runColumns + ` FROM analyses WHERE contract_id=$1 ORDER BY created_at DESC LIMIT $2;`
	return r.queryRuns(ctx, q, contractID, limit)
}

// Latest runs across all contracts
func (r *AnalysisRepository) Latest(ctx context.Context, limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `SELECT ` + runColumns + ` FROM analyses ORDER BY created_at DESC LIMIT $1;`
	return r.queryRuns(ctx, q, limit)
}

// Summary aggregates runs and finding severities since N days
func (r *AnalysisRepository) Summary(ctx context.Context, sinceDays int) (domain.SummaryStats, error) {
	if sinceDays <= 0 {
		sinceDays = 7
	}
	cut := time.Now().AddDate(0, 0, -sinceDays)

	var stats domain.SummaryStats
	const runsQ = `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE status='completed'),
       COUNT(*) FILTER (WHERE status='failed')
FROM analyses WHERE created_at >= $1;`
	if err := r.db.QueryRowContext(ctx, runsQ, cut).Scan(
		&stats.TotalRuns, &stats.CompletedRuns, &stats.FailedRuns,
	); err != nil {
		return domain.SummaryStats{}, fmt.Errorf("summarizing runs: %w", err)
	}

	const sevQ = `
SELECT COUNT(*) FILTER (WHERE severity='critical'),
       COUNT(*) FILTER (WHERE severity='high'),
       COUNT(*) FILTER (WHERE severity='medium'),
       COUNT(*) FILTER (WHERE severity='low'),
       COUNT(*) FILTER (WHERE severity='info')
FROM vulnerabilities WHERE created_at >= $1;`
	if err := r.db.QueryRowContext(ctx, sevQ, cut).Scan(
		&stats.Critical, &stats.High, &stats.Medium, &stats.Low, &stats.Info,
	); err != nil {
		return domain.SummaryStats{}, fmt.Errorf("summarizing findings: %w", err)
	}
	return stats, nil
}

func (r *AnalysisRepository) queryRuns(ctx context.Context, q string, args ...any) ([]*domain.Run, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func scanRun(row rowScanner) (*domain.Run, error) {
	var run domain.Run
	var risk, summary, errMsg, detModel, explModel sql.NullString
	var score, totalLines, fns, duration sql.NullInt64
	var completed sql.NullTime
	if err := row.Scan(
		&run.ID, &run.ContractID, &run.Status, &risk, &score, &summary, &errMsg,
		&totalLines, &fns, &detModel, &explModel,
		&duration, &run.CreatedAt, &completed,
	); err != nil {
		return nil, err
	}
	if risk.Valid {
		sev := domain.Severity(risk.String)
		run.OverallRisk = &sev
	}
	run.RiskScore = intPtr(score)
	run.Summary = summary.String
	run.ErrorMessage = errMsg.String
	run.TotalLines = int(totalLines.Int64)
	run.FunctionsAnalyzed = int(fns.Int64)
	run.DetectionModel = detModel.String
	run.ExplanationModel = explModel.String
	run.DurationMS = duration.Int64
	run.CompletedAt = timePtr(completed)
	return &run, nil
}

// nullIntPtr maps a nil *int to NULL
func nullIntPtr(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

// nullTimePtr maps a nil *time.Time to NULL
func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
