package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/solidity-sentinel/internal/application"
	domai "github.com/bryanwahyu/solidity-sentinel/internal/domain/ai"
	domain "github.com/bryanwahyu/solidity-sentinel/internal/domain/analysis"
	"github.com/bryanwahyu/solidity-sentinel/internal/domain/contracts"
	"github.com/bryanwahyu/solidity-sentinel/internal/infra/ai/parser"
	"github.com/bryanwahyu/solidity-sentinel/internal/infra/ai/prompt"
)

// ArtifactStore port for the optional report export after a run completes.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Service drives the full analysis pipeline: detection call, per-finding
// explanation calls, normalization, aggregation, persistence, and the
// failure transitions. It is the sole writer of a run's status while the
// run is in flight.
//
// Safe for concurrent use; concurrently running analyses share nothing
// but the repositories.
type Service struct {
	Contracts contracts.Repository
	Runs      domain.Repository
	AI        domai.Client
	Artifacts ArtifactStore // optional; nil skips report export
	Clock     application.Clock
	Log       *zap.Logger

	DetectionModel   string
	ExplanationModel string

	// ExplainWorkers bounds the explanation fan-out; <=1 runs sequentially.
	ExplainWorkers int
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock.Now()
	}
	return time.Now()
}

func (s *Service) logger() *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return zap.NewNop()
}

// Available reports whether the model service answers its probe.
func (s *Service) Available(ctx context.Context) bool {
	return s.AI.CheckAvailability(ctx)
}

// AnalyzeCode is the caller-facing entry point: dedupe the contract by
// content hash, create a pending run, and execute it to a terminal state.
// The returned run is terminal; err carries the classified failure when
// the run failed.
func (s *Service) AnalyzeCode(ctx context.Context, name, code, network string) (*domain.Run, error) {
	if !s.AI.CheckAvailability(ctx) {
		return nil, fmt.Errorf("%w: model service is not available", domai.ErrAIService)
	}

	hash := contracts.HashCode(code)
	contract, err := s.Contracts.FindByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if contract == nil {
		contract = &contracts.Contract{
			ID:        contracts.ContractID(uuid.New().String()),
			Name:      name,
			Code:      code,
			CodeHash:  hash,
			Network:   contracts.Network(network),
			CreatedAt: s.now(),
		}
		if err := s.Contracts.Save(ctx, contract); err != nil {
			return nil, err
		}
	}

	run := &domain.Run{
		ID:               domain.RunID(uuid.New().String()),
		ContractID:       contract.ID,
		Status:           domain.StatusPending,
		DetectionModel:   s.DetectionModel,
		ExplanationModel: s.ExplanationModel,
		CreatedAt:        s.now(),
	}
	if err := s.Runs.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	if err := s.Execute(ctx, run, code); err != nil {
		return run, err
	}
	return run, nil
}

// Execute runs the state machine on an existing pending run. Whatever
// happens, the run is never left in processing when Execute returns.
func (s *Service) Execute(ctx context.Context, run *domain.Run, code string) (err error) {
	log := s.logger().With(zap.String("run_id", string(run.ID)))

	defer func() {
		if r := recover(); r != nil {
			s.fail(ctx, run, fmt.Sprintf("internal error: %v", r))
			err = fmt.Errorf("%w: internal error: %v", domai.ErrAnalysis, r)
		}
	}()

	start := s.now()
	run.Status = domain.StatusProcessing
	// First durability point: persisted before any AI call, so a crash
	// mid-run shows up as a stuck processing row instead of vanishing.
	if err := s.Runs.UpdateStatus(ctx, run.ID, domain.StatusProcessing); err != nil {
		s.fail(ctx, run, err.Error())
		return fmt.Errorf("%w: %v", domai.ErrAnalysis, err)
	}
	log.Info("analysis started", zap.String("detection_model", s.DetectionModel))

	sys, user := prompt.Detection(code)
	rawText, err := s.AI.Generate(ctx, s.DetectionModel, sys, user)
	if err != nil {
		s.fail(ctx, run, err.Error())
		return err
	}

	p := parser.NewParser(log)
	detMap := p.Parse(rawText)
	if parser.IsFailure(detMap) {
		msg := "failed to parse AI detection response"
		s.fail(ctx, run, msg+": "+parser.RawSnippet(detMap))
		return fmt.Errorf("%w: %s", domai.ErrAnalysis, msg)
	}
	det := parser.DecodeDetection(detMap)
	log.Info("detection finished", zap.Int("vulnerabilities", len(det.Vulnerabilities)))

	// Explanation fan-out. Failures are non-fatal and never cancel the
	// siblings; each result is written back by index so completion order
	// does not matter.
	explanations := make([]parser.ExplanationResult, len(det.Vulnerabilities))
	var g errgroup.Group
	if s.ExplainWorkers > 1 {
		g.SetLimit(s.ExplainWorkers)
	} else {
		g.SetLimit(1)
	}
	for i, vuln := range det.Vulnerabilities {
		i, vuln := i, vuln
		g.Go(func() error {
			expl, xerr := s.explain(ctx, p, vuln, code)
			if xerr != nil {
				log.Warn("explanation call failed, keeping finding without explanation",
					zap.String("type", vuln.Type),
					zap.String("function", vuln.FunctionName),
					zap.Error(xerr))
				return nil
			}
			explanations[i] = expl
			return nil
		})
	}
	g.Wait()

	findings := make([]*domain.Finding, 0, len(det.Vulnerabilities))
	for i, vuln := range det.Vulnerabilities {
		desc := explanations[i].Description
		if desc == "" {
			desc = vuln.BriefReason
		}
		f := &domain.Finding{
			ID:             domain.FindingID(uuid.New().String()),
			RunID:          run.ID,
			Category:       domain.NormalizeCategory(vuln.Type),
			Severity:       domain.NormalizeSeverity(vuln.Severity),
			Confidence:     domain.NormalizeConfidence(vuln.Confidence),
			LineStart:      vuln.LineStart,
			LineEnd:        vuln.LineEnd,
			FunctionName:   vuln.FunctionName,
			CodeSnippet:    vuln.VulnerableCode,
			Description:    desc,
			Impact:         explanations[i].Impact,
			Recommendation: explanations[i].Recommendation,
			FixedCode:      explanations[i].FixedCode,
			CreatedAt:      s.now(),
		}
		// Findings are flushed before the terminal write: a reader must
		// never observe a completed run without its findings.
		if err := s.Runs.AddFinding(ctx, f); err != nil {
			s.fail(ctx, run, err.Error())
			return fmt.Errorf("%w: %v", domai.ErrAnalysis, err)
		}
		findings = append(findings, f)
	}

	// Aggregation uses the severities as the detection model reported
	// them, so the result is reproducible from the detection response
	// alone regardless of explanation outcomes.
	rawSeverities := make([]string, len(det.Vulnerabilities))
	for i, vuln := range det.Vulnerabilities {
		rawSeverities[i] = vuln.Severity
	}
	overall := domain.HighestSeverity(rawSeverities)
	score := domain.RiskScore(rawSeverities)

	end := s.now()
	summary := det.Summary
	if summary == "" {
		summary = fmt.Sprintf("Found %d potential vulnerabilities", len(det.Vulnerabilities))
	}

	run.Status = domain.StatusCompleted
	run.OverallRisk = &overall
	run.RiskScore = &score
	run.Summary = summary
	run.DurationMS = end.Sub(start).Milliseconds()
	run.CompletedAt = &end
	run.TotalLines = CountLines(code)
	run.FunctionsAnalyzed = CountFunctions(code)

	// Terminal write: one atomic full-record update.
	if err := s.Runs.Save(ctx, run); err != nil {
		s.fail(ctx, run, err.Error())
		return fmt.Errorf("%w: %v", domai.ErrAnalysis, err)
	}
	log.Info("analysis completed",
		zap.String("overall_risk", string(overall)),
		zap.Int("risk_score", score),
		zap.Int64("duration_ms", run.DurationMS))

	s.exportReport(ctx, run, findings)
	return nil
}

func (s *Service) explain(ctx context.Context, p *parser.Parser, vuln parser.DetectedVuln, code string) (parser.ExplanationResult, error) {
	sys, user := prompt.Explanation(prompt.ExplanationInput{
		VulnType:       vuln.Type,
		Severity:       vuln.Severity,
		FunctionName:   vuln.FunctionName,
		VulnerableCode: vuln.VulnerableCode,
		BriefReason:    vuln.BriefReason,
		ContractCode:   code,
	})
	raw, err := s.AI.Generate(ctx, s.ExplanationModel, sys, user)
	if err != nil {
		return parser.ExplanationResult{}, err
	}
	m := p.Parse(raw)
	if parser.IsFailure(m) {
		return parser.ExplanationResult{}, fmt.Errorf("unparseable explanation response")
	}
	return parser.DecodeExplanation(m), nil
}

// fail moves the run to its failed terminal state. Persistence errors here
// are logged but not returned; the caller already has the original error.
func (s *Service) fail(ctx context.Context, run *domain.Run, msg string) {
	run.Status = domain.StatusFailed
	run.ErrorMessage = msg
	if err := s.Runs.Save(ctx, run); err != nil {
		s.logger().Error("recording failed run",
			zap.String("run_id", string(run.ID)), zap.Error(err))
	}
}

// exportReport uploads the JSON report for a completed run. Best effort:
// a storage failure never affects the run's outcome.
func (s *Service) exportReport(ctx context.Context, run *domain.Run, findings []*domain.Finding) {
	if s.Artifacts == nil {
		return
	}
	doc := struct {
		Run      *domain.Run       `json:"analysis"`
		Findings []*domain.Finding `json:"findings"`
	}{run, findings}
	data, err := json.Marshal(doc)
	if err != nil {
		return
	}
	key := fmt.Sprintf("reports/%s.json", run.ID)
	url, err := s.Artifacts.Put(ctx, key, data, "application/json")
	if err != nil {
		s.logger().Warn("report upload failed",
			zap.String("run_id", string(run.ID)), zap.Error(err))
		return
	}
	s.logger().Info("report uploaded",
		zap.String("run_id", string(run.ID)), zap.String("url", url))
}

// CountLines counts line breaks + 1.
func CountLines(code string) int {
	return strings.Count(code, "\n") + 1
}

// CountFunctions counts occurrences of the "function " keyword. A textual
// approximation, not a parse: it overcounts when the token appears inside
// comments or string literals.
func CountFunctions(code string) int {
	return strings.Count(code, "function ")
}
