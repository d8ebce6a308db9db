package scanner

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/halcyonsec/scangate/api/schemas"
	"github.com/halcyonsec/scangate/internal/config"
)

// ToolGitleaks is the identifier of the secret scanner adapter.
const ToolGitleaks = "gitleaks"

// highRiskSecretRules lists rule ids whose matches are always critical
// regardless of entropy: a leaked cloud or VCS credential is immediately
// exploitable.
var highRiskSecretRules = map[string]struct{}{
	"aws-access-key":        {},
	"aws-secret-access-key": {},
	"private-key":           {},
	"github-pat":            {},
	"slack-token":           {},
	"azure-client-secret":   {},
	"google-api-key":        {},
}

// entropyThreshold above which a detected secret is considered high-entropy
// enough to be a real credential rather than a test string.
const entropyThreshold = 8.0

// GitleaksAdapter wraps the gitleaks CLI. Best-effort: failures never block
// the rest of the pipeline.
type GitleaksAdapter struct {
	cfg    config.ToolConfig
	run    *runner
	logger *zap.Logger
}

// NewGitleaksAdapter builds the gitleaks adapter.
func NewGitleaksAdapter(cfg config.ToolConfig, tempDir string, logger *zap.Logger) *GitleaksAdapter {
	l := logger.Named("gitleaks")
	return &GitleaksAdapter{cfg: cfg, run: newRunner(tempDir, cfg.Timeout, l), logger: l}
}

func (a *GitleaksAdapter) Name() string               { return ToolGitleaks }
func (a *GitleaksAdapter) Category() schemas.Category { return schemas.CategorySecrets }

func (a *GitleaksAdapter) Scan(ctx context.Context, repoPath string) ([]schemas.NormalizedFinding, error) {
	reportPath := a.run.reportPath(ToolGitleaks)
	args := []string{"detect", "--source", ".", "--no-git", "--report-format", "json", "--report-path", reportPath, "--exit-code", "0"}

	outcome := a.run.execute(ctx, ToolGitleaks, a.cfg.Binary, args, repoPath, reportPath)
	switch outcome.State {
	case StateNotAvailable, StateNoFindings:
		return nil, nil
	case StateExecutionError:
		a.logger.Warn("Gitleaks execution failed, continuing without its findings", zap.Error(outcome.Err))
		return nil, nil
	}

	findings, err := parseGitleaksReport(outcome.Report)
	if err != nil {
		a.logger.Warn("Gitleaks report unparseable, continuing without its findings", zap.Error(err))
		return nil, nil
	}
	return findings, nil
}

// gitleaksLeak is one entry of gitleaks' JSON report (the report is a bare
// array).
type gitleaksLeak struct {
	Description string  `json:"Description"`
	RuleID      string  `json:"RuleID"`
	File        string  `json:"File"`
	StartLine   int     `json:"StartLine"`
	Entropy     float64 `json:"Entropy"`
}

func parseGitleaksReport(report []byte) ([]schemas.NormalizedFinding, error) {
	var leaks []gitleaksLeak
	if err := json.Unmarshal(report, &leaks); err != nil {
		return nil, err
	}

	findings := make([]schemas.NormalizedFinding, 0, len(leaks))
	for _, leak := range leaks {
		findings = append(findings, schemas.NormalizedFinding{
			ID:       uuid.New().String(),
			Tool:     ToolGitleaks,
			Category: schemas.CategorySecrets,
			Severity: mapGitleaksSeverity(leak),
			RuleID:   leak.RuleID,
			Title:    leak.Description,
			File:     leak.File,
			Line:     leak.StartLine,
			// Exposed credentials are CWE-798 regardless of the rule.
			CWE:         "CWE-798",
			Message:     leak.Description,
			Fingerprint: schemas.ComputeFingerprint(ToolGitleaks, leak.RuleID, leak.File, leak.StartLine),
		})
	}
	return findings, nil
}

// mapGitleaksSeverity promotes high-entropy matches and matches of the
// high-risk rule allowlist to critical; everything else a secret scanner
// reports is still at least high.
func mapGitleaksSeverity(leak gitleaksLeak) schemas.Severity {
	if leak.Entropy > entropyThreshold {
		return schemas.SeverityCritical
	}
	if _, ok := highRiskSecretRules[leak.RuleID]; ok {
		return schemas.SeverityCritical
	}
	return schemas.SeverityHigh
}
