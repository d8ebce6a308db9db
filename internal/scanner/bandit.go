package scanner

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/halcyonsec/scangate/api/schemas"
	"github.com/halcyonsec/scangate/internal/config"
)

// ToolBandit is the identifier of the Python-specific SAST adapter.
const ToolBandit = "bandit"

// BanditAdapter wraps the bandit CLI. It only applies to checkouts containing
// Python sources. Best-effort: failures never block the pipeline.
type BanditAdapter struct {
	cfg    config.ToolConfig
	run    *runner
	logger *zap.Logger
}

// NewBanditAdapter builds the bandit adapter.
func NewBanditAdapter(cfg config.ToolConfig, tempDir string, logger *zap.Logger) *BanditAdapter {
	l := logger.Named("bandit")
	return &BanditAdapter{cfg: cfg, run: newRunner(tempDir, cfg.Timeout, l), logger: l}
}

func (a *BanditAdapter) Name() string               { return ToolBandit }
func (a *BanditAdapter) Category() schemas.Category { return schemas.CategorySAST }

func (a *BanditAdapter) Scan(ctx context.Context, repoPath string) ([]schemas.NormalizedFinding, error) {
	if !hasFileWithExt(repoPath, ".py") {
		return nil, nil
	}

	reportPath := a.run.reportPath(ToolBandit)
	args := []string{"-r", ".", "-f", "json", "-o", reportPath, "--quiet"}

	outcome := a.run.execute(ctx, ToolBandit, a.cfg.Binary, args, repoPath, reportPath)
	switch outcome.State {
	case StateNotAvailable, StateNoFindings:
		return nil, nil
	case StateExecutionError:
		a.logger.Warn("Bandit execution failed, continuing without its findings", zap.Error(outcome.Err))
		return nil, nil
	}

	findings, err := parseBanditReport(outcome.Report)
	if err != nil {
		a.logger.Warn("Bandit report unparseable, continuing without its findings", zap.Error(err))
		return nil, nil
	}
	return findings, nil
}

// -- Raw report shape --

type banditReport struct {
	Results []banditResult `json:"results"`
}

type banditResult struct {
	Filename        string `json:"filename"`
	IssueSeverity   string `json:"issue_severity"`
	IssueConfidence string `json:"issue_confidence"`
	IssueText       string `json:"issue_text"`
	TestID          string `json:"test_id"`
	TestName        string `json:"test_name"`
	LineNumber      int    `json:"line_number"`
	IssueCWE        struct {
		ID int `json:"id"`
	} `json:"issue_cwe"`
}

func parseBanditReport(report []byte) ([]schemas.NormalizedFinding, error) {
	var parsed banditReport
	if err := json.Unmarshal(report, &parsed); err != nil {
		return nil, err
	}

	findings := make([]schemas.NormalizedFinding, 0, len(parsed.Results))
	for _, res := range parsed.Results {
		var cwe string
		if res.IssueCWE.ID > 0 {
			cwe = fmt.Sprintf("CWE-%d", res.IssueCWE.ID)
		}
		findings = append(findings, schemas.NormalizedFinding{
			ID:          uuid.New().String(),
			Tool:        ToolBandit,
			Category:    schemas.CategorySAST,
			Severity:    mapBanditSeverity(res.IssueSeverity, res.IssueConfidence),
			RuleID:      res.TestID,
			Title:       res.TestName,
			File:        res.Filename,
			Line:        res.LineNumber,
			CWE:         cwe,
			Message:     res.IssueText,
			Fingerprint: schemas.ComputeFingerprint(ToolBandit, res.TestID, res.Filename, res.LineNumber),
		})
	}
	return findings, nil
}

// mapBanditSeverity combines bandit's severity and confidence into one
// canonical level. High confidence escalates a finding one step; low and
// medium confidence leave it at, or below, its base severity.
//
//	(high, high)   -> critical
//	(high, *)      -> high
//	(medium, high) -> high
//	(medium, *)    -> medium
//	(low, high)    -> medium
//	anything else  -> low
func mapBanditSeverity(severity, confidence string) schemas.Severity {
	sev := strings.ToLower(severity)
	highConf := strings.EqualFold(confidence, "high")

	switch sev {
	case "high":
		if highConf {
			return schemas.SeverityCritical
		}
		return schemas.SeverityHigh
	case "medium":
		if highConf {
			return schemas.SeverityHigh
		}
		return schemas.SeverityMedium
	case "low":
		if highConf {
			return schemas.SeverityMedium
		}
		return schemas.SeverityLow
	default:
		return schemas.SeverityLow
	}
}
