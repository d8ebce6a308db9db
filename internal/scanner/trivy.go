// internal/scanner/trivy.go
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

// ToolTrivy is the identifier of the dependency/IaC scanner adapter.
const ToolTrivy = "trivy"

// TrivyAdapter wraps `trivy fs`. It covers two categories in one run:
// dependency vulnerabilities (sca) and IaC misconfigurations (iac). It is a
// best-effort tool: execution and parse failures are logged and yield an
// empty result.
type TrivyAdapter struct {
	cfg    config.ToolConfig
	run    *runner
	logger *zap.Logger
}

// NewTrivyAdapter builds the trivy adapter.
func NewTrivyAdapter(cfg config.ToolConfig, tempDir string, logger *zap.Logger) *TrivyAdapter {
	l := logger.Named("trivy")
	return &TrivyAdapter{cfg: cfg, run: newRunner(tempDir, cfg.Timeout, l), logger: l}
}

func (a *TrivyAdapter) Name() string               { return ToolTrivy }
func (a *TrivyAdapter) Category() schemas.Category { return schemas.CategorySCA }

func (a *TrivyAdapter) Scan(ctx context.Context, repoPath string) ([]schemas.NormalizedFinding, error) {
	reportPath := a.run.reportPath(ToolTrivy)
	args := []string{"fs", "--scanners", "vuln,misconfig", "--format", "json", "--output", reportPath, "."}

	outcome := a.run.execute(ctx, ToolTrivy, a.cfg.Binary, args, repoPath, reportPath)
	switch outcome.State {
	case StateNotAvailable, StateNoFindings:
		return nil, nil
	case StateExecutionError:
		a.logger.Warn("Trivy execution failed, continuing without its findings", zap.Error(outcome.Err))
		return nil, nil
	}

	findings, err := a.parseReport(outcome.Report)
	if err != nil {
		a.logger.Warn("Trivy report unparseable, continuing without its findings", zap.Error(err))
		return nil, nil
	}
	return findings, nil
}

// -- Raw report shape --

type trivyReport struct {
	Results []trivyResult `json:"Results"`
}

type trivyResult struct {
	Target            string                   `json:"Target"`
	Vulnerabilities   []trivyVulnerability     `json:"Vulnerabilities"`
	Misconfigurations []trivyMisconfiguration  `json:"Misconfigurations"`
}

type trivyVulnerability struct {
	VulnerabilityID  string   `json:"VulnerabilityID"`
	PkgName          string   `json:"PkgName"`
	InstalledVersion string   `json:"InstalledVersion"`
	Severity         string   `json:"Severity"`
	Title            string   `json:"Title"`
	Description      string   `json:"Description"`
	CweIDs           []string `json:"CweIDs"`
}

type trivyMisconfiguration struct {
	ID          string `json:"ID"`
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Severity    string `json:"Severity"`
	CauseMetadata struct {
		StartLine int `json:"StartLine"`
	} `json:"CauseMetadata"`
}

func (a *TrivyAdapter) parseReport(report []byte) ([]schemas.NormalizedFinding, error) {
	var parsed trivyReport
	if err := json.Unmarshal(report, &parsed); err != nil {
		return nil, err
	}

	var findings []schemas.NormalizedFinding
	for _, res := range parsed.Results {
		for _, v := range res.Vulnerabilities {
			title := v.Title
			if title == "" {
				title = fmt.Sprintf("%s in %s", v.VulnerabilityID, v.PkgName)
			}
			var cwe string
			if len(v.CweIDs) > 0 {
				cwe = normalizeCWE(v.CweIDs[0])
			}
			findings = append(findings, schemas.NormalizedFinding{
				ID:       uuid.New().String(),
				Tool:     ToolTrivy,
				Category: schemas.CategorySCA,
				Severity: a.mapSeverity(v.Severity, v.VulnerabilityID),
				RuleID:   v.VulnerabilityID,
				Title:    title,
				File:     res.Target,
				CWE:      cwe,
				Message: fmt.Sprintf("%s %s is affected by %s. %s",
					v.PkgName, v.InstalledVersion, v.VulnerabilityID, v.Description),
				Fingerprint: schemas.ComputeFingerprint(ToolTrivy, v.VulnerabilityID, res.Target, 0),
			})
		}
		for _, m := range res.Misconfigurations {
			findings = append(findings, schemas.NormalizedFinding{
				ID:          uuid.New().String(),
				Tool:        ToolTrivy,
				Category:    schemas.CategoryIaC,
				Severity:    a.mapSeverity(m.Severity, m.ID),
				RuleID:      m.ID,
				Title:       m.Title,
				File:        res.Target,
				Line:        m.CauseMetadata.StartLine,
				Message:     m.Description,
				Fingerprint: schemas.ComputeFingerprint(ToolTrivy, m.ID, res.Target, m.CauseMetadata.StartLine),
			})
		}
	}
	return findings, nil
}

// mapSeverity maps trivy severities case-insensitively onto the canonical
// scale. Anything unmapped (including UNKNOWN) defaults to info; that default
// can mask genuinely unknown-severity findings, so it is warn-logged rather
// than silent.
func (a *TrivyAdapter) mapSeverity(raw, ruleID string) schemas.Severity {
	switch strings.ToUpper(raw) {
	case "CRITICAL":
		return schemas.SeverityCritical
	case "HIGH":
		return schemas.SeverityHigh
	case "MEDIUM":
		return schemas.SeverityMedium
	case "LOW":
		return schemas.SeverityLow
	default:
		a.logger.Warn("Unmapped trivy severity defaulted to info",
			zap.String("severity", raw), zap.String("rule_id", ruleID))
		return schemas.SeverityInfo
	}
}
