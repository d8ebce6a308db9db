package scanner

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/halcyonsec/scangate/api/schemas"
	"github.com/halcyonsec/scangate/internal/config"
)

// ToolNPMAudit is the identifier of the npm dependency audit adapter.
const ToolNPMAudit = "npm-audit"

// NPMAuditAdapter wraps `npm audit --json`. It only applies to checkouts with
// a package.json; on anything else it reports "not available" without running
// npm at all. Best-effort: failures never block the pipeline.
type NPMAuditAdapter struct {
	cfg    config.ToolConfig
	run    *runner
	logger *zap.Logger
}

// NewNPMAuditAdapter builds the npm audit adapter.
func NewNPMAuditAdapter(cfg config.ToolConfig, tempDir string, logger *zap.Logger) *NPMAuditAdapter {
	l := logger.Named("npm-audit")
	return &NPMAuditAdapter{cfg: cfg, run: newRunner(tempDir, cfg.Timeout, l), logger: l}
}

func (a *NPMAuditAdapter) Name() string               { return ToolNPMAudit }
func (a *NPMAuditAdapter) Category() schemas.Category { return schemas.CategorySCA }

func (a *NPMAuditAdapter) Scan(ctx context.Context, repoPath string) ([]schemas.NormalizedFinding, error) {
	if !fileExists(filepath.Join(repoPath, "package.json")) {
		return nil, nil
	}

	// npm audit streams its report to stdout; the runner captures it under
	// the same temp-path discipline as file-writing tools.
	reportPath := a.run.reportPath(ToolNPMAudit)
	args := []string{"audit", "--json"}

	outcome := a.run.execute(ctx, ToolNPMAudit, a.cfg.Binary, args, repoPath, reportPath)
	switch outcome.State {
	case StateNotAvailable, StateNoFindings:
		return nil, nil
	case StateExecutionError:
		a.logger.Warn("npm audit execution failed, continuing without its findings", zap.Error(outcome.Err))
		return nil, nil
	}

	findings, err := a.parseReport(outcome.Report)
	if err != nil {
		a.logger.Warn("npm audit report unparseable, continuing without its findings", zap.Error(err))
		return nil, nil
	}
	return findings, nil
}

// -- Raw report shape (npm v7+ audit format) --

type npmAuditReport struct {
	Vulnerabilities map[string]npmVulnerability `json:"vulnerabilities"`
}

type npmVulnerability struct {
	Name     string `json:"name"`
	Severity string `json:"severity"`
	Range    string `json:"range"`
	// Via mixes advisory objects and plain package-name strings.
	Via []jsoniter.RawMessage `json:"via"`
}

type npmAdvisory struct {
	Title string   `json:"title"`
	URL   string   `json:"url"`
	CWE   []string `json:"cwe"`
	CVSS  struct {
		Score float64 `json:"score"`
	} `json:"cvss"`
}

func (a *NPMAuditAdapter) parseReport(report []byte) ([]schemas.NormalizedFinding, error) {
	var parsed npmAuditReport
	if err := json.Unmarshal(report, &parsed); err != nil {
		return nil, err
	}

	// Map iteration order is random; sort package names so repeated scans of
	// the same tree produce findings in a stable order.
	names := make([]string, 0, len(parsed.Vulnerabilities))
	for name := range parsed.Vulnerabilities {
		names = append(names, name)
	}
	sort.Strings(names)

	var findings []schemas.NormalizedFinding
	for _, name := range names {
		vuln := parsed.Vulnerabilities[name]
		adv := firstAdvisory(vuln.Via)

		title := adv.Title
		if title == "" {
			title = fmt.Sprintf("Vulnerable dependency %s@%s", vuln.Name, vuln.Range)
		}
		var cwe string
		if len(adv.CWE) > 0 {
			cwe = normalizeCWE(adv.CWE[0])
		}

		findings = append(findings, schemas.NormalizedFinding{
			ID:          uuid.New().String(),
			Tool:        ToolNPMAudit,
			Category:    schemas.CategorySCA,
			Severity:    mapNPMSeverity(vuln.Severity),
			RuleID:      vuln.Name,
			Title:       title,
			File:        "package.json",
			CWE:         cwe,
			CVSS:        adv.CVSS.Score,
			Message:     fmt.Sprintf("%s (%s) %s", vuln.Name, vuln.Range, adv.URL),
			Fingerprint: schemas.ComputeFingerprint(ToolNPMAudit, vuln.Name, "package.json", 0),
		})
	}
	return findings, nil
}

// firstAdvisory returns the first structured advisory in the via chain.
// String entries are transitive package references, not advisories.
func firstAdvisory(via []jsoniter.RawMessage) npmAdvisory {
	for _, raw := range via {
		var adv npmAdvisory
		if err := json.Unmarshal(raw, &adv); err == nil && adv.Title != "" {
			return adv
		}
	}
	return npmAdvisory{}
}

// mapNPMSeverity maps npm's scale onto the canonical one; npm's "moderate"
// becomes medium, anything unknown becomes info.
func mapNPMSeverity(raw string) schemas.Severity {
	switch strings.ToLower(raw) {
	case "critical":
		return schemas.SeverityCritical
	case "high":
		return schemas.SeverityHigh
	case "moderate":
		return schemas.SeverityMedium
	case "low":
		return schemas.SeverityLow
	default:
		return schemas.SeverityInfo
	}
}
