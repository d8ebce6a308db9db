// internal/scanner/semgrep.go
package scanner

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/halcyonsec/scangate/api/schemas"
	"github.com/halcyonsec/scangate/internal/config"
)

// ToolSemgrep is the identifier the primary SAST adapter records on findings.
const ToolSemgrep = "semgrep"

// SemgrepAdapter wraps the semgrep CLI. It is the primary SAST tool: a hard
// execution or parse failure propagates to the caller instead of being
// swallowed, because its absence would silently hide the SAST category.
type SemgrepAdapter struct {
	cfg    config.ToolConfig
	run    *runner
	logger *zap.Logger
}

// NewSemgrepAdapter builds the semgrep adapter.
func NewSemgrepAdapter(cfg config.ToolConfig, tempDir string, logger *zap.Logger) *SemgrepAdapter {
	l := logger.Named("semgrep")
	return &SemgrepAdapter{cfg: cfg, run: newRunner(tempDir, cfg.Timeout, l), logger: l}
}

func (a *SemgrepAdapter) Name() string              { return ToolSemgrep }
func (a *SemgrepAdapter) Category() schemas.Category { return schemas.CategorySAST }

// Scan runs semgrep against the checkout and normalizes its report.
func (a *SemgrepAdapter) Scan(ctx context.Context, repoPath string) ([]schemas.NormalizedFinding, error) {
	reportPath := a.run.reportPath(ToolSemgrep)
	args := []string{"scan", "--config", "auto", "--json", "--output", reportPath, "--quiet", "."}

	outcome := a.run.execute(ctx, ToolSemgrep, a.cfg.Binary, args, repoPath, reportPath)
	switch outcome.State {
	case StateNotAvailable, StateNoFindings:
		return nil, nil
	case StateExecutionError:
		return nil, outcome.Err
	}

	findings, err := parseSemgrepReport(outcome.Report)
	if err != nil {
		return nil, fmt.Errorf("%w: semgrep: %v", ErrParseFailed, err)
	}
	return findings, nil
}

// -- Raw report shape --

type semgrepReport struct {
	Results []semgrepResult `json:"results"`
}

type semgrepResult struct {
	CheckID string `json:"check_id"`
	Path    string `json:"path"`
	Start   struct {
		Line int `json:"line"`
	} `json:"start"`
	Extra semgrepExtra `json:"extra"`
}

type semgrepExtra struct {
	Severity string          `json:"severity"`
	Message  string          `json:"message"`
	Metadata semgrepMetadata `json:"metadata"`
}

type semgrepMetadata struct {
	// SecuritySeverity is a CVSS-style score string, e.g. "8.6", attached by
	// security rulesets.
	SecuritySeverity string `json:"security-severity"`
	// CWE is a string or an array of strings depending on the ruleset.
	CWE jsoniter.RawMessage `json:"cwe"`
}

func parseSemgrepReport(report []byte) ([]schemas.NormalizedFinding, error) {
	var parsed semgrepReport
	if err := json.Unmarshal(report, &parsed); err != nil {
		return nil, err
	}

	findings := make([]schemas.NormalizedFinding, 0, len(parsed.Results))
	for _, res := range parsed.Results {
		f := schemas.NormalizedFinding{
			ID:          uuid.New().String(),
			Tool:        ToolSemgrep,
			Category:    schemas.CategorySAST,
			Severity:    mapSemgrepSeverity(res.Extra),
			RuleID:      res.CheckID,
			Title:       semgrepTitle(res.CheckID),
			File:        res.Path,
			Line:        res.Start.Line,
			CWE:         firstCWE(res.Extra.Metadata.CWE),
			Message:     res.Extra.Message,
			Fingerprint: schemas.ComputeFingerprint(ToolSemgrep, res.CheckID, res.Path, res.Start.Line),
		}
		findings = append(findings, f)
	}
	return findings, nil
}

// mapSemgrepSeverity prefers the security-severity metadata score over the
// lint-level severity: ERROR-level findings without a score are still only
// "high" because semgrep's ERROR conflates correctness and security.
func mapSemgrepSeverity(extra semgrepExtra) schemas.Severity {
	if score, err := strconv.ParseFloat(extra.Metadata.SecuritySeverity, 64); err == nil {
		switch {
		case score >= 9.0:
			return schemas.SeverityCritical
		case score >= 7.0:
			return schemas.SeverityHigh
		case score >= 4.0:
			return schemas.SeverityMedium
		default:
			return schemas.SeverityLow
		}
	}
	switch strings.ToUpper(extra.Severity) {
	case "ERROR":
		return schemas.SeverityHigh
	case "WARNING":
		return schemas.SeverityMedium
	default:
		return schemas.SeverityLow
	}
}

// semgrepTitle shortens a registry rule id like
// "javascript.express.security.injection.tainted-sql-string" to its last
// segment for display.
func semgrepTitle(checkID string) string {
	if i := strings.LastIndex(checkID, "."); i >= 0 && i+1 < len(checkID) {
		return checkID[i+1:]
	}
	return checkID
}

// firstCWE extracts a normalized "CWE-<n>" identifier from semgrep's cwe
// metadata, which may be a single string or an array, each entry shaped like
// "CWE-798: Use of Hard-coded Credentials".
func firstCWE(raw jsoniter.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return normalizeCWE(one)
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return normalizeCWE(many[0])
	}
	return ""
}

// normalizeCWE trims a CWE entry down to its "CWE-<n>" prefix, uppercased.
func normalizeCWE(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}
	return strings.ToUpper(strings.TrimSpace(s))
}
