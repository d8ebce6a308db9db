package schemas

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// -- Finding Schemas --

// Severity represents the canonical severity level of a security finding.
// The values are lowercase to align with database ENUMs.
type Severity string

// Constants defining the standard severity levels for findings.
const (
	SeverityCritical Severity = "critical" // Represents a critical vulnerability.
	SeverityHigh     Severity = "high"     // Represents a high-severity vulnerability.
	SeverityMedium   Severity = "medium"   // Represents a medium-severity vulnerability.
	SeverityLow      Severity = "low"      // Represents a low-severity vulnerability.
	SeverityInfo     Severity = "info"     // Represents an informational finding.
)

// AllSeverities lists every canonical severity in descending order of impact.
// Gate evaluation and summary rendering iterate this slice so that output
// ordering is stable.
var AllSeverities = []Severity{
	SeverityCritical,
	SeverityHigh,
	SeverityMedium,
	SeverityLow,
	SeverityInfo,
}

// Weight returns a numeric rank for a severity, higher meaning more severe.
// Unknown severities rank below info.
func (s Severity) Weight() int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// Valid reports whether the severity is one of the five canonical levels.
func (s Severity) Valid() bool {
	return s.Weight() > 0
}

func (s Severity) String() string { return string(s) }

// Category classifies the kind of security issue a finding describes.
type Category string

// Finding categories. Some tools conflate categories (e.g. trivy reports both
// dependency vulnerabilities and IaC misconfigurations), so the category is
// assigned per finding, not per tool.
const (
	CategorySAST    Category = "sast"    // Static application security testing.
	CategorySCA     Category = "sca"     // Software composition analysis.
	CategorySecrets Category = "secrets" // Credential or secret exposure.
	CategoryIaC     Category = "iac"     // Infrastructure-as-code misconfiguration.
)

// NormalizedFinding is the tool-agnostic representation of a single security
// issue. Adapters create findings once per invocation; they are never mutated
// afterwards. This struct maps directly to the `findings` table.
type NormalizedFinding struct {
	ID     string `json:"id"`      // Unique identifier assigned at creation.
	ScanID string `json:"scan_id"` // The ID of the scan that produced this finding.

	Tool     string   `json:"tool"`               // Identifier of the originating adapter.
	Category Category `json:"category,omitempty"` // Optional; see Category docs.

	Severity Severity `json:"severity"` // Canonical severity level.

	RuleID string `json:"rule_id,omitempty"` // Tool-specific rule identifier.
	Title  string `json:"title"`             // Short human-readable summary. Required.
	File   string `json:"file,omitempty"`    // File path relative to the checkout root.
	Line   int    `json:"line,omitempty"`    // 1-indexed line number, 0 when unknown.

	CWE  string  `json:"cwe,omitempty"`  // Normalized "CWE-<n>" identifier, if known.
	CVSS float64 `json:"cvss,omitempty"` // CVSS base score in [0,10], 0 when absent.

	Message string `json:"message"` // Free-text description from the tool.

	// Fingerprint is a deterministic string derived from (tool, rule, file,
	// line). It is not globally unique across tools and is used for
	// traceability, not deduplication.
	Fingerprint string `json:"fingerprint"`
}

// ComputeFingerprint derives the traceability fingerprint for a finding's
// provenance tuple. The same inputs always yield the same value.
func ComputeFingerprint(tool, ruleID, file string, line int) string {
	h := sha1.Sum([]byte(fmt.Sprintf("%s|%s|%s|%d", tool, ruleID, file, line)))
	return hex.EncodeToString(h[:])
}
