// Package compliance maps normalized findings onto compliance-framework
// categories. The mapping is a pure function of (cwe, tool, ruleID): no
// state, deterministic output, and never an empty result.
package compliance

import (
	"regexp"
	"strings"

	"github.com/halcyonsec/scangate/api/schemas"
)

// OWASP Top 10 (2021) category identifiers.
const (
	OWASPBrokenAccessControl = "A01:2021 Broken Access Control"
	OWASPCryptoFailures      = "A02:2021 Cryptographic Failures"
	OWASPInjection           = "A03:2021 Injection"
	OWASPInsecureDesign      = "A04:2021 Insecure Design"
	OWASPMisconfiguration    = "A05:2021 Security Misconfiguration"
	OWASPVulnComponents      = "A06:2021 Vulnerable and Outdated Components"
	OWASPAuthFailures        = "A07:2021 Identification and Authentication Failures"
	OWASPIntegrityFailures   = "A08:2021 Software and Data Integrity Failures"
	OWASPLoggingFailures     = "A09:2021 Security Logging and Monitoring Failures"
	OWASPSSRF                = "A10:2021 Server-Side Request Forgery"
)

// cweToOWASP is the static CWE -> OWASP Top 10 table. Keys are normalized
// "CWE-<n>" strings.
var cweToOWASP = map[string]string{
	// A01 Broken Access Control.
	"CWE-22": OWASPBrokenAccessControl, "CWE-23": OWASPBrokenAccessControl,
	"CWE-200": OWASPBrokenAccessControl, "CWE-284": OWASPBrokenAccessControl,
	"CWE-285": OWASPBrokenAccessControl, "CWE-352": OWASPBrokenAccessControl,
	"CWE-425": OWASPBrokenAccessControl, "CWE-601": OWASPBrokenAccessControl,
	"CWE-639": OWASPBrokenAccessControl, "CWE-862": OWASPBrokenAccessControl,
	"CWE-863": OWASPBrokenAccessControl, "CWE-922": OWASPBrokenAccessControl,

	// A02 Cryptographic Failures.
	"CWE-295": OWASPCryptoFailures, "CWE-310": OWASPCryptoFailures,
	"CWE-319": OWASPCryptoFailures, "CWE-321": OWASPCryptoFailures,
	"CWE-326": OWASPCryptoFailures, "CWE-327": OWASPCryptoFailures,
	"CWE-328": OWASPCryptoFailures, "CWE-330": OWASPCryptoFailures,
	"CWE-338": OWASPCryptoFailures, "CWE-347": OWASPCryptoFailures,

	// A03 Injection.
	"CWE-20": OWASPInjection, "CWE-74": OWASPInjection,
	"CWE-77": OWASPInjection, "CWE-78": OWASPInjection,
	"CWE-79": OWASPInjection, "CWE-88": OWASPInjection,
	"CWE-89": OWASPInjection, "CWE-90": OWASPInjection,
	"CWE-91": OWASPInjection, "CWE-94": OWASPInjection,
	"CWE-95": OWASPInjection, "CWE-917": OWASPInjection,

	// A05 Security Misconfiguration.
	"CWE-16": OWASPMisconfiguration, "CWE-260": OWASPMisconfiguration,
	"CWE-611": OWASPMisconfiguration, "CWE-614": OWASPMisconfiguration,
	"CWE-756": OWASPMisconfiguration, "CWE-776": OWASPMisconfiguration,
	"CWE-1004": OWASPMisconfiguration,

	// A06 Vulnerable and Outdated Components.
	"CWE-937": OWASPVulnComponents, "CWE-1035": OWASPVulnComponents,
	"CWE-1104": OWASPVulnComponents,

	// A07 Identification and Authentication Failures.
	"CWE-259": OWASPAuthFailures, "CWE-287": OWASPAuthFailures,
	"CWE-290": OWASPAuthFailures, "CWE-306": OWASPAuthFailures,
	"CWE-307": OWASPAuthFailures, "CWE-384": OWASPAuthFailures,
	"CWE-521": OWASPAuthFailures, "CWE-613": OWASPAuthFailures,
	"CWE-798": OWASPAuthFailures,

	// A08 Software and Data Integrity Failures.
	"CWE-345": OWASPIntegrityFailures, "CWE-426": OWASPIntegrityFailures,
	"CWE-494": OWASPIntegrityFailures, "CWE-502": OWASPIntegrityFailures,
	"CWE-829": OWASPIntegrityFailures, "CWE-915": OWASPIntegrityFailures,

	// A09 Security Logging and Monitoring Failures.
	"CWE-117": OWASPLoggingFailures, "CWE-223": OWASPLoggingFailures,
	"CWE-532": OWASPLoggingFailures, "CWE-778": OWASPLoggingFailures,

	// A10 SSRF.
	"CWE-918": OWASPSSRF,
}

// cweTop25 is the CWE Top 25 (2023) membership set. For this framework the
// category is the CWE identifier itself.
var cweTop25 = map[string]struct{}{
	"CWE-787": {}, "CWE-79": {}, "CWE-89": {}, "CWE-416": {}, "CWE-78": {},
	"CWE-20": {}, "CWE-125": {}, "CWE-22": {}, "CWE-352": {}, "CWE-434": {},
	"CWE-862": {}, "CWE-476": {}, "CWE-287": {}, "CWE-190": {}, "CWE-502": {},
	"CWE-77": {}, "CWE-119": {}, "CWE-798": {}, "CWE-918": {}, "CWE-306": {},
	"CWE-362": {}, "CWE-269": {}, "CWE-94": {}, "CWE-863": {}, "CWE-276": {},
}

// rulePattern matches a tool's rule identifier against a category. Patterns
// are case-insensitive regular expressions; plain substrings work unchanged.
type rulePattern struct {
	tool     string
	pattern  *regexp.Regexp
	category string
}

func rp(tool, pattern, category string) rulePattern {
	return rulePattern{tool: tool, pattern: regexp.MustCompile("(?i)" + pattern), category: category}
}

// owaspRulePatterns maps tool-specific rule ids onto OWASP categories when no
// CWE is available or the rule is more specific than its CWE. Order matters
// for output determinism, not correctness.
var owaspRulePatterns = []rulePattern{
	rp("semgrep", `sql-?injection|sqli`, OWASPInjection),
	rp("semgrep", `xss|cross-site-scripting`, OWASPInjection),
	rp("semgrep", `command-injection|shell-injection`, OWASPInjection),
	rp("semgrep", `path-?traversal`, OWASPBrokenAccessControl),
	rp("semgrep", `csrf`, OWASPBrokenAccessControl),
	rp("semgrep", `open-redirect`, OWASPBrokenAccessControl),
	rp("semgrep", `ssrf`, OWASPSSRF),
	rp("semgrep", `crypto|cipher|md5|sha1|weak-hash`, OWASPCryptoFailures),
	rp("semgrep", `deserial`, OWASPIntegrityFailures),
	rp("semgrep", `jwt|session|auth`, OWASPAuthFailures),
	rp("semgrep", `xxe|xml-external`, OWASPMisconfiguration),

	rp("gitleaks", `.`, OWASPAuthFailures),

	rp("trivy", `^AVD-`, OWASPMisconfiguration),
	rp("trivy", `^CVE-|^GHSA-`, OWASPVulnComponents),

	rp("npm-audit", `.`, OWASPVulnComponents),

	rp("bandit", `^B60[0-9]`, OWASPInjection),       // shell/sql injection tests.
	rp("bandit", `^B10[5-7]`, OWASPAuthFailures),    // hardcoded passwords.
	rp("bandit", `^B30[1-5]|^B324`, OWASPCryptoFailures),
	rp("bandit", `^B501|^B502|^B503`, OWASPCryptoFailures), // TLS verification.
}

// Fallback categories guaranteeing a never-empty mapping. A finding that
// matches neither the CWE table nor any rule pattern is classified as a
// design weakness.
const (
	owaspFallback    = OWASPInsecureDesign
	cweTop25Fallback = "CWE-Other"
)

// MapToFramework maps one finding's attributes onto the given framework's
// categories. The result is deterministic, duplicate-free, and never empty.
func MapToFramework(framework schemas.Framework, cwe, tool, ruleID string) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(cat string) {
		if _, ok := seen[cat]; !ok {
			seen[cat] = struct{}{}
			out = append(out, cat)
		}
	}

	normCWE := strings.ToUpper(strings.TrimSpace(cwe))

	switch framework {
	case schemas.FrameworkOWASPTop10:
		if cat, ok := cweToOWASP[normCWE]; ok {
			add(cat)
		}
		if tool != "" && ruleID != "" {
			for _, p := range owaspRulePatterns {
				if p.tool == tool && p.pattern.MatchString(ruleID) {
					add(p.category)
				}
			}
		}
		if len(out) == 0 {
			add(owaspFallback)
		}
	case schemas.FrameworkCWETop25:
		if _, ok := cweTop25[normCWE]; ok {
			add(normCWE)
		}
		if len(out) == 0 {
			add(cweTop25Fallback)
		}
	default:
		// Unknown frameworks still honor the never-empty property.
		add(owaspFallback)
	}

	return out
}

// MapFinding maps a finding onto every given framework, suppressing duplicate
// (finding, framework, category) triples.
func MapFinding(f schemas.NormalizedFinding, frameworks ...schemas.Framework) []schemas.ComplianceCategoryMapping {
	var mappings []schemas.ComplianceCategoryMapping
	for _, fw := range frameworks {
		for _, cat := range MapToFramework(fw, f.CWE, f.Tool, f.RuleID) {
			mappings = append(mappings, schemas.ComplianceCategoryMapping{
				FindingID: f.ID,
				Framework: fw,
				Category:  cat,
			})
		}
	}
	return mappings
}

// MapAll maps every finding in a scan onto the default frameworks.
func MapAll(findings []schemas.NormalizedFinding) []schemas.ComplianceCategoryMapping {
	var mappings []schemas.ComplianceCategoryMapping
	for _, f := range findings {
		mappings = append(mappings, MapFinding(f, schemas.FrameworkOWASPTop10, schemas.FrameworkCWETop25)...)
	}
	return mappings
}
