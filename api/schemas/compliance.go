package schemas

// -- Compliance Schemas --

// Framework identifies a compliance taxonomy findings are mapped onto.
type Framework string

const (
	FrameworkOWASPTop10 Framework = "owasp-top-10"
	FrameworkCWETop25   Framework = "cwe-top-25"
)

// ComplianceCategoryMapping links one finding to one category within one
// framework. The relation is many-to-many: a finding may map to several
// categories of the same framework (e.g. both a CWE-derived and a
// rule-pattern-derived match). Duplicate (finding, framework, category)
// triples are suppressed at mapping time.
type ComplianceCategoryMapping struct {
	FindingID string    `json:"finding_id"`
	Framework Framework `json:"framework"`
	Category  string    `json:"category"`
}
