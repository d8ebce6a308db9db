package reporting

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/halcyonsec/scangate/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonReport is the top-level document the JSON reporter emits.
type jsonReport struct {
	Metadata   schemas.ScanMetadata           `json:"metadata"`
	Summary    schemas.ScanSummary            `json:"summary"`
	Gate       schemas.GateDecision           `json:"gate"`
	Findings   []schemas.NormalizedFinding    `json:"findings"`
	Compliance map[string]map[string][]string `json:"compliance"` // framework -> category -> finding ids.
}

// JSONReporter writes the full scan result as one indented JSON document.
type JSONReporter struct {
	writer io.WriteCloser
}

// NewJSONReporter creates a reporter that writes indented JSON.
func NewJSONReporter(writer io.WriteCloser) *JSONReporter {
	return &JSONReporter{writer: writer}
}

func (r *JSONReporter) Write(report *Report) error {
	doc := jsonReport{
		Metadata:   report.Payload.Metadata,
		Summary:    report.Payload.Summary,
		Gate:       report.Decision,
		Findings:   report.Payload.Findings,
		Compliance: groupMappings(report.Mappings),
	}
	if doc.Findings == nil {
		doc.Findings = []schemas.NormalizedFinding{}
	}

	enc := json.NewEncoder(r.writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

func (r *JSONReporter) Close() error {
	return r.writer.Close()
}

// groupMappings inverts the flat mapping list into framework -> category ->
// finding ids for readable output.
func groupMappings(mappings []schemas.ComplianceCategoryMapping) map[string]map[string][]string {
	grouped := make(map[string]map[string][]string)
	for _, m := range mappings {
		fw := string(m.Framework)
		if grouped[fw] == nil {
			grouped[fw] = make(map[string][]string)
		}
		grouped[fw][m.Category] = append(grouped[fw][m.Category], m.FindingID)
	}
	return grouped
}
