// internal/reporting/sarif_reporter.go
package reporting

import (
	"fmt"
	"io"

	"github.com/halcyonsec/scangate/api/schemas"
	"github.com/halcyonsec/scangate/internal/reporting/sarif"
)

// Constants for tool identification in the SARIF report.
const (
	ToolName     = "scangate"
	ToolInfoURI  = "https://github.com/halcyonsec/scangate"
	SARIFVersion = "2.1.0"
	SARIFSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
)

// SARIFReporter renders the scan as a single-run SARIF 2.1.0 log. Rules are
// deduplicated by the underlying tool's rule id.
type SARIFReporter struct {
	writer      io.WriteCloser
	toolVersion string
}

// NewSARIFReporter creates a reporter that writes SARIF output.
func NewSARIFReporter(writer io.WriteCloser, toolVersion string) *SARIFReporter {
	return &SARIFReporter{writer: writer, toolVersion: toolVersion}
}

func (r *SARIFReporter) Write(report *Report) error {
	run := &sarif.Run{
		Tool: &sarif.Tool{
			Driver: &sarif.ToolComponent{
				Name:           ToolName,
				Version:        pString(r.toolVersion),
				InformationURI: pString(ToolInfoURI),
				Rules:          []*sarif.ReportingDescriptor{},
			},
		},
		Results: []*sarif.Result{},
	}

	categories := categoriesByFinding(report.Mappings)
	seenRules := make(map[string]struct{})

	for _, f := range report.Payload.Findings {
		ruleID := f.Tool + "/" + f.RuleID
		if _, ok := seenRules[ruleID]; !ok {
			seenRules[ruleID] = struct{}{}
			run.Tool.Driver.Rules = append(run.Tool.Driver.Rules, r.descriptor(ruleID, f))
		}

		messageText := f.Message
		if messageText == "" {
			messageText = f.Title
		}

		result := &sarif.Result{
			RuleID:  ruleID,
			Message: &sarif.Message{Text: pString(messageText)},
			Level:   severityToLevel(f.Severity),
			Fingerprints: &sarif.PropertyBag{
				"scangate/v1": f.Fingerprint,
			},
			Properties: &sarif.PropertyBag{
				"severity": string(f.Severity),
				"category": string(f.Category),
				"tool":     f.Tool,
			},
		}
		if cats := categories[f.ID]; len(cats) > 0 {
			(*result.Properties)["compliance"] = cats
		}
		if f.File != "" {
			loc := &sarif.Location{
				PhysicalLocation: &sarif.PhysicalLocation{
					ArtifactLocation: &sarif.ArtifactLocation{URI: pString(f.File)},
				},
			}
			if f.Line > 0 {
				line := f.Line
				loc.PhysicalLocation.Region = &sarif.Region{StartLine: &line}
			}
			result.Locations = []*sarif.Location{loc}
		}
		run.Results = append(run.Results, result)
	}

	log := &sarif.Log{
		Version: SARIFVersion,
		Schema:  SARIFSchema,
		Runs:    []*sarif.Run{run},
	}

	enc := json.NewEncoder(r.writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(log); err != nil {
		return fmt.Errorf("failed to encode SARIF log: %w", err)
	}
	return nil
}

func (r *SARIFReporter) Close() error {
	return r.writer.Close()
}

func (r *SARIFReporter) descriptor(ruleID string, f schemas.NormalizedFinding) *sarif.ReportingDescriptor {
	props := sarif.PropertyBag{"tool": f.Tool}
	if f.CWE != "" {
		props["cwe"] = f.CWE
	}
	return &sarif.ReportingDescriptor{
		ID:               ruleID,
		Name:             pString(f.RuleID),
		ShortDescription: &sarif.MultiformatMessageString{Text: pString(f.Title)},
		Properties:       &props,
	}
}

// severityToLevel folds the five-step severity scale onto SARIF's three
// levels.
func severityToLevel(sev schemas.Severity) sarif.Level {
	switch sev {
	case schemas.SeverityCritical, schemas.SeverityHigh:
		return sarif.LevelError
	case schemas.SeverityMedium:
		return sarif.LevelWarning
	default:
		return sarif.LevelNote
	}
}

// categoriesByFinding collects each finding's compliance categories, prefixed
// with their framework for disambiguation.
func categoriesByFinding(mappings []schemas.ComplianceCategoryMapping) map[string][]string {
	out := make(map[string][]string)
	for _, m := range mappings {
		out[m.FindingID] = append(out[m.FindingID], string(m.Framework)+":"+m.Category)
	}
	return out
}

func pString(s string) *string {
	return &s
}
