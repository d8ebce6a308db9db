package schemas

import "time"

// -- Scan Schemas --

// ScanStatus tracks the lifecycle of a scan run.
type ScanStatus string

const (
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	// ScanStatusFailed marks a fatal orchestrator error. This is distinct from
	// a failed gate decision: a completed scan can still fail the gate.
	ScanStatusFailed ScanStatus = "failed"
)

// ScanMetadata carries the provenance of a single scan run.
type ScanMetadata struct {
	ScanID      string     `json:"scan_id"`
	Repository  string     `json:"repository"` // The source reference as given by the caller.
	Branch      string     `json:"branch,omitempty"`
	Commit      string     `json:"commit,omitempty"`
	TriggeredBy string     `json:"triggered_by"` // e.g. "schedule:<id>", "cli", "api".
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  time.Time  `json:"finished_at"`
	Status      ScanStatus `json:"status"`
}

// ScanSummary aggregates counts over a set of findings. It is derived data,
// recomputed whenever the findings set changes, and never persisted
// independently of its findings.
type ScanSummary struct {
	Total      int              `json:"total"`
	BySeverity map[Severity]int `json:"by_severity"`
	ByTool     map[string]int   `json:"by_tool"`
}

// NewScanSummary builds a summary in a single pass over the findings.
// The invariant Total == len(findings) == sum(BySeverity) holds by
// construction.
func NewScanSummary(findings []NormalizedFinding) ScanSummary {
	s := ScanSummary{
		BySeverity: make(map[Severity]int, len(AllSeverities)),
		ByTool:     make(map[string]int),
	}
	for _, sev := range AllSeverities {
		s.BySeverity[sev] = 0
	}
	for _, f := range findings {
		s.Total++
		s.BySeverity[f.Severity]++
		s.ByTool[f.Tool]++
	}
	return s
}

// Count returns the number of findings at the given severity.
func (s ScanSummary) Count(sev Severity) int {
	return s.BySeverity[sev]
}

// ScanPayload is the complete result of one orchestrated scan, handed to the
// persistence and notification collaborators.
type ScanPayload struct {
	Metadata ScanMetadata        `json:"metadata"`
	Summary  ScanSummary         `json:"summary"`
	Findings []NormalizedFinding `json:"findings"`
}
