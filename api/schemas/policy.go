package schemas

// -- Security Gate Schemas --

// GateStatus is the outcome of a policy gate evaluation.
type GateStatus string

const (
	GatePassed  GateStatus = "passed"
	GateWarning GateStatus = "warning"
	GateFailed  GateStatus = "failed"
)

// GateDecision is the pure output of a policy evaluation. Exactly one decision
// is produced per scan; failed takes precedence over warning, warning over
// passed.
type GateDecision struct {
	Status GateStatus `json:"status"`
	// Reason is a human-readable explanation embedding the offending count and
	// threshold, written for CI/CD log readability.
	Reason string `json:"reason"`
}

// ToolPolicy is a per-tool override inside a SecurityGatePolicy. Nil fields
// mean "not configured".
type ToolPolicy struct {
	// BlockOnAny fails the gate when the tool reported any finding at all.
	BlockOnAny *bool `json:"block_on_any,omitempty" mapstructure:"block_on_any"`
	// MaxFindings fails the gate when the tool's finding count exceeds it.
	MaxFindings *int `json:"max_findings,omitempty" mapstructure:"max_findings"`
}

// SecurityGatePolicy configures the CI/CD gate. The zero value blocks nothing;
// DefaultGatePolicy returns the shipped default. A policy is immutable for the
// duration of an evaluation.
type SecurityGatePolicy struct {
	BlockOnCritical bool `json:"block_on_critical" mapstructure:"block_on_critical"`
	BlockOnHigh     bool `json:"block_on_high" mapstructure:"block_on_high"`
	BlockOnMedium   bool `json:"block_on_medium" mapstructure:"block_on_medium"`
	BlockOnLow      bool `json:"block_on_low" mapstructure:"block_on_low"`

	MaxCritical int `json:"max_critical" mapstructure:"max_critical"`
	MaxHigh     int `json:"max_high" mapstructure:"max_high"`
	MaxMedium   int `json:"max_medium" mapstructure:"max_medium"`
	MaxLow      int `json:"max_low" mapstructure:"max_low"`

	// ToolPolicies maps a tool identifier to its override. Evaluation order
	// over this map is made deterministic by sorting the keys.
	ToolPolicies map[string]ToolPolicy `json:"tool_policies,omitempty" mapstructure:"tool_policies"`
}

// DefaultGatePolicy returns the default gate configuration: block on any
// critical finding, tolerate no critical/high overflow, and treat medium/low
// overflow as advisory.
func DefaultGatePolicy() SecurityGatePolicy {
	return SecurityGatePolicy{
		BlockOnCritical: true,
		MaxCritical:     0,
		MaxHigh:         0,
		MaxMedium:       50,
		MaxLow:          100,
	}
}
