// Package gate converts a scan summary and a policy into a CI/CD pass/warn/
// fail decision. Evaluation is a pure, total function: any summary/policy
// combination yields exactly one decision.
package gate

import (
	"fmt"
	"sort"

	"github.com/halcyonsec/scangate/api/schemas"
)

// Evaluate applies the policy to the summary and returns the gate decision.
//
// The evaluation order is a strict priority ladder and the first matching
// branch wins:
//
//  1. Block flags, critical through low: any finding at a blocked severity
//     fails the gate.
//  2. Hard thresholds: critical or high counts above their maximum fail.
//  3. Soft thresholds: medium or low counts above their maximum only warn.
//  4. Per-tool overrides: blockOnAny, then maxFindings, both fail.
//  5. Otherwise the gate passes.
//
// Every branch returns immediately with a reason embedding the offending
// count and threshold, so a CI log alone explains the decision.
func Evaluate(summary schemas.ScanSummary, policy schemas.SecurityGatePolicy) schemas.GateDecision {
	// 1. Block flags, in severity order.
	blockFlags := []struct {
		sev     schemas.Severity
		blocked bool
	}{
		{schemas.SeverityCritical, policy.BlockOnCritical},
		{schemas.SeverityHigh, policy.BlockOnHigh},
		{schemas.SeverityMedium, policy.BlockOnMedium},
		{schemas.SeverityLow, policy.BlockOnLow},
	}
	for _, bf := range blockFlags {
		if bf.blocked {
			if count := summary.Count(bf.sev); count > 0 {
				return schemas.GateDecision{
					Status: schemas.GateFailed,
					Reason: fmt.Sprintf("blocked: %d %s finding(s) present and block_on_%s is enabled", count, bf.sev, bf.sev),
				}
			}
		}
	}

	// 2. Hard thresholds.
	if count := summary.Count(schemas.SeverityCritical); count > policy.MaxCritical {
		return schemas.GateDecision{
			Status: schemas.GateFailed,
			Reason: fmt.Sprintf("%d critical finding(s) exceed the maximum of %d", count, policy.MaxCritical),
		}
	}
	if count := summary.Count(schemas.SeverityHigh); count > policy.MaxHigh {
		return schemas.GateDecision{
			Status: schemas.GateFailed,
			Reason: fmt.Sprintf("%d high finding(s) exceed the maximum of %d", count, policy.MaxHigh),
		}
	}

	// 3. Soft thresholds: medium/low overflow is advisory only.
	if count := summary.Count(schemas.SeverityMedium); count > policy.MaxMedium {
		return schemas.GateDecision{
			Status: schemas.GateWarning,
			Reason: fmt.Sprintf("%d medium finding(s) exceed the advisory maximum of %d", count, policy.MaxMedium),
		}
	}
	if count := summary.Count(schemas.SeverityLow); count > policy.MaxLow {
		return schemas.GateDecision{
			Status: schemas.GateWarning,
			Reason: fmt.Sprintf("%d low finding(s) exceed the advisory maximum of %d", count, policy.MaxLow),
		}
	}

	// 4. Per-tool overrides, in sorted tool order for determinism.
	tools := make([]string, 0, len(policy.ToolPolicies))
	for tool := range policy.ToolPolicies {
		tools = append(tools, tool)
	}
	sort.Strings(tools)
	for _, tool := range tools {
		tp := policy.ToolPolicies[tool]
		count := summary.ByTool[tool]
		if tp.BlockOnAny != nil && *tp.BlockOnAny && count > 0 {
			return schemas.GateDecision{
				Status: schemas.GateFailed,
				Reason: fmt.Sprintf("blocked: %d finding(s) from %s and block_on_any is enabled for that tool", count, tool),
			}
		}
		if tp.MaxFindings != nil && count > *tp.MaxFindings {
			return schemas.GateDecision{
				Status: schemas.GateFailed,
				Reason: fmt.Sprintf("%d finding(s) from %s exceed that tool's maximum of %d", count, tool, *tp.MaxFindings),
			}
		}
	}

	// 5. Default.
	return schemas.GateDecision{
		Status: schemas.GatePassed,
		Reason: fmt.Sprintf("all %d finding(s) are within policy thresholds", summary.Total),
	}
}
