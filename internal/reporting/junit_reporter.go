package reporting

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/beevik/etree"

	"github.com/halcyonsec/scangate/api/schemas"
)

// JUnitReporter renders the scan as JUnit XML: one testsuite per tool, one
// failed testcase per finding, so CI test panels surface findings without a
// dedicated security viewer. The gate decision gets its own suite.
type JUnitReporter struct {
	writer io.WriteCloser
}

// NewJUnitReporter creates a reporter that writes JUnit XML.
func NewJUnitReporter(writer io.WriteCloser) *JUnitReporter {
	return &JUnitReporter{writer: writer}
}

func (r *JUnitReporter) Write(report *Report) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	suites := doc.CreateElement("testsuites")
	suites.CreateAttr("name", "scangate")
	suites.CreateAttr("tests", strconv.Itoa(report.Payload.Summary.Total))
	suites.CreateAttr("failures", strconv.Itoa(report.Payload.Summary.Total))

	byTool := make(map[string][]schemas.NormalizedFinding)
	for _, f := range report.Payload.Findings {
		byTool[f.Tool] = append(byTool[f.Tool], f)
	}

	tools := make([]string, 0, len(byTool))
	for tool := range byTool {
		tools = append(tools, tool)
	}
	sort.Strings(tools)

	for _, tool := range tools {
		findings := byTool[tool]
		suite := suites.CreateElement("testsuite")
		suite.CreateAttr("name", tool)
		suite.CreateAttr("tests", strconv.Itoa(len(findings)))
		suite.CreateAttr("failures", strconv.Itoa(len(findings)))

		for _, f := range findings {
			tc := suite.CreateElement("testcase")
			tc.CreateAttr("name", f.RuleID)
			tc.CreateAttr("classname", tool)

			failure := tc.CreateElement("failure")
			failure.CreateAttr("type", string(f.Severity))
			failure.CreateAttr("message", f.Title)
			failure.SetText(failureBody(f))
		}
	}

	gateSuite := suites.CreateElement("testsuite")
	gateSuite.CreateAttr("name", "security-gate")
	gateSuite.CreateAttr("tests", "1")
	gateCase := gateSuite.CreateElement("testcase")
	gateCase.CreateAttr("name", "policy-evaluation")
	gateCase.CreateAttr("classname", "security-gate")
	if report.Decision.Status == schemas.GateFailed {
		gateSuite.CreateAttr("failures", "1")
		failure := gateCase.CreateElement("failure")
		failure.CreateAttr("type", "gate")
		failure.CreateAttr("message", report.Decision.Reason)
	} else {
		gateSuite.CreateAttr("failures", "0")
		if report.Decision.Status == schemas.GateWarning {
			gateCase.CreateElement("system-out").SetText(report.Decision.Reason)
		}
	}

	doc.Indent(2)
	if _, err := doc.WriteTo(r.writer); err != nil {
		return fmt.Errorf("failed to write JUnit report: %w", err)
	}
	return nil
}

func (r *JUnitReporter) Close() error {
	return r.writer.Close()
}

func failureBody(f schemas.NormalizedFinding) string {
	body := f.Message
	if body == "" {
		body = f.Title
	}
	if f.File != "" {
		body = fmt.Sprintf("%s\n\nat %s:%d", body, f.File, f.Line)
	}
	if f.CWE != "" {
		body += "\n" + f.CWE
	}
	return body
}
