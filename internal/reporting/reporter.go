// Package reporting renders a completed scan into the supported output
// formats: human-readable JSON, SARIF 2.1.0 for code-scanning uploads, and
// JUnit XML for CI test-report panels.
package reporting

import (
	"fmt"
	"io"
	"os"

	"github.com/halcyonsec/scangate/api/schemas"
)

// Report is the renderable view of one finished scan.
type Report struct {
	Payload  *schemas.ScanPayload
	Mappings []schemas.ComplianceCategoryMapping
	Decision schemas.GateDecision
}

// Reporter writes a single report in one format.
type Reporter interface {
	// Write renders the report to the underlying writer.
	Write(report *Report) error
	// Close finalizes the report and closes any underlying resources.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for the given format. An empty outputPath (or
// "stdout") writes to standard output.
func New(format, outputPath, toolVersion string) (Reporter, error) {
	var writer io.WriteCloser
	isStdOut := outputPath == "" || outputPath == "stdout"

	if isStdOut {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	cleanup := func() {
		if !isStdOut {
			writer.Close()
		}
	}

	switch format {
	case "json":
		return NewJSONReporter(writer), nil
	case "sarif":
		return NewSARIFReporter(writer, toolVersion), nil
	case "junit":
		return NewJUnitReporter(writer), nil
	default:
		cleanup()
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
