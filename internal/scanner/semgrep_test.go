package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonsec/scangate/api/schemas"
)

const semgrepSample = `{
  "results": [
    {
      "check_id": "javascript.express.security.injection.tainted-sql-string",
      "path": "app/db.js",
      "start": {"line": 42},
      "extra": {
        "severity": "ERROR",
        "message": "Detected SQL statement built from user input.",
        "metadata": {
          "security-severity": "9.8",
          "cwe": ["CWE-89: Improper Neutralization of Special Elements used in an SQL Command"]
        }
      }
    },
    {
      "check_id": "python.lang.best-practice.open-never-closed",
      "path": "scripts/load.py",
      "start": {"line": 7},
      "extra": {
        "severity": "WARNING",
        "message": "File handle is never closed.",
        "metadata": {}
      }
    }
  ]
}`

func TestParseSemgrepReport(t *testing.T) {
	findings, err := parseSemgrepReport([]byte(semgrepSample))
	require.NoError(t, err)
	require.Len(t, findings, 2)

	sqli := findings[0]
	assert.Equal(t, ToolSemgrep, sqli.Tool)
	assert.Equal(t, schemas.CategorySAST, sqli.Category)
	assert.Equal(t, schemas.SeverityCritical, sqli.Severity, "security-severity 9.8 is critical")
	assert.Equal(t, "tainted-sql-string", sqli.Title)
	assert.Equal(t, "app/db.js", sqli.File)
	assert.Equal(t, 42, sqli.Line)
	assert.Equal(t, "CWE-89", sqli.CWE)
	assert.NotEmpty(t, sqli.Fingerprint)
	assert.NotEmpty(t, sqli.ID)

	lint := findings[1]
	assert.Equal(t, schemas.SeverityMedium, lint.Severity, "WARNING without a score is medium")
	assert.Empty(t, lint.CWE)
}

func TestParseSemgrepReportRejectsGarbage(t *testing.T) {
	_, err := parseSemgrepReport([]byte("not json at all"))
	assert.Error(t, err)
}

func TestMapSemgrepSeverity(t *testing.T) {
	tests := []struct {
		name  string
		extra semgrepExtra
		want  schemas.Severity
	}{
		{"score 9.0 boundary is critical", semgrepExtra{Metadata: semgrepMetadata{SecuritySeverity: "9.0"}}, schemas.SeverityCritical},
		{"score 7.5 is high", semgrepExtra{Metadata: semgrepMetadata{SecuritySeverity: "7.5"}}, schemas.SeverityHigh},
		{"score 5.0 is medium", semgrepExtra{Metadata: semgrepMetadata{SecuritySeverity: "5.0"}}, schemas.SeverityMedium},
		{"score 1.0 is low", semgrepExtra{Metadata: semgrepMetadata{SecuritySeverity: "1.0"}}, schemas.SeverityLow},
		{"score outranks lint severity", semgrepExtra{Severity: "INFO", Metadata: semgrepMetadata{SecuritySeverity: "9.9"}}, schemas.SeverityCritical},
		{"ERROR without score is high", semgrepExtra{Severity: "ERROR"}, schemas.SeverityHigh},
		{"WARNING without score is medium", semgrepExtra{Severity: "WARNING"}, schemas.SeverityMedium},
		{"INFO without score is low", semgrepExtra{Severity: "INFO"}, schemas.SeverityLow},
		{"unparseable score falls back to lint severity", semgrepExtra{Severity: "ERROR", Metadata: semgrepMetadata{SecuritySeverity: "n/a"}}, schemas.SeverityHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mapSemgrepSeverity(tt.extra))
		})
	}
}

func TestFirstCWE(t *testing.T) {
	assert.Equal(t, "CWE-798", firstCWE([]byte(`"CWE-798: Use of Hard-coded Credentials"`)))
	assert.Equal(t, "CWE-89", firstCWE([]byte(`["CWE-89: SQLi", "CWE-564: Other"]`)))
	assert.Empty(t, firstCWE(nil))
	assert.Empty(t, firstCWE([]byte(`{"unexpected": "shape"}`)))
}
