// File: internal/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/halcyonsec/scangate/api/schemas"
	"github.com/halcyonsec/scangate/internal/scanner"
	"github.com/halcyonsec/scangate/internal/source"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubResolver hands out a fixed checkout and records releases.
type stubResolver struct {
	err      error
	released bool
}

func (r *stubResolver) Resolve(ctx context.Context, sourceRef string) (*source.Checkout, error) {
	if r.err != nil {
		return nil, r.err
	}
	return source.NewCheckout("/tmp/checkout", "main", "abc123", func() error {
		r.released = true
		return nil
	}), nil
}

// stubAdapter returns canned findings or a canned error.
type stubAdapter struct {
	name     string
	category schemas.Category
	findings []schemas.NormalizedFinding
	err      error
}

func (a *stubAdapter) Name() string               { return a.name }
func (a *stubAdapter) Category() schemas.Category { return a.category }

func (a *stubAdapter) Scan(ctx context.Context, repoPath string) ([]schemas.NormalizedFinding, error) {
	return a.findings, a.err
}

func finding(tool string, sev schemas.Severity) schemas.NormalizedFinding {
	return schemas.NormalizedFinding{
		ID:       tool + "-f",
		Tool:     tool,
		Category: schemas.CategorySAST,
		Severity: sev,
		Title:    "t",
		Message:  "m",
	}
}

func TestScanRepositoryAggregatesAllAdapters(t *testing.T) {
	resolver := &stubResolver{}
	adapters := []scanner.Adapter{
		&stubAdapter{name: "semgrep", findings: []schemas.NormalizedFinding{finding("semgrep", schemas.SeverityHigh)}},
		&stubAdapter{name: "trivy", findings: []schemas.NormalizedFinding{finding("trivy", schemas.SeverityCritical)}},
		&stubAdapter{name: "gitleaks", findings: nil},
	}
	o, err := New(resolver, adapters, zap.NewNop())
	require.NoError(t, err)

	payload, err := o.ScanRepository(context.Background(), "acme/shop", "cli")
	require.NoError(t, err)

	assert.Equal(t, 2, payload.Summary.Total)
	assert.Equal(t, len(payload.Findings), payload.Summary.Total, "summary total matches findings")
	assert.Equal(t, 1, payload.Summary.Count(schemas.SeverityCritical))
	assert.Equal(t, schemas.ScanStatusCompleted, payload.Metadata.Status)
	assert.Equal(t, "main", payload.Metadata.Branch)
	assert.True(t, resolver.released, "checkout is released after the scan")

	for _, f := range payload.Findings {
		assert.Equal(t, payload.Metadata.ScanID, f.ScanID, "scan id is stamped onto every finding")
	}
}

func TestFailingAdapterDoesNotReduceSiblings(t *testing.T) {
	resolver := &stubResolver{}
	adapters := []scanner.Adapter{
		&stubAdapter{name: "semgrep", findings: []schemas.NormalizedFinding{finding("semgrep", schemas.SeverityHigh)}},
		&stubAdapter{name: "trivy", err: errors.New("trivy exploded")},
		&stubAdapter{name: "bandit", findings: []schemas.NormalizedFinding{finding("bandit", schemas.SeverityMedium)}},
	}
	o, err := New(resolver, adapters, zap.NewNop())
	require.NoError(t, err)

	payload, err := o.ScanRepository(context.Background(), "acme/shop", "cli")
	require.NoError(t, err, "a non-primary failure is not fatal")
	assert.Equal(t, 2, payload.Summary.Total, "siblings of the failed adapter still contribute")
}

func TestPrimaryToolFailureIsFatal(t *testing.T) {
	resolver := &stubResolver{}
	adapters := []scanner.Adapter{
		&stubAdapter{name: "semgrep", err: errors.New("semgrep exploded")},
		&stubAdapter{name: "trivy", findings: []schemas.NormalizedFinding{finding("trivy", schemas.SeverityLow)}},
	}
	o, err := New(resolver, adapters, zap.NewNop())
	require.NoError(t, err)

	_, err = o.ScanRepository(context.Background(), "acme/shop", "cli")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrScanFailed)
	assert.True(t, resolver.released, "checkout is released on the failure path too")
}

func TestUnresolvableSourceIsFatal(t *testing.T) {
	resolver := &stubResolver{err: errors.New("no such repository")}
	adapters := []scanner.Adapter{&stubAdapter{name: "semgrep"}}
	o, err := New(resolver, adapters, zap.NewNop())
	require.NoError(t, err)

	_, err = o.ScanRepository(context.Background(), "ghost/repo", "cli")
	assert.ErrorIs(t, err, ErrScanFailed)
}

func TestNewRejectsBadWiring(t *testing.T) {
	_, err := New(nil, []scanner.Adapter{&stubAdapter{name: "semgrep"}}, zap.NewNop())
	assert.Error(t, err)

	_, err = New(&stubResolver{}, nil, zap.NewNop())
	assert.Error(t, err)
}
