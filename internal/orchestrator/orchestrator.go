// Package orchestrator manages the lifecycle of one scan: source resolution,
// concurrent adapter fan-out, aggregation, and summary construction. It is
// injected with its collaborators via interfaces, making it decoupled and
// testable.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/halcyonsec/scangate/api/schemas"
	"github.com/halcyonsec/scangate/internal/scanner"
	"github.com/halcyonsec/scangate/internal/source"
)

// ErrScanFailed marks a fatal orchestrator error: the target was unreachable
// or the primary SAST tool hard-failed. It is distinct from a failed gate
// decision.
var ErrScanFailed = errors.New("scan failed")

// Resolver maps a source reference to a local checkout.
type Resolver interface {
	Resolve(ctx context.Context, sourceRef string) (*source.Checkout, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConcurrency bounds how many adapters run at once. Zero or negative
// means unbounded.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) { o.concurrency = n }
}

// WithPrimaryTool overrides which adapter's hard failure is fatal to the
// scan. Defaults to the primary SAST tool.
func WithPrimaryTool(name string) Option {
	return func(o *Orchestrator) { o.primary = name }
}

// Orchestrator runs all registered adapters against one checkout per call.
type Orchestrator struct {
	resolver    Resolver
	adapters    []scanner.Adapter
	primary     string
	concurrency int
	logger      *zap.Logger
}

// New creates an Orchestrator with its dependencies.
func New(resolver Resolver, adapters []scanner.Adapter, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	if resolver == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	if len(adapters) == 0 {
		return nil, fmt.Errorf("cannot initialize orchestrator without adapters")
	}

	o := &Orchestrator{
		resolver: resolver,
		adapters: adapters,
		primary:  scanner.ToolSemgrep,
		logger:   logger.Named("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// ScanRepository resolves the source, invokes every adapter exactly once, and
// aggregates their findings into a payload.
//
// A failing adapter contributes zero findings and does not abort its
// siblings; all adapters always run to completion. Only an unreachable target
// or a hard failure of the primary tool is fatal. The checkout is released on
// every path out of this function.
func (o *Orchestrator) ScanRepository(ctx context.Context, sourceRef, triggeredBy string) (*schemas.ScanPayload, error) {
	scanID := uuid.New().String()
	startedAt := time.Now().UTC()

	log := o.logger.With(zap.String("scan_id", scanID), zap.String("source", sourceRef))
	log.Info("Starting scan", zap.String("triggered_by", triggeredBy))

	checkout, err := o.resolver.Resolve(ctx, sourceRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScanFailed, err)
	}
	defer func() {
		if err := checkout.Release(); err != nil {
			log.Warn("Failed to release checkout", zap.Error(err))
		}
	}()

	findingsByAdapter := make([][]schemas.NormalizedFinding, len(o.adapters))
	errsByAdapter := make([]error, len(o.adapters))

	// Adapter errors are recorded per slot instead of returned to the group,
	// so one failure never cancels the siblings' contexts.
	g, gctx := errgroup.WithContext(ctx)
	if o.concurrency > 0 {
		g.SetLimit(o.concurrency)
	}
	for i, adapter := range o.adapters {
		g.Go(func() error {
			start := time.Now()
			findings, err := adapter.Scan(gctx, checkout.Path)
			if err != nil {
				errsByAdapter[i] = err
				log.Warn("Adapter failed",
					zap.String("tool", adapter.Name()),
					zap.Duration("elapsed", time.Since(start)),
					zap.Error(err))
				return nil
			}
			findingsByAdapter[i] = findings
			log.Debug("Adapter finished",
				zap.String("tool", adapter.Name()),
				zap.Int("findings", len(findings)),
				zap.Duration("elapsed", time.Since(start)))
			return nil
		})
	}
	_ = g.Wait() // Goroutines never return errors; Wait only synchronizes.

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScanFailed, err)
	}
	for i, adapter := range o.adapters {
		if errsByAdapter[i] != nil && adapter.Name() == o.primary {
			return nil, fmt.Errorf("%w: primary tool %s: %v", ErrScanFailed, o.primary, errsByAdapter[i])
		}
	}

	var all []schemas.NormalizedFinding
	for _, findings := range findingsByAdapter {
		all = append(all, findings...)
	}
	for i := range all {
		all[i].ScanID = scanID
	}

	payload := &schemas.ScanPayload{
		Metadata: schemas.ScanMetadata{
			ScanID:      scanID,
			Repository:  sourceRef,
			Branch:      checkout.Branch,
			Commit:      checkout.Commit,
			TriggeredBy: triggeredBy,
			StartedAt:   startedAt,
			FinishedAt:  time.Now().UTC(),
			Status:      schemas.ScanStatusCompleted,
		},
		Summary:  schemas.NewScanSummary(all),
		Findings: all,
	}

	log.Info("Scan completed",
		zap.Int("total_findings", payload.Summary.Total),
		zap.Duration("elapsed", payload.Metadata.FinishedAt.Sub(startedAt)))
	return payload, nil
}
