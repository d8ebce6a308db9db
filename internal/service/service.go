// Package service ties the scan pipeline together: orchestrate the tools,
// map findings to compliance frameworks, evaluate the security gate, persist
// the result, and notify.
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/halcyonsec/scangate/api/schemas"
	"github.com/halcyonsec/scangate/internal/compliance"
	"github.com/halcyonsec/scangate/internal/gate"
)

// Scanner runs the full tool fan-out against a repository reference.
type Scanner interface {
	ScanRepository(ctx context.Context, sourceRef, triggeredBy string) (*schemas.ScanPayload, error)
}

// ScanService is the application-level entry point for running a scan. It is
// also the runner the scheduler fires on due schedules.
type ScanService struct {
	scanner  Scanner
	store    schemas.ScanStore
	notifier schemas.Notifier
	policy   schemas.SecurityGatePolicy
	log      *zap.Logger
}

// New wires the service. The store may be nil for store-less invocations
// (e.g. a one-off CLI scan without a database); scanner and notifier are
// mandatory.
func New(scanner Scanner, store schemas.ScanStore, notifier schemas.Notifier, policy schemas.SecurityGatePolicy, logger *zap.Logger) (*ScanService, error) {
	if scanner == nil {
		return nil, fmt.Errorf("scanner cannot be nil")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &ScanService{
		scanner:  scanner,
		store:    store,
		notifier: notifier,
		policy:   policy,
		log:      logger.Named("service"),
	}, nil
}

// Result is the outcome of one scan: the full payload, its compliance
// mappings, and the gate decision under the service's policy.
type Result struct {
	Payload  *schemas.ScanPayload
	Mappings []schemas.ComplianceCategoryMapping
	Decision schemas.GateDecision
}

// Scan runs the pipeline end to end. A failed gate is a successful scan; the
// caller reads the decision from the result. The returned error covers only
// scan execution failures.
func (s *ScanService) Scan(ctx context.Context, sourceRef, triggeredBy string) (*Result, error) {
	payload, err := s.scanner.ScanRepository(ctx, sourceRef, triggeredBy)
	if err != nil {
		s.notifier.ScanFailed(ctx, sourceRef, triggeredBy, err)
		return nil, err
	}

	mappings := compliance.MapAll(payload.Findings)
	decision := gate.Evaluate(payload.Summary, s.policy)

	if s.store != nil {
		if err := s.store.SaveScan(ctx, payload, mappings); err != nil {
			// The scan itself succeeded; surface the persistence failure but
			// keep the result so the caller can still report on it.
			s.log.Error("Failed to persist scan",
				zap.String("scan_id", payload.Metadata.ScanID), zap.Error(err))
			return &Result{Payload: payload, Mappings: mappings, Decision: decision},
				fmt.Errorf("failed to persist scan %s: %w", payload.Metadata.ScanID, err)
		}
	}

	s.notifier.ScanCompleted(ctx, payload, decision)
	return &Result{Payload: payload, Mappings: mappings, Decision: decision}, nil
}

// Run adapts Scan to the scheduler's runner contract. Gate failures are not
// runner errors; schedules keep their cadence regardless of the decision.
func (s *ScanService) Run(ctx context.Context, repositoryRef, triggeredBy string) error {
	_, err := s.Scan(ctx, repositoryRef, triggeredBy)
	return err
}
