// Package notify carries scan completion events to interested parties. The
// only built-in sink writes structured log lines; richer transports hang off
// the same interface.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/halcyonsec/scangate/api/schemas"
)

// LogNotifier implements schemas.Notifier by emitting structured log events.
type LogNotifier struct {
	log *zap.Logger
}

// NewLogNotifier creates a notifier that logs completion events.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{log: logger.Named("notify")}
}

// ScanCompleted logs the scan outcome and the gate decision. The level tracks
// the decision so failed gates stand out in aggregated logs.
func (n *LogNotifier) ScanCompleted(ctx context.Context, payload *schemas.ScanPayload, decision schemas.GateDecision) {
	fields := []zap.Field{
		zap.String("scan_id", payload.Metadata.ScanID),
		zap.String("repository", payload.Metadata.Repository),
		zap.String("triggered_by", payload.Metadata.TriggeredBy),
		zap.Int("total_findings", payload.Summary.Total),
		zap.Int("critical", payload.Summary.Count(schemas.SeverityCritical)),
		zap.Int("high", payload.Summary.Count(schemas.SeverityHigh)),
		zap.String("gate_status", string(decision.Status)),
		zap.String("gate_reason", decision.Reason),
	}

	switch decision.Status {
	case schemas.GateFailed:
		n.log.Warn("Scan completed, security gate failed", fields...)
	case schemas.GateWarning:
		n.log.Warn("Scan completed with warnings", fields...)
	default:
		n.log.Info("Scan completed, security gate passed", fields...)
	}
}

// ScanFailed logs a fatal scan error.
func (n *LogNotifier) ScanFailed(ctx context.Context, repository, triggeredBy string, err error) {
	n.log.Error("Scan failed",
		zap.String("repository", repository),
		zap.String("triggered_by", triggeredBy),
		zap.Error(err),
	)
}
