// Package store provides the PostgreSQL implementation of the persistence
// collaborators: scans with their findings and compliance mappings, schedule
// definitions, and daily trend rows.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/halcyonsec/scangate/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool abstracts pgxpool.Pool so the store can be tested with pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store implements schemas.ScanStore, schemas.ScheduleStore and
// schemas.TrendStore on PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{pool: pool, log: logger.Named("store")}, nil
}

// -- ScanStore --

// SaveScan stores the scan row, its findings, and its compliance mappings in
// one transaction. Findings are always inserted as new rows; fingerprints are
// stored for traceability but never used as an upsert key.
func (s *Store) SaveScan(ctx context.Context, payload *schemas.ScanPayload, mappings []schemas.ComplianceCategoryMapping) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if err := s.insertScan(ctx, tx, payload); err != nil {
		return err
	}
	if len(payload.Findings) > 0 {
		if err := s.insertFindings(ctx, tx, payload.Findings); err != nil {
			return err
		}
	}
	if len(mappings) > 0 {
		if err := s.insertMappings(ctx, tx, mappings); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) insertScan(ctx context.Context, tx pgx.Tx, payload *schemas.ScanPayload) error {
	byTool, err := json.Marshal(payload.Summary.ByTool)
	if err != nil {
		return fmt.Errorf("failed to marshal tool counts: %w", err)
	}

	m := payload.Metadata
	_, err = tx.Exec(ctx, `
        INSERT INTO scans (id, repository, branch, commit_sha, triggered_by, started_at, finished_at, status,
                           total, critical_count, high_count, medium_count, low_count, info_count, by_tool)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15);`,
		m.ScanID, m.Repository, m.Branch, m.Commit, m.TriggeredBy,
		m.StartedAt.UTC(), m.FinishedAt.UTC(), string(m.Status),
		payload.Summary.Total,
		payload.Summary.Count(schemas.SeverityCritical),
		payload.Summary.Count(schemas.SeverityHigh),
		payload.Summary.Count(schemas.SeverityMedium),
		payload.Summary.Count(schemas.SeverityLow),
		payload.Summary.Count(schemas.SeverityInfo),
		byTool,
	)
	if err != nil {
		return fmt.Errorf("failed to insert scan: %w", err)
	}
	return nil
}

func (s *Store) insertFindings(ctx context.Context, tx pgx.Tx, findings []schemas.NormalizedFinding) error {
	rows := make([][]interface{}, len(findings))
	for i, f := range findings {
		rows[i] = []interface{}{
			f.ID, f.ScanID, f.Tool, string(f.Category), string(f.Severity),
			f.RuleID, f.Title, f.File, f.Line, f.CWE, f.CVSS, f.Message, f.Fingerprint,
		}
	}

	copyCount, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"findings"},
		[]string{"id", "scan_id", "tool", "category", "severity", "rule_id", "title", "file", "line", "cwe", "cvss", "message", "fingerprint"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy findings: %w", err)
	}
	if int(copyCount) != len(findings) {
		return fmt.Errorf("mismatch in copied findings count: expected %d, got %d", len(findings), copyCount)
	}
	return nil
}

func (s *Store) insertMappings(ctx context.Context, tx pgx.Tx, mappings []schemas.ComplianceCategoryMapping) error {
	batch := &pgx.Batch{}
	sql := `
        INSERT INTO compliance_mappings (finding_id, framework, category)
        VALUES ($1, $2, $3)
        ON CONFLICT (finding_id, framework, category) DO NOTHING;`
	for _, m := range mappings {
		batch.Queue(sql, m.FindingID, string(m.Framework), m.Category)
	}

	br := tx.SendBatch(ctx, batch)
	if br == nil {
		return fmt.Errorf("failed to send batch: batch results is nil")
	}
	defer func() { _ = br.Close() }()

	for i := range mappings {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert mapping %d (%s/%s): %w",
				i, mappings[i].Framework, mappings[i].Category, err)
		}
	}
	return nil
}

// ListScansCompletedBetween returns the scans for a repository whose
// completion falls inside [from, to], oldest first.
func (s *Store) ListScansCompletedBetween(ctx context.Context, repository string, from, to time.Time) ([]schemas.ScanRecord, error) {
	query := `
        SELECT id, repository, branch, commit_sha, triggered_by, started_at, finished_at, status,
               total, critical_count, high_count, medium_count, low_count, info_count, by_tool
        FROM scans
        WHERE repository = $1 AND status = 'completed' AND finished_at >= $2 AND finished_at <= $3
        ORDER BY finished_at ASC;`
	rows, err := s.pool.Query(ctx, query, repository, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer rows.Close()

	var records []schemas.ScanRecord
	for rows.Next() {
		var (
			rec        schemas.ScanRecord
			statusStr  string
			critical   int
			high       int
			medium     int
			low        int
			info       int
			byToolJSON []byte
		)
		err := rows.Scan(
			&rec.Metadata.ScanID, &rec.Metadata.Repository, &rec.Metadata.Branch,
			&rec.Metadata.Commit, &rec.Metadata.TriggeredBy,
			&rec.Metadata.StartedAt, &rec.Metadata.FinishedAt, &statusStr,
			&rec.Summary.Total, &critical, &high, &medium, &low, &info, &byToolJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rec.Metadata.Status = schemas.ScanStatus(statusStr)
		rec.Summary.BySeverity = map[schemas.Severity]int{
			schemas.SeverityCritical: critical,
			schemas.SeverityHigh:     high,
			schemas.SeverityMedium:   medium,
			schemas.SeverityLow:      low,
			schemas.SeverityInfo:     info,
		}
		rec.Summary.ByTool = make(map[string]int)
		if len(byToolJSON) > 0 {
			if err := json.Unmarshal(byToolJSON, &rec.Summary.ByTool); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tool counts: %w", err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return records, nil
}
