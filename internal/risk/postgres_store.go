package risk

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresStore persists assessments to PostgreSQL for audit trail.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed assessment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Record(ctx context.Context, a *RiskAssessment) error {
	findings, err := json.Marshal(a.Findings)
	if err != nil {
		return fmt.Errorf("marshal findings: %w", err)
	}
	notes, err := json.Marshal(a.Notes)
	if err != nil {
		return fmt.Errorf("marshal notes: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO risk_assessments (id, tx_hash, risk_score, risk_level, findings, notes, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5::JSONB, $6::JSONB, $7, $8)
	`, a.ID, a.TxHash, a.Score, a.LevelName, findings, notes, a.LatencyMS, a.Timestamp)
	return err
}

func (s *PostgresStore) ListByHash(ctx context.Context, txHash string, limit int) ([]*RiskAssessment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tx_hash, risk_score, risk_level, findings, COALESCE(notes, '[]'), latency_ms, created_at
		FROM risk_assessments WHERE tx_hash = $1
		ORDER BY created_at DESC LIMIT $2
	`, txHash, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*RiskAssessment
	for rows.Next() {
		a := &RiskAssessment{}
		var findings, notes []byte
		var created time.Time
		if err := rows.Scan(&a.ID, &a.TxHash, &a.Score, &a.LevelName, &findings, &notes, &a.LatencyMS, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(findings, &a.Findings); err != nil {
			return nil, fmt.Errorf("unmarshal findings for %s: %w", a.ID, err)
		}
		if err := json.Unmarshal(notes, &a.Notes); err != nil {
			return nil, fmt.Errorf("unmarshal notes for %s: %w", a.ID, err)
		}
		a.Timestamp = created
		if lvl, ok := ParseLevel(a.LevelName); ok {
			a.Level = lvl
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
