package alerts

import (
	"context"
	"database/sql"

	"github.com/mbd888/dexguard/internal/risk"
)

// PostgresStore persists alerts to PostgreSQL for audit.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed alert store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, a *Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, tx_hash, alert_type, severity, message, assessment_id, risk_score, risk_level, first_seen, last_seen, status, attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			last_seen = EXCLUDED.last_seen,
			status = EXCLUDED.status,
			attempts = EXCLUDED.attempts
	`, a.ID, a.TxHash, string(a.Kind), string(a.Severity), a.Message, a.AssessmentID,
		a.Score, a.Level, a.FirstSeen, a.LastSeen, string(a.Status), a.Attempts)
	return err
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]*Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tx_hash, alert_type, severity, message, assessment_id, risk_score, risk_level, first_seen, last_seen, status, attempts
		FROM alerts ORDER BY last_seen DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var alerts []*Alert
	for rows.Next() {
		a := &Alert{}
		var kind, severity, status string
		if err := rows.Scan(&a.ID, &a.TxHash, &kind, &severity, &a.Message, &a.AssessmentID,
			&a.Score, &a.Level, &a.FirstSeen, &a.LastSeen, &status, &a.Attempts); err != nil {
			return nil, err
		}
		a.Kind = risk.Kind(kind)
		a.Severity = risk.Severity(severity)
		a.Status = State(status)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
