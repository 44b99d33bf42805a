package implementation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sfymodels "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Models"
	interfaces "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Repository/Interfaces"
)

type PostgresRunRepository struct {
	db *sql.DB
}

func NewPostgresRunRepository(db *sql.DB) *PostgresRunRepository {
	return &PostgresRunRepository{db: db}
}

// Save run (idempotent upsert)
func (r *PostgresRunRepository) SaveRun(ctx context.Context, rec sfymodels.RunRecord) error {
	query := `
		INSERT INTO discovery_runs (run_id, trigger, state, started_at, finished_at, devices, failures, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id)
		DO UPDATE SET state = EXCLUDED.state, finished_at = EXCLUDED.finished_at,
			devices = EXCLUDED.devices, failures = EXCLUDED.failures, error = EXCLUDED.error
	`

	failuresJSON, err := json.Marshal(ensureFailuresNotNull(rec.Failures))
	if err != nil {
		return fmt.Errorf("failed to marshal failures: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query,
		rec.RunID, rec.Trigger, string(rec.State), rec.StartedAt, rec.FinishedAt, rec.Devices, failuresJSON, rec.Error)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", rec.RunID, err)
	}
	return nil
}

func (r *PostgresRunRepository) ListRuns(ctx context.Context, limit int) ([]sfymodels.RunRecord, error) {
	query := `SELECT run_id, trigger, state, started_at, finished_at, devices, failures, error
		FROM discovery_runs ORDER BY started_at DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, interfaces.NormalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]sfymodels.RunRecord, 0)
	for rows.Next() {
		var rec sfymodels.RunRecord
		var state string
		var failuresJSON []byte

		if err := rows.Scan(&rec.RunID, &rec.Trigger, &state, &rec.StartedAt, &rec.FinishedAt,
			&rec.Devices, &failuresJSON, &rec.Error); err != nil {
			return nil, err
		}
		rec.State = sfymodels.RunState(state)

		if len(failuresJSON) > 0 {
			if err := json.Unmarshal(failuresJSON, &rec.Failures); err != nil {
				return nil, fmt.Errorf("failed to unmarshal failures: %w", err)
			}
		}

		runs = append(runs, rec)
	}

	return runs, rows.Err()
}

func (r *PostgresRunRepository) Ping(ctx context.Context) error {
	if r.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return r.db.PingContext(ctx)
}
