package analysis

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Repository stores optimisation runs in history.db.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new run repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "runs").Logger(),
	}
}

// Save inserts a run. The report must carry its id.
func (r *Repository) Save(ctx context.Context, report *Report) error {
	if report.ID == "" {
		return fmt.Errorf("run has no id")
	}
	requestJSON, err := json.Marshal(report.Request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO runs (id, kind, label, request, report, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, report.ID, string(report.Kind), report.Label, string(requestJSON), string(reportJSON), report.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", report.ID, err)
	}
	return nil
}

// Get loads a stored report.
func (r *Repository) Get(ctx context.Context, id string) (*Report, error) {
	var reportJSON string
	err := r.db.QueryRowContext(ctx, "SELECT report FROM runs WHERE id = ?", id).Scan(&reportJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}

	var report Report
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	return &report, nil
}

// List returns the most recent runs first.
func (r *Repository) List(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, label, created_at FROM runs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]RunSummary, 0)
	for rows.Next() {
		var s RunSummary
		var kind string
		var createdAt int64
		if err := rows.Scan(&s.ID, &kind, &s.Label, &createdAt); err != nil {
			r.log.Warn().Err(err).Msg("Failed to scan run row")
			continue
		}
		s.Kind = Kind(kind)
		s.CreatedAt = time.Unix(createdAt, 0).UTC()
		runs = append(runs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// Prune deletes all but the newest keep runs.
func (r *Repository) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		r.log.Info().Int64("deleted", n).Int("kept", keep).Msg("Pruned run history")
	}
	return n, nil
}
