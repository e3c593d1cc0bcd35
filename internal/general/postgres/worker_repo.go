package postgres

import (
	"context"
	"fmt"

	"service-hub/internal/domain/worker"
	"service-hub/internal/ports"
)

// WorkerRepo persists worker category verifications using pgx and plain SQL.
type WorkerRepo struct{}

// NewWorkerRepo constructs a new WorkerRepo.
func NewWorkerRepo() ports.WorkerRepository {
	return &WorkerRepo{}
}

// GetProfile loads the worker's category verification map. A worker with no
// rows gets an empty profile; eligibility then rejects everything.
func (repo *WorkerRepo) GetProfile(ctx context.Context, workerID string) (*worker.Profile, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT category, status
		FROM worker_categories
		WHERE worker_id = $1
	`, workerID)
	if err != nil {
		return nil, fmt.Errorf("query worker categories: %w", err)
	}
	defer rows.Close()

	p := &worker.Profile{
		ID:         workerID,
		Categories: make(map[string]worker.VerificationStatus),
	}
	for rows.Next() {
		var category, status string
		if err := rows.Scan(&category, &status); err != nil {
			return nil, fmt.Errorf("scan worker category: %w", err)
		}
		p.Categories[worker.NormalizeCategory(category)] = worker.VerificationStatus(status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return p, nil
}

// SetCategoryStatus upserts one category verification row.
func (repo *WorkerRepo) SetCategoryStatus(ctx context.Context, workerID, category string, status worker.VerificationStatus) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO worker_categories (worker_id, category, status)
		VALUES ($1, lower($2), $3)
		ON CONFLICT (worker_id, category)
		DO UPDATE SET status = EXCLUDED.status, updated_at = now()
	`, workerID, category, string(status))
	return err
}

// ListVerifiedForCategory returns worker ids verified for a category. The
// dispatch broadcast intersects this with currently connected sessions.
func (repo *WorkerRepo) ListVerifiedForCategory(ctx context.Context, category string) ([]string, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT worker_id
		FROM worker_categories
		WHERE category = lower($1) AND status = 'VERIFIED'
	`, category)
	if err != nil {
		return nil, fmt.Errorf("query verified workers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan worker id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return ids, nil
}
