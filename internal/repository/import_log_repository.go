package repository

import (
	"context"
	"fmt"

	"github.com/rfenton/docimport/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type importLogRepository struct {
	pool *pgxpool.Pool
}

// NewImportLogRepository wires the append-only run log over pgxpool.
func NewImportLogRepository(pool *pgxpool.Pool) ImportLogRepository {
	return &importLogRepository{pool: pool}
}

func (r *importLogRepository) Append(ctx context.Context, entry domain.ImportLogEntry) error {
	if r.pool == nil {
		return fmt.Errorf("import log repository not initialized")
	}

	var entityKey any
	if entry.EntityKey != "" {
		entityKey = entry.EntityKey
	}
	var errorDetail any
	if entry.ErrorDetail != "" {
		errorDetail = entry.ErrorDetail
	}

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO import_run_logs (id, run_id, log_index, success, row_numbers, entity_key, error_detail, messages)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID,
		entry.RunID,
		entry.LogIndex,
		entry.Success,
		entry.RowNumbers,
		entityKey,
		errorDetail,
		entry.Messages,
	)
	if err != nil {
		return fmt.Errorf("failed to append import log entry: %w", err)
	}
	return nil
}

func (r *importLogRepository) ListOrdered(ctx context.Context, runID uuid.UUID) ([]domain.ImportLogEntry, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("import log repository not initialized")
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, run_id, log_index, success, row_numbers, entity_key, error_detail, messages, created_at
		 FROM import_run_logs
		 WHERE run_id = $1
		 ORDER BY log_index ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list import log entries: %w", err)
	}
	defer rows.Close()

	entries := []domain.ImportLogEntry{}
	for rows.Next() {
		var (
			entry       domain.ImportLogEntry
			entityKey   pgtype.Text
			errorDetail pgtype.Text
			createdAt   pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&entry.ID,
			&entry.RunID,
			&entry.LogIndex,
			&entry.Success,
			&entry.RowNumbers,
			&entityKey,
			&errorDetail,
			&entry.Messages,
			&createdAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan import log entry: %w", scanErr)
		}

		if entityKey.Valid {
			entry.EntityKey = entityKey.String
		}
		if errorDetail.Valid {
			entry.ErrorDetail = errorDetail.String
		}
		if createdAt.Valid {
			entry.CreatedAt = createdAt.Time
		}
		entries = append(entries, entry)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate import log entries: %w", rowsErr)
	}
	return entries, nil
}

func (r *importLogRepository) DeleteFailures(ctx context.Context, runID uuid.UUID) error {
	if r.pool == nil {
		return fmt.Errorf("import log repository not initialized")
	}

	_, err := r.pool.Exec(
		ctx,
		`DELETE FROM import_run_logs WHERE run_id = $1 AND success = FALSE`,
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to prune failed import log entries: %w", err)
	}
	return nil
}
