package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rfenton/docimport/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type importRunRepository struct {
	pool *pgxpool.Pool
}

// NewImportRunRepository wires the run metadata store over pgxpool.
func NewImportRunRepository(pool *pgxpool.Pool) ImportRunRepository {
	return &importRunRepository{pool: pool}
}

func (r *importRunRepository) Create(ctx context.Context, run domain.ImportRun) (domain.ImportRun, error) {
	if r.pool == nil {
		return domain.ImportRun{}, fmt.Errorf("import run repository not initialized")
	}

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO import_runs (id, entity_type, import_type, file_name, status, submit_after_import,
		                          payload_count, total_source_lines)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID,
		run.EntityType,
		run.ImportType,
		run.FileName,
		run.Status,
		run.SubmitAfterImport,
		run.PayloadCount,
		run.TotalSourceLines,
	)
	if err != nil {
		return domain.ImportRun{}, fmt.Errorf("failed to create import run: %w", err)
	}
	return r.Get(ctx, run.ID)
}

func (r *importRunRepository) Get(ctx context.Context, id uuid.UUID) (domain.ImportRun, error) {
	if r.pool == nil {
		return domain.ImportRun{}, fmt.Errorf("import run repository not initialized")
	}

	row := r.pool.QueryRow(
		ctx,
		`SELECT id, entity_type, import_type, file_name, status, submit_after_import,
		        payload_count, last_processed_line, total_source_lines, template_warnings,
		        created_at, updated_at
		 FROM import_runs
		 WHERE id = $1`,
		id,
	)

	var (
		run               domain.ImportRun
		lastProcessedLine pgtype.Int4
		warningsJSON      []byte
		createdAt         pgtype.Timestamptz
		updatedAt         pgtype.Timestamptz
	)
	if err := row.Scan(
		&run.ID,
		&run.EntityType,
		&run.ImportType,
		&run.FileName,
		&run.Status,
		&run.SubmitAfterImport,
		&run.PayloadCount,
		&lastProcessedLine,
		&run.TotalSourceLines,
		&warningsJSON,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.ImportRun{}, fmt.Errorf("failed to load import run %s: %w", id, err)
	}

	if lastProcessedLine.Valid {
		line := int(lastProcessedLine.Int32)
		run.LastProcessedLine = &line
	}
	if len(warningsJSON) > 0 {
		if err := json.Unmarshal(warningsJSON, &run.TemplateWarnings); err != nil {
			return domain.ImportRun{}, fmt.Errorf("failed to decode template warnings: %w", err)
		}
	}
	if createdAt.Valid {
		run.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		run.UpdatedAt = updatedAt.Time
	}
	return run, nil
}

func (r *importRunRepository) SetStatus(ctx context.Context, id uuid.UUID, status domain.RunStatus) error {
	return r.setField(ctx, id, "status", status)
}

func (r *importRunRepository) SetTemplateWarnings(ctx context.Context, id uuid.UUID, warnings []domain.Warning) error {
	var warningsJSON any
	if len(warnings) > 0 {
		encoded, err := json.Marshal(warnings)
		if err != nil {
			return fmt.Errorf("failed to encode template warnings: %w", err)
		}
		warningsJSON = encoded
	}
	return r.setField(ctx, id, "template_warnings", warningsJSON)
}

func (r *importRunRepository) SetPayloadCount(ctx context.Context, id uuid.UUID, count int) error {
	return r.setField(ctx, id, "payload_count", count)
}

func (r *importRunRepository) SetLastProcessedLine(ctx context.Context, id uuid.UUID, line int) error {
	return r.setField(ctx, id, "last_processed_line", line)
}

func (r *importRunRepository) SetTotalSourceLines(ctx context.Context, id uuid.UUID, lines int) error {
	return r.setField(ctx, id, "total_source_lines", lines)
}

// setField writes one scalar column; every set is immediately durable.
func (r *importRunRepository) setField(ctx context.Context, id uuid.UUID, column string, value any) error {
	if r.pool == nil {
		return fmt.Errorf("import run repository not initialized")
	}

	query := fmt.Sprintf(`UPDATE import_runs SET %s = $2, updated_at = NOW() WHERE id = $1`, column)
	tag, err := r.pool.Exec(ctx, query, id, value)
	if err != nil {
		return fmt.Errorf("failed to update import run %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("import run %s not found", id)
	}
	return nil
}
