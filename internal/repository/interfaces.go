package repository

import (
	"context"

	"github.com/rfenton/docimport/internal/domain"

	"github.com/google/uuid"
)

// Store is the document storage collaborator the import engine writes
// against. Schema metadata, record persistence and transactions all live
// behind this contract; the engine never talks to the database directly.
type Store interface {
	// SchemaOf returns the field list, identity policy and child
	// collections of an entity type.
	SchemaOf(ctx context.Context, entityType string) (domain.EntitySchema, error)
	// Exists reports whether a record with the given identity key exists.
	Exists(ctx context.Context, entityType, key string) (bool, error)
	// ListExistingKeys returns the subset of keys that exist, for bulk
	// link validation.
	ListExistingKeys(ctx context.Context, entityType string, keys []string) ([]string, error)
	Get(ctx context.Context, entityType, key string) (domain.Record, error)
	Create(ctx context.Context, rec domain.Record) (domain.Record, error)
	Update(ctx context.Context, rec domain.Record) (domain.Record, error)
	// Submit finalizes a submittable record after insert.
	Submit(ctx context.Context, entityType, key string) error
	Begin(ctx context.Context) (StoreTx, error)
}

// StoreTx scopes store operations to one payload's transaction.
type StoreTx interface {
	Store
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ImportLogRepository is the keyed, ordered, append-only log store that
// makes runs resumable.
type ImportLogRepository interface {
	Append(ctx context.Context, entry domain.ImportLogEntry) error
	ListOrdered(ctx context.Context, runID uuid.UUID) ([]domain.ImportLogEntry, error)
	// DeleteFailures prunes failed entries when a partial run is retried,
	// so retried rows are logged exactly once.
	DeleteFailures(ctx context.Context, runID uuid.UUID) error
}

// ImportRunRepository persists run metadata. Every set is immediately
// durable; there is no batching of metadata writes.
type ImportRunRepository interface {
	Create(ctx context.Context, run domain.ImportRun) (domain.ImportRun, error)
	Get(ctx context.Context, id uuid.UUID) (domain.ImportRun, error)
	SetStatus(ctx context.Context, id uuid.UUID, status domain.RunStatus) error
	SetTemplateWarnings(ctx context.Context, id uuid.UUID, warnings []domain.Warning) error
	SetPayloadCount(ctx context.Context, id uuid.UUID, count int) error
	SetLastProcessedLine(ctx context.Context, id uuid.UUID, line int) error
	SetTotalSourceLines(ctx context.Context, id uuid.UUID, lines int) error
}
