package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rfenton/docimport/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// queryer abstracts over the pool and an open transaction so the same
// store code serves both scopes.
type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type documentStore struct {
	q    queryer
	pool *pgxpool.Pool
}

// NewDocumentStore wires the jsonb-backed document store over pgxpool.
func NewDocumentStore(pool *pgxpool.Pool) Store {
	return &documentStore{q: pool, pool: pool}
}

func (s *documentStore) SchemaOf(ctx context.Context, entityType string) (domain.EntitySchema, error) {
	row := s.q.QueryRow(
		ctx,
		`SELECT id, name, label, fields, identity_policy, identity_field, child_collections,
		        submittable, is_child_table, version, created_at, updated_at
		 FROM entity_schemas
		 WHERE name = $1`,
		entityType,
	)

	var (
		schema           domain.EntitySchema
		fieldsJSON       []byte
		collectionsJSON  []byte
		identityField    pgtype.Text
		createdAt        pgtype.Timestamptz
		updatedAt        pgtype.Timestamptz
	)
	if err := row.Scan(
		&schema.ID,
		&schema.Name,
		&schema.Label,
		&fieldsJSON,
		&schema.IdentityPolicy,
		&identityField,
		&collectionsJSON,
		&schema.Submittable,
		&schema.IsChildTable,
		&schema.Version,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.EntitySchema{}, fmt.Errorf("failed to load schema %s: %w", entityType, err)
	}

	if err := json.Unmarshal(fieldsJSON, &schema.Fields); err != nil {
		return domain.EntitySchema{}, fmt.Errorf("failed to decode schema fields for %s: %w", entityType, err)
	}
	if len(collectionsJSON) > 0 {
		if err := json.Unmarshal(collectionsJSON, &schema.ChildCollections); err != nil {
			return domain.EntitySchema{}, fmt.Errorf("failed to decode child collections for %s: %w", entityType, err)
		}
	}
	if identityField.Valid {
		schema.IdentityField = identityField.String
	}
	if createdAt.Valid {
		schema.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		schema.UpdatedAt = updatedAt.Time
	}
	return schema, nil
}

func (s *documentStore) Exists(ctx context.Context, entityType, key string) (bool, error) {
	var exists bool
	err := s.q.QueryRow(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE entity_type = $1 AND key = $2)`,
		entityType,
		key,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check %s %s: %w", entityType, key, err)
	}
	return exists, nil
}

func (s *documentStore) ListExistingKeys(ctx context.Context, entityType string, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	rows, err := s.q.Query(
		ctx,
		`SELECT key FROM documents WHERE entity_type = $1 AND key = ANY($2)`,
		entityType,
		keys,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s keys: %w", entityType, err)
	}
	defer rows.Close()

	var existing []string
	for rows.Next() {
		var key string
		if scanErr := rows.Scan(&key); scanErr != nil {
			return nil, fmt.Errorf("failed to scan key: %w", scanErr)
		}
		existing = append(existing, key)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate keys: %w", rowsErr)
	}
	return existing, nil
}

func (s *documentStore) Get(ctx context.Context, entityType, key string) (domain.Record, error) {
	row := s.q.QueryRow(
		ctx,
		`SELECT key, entity_type, fields, children
		 FROM documents
		 WHERE entity_type = $1 AND key = $2`,
		entityType,
		key,
	)

	var (
		rec          domain.Record
		fieldsJSON   []byte
		childrenJSON []byte
	)
	if err := row.Scan(&rec.Key, &rec.EntityType, &fieldsJSON, &childrenJSON); err != nil {
		return domain.Record{}, fmt.Errorf("failed to load %s %s: %w", entityType, key, err)
	}

	if err := json.Unmarshal(fieldsJSON, &rec.Fields); err != nil {
		return domain.Record{}, fmt.Errorf("failed to decode fields of %s %s: %w", entityType, key, err)
	}
	if len(childrenJSON) > 0 {
		if err := json.Unmarshal(childrenJSON, &rec.Children); err != nil {
			return domain.Record{}, fmt.Errorf("failed to decode children of %s %s: %w", entityType, key, err)
		}
	}
	return rec, nil
}

func (s *documentStore) Create(ctx context.Context, rec domain.Record) (domain.Record, error) {
	key := rec.Key
	if key == "" {
		schema, err := s.SchemaOf(ctx, rec.EntityType)
		if err != nil {
			return domain.Record{}, err
		}
		key = deriveKey(schema, rec)
	}
	rec.Key = key

	fieldsJSON, childrenJSON, err := encodeRecord(rec)
	if err != nil {
		return domain.Record{}, err
	}

	_, err = s.q.Exec(
		ctx,
		`INSERT INTO documents (id, entity_type, key, fields, children)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(),
		rec.EntityType,
		rec.Key,
		fieldsJSON,
		childrenJSON,
	)
	if err != nil {
		return domain.Record{}, fmt.Errorf("failed to create %s %s: %w", rec.EntityType, rec.Key, err)
	}
	return rec, nil
}

func (s *documentStore) Update(ctx context.Context, rec domain.Record) (domain.Record, error) {
	fieldsJSON, childrenJSON, err := encodeRecord(rec)
	if err != nil {
		return domain.Record{}, err
	}

	tag, err := s.q.Exec(
		ctx,
		`UPDATE documents
		 SET fields = $3, children = $4, updated_at = NOW()
		 WHERE entity_type = $1 AND key = $2`,
		rec.EntityType,
		rec.Key,
		fieldsJSON,
		childrenJSON,
	)
	if err != nil {
		return domain.Record{}, fmt.Errorf("failed to update %s %s: %w", rec.EntityType, rec.Key, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Record{}, fmt.Errorf("%s %s not found", rec.EntityType, rec.Key)
	}
	return rec, nil
}

func (s *documentStore) Submit(ctx context.Context, entityType, key string) error {
	tag, err := s.q.Exec(
		ctx,
		`UPDATE documents SET submitted = TRUE, updated_at = NOW()
		 WHERE entity_type = $1 AND key = $2`,
		entityType,
		key,
	)
	if err != nil {
		return fmt.Errorf("failed to submit %s %s: %w", entityType, key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s not found", entityType, key)
	}
	return nil
}

func (s *documentStore) Begin(ctx context.Context) (StoreTx, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("document store not initialized")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &documentStoreTx{documentStore: documentStore{q: tx}, tx: tx}, nil
}

type documentStoreTx struct {
	documentStore
	tx pgx.Tx
}

func (s *documentStoreTx) Begin(ctx context.Context) (StoreTx, error) {
	// Nested transactions are not supported; the payload scope is flat.
	return nil, fmt.Errorf("transaction already open")
}

func (s *documentStoreTx) Commit(ctx context.Context) error {
	return s.tx.Commit(ctx)
}

func (s *documentStoreTx) Rollback(ctx context.Context) error {
	return s.tx.Rollback(ctx)
}

// deriveKey resolves the store identity of a new record from the
// schema's identity policy.
func deriveKey(schema domain.EntitySchema, rec domain.Record) string {
	if schema.IdentityPolicy == domain.IdentityFromField {
		if value := rec.GetString(schema.IdentityField); value != "" {
			return value
		}
	}
	return uuid.NewString()
}

func encodeRecord(rec domain.Record) ([]byte, []byte, error) {
	fieldsJSON, err := json.Marshal(rec.Fields)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode fields of %s %s: %w", rec.EntityType, rec.Key, err)
	}
	var childrenJSON []byte
	if rec.Children != nil {
		childrenJSON, err = json.Marshal(rec.Children)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode children of %s %s: %w", rec.EntityType, rec.Key, err)
		}
	}
	return fieldsJSON, childrenJSON, nil
}
