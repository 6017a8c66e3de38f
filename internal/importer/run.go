package importer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/rfenton/docimport/internal/domain"
	"github.com/rfenton/docimport/internal/repository"

	"github.com/google/uuid"
)

var (
	// ErrRunFinished is returned when a terminal run is invoked again.
	ErrRunFinished = errors.New("import run already finished")
)

// ProgressFunc receives per-payload progress. The eta only ever shrinks
// between calls within one invocation.
type ProgressFunc func(processed, total int, eta time.Duration)

// Runner drives import runs: it parses the file, gates on warnings,
// applies payloads in batches with per-payload commits, keeps the
// append-only log current and derives the run status.
type Runner struct {
	store    repository.Store
	logs     repository.ImportLogRepository
	runs     repository.ImportRunRepository
	resolver *ColumnResolver

	preprocessors  *PreprocessorRegistry
	batchSize      int
	splitRowsAt    int
	maxPreviewRows int
	progress       ProgressFunc
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithBatchSize bounds the payloads held per batch.
func WithBatchSize(size int) RunnerOption {
	return func(r *Runner) {
		if size > 0 {
			r.batchSize = size
		}
	}
}

// WithSplitRowsAt bounds the data rows consumed per invocation.
func WithSplitRowsAt(rows int) RunnerOption {
	return func(r *Runner) { r.splitRowsAt = rows }
}

// WithMaxPreviewRows bounds the rows returned by Preview.
func WithMaxPreviewRows(rows int) RunnerOption {
	return func(r *Runner) {
		if rows > 0 {
			r.maxPreviewRows = rows
		}
	}
}

// WithProgress installs a progress callback.
func WithProgress(fn ProgressFunc) RunnerOption {
	return func(r *Runner) { r.progress = fn }
}

// WithPreprocessors installs the source-system preprocessor registry.
func WithPreprocessors(registry *PreprocessorRegistry) RunnerOption {
	return func(r *Runner) { r.preprocessors = registry }
}

// NewRunner creates a runner over the given collaborators.
func NewRunner(store repository.Store, logs repository.ImportLogRepository, runs repository.ImportRunRepository, opts ...RunnerOption) *Runner {
	r := &Runner{
		store:          store,
		logs:           logs,
		runs:           runs,
		resolver:       NewColumnResolver(store),
		batchSize:      1000,
		splitRowsAt:    100,
		maxPreviewRows: 10,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolver exposes the header-to-field index cache, so schema mutations
// elsewhere can invalidate it.
func (r *Runner) Resolver() *ColumnResolver {
	return r.resolver
}

// ImportInput carries the per-invocation inputs alongside the stored run
// metadata.
type ImportInput struct {
	RunID           uuid.UUID
	Content         []byte
	ColumnOverrides map[int]string
	SourceSystem    string
}

// Import executes (or resumes) a run against the uploaded content and
// returns the run in its resulting state. Per-payload failures are
// swallowed into the log; only template errors and collaborator failures
// come back as errors.
func (r *Runner) Import(ctx context.Context, input ImportInput) (domain.ImportRun, error) {
	run, err := r.runs.Get(ctx, input.RunID)
	if err != nil {
		return domain.ImportRun{}, fmt.Errorf("failed to load import run: %w", err)
	}
	if run.Status.IsTerminal() {
		return run, ErrRunFinished
	}

	fieldIndex, err := r.resolver.FieldIndexFor(ctx, run.EntityType)
	if err != nil {
		return run, err
	}

	startLine := 0
	if run.LastProcessedLine != nil {
		startLine = *run.LastProcessedLine + 1
	}

	memo := NewLinkMemo()
	file, err := NewImportFile(ctx, run.FileName, input.Content, fieldIndex, r.store, memo, FileOptions{
		ImportType:      run.ImportType,
		ColumnOverrides: input.ColumnOverrides,
		StartLine:       startLine,
		SplitRowsAt:     r.splitRowsAt,
		SourceSystem:    input.SourceSystem,
		Preprocessors:   r.preprocessors,
	})
	if err != nil {
		return run, err
	}

	payloads, err := file.Payloads(ctx)
	if err != nil {
		return run, err
	}

	// Hard gate: no writes while any non-informational warning remains.
	if blocking := domain.NonInfo(file.Warnings()); len(blocking) > 0 {
		log.Printf("[IMPORT] run %s blocked by %d warnings", run.ID, len(blocking))
		if err := r.runs.SetTemplateWarnings(ctx, run.ID, blocking); err != nil {
			return run, fmt.Errorf("failed to store template warnings: %w", err)
		}
		return r.runs.Get(ctx, run.ID)
	}
	if len(run.TemplateWarnings) > 0 {
		if err := r.runs.SetTemplateWarnings(ctx, run.ID, nil); err != nil {
			return run, fmt.Errorf("failed to clear template warnings: %w", err)
		}
	}

	if err := r.runs.SetTotalSourceLines(ctx, run.ID, file.TotalDataRows); err != nil {
		return run, fmt.Errorf("failed to store source line count: %w", err)
	}
	if err := r.runs.SetPayloadCount(ctx, run.ID, len(payloads)); err != nil {
		return run, fmt.Errorf("failed to store payload count: %w", err)
	}

	importedRows, nextLogIndex, err := r.prepareResume(ctx, run, file, len(payloads))
	if err != nil {
		return run, err
	}

	schema := fieldIndex.Schema()
	log.Printf("[IMPORT] run %s: %d payloads, %d rows already imported", run.ID, len(payloads), len(importedRows))

	var lastETA time.Duration
	started := time.Now()
	processed := 0

	for batchStart := 0; batchStart < len(payloads); batchStart += r.batchSize {
		batchEnd := batchStart + r.batchSize
		if batchEnd > len(payloads) {
			batchEnd = len(payloads)
		}

		for _, payload := range payloads[batchStart:batchEnd] {
			if err := ctx.Err(); err != nil {
				return run, err
			}

			if intersects(payload.RowNumbers(), importedRows) {
				processed++
				continue
			}

			key, payloadErr := r.applyPayload(ctx, run, schema, payload)
			if payloadErr == nil {
				memo.MarkCreated(run.EntityType, key)
				entry := domain.NewSuccessLogEntry(run.ID, nextLogIndex, key, payload.RowNumbers())
				if err := r.logs.Append(ctx, entry); err != nil {
					return run, fmt.Errorf("failed to append log entry: %w", err)
				}
				if run.Status == domain.RunStatusPending {
					run.Status = domain.RunStatusPartialSuccess
					if err := r.runs.SetStatus(ctx, run.ID, run.Status); err != nil {
						return run, fmt.Errorf("failed to advance run status: %w", err)
					}
				}
			} else {
				entry := domain.NewFailureLogEntry(run.ID, nextLogIndex, payload.RowNumbers(), payloadErr.Error(), payloadMessages(payload))
				if err := r.logs.Append(ctx, entry); err != nil {
					return run, fmt.Errorf("failed to append log entry: %w", err)
				}
			}
			nextLogIndex++
			processed++

			if r.progress != nil {
				lastETA = r.publishProgress(started, processed, len(payloads), lastETA)
			}
		}
	}

	if err := r.finalize(ctx, &run, file); err != nil {
		return run, err
	}
	return r.runs.Get(ctx, run.ID)
}

// prepareResume loads the run's log and derives the set of already
// imported row numbers. Only a full-file retry prunes failed entries
// for a second attempt: a partial success starting at the top of the
// source whose log already covers the expected payload count. A chunked
// continuation never prunes; earlier slices' failures stay on the
// ledger because the slice cursor has moved past their rows and they
// cannot be retried this invocation. For shorter logs the run was
// interrupted mid-pass and every logged row counts as attempted.
func (r *Runner) prepareResume(ctx context.Context, run domain.ImportRun, file *ImportFile, payloadCount int) (map[int]bool, int, error) {
	entries, err := r.logs.ListOrdered(ctx, run.ID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load import log: %w", err)
	}

	retryFailures := run.Status == domain.RunStatusPartialSuccess &&
		file.StartLine == 0 &&
		len(entries) >= payloadCount && payloadCount > 0

	if retryFailures {
		if err := r.logs.DeleteFailures(ctx, run.ID); err != nil {
			return nil, 0, fmt.Errorf("failed to prune failed log entries: %w", err)
		}
	}

	imported := make(map[int]bool)
	nextIndex := 0
	for _, entry := range entries {
		if entry.LogIndex >= nextIndex {
			nextIndex = entry.LogIndex + 1
		}
		if retryFailures && !entry.Success {
			continue
		}
		for _, rowNumber := range entry.RowNumbers {
			imported[rowNumber] = true
		}
	}
	return imported, nextIndex, nil
}

// applyPayload runs one payload inside its own transaction. The returned
// error is a payload failure, never fatal to the run.
func (r *Runner) applyPayload(ctx context.Context, run domain.ImportRun, schema domain.EntitySchema, payload Payload) (string, error) {
	tx, err := r.store.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}

	key, err := r.persistPayload(ctx, tx, run, schema, payload)
	if err != nil {
		// Identity derived from a field may leave acceptable partial side
		// effects behind; committing keeps them for the retry.
		if schema.IdentityPolicy == domain.IdentityFromField {
			_ = tx.Commit(ctx)
		} else {
			_ = tx.Rollback(ctx)
		}
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit payload: %w", err)
	}
	return key, nil
}

func (r *Runner) persistPayload(ctx context.Context, tx repository.StoreTx, run domain.ImportRun, schema domain.EntitySchema, payload Payload) (string, error) {
	switch run.ImportType {
	case domain.ImportTypeUpdate:
		return r.updateRecord(ctx, tx, schema, payload.Record)
	default:
		return r.insertRecord(ctx, tx, run, schema, payload.Record)
	}
}

func (r *Runner) insertRecord(ctx context.Context, tx repository.StoreTx, run domain.ImportRun, schema domain.EntitySchema, rec domain.Record) (string, error) {
	if schema.IdentityPolicy == domain.IdentityAutoAssign {
		rec.Key = ""
	}

	created, err := tx.Create(ctx, rec)
	if err != nil {
		return "", err
	}

	if schema.Submittable && run.SubmitAfterImport {
		if err := tx.Submit(ctx, created.EntityType, created.Key); err != nil {
			return "", err
		}
	}
	return created.Key, nil
}

func (r *Runner) updateRecord(ctx context.Context, tx repository.StoreTx, schema domain.EntitySchema, rec domain.Record) (string, error) {
	key := rec.Key
	if key == "" {
		key = rec.GetString(schema.IdentityFieldName())
	}
	if key == "" {
		return "", fmt.Errorf("%s has no identity value to update by", schema.Name)
	}

	existing, err := tx.Get(ctx, schema.Name, key)
	if err != nil {
		return "", fmt.Errorf("%s %s not found: %w", schema.Name, key, err)
	}

	proposed := existing.Merge(rec)
	proposed.Key = key

	diff, err := domain.DiffRecords("current", existing, "incoming", proposed)
	if err != nil {
		return "", err
	}
	if diff == "" {
		return "", fmt.Errorf("no changes to update for %s %s", schema.Name, key)
	}

	if _, err := tx.Update(ctx, proposed); err != nil {
		return "", err
	}
	return key, nil
}

// finalize computes the run's resulting status from the reloaded log and
// persists the chunk cursor for split runs.
func (r *Runner) finalize(ctx context.Context, run *domain.ImportRun, file *ImportFile) error {
	entries, err := r.logs.ListOrdered(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("failed to reload import log: %w", err)
	}

	successes, failures := 0, 0
	for _, entry := range entries {
		if entry.Success {
			successes++
		} else {
			failures++
		}
	}

	if file.Chunked {
		if err := r.runs.SetLastProcessedLine(ctx, run.ID, file.LastLine); err != nil {
			return fmt.Errorf("failed to store chunk cursor: %w", err)
		}
		lastLine := file.LastLine
		run.LastProcessedLine = &lastLine
	}
	run.TotalSourceLines = file.TotalDataRows

	var status domain.RunStatus
	switch {
	case file.Chunked && !run.ChunkFinished():
		status = domain.RunStatusSplitInProgress
	case successes == 0 && failures > 0:
		status = domain.RunStatusError
	case failures > 0:
		status = domain.RunStatusPartialSuccess
	default:
		status = domain.RunStatusSuccess
	}

	if err := r.runs.SetStatus(ctx, run.ID, status); err != nil {
		return fmt.Errorf("failed to store run status: %w", err)
	}
	run.Status = status
	log.Printf("[IMPORT] run %s finished slice: %d succeeded, %d failed, status=%s", run.ID, successes, failures, status)
	return nil
}

// publishProgress emits a monotonically non-increasing eta so one slow
// payload never makes the estimate jump upward.
func (r *Runner) publishProgress(started time.Time, processed, total int, lastETA time.Duration) time.Duration {
	if processed == 0 {
		return lastETA
	}
	perPayload := time.Since(started) / time.Duration(processed)
	eta := perPayload * time.Duration(total-processed)
	if lastETA == 0 || eta < lastETA {
		lastETA = eta
	}
	r.progress(processed, total, lastETA)
	return lastETA
}

func payloadMessages(payload Payload) []string {
	var messages []string
	for _, row := range payload.Rows {
		for _, w := range row.Warnings {
			messages = append(messages, w.Message)
		}
	}
	return messages
}

func intersects(rowNumbers []int, imported map[int]bool) bool {
	for _, n := range rowNumbers {
		if imported[n] {
			return true
		}
	}
	return false
}
