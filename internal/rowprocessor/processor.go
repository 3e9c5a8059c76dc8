package rowprocessor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tabimport/internal/eventbus"
	"tabimport/internal/jobs"
	"tabimport/internal/logging"
	"tabimport/internal/mapping"
	"tabimport/internal/spreadsheet"
	"tabimport/internal/staging"
	"tabimport/internal/target"
)

// Processor runs the per-chunk algorithm against one job's staged
// file, generalized from the hardcoded vehicle case to any
// target.Repository driven by a mapping.Config.
type Processor struct {
	Jobs     *jobs.Store
	Staging  *staging.Store
	Bus      *eventbus.Bus
	Log      zerolog.Logger
	Throttle time.Duration

	mu            sync.Mutex
	lastProgress  map[uuid.UUID]time.Time
}

func New(jobStore *jobs.Store, stagingStore *staging.Store, bus *eventbus.Bus, log zerolog.Logger, throttle time.Duration) *Processor {
	return &Processor{
		Jobs:         jobStore,
		Staging:      stagingStore,
		Bus:          bus,
		Log:          log,
		Throttle:     throttle,
		lastProgress: make(map[uuid.UUID]time.Time),
	}
}

// Target bundles the repositories the processor needs for one job: the
// bulk-write/existence-probe repository for the job's own table, plus
// an optional lookup repository for FK resolution (nil when the mapping
// has no fk columns).
type Target struct {
	Repo   target.Repository
	Lookup target.LookupRepository
}

// Process runs the full job lifecycle: idempotent start check,
// PROCESSING transition, chunked read-validate-write loop, and the
// terminal COMPLETED/FAILED transition.
func (p *Processor) Process(ctx context.Context, jobID uuid.UUID, reader spreadsheet.Reader, cfg *mapping.Config, tgt Target, chunkSize int) error {
	log := logging.ForJob(p.Log, jobID.String())

	job, err := p.Jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("rowprocessor: load job: %w", err)
	}
	if job.Status.Terminal() {
		log.Info().Msg("skipping already-terminal job")
		return nil
	}

	started, err := p.Jobs.BeginProcessing(ctx, jobID)
	if err != nil {
		return fmt.Errorf("rowprocessor: begin processing: %w", err)
	}
	if started {
		p.publishStatus(jobID, jobs.StatusProcessing)
	}

	if len(cfg.RequiredColumns()) > 0 {
		missing, err := reader.ValidateHeader(cfg.RequiredColumns())
		if err != nil {
			return p.fail(ctx, jobID, fmt.Errorf("rowprocessor: validate header: %w", err))
		}
		if len(missing) > 0 {
			return p.fail(ctx, jobID, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", ")))
		}
	}

	var processedTotal, errorTotal int
	readErr := reader.ReadChunks(chunkSize, func(startRow int, rows []spreadsheet.Row) error {
		inserted, errs, err := p.processChunk(ctx, jobID, cfg, tgt, startRow, rows)
		if err != nil {
			return err
		}
		processedTotal += inserted
		errorTotal += errs
		if err := p.Jobs.AddCounters(ctx, jobID, inserted, errs); err != nil {
			return fmt.Errorf("rowprocessor: update counters: %w", err)
		}
		p.publishProgress(jobID, processedTotal, errorTotal, false)
		return nil
	})
	if readErr != nil {
		return p.fail(ctx, jobID, readErr)
	}

	p.publishProgress(jobID, processedTotal, errorTotal, true)

	if err := p.Jobs.Complete(ctx, jobID); err != nil {
		return fmt.Errorf("rowprocessor: complete: %w", err)
	}
	p.publishStatus(jobID, jobs.StatusCompleted)
	_ = p.Jobs.AppendLog(ctx, jobID, jobs.LevelInfo, fmt.Sprintf("processing completed: %d processed, %d errors", processedTotal, errorTotal))

	if job.Ext() != "" {
		if err := p.Staging.Delete(ctx, jobID, job.Ext()); err != nil {
			log.Warn().Err(err).Msg("failed to delete staged file after completion")
		}
	}
	return nil
}

func (p *Processor) fail(ctx context.Context, jobID uuid.UUID, cause error) error {
	_ = p.Jobs.AppendLog(ctx, jobID, jobs.LevelError, cause.Error())
	if err := p.Jobs.Fail(ctx, jobID); err != nil {
		jobLog := logging.ForJob(p.Log, jobID.String())
		jobLog.Error().Err(err).Msg("failed to record job failure")
	}
	p.publishStatus(jobID, jobs.StatusFailed)
	return cause
}

// rowOutcome is one row's fate after per-row processing: either a
// normalized record ready for the insert buffer, or a rejection reason.
type rowOutcome struct {
	record target.Record
	reason string
}

func (p *Processor) processChunk(ctx context.Context, jobID uuid.UUID, cfg *mapping.Config, tgt Target, startRow int, rows []spreadsheet.Row) (inserted, errored int, err error) {
	unique := cfg.UniqueColumns()
	uniqueCols := uniqueColumnMappings(cfg, unique)

	existing := map[string]bool{}
	if len(uniqueCols) > 0 {
		keys := harvestCompositeKeys(uniqueCols, rows)
		e, err := tgt.Repo.ExistingValues(ctx, unique, keys)
		if err != nil {
			return 0, 0, fmt.Errorf("rowprocessor: existing values probe for %s: %w", strings.Join(unique, ", "), err)
		}
		existing = e
	}
	seenInChunk := map[string]bool{}

	var buffer []target.Record
	for i, row := range rows {
		rowNum := startRow + i
		outcome := p.processRow(ctx, cfg, tgt, row, rowNum, uniqueCols, existing, seenInChunk)
		if outcome.reason != "" {
			errored++
			_ = p.Jobs.AppendLog(ctx, jobID, jobs.LevelWarning, fmt.Sprintf("row %d: %s", rowNum, outcome.reason))
			continue
		}
		buffer = append(buffer, outcome.record)
	}

	if len(buffer) > 0 {
		n, failed, err := tgt.Repo.BulkInsert(ctx, buffer)
		if err != nil {
			return 0, 0, fmt.Errorf("rowprocessor: bulk insert: %w", err)
		}
		inserted = n
		errored += len(failed)
		for _, idx := range failed {
			_ = p.Jobs.AppendLog(ctx, jobID, jobs.LevelError, fmt.Sprintf("row %d: rejected by target table constraint", startRow+idx))
		}
	}
	return inserted, errored, nil
}

// compositeKeyDelim joins normalized unique-column values into one
// duplicate-detection key. Must match the delimiter the target
// repositories use to fold their existence probe.
const compositeKeyDelim = "\x1f"

// uniqueColumnMappings resolves the ColumnMapping for each db_column
// name in unique, in unique's order, once per chunk.
func uniqueColumnMappings(cfg *mapping.Config, unique []string) []mapping.ColumnMapping {
	cols := make([]mapping.ColumnMapping, 0, len(unique))
	for _, dbCol := range unique {
		for _, c := range cfg.Columns {
			if c.DBColumn == dbCol {
				cols = append(cols, c)
				break
			}
		}
	}
	return cols
}

// compositeKey builds the single duplicate-detection key for row from
// every column in cols jointly: a row is a duplicate only if the whole
// tuple of unique-column values has already been seen, not if any one
// column value repeats on its own.
func compositeKey(cols []mapping.ColumnMapping, row spreadsheet.Row) string {
	parts := make([]string, len(cols))
	for i, col := range cols {
		raw, _ := row.Get(col.SourceColumn)
		parts[i] = NormalizeKey(col.Type, raw)
	}
	return strings.Join(parts, compositeKeyDelim)
}

func harvestCompositeKeys(cols []mapping.ColumnMapping, rows []spreadsheet.Row) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, compositeKey(cols, row))
	}
	return out
}

func (p *Processor) processRow(ctx context.Context, cfg *mapping.Config, tgt Target, row spreadsheet.Row, rowNum int, uniqueCols []mapping.ColumnMapping, existing, seenInChunk map[string]bool) rowOutcome {
	record := target.Record{}
	var reasons []string
	currentYear := time.Now().Year()

	for _, col := range cfg.Columns {
		raw, present := row.Get(col.SourceColumn)
		if col.Required && (!present || strings.TrimSpace(raw) == "") {
			reasons = append(reasons, fmt.Sprintf("column %q is required", col.SourceColumn))
			continue
		}
		if !present || strings.TrimSpace(raw) == "" {
			record[col.DBColumn] = nil
			continue
		}

		switch col.Type {
		case mapping.TypeString:
			v := CoerceString(raw)
			if col.DBColumn == "placa" {
				v = strings.ToUpper(v)
				if !ValidatePlaca(v) {
					reasons = append(reasons, fmt.Sprintf("placa %q is not a valid Mercosul plate", v))
					continue
				}
			}
			record[col.DBColumn] = v
		case mapping.TypeInt:
			n, err := CoerceInt(raw)
			if err != nil {
				reasons = append(reasons, fmt.Sprintf("column %q: %v", col.SourceColumn, err))
				continue
			}
			if col.DBColumn == "ano" && !ValidateAno(int(n), currentYear) {
				reasons = append(reasons, fmt.Sprintf("ano %d is out of range", n))
				continue
			}
			record[col.DBColumn] = n
		case mapping.TypeFloat, mapping.TypeDecimal:
			f, err := CoerceDecimal(raw)
			if err != nil {
				reasons = append(reasons, fmt.Sprintf("column %q: %v", col.SourceColumn, err))
				continue
			}
			if col.DBColumn == "valor_fipe" && !ValidateMonetary(f) {
				reasons = append(reasons, fmt.Sprintf("valor_fipe %v must be strictly positive", f))
				continue
			}
			record[col.DBColumn] = f
		case mapping.TypeDate:
			t, err := CoerceDate(raw)
			if err != nil {
				reasons = append(reasons, fmt.Sprintf("column %q: %v", col.SourceColumn, err))
				continue
			}
			record[col.DBColumn] = t
		case mapping.TypeDatetime:
			t, err := CoerceDatetime(raw)
			if err != nil {
				reasons = append(reasons, fmt.Sprintf("column %q: %v", col.SourceColumn, err))
				continue
			}
			record[col.DBColumn] = t
		case mapping.TypeBoolean:
			b, err := CoerceBoolean(raw)
			if err != nil {
				reasons = append(reasons, fmt.Sprintf("column %q: %v", col.SourceColumn, err))
				continue
			}
			record[col.DBColumn] = b
		case mapping.TypeFK:
			id, err := p.resolveFK(ctx, tgt, col, raw)
			if err != nil {
				reasons = append(reasons, err.Error())
				continue
			}
			record[col.DBColumn] = id
		}
	}

	if len(uniqueCols) > 0 {
		key := compositeKey(uniqueCols, row)
		switch {
		case existing[key] || seenInChunk[key]:
			names := make([]string, len(uniqueCols))
			for i, c := range uniqueCols {
				names[i] = c.DBColumn
			}
			reasons = append(reasons, fmt.Sprintf("duplicate value for unique columns %s", strings.Join(names, ", ")))
		case len(reasons) == 0:
			// Only a row that will actually be inserted claims the key;
			// a row rejected for an unrelated reason must not block a
			// later row that legitimately carries the same key.
			seenInChunk[key] = true
		}
	}

	if len(reasons) > 0 {
		return rowOutcome{reason: strings.Join(reasons, "; ")}
	}
	return rowOutcome{record: record}
}

// resolveFK returns the resolved FK id as a uuid.UUID, or a bare nil
// when on_missing=ignore calls for the field to be left NULL rather
// than written as the zero UUID.
func (p *Processor) resolveFK(ctx context.Context, tgt Target, col mapping.ColumnMapping, raw string) (any, error) {
	if tgt.Lookup == nil {
		return nil, fmt.Errorf("column %q: no fk lookup repository configured", col.SourceColumn)
	}
	value := CoerceString(raw)
	id, ok, err := tgt.Lookup.Lookup(ctx, col.FK.Table, value)
	if err != nil {
		return nil, fmt.Errorf("column %q: fk lookup: %w", col.SourceColumn, err)
	}
	if ok {
		return id, nil
	}
	switch col.FK.OnMissing {
	case mapping.OnMissingError:
		return nil, fmt.Errorf("column %q: fk value %q not found in %s", col.SourceColumn, value, col.FK.Table)
	case mapping.OnMissingIgnore:
		return nil, nil
	case mapping.OnMissingCreate:
		return tgt.Lookup.CreatePlaceholder(ctx, col.FK.Table, value)
	default:
		return nil, fmt.Errorf("column %q: invalid on_missing policy", col.SourceColumn)
	}
}

func (p *Processor) publishStatus(jobID uuid.UUID, status jobs.Status) {
	p.Bus.Publish(jobID.String(), eventbus.EventStatusUpdate, map[string]any{
		"job_id": jobID.String(),
		"status": string(status),
	})
}

// publishProgress enforces the 1-second-per-job throttle; final is
// always emitted regardless of throttle.
func (p *Processor) publishProgress(jobID uuid.UUID, processed, errored int, final bool) {
	p.mu.Lock()
	last, ok := p.lastProgress[jobID]
	now := time.Now()
	if !final && ok && now.Sub(last) < p.Throttle {
		p.mu.Unlock()
		return
	}
	p.lastProgress[jobID] = now
	p.mu.Unlock()

	p.Bus.Publish(jobID.String(), eventbus.EventProgressUpdate, map[string]any{
		"job_id":         jobID.String(),
		"processed_rows": processed,
		"error_rows":     errored,
	})
}
