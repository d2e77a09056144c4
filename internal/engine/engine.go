package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"auditline/internal/config"
	"auditline/internal/domain"
	"auditline/internal/events"
	"auditline/internal/parser"
	"auditline/internal/repo"
	"auditline/internal/rules"
	"auditline/internal/validate"
)

// ErrNoUsableRecords is returned when a log file parses to zero entries.
// Individual parse errors are still recorded; this is the distinct
// higher-level condition for a file with nothing to validate.
var ErrNoUsableRecords = errors.New("no usable records in log file")

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Config  *config.Config
	Catalog rules.Catalog
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Events:  events.Writer{DB: db},
		Config:  cfg,
		Catalog: rules.FromConfig(cfg),
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// IngestOptions are parameters for processing one log upload.
type IngestOptions struct {
	Raw     string
	Source  string
	ActorID string
}

// IngestResult is everything one pipeline run produced.
type IngestResult struct {
	Ingest  domain.Ingest           `json:"ingest"`
	Entries []domain.LogEntry       `json:"entries"`
	Errors  []domain.ParseError     `json:"errors,omitempty"`
	Report  domain.ValidationReport `json:"report"`
}

// IngestLog runs the full pipeline on one raw log: parse, validate,
// aggregate, persist. Each invocation is independent; nothing from earlier
// ingests feeds into validation. When no line parses to an entry, the ingest
// and its parse errors are still recorded and ErrNoUsableRecords is
// returned alongside the partial result.
func (e Engine) IngestLog(ctx context.Context, opts IngestOptions) (IngestResult, error) {
	if opts.ActorID == "" {
		opts.ActorID = "local-user"
	}

	parsed := parser.Parse(opts.Raw)
	now := e.now().UTC().Format(time.RFC3339)
	in := domain.Ingest{
		ID:         uuid.New().String(),
		Source:     opts.Source,
		ActorID:    opts.ActorID,
		LineCount:  len(parsed.Entries) + len(parsed.Errors),
		EntryCount: len(parsed.Entries),
		ErrorCount: len(parsed.Errors),
		CreatedAt:  now,
	}
	result := IngestResult{Ingest: in, Entries: parsed.Entries, Errors: parsed.Errors}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return IngestResult{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertIngestTx(ctx, tx, in); err != nil {
		return IngestResult{}, fmt.Errorf("insert ingest: %w", err)
	}
	if err := e.Repo.InsertParseErrorsTx(ctx, tx, in.ID, parsed.Errors); err != nil {
		return IngestResult{}, fmt.Errorf("insert parse errors: %w", err)
	}

	if len(parsed.Entries) == 0 {
		if err := e.Events.Append(ctx, tx, "ingest.rejected", in.ID, "ingest", in.ID, opts.ActorID,
			events.EventPayload{"source": opts.Source, "parse_errors": len(parsed.Errors)}); err != nil {
			return IngestResult{}, err
		}
		if err := tx.Commit(); err != nil {
			return IngestResult{}, err
		}
		return result, ErrNoUsableRecords
	}

	if err := e.Repo.InsertEntriesTx(ctx, tx, in.ID, parsed.Entries); err != nil {
		return IngestResult{}, fmt.Errorf("insert entries: %w", err)
	}

	validator := validate.Validator{Catalog: e.Catalog, Now: e.Now}
	report := validator.Run(parsed.Entries)
	result.Report = report

	if err := e.Repo.InsertReportTx(ctx, tx, in.ID, report); err != nil {
		return IngestResult{}, fmt.Errorf("insert report: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "ingest.completed", in.ID, "ingest", in.ID, opts.ActorID,
		events.EventPayload{"source": opts.Source, "entries": in.EntryCount, "parse_errors": in.ErrorCount}); err != nil {
		return IngestResult{}, err
	}
	if err := e.Events.Append(ctx, tx, "report.generated", in.ID, "report", in.ID, opts.ActorID,
		events.EventPayload{
			"instructions": report.Totals.InstructionCount,
			"affected":     report.Totals.AffectedCount,
			"errors":       report.Totals.ErrorCount,
			"warnings":     report.Totals.WarningCount,
		}); err != nil {
		return IngestResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return IngestResult{}, err
	}
	return result, nil
}

// Validate runs parse-and-validate without touching the database. It backs
// dry runs and callers that bring their own storage.
func (e Engine) Validate(raw string) (IngestResult, error) {
	parsed := parser.Parse(raw)
	result := IngestResult{Entries: parsed.Entries, Errors: parsed.Errors}
	if len(parsed.Entries) == 0 {
		return result, ErrNoUsableRecords
	}
	validator := validate.Validator{Catalog: e.Catalog, Now: e.Now}
	result.Report = validator.Run(parsed.Entries)
	return result, nil
}

// ResolveIngest returns the ingest with the given id, or the latest one when
// id is empty.
func (e Engine) ResolveIngest(ctx context.Context, id string) (domain.Ingest, error) {
	if id == "" {
		return e.Repo.LatestIngest(ctx)
	}
	return e.Repo.GetIngest(ctx, id)
}
