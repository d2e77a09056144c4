package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"auditline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertIngestTx(ctx context.Context, tx *sql.Tx, in domain.Ingest) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO ingests(id,source,actor_id,line_count,entry_count,error_count,created_at) VALUES (?,?,?,?,?,?,?)`,
		in.ID, nullable(in.Source), in.ActorID, in.LineCount, in.EntryCount, in.ErrorCount, in.CreatedAt)
	return err
}

func scanIngest(row *sql.Row) (domain.Ingest, error) {
	var in domain.Ingest
	var source sql.NullString
	err := row.Scan(&in.ID, &source, &in.ActorID, &in.LineCount, &in.EntryCount, &in.ErrorCount, &in.CreatedAt)
	if err == sql.ErrNoRows {
		return in, ErrNotFound
	}
	if source.Valid {
		in.Source = source.String
	}
	return in, err
}

func (r Repo) GetIngest(ctx context.Context, id string) (domain.Ingest, error) {
	return scanIngest(r.DB.QueryRowContext(ctx,
		`SELECT id,source,actor_id,line_count,entry_count,error_count,created_at FROM ingests WHERE id=?`, id))
}

// LatestIngest returns the most recently created ingest.
func (r Repo) LatestIngest(ctx context.Context) (domain.Ingest, error) {
	return scanIngest(r.DB.QueryRowContext(ctx,
		`SELECT id,source,actor_id,line_count,entry_count,error_count,created_at FROM ingests ORDER BY created_at DESC, id DESC LIMIT 1`))
}

func (r Repo) ListIngests(ctx context.Context, limit int) ([]domain.Ingest, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,source,actor_id,line_count,entry_count,error_count,created_at FROM ingests ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Ingest
	for rows.Next() {
		var in domain.Ingest
		var source sql.NullString
		if err := rows.Scan(&in.ID, &source, &in.ActorID, &in.LineCount, &in.EntryCount, &in.ErrorCount, &in.CreatedAt); err != nil {
			return nil, err
		}
		if source.Valid {
			in.Source = source.String
		}
		res = append(res, in)
	}
	return res, rows.Err()
}

func (r Repo) DeleteIngest(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM ingests WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertEntriesTx(ctx context.Context, tx *sql.Tx, ingestID string, entries []domain.LogEntry) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO entries(ingest_id,instruction_id,title,category,status,created_at,owner,revision,summary,steps_json,owner_notes,action_code,action_name,action_category,action_color)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, e := range entries {
		steps, err := json.Marshal(e.Payload.Steps)
		if err != nil {
			return fmt.Errorf("marshal steps: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, ingestID, e.ID, e.Title, string(e.Category), string(e.Status), e.CreatedAt, e.Owner,
			e.Payload.Revision, e.Payload.Summary, string(steps), nullable(e.Payload.OwnerNotes),
			e.Action.Code, e.Action.Name, string(e.Action.Category), e.Action.Color); err != nil {
			return err
		}
	}
	return nil
}

// EntryFilter narrows ListEntries. Zero values mean no filtering.
type EntryFilter struct {
	Category string
	Status   string
	Owner    string
}

// ListEntries returns an ingest's entries in stored order (createdAt
// descending, the parser's output order).
func (r Repo) ListEntries(ctx context.Context, ingestID string, filter EntryFilter) ([]domain.LogEntry, error) {
	query := `SELECT instruction_id,title,category,status,created_at,owner,revision,summary,steps_json,owner_notes,action_code,action_name,action_category,action_color
FROM entries WHERE ingest_id=?`
	args := []any{ingestID}
	if filter.Category != "" {
		query += ` AND category=?`
		args = append(args, filter.Category)
	}
	if filter.Status != "" {
		query += ` AND status=?`
		args = append(args, filter.Status)
	}
	if filter.Owner != "" {
		query += ` AND owner=?`
		args = append(args, filter.Owner)
	}
	query += ` ORDER BY seq ASC`

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LogEntry
	for rows.Next() {
		var e domain.LogEntry
		var stepsJSON string
		var ownerNotes sql.NullString
		if err := rows.Scan(&e.ID, &e.Title, &e.Category, &e.Status, &e.CreatedAt, &e.Owner,
			&e.Payload.Revision, &e.Payload.Summary, &stepsJSON, &ownerNotes,
			&e.Action.Code, &e.Action.Name, &e.Action.Category, &e.Action.Color); err != nil {
			return nil, err
		}
		if ownerNotes.Valid {
			e.Payload.OwnerNotes = ownerNotes.String
		}
		if stepsJSON != "" {
			if err := json.Unmarshal([]byte(stepsJSON), &e.Payload.Steps); err != nil {
				return nil, fmt.Errorf("unmarshal steps: %w", err)
			}
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) InsertParseErrorsTx(ctx context.Context, tx *sql.Tx, ingestID string, errsIn []domain.ParseError) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO parse_errors(ingest_id,line,message,raw) VALUES (?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, pe := range errsIn {
		if _, err := stmt.ExecContext(ctx, ingestID, pe.Line, pe.Message, nullable(pe.Raw)); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) ListParseErrors(ctx context.Context, ingestID string) ([]domain.ParseError, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT line,message,raw FROM parse_errors WHERE ingest_id=? ORDER BY seq ASC`, ingestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ParseError
	for rows.Next() {
		var pe domain.ParseError
		var raw sql.NullString
		if err := rows.Scan(&pe.Line, &pe.Message, &raw); err != nil {
			return nil, err
		}
		if raw.Valid {
			pe.Raw = raw.String
		}
		res = append(res, pe)
	}
	return res, rows.Err()
}

func (r Repo) InsertReportTx(ctx context.Context, tx *sql.Tx, ingestID string, report domain.ValidationReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO reports(ingest_id,generated_at,report_json,error_count,warning_count) VALUES (?,?,?,?,?)`,
		ingestID, report.GeneratedAt, string(data), report.Totals.ErrorCount, report.Totals.WarningCount)
	return err
}

func (r Repo) GetReport(ctx context.Context, ingestID string) (domain.ValidationReport, error) {
	var data string
	err := r.DB.QueryRowContext(ctx, `SELECT report_json FROM reports WHERE ingest_id=?`, ingestID).Scan(&data)
	if err == sql.ErrNoRows {
		return domain.ValidationReport{}, ErrNotFound
	}
	if err != nil {
		return domain.ValidationReport{}, err
	}
	var report domain.ValidationReport
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		return domain.ValidationReport{}, fmt.Errorf("unmarshal report: %w", err)
	}
	return report, nil
}

// LatestEvents returns up to n events, newest first, optionally filtered.
func (r Repo) LatestEvents(ctx context.Context, n int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	if n <= 0 {
		n = 20
	}
	query := `SELECT id,ts,type,ingest_id,entity_kind,entity_id,actor_id,payload_json FROM events WHERE 1=1`
	args := []any{}
	if evtType != "" {
		query += ` AND type=?`
		args = append(args, evtType)
	}
	if entityKind != "" {
		query += ` AND entity_kind=?`
		args = append(args, entityKind)
	}
	if entityID != "" {
		query += ` AND entity_id=?`
		args = append(args, entityID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, n)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var ingestID, entity sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &ingestID, &e.EntityKind, &entity, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		if ingestID.Valid {
			e.IngestID = ingestID.String
		}
		if entity.Valid {
			e.EntityID = entity.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
