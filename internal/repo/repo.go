package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"transline/internal/domain"
)

// Repo is the SQLite-backed persistence for documents, processes and their history.
type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func scanDocument(scan func(dest ...any) error) (domain.Document, error) {
	var d domain.Document
	var instructions sql.NullString
	var status string
	err := scan(&d.ID, &d.ActivityID, &d.Text, &instructions, &d.LanguageFrom, &d.LanguageTo, &status,
		&d.TimeLimitMinutes, &d.TranslatorCount, &d.CreatedAt)
	if err != nil {
		return d, err
	}
	if instructions.Valid {
		d.Instructions = instructions.String
	}
	d.Status = domain.DocumentStatus(status)
	return d, nil
}

const documentColumns = `id,activity_id,text,instructions,lang_from,lang_to,status,time_limit_minutes,translator_count,created_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SaveDocument inserts a document or updates its mutable fields.
func (r Repo) SaveDocument(ctx context.Context, d domain.Document) error {
	return saveDocument(ctx, r.DB, d)
}

func saveDocument(ctx context.Context, db execer, d domain.Document) error {
	_, err := db.ExecContext(ctx, `INSERT INTO documents(`+documentColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(activity_id) DO UPDATE SET text=excluded.text, status=excluded.status`,
		d.ID, d.ActivityID, d.Text, nullable(d.Instructions), d.LanguageFrom, d.LanguageTo, string(d.Status),
		d.TimeLimitMinutes, d.TranslatorCount, d.CreatedAt)
	return err
}

func (r Repo) GetDocument(ctx context.Context, activityID string) (domain.Document, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE activity_id=?`, activityID)
	d, err := scanDocument(row.Scan)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	return d, err
}

func (r Repo) LoadDocuments(ctx context.Context) ([]domain.Document, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Document
	for rows.Next() {
		d, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// SaveProcess upserts the process row and replaces its version history.
func (r Repo) SaveProcess(ctx context.Context, p domain.ActorProcess) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := saveProcess(ctx, tx, p); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveState writes d and p in one transaction.
func (r Repo) SaveState(ctx context.Context, d domain.Document, p domain.ActorProcess) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := saveDocument(ctx, tx, d); err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	if err := saveProcess(ctx, tx, p); err != nil {
		return err
	}
	return tx.Commit()
}

func saveProcess(ctx context.Context, tx *sql.Tx, p domain.ActorProcess) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO processes(activity_id,role,user_id,editable,translated_text,last_modified_at,last_modified_by)
VALUES (?,?,?,?,?,?,?)
ON CONFLICT(activity_id, role) DO UPDATE SET editable=excluded.editable, translated_text=excluded.translated_text,
  last_modified_at=excluded.last_modified_at, last_modified_by=excluded.last_modified_by`,
		p.ActivityID, string(p.Role), nullable(p.UserID), p.Editable, p.TranslatedText,
		nullable(p.LastModifiedAt), nullable(p.LastModifiedBy)); err != nil {
		return fmt.Errorf("upsert process: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM text_versions WHERE activity_id=? AND role=?`, p.ActivityID, string(p.Role)); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	for i, v := range p.History {
		if _, err := tx.ExecContext(ctx, `INSERT INTO text_versions(activity_id,role,seq,text,captured_at) VALUES (?,?,?,?,?)`,
			p.ActivityID, string(p.Role), i, v.Text, v.CapturedAt); err != nil {
			return fmt.Errorf("insert version %d: %w", i, err)
		}
	}
	return nil
}

func (r Repo) LoadProcesses(ctx context.Context) ([]domain.ActorProcess, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT activity_id,role,COALESCE(user_id,''),editable,translated_text,
COALESCE(last_modified_at,''),COALESCE(last_modified_by,'') FROM processes ORDER BY activity_id, role`)
	if err != nil {
		return nil, err
	}
	var res []domain.ActorProcess
	for rows.Next() {
		var p domain.ActorProcess
		var role string
		if err := rows.Scan(&p.ActivityID, &role, &p.UserID, &p.Editable, &p.TranslatedText, &p.LastModifiedAt, &p.LastModifiedBy); err != nil {
			rows.Close()
			return nil, err
		}
		p.Role = domain.Role(role)
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	for i := range res {
		history, err := r.ListVersions(ctx, res[i].ActivityID, res[i].Role)
		if err != nil {
			return nil, err
		}
		res[i].History = history
	}
	return res, nil
}

// ListVersions returns a process's history, oldest first.
func (r Repo) ListVersions(ctx context.Context, activityID string, role domain.Role) ([]domain.TextVersion, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT text, captured_at FROM text_versions WHERE activity_id=? AND role=? ORDER BY seq ASC`,
		activityID, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TextVersion
	for rows.Next() {
		var v domain.TextVersion
		if err := rows.Scan(&v.Text, &v.CapturedAt); err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
