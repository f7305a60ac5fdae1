package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/bylines/internal/ir"
)

// PutAuthor inserts or replaces an author.
func (s *Store) PutAuthor(ctx context.Context, a ir.Author) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO authors (id, login, display_name, email)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			login = excluded.login,
			display_name = excluded.display_name,
			email = excluded.email
	`, a.ID, a.Login, a.DisplayName, a.Email)
	if err != nil {
		return fmt.Errorf("put author %d: %w", a.ID, err)
	}
	return nil
}

// PutRecord inserts or replaces a content record.
func (s *Store) PutRecord(ctx context.Context, r ir.ContentRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (id, author_ref, type, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			author_ref = excluded.author_ref,
			type = excluded.type,
			status = excluded.status
	`, r.ID, r.AuthorRef, r.Type, r.Status)
	if err != nil {
		return fmt.Errorf("put record %d: %w", r.ID, err)
	}
	return nil
}

// DeleteRecord removes a record together with its relations and metadata.
// Deleting a missing record is not an error.
func (s *Store) DeleteRecord(ctx context.Context, id ir.RecordID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete record %d: %w", id, err)
	}
	return nil
}

// maxSlugAttempts bounds the slugs tried for one author's new term.
const maxSlugAttempts = 10

// EnsureTerm returns the term for spec, creating it when absent. Returns the
// term and whether it was created.
//
// With spec.AuthorID set, the author's own term is returned. A new term takes
// spec.Slug, or "<slug>-<author id>" (then "-2", "-3", ...) when another
// author already holds that slug. A term with the slug and no owner is
// claimed by the author. Without AuthorID the term is identified by slug.
//
// Inserts use ON CONFLICT DO NOTHING inside one transaction, so two callers
// racing on the same author end up with the same row.
func (s *Store) EnsureTerm(ctx context.Context, spec ir.TermSpec) (term ir.Term, created bool, err error) {
	if spec.Taxonomy == "" || spec.Slug == "" {
		return ir.Term{}, false, fmt.Errorf("ensure term: taxonomy and slug are required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.Term{}, false, fmt.Errorf("ensure term: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if spec.AuthorID == 0 {
		term, created, err = ensureTermBySlug(ctx, tx, spec)
	} else {
		term, created, err = ensureAuthorTerm(ctx, tx, spec)
	}
	if err != nil {
		return ir.Term{}, false, fmt.Errorf("ensure term %q: %w", spec.Slug, err)
	}

	if err := tx.Commit(); err != nil {
		return ir.Term{}, false, fmt.Errorf("ensure term: commit: %w", err)
	}

	return term, created, nil
}

func ensureTermBySlug(ctx context.Context, tx *sql.Tx, spec ir.TermSpec) (ir.Term, bool, error) {
	created, err := insertTerm(ctx, tx, spec, spec.Slug)
	if err != nil {
		return ir.Term{}, false, err
	}
	term, err := termBySlugTx(ctx, tx, spec.Taxonomy, spec.Slug)
	if err != nil {
		return ir.Term{}, false, err
	}
	return term, created, nil
}

func ensureAuthorTerm(ctx context.Context, tx *sql.Tx, spec ir.TermSpec) (ir.Term, bool, error) {
	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		owned, err := scanTerm(tx.QueryRowContext(ctx,
			`SELECT `+termColumns+` FROM terms WHERE taxonomy = ? AND author_id = ?`,
			spec.Taxonomy, spec.AuthorID))
		switch {
		case err == nil:
			return owned, false, nil
		case !errors.Is(err, ir.ErrNotFound):
			return ir.Term{}, false, err
		}

		slug := spec.Slug
		if attempt > 0 {
			slug = ir.DisambiguatedSlug(spec.Slug, spec.AuthorID, attempt)
		}

		inserted, err := insertTerm(ctx, tx, spec, slug)
		if err != nil {
			return ir.Term{}, false, err
		}
		if inserted {
			term, err := termBySlugTx(ctx, tx, spec.Taxonomy, slug)
			return term, err == nil, err
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE terms SET author_id = ?
			WHERE taxonomy = ? AND slug = ? AND author_id IS NULL
		`, spec.AuthorID, spec.Taxonomy, slug)
		if err != nil {
			return ir.Term{}, false, fmt.Errorf("claim: %w", err)
		}
		if n, err := result.RowsAffected(); err != nil {
			return ir.Term{}, false, fmt.Errorf("claim: rows affected: %w", err)
		} else if n > 0 {
			term, err := termBySlugTx(ctx, tx, spec.Taxonomy, slug)
			return term, false, err
		}
	}
	return ir.Term{}, false, fmt.Errorf("no free slug for author %d after %d attempts", spec.AuthorID, maxSlugAttempts)
}

// insertTerm creates a term unless its slug or owner is already taken.
func insertTerm(ctx context.Context, tx *sql.Tx, spec ir.TermSpec, slug string) (bool, error) {
	owner := sql.NullInt64{Int64: spec.AuthorID, Valid: spec.AuthorID != 0}
	result, err := tx.ExecContext(ctx, `
		INSERT INTO terms (taxonomy, slug, name, record_count, description, author_id)
		VALUES (?, ?, ?, 0, ?, ?)
		ON CONFLICT DO NOTHING
	`, spec.Taxonomy, slug, spec.Name, spec.Description, owner)
	if err != nil {
		return false, fmt.Errorf("insert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

func termBySlugTx(ctx context.Context, tx *sql.Tx, taxonomy, slug string) (ir.Term, error) {
	term, err := scanTerm(tx.QueryRowContext(ctx,
		`SELECT `+termColumns+` FROM terms WHERE taxonomy = ? AND slug = ?`,
		taxonomy, slug))
	if err != nil {
		return ir.Term{}, fmt.Errorf("select: %w", err)
	}
	return term, nil
}

// AttachTerm relates a record to a term. Returns inserted=false when the
// relation already exists.
//
// Note: both the record and the term must exist (foreign key constraints).
func (s *Store) AttachTerm(ctx context.Context, recordID ir.RecordID, termID int64) (inserted bool, err error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO term_relationships (record_id, term_id, term_order)
		VALUES (?, ?, 0)
		ON CONFLICT(record_id, term_id) DO NOTHING
	`, recordID, termID)
	if err != nil {
		return false, fmt.Errorf("attach term %d to record %d: %w", termID, recordID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("attach term: rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// AddMeta writes a metadata row for a record. The first write wins: an
// existing row with the same key is left untouched and inserted is false.
func (s *Store) AddMeta(ctx context.Context, recordID ir.RecordID, key, value string, createdAt time.Time) (inserted bool, err error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO record_meta (record_id, meta_key, meta_value, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(record_id, meta_key) DO NOTHING
	`, recordID, key, value, createdAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("add meta %q to record %d: %w", key, recordID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add meta: rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// DeleteMeta removes metadata rows with key. With no ids every row carrying
// the key is removed. Returns the number of rows deleted.
func (s *Store) DeleteMeta(ctx context.Context, key string, ids ...ir.RecordID) (int64, error) {
	del := s.stbl.Delete("record_meta").Where(sq.Eq{"meta_key": key})
	if len(ids) > 0 {
		del = del.Where(sq.Eq{"record_id": ids})
	}

	query, args, err := del.ToSql()
	if err != nil {
		return 0, fmt.Errorf("delete meta: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete meta: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete meta: rows affected: %w", err)
	}
	return n, nil
}

// RefreshTermStats recomputes a term's record_count from the relation table
// and stores description. Returns the updated term.
func (s *Store) RefreshTermStats(ctx context.Context, termID int64, description string) (ir.Term, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE terms SET
			record_count = (SELECT COUNT(*) FROM term_relationships WHERE term_id = ?),
			description = ?
		WHERE id = ?
	`, termID, description, termID)
	if err != nil {
		return ir.Term{}, fmt.Errorf("refresh term %d: %w", termID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return ir.Term{}, fmt.Errorf("refresh term %d: rows affected: %w", termID, err)
	}
	if rowsAffected == 0 {
		return ir.Term{}, ir.ErrNotFound
	}

	return s.Term(ctx, termID)
}
