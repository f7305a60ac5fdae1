package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/bylines/internal/ir"
	"github.com/roach88/bylines/internal/predicate"
)

// CountMatching returns the number of records currently matching pred.
func (s *Store) CountMatching(ctx context.Context, pred *predicate.Predicate) (int, error) {
	query, args, err := pred.CountQuery()
	if err != nil {
		return 0, fmt.Errorf("count matching: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count matching: %w", err)
	}
	return count, nil
}

// PageMatching returns up to limit records matching pred with id > afterID,
// in ascending id order. limit <= 0 returns every match.
//
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) PageMatching(ctx context.Context, pred *predicate.Predicate, limit int, afterID ir.RecordID) ([]ir.ContentRecord, error) {
	query, args, err := pred.PageQuery(limit, afterID)
	if err != nil {
		return nil, fmt.Errorf("page matching: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("page matching: %w", err)
	}
	defer rows.Close()

	records := []ir.ContentRecord{}
	for rows.Next() {
		var r ir.ContentRecord
		if err := rows.Scan(&r.ID, &r.AuthorRef, &r.Type, &r.Status); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	return records, nil
}

// Record retrieves a single content record by id.
// Returns ir.ErrNotFound if it does not exist.
func (s *Store) Record(ctx context.Context, id ir.RecordID) (ir.ContentRecord, error) {
	var r ir.ContentRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, author_ref, type, status FROM records WHERE id = ?
	`, id).Scan(&r.ID, &r.AuthorRef, &r.Type, &r.Status)
	if err != nil {
		return ir.ContentRecord{}, handleSQLError(err)
	}
	return r, nil
}

// LookupAuthor retrieves an author by id.
// Returns ir.ErrNotFound if the author does not exist.
func (s *Store) LookupAuthor(ctx context.Context, id int64) (ir.Author, error) {
	var a ir.Author
	err := s.db.QueryRowContext(ctx, `
		SELECT id, login, display_name, email FROM authors WHERE id = ?
	`, id).Scan(&a.ID, &a.Login, &a.DisplayName, &a.Email)
	if err != nil {
		return ir.Author{}, handleSQLError(err)
	}
	return a, nil
}

// Authors returns every author ordered by id.
func (s *Store) Authors(ctx context.Context) ([]ir.Author, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, login, display_name, email FROM authors ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query authors: %w", err)
	}
	defer rows.Close()

	authors := []ir.Author{}
	for rows.Next() {
		var a ir.Author
		if err := rows.Scan(&a.ID, &a.Login, &a.DisplayName, &a.Email); err != nil {
			return nil, fmt.Errorf("scan author: %w", err)
		}
		authors = append(authors, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate authors: %w", err)
	}
	return authors, nil
}

// termColumns is the column list scanTerm expects.
const termColumns = "id, taxonomy, slug, name, record_count, description, COALESCE(author_id, 0)"

// TermBySlug retrieves a term by taxonomy and slug.
// Returns ir.ErrNotFound if it does not exist.
func (s *Store) TermBySlug(ctx context.Context, taxonomy, slug string) (ir.Term, error) {
	return scanTerm(s.db.QueryRowContext(ctx,
		`SELECT `+termColumns+` FROM terms WHERE taxonomy = ? AND slug = ?`,
		taxonomy, slug))
}

// TermByAuthor retrieves the term owned by an author.
// Returns ir.ErrNotFound if the author owns no term in taxonomy.
func (s *Store) TermByAuthor(ctx context.Context, taxonomy string, authorID int64) (ir.Term, error) {
	return scanTerm(s.db.QueryRowContext(ctx,
		`SELECT `+termColumns+` FROM terms WHERE taxonomy = ? AND author_id = ?`,
		taxonomy, authorID))
}

// Term retrieves a term by id.
// Returns ir.ErrNotFound if it does not exist.
func (s *Store) Term(ctx context.Context, id int64) (ir.Term, error) {
	return scanTerm(s.db.QueryRowContext(ctx,
		`SELECT `+termColumns+` FROM terms WHERE id = ?`,
		id))
}

// TermsByTaxonomy returns every term of a taxonomy ordered by id.
func (s *Store) TermsByTaxonomy(ctx context.Context, taxonomy string) ([]ir.Term, error) {
	query, args, err := s.stbl.
		Select(termColumns).
		From("terms").
		Where(sq.Eq{"taxonomy": taxonomy}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("terms by taxonomy: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("terms by taxonomy: %w", err)
	}
	defer rows.Close()

	terms := []ir.Term{}
	for rows.Next() {
		t, err := scanTerm(rows)
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate terms: %w", err)
	}
	return terms, nil
}

// Relations returns every relation under a taxonomy ordered by record id,
// then term id.
func (s *Store) Relations(ctx context.Context, taxonomy string) ([]ir.Relation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tr.record_id, tr.term_id
		FROM term_relationships tr
		JOIN terms t ON t.id = tr.term_id
		WHERE t.taxonomy = ?
		ORDER BY tr.record_id ASC, tr.term_id ASC
	`, taxonomy)
	if err != nil {
		return nil, fmt.Errorf("query relations: %w", err)
	}
	defer rows.Close()

	relations := []ir.Relation{}
	for rows.Next() {
		var r ir.Relation
		if err := rows.Scan(&r.RecordID, &r.TermID); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		relations = append(relations, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate relations: %w", err)
	}
	return relations, nil
}

// HasMeta reports whether a record carries a metadata row with key.
func (s *Store) HasMeta(ctx context.Context, recordID ir.RecordID, key string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM record_meta WHERE record_id = ? AND meta_key = ?
	`, recordID, key).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check meta: %w", err)
	}
	return count > 0, nil
}

// RecordsWithMeta returns every record carrying key as skip markers, ordered by
// record id. The stored value is the marker's reason.
func (s *Store) RecordsWithMeta(ctx context.Context, key string) ([]ir.SkipMarker, error) {
	query, args, err := s.stbl.
		Select("record_id", "meta_value", "created_at").
		From("record_meta").
		Where(sq.Eq{"meta_key": key}).
		OrderBy("record_id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("records with meta: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("records with meta: %w", err)
	}
	defer rows.Close()

	markers := []ir.SkipMarker{}
	for rows.Next() {
		var (
			m         ir.SkipMarker
			createdAt string
		)
		if err := rows.Scan(&m.RecordID, &m.Reason, &createdAt); err != nil {
			return nil, fmt.Errorf("scan meta: %w", err)
		}
		m.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse meta timestamp for record %d: %w", m.RecordID, err)
		}
		markers = append(markers, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meta: %w", err)
	}
	return markers, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTerm(row rowScanner) (ir.Term, error) {
	var t ir.Term
	err := row.Scan(&t.ID, &t.Taxonomy, &t.Slug, &t.Name, &t.RecordCount, &t.Description, &t.AuthorID)
	if err != nil {
		err = handleSQLError(err)
		if errors.Is(err, ir.ErrNotFound) {
			return ir.Term{}, err
		}
		return ir.Term{}, fmt.Errorf("scan term: %w", err)
	}
	return t, nil
}
