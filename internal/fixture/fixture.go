// Package fixture loads YAML datasets of authors, records, relations and
// skip markers into a store.
//
// Example:
//
//	authors:
//	  - id: 1
//	    login: ursula
//	    display_name: Ursula K
//	records:
//	  - {id: 1, author: 1, type: post, status: publish}
//	  - {id: 2, author: 7, type: post, status: publish}
//	relations:
//	  - {record: 1, author: 1}
//	skip_markers:
//	  - {record: 2, reason: author_not_found}
package fixture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/bylines/internal/ir"
	"github.com/roach88/bylines/internal/skipmark"
)

// Dataset is a parsed fixture.
type Dataset struct {
	Authors     []ir.Author        `yaml:"authors"`
	Records     []ir.ContentRecord `yaml:"records"`
	Relations   []Relation         `yaml:"relations"`
	SkipMarkers []SkipMarker       `yaml:"skip_markers"`
}

// Relation pre-attaches a record to an author's term.
type Relation struct {
	Record ir.RecordID `yaml:"record"`
	Author int64       `yaml:"author"`
}

// SkipMarker is a marker present before any run.
type SkipMarker struct {
	Record ir.RecordID `yaml:"record"`
	Reason string      `yaml:"reason"`
}

// Target is the store surface a dataset is applied to.
type Target interface {
	PutAuthor(ctx context.Context, a ir.Author) error
	PutRecord(ctx context.Context, r ir.ContentRecord) error
	LookupAuthor(ctx context.Context, id int64) (ir.Author, error)
	EnsureTerm(ctx context.Context, spec ir.TermSpec) (ir.Term, bool, error)
	AttachTerm(ctx context.Context, recordID ir.RecordID, termID int64) (bool, error)
	skipmark.MetaStore
}

// Options controls where relations and markers are written.
type Options struct {
	Taxonomy    string
	SlugPrefix  string
	SkipMetaKey string

	// Now stamps skip markers. Defaults to time.Now.
	Now func() time.Time
}

// Counts reports what Apply wrote.
type Counts struct {
	Authors     int `json:"authors"`
	Records     int `json:"records"`
	Relations   int `json:"relations"`
	SkipMarkers int `json:"skip_markers"`
}

// Load reads and parses a dataset file.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}

	ds, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// Parse decodes a dataset and validates it. Unknown fields are rejected.
func Parse(data []byte) (*Dataset, error) {
	var ds Dataset
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&ds); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}

	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return &ds, nil
}

// Validate checks ids are positive and unique and that relations and
// markers reference known records.
func (ds *Dataset) Validate() error {
	authors := make(map[int64]bool, len(ds.Authors))
	for _, a := range ds.Authors {
		if a.ID <= 0 {
			return fmt.Errorf("author %q: id must be positive", a.Login)
		}
		if a.Login == "" {
			return fmt.Errorf("author %d: login is required", a.ID)
		}
		if authors[a.ID] {
			return fmt.Errorf("author %d: duplicate id", a.ID)
		}
		authors[a.ID] = true
	}

	records := make(map[ir.RecordID]bool, len(ds.Records))
	for _, r := range ds.Records {
		if r.ID <= 0 {
			return fmt.Errorf("record id must be positive, got %d", r.ID)
		}
		if r.Type == "" || r.Status == "" {
			return fmt.Errorf("record %d: type and status are required", r.ID)
		}
		if records[r.ID] {
			return fmt.Errorf("record %d: duplicate id", r.ID)
		}
		records[r.ID] = true
	}

	for _, rel := range ds.Relations {
		if !records[rel.Record] {
			return fmt.Errorf("relation: unknown record %d", rel.Record)
		}
		if !authors[rel.Author] {
			return fmt.Errorf("relation for record %d: unknown author %d", rel.Record, rel.Author)
		}
	}

	for _, m := range ds.SkipMarkers {
		if !records[m.Record] {
			return fmt.Errorf("skip marker: unknown record %d", m.Record)
		}
		if !skipmark.KnownReason(m.Reason) {
			return fmt.Errorf("skip marker for record %d: unknown reason %q", m.Record, m.Reason)
		}
	}

	return nil
}

// Apply writes the dataset. Authors and records are upserted; relations and
// markers are create-if-absent, so applying twice is harmless.
func (ds *Dataset) Apply(ctx context.Context, t Target, opts Options) (Counts, error) {
	var c Counts

	for _, a := range ds.Authors {
		if err := t.PutAuthor(ctx, a); err != nil {
			return c, err
		}
		c.Authors++
	}

	for _, r := range ds.Records {
		if err := t.PutRecord(ctx, r); err != nil {
			return c, err
		}
		c.Records++
	}

	for _, rel := range ds.Relations {
		author, err := t.LookupAuthor(ctx, rel.Author)
		if err != nil {
			return c, fmt.Errorf("relation for record %d: %w", rel.Record, err)
		}
		term, _, err := t.EnsureTerm(ctx, ir.NewTermSpec(opts.Taxonomy, opts.SlugPrefix, author))
		if err != nil {
			return c, fmt.Errorf("relation for record %d: %w", rel.Record, err)
		}
		inserted, err := t.AttachTerm(ctx, rel.Record, term.ID)
		if err != nil {
			return c, err
		}
		if inserted {
			c.Relations++
		}
	}

	if len(ds.SkipMarkers) > 0 {
		markers, err := skipmark.New(t, opts.SkipMetaKey, opts.Now)
		if err != nil {
			return c, err
		}
		for _, m := range ds.SkipMarkers {
			created, err := markers.Mark(ctx, m.Record, m.Reason)
			if err != nil {
				return c, err
			}
			if created {
				c.SkipMarkers++
			}
		}
	}

	return c, nil
}
