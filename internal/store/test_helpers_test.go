package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/bylines/internal/ir"
	"github.com/roach88/bylines/internal/predicate"
)

const testSkipKey = "_bylines_skip_backfill"

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedRecords writes authors and records in one go.
func seedRecords(t *testing.T, s *Store, authors []ir.Author, records []ir.ContentRecord) {
	t.Helper()
	ctx := context.Background()
	for _, a := range authors {
		require.NoError(t, s.PutAuthor(ctx, a))
	}
	for _, r := range records {
		require.NoError(t, s.PutRecord(ctx, r))
	}
}

// publishedPosts builds the default predicate over published posts.
func publishedPosts(t *testing.T) *predicate.Predicate {
	t.Helper()
	pred, err := predicate.Build(predicate.Params{
		Taxonomy:       "author",
		RecordTypes:    []string{"post"},
		RecordStatuses: []string{"publish"},
		SkipMetaKey:    testSkipKey,
	})
	require.NoError(t, err)
	return pred
}

func post(id, author int64) ir.ContentRecord {
	return ir.ContentRecord{ID: id, AuthorRef: author, Type: "post", Status: "publish"}
}
