package rag

import (
	"errors"
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// Test_ScoredChunkFromPoint_MapsFullPayload verifies that every payload field
// written at upsert time round-trips back onto the chunk, including the
// document provenance fields.
func Test_ScoredChunkFromPoint_MapsFullPayload(t *testing.T) {
	t.Parallel()

	updated := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	point := &qdrant.ScoredPoint{
		Id:    qdrant.NewIDUUID("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		Score: 0.42,
		Payload: qdrant.NewValueMap(map[string]interface{}{
			FieldText:        "MongoDB recommends daily backups.",
			FieldSourceID:    "docs/backups",
			FieldChunkIndex:  int64(3),
			FieldSourceURL:   "https://www.mongodb.com/docs/backups",
			FieldFormat:      "markdown",
			FieldProductName: "mongodb",
			FieldContentType: "tutorial",
			FieldVersion:     "7.0",
			FieldUpdated:     updated.Unix(),
			FieldTags:        []interface{}{"backup", "ops"},
		}),
	}

	sc := scoredChunkFromPoint(point)

	if sc.ID != "6ba7b810-9dad-11d1-80b4-00c04fd430c8" {
		t.Errorf("ID: got %q", sc.ID)
	}
	if sc.Score != 0.42 {
		t.Errorf("Score: expected 0.42, got %v", sc.Score)
	}
	if sc.Text != "MongoDB recommends daily backups." {
		t.Errorf("Text: got %q", sc.Text)
	}
	if sc.SourceID != "docs/backups" || sc.Index != 3 {
		t.Errorf("provenance: got %s#%d", sc.SourceID, sc.Index)
	}
	if sc.SourceURL != "https://www.mongodb.com/docs/backups" {
		t.Errorf("SourceURL: got %q", sc.SourceURL)
	}
	if sc.Format != "markdown" {
		t.Errorf("Format: got %q", sc.Format)
	}
	if sc.Metadata.ProductName != "mongodb" || sc.Metadata.ContentType != "tutorial" || sc.Metadata.Version != "7.0" {
		t.Errorf("metadata: got %+v", sc.Metadata)
	}
	if !sc.Metadata.Updated.Equal(updated) {
		t.Errorf("Updated: expected %v, got %v", updated, sc.Metadata.Updated)
	}
	if len(sc.Metadata.Tags) != 2 || sc.Metadata.Tags[0] != "backup" || sc.Metadata.Tags[1] != "ops" {
		t.Errorf("Tags: got %v", sc.Metadata.Tags)
	}
}

// Test_ScoredChunkFromPoint_SparsePayload verifies optional fields stay zero
// when absent.
func Test_ScoredChunkFromPoint_SparsePayload(t *testing.T) {
	t.Parallel()

	point := &qdrant.ScoredPoint{
		Id:    qdrant.NewIDUUID("6ba7b811-9dad-11d1-80b4-00c04fd430c8"),
		Score: 0.9,
		Payload: qdrant.NewValueMap(map[string]interface{}{
			FieldText:       "plain passage",
			FieldSourceID:   "doc-1",
			FieldChunkIndex: int64(0),
		}),
	}

	sc := scoredChunkFromPoint(point)

	if sc.SourceURL != "" || sc.Format != "" {
		t.Errorf("expected empty provenance fields, got %q / %q", sc.SourceURL, sc.Format)
	}
	if sc.Metadata.ProductName != "" || len(sc.Metadata.Tags) != 0 || !sc.Metadata.Updated.IsZero() {
		t.Errorf("expected zero metadata, got %+v", sc.Metadata)
	}
}

// Test_BuildFilter_RejectsUnindexedField verifies the store-level backstop
// for filters referencing undeclared fields.
func Test_BuildFilter_RejectsUnindexedField(t *testing.T) {
	t.Parallel()

	s := &QdrantStore{def: &IndexDefinition{
		Collection:       "test",
		VectorSize:       3,
		FilterableFields: []string{FieldProductName},
	}}

	if _, err := s.buildFilter(&Filter{Match: map[string]string{FieldProductName: "redis"}}); err != nil {
		t.Fatalf("declared field: unexpected error %v", err)
	}

	_, err := s.buildFilter(&Filter{Match: map[string]string{FieldVersion: "1.0"}})
	if !errors.Is(err, ErrFilterNotIndexed) {
		t.Fatalf("expected ErrFilterNotIndexed, got %v", err)
	}

	_, err = s.buildFilter(&Filter{UpdatedAfter: time.Unix(1700000000, 0)})
	if !errors.Is(err, ErrFilterNotIndexed) {
		t.Fatalf("range on undeclared updated field: expected ErrFilterNotIndexed, got %v", err)
	}
}
