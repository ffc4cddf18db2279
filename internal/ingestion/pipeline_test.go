package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/54b3r/docqa-go/internal/rag"
)

// fakeEmbedder returns constant-dimension vectors and records each batch.
type fakeEmbedder struct {
	batches [][]string
	err     error
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	batch := make([]string, len(texts))
	copy(batch, texts)
	f.batches = append(f.batches, batch)
	vecs := make([][]float32, len(texts))
	for i := range vecs {
		vecs[i] = []float32{1, 2, 3}
	}
	return vecs, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 2, 3}, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }

// storeOp records one vector store call for order assertions.
type storeOp struct {
	kind     string // "delete" or "upsert"
	sourceID string
	chunks   []rag.Chunk
}

// fakeStore records delete and upsert calls.
type fakeStore struct {
	ops       []storeOp
	upsertErr error
}

func (f *fakeStore) Upsert(_ context.Context, chunks []rag.Chunk, embeddings [][]float32) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if len(chunks) != len(embeddings) {
		return errors.New("fake store: chunk/embedding count mismatch")
	}
	f.ops = append(f.ops, storeOp{kind: "upsert", chunks: chunks})
	return nil
}

func (f *fakeStore) Search(_ context.Context, _ []float32, _ int, _ *rag.Filter) ([]rag.ScoredChunk, error) {
	return nil, nil
}

func (f *fakeStore) DeleteBySource(_ context.Context, sourceID string) error {
	f.ops = append(f.ops, storeOp{kind: "delete", sourceID: sourceID})
	return nil
}

func (f *fakeStore) IndexStatus(_ context.Context) (rag.IndexState, error) {
	return rag.IndexReady, nil
}

func (f *fakeStore) Count(_ context.Context) (uint64, error) { return 0, nil }

func (f *fakeStore) Close() error { return nil }

func newTestPipeline(t *testing.T, e *fakeEmbedder, s *fakeStore) *Pipeline {
	t.Helper()
	p, err := NewPipeline(e, s, &Config{TokenBudget: 4, Overlap: 1})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p
}

func Test_Ingest_OneEmbedBatchPerDocument(t *testing.T) {
	t.Parallel()
	e := &fakeEmbedder{}
	s := &fakeStore{}
	p := newTestPipeline(t, e, s)

	docs := []rag.Document{
		{SourceID: "doc-a", Body: "alpha beta gamma delta epsilon zeta"},
		{SourceID: "doc-b", Body: "one two three"},
	}
	if err := p.Ingest(context.Background(), docs, nil); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if len(e.batches) != 2 {
		t.Fatalf("want one embed batch per document, got %d batches", len(e.batches))
	}
	// Budget 4 / overlap 1 over 6 tokens yields two chunks for doc-a.
	if len(e.batches[0]) != 2 {
		t.Errorf("doc-a batch has %d chunks, want 2", len(e.batches[0]))
	}
	if len(e.batches[1]) != 1 {
		t.Errorf("doc-b batch has %d chunks, want 1", len(e.batches[1]))
	}
}

func Test_Ingest_DeleteBeforeUpsert(t *testing.T) {
	t.Parallel()
	e := &fakeEmbedder{}
	s := &fakeStore{}
	p := newTestPipeline(t, e, s)

	docs := []rag.Document{{SourceID: "doc-a", Body: "alpha beta gamma"}}
	if err := p.Ingest(context.Background(), docs, nil); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if len(s.ops) != 2 {
		t.Fatalf("want delete then upsert, got %d ops", len(s.ops))
	}
	if s.ops[0].kind != "delete" || s.ops[0].sourceID != "doc-a" {
		t.Errorf("first op = %+v, want delete for doc-a", s.ops[0])
	}
	if s.ops[1].kind != "upsert" {
		t.Errorf("second op = %+v, want upsert", s.ops[1])
	}
}

func Test_Ingest_ChunksCarryMetadataAndSequence(t *testing.T) {
	t.Parallel()
	e := &fakeEmbedder{}
	s := &fakeStore{}
	p := newTestPipeline(t, e, s)

	docs := []rag.Document{{
		SourceID: "doc-a",
		Body:     "alpha beta gamma delta epsilon zeta",
		Metadata: rag.Metadata{ProductName: "mongodb", ContentType: "guide"},
	}}
	if err := p.Ingest(context.Background(), docs, nil); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	var upserted []rag.Chunk
	for _, op := range s.ops {
		if op.kind == "upsert" {
			upserted = op.chunks
		}
	}
	if len(upserted) != 2 {
		t.Fatalf("want 2 chunks, got %d", len(upserted))
	}
	for i, c := range upserted {
		if c.Index != i {
			t.Errorf("chunk %d has sequence index %d", i, c.Index)
		}
		if c.SourceID != "doc-a" {
			t.Errorf("chunk %d source = %q", i, c.SourceID)
		}
		if c.Metadata.ProductName != "mongodb" || c.Metadata.ContentType != "guide" {
			t.Errorf("chunk %d metadata not inherited: %+v", i, c.Metadata)
		}
	}
}

func Test_Ingest_ChunksCarrySourceURLAndFormat(t *testing.T) {
	t.Parallel()
	e := &fakeEmbedder{}
	s := &fakeStore{}
	p := newTestPipeline(t, e, s)

	docs := []rag.Document{{
		SourceID:  "docs/backups",
		Body:      "alpha beta gamma delta epsilon zeta",
		SourceURL: "https://www.mongodb.com/docs/backups",
		Format:    "markdown",
	}}
	if err := p.Ingest(context.Background(), docs, nil); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	for _, op := range s.ops {
		if op.kind != "upsert" {
			continue
		}
		for i, c := range op.chunks {
			if c.SourceURL != "https://www.mongodb.com/docs/backups" {
				t.Errorf("chunk %d SourceURL = %q", i, c.SourceURL)
			}
			if c.Format != "markdown" {
				t.Errorf("chunk %d Format = %q", i, c.Format)
			}
		}
	}
}

// Test_Ingest_ChunkTagsNotShared pins that each chunk owns its tag storage:
// mutating one chunk's tags must not leak into siblings or the document.
func Test_Ingest_ChunkTagsNotShared(t *testing.T) {
	t.Parallel()
	e := &fakeEmbedder{}
	s := &fakeStore{}
	p := newTestPipeline(t, e, s)

	docs := []rag.Document{{
		SourceID: "doc-a",
		Body:     "alpha beta gamma delta epsilon zeta",
		Metadata: rag.Metadata{Tags: []string{"backup", "ops"}},
	}}
	if err := p.Ingest(context.Background(), docs, nil); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	var upserted []rag.Chunk
	for _, op := range s.ops {
		if op.kind == "upsert" {
			upserted = op.chunks
		}
	}
	if len(upserted) < 2 {
		t.Fatalf("want at least 2 chunks, got %d", len(upserted))
	}

	upserted[0].Metadata.Tags[0] = "mutated"

	if docs[0].Metadata.Tags[0] != "backup" {
		t.Errorf("document tags aliased by chunk: %v", docs[0].Metadata.Tags)
	}
	if upserted[1].Metadata.Tags[0] != "backup" {
		t.Errorf("sibling chunk tags aliased: %v", upserted[1].Metadata.Tags)
	}
}

func Test_Ingest_ChunkIDsDeterministic(t *testing.T) {
	t.Parallel()

	a := chunkID("doc-a", 0)
	if a != chunkID("doc-a", 0) {
		t.Error("chunkID not deterministic")
	}
	if a == chunkID("doc-a", 1) {
		t.Error("chunkID collides across indexes")
	}
	if a == chunkID("doc-b", 0) {
		t.Error("chunkID collides across sources")
	}
	// Qdrant accepts only UUID-shaped string IDs.
	if len(a) != 36 || a[8] != '-' || a[13] != '-' || a[18] != '-' || a[23] != '-' {
		t.Errorf("chunkID %q is not UUID-shaped", a)
	}
}

func Test_Ingest_EmbedFailureAborts(t *testing.T) {
	t.Parallel()
	e := &fakeEmbedder{err: errors.New("provider down")}
	s := &fakeStore{}
	p := newTestPipeline(t, e, s)

	docs := []rag.Document{{SourceID: "doc-a", Body: "alpha beta"}}
	if err := p.Ingest(context.Background(), docs, nil); err == nil {
		t.Fatal("want error when embedding fails")
	}
	if len(s.ops) != 0 {
		t.Errorf("store must not be touched after embed failure, got %d ops", len(s.ops))
	}
}

func Test_LoadCorpus(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "corpus.json")
	corpus := `[
  {
    "source_id": "mongodb-backup-guide",
    "body": "MongoDB recommends daily backups.",
    "url": "https://www.mongodb.com/docs/manual/core/backups/",
    "format": "markdown",
    "metadata": {
      "product_name": "mongodb",
      "content_type": "guide",
      "tags": ["backup", "operations"],
      "version": "7.0",
      "updated": "2026-01-15T00:00:00Z"
    }
  }
]`
	if err := os.WriteFile(path, []byte(corpus), 0o600); err != nil {
		t.Fatalf("write corpus: %v", err)
	}

	docs, err := LoadCorpus(path)
	if err != nil {
		t.Fatalf("load corpus: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("want 1 document, got %d", len(docs))
	}
	d := docs[0]
	if d.SourceID != "mongodb-backup-guide" {
		t.Errorf("source_id = %q", d.SourceID)
	}
	if d.Metadata.ProductName != "mongodb" || d.Metadata.Version != "7.0" {
		t.Errorf("metadata = %+v", d.Metadata)
	}
	if len(d.Metadata.Tags) != 2 {
		t.Errorf("tags = %v", d.Metadata.Tags)
	}
	if d.Metadata.Updated.IsZero() {
		t.Error("updated timestamp not parsed")
	}
}

func Test_LoadCorpus_RejectsMissingFields(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		json string
	}{
		{"missing source_id", `[{"body": "text"}]`},
		{"missing body", `[{"source_id": "doc-a"}]`},
		{"bad updated", `[{"source_id": "doc-a", "body": "text", "metadata": {"updated": "yesterday"}}]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "corpus.json")
			if err := os.WriteFile(path, []byte(tc.json), 0o600); err != nil {
				t.Fatalf("write corpus: %v", err)
			}
			_, err := LoadCorpus(path)
			if !errors.Is(err, rag.ErrInvalidInput) {
				t.Fatalf("want ErrInvalidInput, got %v", err)
			}
		})
	}
}
