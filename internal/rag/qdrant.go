package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for a Qdrant corpus store.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant collection. The
// active IndexDefinition fixes the collection name, embedding dimension,
// and the filterable payload fields.
type QdrantStore struct {
	client *qdrant.Client
	def    *IndexDefinition
}

// NewQdrantStore connects to Qdrant and returns a store bound to the given
// index definition. It does not create the collection — that is the
// administrative EnsureIndex operation, so a plain query path can observe
// and report "index not ready" instead of silently materialising one.
func NewQdrantStore(cfg *QdrantConfig, def *IndexDefinition) (*QdrantStore, error) {
	if def == nil {
		return nil, fmt.Errorf("qdrant: index definition must not be nil")
	}
	if def.Collection == "" {
		return nil, fmt.Errorf("qdrant: index definition collection must not be empty")
	}
	if def.VectorSize <= 0 {
		return nil, fmt.Errorf("qdrant: index definition vector size must be positive")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	return &QdrantStore{client: client, def: def}, nil
}

// Definition returns the active index definition.
func (s *QdrantStore) Definition() *IndexDefinition { return s.def }

// Client exposes the underlying gRPC client for health probes.
func (s *QdrantStore) Client() *qdrant.Client { return s.client }

// EnsureIndex creates the collection and the payload indexes for every
// filterable field. When recreate is true an existing collection is dropped
// first — a full corpus rebuild, used by re-ingestion from scratch.
func (s *QdrantStore) EnsureIndex(ctx context.Context, recreate bool) error {
	exists, err := s.client.CollectionExists(ctx, s.def.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}

	if exists && recreate {
		if err := s.client.DeleteCollection(ctx, s.def.Collection); err != nil {
			return fmt.Errorf("qdrant: failed to drop collection %q: %w", s.def.Collection, err)
		}
		exists = false
	}

	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.def.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.def.VectorSize),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("qdrant: failed to create collection %q: %w", s.def.Collection, err)
		}
	}

	for _, field := range s.def.FilterableFields {
		fieldType := qdrant.FieldType_FieldTypeKeyword
		if field == FieldUpdated || field == FieldChunkIndex {
			fieldType = qdrant.FieldType_FieldTypeInteger
		}
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.def.Collection,
			FieldName:      field,
			FieldType:      &fieldType,
		})
		if err != nil {
			return fmt.Errorf("qdrant: failed to index payload field %q: %w", field, err)
		}
	}

	return nil
}

// IndexStatus reports whether the collection exists, is healthy, and has a
// payload index for every declared filterable field.
func (s *QdrantStore) IndexStatus(ctx context.Context) (IndexState, error) {
	exists, err := s.client.CollectionExists(ctx, s.def.Collection)
	if err != nil {
		return IndexNotReady, fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if !exists {
		return IndexNotReady, nil
	}

	info, err := s.client.GetCollectionInfo(ctx, s.def.Collection)
	if err != nil {
		return IndexNotReady, fmt.Errorf("qdrant: failed to get collection info: %w", err)
	}
	if info.GetStatus() == qdrant.CollectionStatus_Red {
		return IndexNotReady, nil
	}

	schema := info.GetPayloadSchema()
	for _, field := range s.def.FilterableFields {
		if _, ok := schema[field]; !ok {
			return IndexNotReady, nil
		}
	}

	return IndexReady, nil
}

// Upsert stores chunks with their embeddings. Vectors are validated against
// the definition's dimension before anything is sent — mixing dimensions
// breaks similarity comparison across the corpus.
func (s *QdrantStore) Upsert(ctx context.Context, chunks []Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("qdrant: %w: %d chunks but %d embeddings", ErrInvalidInput, len(chunks), len(embeddings))
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, c := range chunks {
		if len(embeddings[i]) != s.def.VectorSize {
			return fmt.Errorf("qdrant: %w: chunk %q embedding has dimension %d, corpus dimension is %d",
				ErrInvalidInput, c.ID, len(embeddings[i]), s.def.VectorSize)
		}

		payload := map[string]interface{}{
			FieldText:       c.Text,
			FieldSourceID:   c.SourceID,
			FieldChunkIndex: int64(c.Index),
		}
		if c.SourceURL != "" {
			payload[FieldSourceURL] = c.SourceURL
		}
		if c.Format != "" {
			payload[FieldFormat] = c.Format
		}
		if c.Metadata.ProductName != "" {
			payload[FieldProductName] = c.Metadata.ProductName
		}
		if c.Metadata.ContentType != "" {
			payload[FieldContentType] = c.Metadata.ContentType
		}
		if len(c.Metadata.Tags) > 0 {
			tags := make([]interface{}, len(c.Metadata.Tags))
			for j, t := range c.Metadata.Tags {
				tags[j] = t
			}
			payload[FieldTags] = tags
		}
		if c.Metadata.Version != "" {
			payload[FieldVersion] = c.Metadata.Version
		}
		if !c.Metadata.Updated.IsZero() {
			payload[FieldUpdated] = c.Metadata.Updated.Unix()
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(c.ID),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.def.Collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}

	return nil
}

// Search runs a cosine similarity query restricted by filter. The filter is
// part of the query itself — Qdrant evaluates it during candidate selection,
// so non-matching points never consume the k budget.
func (s *QdrantStore) Search(ctx context.Context, queryEmbedding []float32, k int, filter *Filter) ([]ScoredChunk, error) {
	if len(queryEmbedding) != s.def.VectorSize {
		return nil, fmt.Errorf("qdrant: %w: query embedding has dimension %d, corpus dimension is %d",
			ErrInvalidInput, len(queryEmbedding), s.def.VectorSize)
	}

	qf, err := s.buildFilter(filter)
	if err != nil {
		return nil, err
	}

	limit := uint64(k)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.def.Collection,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Limit:          &limit,
		Filter:         qf,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		// Distinguish "cannot search yet" from a transport failure so
		// callers can retry after the index is built.
		if state, stateErr := s.IndexStatus(ctx); stateErr == nil && state == IndexNotReady {
			return nil, fmt.Errorf("qdrant: %w", ErrIndexUnavailable)
		}
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	hits := make([]ScoredChunk, 0, len(results))
	for _, r := range results {
		hits = append(hits, scoredChunkFromPoint(r))
	}
	return hits, nil
}

// buildFilter translates a Filter into Qdrant must-conditions. Fields are
// assumed pre-validated against the index definition by the retriever; this
// re-checks as a backstop because a store reached directly (CLI, tests)
// must not silently ignore an unindexed field either.
func (s *QdrantStore) buildFilter(filter *Filter) (*qdrant.Filter, error) {
	if filter.IsZero() {
		return nil, nil
	}

	var must []*qdrant.Condition
	for field, value := range filter.Match {
		if !s.def.Filterable(field) {
			return nil, fmt.Errorf("qdrant: %w: %q", ErrFilterNotIndexed, field)
		}
		must = append(must, qdrant.NewMatch(field, value))
	}

	if !filter.UpdatedAfter.IsZero() || !filter.UpdatedBefore.IsZero() {
		if !s.def.Filterable(FieldUpdated) {
			return nil, fmt.Errorf("qdrant: %w: %q", ErrFilterNotIndexed, FieldUpdated)
		}
		rng := &qdrant.Range{}
		if !filter.UpdatedAfter.IsZero() {
			rng.Gte = qdrant.PtrOf(float64(filter.UpdatedAfter.Unix()))
		}
		if !filter.UpdatedBefore.IsZero() {
			rng.Lt = qdrant.PtrOf(float64(filter.UpdatedBefore.Unix()))
		}
		must = append(must, qdrant.NewRange(FieldUpdated, rng))
	}

	return &qdrant.Filter{Must: must}, nil
}

// DeleteBySource removes all chunks derived from one source document.
func (s *QdrantStore) DeleteBySource(ctx context.Context, sourceID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.def.Collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(FieldSourceID, sourceID)},
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete by source %q failed: %w", sourceID, err)
	}
	return nil
}

// Count returns the exact number of chunks in the collection.
func (s *QdrantStore) Count(ctx context.Context) (uint64, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.def.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count failed: %w", err)
	}
	return n, nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// scoredChunkFromPoint maps a Qdrant scored point back into a ScoredChunk.
func scoredChunkFromPoint(p *qdrant.ScoredPoint) ScoredChunk {
	sc := ScoredChunk{Score: p.GetScore()}
	sc.ID = p.GetId().GetUuid()

	payload := p.GetPayload()
	if payload == nil {
		return sc
	}
	if v, ok := payload[FieldText]; ok {
		sc.Text = v.GetStringValue()
	}
	if v, ok := payload[FieldSourceID]; ok {
		sc.SourceID = v.GetStringValue()
	}
	if v, ok := payload[FieldChunkIndex]; ok {
		sc.Index = int(v.GetIntegerValue())
	}
	if v, ok := payload[FieldSourceURL]; ok {
		sc.SourceURL = v.GetStringValue()
	}
	if v, ok := payload[FieldFormat]; ok {
		sc.Format = v.GetStringValue()
	}
	if v, ok := payload[FieldProductName]; ok {
		sc.Metadata.ProductName = v.GetStringValue()
	}
	if v, ok := payload[FieldContentType]; ok {
		sc.Metadata.ContentType = v.GetStringValue()
	}
	if v, ok := payload[FieldVersion]; ok {
		sc.Metadata.Version = v.GetStringValue()
	}
	if v, ok := payload[FieldUpdated]; ok {
		if ts := v.GetIntegerValue(); ts != 0 {
			sc.Metadata.Updated = time.Unix(ts, 0).UTC()
		}
	}
	if v, ok := payload[FieldTags]; ok {
		for _, lv := range v.GetListValue().GetValues() {
			sc.Metadata.Tags = append(sc.Metadata.Tags, lv.GetStringValue())
		}
	}
	return sc
}
