package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docqa-go/internal/generator"
	"github.com/54b3r/docqa-go/internal/memory"
	"github.com/54b3r/docqa-go/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// QueryTimeout bounds a single /api/query round trip, including
	// retrieval and generation. Defaults to 5 minutes.
	QueryTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives all server metric registrations. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
	// Stats holds the static identifiers reported by GET /api/stats.
	Stats StatsInfo
}

// StatsInfo is the static half of the /api/stats response: the models and
// dimensions the service was configured with. The dynamic half (chunk count)
// is read from the corpus store per request.
type StatsInfo struct {
	// EmbeddingModel is the embedding model identifier (e.g. "voyage-context-3").
	EmbeddingModel string
	// RerankModel is the rerank model identifier, empty when rerank is
	// unsupported by the embedding backend.
	RerankModel string
	// EmbeddingDimension is the corpus vector size.
	EmbeddingDimension int
	// LLMBackend is the chat model backend (e.g. "ollama", "azure").
	LLMBackend string
	// LLMModel is the chat model identifier.
	LLMModel string
}

// answerer is the interface handleQuery calls to produce an answer.
// *generator.Generator satisfies it; tests inject a fake.
type answerer interface {
	Generate(ctx context.Context, query string, opts generator.Options) (*generator.Result, error)
}

// chunkCounter is the slice of the corpus store the stats handler needs.
// *rag.QdrantStore satisfies it; tests inject a fake.
type chunkCounter interface {
	Count(ctx context.Context) (uint64, error)
}

// Server is the HTTP server that exposes the question-answering pipeline.
type Server struct {
	// answerer produces answers for /api/query.
	answerer answerer
	// retriever serves /api/search.
	retriever rag.Retriever
	// history is the session chat store behind /api/history; may be nil.
	history memory.ChatStore
	// corpus reports the chunk count for /api/stats; may be nil.
	corpus chunkCounter
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// queryRequest is the JSON body for POST /api/query.
type queryRequest struct {
	// Query is the user's natural language question.
	Query string `json:"query"`
	// SessionID scopes conversation history. If empty the server assigns a
	// fresh session and returns it so the client can continue the thread.
	SessionID string `json:"session_id,omitempty"`
	// Rerank requests rerank-refined retrieval for this query.
	Rerank bool `json:"rerank,omitempty"`
	// Filter restricts retrieval by metadata.
	Filter *filterSpec `json:"filter,omitempty"`
}

// queryResponse is the JSON response for POST /api/query.
type queryResponse struct {
	// Answer is the generated answer text.
	Answer string `json:"answer"`
	// SessionID is the session this turn was recorded under.
	SessionID string `json:"session_id"`
	// HistoryDegraded is true when the answer was produced without (or not
	// recorded to) conversation history because the memory store failed.
	HistoryDegraded bool `json:"history_degraded"`
}

// searchRequest is the JSON body for POST /api/search.
type searchRequest struct {
	// Query is the text to search the corpus for.
	Query string `json:"query"`
	// K is the number of passages to return; zero uses the server default.
	K int `json:"k,omitempty"`
	// Rerank requests rerank-refined ordering.
	Rerank bool `json:"rerank,omitempty"`
	// Filter restricts results by metadata.
	Filter *filterSpec `json:"filter,omitempty"`
}

// searchResponse is the JSON response for POST /api/search.
type searchResponse struct {
	// Results are the hits, highest relevance first.
	Results []searchResult `json:"results"`
	// Count is len(Results).
	Count int `json:"count"`
	// Reranked reports whether the ordering came from the rerank model.
	Reranked bool `json:"reranked"`
}

// searchResult is one retrieval hit in a searchResponse.
type searchResult struct {
	// Text is the chunk content.
	Text string `json:"text"`
	// Score is the relevance score, higher is more relevant.
	Score float32 `json:"score"`
	// SourceID identifies the owning document.
	SourceID string `json:"source_id"`
	// ChunkIndex is the chunk's position within its document.
	ChunkIndex int `json:"chunk_index"`
	// Metadata is the chunk's structured metadata.
	Metadata metadataJSON `json:"metadata"`
}

// metadataJSON is the wire form of rag.Metadata.
type metadataJSON struct {
	ProductName string    `json:"product_name,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Version     string    `json:"version,omitempty"`
	Updated     time.Time `json:"updated,omitzero"`
}

// filterSpec is the wire form of rag.Filter. Timestamps are RFC3339.
type filterSpec struct {
	// Match maps filterable metadata fields to exact-match values.
	Match map[string]string `json:"match,omitempty"`
	// UpdatedAfter keeps only chunks updated at or after this instant.
	UpdatedAfter string `json:"updated_after,omitempty"`
	// UpdatedBefore keeps only chunks updated before this instant.
	UpdatedBefore string `json:"updated_before,omitempty"`
}

// historyResponse is the JSON response for GET /api/history.
type historyResponse struct {
	// Session is the session that was queried.
	Session string `json:"session"`
	// Messages are the session's turns, oldest first.
	Messages []historyMessage `json:"messages"`
}

// historyMessage is one chat turn in a historyResponse.
type historyMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// clearHistoryRequest is the JSON body for POST /api/history/clear.
type clearHistoryRequest struct {
	// Session is the session whose history should be removed.
	Session string `json:"session"`
}

// statsResponse is the JSON response for GET /api/stats.
type statsResponse struct {
	// ChunkCount is the number of chunks currently in the corpus store.
	ChunkCount uint64 `json:"chunk_count"`
	// EmbeddingModel is the configured embedding model identifier.
	EmbeddingModel string `json:"embedding_model"`
	// RerankModel is the configured rerank model, empty if unsupported.
	RerankModel string `json:"rerank_model,omitempty"`
	// EmbeddingDimension is the corpus vector size.
	EmbeddingDimension int `json:"embedding_dimension"`
	// LLMBackend is the chat model backend in use.
	LLMBackend string `json:"llm_backend"`
	// LLMModel is the chat model identifier in use.
	LLMModel string `json:"llm_model"`
}
