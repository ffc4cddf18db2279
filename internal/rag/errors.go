package rag

import "errors"

// Sentinel errors for the retrieval pipeline's failure taxonomy. Callers
// classify failures with [errors.Is] and decide between retry, fallback,
// and user-visible failure; none of these are swallowed inside the core.
var (
	// ErrInvalidInput marks malformed caller input (bad chunk parameters,
	// missing required fields). Rejected before any network call, never
	// worth retrying.
	ErrInvalidInput = errors.New("invalid input")

	// ErrIndexUnavailable means the corpus store's vector index is missing
	// or still building. Distinct from an empty result so callers can
	// retry after a delay.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrFilterNotIndexed means a filter referenced a metadata field the
	// active index definition does not declare filterable. This is a
	// configuration error, not a transient one.
	ErrFilterNotIndexed = errors.New("filter field not declared filterable")

	// ErrEmbedderUnavailable means the embedding provider call failed
	// (network, timeout, or provider-side error).
	ErrEmbedderUnavailable = errors.New("embedding provider unavailable")

	// ErrRerankUnavailable means the rerank provider call failed or the
	// configured embedder has no rerank capability.
	ErrRerankUnavailable = errors.New("rerank provider unavailable")

	// ErrStoreUnavailable means the corpus store itself could not be
	// reached.
	ErrStoreUnavailable = errors.New("corpus store unavailable")

	// ErrGenerationUnavailable means the language model call failed.
	ErrGenerationUnavailable = errors.New("generation provider unavailable")
)
