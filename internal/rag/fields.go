package rag

// Payload field names used by the corpus store. Filter keys and the
// IndexDefinition's FilterableFields refer to these names.
const (
	// FieldText holds the chunk text.
	FieldText = "text"
	// FieldSourceID holds the owning document's source identifier.
	FieldSourceID = "source_id"
	// FieldChunkIndex holds the chunk's position within its document.
	FieldChunkIndex = "chunk_index"
	// FieldSourceURL holds the document's origin URL.
	FieldSourceURL = "source_url"
	// FieldFormat holds the document's format tag.
	FieldFormat = "format"

	// FieldProductName is the filterable product name metadata field.
	FieldProductName = "product_name"
	// FieldContentType is the filterable content type metadata field.
	FieldContentType = "content_type"
	// FieldTags is the filterable tags metadata field.
	FieldTags = "tags"
	// FieldVersion is the filterable version metadata field.
	FieldVersion = "version"
	// FieldUpdated is the filterable last-updated metadata field, stored
	// as unix seconds so date-range filters map to numeric ranges.
	FieldUpdated = "updated"
)

// DefaultFilterableFields is the filterable field set used when the
// configuration does not declare its own.
var DefaultFilterableFields = []string{
	FieldSourceID,
	FieldProductName,
	FieldContentType,
	FieldTags,
	FieldVersion,
	FieldUpdated,
}
