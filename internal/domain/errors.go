package domain

import "errors"

// Pipeline lifecycle errors. Callers wrap these with fmt.Errorf("...: %w")
// and the boundary layer classifies them with errors.Is.
var (
	// ErrInvalidConfiguration indicates a selection field outside its registered candidate set.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrNotConfigured indicates initialize was called before configure.
	ErrNotConfigured = errors.New("pipeline not configured")

	// ErrNoDocuments indicates there is nothing to build an index from.
	ErrNoDocuments = errors.New("no documents")

	// ErrChunkingFailed indicates the chunker produced no chunks.
	ErrChunkingFailed = errors.New("chunking failed")

	// ErrNotInitialized indicates a query against an engine that was never built.
	ErrNotInitialized = errors.New("pipeline not initialized")

	// ErrNotReady indicates a query while the service is not in the Initialized state.
	ErrNotReady = errors.New("pipeline not ready")

	// ErrExtractionFailed indicates a single uploaded file could not be turned into text.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrCollaboratorFailure indicates an embedding, index or LLM backend error.
	ErrCollaboratorFailure = errors.New("collaborator failure")

	// ErrInvalidInput indicates a malformed request (empty question, missing file name).
	ErrInvalidInput = errors.New("invalid input")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrInvalidConfiguration, "InvalidConfiguration"},
	{ErrNotConfigured, "NotConfigured"},
	{ErrChunkingFailed, "ChunkingFailed"},
	{ErrNotInitialized, "NotInitialized"},
	{ErrNotReady, "NotReady"},
	{ErrExtractionFailed, "ExtractionFailed"},
	{ErrNoDocuments, "NoDocuments"},
	{ErrCollaboratorFailure, "CollaboratorFailure"},
	{ErrInvalidInput, "InvalidInput"},
}

// Kind returns the taxonomy name of err, or "Internal" when it is not a lifecycle error.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}
