// Package errors provides the structured error type the core raises.
//
// Six kinds are recognized, matching the error taxonomy the retrieval
// pipeline is specified against: Config, IO, Parse, Embedding, IndexNotBuilt
// and NotFound. Everything else that escapes a component boundary is wrapped
// as Internal before it reaches a caller.
package errors

// Code identifies one of the error kinds the core raises.
type Code string

const (
	CodeConfig        Code = "CONFIG"          // dimension mismatch on attach, unknown model, invalid ChunkConfig
	CodeIO            Code = "IO"              // filesystem or transactional-store failure
	CodeParse         Code = "PARSE"           // grammar load failure
	CodeEmbedding     Code = "EMBEDDING"       // model-load or inference failure
	CodeIndexNotBuilt Code = "INDEX_NOT_BUILT" // search called before build_index
	CodeNotFound      Code = "NOT_FOUND"       // get(id) on unknown id
	CodeInternal      Code = "INTERNAL"        // anything else
)

// retryable reports whether the watch loop should retry once before
// surfacing the error, per the propagation rules in the error handling
// design: IOError gets exactly one retry at the watch-loop level.
func (c Code) retryable() bool {
	return c == CodeIO
}
