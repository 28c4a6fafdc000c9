package errors

import (
	stderrors "errors"
	"fmt"
)

// CodeError is the structured error type raised at component boundaries.
// It carries enough context for the watch loop and the CLI's top-level
// handler to branch on kind without string matching.
type CodeError struct {
	Code      Code
	Message   string
	Cause     error
	Retryable bool
	Details   map[string]string
}

func (e *CodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *CodeError) Unwrap() error { return e.Cause }

// Is enables errors.Is(err, &CodeError{Code: ...}) to match by kind alone.
func (e *CodeError) Is(target error) bool {
	t, ok := target.(*CodeError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetail attaches a key-value detail, for method chaining at the call site.
func (e *CodeError) WithDetail(key, value string) *CodeError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

func new_(code Code, message string, cause error) *CodeError {
	return &CodeError{Code: code, Message: message, Cause: cause, Retryable: code.retryable()}
}

// Config builds a ConfigError: dimension mismatch on attach, unknown model,
// invalid ChunkConfig.
func Config(message string, cause error) *CodeError { return new_(CodeConfig, message, cause) }

// IO builds an IOError: filesystem or transactional-store failure.
func IO(message string, cause error) *CodeError { return new_(CodeIO, message, cause) }

// Parse builds a ParseError: grammar load failure. Callers (the chunker)
// recover by falling back to sliding-window chunking rather than treating
// this as fatal.
func Parse(message string, cause error) *CodeError { return new_(CodeParse, message, cause) }

// Embedding builds an EmbeddingError: model-load or inference failure. Fatal
// to the enclosing index call, not to the process.
func Embedding(message string, cause error) *CodeError { return new_(CodeEmbedding, message, cause) }

// IndexNotBuilt builds the error returned when search is called before
// build_index. Surfaced as a user error, never a panic.
func IndexNotBuilt(message string) *CodeError { return new_(CodeIndexNotBuilt, message, nil) }

// Internal wraps an error that doesn't fit any of the named kinds.
func Internal(message string, cause error) *CodeError { return new_(CodeInternal, message, cause) }

// NotFound builds the error returned by get(id) on an id the store has no
// record of.
func NotFound(kind, id string) *CodeError {
	return new_(CodeNotFound, kind+" not found: "+id, nil)
}

// GetCode extracts the Code from err, or CodeInternal if err is not a
// *CodeError (a nil err returns "").
func GetCode(err error) Code {
	if err == nil {
		return ""
	}
	var ce *CodeError
	if stderrors.As(err, &ce) {
		return ce.Code
	}
	return CodeInternal
}

// IsRetryable reports whether err should be retried once before surfacing,
// per the IOError propagation rule.
func IsRetryable(err error) bool {
	var ce *CodeError
	return stderrors.As(err, &ce) && ce.Retryable
}

// Is reports whether err's Code equals code.
func Is(err error, code Code) bool {
	return GetCode(err) == code
}
