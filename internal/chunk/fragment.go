// Package chunk implements the semantic chunker: it turns a
// source file into an ordered list of Fragments with full line coverage,
// using the per-language extractors for AST-aware decomposition
// and falling back to sliding windows when a language isn't supported.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
)

// Kind classifies a Fragment. Values mirror the AST definition kinds a
// language extractor can produce, plus Block for gap coverage and Anchor
// for file-level summaries.
type Kind string

const (
	KindFunction  Kind = "Function"
	KindMethod    Kind = "Method"
	KindClass     Kind = "Class"
	KindStruct    Kind = "Struct"
	KindEnum      Kind = "Enum"
	KindTrait     Kind = "Trait"
	KindInterface Kind = "Interface"
	KindImpl      Kind = "Impl"
	KindMod       Kind = "Mod"
	KindTypeAlias Kind = "TypeAlias"
	KindConst     Kind = "Const"
	KindStatic    Kind = "Static"
	KindBlock     Kind = "Block"
	KindAnchor    Kind = "Anchor"
	KindOther     Kind = "Other"
)

// Fragment is the pre-persistence unit produced by the chunker. Field
// meanings follow the data model: line ranges are 0-based and inclusive on
// both ends ([StartLine, EndLine]).
type Fragment struct {
	Content   string
	StartLine int // 0-based, inclusive
	EndLine   int // 0-based, inclusive
	Kind      Kind

	// Context is the ordered breadcrumb, outermost first. Context[0] is
	// always "File: <path>".
	Context []string

	Path      string
	Signature string // optional; empty string means "absent"
	Docstring string // optional; empty string means "absent"

	IsComplete bool // false only for parts produced by the splitter
	SplitIndex int  // valid only when !IsComplete; 0-based part index

	Hash string // hex-encoded sha256 of Content, set by Finalize
}

// HasSignature reports whether the fragment carries a non-empty signature.
func (f *Fragment) HasSignature() bool { return f.Signature != "" }

// HasDocstring reports whether the fragment carries non-empty doc text.
func (f *Fragment) HasDocstring() bool { return f.Docstring != "" }

// LineCount returns the number of lines the fragment spans. EndLine is
// inclusive, so a single-line fragment has StartLine == EndLine.
func (f *Fragment) LineCount() int { return f.EndLine - f.StartLine + 1 }

// ContextPath joins the breadcrumb with " > ", the wire format used by the
// persisted metadata record's optional context field.
func (f *Fragment) ContextPath() string {
	if len(f.Context) == 0 {
		return ""
	}
	out := f.Context[0]
	for _, c := range f.Context[1:] {
		out += " > " + c
	}
	return out
}

// Finalize computes and sets Hash from the current Content. Must be called
// after any content mutation (e.g. the splitter's header injection) and
// before the fragment is handed to the embedding service or the store —
// both key off Hash.
func (f *Fragment) Finalize() {
	sum := sha256.Sum256([]byte(f.Content))
	f.Hash = hex.EncodeToString(sum[:])
}

// Hash returns the hex-encoded sha256 of content, the algorithm Finalize
// uses. Exposed standalone so callers can verify X.Hash == Hash(X.Content)
// without round-tripping through a Fragment.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
