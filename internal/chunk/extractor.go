package chunk

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/yxanul/demongrep/internal/grammar"
)

// Extractor is the per-language AST contract. Every operation
// is pure over the (node, source) pair; implementations must not allocate
// global state. Methods vs. free functions are distinguished by lexical
// parenthood in the AST, not by node type alone — the chunker's walk passes
// the nearest enclosing definition's node type to Classify (see Classify's
// insideDef parameter).
type Extractor interface {
	// DefinitionKinds is the set of AST node-type names treated as
	// definitions for this language.
	DefinitionKinds() map[string]bool

	// Name returns the canonical identifier for node, or "" if none.
	Name(node *sitter.Node, src []byte) string

	// Signature returns a single deterministic one-line declaration for
	// node, never including the body. Returns "" if not applicable.
	Signature(node *sitter.Node, src []byte) string

	// Docstring returns the documentation attached to node by language
	// convention, with doc markers stripped. Returns "" if absent.
	Docstring(node *sitter.Node, src []byte) string

	// Classify maps node to a Kind. insideDef is the nearest enclosing
	// definition node type on the context stack (empty string if none),
	// used to distinguish Method from Function-shaped nodes nested inside
	// a class/impl/struct.
	Classify(node *sitter.Node, insideDef string) Kind

	// Label returns a breadcrumb segment such as "Method: foo" or
	// "Impl: Point". Returns "" if Name and Classify can't produce one.
	Label(node *sitter.Node, src []byte) string
}

// ForLanguage returns the Extractor for lang, or nil if unsupported — the
// chunker must fall back to sliding-window chunking in that case.
func ForLanguage(lang grammar.Lang) Extractor {
	switch lang {
	case grammar.Go:
		return goExtractor{}
	case grammar.Python:
		return pythonExtractor{}
	case grammar.Rust:
		return rustExtractor{}
	case grammar.TypeScript, grammar.TSX:
		return tsExtractor{}
	case grammar.JavaScript, grammar.JSX:
		return jsExtractor{}
	default:
		return nil
	}
}

func content(node *sitter.Node, src []byte) string {
	if node == nil {
		return ""
	}
	return node.Content(src)
}

func firstChildOfType(node *sitter.Node, types ...string) *sitter.Node {
	want := make(map[string]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		c := node.Child(i)
		if c != nil && want[c.Type()] {
			return c
		}
	}
	return nil
}

// signatureUpTo returns the text of node up to (excluding) the first
// occurrence of any of cutTokens, trimmed. Used by languages whose
// declarations end at an opening brace.
func signatureUpTo(text string, cutTokens ...string) string {
	text = strings.TrimSpace(text)
	cut := len(text)
	for _, tok := range cutTokens {
		if idx := strings.Index(text, tok); idx != -1 && idx < cut {
			cut = idx
		}
	}
	return strings.TrimSpace(text[:cut])
}

// firstLine returns the first line of text, trimmed.
func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx != -1 {
		return strings.TrimSpace(text[:idx])
	}
	return strings.TrimSpace(text)
}

// precedingLineComments walks backward from node's start line collecting
// contiguous `prefix`-marked comment lines immediately above it (no blank
// line gap), then strips prefix from each and joins them. Used for
// doc-comment conventions that precede the definition (Go, Rust, JS/TS).
func precedingLineComments(node *sitter.Node, src []byte, prefix string) string {
	lineStarts := lineStartOffsets(src)
	row := int(node.StartPoint().Row)
	if row == 0 {
		return ""
	}

	var lines []string
	r := row - 1
	for r >= 0 {
		line := lineAt(src, lineStarts, r)
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, prefix) {
			break
		}
		lines = append([]string{strings.TrimSpace(strings.TrimPrefix(trimmed, prefix))}, lines...)
		r--
	}
	return strings.Join(lines, "\n")
}

func lineStartOffsets(src []byte) []int {
	starts := []int{0}
	for i, b := range src {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func lineAt(src []byte, starts []int, row int) string {
	if row < 0 || row >= len(starts) {
		return ""
	}
	start := starts[row]
	end := len(src)
	if row+1 < len(starts) {
		end = starts[row+1] - 1 // exclude the trailing newline
	}
	if end < start || start > len(src) {
		return ""
	}
	if end > len(src) {
		end = len(src)
	}
	return string(src[start:end])
}

// ---------------------------------------------------------------- Go

type goExtractor struct{}

func (goExtractor) DefinitionKinds() map[string]bool {
	return map[string]bool{
		"function_declaration": true,
		"method_declaration":   true,
		"type_declaration":     true,
		"const_declaration":    true,
		"var_declaration":      true,
	}
}

func (goExtractor) Name(node *sitter.Node, src []byte) string {
	switch node.Type() {
	case "function_declaration":
		if n := firstChildOfType(node, "identifier"); n != nil {
			return content(n, src)
		}
	case "method_declaration":
		if n := firstChildOfType(node, "field_identifier"); n != nil {
			return content(n, src)
		}
	case "type_declaration":
		if spec := firstChildOfType(node, "type_spec"); spec != nil {
			if n := firstChildOfType(spec, "type_identifier"); n != nil {
				return content(n, src)
			}
		}
	case "const_declaration":
		if spec := firstChildOfType(node, "const_spec"); spec != nil {
			if n := firstChildOfType(spec, "identifier"); n != nil {
				return content(n, src)
			}
		}
	case "var_declaration":
		if spec := firstChildOfType(node, "var_spec"); spec != nil {
			if n := firstChildOfType(spec, "identifier"); n != nil {
				return content(n, src)
			}
		}
	}
	return ""
}

func (goExtractor) Signature(node *sitter.Node, src []byte) string {
	return signatureUpTo(firstLine(content(node, src)), "{")
}

func (goExtractor) Docstring(node *sitter.Node, src []byte) string {
	return precedingLineComments(node, src, "//")
}

func (e goExtractor) Classify(node *sitter.Node, insideDef string) Kind {
	switch node.Type() {
	case "function_declaration":
		return KindFunction
	case "method_declaration":
		return KindMethod
	case "type_declaration":
		if spec := firstChildOfType(node, "type_spec"); spec != nil {
			if firstChildOfType(spec, "struct_type") != nil {
				return KindStruct
			}
			if firstChildOfType(spec, "interface_type") != nil {
				return KindInterface
			}
		}
		return KindTypeAlias
	case "const_declaration":
		return KindConst
	case "var_declaration":
		return KindStatic
	}
	return KindOther
}

func (e goExtractor) Label(node *sitter.Node, src []byte) string {
	name := e.Name(node, src)
	if name == "" {
		return ""
	}
	return string(e.Classify(node, "")) + ": " + name
}

// ---------------------------------------------------------------- Python

type pythonExtractor struct{}

func (pythonExtractor) DefinitionKinds() map[string]bool {
	return map[string]bool{
		"function_definition": true,
		"class_definition":    true,
	}
}

func (pythonExtractor) Name(node *sitter.Node, src []byte) string {
	if n := firstChildOfType(node, "identifier"); n != nil {
		return content(n, src)
	}
	return ""
}

func (pythonExtractor) Signature(node *sitter.Node, src []byte) string {
	return signatureUpTo(firstLine(content(node, src)), ":")
}

func (pythonExtractor) Docstring(node *sitter.Node, src []byte) string {
	// Python convention: a leading string-expression statement inside the body.
	body := firstChildOfType(node, "block")
	if body == nil {
		return ""
	}
	stmt := firstChildOfType(body, "expression_statement")
	if stmt == nil {
		return ""
	}
	str := firstChildOfType(stmt, "string")
	if str == nil {
		return ""
	}
	raw := content(str, src)
	raw = strings.Trim(raw, "\"'")
	raw = strings.TrimPrefix(raw, "\"\"")
	raw = strings.TrimSuffix(raw, "\"\"")
	return strings.TrimSpace(raw)
}

func (pythonExtractor) Classify(node *sitter.Node, insideDef string) Kind {
	switch node.Type() {
	case "class_definition":
		return KindClass
	case "function_definition":
		if insideDef == "class_definition" {
			return KindMethod
		}
		return KindFunction
	}
	return KindOther
}

func (e pythonExtractor) Label(node *sitter.Node, src []byte) string {
	name := e.Name(node, src)
	if name == "" {
		return ""
	}
	return string(e.Classify(node, "")) + ": " + name
}

// ---------------------------------------------------------------- Rust

type rustExtractor struct{}

func (rustExtractor) DefinitionKinds() map[string]bool {
	return map[string]bool{
		"function_item": true,
		"struct_item":   true,
		"enum_item":     true,
		"trait_item":    true,
		"impl_item":     true,
		"mod_item":      true,
		"type_item":     true,
		"const_item":    true,
		"static_item":   true,
	}
}

func (rustExtractor) Name(node *sitter.Node, src []byte) string {
	switch node.Type() {
	case "impl_item":
		// impl Trait for Type / impl Type — prefer the type being implemented.
		if n := node.ChildByFieldName("type"); n != nil {
			return content(n, src)
		}
	default:
		if n := node.ChildByFieldName("name"); n != nil {
			return content(n, src)
		}
		if n := firstChildOfType(node, "identifier", "type_identifier"); n != nil {
			return content(n, src)
		}
	}
	return ""
}

func (rustExtractor) Signature(node *sitter.Node, src []byte) string {
	switch node.Type() {
	case "function_item":
		return signatureUpTo(content(node, src), "{", ";")
	default:
		return signatureUpTo(firstLine(content(node, src)), "{", ";")
	}
}

func (rustExtractor) Docstring(node *sitter.Node, src []byte) string {
	if doc := precedingLineComments(node, src, "///"); doc != "" {
		return doc
	}
	return precedingLineComments(node, src, "//!")
}

func (e rustExtractor) Classify(node *sitter.Node, insideDef string) Kind {
	switch node.Type() {
	case "function_item":
		if insideDef == "impl_item" || insideDef == "trait_item" {
			return KindMethod
		}
		return KindFunction
	case "struct_item":
		return KindStruct
	case "enum_item":
		return KindEnum
	case "trait_item":
		return KindTrait
	case "impl_item":
		return KindImpl
	case "mod_item":
		return KindMod
	case "type_item":
		return KindTypeAlias
	case "const_item":
		return KindConst
	case "static_item":
		return KindStatic
	}
	return KindOther
}

func (e rustExtractor) Label(node *sitter.Node, src []byte) string {
	name := e.Name(node, src)
	if name == "" {
		return ""
	}
	return string(e.Classify(node, "")) + ": " + name
}

// ---------------------------------------------------------------- TypeScript

type tsExtractor struct{}

func (tsExtractor) DefinitionKinds() map[string]bool {
	return map[string]bool{
		"function_declaration":   true,
		"method_definition":      true,
		"class_declaration":      true,
		"interface_declaration":  true,
		"type_alias_declaration": true,
		"lexical_declaration":    true,
	}
}

func jsLikeName(node *sitter.Node, src []byte) string {
	switch node.Type() {
	case "lexical_declaration", "variable_declaration":
		if decl := firstChildOfType(node, "variable_declarator"); decl != nil {
			if n := firstChildOfType(decl, "identifier"); n != nil {
				return content(n, src)
			}
		}
		return ""
	default:
		if n := node.ChildByFieldName("name"); n != nil {
			return content(n, src)
		}
		if n := firstChildOfType(node, "identifier", "type_identifier", "property_identifier"); n != nil {
			return content(n, src)
		}
	}
	return ""
}

// jsLikeIsFunctionBinding reports whether a lexical/variable declaration's
// single declarator binds an arrow function or function expression — the
// "const foo = () => {}" pattern JS/TS extractors must also surface.
func jsLikeIsFunctionBinding(node *sitter.Node) bool {
	decl := firstChildOfType(node, "variable_declarator")
	if decl == nil {
		return false
	}
	return firstChildOfType(decl, "arrow_function", "function", "function_expression") != nil
}

func (tsExtractor) Name(node *sitter.Node, src []byte) string { return jsLikeName(node, src) }

func (tsExtractor) Signature(node *sitter.Node, src []byte) string {
	text := content(node, src)
	if strings.Contains(firstLine(text), "=>") && !strings.Contains(firstLine(text), "{") {
		return firstLine(text)
	}
	return signatureUpTo(text, "{")
}

func (tsExtractor) Docstring(node *sitter.Node, src []byte) string {
	return precedingLineComments(node, src, "//")
}

func (e tsExtractor) Classify(node *sitter.Node, insideDef string) Kind {
	switch node.Type() {
	case "function_declaration":
		return KindFunction
	case "method_definition":
		return KindMethod
	case "class_declaration":
		return KindClass
	case "interface_declaration":
		return KindInterface
	case "type_alias_declaration":
		return KindTypeAlias
	case "lexical_declaration", "variable_declaration":
		if jsLikeIsFunctionBinding(node) {
			return KindFunction
		}
		return KindOther
	}
	return KindOther
}

func (e tsExtractor) Label(node *sitter.Node, src []byte) string {
	if node.Type() == "lexical_declaration" && !jsLikeIsFunctionBinding(node) {
		return ""
	}
	name := e.Name(node, src)
	if name == "" {
		return ""
	}
	return string(e.Classify(node, "")) + ": " + name
}

// ---------------------------------------------------------------- JavaScript

type jsExtractor struct{}

func (jsExtractor) DefinitionKinds() map[string]bool {
	return map[string]bool{
		"function_declaration": true,
		"function":             true,
		"method_definition":    true,
		"class_declaration":    true,
		"lexical_declaration":  true,
		"variable_declaration": true,
	}
}

func (jsExtractor) Name(node *sitter.Node, src []byte) string { return jsLikeName(node, src) }

func (jsExtractor) Signature(node *sitter.Node, src []byte) string {
	text := content(node, src)
	if strings.Contains(firstLine(text), "=>") && !strings.Contains(firstLine(text), "{") {
		return firstLine(text)
	}
	return signatureUpTo(text, "{")
}

func (jsExtractor) Docstring(node *sitter.Node, src []byte) string {
	return precedingLineComments(node, src, "//")
}

func (e jsExtractor) Classify(node *sitter.Node, insideDef string) Kind {
	switch node.Type() {
	case "function_declaration", "function":
		return KindFunction
	case "method_definition":
		return KindMethod
	case "class_declaration":
		return KindClass
	case "lexical_declaration", "variable_declaration":
		if jsLikeIsFunctionBinding(node) {
			return KindFunction
		}
		return KindOther
	}
	return KindOther
}

func (e jsExtractor) Label(node *sitter.Node, src []byte) string {
	if (node.Type() == "lexical_declaration" || node.Type() == "variable_declaration") && !jsLikeIsFunctionBinding(node) {
		return ""
	}
	name := e.Name(node, src)
	if name == "" {
		return ""
	}
	return string(e.Classify(node, "")) + ": " + name
}
