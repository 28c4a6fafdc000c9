package chunk

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/yxanul/demongrep/internal/grammar"
)

// Config controls chunk sizing. Defaults are chosen to keep a typical
// function-sized fragment unsplit while still bounding embedding cost.
type Config struct {
	MaxLines     int
	MaxChars     int
	OverlapLines int
}

// DefaultConfig returns the chunker's out-of-the-box sizing.
func DefaultConfig() Config {
	return Config{MaxLines: 200, MaxChars: 8000, OverlapLines: 20}
}

// Chunker decomposes a file into an ordered list of Fragments satisfying
// the coverage invariants: every non-blank line appears in at least one
// fragment (a nested definition is emitted both on its own and inside its
// parent; whitespace-only gaps produce no fragment), sorted by StartLine,
// with context[0] == "File: <path>".
type Chunker struct {
	registry *grammar.Registry
	parser   *sitter.Parser
}

// New returns a Chunker backed by reg. reg may be shared across Chunkers —
// grammar handles are read-only once loaded.
func New(reg *grammar.Registry) *Chunker {
	return &Chunker{registry: reg, parser: sitter.NewParser()}
}

// Chunk decomposes content (the bytes of the file at path, in language lang)
// into fragments per the algorithm in the component design: AST walk with
// gap coverage when lang is supported and parses cleanly, sliding-window
// fallback otherwise.
func (c *Chunker) Chunk(ctx context.Context, lang grammar.Lang, path string, content []byte) ([]*Fragment, error) {
	return c.ChunkWithConfig(ctx, lang, path, content, DefaultConfig())
}

// ChunkWithConfig is Chunk with an explicit sizing Config.
func (c *Chunker) ChunkWithConfig(ctx context.Context, lang grammar.Lang, path string, content []byte, cfg Config) ([]*Fragment, error) {
	if len(content) == 0 {
		return nil, nil
	}

	extractor := ForLanguage(lang)
	if extractor == nil {
		return c.fallback(path, content, cfg), nil
	}

	tsLang, err := c.registry.Get(lang)
	if err != nil {
		// Unsupported-language is recoverable: fall back rather than fail the file.
		return c.fallback(path, content, cfg), nil
	}

	c.parser.SetLanguage(tsLang)
	tree, err := c.parser.ParseCtx(ctx, nil, content)
	if err != nil || tree == nil {
		// ParseError: partial/absent AST, fall through to sliding window.
		return c.fallback(path, content, cfg), nil
	}
	defer tree.Close()

	fileCtx := "File: " + path
	cov := newCoverage(content)

	var defs []*Fragment
	walk(tree.RootNode(), content, extractor, []string{fileCtx}, "", &defs, cov)

	frags := append(defs, cov.gaps(path, fileCtx)...)
	sort.SliceStable(frags, func(i, j int) bool { return frags[i].StartLine < frags[j].StartLine })

	var out []*Fragment
	for _, f := range frags {
		out = append(out, split(f, cfg)...)
	}
	for _, f := range out {
		f.Finalize()
	}
	return out, nil
}

// walk recurses the AST in document order, emitting a Fragment for every
// node whose type is in the extractor's DefinitionKinds, and recursing into
// children either way. insideDef tracks the nearest enclosing definition's
// node type for Method-vs-Function classification.
func walk(node *sitter.Node, src []byte, ext Extractor, contextStack []string, insideDef string, out *[]*Fragment, cov *coverage) {
	defKinds := ext.DefinitionKinds()
	isDef := defKinds[node.Type()]

	if isDef {
		kind := ext.Classify(node, insideDef)
		name := ext.Name(node, src)
		label := ext.Label(node, src)
		if label == "" && kind == KindOther {
			// DefinitionKinds over-approximates (e.g. JS/TS variable
			// declarations that don't bind a function): recurse without
			// capturing so the line stays eligible for gap coverage.
			for i := 0; i < int(node.NamedChildCount()); i++ {
				walk(node.NamedChild(i), src, ext, contextStack, insideDef, out, cov)
			}
			return
		}
		if label == "" {
			if name != "" {
				label = string(kind) + ": " + name
			} else {
				label = string(kind)
			}
		}

		startRow := int(node.StartPoint().Row)
		endRow := int(node.EndPoint().Row)
		cov.markCovered(startRow, endRow)

		newContext := append(append([]string{}, contextStack...), label)

		f := &Fragment{
			Content:    node.Content(src),
			StartLine:  startRow,
			EndLine:    endRow,
			Kind:       kind,
			Context:    newContext,
			Path:       strings.TrimPrefix(contextStack[0], "File: "),
			Signature:  ext.Signature(node, src),
			Docstring:  ext.Docstring(node, src),
			IsComplete: true,
		}
		*out = append(*out, f)

		for i := 0; i < int(node.NamedChildCount()); i++ {
			walk(node.NamedChild(i), src, ext, newContext, node.Type(), out, cov)
		}
		return
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		walk(node.NamedChild(i), src, ext, contextStack, insideDef, out, cov)
	}
}

// coverage tracks which source lines are claimed by a definition fragment,
// then yields Block fragments for the maximal uncovered runs (the gap pass
// step 4: the coverage bitmap pass).
type coverage struct {
	lines   []string
	covered []bool
}

func newCoverage(content []byte) *coverage {
	lines := splitLines(string(content))
	return &coverage{lines: lines, covered: make([]bool, len(lines))}
}

func (c *coverage) markCovered(startRow, endRow int) {
	if endRow >= len(c.covered) {
		endRow = len(c.covered) - 1
	}
	for i := startRow; i <= endRow && i >= 0 && i < len(c.covered); i++ {
		c.covered[i] = true
	}
}

func (c *coverage) gaps(path, fileCtx string) []*Fragment {
	var out []*Fragment
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		gapLines := c.lines[start:end]
		text := strings.Join(gapLines, "\n")
		if strings.TrimSpace(text) != "" {
			out = append(out, &Fragment{
				Content:    text,
				StartLine:  start,
				EndLine:    end - 1,
				Kind:       KindBlock,
				Context:    []string{fileCtx},
				Path:       path,
				IsComplete: true,
			})
		}
		start = -1
	}
	for i, isCov := range c.covered {
		if isCov {
			flush(i)
		} else if start < 0 {
			start = i
		}
	}
	flush(len(c.covered))
	return out
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	// Preserve a trailing empty line the same way strings.Split does, since
	// line indices must map 1:1 onto the original byte offsets used by
	// tree-sitter's row numbering.
	lines := strings.Split(s, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// fallback produces sliding-window Block fragments for unsupported
// languages or unparseable content.
func (c *Chunker) fallback(path string, content []byte, cfg Config) []*Fragment {
	lines := splitLines(string(content))
	if len(lines) == 0 {
		return nil
	}
	fileCtx := "File: " + path
	stride := cfg.MaxLines - cfg.OverlapLines
	if stride < 1 {
		stride = 1
	}

	var out []*Fragment
	i := 0
	for {
		end := i + cfg.MaxLines
		if end > len(lines) {
			end = len(lines)
		}
		chunkLines := lines[i:end]
		if len(chunkLines) > 0 {
			f := &Fragment{
				Content:    strings.Join(chunkLines, "\n"),
				StartLine:  i,
				EndLine:    end - 1,
				Kind:       KindBlock,
				Context:    []string{fileCtx},
				Path:       path,
				IsComplete: true,
			}
			f.Finalize()
			out = append(out, f)
		}
		if end >= len(lines) {
			break
		}
		i += stride
	}
	return out
}

// split partitions f into contiguous parts when it exceeds cfg's size
// limits. The loop advances by stride but stops as
// soon as a part's end reaches the fragment's last line — it does not keep
// emitting additional stride-sized tail parts past full coverage.
func split(f *Fragment, cfg Config) []*Fragment {
	lineCount := f.LineCount()
	if lineCount <= cfg.MaxLines && len(f.Content) <= cfg.MaxChars {
		return []*Fragment{f}
	}

	lines := splitLines(f.Content)
	if len(lines) == 0 {
		return []*Fragment{f}
	}

	stride := cfg.MaxLines - cfg.OverlapLines
	if stride < 1 {
		stride = 1
	}

	type rawPart struct{ lo, hi int }
	var parts []rawPart
	i := 0
	for {
		end := i + cfg.MaxLines
		if end > len(lines) {
			end = len(lines)
		}
		if end > i {
			parts = append(parts, rawPart{i, end})
		}
		if end >= len(lines) {
			break
		}
		i += stride
	}
	if len(parts) == 0 {
		parts = []rawPart{{0, len(lines)}}
	}

	label := ""
	if n := len(f.Context); n > 0 {
		label = f.Context[n-1]
	} else {
		label = string(f.Kind)
	}

	var out []*Fragment
	for _, p := range parts {
		partLines := lines[p.lo:p.hi]
		absStart := f.StartLine + p.lo
		absEnd := f.StartLine + p.hi - 1
		out = append(out, charSplit(f, partLines, label, cfg.MaxChars, absStart, absEnd)...)
	}

	total := len(out)
	for k, part := range out {
		header := fmt.Sprintf("[Part %d/%d] %s", k+1, total, label)
		part.Content = header + "\n" + part.Content
		part.IsComplete = false
		part.SplitIndex = k
	}
	return out
}

// charSplit further subdivides a line-bounded part when its joined content
// still exceeds maxChars — the "a single line exceeds max_chars" failure
// mode for single lines longer than the character limit.
func charSplit(parent *Fragment, lines []string, label string, maxChars int, startLine, endLine int) []*Fragment {
	text := strings.Join(lines, "\n")
	if len(text) <= maxChars || maxChars <= 0 {
		return []*Fragment{{
			Content:   text,
			StartLine: startLine,
			EndLine:   endLine,
			Kind:      parent.Kind,
			Context:   parent.Context,
			Path:      parent.Path,
			Signature: parent.Signature,
			Docstring: parent.Docstring,
		}}
	}

	var out []*Fragment
	for i := 0; i < len(text); i += maxChars {
		end := i + maxChars
		if end > len(text) {
			end = len(text)
		}
		out = append(out, &Fragment{
			Content:   text[i:end],
			StartLine: startLine,
			EndLine:   endLine,
			Kind:      parent.Kind,
			Context:   parent.Context,
			Path:      parent.Path,
			Signature: parent.Signature,
			Docstring: parent.Docstring,
		})
	}
	return out
}

// Close releases the chunker's underlying tree-sitter parser.
func (c *Chunker) Close() {
	if c.parser != nil {
		c.parser.Close()
	}
}
