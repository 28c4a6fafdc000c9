package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strconv"

	"github.com/yxanul/demongrep/internal/chunk"
	"github.com/yxanul/demongrep/internal/embed"
	"github.com/yxanul/demongrep/internal/errors"
	"github.com/yxanul/demongrep/internal/grammar"
	"github.com/yxanul/demongrep/internal/store"
)

// FileResult describes what an Updater did with a single candidate path.
type FileResult struct {
	Path   string
	Action string // "unchanged", "touched", "indexed", "deleted", "skipped"
	Chunks int
	Err    error
}

// BatchResult summarizes an Update call over many candidate paths.
type BatchResult struct {
	Files   []FileResult
	Indexed int
	Skipped int
	Errors  int
	Chunks  int
}

// Updater is the incremental updater: it tracks a
// path → {mtime, content_hash, chunk_ids} record per file, decides whether
// a candidate needs rechunking, and keeps E, F, and the file-record store
// in sync. A single Updater instance is not safe for concurrent Update
// calls against the same root — callers serialize indexing runs.
type Updater struct {
	root     string
	files    *FileStore
	vectors  *store.Store
	text     store.BM25Index
	chunker  *chunk.Chunker
	embedder *embed.Service
	cfg      chunk.Config

	// Progress, when set, is invoked after each file in an Update batch.
	// done counts processed files, total is the batch size.
	Progress func(done, total int, fr FileResult)
}

// New builds an Updater rooted at root, persisting file records to files
// and keeping vectors/text in sync on every reindex.
func New(root string, files *FileStore, vectors *store.Store, text store.BM25Index, chunker *chunk.Chunker, embedder *embed.Service, cfg chunk.Config) *Updater {
	return &Updater{root: root, files: files, vectors: vectors, text: text, chunker: chunker, embedder: embedder, cfg: cfg}
}

// Update runs the change-detection algorithm over relPaths (paths relative
// to root) and rebuilds the ANN index once at the end, per the "rebuild
// once per batch, not per file" rule, when any file was indexed or deleted;
// a batch cut short by context cancellation returns without rebuilding. A
// single bad file does not
// abort the batch — its error is recorded in the returned FileResult and
// the caller (the watch loop or the index command) decides how to report
// it.
func (u *Updater) Update(ctx context.Context, relPaths []string) (*BatchResult, error) {
	result := &BatchResult{Files: make([]FileResult, 0, len(relPaths))}

	var touched bool
	for i, rel := range relPaths {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		fr := u.updateOne(ctx, rel)
		result.Files = append(result.Files, fr)
		if u.Progress != nil {
			u.Progress(i+1, len(relPaths), fr)
		}
		switch fr.Action {
		case "indexed":
			result.Indexed++
			result.Chunks += fr.Chunks
			touched = true
		case "deleted":
			touched = true
		case "skipped":
			result.Skipped++
		}
		if fr.Err != nil {
			result.Errors++
		}
	}

	if touched {
		if err := u.vectors.BuildIndex(ctx); err != nil {
			return result, err
		}
	}
	return result, nil
}

// updateOne applies the three-way mtime/hash decision from the component
// design to a single path.
func (u *Updater) updateOne(ctx context.Context, rel string) FileResult {
	absPath := filepath.Join(u.root, rel)

	info, err := os.Stat(absPath)
	if os.IsNotExist(err) {
		if derr := u.Forget(ctx, rel); derr != nil {
			return FileResult{Path: rel, Action: "deleted", Err: derr}
		}
		return FileResult{Path: rel, Action: "deleted"}
	}
	if err != nil {
		return FileResult{Path: rel, Action: "skipped", Err: errors.IO("stat failed", err)}
	}

	existing, err := u.files.Get(rel)
	if err != nil {
		return FileResult{Path: rel, Action: "skipped", Err: err}
	}

	mtime := info.ModTime()
	if existing != nil && existing.ModTime.Equal(mtime) {
		return FileResult{Path: rel, Action: "unchanged"}
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return FileResult{Path: rel, Action: "skipped", Err: errors.IO("read failed", err)}
	}
	contentHash := hashBytes(content)

	if existing != nil && existing.ContentHash == contentHash {
		existing.ModTime = mtime
		if err := u.files.Put(*existing); err != nil {
			return FileResult{Path: rel, Action: "skipped", Err: err}
		}
		return FileResult{Path: rel, Action: "touched"}
	}

	lang := grammar.FromExtension(filepath.Ext(rel))
	frags, err := u.chunker.ChunkWithConfig(ctx, lang, rel, content, u.cfg)
	if err != nil {
		return FileResult{Path: rel, Action: "skipped", Err: err}
	}

	embedded, err := u.embedder.EmbedFragments(ctx, frags)
	if err != nil {
		return FileResult{Path: rel, Action: "skipped", Err: err}
	}

	if existing != nil && len(existing.ChunkIDs) > 0 {
		if err := u.retract(ctx, existing.ChunkIDs); err != nil {
			return FileResult{Path: rel, Action: "skipped", Err: err}
		}
	}

	var newIDs []uint64
	if len(embedded) > 0 {
		newIDs, err = u.vectors.Insert(ctx, embedded)
		if err != nil {
			return FileResult{Path: rel, Action: "skipped", Err: err}
		}
		docs := make([]*store.Document, len(newIDs))
		for i, id := range newIDs {
			docs[i] = &store.Document{ID: strconv.FormatUint(id, 10), Content: frags[i].Content}
		}
		if err := u.text.Index(ctx, docs); err != nil {
			return FileResult{Path: rel, Action: "skipped", Err: err}
		}
	}

	if err := u.files.Put(FileRecord{Path: rel, ModTime: mtime, ContentHash: contentHash, ChunkIDs: newIDs}); err != nil {
		return FileResult{Path: rel, Action: "skipped", Err: err}
	}

	return FileResult{Path: rel, Action: "indexed", Chunks: len(newIDs)}
}

// BuildIndex rebuilds E's ANN index. Update already calls this once per
// batch when anything changed; callers that only ever call Forget (a batch
// of pure deletions) must call this themselves once per batch boundary.
func (u *Updater) BuildIndex(ctx context.Context) error {
	return u.vectors.BuildIndex(ctx)
}

// Forget removes a deleted file's chunk ids from E and F and drops its
// file record. Does not rebuild the ANN index — callers batch that.
func (u *Updater) Forget(ctx context.Context, rel string) error {
	existing, err := u.files.Get(rel)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	if len(existing.ChunkIDs) > 0 {
		if err := u.retract(ctx, existing.ChunkIDs); err != nil {
			return err
		}
	}
	return u.files.Delete(rel)
}

// retract deletes ids from both E and F in the same logical transaction
// the application level maintains: both writes complete before the ids
// are considered gone, though E and F have no shared transactional
// context of their own (the posting list can be rebuilt from the chunk
// records after a crash).
func (u *Updater) retract(ctx context.Context, ids []uint64) error {
	if err := u.vectors.Delete(ctx, ids); err != nil {
		return err
	}
	docIDs := make([]string, len(ids))
	for i, id := range ids {
		docIDs[i] = strconv.FormatUint(id, 10)
	}
	return u.text.Delete(ctx, docIDs)
}

// RebuildTextIndex reconstructs the full-text index from the vector
// store's chunk records: the recovery path for a crash that left the
// posting list behind the chunk database. Existing postings are dropped
// first, so the call is idempotent.
func (u *Updater) RebuildTextIndex(ctx context.Context) error {
	stale, err := u.text.AllIDs()
	if err != nil {
		return err
	}
	if len(stale) > 0 {
		if err := u.text.Delete(ctx, stale); err != nil {
			return err
		}
	}

	ids, err := u.vectors.AllIDs()
	if err != nil {
		return err
	}
	docs := make([]*store.Document, 0, len(ids))
	for _, id := range ids {
		rec, err := u.vectors.Get(id)
		if err != nil {
			return err
		}
		if rec == nil {
			continue
		}
		docs = append(docs, &store.Document{ID: strconv.FormatUint(id, 10), Content: rec.Content})
	}
	if len(docs) == 0 {
		return nil
	}
	return u.text.Index(ctx, docs)
}

// Clear discards all state: every file record, every vector, every chunk,
// and the full-text index, per the "--force / clear" path.
func (u *Updater) Clear(ctx context.Context) error {
	if err := u.vectors.Clear(ctx); err != nil {
		return err
	}
	ids, err := u.text.AllIDs()
	if err != nil {
		return err
	}
	if err := u.text.Delete(ctx, ids); err != nil {
		return err
	}
	return u.files.Clear()
}

// ChunkIDsFor returns the chunk ids currently on record for path, the set
// testable property 6 checks against E's actual contents.
func (u *Updater) ChunkIDsFor(path string) ([]uint64, error) {
	rec, err := u.files.Get(path)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	return rec.ChunkIDs, nil
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
