package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/yxanul/demongrep/internal/embed"
	"github.com/yxanul/demongrep/internal/errors"
)

var (
	bucketVectors = []byte("vectors")
	bucketChunks  = []byte("chunks")
	bucketMeta    = []byte("meta")

	keyNextID     = []byte("next_id")
	keyDimensions = []byte("dimensions")
	keyIndexed    = []byte("indexed")
)

// Store is the vector store: two logical buckets — vectors
// and chunks — plus a meta bucket, in one bbolt file at a single path, plus an
// in-memory ANN index rebuilt by build_index from the vectors bucket.
type Store struct {
	db   *bolt.DB
	path string

	mu      sync.RWMutex
	ann     *annIndex
	cfg     VectorStoreConfig
	indexed bool
}

// Open creates or attaches a store at path for dimension D. If the store
// already exists, D must match its stored dimensionality.
func Open(path string, dimensions int) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, errors.IO("failed to open vector store", err)
	}

	s := &Store{db: db, path: path}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketVectors, bucketChunks, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}

		meta := tx.Bucket(bucketMeta)
		stored := meta.Get(keyDimensions)
		if stored == nil {
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, uint64(dimensions))
			if err := meta.Put(keyDimensions, buf); err != nil {
				return err
			}
		} else {
			existing := int(binary.BigEndian.Uint64(stored))
			if existing != dimensions {
				return ErrDimensionMismatch{Expected: existing, Got: dimensions}
			}
		}

		s.indexed = meta.Get(keyIndexed) != nil
		return nil
	})
	if err != nil {
		db.Close()
		if mismatch, ok := err.(ErrDimensionMismatch); ok {
			return nil, errors.Config(mismatch.Error(), mismatch)
		}
		return nil, errors.IO("failed to initialize vector store", err)
	}

	s.cfg = DefaultVectorStoreConfig(dimensions)
	s.ann = newANNIndex(s.cfg)

	// Rebuild the in-memory ANN graph eagerly so a store reopened mid-session
	// (e.g. after a crash) still serves searches without a fresh build_index,
	// as long as one had run before the previous process exited.
	if s.indexed {
		if err := s.rebuildANNLocked(); err != nil {
			db.Close()
			return nil, err
		}
	}

	return s, nil
}

// Close releases the underlying bbolt environment.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert appends embedded fragments to both buckets within one write
// transaction, allocating monotonically increasing ids. It does not touch
// the ANN index — callers must call BuildIndex before searching. Returns
// the ids assigned, in input order.
func (s *Store) Insert(ctx context.Context, fragments []embed.EmbeddedFragment) ([]uint64, error) {
	if len(fragments) == 0 {
		return nil, nil
	}

	ids := make([]uint64, len(fragments))
	err := s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		vectors := tx.Bucket(bucketVectors)
		chunks := tx.Bucket(bucketChunks)

		next := nextID(meta)
		for i, ef := range fragments {
			if len(ef.Vector) != s.cfg.Dimensions {
				return ErrDimensionMismatch{Expected: s.cfg.Dimensions, Got: len(ef.Vector)}
			}
			id := next
			next++
			ids[i] = id

			if err := vectors.Put(idKey(id), encodeVector(ef.Vector)); err != nil {
				return err
			}

			rec := recordFromFragment(id, ef)
			raw, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := chunks.Put(idKey(id), raw); err != nil {
				return err
			}
		}
		return putUint64(meta, keyNextID, next)
	})
	if err != nil {
		if mismatch, ok := err.(ErrDimensionMismatch); ok {
			return nil, errors.Config(mismatch.Error(), mismatch)
		}
		return nil, errors.IO("insert failed", err)
	}
	return ids, nil
}

// Delete removes the given ids from both buckets within one write
// transaction. Does not touch the ANN index.
func (s *Store) Delete(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		vectors := tx.Bucket(bucketVectors)
		chunks := tx.Bucket(bucketChunks)
		for _, id := range ids {
			if err := vectors.Delete(idKey(id)); err != nil {
				return err
			}
			if err := chunks.Delete(idKey(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.IO("delete failed", err)
	}
	return nil
}

// BuildIndex (re)builds the ANN graph from every vector currently in the
// vectors bucket and marks the store indexed. Idempotent.
func (s *Store) BuildIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.rebuildANNLocked(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyIndexed, []byte{1})
	})
}

func (s *Store) rebuildANNLocked() error {
	fresh := newANNIndex(s.cfg)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVectors).ForEach(func(k, v []byte) error {
			id := binary.BigEndian.Uint64(k)
			vec, err := decodeVector(v)
			if err != nil {
				return err
			}
			fresh.add([]uint64{id}, [][]float32{vec})
			return nil
		})
	})
	if err != nil {
		return errors.IO("build_index failed", err)
	}
	s.ann = fresh
	s.indexed = true
	return nil
}

// Search returns up to limit candidates ordered by ascending distance, each
// joined with its persisted metadata. Requires BuildIndex to have run.
func (s *Store) Search(ctx context.Context, query []float32, limit int) ([]*SearchResult, error) {
	if len(query) != s.cfg.Dimensions {
		return nil, errors.Config(fmt.Sprintf("query dimension %d does not match store dimension %d", len(query), s.cfg.Dimensions), nil)
	}

	s.mu.RLock()
	indexed := s.indexed
	ann := s.ann
	s.mu.RUnlock()

	if !indexed {
		return nil, errors.IndexNotBuilt("search requires build_index to have run at least once")
	}

	// Request extra candidates from the ANN layer to absorb recall loss
	// from HNSW's approximate search before truncating to limit.
	const kBoost = 15
	candidates := ann.search(query, limit*kBoost)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]*SearchResult, 0, len(candidates))
	err := s.db.View(func(tx *bolt.Tx) error {
		chunks := tx.Bucket(bucketChunks)
		for _, c := range candidates {
			raw := chunks.Get(idKey(c.ID))
			if raw == nil {
				continue // stale ANN entry for a since-deleted chunk
			}
			var rec ChunkRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return err
			}
			out = append(out, &SearchResult{
				ID: c.ID, Score: c.Score, Content: rec.Content, Path: rec.Path,
				StartLine: rec.StartLine, EndLine: rec.EndLine, Kind: rec.Kind,
				Signature: rec.Signature, Docstring: rec.Docstring, Context: rec.Context,
				Hash: rec.Hash,
			})
		}
		return nil
	})
	if err != nil {
		return nil, errors.IO("search failed", err)
	}
	return out, nil
}

// Get returns a chunk's persisted record by id, or nil if absent.
func (s *Store) Get(id uint64) (*ChunkRecord, error) {
	var rec *ChunkRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketChunks).Get(idKey(id))
		if raw == nil {
			return nil
		}
		var r ChunkRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		rec = &r
		return nil
	})
	if err != nil {
		return nil, errors.IO("get failed", err)
	}
	return rec, nil
}

// Clear discards all chunks, vectors, and the ANN index, resetting
// next_id. Dimensions are preserved so the store can be reindexed in place.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketVectors, bucketChunks} {
			if err := tx.DeleteBucket(name); err != nil && err != bolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		meta := tx.Bucket(bucketMeta)
		if err := meta.Delete(keyNextID); err != nil {
			return err
		}
		return meta.Delete(keyIndexed)
	})
	if err != nil {
		return errors.IO("clear failed", err)
	}
	s.ann = newANNIndex(s.cfg)
	s.indexed = false
	return nil
}

// Stats reports the chunk count, index state, and dimensionality.
func (s *Store) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(bucketChunks).Stats().KeyN
		return nil
	})
	if err != nil {
		return Stats{}, errors.IO("stats failed", err)
	}
	return Stats{ChunkCount: count, Indexed: s.indexed, Dimensions: s.cfg.Dimensions}, nil
}

// DBSize returns the size in bytes of the on-disk bbolt file.
func (s *Store) DBSize() (int64, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0, errors.IO("db_size failed", err)
	}
	return info.Size(), nil
}

// AllIDs returns every chunk id currently stored, for consistency checks
// against the full-text index.
func (s *Store) AllIDs() ([]uint64, error) {
	var ids []uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChunks).ForEach(func(k, _ []byte) error {
			ids = append(ids, binary.BigEndian.Uint64(k))
			return nil
		})
	})
	if err != nil {
		return nil, errors.IO("all_ids failed", err)
	}
	return ids, nil
}

func nextID(meta *bolt.Bucket) uint64 {
	v := meta.Get(keyNextID)
	if v == nil {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}

func putUint64(b *bolt.Bucket, key []byte, v uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return b.Put(key, buf)
}

func idKey(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return buf
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.BigEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("corrupt vector bytes: length %d not a multiple of 4", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.BigEndian.Uint32(b[i*4:]))
	}
	return out, nil
}

func recordFromFragment(id uint64, ef embed.EmbeddedFragment) ChunkRecord {
	f := ef.Fragment
	return ChunkRecord{
		ID: id, Vector: ef.Vector, Content: f.Content, Path: f.Path,
		StartLine: f.StartLine, EndLine: f.EndLine, Kind: string(f.Kind),
		Signature: f.Signature, Docstring: f.Docstring, Context: f.Context, Hash: f.Hash,
	}
}
