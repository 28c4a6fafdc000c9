// Package index implements the incremental updater: per-file
// modification-time and content-hash change detection, chunk-id bookkeeping
// keyed by source path, and the delete-then-insert reindex transaction.
package index

import (
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/yxanul/demongrep/internal/errors"
)

var bucketFiles = []byte("files")

// FileRecord is the persisted state H tracks per indexed path: enough to
// decide, on the next pass, whether the file is unchanged, touched but
// content-identical, or genuinely modified — and which chunk ids to
// retract from E and F if it has to be reindexed.
type FileRecord struct {
	Path        string    `json:"path"`
	ModTime     time.Time `json:"mtime"`
	ContentHash string    `json:"content_hash"`
	ChunkIDs    []uint64  `json:"chunk_ids"`
}

// FileStore is the file-record half of H's persisted state, a single bbolt
// bucket keyed by path. It owns the chunk-id list for each path exclusively;
// the vector store and full-text index never infer membership any other way.
type FileStore struct {
	db *bolt.DB
}

// OpenFileStore creates or attaches a file-record store at path.
func OpenFileStore(path string) (*FileStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, errors.IO("failed to open file-record store", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketFiles)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.IO("failed to initialize file-record store", err)
	}
	return &FileStore{db: db}, nil
}

// Close releases the underlying bbolt environment.
func (s *FileStore) Close() error { return s.db.Close() }

// Get returns the record for path, or nil if the path has never been
// indexed.
func (s *FileStore) Get(path string) (*FileRecord, error) {
	var rec *FileRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketFiles).Get([]byte(path))
		if raw == nil {
			return nil
		}
		var r FileRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		rec = &r
		return nil
	})
	if err != nil {
		return nil, errors.IO("get file record failed", err)
	}
	return rec, nil
}

// Put creates or overwrites the record for rec.Path.
func (s *FileStore) Put(rec FileRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return errors.Internal("marshal file record failed", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFiles).Put([]byte(rec.Path), raw)
	})
	if err != nil {
		return errors.IO("put file record failed", err)
	}
	return nil
}

// Delete removes the record for path, if any.
func (s *FileStore) Delete(path string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFiles).Delete([]byte(path))
	})
	if err != nil {
		return errors.IO("delete file record failed", err)
	}
	return nil
}

// All returns every tracked file record. Used by clear-state bookkeeping
// and by consistency checks against E and F.
func (s *FileStore) All() ([]FileRecord, error) {
	var out []FileRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFiles).ForEach(func(_, v []byte) error {
			var r FileRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			out = append(out, r)
			return nil
		})
	})
	if err != nil {
		return nil, errors.IO("list file records failed", err)
	}
	return out, nil
}

// Clear discards every tracked file record.
func (s *FileStore) Clear() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketFiles); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket(bucketFiles)
		return err
	})
	if err != nil {
		return errors.IO("clear file records failed", err)
	}
	return nil
}

// Count returns the number of tracked files.
func (s *FileStore) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketFiles).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, errors.IO("count file records failed", err)
	}
	return n, nil
}
