package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/qiuqing005/maoxian/internal/models"
)

const (
	recordBucket = "record"
	indexBucket  = "index"
)

// BoltStore is the default file-backed store. Records live in the record
// bucket under owner/adventure keys, indices in the index bucket under the
// owner key, both as JSON documents.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBolt opens (creating if needed) a bbolt database at the given path.
func OpenBolt(path string) (*BoltStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &BoltStore{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PutRecord persists an adventure record.
func (s *BoltStore) PutRecord(ctx context.Context, rec *models.AdventureRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec == nil || rec.AdventureID == "" || rec.OwnerID == "" {
		return fmt.Errorf("adventure record requires owner and adventure ids")
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal adventure record: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(recordBucket))
		if bucket == nil {
			return fmt.Errorf("record bucket is missing")
		}
		return bucket.Put(recordKey(rec.OwnerID, rec.AdventureID), payload)
	})
}

// GetRecord fetches an adventure record. A payload that cannot be decoded or
// that fails validation is reported as ErrCorrupt.
func (s *BoltStore) GetRecord(ctx context.Context, ownerID, adventureID string) (*models.AdventureRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec models.AdventureRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(recordBucket))
		if bucket == nil {
			return fmt.Errorf("record bucket is missing")
		}
		payload := bucket.Get(recordKey(ownerID, adventureID))
		if payload == nil {
			return ErrNotFound
		}
		if err := json.Unmarshal(payload, &rec); err != nil {
			return fmt.Errorf("%w: unmarshal adventure record: %v", ErrCorrupt, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	return &rec, nil
}

// DeleteRecord removes an adventure record. Deleting an absent record is a
// no-op.
func (s *BoltStore) DeleteRecord(ctx context.Context, ownerID, adventureID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(recordBucket))
		if bucket == nil {
			return fmt.Errorf("record bucket is missing")
		}
		return bucket.Delete(recordKey(ownerID, adventureID))
	})
}

// PutIndex persists a per-owner index document.
func (s *BoltStore) PutIndex(ctx context.Context, idx *models.UserIndex) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if idx == nil || idx.OwnerID == "" {
		return fmt.Errorf("user index requires an owner id")
	}

	payload, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("marshal user index: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(indexBucket))
		if bucket == nil {
			return fmt.Errorf("index bucket is missing")
		}
		return bucket.Put([]byte(idx.OwnerID), payload)
	})
}

// GetIndex fetches a per-owner index document.
func (s *BoltStore) GetIndex(ctx context.Context, ownerID string) (*models.UserIndex, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var idx models.UserIndex
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(indexBucket))
		if bucket == nil {
			return fmt.Errorf("index bucket is missing")
		}
		payload := bucket.Get([]byte(ownerID))
		if payload == nil {
			return ErrNotFound
		}
		if err := json.Unmarshal(payload, &idx); err != nil {
			return fmt.Errorf("%w: unmarshal user index: %v", ErrCorrupt, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := idx.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	return &idx, nil
}

// ListOwners returns every owner that has a persisted index.
func (s *BoltStore) ListOwners(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var owners []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(indexBucket))
		if bucket == nil {
			return fmt.Errorf("index bucket is missing")
		}
		return bucket.ForEach(func(k, _ []byte) error {
			owners = append(owners, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return owners, nil
}

// DeleteOwner removes the owner's index and every record under the owner's
// key prefix.
func (s *BoltStore) DeleteOwner(ctx context.Context, ownerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		idxBucket := tx.Bucket([]byte(indexBucket))
		if idxBucket == nil {
			return fmt.Errorf("index bucket is missing")
		}
		if err := idxBucket.Delete([]byte(ownerID)); err != nil {
			return err
		}

		recBucket := tx.Bucket([]byte(recordBucket))
		if recBucket == nil {
			return fmt.Errorf("record bucket is missing")
		}
		prefix := recordPrefix(ownerID)
		cursor := recBucket.Cursor()
		for k, _ := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cursor.Next() {
			if err := recBucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteAll drops every record and index by recreating both buckets.
func (s *BoltStore) DeleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{recordBucket, indexBucket} {
			if err := tx.DeleteBucket([]byte(name)); err != nil && err != bbolt.ErrBucketNotFound {
				return fmt.Errorf("drop %s bucket: %w", name, err)
			}
			if _, err := tx.CreateBucket([]byte(name)); err != nil {
				return fmt.Errorf("recreate %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

func (s *BoltStore) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{recordBucket, indexBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

// Record keys length-prefix the owner component. A bare separator would let
// owner "a" alias owner "a/b" during the prefix scan in DeleteOwner.
func recordKey(ownerID, adventureID string) []byte {
	return append(recordPrefix(ownerID), adventureID...)
}

func recordPrefix(ownerID string) []byte {
	return []byte(fmt.Sprintf("%d/%s/", len(ownerID), ownerID))
}
