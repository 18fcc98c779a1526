// Package store persists producer-side chain state in a local bbolt
// database: the chain head (so an interrupted producer resumes without
// replaying the whole log), generated anchors, and free-form metadata.
package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/veritaschain/vcp/internal/anchor"
)

var (
	HeadsBucket    = []byte("heads")
	AnchorsBucket  = []byte("anchors")
	MetadataBucket = []byte("metadata")
)

type Store struct {
	db *bolt.DB
}

// Head is the resumable chain position.
type Head struct {
	Chain     string    `json:"chain"`
	Sequence  uint64    `json:"sequence"`
	PrevHash  string    `json:"prev_hash"`
	UpdatedAt time.Time `json:"updated_at"`
}

func New(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{HeadsBucket, AnchorsBucket, MetadataBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveHead implements chain.HeadStore.
func (s *Store) SaveHead(chain string, sequence uint64, prevHash string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(HeadsBucket)

		head := Head{
			Chain:     chain,
			Sequence:  sequence,
			PrevHash:  prevHash,
			UpdatedAt: time.Now(),
		}
		data, err := json.Marshal(head)
		if err != nil {
			return fmt.Errorf("failed to marshal head: %w", err)
		}
		return bucket.Put([]byte(chain), data)
	})
}

func (s *Store) GetHead(chain string) (*Head, error) {
	var head Head

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(HeadsBucket)
		data := bucket.Get([]byte(chain))
		if data == nil {
			return fmt.Errorf("no head for chain %s", chain)
		}
		return json.Unmarshal(data, &head)
	})
	if err != nil {
		return nil, err
	}

	return &head, nil
}

// SaveAnchor stores an anchor keyed by chain and last covered
// sequence, so anchors enumerate in range order.
func (s *Store) SaveAnchor(chain string, a *anchor.Anchor) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(AnchorsBucket)

		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("failed to marshal anchor: %w", err)
		}
		return bucket.Put(anchorKey(chain, a.LastSequence), data)
	})
}

func (s *Store) GetLatestAnchor(chain string) (*anchor.Anchor, error) {
	var latest *anchor.Anchor

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(AnchorsBucket)
		cursor := bucket.Cursor()

		prefix := []byte(chain + ":")
		for k, v := cursor.Seek(prefix); k != nil && len(k) >= len(prefix) && string(k[:len(prefix)]) == string(prefix); k, v = cursor.Next() {
			var a anchor.Anchor
			if err := json.Unmarshal(v, &a); err != nil {
				return fmt.Errorf("failed to unmarshal anchor %s: %w", k, err)
			}
			latest = &a
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if latest == nil {
		return nil, fmt.Errorf("no anchors found for chain %s", chain)
	}
	return latest, nil
}

func (s *Store) GetAnchors(chain string) ([]*anchor.Anchor, error) {
	var anchors []*anchor.Anchor

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(AnchorsBucket)
		cursor := bucket.Cursor()

		prefix := []byte(chain + ":")
		for k, v := cursor.Seek(prefix); k != nil && len(k) >= len(prefix) && string(k[:len(prefix)]) == string(prefix); k, v = cursor.Next() {
			var a anchor.Anchor
			if err := json.Unmarshal(v, &a); err != nil {
				return fmt.Errorf("failed to unmarshal anchor %s: %w", k, err)
			}
			anchors = append(anchors, &a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return anchors, nil
}

func (s *Store) SetMetadata(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(MetadataBucket)
		return bucket.Put([]byte(key), []byte(value))
	})
}

func (s *Store) GetMetadata(key string) (string, error) {
	var value string

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(MetadataBucket)
		data := bucket.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("metadata key not found: %s", key)
		}
		value = string(data)
		return nil
	})

	return value, err
}

// anchorKey builds a big-endian key so the bucket cursor walks anchors
// in sequence order.
func anchorKey(chain string, lastSequence uint64) []byte {
	key := make([]byte, 0, len(chain)+1+8)
	key = append(key, chain...)
	key = append(key, ':')
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], lastSequence)
	return append(key, seq[:]...)
}
