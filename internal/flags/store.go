package flags

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const flagBucket = "feature_flags"

// Store persists flag definitions across runs in a local bbolt file so
// canary percentages survive process restarts
type Store struct {
	db *bolt.DB
}

// OpenStore opens (or creates) the flag database at path
func OpenStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open flag store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(flagBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init flag bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists one flag definition
func (s *Store) Save(flag Flag) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(flag)
		if err != nil {
			return err
		}
		return tx.Bucket([]byte(flagBucket)).Put([]byte(flag.Name), data)
	})
}

// Load reads one flag definition
func (s *Store) Load(name string) (Flag, bool, error) {
	var flag Flag
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(flagBucket)).Get([]byte(name))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &flag)
	})
	return flag, found, err
}

// LoadAll hydrates a FeatureFlags set with every stored definition,
// layered over the built-in defaults
func (s *Store) LoadAll() (*FeatureFlags, error) {
	flags := New()
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(flagBucket)).ForEach(func(_, v []byte) error {
			var flag Flag
			if err := json.Unmarshal(v, &flag); err != nil {
				return err
			}
			flags.Set(flag)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return flags, nil
}

// SaveAll persists every definition in the set
func (s *Store) SaveAll(flags *FeatureFlags) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(flagBucket))
		for _, flag := range flags.All() {
			data, err := json.Marshal(flag)
			if err != nil {
				return err
			}
			if err := bucket.Put([]byte(flag.Name), data); err != nil {
				return err
			}
		}
		return nil
	})
}
