package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
)

// ErrDoesNotExist marks lookups against missing records, distinct from
// validation failures so callers can report not-found as a safe no-op.
var ErrDoesNotExist = errors.New("record does not exist")

// Store is the persistence layer: flat buckets of JSON values keyed by
// string ids minted from the bucket sequence.
type Store interface {
	CreateBucket(bucket string) error
	Create(bucket string, fn func(id string) interface{}) error
	CreateWithID(bucket, id string, payload interface{}) error
	Get(bucket, id string, i interface{}) error
	List(bucket string, fn func(id string, v []byte) error) error
	Update(bucket, id string, i interface{}) error
	Delete(bucket, id string) error
	Close() error
}

type store struct {
	db *bolt.DB
}

func NewStore(fname string) (Store, error) {
	db, err := bolt.Open(fname, 0600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, err
	}
	return &store{db: db}, nil
}

func (s *store) Close() error {
	return s.db.Close()
}

func (s *store) CreateBucket(bucket string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
}

// Create mints a new id from the bucket sequence and stores whatever fn
// returns for it. fn gets the id so payloads can carry their own key.
func (s *store) Create(bucket string, fn func(id string) interface{}) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket '%s' does not exist", bucket)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		id := strconv.FormatUint(seq, 10)
		data, err := json.Marshal(fn(id))
		if err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
}

func (s *store) CreateWithID(bucket, id string, payload interface{}) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket '%s' does not exist", bucket)
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
}

func (s *store) Get(bucket, id string, i interface{}) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket '%s' does not exist", bucket)
		}
		v := b.Get([]byte(id))
		if v == nil {
			return ErrDoesNotExist
		}
		return json.Unmarshal(v, i)
	})
}

func (s *store) List(bucket string, fn func(id string, v []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket '%s' does not exist", bucket)
		}
		return b.ForEach(func(k, v []byte) error {
			return fn(string(k), v)
		})
	})
}

func (s *store) Update(bucket, id string, i interface{}) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket '%s' does not exist", bucket)
		}
		if b.Get([]byte(id)) == nil {
			return ErrDoesNotExist
		}
		data, err := json.Marshal(i)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
}

func (s *store) Delete(bucket, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket '%s' does not exist", bucket)
		}
		if b.Get([]byte(id)) == nil {
			return ErrDoesNotExist
		}
		return b.Delete([]byte(id))
	})
}
