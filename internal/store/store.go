// Package store persists users, templates and variants as JSON documents
// in a bbolt database. Templates and variants are two flat collections
// related by Variant.TemplateID, each scoped by UserID.
package store

import (
	"errors"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketUsers         = []byte("users")
	bucketUserEmails    = []byte("user_emails")
	bucketUserCustomers = []byte("user_customers")
	bucketTemplates     = []byte("templates")
	bucketVariants      = []byte("variants")
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("not found")

// Store provides document storage operations.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New creates a store on an already-open database.
func New(db *bolt.DB) (*Store, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{
			bucketUsers,
			bucketUserEmails,
			bucketUserCustomers,
			bucketTemplates,
			bucketVariants,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
