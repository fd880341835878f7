package persist

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-faster/errors"
	bolt "go.etcd.io/bbolt"
)

var boltBucket = []byte("catalog")

var _ Medium = (*BoltMedium)(nil)

// BoltMedium stores values in a bbolt database file.
type BoltMedium struct {
	db *bolt.DB
}

// OpenBolt opens or creates the database at path. The parent directory is
// created if missing.
func OpenBolt(path string) (*BoltMedium, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("bolt path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "ensure bolt dir")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "open bolt db")
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create bucket")
	}
	return &BoltMedium{db: db}, nil
}

func (m *BoltMedium) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := m.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(boltBucket).Get([]byte(key))
		if v == nil {
			return ErrNoState
		}
		// v is only valid for the life of the transaction.
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *BoltMedium) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(boltBucket).Put([]byte(key), value); err != nil {
			return errors.Wrapf(err, "put %q", key)
		}
		return nil
	})
}

// Ping checks that the database is open.
func (m *BoltMedium) Ping(context.Context) error {
	return m.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(boltBucket) == nil {
			return errors.New("bucket missing")
		}
		return nil
	})
}

func (m *BoltMedium) Close() error {
	return m.db.Close()
}
