package inbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/syndtr/goleveldb/leveldb"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
)

// ErrObjectNotFound is returned by Read for unknown keys.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore holds frame data referenced by DATypeObjectStore submissions.
type ObjectStore interface {
	// Write stores data under key and returns the key. An empty key stores
	// the data under its keccak256 hash.
	Write(ctx context.Context, key string, data []byte) (string, error)
	Read(ctx context.Context, key string) ([]byte, error)
}

// LevelDBStore is an ObjectStore on LevelDB.
type LevelDBStore struct {
	db *leveldb.DB
}

// NewLevelDBStore opens or creates a LevelDB database at path. An empty path
// keeps the data in memory.
func NewLevelDBStore(path string) (*LevelDBStore, error) {
	var (
		db  *leveldb.DB
		err error
	)
	if path == "" {
		db, err = leveldb.Open(leveldbstorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open object store at %q: %w", path, err)
	}
	return &LevelDBStore{db: db}, nil
}

// NewMemoryStore creates an in-memory LevelDBStore.
func NewMemoryStore() (*LevelDBStore, error) {
	return NewLevelDBStore("")
}

func (s *LevelDBStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if key == "" {
		key = crypto.Keccak256Hash(data).Hex()
	}
	if err := s.db.Put([]byte(key), data, nil); err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return key, nil
}

func (s *LevelDBStore) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return data, nil
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
