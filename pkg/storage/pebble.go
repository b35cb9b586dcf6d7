package storage

import (
	"errors"

	"github.com/cockroachdb/pebble"

	"gramsync/pkg/logger"
)

// Pebble is a durable KV backed by a local pebble database. It is the
// device-side analogue of the platform key-value store: small values,
// synced writes, survives restarts.
type Pebble struct {
	db   *pebble.DB
	path string
}

// OpenPebble opens (or creates) a pebble database at the given path.
// cacheBytes bounds the block cache; zero keeps pebble's default.
func OpenPebble(path string, cacheBytes uint64) (*Pebble, error) {
	logger.Info("opening_pebble_db", "path", path, "cache_bytes", cacheBytes)
	opts := &pebble.Options{}
	if cacheBytes > 0 {
		c := pebble.NewCache(int64(cacheBytes))
		defer c.Unref()
		opts.Cache = c
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, &StorageError{Op: "open", Key: path, Err: err}
	}
	logger.Info("pebble_opened", "path", path)
	return &Pebble{db: db, path: path}, nil
}

// Close closes the underlying database.
func (p *Pebble) Close() error {
	if p.db == nil {
		return nil
	}
	if err := p.db.Close(); err != nil {
		return err
	}
	p.db = nil
	logger.Info("pebble_closed", "path", p.path)
	return nil
}

// Ready reports whether the store is opened and usable.
func (p *Pebble) Ready() bool { return p != nil && p.db != nil }

func (p *Pebble) Get(key string) (string, error) {
	if p.db == nil {
		return "", &StorageError{Op: "get", Key: key, Err: errors.New("pebble not opened")}
	}
	v, closer, err := p.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", &StorageError{Op: "get", Key: key, Err: err}
	}
	if closer != nil {
		defer closer.Close()
	}
	return string(append([]byte(nil), v...)), nil
}

func (p *Pebble) Set(key, value string) error {
	if p.db == nil {
		return &StorageError{Op: "set", Key: key, Err: errors.New("pebble not opened")}
	}
	if err := p.db.Set([]byte(key), []byte(value), pebble.Sync); err != nil {
		logger.Error("pebble_set_failed", "key", key, "error", err)
		return &StorageError{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (p *Pebble) Delete(key string) error {
	if p.db == nil {
		return &StorageError{Op: "delete", Key: key, Err: errors.New("pebble not opened")}
	}
	if err := p.db.Delete([]byte(key), pebble.Sync); err != nil {
		logger.Error("pebble_delete_failed", "key", key, "error", err)
		return &StorageError{Op: "delete", Key: key, Err: err}
	}
	return nil
}
