// Package badgercache implements the content cache on an embedded badger
// KV store, for hosts where many small objects make a file-per-object
// cache slow.
package badgercache

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"

	badger "github.com/dgraph-io/badger/v3"

	"github.com/treestash/treestash/pkg/cache"
	"github.com/treestash/treestash/pkg/model"
	"github.com/treestash/treestash/pkg/status"
)

// Cache is a badger backed content cache. Close it when done.
type Cache struct {
	db *badger.DB
}

// New opens (or creates) a badger cache at dir
func New(dir string) (*Cache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Cache{db: db}, nil
}

var _ cache.ContentCache = &Cache{}

// Close releases the underlying store
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) Has(_ context.Context, digest model.Digest) (bool, error) {
	err := c.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(digest))
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Cache) Get(_ context.Context, digest model.Digest) (io.ReadCloser, error) {
	var data []byte
	err := c.db.View(func(txn *badger.Txn) error {
		entry, err := txn.Get([]byte(digest))
		if err != nil {
			return err
		}
		data, err = entry.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, status.ErrNotFound.WrapMessage("%s", digest)
	}
	if err != nil {
		return nil, err
	}
	return ioutil.NopCloser(bytes.NewReader(data)), nil
}

func (c *Cache) Put(_ context.Context, digest model.Digest, src io.Reader) error {
	// badger values are byte slices: cached objects are buffered once here
	data, err := ioutil.ReadAll(src)
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(digest), data)
	})
}
