// Package localfs implements the content cache on a local file system.
package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/segmentio/ksuid"
	"github.com/spf13/afero"

	"github.com/treestash/treestash/pkg/cache"
	"github.com/treestash/treestash/pkg/model"
	"github.com/treestash/treestash/pkg/status"
)

// New creates a file system backed content cache
func New(fs afero.Fs) cache.ContentCache {
	if fs == nil {
		fs = afero.NewBasePathFs(afero.NewOsFs(), filepath.Join(".treestash", "objects"))
	}
	return &localFS{fs: fs}
}

type localFS struct {
	fs afero.Fs
}

// pather shards objects over two directory levels to keep directories small
func pather(digest model.Digest) string {
	d := digest.String()
	if len(d) < 4 {
		return d
	}
	return filepath.Join(d[:2], d[2:4], d)
}

func (l *localFS) Has(_ context.Context, digest model.Digest) (bool, error) {
	fi, err := l.fs.Stat(pather(digest))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !fi.IsDir(), nil
}

func (l *localFS) Get(ctx context.Context, digest model.Digest) (io.ReadCloser, error) {
	has, err := l.Has(ctx, digest)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, status.ErrNotFound.WrapMessage("%s", digest)
	}
	return l.fs.Open(pather(digest))
}

func (l *localFS) Put(_ context.Context, digest model.Digest, src io.Reader) error {
	key := pather(digest)
	if dir := filepath.Dir(key); dir != "" {
		if err := l.fs.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	// stage under a unique name, promote atomically once fully written
	tmp := key + ".tmp." + ksuid.New().String()
	target, err := l.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	if _, err = io.Copy(target, src); err != nil {
		_ = target.Close()
		_ = l.fs.Remove(tmp)
		return err
	}
	if err = target.Close(); err != nil {
		_ = l.fs.Remove(tmp)
		return err
	}
	return l.fs.Rename(tmp, key)
}
