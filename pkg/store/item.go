package store

import (
	"bytes"
	"io"
	"io/ioutil"
	"time"

	"github.com/spf13/afero"

	"github.com/treestash/treestash/pkg/model"
	"github.com/treestash/treestash/pkg/status"
)

// BufferItem wraps an in-memory payload, e.g. a serialized manifest or a
// tar bundle built during archiving.
type BufferItem struct {
	digest       model.Digest
	buf          []byte
	highPriority bool
}

// NewBufferItem creates an item over bytes held in memory, hashing them
// with the namespace algorithm.
func NewBufferItem(data []byte, algo model.HashAlgo, highPriority bool) *BufferItem {
	return &BufferItem{
		digest:       algo.HashBytes(data),
		buf:          data,
		highPriority: highPriority,
	}
}

// Digest of the buffer
func (b *BufferItem) Digest() model.Digest { return b.digest }

// Size of the buffer
func (b *BufferItem) Size() int64 { return int64(len(b.buf)) }

// HighPriority marks manifests and other metadata items
func (b *BufferItem) HighPriority() bool { return b.highPriority }

// Content over the held buffer. Re-creatable at will.
func (b *BufferItem) Content() (io.ReadCloser, error) {
	return ioutil.NopCloser(bytes.NewReader(b.buf)), nil
}

// RefItem names content by digest without holding its bytes. It supports
// existence checks over digests obtained elsewhere; pushing it is an
// error.
type RefItem struct {
	digest model.Digest
	size   int64
}

// NewRefItem creates a digest-only item. size may be 0 when unknown.
func NewRefItem(digest model.Digest, size int64) *RefItem {
	return &RefItem{digest: digest, size: size}
}

// Digest this item refers to
func (r *RefItem) Digest() model.Digest { return r.digest }

// Size of the referenced content, 0 when unknown
func (r *RefItem) Size() int64 { return r.size }

// HighPriority is always false for bare references
func (r *RefItem) HighPriority() bool { return false }

// Content always fails: a reference holds no bytes
func (r *RefItem) Content() (io.ReadCloser, error) {
	return nil, status.ErrNotFound.WrapMessage("no content behind reference %s", r.digest)
}

// FileItem refers to a file on a filesystem, with size and mtime captured
// at enumeration time. Content opens the file anew on every call, so the
// item survives push retries.
type FileItem struct {
	fs     afero.Fs
	path   string
	digest model.Digest
	size   int64
	mtime  time.Time
}

// NewFileItem captures a filesystem-backed item. The digest is the hash of
// the file bytes at enumeration time.
func NewFileItem(fs afero.Fs, path string, digest model.Digest, size int64, mtime time.Time) *FileItem {
	return &FileItem{
		fs:     fs,
		path:   path,
		digest: digest,
		size:   size,
		mtime:  mtime,
	}
}

// Path of the underlying file
func (f *FileItem) Path() string { return f.path }

// Digest of the file bytes at enumeration time
func (f *FileItem) Digest() model.Digest { return f.digest }

// Size of the file at enumeration time
func (f *FileItem) Size() int64 { return f.size }

// HighPriority is always false for plain files
func (f *FileItem) HighPriority() bool { return false }

// ModTime at enumeration time
func (f *FileItem) ModTime() time.Time { return f.mtime }

// Content opens the file. A file mutated since enumeration yields bytes
// whose digest no longer matches; verification downstream catches that.
func (f *FileItem) Content() (io.ReadCloser, error) {
	r, err := f.fs.Open(f.path)
	if err != nil {
		return nil, status.ErrNotFound.Wrap(err)
	}
	return r, nil
}
