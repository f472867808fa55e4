// Package zipstream implements the bounded-memory transport codec used by
// compressed namespaces. Both directions stream: no routine ever holds a
// whole payload in memory.
package zipstream

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"

	"github.com/treestash/treestash/pkg/status"
)

const (
	// DefaultLevel is used for regular content
	DefaultLevel = 7

	// DefaultMaxChunk caps the data returned by a single decompressed read
	DefaultMaxChunk = 64 * 1024
)

// alreadyCompressed lists file extensions whose bytes do not shrink under
// flate: those are stored at level 0 to save cpu on both ends.
var alreadyCompressed = map[string]struct{}{
	".7z": {}, ".avi": {}, ".bz2": {}, ".gif": {}, ".gz": {}, ".jpg": {},
	".jpeg": {}, ".mp4": {}, ".pdf": {}, ".png": {}, ".wav": {}, ".webm": {},
	".xz": {}, ".zip": {},
}

// LevelForFile picks the compression level for a file name
func LevelForFile(name string) int {
	if _, ok := alreadyCompressed[strings.ToLower(filepath.Ext(name))]; ok {
		return 0
	}
	return DefaultLevel
}

// Compress returns a reader yielding the zlib stream of src, produced
// incrementally. Closing the result releases the compressor; reading it to
// EOF surfaces any error from src unmodified.
func Compress(src io.Reader) io.ReadCloser {
	return CompressLevel(src, DefaultLevel)
}

// CompressLevel is Compress with an explicit flate level
func CompressLevel(src io.Reader, level int) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		zw, err := zlib.NewWriterLevel(pw, level)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err = io.Copy(zw, src); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(zw.Close())
	}()
	return pr
}

// Decompress returns a reader over the decompressed bytes of src. Each
// read returns at most maxChunk bytes no matter how much decompressed data
// is available, bounding amplification on highly compressible input.
// Malformed input surfaces as status.ErrCorruptData lazily, at the read
// where decoding fails.
func Decompress(src io.Reader, maxChunk int) io.ReadCloser {
	if maxChunk <= 0 {
		maxChunk = DefaultMaxChunk
	}
	return &decompressor{src: src, maxChunk: maxChunk}
}

type decompressor struct {
	src      io.Reader
	zr       io.ReadCloser
	maxChunk int
	err      error
}

func (d *decompressor) Read(p []byte) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	if d.zr == nil {
		zr, err := zlib.NewReader(d.src)
		if err != nil {
			d.err = corruptOrPassthrough(err)
			return 0, d.err
		}
		d.zr = zr
	}
	if len(p) > d.maxChunk {
		p = p[:d.maxChunk]
	}
	n, err := d.zr.Read(p)
	if err != nil && err != io.EOF {
		err = corruptOrPassthrough(err)
	}
	if err != nil {
		d.err = err
	}
	return n, err
}

func (d *decompressor) Close() error {
	if d.zr == nil {
		return nil
	}
	return d.zr.Close()
}

// corruptOrPassthrough classifies decoder errors as corrupt input while
// letting genuine source read errors through unchanged.
func corruptOrPassthrough(err error) error {
	switch err.(type) {
	case flate.CorruptInputError, flate.InternalError:
		return status.ErrCorruptData.Wrap(err)
	}
	switch err {
	case zlib.ErrHeader, zlib.ErrChecksum, zlib.ErrDictionary:
		return status.ErrCorruptData.Wrap(err)
	case io.ErrUnexpectedEOF:
		return status.ErrCorruptData.Wrap(err)
	}
	return err
}
