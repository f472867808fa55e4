// Package cache defines the local content cache contract the fetch
// scheduler writes through. Implementations store verified, uncompressed
// bytes addressed by digest; eviction policy is theirs alone.
package cache

import (
	"context"
	"io"

	"github.com/treestash/treestash/pkg/model"
)

// ContentCache is a byte store addressed by content digest.
//
// Put consumes a single-pass stream; Get returns status.ErrNotFound for
// absent digests.
type ContentCache interface {
	Has(ctx context.Context, digest model.Digest) (bool, error)
	Get(ctx context.Context, digest model.Digest) (io.ReadCloser, error)
	Put(ctx context.Context, digest model.Digest, src io.Reader) error
}
