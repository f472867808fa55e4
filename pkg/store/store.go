// Package store defines the units of the content-addressed protocol: items
// carrying digested content, the per-item push ticket, the verified fetch
// stream, and the Backend interface remote implementations satisfy.
package store

import (
	"context"
	"io"

	"github.com/treestash/treestash/pkg/model"
)

// Item is a unit of content to synchronize with the remote store: a digest
// over the uncompressed canonical bytes, the uncompressed size, and a way
// to produce those bytes.
//
// Content returns a fresh single-pass reader over the item's bytes. The
// returned stream is lazy: implementations must not materialize the whole
// payload. Callers wanting to read twice call Content twice.
type Item interface {
	Digest() model.Digest
	Size() int64
	// HighPriority items (manifests) are flagged as isolated in existence
	// checks so the server can prioritize them.
	HighPriority() bool
	Content() (io.ReadCloser, error)
}

// PushState is the server-issued, single-use ticket authorizing the upload
// of one missing item. It is created by Contains and consumed by exactly
// one Push call; it is never shared across items.
//
// UploadURL and FinalizeURL select the staged-blob path; when FinalizeURL
// is empty the content travels inline with the ticket. The two flags
// expose push progress: Uploaded turns true once the byte transfer
// completed, Finalized once the server acknowledged the commit. A state
// with Uploaded and not Finalized means "bytes stored but not committed",
// never "content available".
type PushState struct {
	Ticket      string
	UploadURL   string
	FinalizeURL string
	Uploaded    bool
	Finalized   bool
	_           struct{}
}

// Backend executes the content-addressed protocol against one remote
// namespace. Implementations are safe for concurrent use.
type Backend interface {
	// ServerRef identifies the namespace this backend talks to
	ServerRef() model.ServerRef

	// Contains batches one existence check over items and returns a fresh
	// PushState for each item missing remotely. Items already present are
	// absent from the result. A failed batch call surfaces as
	// status.ErrMapping.
	Contains(ctx context.Context, items []Item) (map[Item]*PushState, error)

	// Push uploads one missing item. src carries the transport bytes
	// (compressed when the namespace says so); the backend never compresses
	// or hashes. Phase failures surface as status.ErrTransfer with the
	// PushState flags telling which phase completed.
	Push(ctx context.Context, item Item, state *PushState, src io.Reader) error

	// Fetch streams the stored bytes of a digest starting at offset. The
	// returned stream is raw: compressed namespaces yield compressed bytes.
	// size is the expected stored size when known, 0 otherwise; it bounds
	// the range confirmation check on resumed fetches.
	Fetch(ctx context.Context, digest model.Digest, size, offset int64) (io.ReadCloser, error)
}
