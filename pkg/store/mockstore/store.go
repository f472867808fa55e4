// Package mockstore provides an in-memory Backend for tests: it behaves
// like a real store (existence by digest, push persists, fetch serves) and
// records every call, with hooks to inject failures.
package mockstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"sync"

	"github.com/treestash/treestash/pkg/model"
	"github.com/treestash/treestash/pkg/status"
	"github.com/treestash/treestash/pkg/store"
)

// PushCall records one Push invocation with the fully drained content
type PushCall struct {
	Digest  model.Digest
	State   *store.PushState
	Content []byte
}

// Store is an in-memory store.Backend. The zero value is not usable,
// call New.
type Store struct {
	mx      sync.Mutex
	ref     model.ServerRef
	objects map[model.Digest][]byte
	tickets int

	// PushErr, when set, is invoked after draining the content of each
	// push; a non-nil result fails that push as a transfer error.
	PushErr func(item store.Item) error

	// FetchErr, when set, may fail a fetch before serving bytes
	FetchErr func(digest model.Digest) error

	containsCalls [][]store.Item
	pushCalls     []PushCall
}

// New creates an empty in-memory backend for the given reference
func New(ref model.ServerRef) *Store {
	return &Store{
		ref:     ref,
		objects: make(map[model.Digest][]byte),
	}
}

var _ store.Backend = &Store{}

// ServerRef identifies the namespace this backend fakes
func (s *Store) ServerRef() model.ServerRef {
	return s.ref
}

// Seed stores raw bytes under a digest without recording a push
func (s *Store) Seed(digest model.Digest, data []byte) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.objects[digest] = data
}

// Object returns the stored raw bytes for a digest
func (s *Store) Object(digest model.Digest) ([]byte, bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	data, ok := s.objects[digest]
	return data, ok
}

// ContainsCalls returns the recorded Contains batches
func (s *Store) ContainsCalls() [][]store.Item {
	s.mx.Lock()
	defer s.mx.Unlock()
	return append([][]store.Item(nil), s.containsCalls...)
}

// PushCalls returns the recorded pushes
func (s *Store) PushCalls() []PushCall {
	s.mx.Lock()
	defer s.mx.Unlock()
	return append([]PushCall(nil), s.pushCalls...)
}

// Contains reports the items absent from the in-memory holdings
func (s *Store) Contains(_ context.Context, items []store.Item) (map[store.Item]*store.PushState, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.containsCalls = append(s.containsCalls, append([]store.Item(nil), items...))
	missing := make(map[store.Item]*store.PushState)
	for _, item := range items {
		if _, ok := s.objects[item.Digest()]; ok {
			continue
		}
		s.tickets++
		missing[item] = &store.PushState{Ticket: fmt.Sprintf("ticket-%d", s.tickets)}
	}
	return missing, nil
}

// Push drains src and persists it under the item digest
func (s *Store) Push(_ context.Context, item store.Item, state *store.PushState, src io.Reader) error {
	data, err := ioutil.ReadAll(src)
	if err != nil {
		// content source failures propagate unmodified
		return err
	}
	if s.PushErr != nil {
		if ferr := s.PushErr(item); ferr != nil {
			s.mx.Lock()
			s.pushCalls = append(s.pushCalls, PushCall{Digest: item.Digest(), State: state, Content: data})
			s.mx.Unlock()
			return status.ErrTransfer.Wrap(ferr)
		}
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	s.pushCalls = append(s.pushCalls, PushCall{Digest: item.Digest(), State: state, Content: data})
	s.objects[item.Digest()] = data
	state.Uploaded = true
	state.Finalized = true
	return nil
}

// Fetch serves stored raw bytes from offset
func (s *Store) Fetch(_ context.Context, digest model.Digest, _ int64, offset int64) (io.ReadCloser, error) {
	if s.FetchErr != nil {
		if err := s.FetchErr(digest); err != nil {
			return nil, err
		}
	}
	s.mx.Lock()
	data, ok := s.objects[digest]
	s.mx.Unlock()
	if !ok {
		return nil, status.ErrNotFound.WrapMessage("%s", digest)
	}
	if offset > int64(len(data)) {
		return nil, &status.RangeError{Offset: offset, Size: int64(len(data)), Reason: "offset beyond object"}
	}
	return ioutil.NopCloser(bytes.NewReader(data[offset:])), nil
}
