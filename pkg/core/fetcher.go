package core

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/treestash/treestash/pkg/cache"
	"github.com/treestash/treestash/pkg/errors"
	"github.com/treestash/treestash/pkg/model"
)

// ErrNothingPending is returned by Wait and WaitOn when no fetch can ever
// satisfy them
var ErrNothingPending = errors.New("no fetch in flight")

// FetchQueue schedules verified downloads into a content cache with
// bounded concurrency. Each digest is fetched at most once per queue, no
// matter how many times it is added; digests already present in the cache
// complete without touching the backend.
//
// All methods are safe for concurrent use.
type FetchQueue struct {
	storage *Storage
	cache   cache.ContentCache
	l       *zap.Logger
	sem     chan struct{}

	mx        sync.Mutex
	cond      *sync.Cond
	inflight  map[model.Digest]struct{}
	completed map[model.Digest]error
	// completions not yet handed out by Wait, oldest first
	pending []model.Digest
}

// NewFetchQueue creates a queue fetching through storage into c
func NewFetchQueue(storage *Storage, c cache.ContentCache) *FetchQueue {
	q := &FetchQueue{
		storage:   storage,
		cache:     c,
		l:         storage.l,
		sem:       make(chan struct{}, storage.concurrentFetches),
		inflight:  make(map[model.Digest]struct{}),
		completed: make(map[model.Digest]error),
	}
	q.cond = sync.NewCond(&q.mx)
	return q
}

// Add schedules one digest for download. Re-adding a digest already
// scheduled or already completed is a no-op. A negative size disables the
// size check on the fetched bytes.
//
// highPriority fetches bypass the concurrency cap, so manifests are never
// stuck behind bulk content.
func (q *FetchQueue) Add(ctx context.Context, digest model.Digest, size int64, highPriority bool) {
	q.mx.Lock()
	if _, ok := q.inflight[digest]; ok {
		q.mx.Unlock()
		return
	}
	if _, ok := q.completed[digest]; ok {
		q.mx.Unlock()
		return
	}
	q.inflight[digest] = struct{}{}
	q.mx.Unlock()

	go q.fetch(ctx, digest, size, highPriority)
}

func (q *FetchQueue) fetch(ctx context.Context, digest model.Digest, size int64, highPriority bool) {
	if !highPriority {
		q.sem <- struct{}{}
		defer func() {
			<-q.sem
		}()
	}
	err := q.fetchToCache(ctx, digest, size)
	if err != nil {
		q.l.Error("fetch failed", zap.String("digest", digest.String()), zap.Error(err))
	}

	q.mx.Lock()
	delete(q.inflight, digest)
	q.completed[digest] = err
	q.pending = append(q.pending, digest)
	q.mx.Unlock()
	q.cond.Broadcast()
}

func (q *FetchQueue) fetchToCache(ctx context.Context, digest model.Digest, size int64) error {
	if ok, err := q.cache.Has(ctx, digest); err == nil && ok {
		return nil
	}
	rdr, err := q.storage.OpenVerified(ctx, digest, size)
	if err != nil {
		return err
	}
	defer rdr.Close()
	return q.cache.Put(ctx, digest, rdr)
}

// Wait blocks until a scheduled fetch completes and returns its digest,
// with the fetch's error if it failed. Completions are handed out once
// each, oldest first. With nothing in flight and nothing to hand out it
// returns ErrNothingPending.
func (q *FetchQueue) Wait() (model.Digest, error) {
	q.mx.Lock()
	defer q.mx.Unlock()
	for {
		if len(q.pending) > 0 {
			d := q.pending[0]
			q.pending = q.pending[1:]
			return d, q.completed[d]
		}
		if len(q.inflight) == 0 {
			return "", ErrNothingPending
		}
		q.cond.Wait()
	}
}

// WaitOn blocks until the given digest's fetch completes and returns its
// error. The completion is consumed: Wait will not hand it out again. A
// digest never added yields ErrNothingPending.
func (q *FetchQueue) WaitOn(digest model.Digest) error {
	q.mx.Lock()
	defer q.mx.Unlock()
	for {
		if err, ok := q.completed[digest]; ok {
			for i, d := range q.pending {
				if d == digest {
					q.pending = append(q.pending[:i], q.pending[i+1:]...)
					break
				}
			}
			return err
		}
		if _, ok := q.inflight[digest]; !ok {
			return ErrNothingPending.WrapMessage("digest %s was never scheduled", digest)
		}
		q.cond.Wait()
	}
}

// Pending counts fetches in flight plus completions not yet consumed
func (q *FetchQueue) Pending() int {
	q.mx.Lock()
	defer q.mx.Unlock()
	return len(q.inflight) + len(q.pending)
}
