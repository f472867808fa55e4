package core

import (
	"bytes"
	"context"
	"io/ioutil"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/treestash/treestash/internal/rand"
	"github.com/treestash/treestash/pkg/cache"
	"github.com/treestash/treestash/pkg/cache/localfs"
	"github.com/treestash/treestash/pkg/errors"
	"github.com/treestash/treestash/pkg/model"
	"github.com/treestash/treestash/pkg/status"
)

func testCache() cache.ContentCache {
	return localfs.New(afero.NewMemMapFs())
}

func cacheBytes(t *testing.T, c cache.ContentCache, digest model.Digest) []byte {
	t.Helper()
	rdr, err := c.Get(context.Background(), digest)
	require.NoError(t, err)
	defer rdr.Close()
	data, err := ioutil.ReadAll(rdr)
	require.NoError(t, err)
	return data
}

func TestFetchQueueFillsCache(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, backend := testStorage("default", ConcurrentFetches(4))
	algo := s.ServerRef().HashAlgo()
	c := testCache()

	src := rand.New(10)
	digests := make([]model.Digest, 0, 8)
	payloads := make(map[model.Digest][]byte, 8)
	for i := 0; i < 8; i++ {
		p := src.Bytes(256 + i)
		d := algo.HashBytes(p)
		backend.Seed(d, p)
		digests = append(digests, d)
		payloads[d] = p
	}

	q := NewFetchQueue(s, c)
	for _, d := range digests {
		q.Add(context.Background(), d, int64(len(payloads[d])), false)
	}
	seen := make(map[model.Digest]struct{})
	for range digests {
		d, err := q.Wait()
		require.NoError(t, err)
		seen[d] = struct{}{}
	}
	require.Len(t, seen, len(digests))
	assert.Equal(t, 0, q.Pending())

	for d, p := range payloads {
		assert.Equal(t, string(p), string(cacheBytes(t, c, d)))
	}
}

func TestFetchQueueDeduplicates(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, backend := testStorage("default")
	algo := s.ServerRef().HashAlgo()
	c := testCache()

	payload := []byte("fetch once")
	digest := algo.HashBytes(payload)
	backend.Seed(digest, payload)

	var fetches int32
	backend.FetchErr = func(_ model.Digest) error {
		atomic.AddInt32(&fetches, 1)
		return nil
	}

	q := NewFetchQueue(s, c)
	q.Add(context.Background(), digest, int64(len(payload)), false)
	require.NoError(t, q.WaitOn(digest))

	// completed digests are not fetched again
	q.Add(context.Background(), digest, int64(len(payload)), false)
	_, err := q.Wait()
	assert.True(t, errors.Is(err, ErrNothingPending))
	assert.EqualValues(t, 1, atomic.LoadInt32(&fetches))
}

func TestFetchQueueCacheHit(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, backend := testStorage("default")
	algo := s.ServerRef().HashAlgo()
	c := testCache()

	payload := []byte("already local")
	digest := algo.HashBytes(payload)
	require.NoError(t, c.Put(context.Background(), digest, bytes.NewReader(payload)))

	var fetches int32
	backend.FetchErr = func(_ model.Digest) error {
		atomic.AddInt32(&fetches, 1)
		return nil
	}

	q := NewFetchQueue(s, c)
	q.Add(context.Background(), digest, int64(len(payload)), false)
	require.NoError(t, q.WaitOn(digest))
	assert.EqualValues(t, 0, atomic.LoadInt32(&fetches))
}

func TestFetchQueueMissingObject(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, _ := testStorage("default")
	c := testCache()

	q := NewFetchQueue(s, c)
	q.Add(context.Background(), "0000000000000000000000000000000000000000", 10, false)
	d, err := q.Wait()
	require.Error(t, err)
	assert.EqualValues(t, "0000000000000000000000000000000000000000", d)
	assert.True(t, errors.Is(err, status.ErrNotFound))
}

func TestFetchQueueWaitOnUnknownDigest(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, _ := testStorage("default")
	q := NewFetchQueue(s, testCache())
	err := q.WaitOn("feedface")
	assert.True(t, errors.Is(err, ErrNothingPending))
}
