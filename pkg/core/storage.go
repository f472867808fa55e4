package core

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/treestash/treestash/pkg/errors"
	"github.com/treestash/treestash/pkg/model"
	"github.com/treestash/treestash/pkg/status"
	"github.com/treestash/treestash/pkg/store"
	"github.com/treestash/treestash/pkg/zipstream"
)

// firstChunkSize is read from the content source before any backend call,
// so a source failing on its first bytes costs zero remote traffic.
const firstChunkSize = 8 * 1024

// Storage drives deduplicated, concurrent transfers against one backend.
// It owns the codec: sources hand it canonical bytes and it compresses on
// the way out and decompresses plus verifies on the way in, according to
// the namespace.
type Storage struct {
	backend store.Backend
	session string
	l       *zap.Logger

	concurrentPushes  int
	concurrentFetches int
	pushRetries       int
	maxChunk          int
}

// New creates a Storage over a backend
func New(backend store.Backend, opts ...Option) *Storage {
	s := &Storage{
		backend:           backend,
		session:           ksuid.New().String(),
		l:                 zap.NewNop(),
		concurrentPushes:  defaultConcurrentPushes,
		concurrentFetches: defaultConcurrentFetches,
		pushRetries:       defaultPushRetries,
		maxChunk:          zipstream.DefaultMaxChunk,
	}
	for _, apply := range opts {
		apply(s)
	}
	return s
}

// Backend this storage transfers against
func (s *Storage) Backend() store.Backend { return s.backend }

// ServerRef of the underlying backend
func (s *Storage) ServerRef() model.ServerRef { return s.backend.ServerRef() }

func (s *Storage) compressed() bool { return s.backend.ServerRef().IsWithCompression() }

type itemPushed struct {
	item     store.Item
	attempts int
}

type errorHit struct {
	err    error
	digest model.Digest
}

type uploadChans struct {
	// recv results from push goroutines
	pushed chan<- itemPushed
	error  chan<- errorHit
	// broadcast to all goroutines not to block by closing this channel
	done <-chan struct{}
	// signal push goroutines done by writing to this channel
	doneOk             chan<- struct{}
	concurrencyControl <-chan struct{}
}

// UploadItems synchronizes items with the remote store. It runs exactly
// one existence check over the whole batch, then pushes the missing items
// with bounded concurrency, retrying failed transfers up to the configured
// count. Content source errors abort the item's push without retry and
// surface unmodified.
//
// It returns the items that were actually pushed; an empty result means
// everything was already present.
func (s *Storage) UploadItems(ctx context.Context, items []store.Item, verifyPush bool) ([]store.Item, error) {
	missing, err := s.backend.Contains(ctx, items)
	if err != nil {
		return nil, err
	}
	s.l.Info("existence check done",
		zap.Int("items", len(items)),
		zap.Int("missing", len(missing)),
		zap.String("session", s.session))
	if len(missing) == 0 {
		return nil, nil
	}

	pushedC := make(chan itemPushed)
	errorC := make(chan errorHit)
	doneC := make(chan struct{})
	doneOkC := make(chan struct{})
	defer close(doneC)

	go s.pushItems(ctx, missing, verifyPush, uploadChans{
		pushed: pushedC,
		error:  errorC,
		done:   doneC,
		doneOk: doneOkC,
	})

	pushed := make([]store.Item, 0, len(missing))
	for {
		var gotDoneSignal bool
		select {
		case p := <-pushedC:
			s.l.Debug("item pushed",
				zap.String("digest", p.item.Digest().String()),
				zap.Int("attempts", p.attempts))
			pushed = append(pushed, p.item)
		case e := <-errorC:
			s.l.Error("item push failed",
				zap.String("digest", e.digest.String()),
				zap.Error(e.err))
			return nil, e.err
		case <-doneOkC:
			gotDoneSignal = true
		}
		if gotDoneSignal {
			break
		}
	}
	return pushed, nil
}

func (s *Storage) pushItems(ctx context.Context, missing map[store.Item]*store.PushState, verifyPush bool, chans uploadChans) {
	concurrencyControl := make(chan struct{}, s.concurrentPushes)
	chans.concurrencyControl = concurrencyControl
	for item, state := range missing {
		concurrencyControl <- struct{}{}
		go s.pushItem(ctx, item, state, verifyPush, chans)
	}
	/* once the buffered channel semaphore is filled with sentinel entries,
	 * all `pushItem` goroutines have exited.
	 */
	for i := 0; i < cap(concurrencyControl); i++ {
		concurrencyControl <- struct{}{}
	}
	chans.doneOk <- struct{}{}
}

func (s *Storage) pushItem(ctx context.Context, item store.Item, state *store.PushState, verifyPush bool, chans uploadChans) {
	defer func() {
		<-chans.concurrencyControl
	}()
	attempts, err := s.pushWithRetry(ctx, item, state, verifyPush)
	if err != nil {
		select {
		case chans.error <- errorHit{err: err, digest: item.Digest()}:
		case <-chans.done:
		}
		return
	}
	select {
	case chans.pushed <- itemPushed{item: item, attempts: attempts}:
	case <-chans.done:
	}
}

func (s *Storage) pushWithRetry(ctx context.Context, item store.Item, state *store.PushState, verifyPush bool) (int, error) {
	var err error
	attempts := 0
	for attempts <= s.pushRetries {
		attempts++
		var retryable bool
		retryable, err = s.pushOnce(ctx, item, state, verifyPush)
		if err == nil {
			return attempts, nil
		}
		if !retryable {
			return attempts, err
		}
		s.l.Info("retrying push",
			zap.String("digest", item.Digest().String()),
			zap.Int("attempt", attempts),
			zap.Error(err))
	}
	return attempts, err
}

// pushOnce runs one push attempt. The returned flag tells whether the
// failure is worth another attempt: transfer and verification failures
// are, content source failures never are.
func (s *Storage) pushOnce(ctx context.Context, item store.Item, state *store.PushState, verifyPush bool) (bool, error) {
	src, err := item.Content()
	if err != nil {
		return false, err
	}
	defer src.Close()

	// prime the source so a broken first chunk never reaches the backend
	first := make([]byte, firstChunkSize)
	n, rerr := io.ReadFull(src, first)
	switch rerr {
	case nil, io.EOF, io.ErrUnexpectedEOF:
	default:
		return false, rerr
	}

	var body io.Reader = io.MultiReader(bytes.NewReader(first[:n]), src)
	if s.compressed() {
		level := zipstream.DefaultLevel
		if f, ok := item.(*store.FileItem); ok {
			level = zipstream.LevelForFile(f.Path())
		}
		zr := zipstream.CompressLevel(body, level)
		defer zr.Close()
		body = zr
	}

	if err = s.backend.Push(ctx, item, state, body); err != nil {
		return errors.Is(err, status.ErrTransfer), err
	}
	if verifyPush {
		if err = s.verifyPushed(ctx, item); err != nil {
			return true, err
		}
	}
	return false, nil
}

// verifyPushed re-reads the item from the store through the full decode
// and verification path, discarding the bytes.
func (s *Storage) verifyPushed(ctx context.Context, item store.Item) error {
	rdr, err := s.OpenVerified(ctx, item.Digest(), item.Size())
	if err != nil {
		return err
	}
	defer rdr.Close()
	_, err = io.Copy(ioutil.Discard, rdr)
	return err
}

// OpenVerified fetches a digest from the store and returns a stream of its
// canonical bytes: decompressed when the namespace compresses, with digest
// and size enforcement applied as the stream drains. A negative size skips
// the size check.
func (s *Storage) OpenVerified(ctx context.Context, digest model.Digest, size int64) (io.ReadCloser, error) {
	storedSize := size
	if s.compressed() || storedSize < 0 {
		// transport size unknown, disable range confirmation against it
		storedSize = 0
	}
	raw, err := s.backend.Fetch(ctx, digest, storedSize, 0)
	if err != nil {
		return nil, err
	}
	closers := []io.Closer{raw}
	var rdr io.Reader = raw
	if s.compressed() {
		dec := zipstream.Decompress(raw, s.maxChunk)
		closers = append(closers, dec)
		rdr = dec
	}
	algo := s.backend.ServerRef().HashAlgo()
	return &verifiedStream{
		Reader:  store.NewStreamVerifier(rdr, algo, digest, size),
		closers: closers,
	}, nil
}

type verifiedStream struct {
	io.Reader
	closers []io.Closer
}

func (v *verifiedStream) Close() error {
	var err error
	for i := len(v.closers) - 1; i >= 0; i-- {
		if e := v.closers[i].Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
