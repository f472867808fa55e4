// Package remote implements the store backend speaking the JSON-over-HTTP
// protocol of the artifact service, including the staged-blob upload and
// the resumable ranged download.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"regexp"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/treestash/treestash/pkg/errors"
	"github.com/treestash/treestash/pkg/model"
	"github.com/treestash/treestash/pkg/status"
	"github.com/treestash/treestash/pkg/store"
)

const (
	apiPrefix = "/_ah/api/isolateservice/v1/"

	endpointPreupload     = "preupload"
	endpointStoreInline   = "store_inline"
	endpointFinalize      = "finalize_gs_upload"
	endpointRetrieve      = "retrieve"
	endpointServerDetails = "server_details"

	// stagedCacheControl is sent with staged-blob uploads: content is
	// immutable once stored under its digest.
	stagedCacheControl = "public, max-age=31536000"
)

// ErrRetrieve indicates a fetch could not obtain the object at all
var ErrRetrieve = errors.New("retrieve failed")

var wireJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Store talks to one namespace of a remote artifact service.
// It is safe for concurrent use.
type Store struct {
	ref    model.ServerRef
	client *http.Client
	l      *zap.Logger
}

// New creates a backend bound to the given server reference
func New(ref model.ServerRef, opts ...Option) *Store {
	s := &Store{
		ref:    ref,
		client: http.DefaultClient,
		l:      zap.NewNop(),
	}
	for _, apply := range opts {
		apply(s)
	}
	return s
}

var _ store.Backend = &Store{}

// ServerRef identifies the namespace this backend talks to
func (s *Store) ServerRef() model.ServerRef {
	return s.ref
}

// ServerDetails probes the service and returns its version string
func (s *Store) ServerDetails(ctx context.Context) (string, error) {
	var details serverDetailsResponse
	if err := s.callJSON(ctx, endpointServerDetails, struct{}{}, &details); err != nil {
		return "", err
	}
	return details.ServerVersion, nil
}

// Contains batches one existence check and returns a fresh PushState per
// missing item. Any transport or decoding failure fails the whole batch
// with status.ErrMapping.
func (s *Store) Contains(ctx context.Context, items []store.Item) (map[store.Item]*store.PushState, error) {
	req := preuploadRequest{
		Items:     make([]digestItem, 0, len(items)),
		Namespace: specFor(s.ref),
	}
	for _, item := range items {
		req.Items = append(req.Items, digestItem{
			Digest:     item.Digest().String(),
			IsIsolated: item.HighPriority(),
			Size:       item.Size(),
		})
	}

	var res preuploadResponse
	if err := s.callJSON(ctx, endpointPreupload, req, &res); err != nil {
		return nil, status.ErrMapping.Wrap(err)
	}

	missing := make(map[store.Item]*store.PushState, len(res.Items))
	for _, entry := range res.Items {
		if entry.Index < 0 || entry.Index >= len(items) {
			return nil, status.ErrMapping.WrapMessage("preupload returned index %d for %d items", entry.Index, len(items))
		}
		state := &store.PushState{
			Ticket:    entry.UploadTicket,
			UploadURL: s.endpoint(endpointStoreInline),
		}
		if entry.GSUploadURL != "" {
			state.UploadURL = entry.GSUploadURL
			state.FinalizeURL = s.endpoint(endpointFinalize)
		}
		missing[items[entry.Index]] = state
	}
	s.l.Debug("existence check",
		zap.Int("items", len(items)),
		zap.Int("missing", len(missing)),
		zap.String("namespace", s.ref.Namespace()))
	return missing, nil
}

// Push uploads one item, either inline with its ticket or through the
// two-phase staged-blob protocol selected by the PushState.
func (s *Store) Push(ctx context.Context, item store.Item, state *store.PushState, src io.Reader) error {
	if state.Finalized {
		return nil
	}
	if state.FinalizeURL == "" {
		return s.pushInline(ctx, item, state, src)
	}
	return s.pushStaged(ctx, item, state, src)
}

func (s *Store) pushInline(ctx context.Context, item store.Item, state *store.PushState, src io.Reader) error {
	// the server selects the inline path for small content only, so
	// materializing the payload for base64 framing is fine here
	payload, err := ioutil.ReadAll(src)
	if err != nil {
		return err
	}
	req := storeInlineRequest{UploadTicket: state.Ticket, Content: payload}
	if err := s.callJSON(ctx, endpointStoreInline, req, &struct{}{}); err != nil {
		return status.ErrTransfer.Wrap(err)
	}
	// inline upload commits in one round trip
	state.Uploaded = true
	state.Finalized = true
	s.l.Debug("pushed inline", zap.String("digest", item.Digest().String()), zap.Int64("size", item.Size()))
	return nil
}

func (s *Store) pushStaged(ctx context.Context, item store.Item, state *store.PushState, src io.Reader) error {
	if !state.Uploaded {
		tracked := &sourceTracker{src: src}
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, state.UploadURL, tracked)
		if err != nil {
			return status.ErrTransfer.Wrap(err)
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		req.Header.Set("Cache-Control", stagedCacheControl)
		res, err := s.client.Do(req)
		if err != nil {
			if tracked.err != nil {
				// a content source failure is the caller's, not a transfer error
				return tracked.err
			}
			return status.ErrTransfer.Wrap(err)
		}
		defer res.Body.Close()
		_, _ = io.Copy(ioutil.Discard, res.Body)
		if res.StatusCode/100 != 2 {
			return status.ErrTransfer.WrapMessage("staged upload: http %d", res.StatusCode)
		}
		if confirm := res.Header.Get("x-goog-hash"); confirm != "" {
			s.l.Debug("staged upload hash confirmation",
				zap.String("digest", item.Digest().String()),
				zap.String("confirmation", confirm))
		}
		state.Uploaded = true
	}

	if err := s.callJSON(ctx, endpointFinalize, finalizeRequest{UploadTicket: state.Ticket}, &struct{}{}); err != nil {
		// bytes are stored but not committed: callers may retry finalize only
		return status.ErrTransfer.Wrap(err)
	}
	state.Finalized = true
	s.l.Debug("pushed staged", zap.String("digest", item.Digest().String()), zap.Int64("size", item.Size()))
	return nil
}

// Fetch streams the stored bytes of a digest from offset. Inline responses
// are decoded in place; staged responses are followed with a Range request
// whose confirmation header is strictly validated.
func (s *Store) Fetch(ctx context.Context, digest model.Digest, size, offset int64) (io.ReadCloser, error) {
	req := retrieveRequest{
		Digest:    digest.String(),
		Namespace: specFor(s.ref),
		Offset:    offset,
	}
	var res retrieveResponse
	if err := s.callJSON(ctx, endpointRetrieve, req, &res); err != nil {
		return nil, ErrRetrieve.Wrap(err)
	}
	if res.URL == "" {
		// inline content is already positioned at the requested offset
		return ioutil.NopCloser(bytes.NewReader(res.Content)), nil
	}
	return s.fetchStaged(ctx, res.URL, size, offset)
}

var contentRangeRe = regexp.MustCompile(`^bytes (\d+)-(\d+)/(\d+|\*)$`)

func (s *Store) fetchStaged(ctx context.Context, url string, size, offset int64) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, ErrRetrieve.Wrap(err)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	res, err := s.client.Do(req)
	if err != nil {
		return nil, ErrRetrieve.Wrap(err)
	}
	if res.StatusCode/100 != 2 {
		res.Body.Close()
		if res.StatusCode == http.StatusNotFound {
			return nil, status.ErrNotFound.WrapMessage("staged blob %s", url)
		}
		return nil, ErrRetrieve.WrapMessage("staged fetch: http %d", res.StatusCode)
	}
	if offset > 0 {
		if err := validateContentRange(res.Header.Get("Content-Range"), offset, size); err != nil {
			res.Body.Close()
			return nil, err
		}
	}
	return res.Body, nil
}

// validateContentRange enforces that a resumed download continues exactly
// where requested. Failures are status.RangeError and are not retried at
// this layer: a resilient caller redoes the whole fetch.
func validateContentRange(header string, offset, size int64) error {
	fail := func(reason string) error {
		return &status.RangeError{Offset: offset, Size: size, Header: header, Reason: reason}
	}
	if header == "" {
		return fail("missing Content-Range header")
	}
	groups := contentRangeRe.FindStringSubmatch(header)
	if groups == nil {
		return fail("malformed Content-Range header")
	}
	start, _ := strconv.ParseInt(groups[1], 10, 64)
	end, _ := strconv.ParseInt(groups[2], 10, 64)
	if start != offset {
		return fail("range starts at the wrong offset")
	}
	if groups[3] == "*" {
		if size > 0 && end != size-1 {
			return fail("incomplete range")
		}
		return nil
	}
	total, _ := strconv.ParseInt(groups[3], 10, 64)
	if size > 0 && total != size {
		return fail("total size mismatch")
	}
	if end != total-1 {
		return fail("incomplete range")
	}
	return nil
}

// callJSON posts a JSON request to a service endpoint and decodes the
// JSON response into out. A null or undecodable response is an error.
func (s *Store) callJSON(ctx context.Context, endpoint string, in, out interface{}) error {
	payload, err := wireJSON.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(endpoint), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return fmt.Errorf("%s: http %d", endpoint, res.StatusCode)
	}
	body, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 || bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
		return fmt.Errorf("%s: empty response", endpoint)
	}
	return wireJSON.Unmarshal(body, out)
}

func (s *Store) endpoint(name string) string {
	return s.ref.URL() + apiPrefix + name
}

// sourceTracker remembers the first error produced by a content source, so
// transport failures can be told apart from caller-supplied reader bugs.
type sourceTracker struct {
	src io.Reader
	err error
}

func (t *sourceTracker) Read(p []byte) (int, error) {
	n, err := t.src.Read(p)
	if err != nil && err != io.EOF && t.err == nil {
		t.err = err
	}
	return n, err
}
