package store

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"github.com/treestash/treestash/pkg/model"
	"github.com/treestash/treestash/pkg/status"
)

// StreamVerifier forwards a byte stream unchanged while hashing and
// counting it. Once the source is exhausted it checks the running count
// and digest against the expected values and fails the final read with a
// status.IntegrityError naming the check that diverged.
//
// Verification necessarily completes only at EOF: partial reads cannot be
// verified early.
type StreamVerifier struct {
	src      io.Reader
	hasher   hash.Hash
	expected model.Digest
	size     int64
	consumed int64
	checked  bool
	failure  error
}

// NewStreamVerifier wraps src with size and digest enforcement. A
// negative size skips the size check, for objects whose length is not
// known up front.
func NewStreamVerifier(src io.Reader, algo model.HashAlgo, expected model.Digest, size int64) *StreamVerifier {
	return &StreamVerifier{
		src:      src,
		hasher:   algo.New(),
		expected: expected,
		size:     size,
	}
}

func (v *StreamVerifier) Read(p []byte) (int, error) {
	n, err := v.src.Read(p)
	if n > 0 {
		v.consumed += int64(n)
		_, _ = v.hasher.Write(p[:n])
	}
	if err == io.EOF {
		if !v.checked {
			v.checked = true
			v.failure = v.verify()
		}
		if v.failure != nil {
			return n, v.failure
		}
	}
	return n, err
}

func (v *StreamVerifier) verify() error {
	if v.size >= 0 && v.consumed != v.size {
		return &status.IntegrityError{
			Digest: v.expected.String(),
			Check:  status.CheckSize,
			Want:   fmt.Sprintf("%d", v.size),
			Got:    fmt.Sprintf("%d", v.consumed),
		}
	}
	actual := hex.EncodeToString(v.hasher.Sum(nil))
	if actual != v.expected.String() {
		return &status.IntegrityError{
			Digest: v.expected.String(),
			Check:  status.CheckDigest,
			Want:   v.expected.String(),
			Got:    actual,
		}
	}
	return nil
}
