// Package status exports the error taxonomy shared by the store client.
//
// Callers discriminate failure classes with errors.Is against the
// sentinels below; the typed errors carry the details (which integrity
// axis failed, which range header was rejected).
package status

import (
	"fmt"

	"github.com/treestash/treestash/pkg/errors"
)

var (
	// ErrMapping indicates the batch existence check failed outright: no
	// partial results are available.
	ErrMapping = errors.New("existence check failed")

	// ErrTransfer indicates a push phase failed. Inspect the PushState
	// flags to know which phase completed.
	ErrTransfer = errors.New("content transfer failed")

	// ErrRange indicates a resumable fetch got an unusable range
	// confirmation. It is never retried at the fetch layer.
	ErrRange = errors.New("invalid range response")

	// ErrIntegrity indicates fetched content does not match its expected
	// size or digest.
	ErrIntegrity = errors.New("content integrity mismatch")

	// ErrCorruptData indicates a compressed stream could not be decoded.
	ErrCorruptData = errors.New("corrupt compressed data")

	// ErrNotFound indicates an object is absent from a store
	ErrNotFound = errors.New("not found")

	// ErrInterrupted signals that background processing has been interrupted
	ErrInterrupted = errors.New("background processing interrupted")
)

// Integrity check axes
const (
	CheckSize   = "size"
	CheckDigest = "digest"
)

// IntegrityError reports a verified stream whose consumed bytes disagree
// with the expected size or digest.
type IntegrityError struct {
	Digest string // expected digest
	Check  string // CheckSize or CheckDigest
	Want   string
	Got    string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%v: %s check failed for %s: want %s, got %s",
		ErrIntegrity, e.Check, e.Digest, e.Want, e.Got)
}

// Unwrap to the taxonomy sentinel
func (e *IntegrityError) Unwrap() error {
	return ErrIntegrity
}

// RangeError reports a staged-blob response whose Content-Range
// confirmation is missing or inconsistent with the request.
type RangeError struct {
	Offset int64
	Size   int64 // expected total size, 0 when unknown
	Header string
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%v: %s (offset %d, size %d, header %q)",
		ErrRange, e.Reason, e.Offset, e.Size, e.Header)
}

// Unwrap to the taxonomy sentinel
func (e *RangeError) Unwrap() error {
	return ErrRange
}
