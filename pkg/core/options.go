package core

import (
	"go.uber.org/zap"
)

const (
	defaultConcurrentPushes  = 16
	defaultConcurrentFetches = 16
	defaultPushRetries       = 4
)

// Option modifies a Storage at construction time
type Option func(*Storage)

// Logger sets the zap logger used by transfer operations
func Logger(l *zap.Logger) Option {
	return func(s *Storage) {
		if l != nil {
			s.l = l
		}
	}
}

// ConcurrentPushes caps the number of simultaneous item uploads
func ConcurrentPushes(n int) Option {
	return func(s *Storage) {
		if n > 0 {
			s.concurrentPushes = n
		}
	}
}

// ConcurrentFetches caps the number of simultaneous item downloads
func ConcurrentFetches(n int) Option {
	return func(s *Storage) {
		if n > 0 {
			s.concurrentFetches = n
		}
	}
}

// PushRetries sets how many times a failed transfer is retried after the
// first attempt. Content source failures are never retried, whatever the
// setting.
func PushRetries(n int) Option {
	return func(s *Storage) {
		if n >= 0 {
			s.pushRetries = n
		}
	}
}

// MaxDecompressChunk bounds the bytes a single read may inflate to when
// decoding compressed namespaces
func MaxDecompressChunk(n int) Option {
	return func(s *Storage) {
		if n > 0 {
			s.maxChunk = n
		}
	}
}
