// Package rand generates pseudo-random test data from an explicit seed,
// so fixtures are reproducible across runs.
package rand

import (
	"bytes"
	"math/rand"
	"sync"
)

// Source produces deterministic random data for a given seed.
type Source struct {
	mx   sync.Mutex
	rgen *rand.Rand
}

// New returns a data source seeded with the given value
func New(seed int64) *Source {
	return &Source{
		rgen: rand.New(rand.NewSource(seed)), // #nosec
	}
}

// Bytes returns a random slice of bytes
func (s *Source) Bytes(n int) []byte {
	buf := make([]byte, n)
	s.mx.Lock()
	_, _ = s.rgen.Read(buf)
	s.mx.Unlock()
	return buf
}

// String returns a random string
func (s *Source) String(n int) string {
	return string(s.Bytes(n))
}

// LetterBytes returns a random slice of bytes picked in the [0-9]|[a-z] range
func (s *Source) LetterBytes(n int) []byte {
	onceLetters.Do(makeLetters)
	buf := s.Bytes(n)
	for i, b := range buf {
		buf[i] = letters[b]
	}
	return buf
}

// LetterString returns a random string picked in the [0-9]|[a-z] range
func (s *Source) LetterString(n int) string {
	return string(s.LetterBytes(n))
}

var (
	onceLetters sync.Once
	letters     []byte
)

func makeLetters() {
	// adds "a" to pad over 256 locations (0-9 U a-z makes up to 252 only and we want to cover the range of uint8)
	// so the "a" is slightly more frequent than other signs. The trade-off here is speed over exact randomness
	letters = bytes.Repeat([]byte("abcdefghijklmnopqrstuvwxyz0123456789a"), 7)
}
