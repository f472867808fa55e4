package model

import (
	"crypto/sha1" // #nosec
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"strings"

	blake2b "github.com/minio/blake2b-simd"
)

// Digest is the hex encoded cryptographic hash of an object's
// uncompressed bytes. It uniquely identifies content within a namespace.
type Digest string

func (d Digest) String() string {
	return string(d)
}

// HashAlgo describes one of the digest algorithms a namespace may select.
type HashAlgo struct {
	// Name is the wire identifier of the algorithm ("sha-1", ...)
	Name string

	factory func() hash.Hash
}

// New returns a fresh hasher
func (a HashAlgo) New() hash.Hash {
	return a.factory()
}

// HashBytes computes the digest of a byte slice
func (a HashAlgo) HashBytes(data []byte) Digest {
	h := a.New()
	_, _ = h.Write(data)
	return Digest(hex.EncodeToString(h.Sum(nil)))
}

// HashReader computes the digest and size of everything readable from r
func (a HashAlgo) HashReader(r io.Reader) (Digest, int64, error) {
	h := a.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, err
	}
	return Digest(hex.EncodeToString(h.Sum(nil))), n, nil
}

// ValidDigest checks that a digest is a well formed value for this algorithm
func (a HashAlgo) ValidDigest(d Digest) bool {
	raw, err := hex.DecodeString(string(d))
	return err == nil && len(raw) == a.New().Size()
}

// Supported digest algorithms. SHA1 is the historical default; other
// algorithms are selected through a namespace prefix.
var (
	SHA1    = HashAlgo{Name: "sha-1", factory: sha1.New}
	SHA256  = HashAlgo{Name: "sha-256", factory: sha256.New}
	Blake2b = HashAlgo{Name: "blake2b", factory: blake2b.New256}
)

var algos = map[string]HashAlgo{
	SHA1.Name:    SHA1,
	SHA256.Name:  SHA256,
	Blake2b.Name: Blake2b,
}

// AlgoByName resolves a wire algorithm identifier
func AlgoByName(name string) (HashAlgo, error) {
	a, ok := algos[name]
	if !ok {
		return HashAlgo{}, ErrUnknownAlgo.WrapMessage("%q", name)
	}
	return a, nil
}

// AlgoForNamespace derives the digest algorithm from a namespace name:
// "sha256-*" and "blake2b-*" namespaces override the sha-1 default.
func AlgoForNamespace(namespace string) HashAlgo {
	switch {
	case strings.HasPrefix(namespace, "sha256-"):
		return SHA256
	case strings.HasPrefix(namespace, "blake2b-"):
		return Blake2b
	default:
		return SHA1
	}
}
