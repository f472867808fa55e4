package model

import (
	"strings"
)

// CompressionFlate is the wire name of the zlib/flate transport compression
const CompressionFlate = "flate"

// ServerRef identifies a remote namespace: an endpoint plus the namespace
// name the digest algorithm and transport compression derive from.
//
// It is immutable: compression and hashing never change within one store
// operation.
type ServerRef struct {
	url       string
	namespace string
	_         struct{}
}

// NewServerRef builds a reference to one namespace of a remote store
func NewServerRef(url, namespace string) ServerRef {
	return ServerRef{
		url:       strings.TrimSuffix(url, "/"),
		namespace: namespace,
	}
}

// URL of the remote endpoint, without a trailing slash
func (s ServerRef) URL() string {
	return s.url
}

// Namespace this reference addresses
func (s ServerRef) Namespace() string {
	return s.namespace
}

// HashAlgo is the digest algorithm mandated by the namespace
func (s ServerRef) HashAlgo() HashAlgo {
	return AlgoForNamespace(s.namespace)
}

// IsWithCompression tells whether content travels compressed in this
// namespace. Compression is a transport concern: digests are always
// computed over uncompressed bytes.
func (s ServerRef) IsWithCompression() bool {
	return strings.HasSuffix(s.namespace, "-gzip") || strings.HasSuffix(s.namespace, "-flate")
}

// Compression is the wire name of the namespace compression scheme,
// empty for uncompressed namespaces.
func (s ServerRef) Compression() string {
	if s.IsWithCompression() {
		return CompressionFlate
	}
	return ""
}

func (s ServerRef) String() string {
	return s.url + "/" + s.namespace
}
