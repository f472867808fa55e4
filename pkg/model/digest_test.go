package model

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treestash/treestash/internal/rand"
)

func TestHashAlgos(t *testing.T) {
	// well known sha1 of the empty input
	assert.Equal(t, Digest("da39a3ee5e6b4b0d3255bfef95601890afd80709"), SHA1.HashBytes(nil))

	data := rand.New(7).Bytes(100000)
	for _, algo := range []HashAlgo{SHA1, SHA256, Blake2b} {
		d := algo.HashBytes(data)
		require.True(t, algo.ValidDigest(d), "algo %s", algo.Name)

		fromReader, n, err := algo.HashReader(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, int64(len(data)), n)
		assert.Equal(t, d, fromReader)
	}
}

func TestAlgoByName(t *testing.T) {
	a, err := AlgoByName("sha-256")
	require.NoError(t, err)
	assert.Equal(t, SHA256.Name, a.Name)

	_, err = AlgoByName("md5")
	require.ErrorIs(t, err, ErrUnknownAlgo)
}

func TestServerRef(t *testing.T) {
	ref := NewServerRef("http://example.com/", "default-gzip")
	assert.Equal(t, "http://example.com", ref.URL())
	assert.Equal(t, "default-gzip", ref.Namespace())
	assert.True(t, ref.IsWithCompression())
	assert.Equal(t, CompressionFlate, ref.Compression())
	assert.Equal(t, SHA1.Name, ref.HashAlgo().Name)

	plain := NewServerRef("http://example.com", "default")
	assert.False(t, plain.IsWithCompression())
	assert.Equal(t, "", plain.Compression())

	assert.Equal(t, SHA256.Name, NewServerRef("", "sha256-flate").HashAlgo().Name)
	assert.Equal(t, Blake2b.Name, NewServerRef("", "blake2b-deflate").HashAlgo().Name)
}
