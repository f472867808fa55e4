package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManifest(t *testing.T) *Manifest {
	t.Helper()
	m := NewManifest(SHA1)
	m.Command = []string{"run_tests", "--shard", "0"}
	m.RelativeCwd = "src"
	m.Files["empty.txt"] = FileEntry{
		Hash: SHA1.HashBytes(nil),
		Size: 0,
		Mode: 0600,
	}
	m.Files["src/main.cc"] = FileEntry{
		Hash: SHA1.HashBytes([]byte("int main() {}\n")),
		Size: 14,
		Mode: 0644,
	}
	m.Files["src/link"] = FileEntry{SymlinkTarget: "main.cc"}
	return m
}

func TestManifestRoundTrip(t *testing.T) {
	m := testManifest(t)
	data, err := m.MarshalBinary()
	require.NoError(t, err)

	back, err := UnmarshalManifest(data)
	require.NoError(t, err)
	assert.Equal(t, m.Command, back.Command)
	assert.Equal(t, m.RelativeCwd, back.RelativeCwd)
	assert.Equal(t, m.Files, back.Files)
}

func TestManifestDeterministic(t *testing.T) {
	// the digest of a manifest must be a pure function of its contents
	first, err := testManifest(t).MarshalBinary()
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := testManifest(t).MarshalBinary()
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
	assert.Equal(t, SHA1.HashBytes(first), SHA1.HashBytes(first))
}

func TestManifestEntryVariants(t *testing.T) {
	m := NewManifest(SHA1)
	m.Files["empty"] = FileEntry{Hash: SHA1.HashBytes(nil), Mode: 0600}
	data, err := m.MarshalBinary()
	require.NoError(t, err)
	// a zero size must still serialize for regular files
	assert.Contains(t, string(data), `"size":0`)

	m = NewManifest(SHA1)
	m.Files["lnk"] = FileEntry{SymlinkTarget: "target"}
	data, err = m.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t,
		`{"algo":"sha-1","files":{"lnk":{"symlink_target":"target"}},"version":"1.0"}`,
		string(data))
}

func TestManifestValidate(t *testing.T) {
	m := NewManifest(SHA1)
	m.Files["../escape"] = FileEntry{Hash: SHA1.HashBytes(nil), Mode: 0600}
	_, err := m.MarshalBinary()
	require.ErrorIs(t, err, ErrInvalidManifest)

	m = NewManifest(SHA1)
	m.Files["bad"] = FileEntry{Hash: "not-a-digest"}
	_, err = m.MarshalBinary()
	require.ErrorIs(t, err, ErrInvalidManifest)

	m = NewManifest(SHA1)
	m.Files["mixed"] = FileEntry{Hash: SHA1.HashBytes(nil), SymlinkTarget: "x"}
	_, err = m.MarshalBinary()
	require.ErrorIs(t, err, ErrInvalidManifest)

	_, err = UnmarshalManifest([]byte(`{"algo":"sha-1","files":{},"version":"0.9"}`))
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestManifestDigests(t *testing.T) {
	shared := SHA1.HashBytes([]byte("shared"))
	m := NewManifest(SHA1)
	m.Files["a"] = FileEntry{Hash: shared, Size: 6, Mode: 0600}
	m.Files["b"] = FileEntry{Hash: shared, Size: 6, Mode: 0600}
	m.Files["c"] = FileEntry{Hash: SHA1.HashBytes([]byte("c")), Size: 1, Mode: 0600}
	m.Files["lnk"] = FileEntry{SymlinkTarget: "a"}
	assert.Len(t, m.Digests(), 2)
}
