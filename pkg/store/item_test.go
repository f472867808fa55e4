package store

import (
	"io/ioutil"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treestash/treestash/pkg/model"
	"github.com/treestash/treestash/pkg/status"
)

func TestBufferItem(t *testing.T) {
	item := NewBufferItem([]byte("hello"), model.SHA1, true)
	assert.Equal(t, model.SHA1.HashBytes([]byte("hello")), item.Digest())
	assert.Equal(t, int64(5), item.Size())
	assert.True(t, item.HighPriority())

	// content is re-creatable
	for i := 0; i < 2; i++ {
		rdr, err := item.Content()
		require.NoError(t, err)
		data, err := ioutil.ReadAll(rdr)
		require.NoError(t, err)
		require.NoError(t, rdr.Close())
		assert.Equal(t, "hello", string(data))
	}
}

func TestFileItem(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "dir/file.bin", []byte("content"), 0600))

	mtime := time.Now()
	item := NewFileItem(fs, "dir/file.bin", model.SHA1.HashBytes([]byte("content")), 7, mtime)
	assert.Equal(t, "dir/file.bin", item.Path())
	assert.Equal(t, int64(7), item.Size())
	assert.False(t, item.HighPriority())
	assert.Equal(t, mtime, item.ModTime())

	rdr, err := item.Content()
	require.NoError(t, err)
	data, err := ioutil.ReadAll(rdr)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	missing := NewFileItem(fs, "gone", "", 0, mtime)
	_, err = missing.Content()
	require.ErrorIs(t, err, status.ErrNotFound)
}

func TestRefItem(t *testing.T) {
	item := NewRefItem("cafebabe", 42)
	assert.EqualValues(t, "cafebabe", item.Digest())
	assert.Equal(t, int64(42), item.Size())
	assert.False(t, item.HighPriority())

	_, err := item.Content()
	require.ErrorIs(t, err, status.ErrNotFound)
}
