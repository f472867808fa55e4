package localfs

import (
	"bytes"
	"context"
	"io/ioutil"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treestash/treestash/internal/rand"
	"github.com/treestash/treestash/pkg/model"
	"github.com/treestash/treestash/pkg/status"
)

func TestLocalFSCache(t *testing.T) {
	ctx := context.Background()
	c := New(afero.NewMemMapFs())

	data := rand.New(3).Bytes(10000)
	digest := model.SHA1.HashBytes(data)

	has, err := c.Has(ctx, digest)
	require.NoError(t, err)
	assert.False(t, has)

	_, err = c.Get(ctx, digest)
	require.ErrorIs(t, err, status.ErrNotFound)

	require.NoError(t, c.Put(ctx, digest, bytes.NewReader(data)))

	has, err = c.Has(ctx, digest)
	require.NoError(t, err)
	assert.True(t, has)

	rdr, err := c.Get(ctx, digest)
	require.NoError(t, err)
	back, err := ioutil.ReadAll(rdr)
	require.NoError(t, err)
	require.NoError(t, rdr.Close())
	assert.Equal(t, data, back)

	// overwriting with identical content is fine
	require.NoError(t, c.Put(ctx, digest, bytes.NewReader(data)))
}
