package badgercache

import (
	"bytes"
	"context"
	"io/ioutil"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treestash/treestash/internal/rand"
	"github.com/treestash/treestash/pkg/model"
	"github.com/treestash/treestash/pkg/status"
)

func TestBadgerCache(t *testing.T) {
	ctx := context.Background()
	c, err := New(t.TempDir())
	require.NoError(t, err)
	defer func() {
		require.NoError(t, c.Close())
	}()

	data := rand.New(5).Bytes(100000)
	digest := model.SHA256.HashBytes(data)

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
	assert.Equal(t, data, back)
}
