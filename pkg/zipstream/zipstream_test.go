package zipstream

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treestash/treestash/pkg/status"
)

func TestRoundTrip(t *testing.T) {
	var original bytes.Buffer
	for i := 0; i < 1000; i++ {
		fmt.Fprintf(&original, "%d", i)
	}
	for _, payload := range [][]byte{nil, original.Bytes()} {
		zipped := Compress(bytes.NewReader(payload))
		back, err := ioutil.ReadAll(Decompress(zipped, 0))
		require.NoError(t, err)
		require.NoError(t, zipped.Close())
		assert.Equal(t, string(payload), string(back), "payload of %d bytes", len(payload))
	}
}

func TestZipBomb(t *testing.T) {
	// a highly compressible payload must still come out in bounded chunks
	original := make([]byte, 100000)
	bomb, err := ioutil.ReadAll(Compress(bytes.NewReader(original)))
	require.NoError(t, err)
	require.Less(t, len(bomb), 1000)

	const chunkSize = 1000
	dec := Decompress(bytes.NewReader(bomb), chunkSize)
	var total int
	buf := make([]byte, 64*1024) // offer much more room than the cap
	for {
		n, err := dec.Read(buf)
		require.LessOrEqual(t, n, chunkSize)
		total += n
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, len(original), total)
}

func TestCorruptInput(t *testing.T) {
	_, err := ioutil.ReadAll(Decompress(bytes.NewReader([]byte("Im not a zip file")), 0))
	require.ErrorIs(t, err, status.ErrCorruptData)

	// truncated but well formed prefix fails lazily, at the point decoding fails
	valid, err := ioutil.ReadAll(Compress(bytes.NewReader(make([]byte, 100000))))
	require.NoError(t, err)
	dec := Decompress(bytes.NewReader(valid[:len(valid)/2]), 0)
	_, err = ioutil.ReadAll(dec)
	require.ErrorIs(t, err, status.ErrCorruptData)
}

func TestLevelForFile(t *testing.T) {
	assert.Equal(t, 0, LevelForFile("archive.7z"))
	assert.Equal(t, 0, LevelForFile("IMG.PNG"))
	assert.Equal(t, DefaultLevel, LevelForFile("main.cc"))
}
