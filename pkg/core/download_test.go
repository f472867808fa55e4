package core

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/treestash/treestash/pkg/errors"
	"github.com/treestash/treestash/pkg/model"
	"github.com/treestash/treestash/pkg/status"
)

func TestDownloadTreeRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, _ := testStorage("default")
	srcFs := afero.NewMemMapFs()

	files := map[string][]byte{
		"root/app/main.py":   []byte("print('hello')"),
		"root/app/util.py":   []byte("def f(): pass"),
		"root/cfg/a.ini":     []byte("a=1"),
		"root/cfg/b.ini":     []byte("b=2"),
		"root/cfg/c.ini":     []byte("c=3"),
		"root/data/blob.bin": []byte("not so small content that stays alone"),
	}
	writeTree(t, srcFs, files)

	res, err := ArchiveFilesToStorage(context.Background(), s, srcFs, []string{"root"},
		Command("python", "app/main.py"), RelativeCwd("app"), Bundling(3, 16))
	require.NoError(t, err)

	outFs := afero.NewMemMapFs()
	out, err := DownloadTree(context.Background(), s, testCache(), outFs, res.Digests["root"], "out")
	require.NoError(t, err)
	assert.Equal(t, []string{"python", "app/main.py"}, out.Command)
	assert.Equal(t, "app", out.RelativeCwd)

	for path, want := range files {
		rel, rerr := filepath.Rel("root", path)
		require.NoError(t, rerr)
		got, gerr := afero.ReadFile(outFs, filepath.Join("out", rel))
		require.NoError(t, gerr, "missing %s", rel)
		assert.Equal(t, string(want), string(got), "content of %s", rel)
	}
}

func TestDownloadTreeCompressedNamespace(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, _ := testStorage("default-gzip")
	srcFs := afero.NewMemMapFs()
	writeTree(t, srcFs, map[string][]byte{
		"root/one.txt": []byte("first file"),
		"root/two.txt": []byte("second file"),
	})

	res, err := ArchiveFilesToStorage(context.Background(), s, srcFs, []string{"root"})
	require.NoError(t, err)

	outFs := afero.NewMemMapFs()
	_, err = DownloadTree(context.Background(), s, testCache(), outFs, res.Digests["root"], "out")
	require.NoError(t, err)

	got, err := afero.ReadFile(outFs, filepath.Join("out", "one.txt"))
	require.NoError(t, err)
	assert.Equal(t, "first file", string(got))
}

func TestDownloadTreeSymlinks(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	fs := afero.NewOsFs()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0755))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "src", "real.txt"), []byte("content"), 0644))
	require.NoError(t, os.Symlink("real.txt", filepath.Join(dir, "src", "link.txt")))

	s, _ := testStorage("default")
	res, err := ArchiveFilesToStorage(context.Background(), s, fs, []string{filepath.Join(dir, "src")})
	require.NoError(t, err)

	target := filepath.Join(dir, "out")
	_, err = DownloadTree(context.Background(), s, testCache(), fs, res.Digests[filepath.Join(dir, "src")], target)
	require.NoError(t, err)

	linkTarget, err := os.Readlink(filepath.Join(target, "link.txt"))
	require.NoError(t, err)
	assert.Equal(t, "real.txt", linkTarget)

	got, err := ioutil.ReadFile(filepath.Join(target, "link.txt"))
	require.NoError(t, err)
	assert.Equal(t, "content", string(got))
}

func TestDownloadTreeMissingContent(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, backend := testStorage("default")
	algo := s.ServerRef().HashAlgo()

	m := model.NewManifest(algo)
	m.Files["gone.txt"] = model.FileEntry{
		Hash: algo.HashBytes([]byte("never uploaded")),
		Size: 14,
		Mode: 0644,
	}
	data, err := m.MarshalBinary()
	require.NoError(t, err)
	manifestDigest := algo.HashBytes(data)
	backend.Seed(manifestDigest, data)

	_, err = DownloadTree(context.Background(), s, testCache(), afero.NewMemMapFs(), manifestDigest, "out")
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrNotFound))
}

func TestFetchFile(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, backend := testStorage("default")
	algo := s.ServerRef().HashAlgo()

	payload := []byte("a single object")
	digest := algo.HashBytes(payload)
	backend.Seed(digest, payload)

	fs := afero.NewMemMapFs()
	err := FetchFile(context.Background(), s, testCache(), fs, digest, "out/solo.bin")
	require.NoError(t, err)

	got, err := afero.ReadFile(fs, "out/solo.bin")
	require.NoError(t, err)
	assert.Equal(t, string(payload), string(got))
}

func TestDownloadTreeMissingManifest(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, _ := testStorage("default")
	_, err := DownloadTree(context.Background(), s, testCache(), afero.NewMemMapFs(),
		"1111111111111111111111111111111111111111", "out")
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrNotFound))
}
