package core

import (
	"archive/tar"
	"context"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/treestash/treestash/pkg/cache"
	"github.com/treestash/treestash/pkg/model"
)

// TreeOutput carries what a downloaded manifest says about running the
// tree: the recorded command line and its working directory relative to
// the target root. Both may be empty.
type TreeOutput struct {
	Command     []string
	RelativeCwd string
}

// DownloadTree materializes an archived tree under target: it fetches the
// manifest first, then all content it references with bounded concurrency,
// writing files and symlinks as their bytes land in the cache. Bundled
// members are extracted from their tar item in one pass.
func DownloadTree(ctx context.Context, s *Storage, cch cache.ContentCache, fs afero.Fs, manifestDigest model.Digest, target string) (*TreeOutput, error) {
	q := NewFetchQueue(s, cch)
	q.Add(ctx, manifestDigest, -1, true)
	if err := q.WaitOn(manifestDigest); err != nil {
		return nil, err
	}
	m, err := readManifest(ctx, cch, manifestDigest)
	if err != nil {
		return nil, err
	}

	plain := make(map[model.Digest][]string)
	bundled := make(map[model.Digest][]string)
	sizes := make(map[model.Digest]int64)
	var symlinks []string
	for path, entry := range m.Files {
		switch {
		case entry.IsSymlink():
			symlinks = append(symlinks, path)
		case entry.IsBundled():
			bundled[entry.Hash] = append(bundled[entry.Hash], path)
			sizes[entry.Hash] = entry.Size
		default:
			plain[entry.Hash] = append(plain[entry.Hash], path)
			sizes[entry.Hash] = entry.Size
		}
	}
	s.l.Info("downloading tree",
		zap.String("manifest", manifestDigest.String()),
		zap.Int("files", len(m.Files)),
		zap.Int("objects", len(plain)+len(bundled)))

	for d := range plain {
		q.Add(ctx, d, sizes[d], false)
	}
	for d := range bundled {
		q.Add(ctx, d, sizes[d], false)
	}

	g, gctx := errgroup.WithContext(ctx)
	remaining := len(plain) + len(bundled)
	for remaining > 0 {
		d, werr := q.Wait()
		if werr != nil {
			_ = g.Wait()
			return nil, werr
		}
		remaining--
		if paths, ok := plain[d]; ok {
			paths := paths
			g.Go(func() error {
				return materializeFiles(gctx, cch, fs, m, target, d, paths)
			})
			continue
		}
		paths := bundled[d]
		g.Go(func() error {
			return extractBundle(gctx, cch, fs, target, d, paths)
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}

	for _, path := range symlinks {
		if err = writeSymlink(fs, target, path, m.Files[path].SymlinkTarget); err != nil {
			return nil, err
		}
	}
	return &TreeOutput{Command: m.Command, RelativeCwd: m.RelativeCwd}, nil
}

// FetchFile downloads a single object into a local file through the
// cache, without interpreting it as a manifest
func FetchFile(ctx context.Context, s *Storage, cch cache.ContentCache, fs afero.Fs, digest model.Digest, target string) error {
	q := NewFetchQueue(s, cch)
	q.Add(ctx, digest, -1, false)
	if err := q.WaitOn(digest); err != nil {
		return err
	}
	rdr, err := cch.Get(ctx, digest)
	if err != nil {
		return err
	}
	err = writeFile(fs, target, 0644, rdr)
	if cerr := rdr.Close(); err == nil {
		err = cerr
	}
	return err
}

func readManifest(ctx context.Context, cch cache.ContentCache, digest model.Digest) (*model.Manifest, error) {
	rdr, err := cch.Get(ctx, digest)
	if err != nil {
		return nil, err
	}
	defer rdr.Close()
	data, err := ioutil.ReadAll(rdr)
	if err != nil {
		return nil, err
	}
	return model.UnmarshalManifest(data)
}

// materializeFiles writes every path backed by one content digest,
// re-reading the cache once per path
func materializeFiles(ctx context.Context, cch cache.ContentCache, fs afero.Fs, m *model.Manifest, target string, digest model.Digest, paths []string) error {
	for _, path := range paths {
		entry := m.Files[path]
		mode := os.FileMode(entry.Mode)
		if mode == 0 {
			mode = 0644
		}
		rdr, err := cch.Get(ctx, digest)
		if err != nil {
			return err
		}
		err = writeFile(fs, filepath.Join(target, filepath.FromSlash(path)), mode, rdr)
		if cerr := rdr.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// extractBundle walks one tar item and writes the members the manifest
// claims from it, skipping anything else the archive may hold
func extractBundle(ctx context.Context, cch cache.ContentCache, fs afero.Fs, target string, digest model.Digest, paths []string) error {
	wanted := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		wanted[p] = struct{}{}
	}
	rdr, err := cch.Get(ctx, digest)
	if err != nil {
		return err
	}
	defer rdr.Close()
	tr := tar.NewReader(rdr)
	for len(wanted) > 0 {
		hdr, terr := tr.Next()
		if terr == io.EOF {
			break
		}
		if terr != nil {
			return terr
		}
		if _, ok := wanted[hdr.Name]; !ok {
			continue
		}
		delete(wanted, hdr.Name)
		mode := os.FileMode(hdr.Mode).Perm()
		if mode == 0 {
			mode = 0644
		}
		if err = writeFile(fs, filepath.Join(target, filepath.FromSlash(hdr.Name)), mode, tr); err != nil {
			return err
		}
	}
	if len(wanted) > 0 {
		return model.ErrInvalidManifest.WrapMessage("bundle %s misses %d claimed members", digest, len(wanted))
	}
	return nil
}

func writeFile(fs afero.Fs, path string, mode os.FileMode, src io.Reader) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	out, err := fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}

func writeSymlink(fs afero.Fs, target, path, linkTarget string) error {
	linker, ok := fs.(afero.Linker)
	if !ok {
		return ErrNoSymlinkSupport.WrapMessage("at %s", path)
	}
	full := filepath.Join(target, filepath.FromSlash(path))
	if err := fs.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return err
	}
	return linker.SymlinkIfPossible(linkTarget, full)
}
