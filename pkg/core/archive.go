package core

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/treestash/treestash/pkg/errors"
	"github.com/treestash/treestash/pkg/model"
	"github.com/treestash/treestash/pkg/store"
)

const (
	defaultBundleMinFiles    = 16
	defaultBundleMaxFileSize = 100 * 1024
)

// ErrNoSymlinkSupport is returned when a tree contains symbolic links but
// the filesystem abstraction cannot read their targets.
var ErrNoSymlinkSupport = errors.New("filesystem cannot read symlink targets")

type archiveSettings struct {
	command           []string
	relativeCwd       string
	filter            func(rel string) bool
	bundleMinFiles    int
	bundleMaxFileSize int64
	verifyPush        bool
}

// ArchiveOption modifies one archiving run
type ArchiveOption func(*archiveSettings)

// Command records the command line to replay the archived tree with
func Command(args ...string) ArchiveOption {
	return func(a *archiveSettings) {
		a.command = args
	}
}

// RelativeCwd records the working directory, relative to the tree root,
// the recorded command runs in
func RelativeCwd(cwd string) ArchiveOption {
	return func(a *archiveSettings) {
		a.relativeCwd = cwd
	}
}

// Filter excludes paths from directory archiving. It receives slash-form
// paths relative to the root; returning true skips the path, and skipping
// a directory skips its whole subtree.
func Filter(fn func(rel string) bool) ArchiveOption {
	return func(a *archiveSettings) {
		a.filter = fn
	}
}

// Bundling tunes when small files of a directory root are packed into a
// single tar item: at least minFiles files no larger than maxFileSize
// each. minFiles 0 disables bundling.
func Bundling(minFiles int, maxFileSize int64) ArchiveOption {
	return func(a *archiveSettings) {
		a.bundleMinFiles = minFiles
		if maxFileSize > 0 {
			a.bundleMaxFileSize = maxFileSize
		}
	}
}

// VerifyPush makes the upload re-fetch and verify every pushed item
func VerifyPush() ArchiveOption {
	return func(a *archiveSettings) {
		a.verifyPush = true
	}
}

// ArchiveResult reports one archiving run. Digests maps each root, as
// given, to its identity: the file's own digest for file roots, the
// manifest digest for directory roots. Cold holds the items this run
// uploaded, Hot the ones the store already had. Item order carries no
// meaning.
type ArchiveResult struct {
	Digests map[string]model.Digest
	Cold    []store.Item
	Hot     []store.Item
}

// archivePlan accumulates the items of a run, one per distinct digest no
// matter how many paths produced it.
type archivePlan struct {
	items []store.Item
	seen  map[model.Digest]struct{}
}

func newArchivePlan() *archivePlan {
	return &archivePlan{seen: make(map[model.Digest]struct{})}
}

func (p *archivePlan) add(item store.Item) {
	if _, ok := p.seen[item.Digest()]; ok {
		return
	}
	p.seen[item.Digest()] = struct{}{}
	p.items = append(p.items, item)
}

// ArchiveFilesToStorage hashes the given roots and synchronizes their
// content with the store in a single upload batch: file roots become one
// content item each, directory roots become content items plus a manifest.
// Identical content reachable from several paths is uploaded once.
func ArchiveFilesToStorage(ctx context.Context, s *Storage, fs afero.Fs, roots []string, opts ...ArchiveOption) (*ArchiveResult, error) {
	settings := archiveSettings{
		bundleMinFiles:    defaultBundleMinFiles,
		bundleMaxFileSize: defaultBundleMaxFileSize,
	}
	for _, apply := range opts {
		apply(&settings)
	}

	algo := s.ServerRef().HashAlgo()
	plan := newArchivePlan()
	digests := make(map[string]model.Digest, len(roots))

	for _, root := range roots {
		fi, err := fs.Stat(root)
		if err != nil {
			return nil, err
		}
		if !fi.IsDir() {
			item, _, err := planFile(fs, root, fi, algo)
			if err != nil {
				return nil, err
			}
			plan.add(item)
			digests[root] = item.Digest()
			continue
		}
		m, err := archiveDir(fs, root, algo, &settings, plan)
		if err != nil {
			return nil, err
		}
		data, err := m.MarshalBinary()
		if err != nil {
			return nil, err
		}
		manifestItem := store.NewBufferItem(data, algo, true)
		plan.add(manifestItem)
		digests[root] = manifestItem.Digest()
	}

	s.l.Info("tree hashed",
		zap.Int("roots", len(roots)),
		zap.Int("items", len(plan.items)))

	pushed, err := s.UploadItems(ctx, plan.items, settings.verifyPush)
	if err != nil {
		return nil, err
	}
	cold := make(map[model.Digest]struct{}, len(pushed))
	for _, item := range pushed {
		cold[item.Digest()] = struct{}{}
	}
	res := &ArchiveResult{Digests: digests}
	for _, item := range plan.items {
		if _, ok := cold[item.Digest()]; ok {
			res.Cold = append(res.Cold, item)
		} else {
			res.Hot = append(res.Hot, item)
		}
	}
	return res, nil
}

type smallFile struct {
	rel  string
	path string
	size int64
	mode uint32
}

func archiveDir(fs afero.Fs, root string, algo model.HashAlgo, settings *archiveSettings, plan *archivePlan) (*model.Manifest, error) {
	m := model.NewManifest(algo)
	m.Command = settings.command
	m.RelativeCwd = settings.relativeCwd

	var small []smallFile
	err := afero.Walk(fs, root, func(path string, info os.FileInfo, werr error) error {
		if werr != nil {
			return werr
		}
		rel, rerr := filepath.Rel(root, path)
		if rerr != nil {
			return rerr
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if settings.filter != nil && settings.filter(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if info.Mode()&os.ModeSymlink != 0 {
			lr, ok := fs.(afero.LinkReader)
			if !ok {
				return ErrNoSymlinkSupport.WrapMessage("at %s", path)
			}
			target, terr := lr.ReadlinkIfPossible(path)
			if terr != nil {
				return terr
			}
			m.Files[rel] = model.FileEntry{SymlinkTarget: target}
			return nil
		}
		if settings.bundleMinFiles > 0 && info.Size() <= settings.bundleMaxFileSize {
			small = append(small, smallFile{
				rel:  rel,
				path: path,
				size: info.Size(),
				mode: uint32(info.Mode().Perm()),
			})
			return nil
		}
		item, entry, ierr := planFile(fs, path, info, algo)
		if ierr != nil {
			return ierr
		}
		plan.add(item)
		m.Files[rel] = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(small) >= settings.bundleMinFiles {
		bundle, err := buildTarBundle(fs, small, algo)
		if err != nil {
			return nil, err
		}
		plan.add(bundle)
		for _, f := range small {
			m.Files[f.rel] = model.FileEntry{
				Hash:       bundle.Digest(),
				Size:       bundle.Size(),
				BundleKind: model.BundleKindTar,
			}
		}
		return m, nil
	}
	for _, f := range small {
		fi, serr := fs.Stat(f.path)
		if serr != nil {
			return nil, serr
		}
		item, entry, ierr := planFile(fs, f.path, fi, algo)
		if ierr != nil {
			return nil, ierr
		}
		plan.add(item)
		m.Files[f.rel] = entry
	}
	return m, nil
}

// planFile hashes one regular file and returns its transfer item together
// with its manifest entry
func planFile(fs afero.Fs, path string, info os.FileInfo, algo model.HashAlgo) (store.Item, model.FileEntry, error) {
	r, err := fs.Open(path)
	if err != nil {
		return nil, model.FileEntry{}, err
	}
	digest, size, err := algo.HashReader(r)
	cerr := r.Close()
	if err != nil {
		return nil, model.FileEntry{}, err
	}
	if cerr != nil {
		return nil, model.FileEntry{}, cerr
	}
	item := store.NewFileItem(fs, path, digest, size, info.ModTime())
	entry := model.FileEntry{
		Hash: digest,
		Size: size,
		Mode: uint32(info.Mode().Perm()),
	}
	return item, entry, nil
}

// buildTarBundle packs small files into one deterministic tar: members
// sorted by path, headers stripped of timestamps.
func buildTarBundle(fs afero.Fs, files []smallFile, algo model.HashAlgo) (*store.BufferItem, error) {
	sort.Slice(files, func(i, j int) bool { return files[i].rel < files[j].rel })
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, f := range files {
		hdr := &tar.Header{
			Name:   f.rel,
			Mode:   int64(f.mode),
			Size:   f.size,
			Format: tar.FormatUSTAR,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		r, err := fs.Open(f.path)
		if err != nil {
			return nil, err
		}
		_, err = io.Copy(tw, r)
		if cerr := r.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return store.NewBufferItem(buf.Bytes(), algo, false), nil
}
