package model

import (
	"bytes"
	"path"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

const (
	// CurrentManifestVersion of the manifest wire format
	CurrentManifestVersion = "1.0"

	// BundleKindTar marks a manifest entry whose bytes live inside a tar
	// bundle item rather than in a content item of their own.
	BundleKindTar = "tar"
)

// manifestJSON produces deterministic output: struct fields serialize in
// declaration order (kept alphabetical here) and map keys are sorted, so a
// manifest's digest is a pure function of its contents.
var manifestJSON = jsoniter.Config{SortMapKeys: true}.Froze()

// FileEntry describes a single path of an archived tree. Exactly one of
// three variants applies: a regular file (hash, size, mode), a symbolic
// link (target string only, never dereferenced), or a member of a tar
// bundle (hash and size identify the containing bundle item).
type FileEntry struct {
	Hash          Digest `json:"hash,omitempty"`
	Size          int64  `json:"size,omitempty"`
	Mode          uint32 `json:"mode,omitempty"`
	SymlinkTarget string `json:"symlink_target,omitempty"`
	BundleKind    string `json:"bundle_kind,omitempty"`
	_             struct{}
}

// IsSymlink tells whether this entry records a symbolic link target
func (e FileEntry) IsSymlink() bool {
	return e.SymlinkTarget != ""
}

// IsBundled tells whether this entry's bytes are packed in a bundle item
func (e FileEntry) IsBundled() bool {
	return e.BundleKind != ""
}

// MarshalJSON emits only the fields of the entry's variant, in fixed key
// order, so that omitted zero values (e.g. the size of an empty file)
// never make two equivalent manifests serialize differently.
func (e FileEntry) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	switch {
	case e.IsSymlink():
		b.WriteString(`"symlink_target":`)
		raw, err := manifestJSON.Marshal(e.SymlinkTarget)
		if err != nil {
			return nil, err
		}
		b.Write(raw)
	case e.IsBundled():
		writeEntryField(&b, `"bundle_kind":`, e.BundleKind, false)
		writeEntryField(&b, `"hash":`, e.Hash, true)
		writeEntryField(&b, `"size":`, e.Size, true)
	default:
		writeEntryField(&b, `"hash":`, e.Hash, false)
		writeEntryField(&b, `"mode":`, e.Mode, true)
		writeEntryField(&b, `"size":`, e.Size, true)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

func writeEntryField(b *bytes.Buffer, key string, value interface{}, comma bool) {
	if comma {
		b.WriteByte(',')
	}
	b.WriteString(key)
	raw, _ := manifestJSON.Marshal(value)
	b.Write(raw)
}

// Manifest is the serialized description of an archived file tree. It is
// stored as an ordinary content item: its digest is the tree's identity.
//
// Fields are declared in alphabetical order on purpose: together with
// sorted map keys this keeps serialization deterministic.
type Manifest struct {
	Algo        string               `json:"algo"`
	Command     []string             `json:"command,omitempty"`
	Files       map[string]FileEntry `json:"files"`
	RelativeCwd string               `json:"relative_cwd,omitempty"`
	Version     string               `json:"version"`
	_           struct{}
}

// NewManifest creates an empty manifest for the given digest algorithm
func NewManifest(algo HashAlgo) *Manifest {
	return &Manifest{
		Algo:    algo.Name,
		Files:   make(map[string]FileEntry),
		Version: CurrentManifestVersion,
	}
}

// MarshalBinary serializes the manifest deterministically
func (m *Manifest) MarshalBinary() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return manifestJSON.Marshal(m)
}

// UnmarshalManifest parses and validates a serialized manifest
func UnmarshalManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := manifestJSON.Unmarshal(data, &m); err != nil {
		return nil, ErrInvalidManifest.Wrap(err)
	}
	if m.Version != CurrentManifestVersion {
		return nil, ErrUnsupportedVersion.WrapMessage("%q", m.Version)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks that every entry describes exactly one variant and that
// paths stay inside the tree.
func (m *Manifest) Validate() error {
	if _, err := AlgoByName(m.Algo); err != nil {
		return ErrInvalidManifest.Wrap(err)
	}
	algo, _ := AlgoByName(m.Algo)
	for name, entry := range m.Files {
		if !isRelativePath(name) {
			return ErrInvalidManifest.WrapMessage("path %q escapes the tree", name)
		}
		switch {
		case entry.IsSymlink():
			if entry.Hash != "" || entry.Size != 0 || entry.BundleKind != "" {
				return ErrInvalidManifest.WrapMessage("symlink entry %q carries content fields", name)
			}
		case entry.IsBundled():
			if entry.BundleKind != BundleKindTar {
				return ErrInvalidManifest.WrapMessage("unknown bundle kind %q for %q", entry.BundleKind, name)
			}
			if !algo.ValidDigest(entry.Hash) {
				return ErrInvalidManifest.WrapMessage("bad digest for bundled entry %q", name)
			}
		default:
			if !algo.ValidDigest(entry.Hash) {
				return ErrInvalidManifest.WrapMessage("bad digest for entry %q", name)
			}
		}
	}
	return nil
}

// Digests returns the distinct content digests the manifest references,
// bundled entries collapsing onto their bundle digest.
func (m *Manifest) Digests() []Digest {
	seen := make(map[Digest]struct{}, len(m.Files))
	out := make([]Digest, 0, len(m.Files))
	for _, entry := range m.Files {
		if entry.IsSymlink() {
			continue
		}
		if _, ok := seen[entry.Hash]; ok {
			continue
		}
		seen[entry.Hash] = struct{}{}
		out = append(out, entry.Hash)
	}
	return out
}

func isRelativePath(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") {
		return false
	}
	clean := path.Clean(name)
	return clean != ".." && !strings.HasPrefix(clean, "../") && clean == name
}
