package model

import (
	"github.com/treestash/treestash/pkg/errors"
)

var (
	// ErrUnknownAlgo indicates a digest algorithm name this client does not support
	ErrUnknownAlgo = errors.New("unknown digest algorithm")

	// ErrInvalidManifest indicates a manifest that does not describe a usable file tree
	ErrInvalidManifest = errors.New("invalid manifest")

	// ErrUnsupportedVersion indicates a manifest produced by an incompatible client
	ErrUnsupportedVersion = errors.New("unsupported manifest version")
)
