package cmd

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/treestash/treestash/pkg/cache"
	"github.com/treestash/treestash/pkg/cache/badgercache"
	"github.com/treestash/treestash/pkg/cache/localfs"
	"github.com/treestash/treestash/pkg/core"
	"github.com/treestash/treestash/pkg/errors"
	"github.com/treestash/treestash/pkg/model"
	"github.com/treestash/treestash/pkg/store/remote"
	"github.com/treestash/treestash/pkg/tlogger"
)

type flagsT struct {
	root struct {
		server       string
		namespace    string
		logLevel     string
		cacheDir     string
		cacheBackend string
	}
	archive struct {
		command        []string
		relativeCwd    string
		verify         bool
		bundleMinFiles int
		bundleMaxSize  string
		excludes       []string
		concurrency    int
		retries        int
	}
	download struct {
		output      string
		files       []string
		concurrency int
	}
}

var params = flagsT{}

func addServerFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&params.root.server, "server", "",
		"URL of the content-addressed store, e.g. https://isolate.example.com")
}

func addNamespaceFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&params.root.namespace, "namespace", "",
		"Namespace to address content in. A -gzip or -flate suffix enables transport compression")
}

func addLogLevelFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&params.root.logLevel, "loglevel", "info",
		"The logging level: info, debug or none")
}

func addCacheFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&params.root.cacheDir, "cache-dir", "",
		"Directory holding the local content cache")
	cmd.PersistentFlags().StringVar(&params.root.cacheBackend, "cache-backend", "",
		"Cache backend: fs or badger")
}

func addConcurrencyFlag(cmd *cobra.Command, target *int) {
	cmd.Flags().IntVar(target, "concurrency", 16, "Maximum number of concurrent transfers")
}

// paramsToStorage builds the transfer engine from the persistent flags
func paramsToStorage(opts ...core.Option) (*core.Storage, error) {
	if params.root.server == "" {
		return nil, errors.New("a server URL is required, use --server or the config file")
	}
	logger, err := tlogger.GetLogger(params.root.logLevel)
	if err != nil {
		return nil, err
	}
	ref := model.NewServerRef(params.root.server, params.root.namespace)
	backend := remote.New(ref,
		remote.Logger(logger),
		remote.HTTPClient(&http.Client{Timeout: 15 * time.Minute}),
	)
	opts = append([]core.Option{core.Logger(logger)}, opts...)
	return core.New(backend, opts...), nil
}

// paramsToCache builds the local content cache from the persistent flags
func paramsToCache() (cache.ContentCache, func() error, error) {
	dir := params.root.cacheDir
	if dir == "" {
		dir = ".treestash"
	}
	switch params.root.cacheBackend {
	case "", "fs":
		fs := afero.NewBasePathFs(afero.NewOsFs(), filepath.Join(dir, "objects"))
		return localfs.New(fs), func() error { return nil }, nil
	case "badger":
		c, err := badgercache.New(dir)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	default:
		return nil, nil, errors.New("unknown cache backend").WrapMessage("%q", params.root.cacheBackend)
	}
}

func parseByteSize(in string, dflt int64) (int64, error) {
	if in == "" {
		return dflt, nil
	}
	return units.RAMInBytes(in)
}
