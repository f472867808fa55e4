package cmd

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/treestash/treestash/pkg/core"
	"github.com/treestash/treestash/pkg/model"
)

// downloadCmd materializes an archived tree, or individual objects, locally
var downloadCmd = &cobra.Command{
	Use:   "download [<digest>]",
	Short: "Download an archived tree or individual objects",
	Long: `Download an archived tree into a local directory.

The digest identifies the tree's manifest, as printed by the archive command.
Content already present in the local cache is not fetched again.

With --file digest=path, individual objects are fetched instead of a tree;
the flag repeats.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		if len(args) == 0 && len(params.download.files) == 0 {
			wrapFatalln("a manifest digest or at least one --file is required", nil)
			return
		}
		s, err := paramsToStorage(
			core.ConcurrentFetches(params.download.concurrency),
		)
		if err != nil {
			wrapFatalln("configure storage", err)
			return
		}
		cch, closeCache, err := paramsToCache()
		if err != nil {
			wrapFatalln("configure cache", err)
			return
		}
		defer func() {
			_ = closeCache()
		}()
		fs := afero.NewOsFs()

		for _, spec := range params.download.files {
			parts := strings.SplitN(spec, "=", 2)
			if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
				wrapFatalln("--file takes digest=path, got "+spec, nil)
				return
			}
			target := filepath.Join(params.download.output, filepath.FromSlash(parts[1]))
			if err = core.FetchFile(ctx, s, cch, fs, model.Digest(parts[0]), target); err != nil {
				wrapFatalln("download file "+parts[0], err)
				return
			}
			infoLogger.Printf("%s downloaded to %s", parts[0], target)
		}
		if len(args) == 0 {
			return
		}

		out, err := core.DownloadTree(ctx, s, cch, fs, model.Digest(args[0]), params.download.output)
		if err != nil {
			wrapFatalln("download", err)
			return
		}
		infoLogger.Printf("tree %s downloaded to %s", args[0], params.download.output)
		if len(out.Command) > 0 {
			infoLogger.Printf("recorded command: %s", strings.Join(out.Command, " "))
		}
		if out.RelativeCwd != "" {
			infoLogger.Printf("recorded working directory: %s", out.RelativeCwd)
		}
	},
}

func init() {
	addConcurrencyFlag(downloadCmd, &params.download.concurrency)
	downloadCmd.Flags().StringVar(&params.download.output, "output", ".",
		"Directory to materialize the tree under")
	downloadCmd.Flags().StringSliceVar(&params.download.files, "file", nil,
		"Individual object to fetch, digest=path, relative to --output; repeatable")

	rootCmd.AddCommand(downloadCmd)
}
