package cmd

import (
	"context"
	"path"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/treestash/treestash/pkg/core"
)

// archiveCmd uploads file and directory trees to the store
var archiveCmd = &cobra.Command{
	Use:   "archive <path> [<path>...]",
	Short: "Archive files or directories to the store",
	Long: `Archive files or directories to the store.

Every argument is hashed and synchronized: files become one stored object each,
directories become stored objects plus a manifest describing the tree. The
digest printed for a directory identifies its manifest and is what the download
command takes.

Content the store already holds is skipped, so re-archiving a mostly unchanged
tree only transfers the difference.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		s, err := paramsToStorage(
			core.ConcurrentPushes(params.archive.concurrency),
			core.PushRetries(params.archive.retries),
		)
		if err != nil {
			wrapFatalln("configure storage", err)
			return
		}

		maxSize, err := parseByteSize(params.archive.bundleMaxSize, 100*1024)
		if err != nil {
			wrapFatalln("parse --bundle-max-size", err)
			return
		}
		opts := []core.ArchiveOption{
			core.Bundling(params.archive.bundleMinFiles, maxSize),
		}
		if len(params.archive.excludes) > 0 {
			patterns := params.archive.excludes
			opts = append(opts, core.Filter(func(rel string) bool {
				for _, pattern := range patterns {
					if ok, _ := path.Match(pattern, rel); ok {
						return true
					}
					if ok, _ := path.Match(pattern, path.Base(rel)); ok {
						return true
					}
				}
				return false
			}))
		}
		if len(params.archive.command) > 0 {
			opts = append(opts, core.Command(params.archive.command...))
		}
		if params.archive.relativeCwd != "" {
			opts = append(opts, core.RelativeCwd(params.archive.relativeCwd))
		}
		if params.archive.verify {
			opts = append(opts, core.VerifyPush())
		}

		res, err := core.ArchiveFilesToStorage(ctx, s, afero.NewOsFs(), args, opts...)
		if err != nil {
			wrapFatalln("archive", err)
			return
		}
		for _, root := range args {
			infoLogger.Printf("%s %s", res.Digests[root], root)
		}
		infoLogger.Printf("uploaded %d objects, %d already present", len(res.Cold), len(res.Hot))
	},
}

func init() {
	addConcurrencyFlag(archiveCmd, &params.archive.concurrency)
	archiveCmd.Flags().StringSliceVar(&params.archive.command, "command", nil,
		"Command line to record in the manifest")
	archiveCmd.Flags().StringVar(&params.archive.relativeCwd, "relative-cwd", "",
		"Working directory, relative to the tree root, to record in the manifest")
	archiveCmd.Flags().BoolVar(&params.archive.verify, "verify", false,
		"Re-fetch and verify every uploaded object")
	archiveCmd.Flags().IntVar(&params.archive.retries, "retries", 4,
		"How many times a failed transfer is retried")
	archiveCmd.Flags().IntVar(&params.archive.bundleMinFiles, "bundle-min-files", 16,
		"Pack small files into one tar object when a tree has at least this many, 0 disables")
	archiveCmd.Flags().StringVar(&params.archive.bundleMaxSize, "bundle-max-size", "100KiB",
		"Only files up to this size are packed into tar objects")
	archiveCmd.Flags().StringSliceVar(&params.archive.excludes, "exclude", nil,
		"Glob patterns of paths to leave out, e.g. '*.pyc' or '.git'")

	rootCmd.AddCommand(archiveCmd)
}
