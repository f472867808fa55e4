package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/treestash/treestash/pkg/model"
	"github.com/treestash/treestash/pkg/store/remote"
	"github.com/treestash/treestash/pkg/tlogger"
)

// checkCmd probes the configured server
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check connectivity with the store",
	Long:  "Check connectivity with the store and report the server version.",
	Run: func(cmd *cobra.Command, args []string) {
		if params.root.server == "" {
			wrapFatalln("a server URL is required, use --server or the config file", nil)
			return
		}
		logger, err := tlogger.GetLogger(params.root.logLevel)
		if err != nil {
			wrapFatalln("set log level", err)
			return
		}
		backend := remote.New(
			model.NewServerRef(params.root.server, params.root.namespace),
			remote.Logger(logger),
			remote.HTTPClient(&http.Client{Timeout: 30 * time.Second}),
		)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		version, err := backend.ServerDetails(ctx)
		if err != nil {
			wrapFatalln("server unreachable", err)
			return
		}
		infoLogger.Printf("server %s is up, version %s", params.root.server, version)
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
