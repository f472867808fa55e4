package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/treestash/treestash/pkg/model"
	"github.com/treestash/treestash/pkg/store"
)

// statCmd checks which digests the store holds
var statCmd = &cobra.Command{
	Use:   "stat <digest> [<digest>...]",
	Short: "Check whether the store holds the given digests",
	Long: `Check whether the store holds the given digests.

All digests are checked in a single round trip. Each digest is printed with
either "present" or "missing".`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s, err := paramsToStorage()
		if err != nil {
			wrapFatalln("configure storage", err)
			return
		}
		items := make([]store.Item, 0, len(args))
		for _, arg := range args {
			items = append(items, store.NewRefItem(model.Digest(arg), 0))
		}
		missing, err := s.Backend().Contains(context.Background(), items)
		if err != nil {
			wrapFatalln("existence check", err)
			return
		}
		for _, item := range items {
			if _, ok := missing[item]; ok {
				infoLogger.Printf("%s missing", item.Digest())
			} else {
				infoLogger.Printf("%s present", item.Digest())
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(statCmd)
}
