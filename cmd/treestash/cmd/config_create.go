package cmd

import (
	"io/ioutil"
	"os"
	"os/user"
	"path/filepath"

	"gopkg.in/yaml.v2"

	"github.com/spf13/cobra"
)

var configGen = &cobra.Command{
	Use:   "create",
	Short: "Create a config",
	Long:  "Create a config to use for treestash. Config file will be placed in $HOME/.treestash/treestash.yaml",
	Run: func(cmd *cobra.Command, args []string) {
		if params.root.server == "" {
			wrapFatalln("a server URL is required, use --server", nil)
			return
		}
		usr, err := user.Current()
		if usr == nil || err != nil {
			wrapFatalln("could not get home directory for user", err)
			return
		}
		cfg := CLIConfig{
			Server:       params.root.server,
			Namespace:    params.root.namespace,
			CacheDir:     params.root.cacheDir,
			CacheBackend: params.root.cacheBackend,
		}
		o, e := yaml.Marshal(cfg)
		if e != nil {
			wrapFatalln("serialize config to yaml", e)
			return
		}
		_ = os.Mkdir(filepath.Join(usr.HomeDir, ".treestash"), 0777)
		err = ioutil.WriteFile(filepath.Join(usr.HomeDir, ".treestash", "treestash.yaml"), o, 0666)
		if err != nil {
			wrapFatalln("write config file", err)
			return
		}
		infoLogger.Printf("config written to %s", filepath.Join(usr.HomeDir, ".treestash", "treestash.yaml"))
	},
}

func init() {
	configCmd.AddCommand(configGen)
}
