package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// CLIConfig describes the CLI configuration.
type CLIConfig struct {
	// bug in viper? Need to keep names of fields the same as the serialized names..
	Server       string `json:"server" yaml:"server" mapstructure:"server"`                      // URL of the content-addressed store
	Namespace    string `json:"namespace" yaml:"namespace" mapstructure:"namespace"`             // Namespace to address content in
	CacheDir     string `json:"cache_dir" yaml:"cache_dir" mapstructure:"cache_dir"`             // Directory holding the local cache
	CacheBackend string `json:"cache_backend" yaml:"cache_backend" mapstructure:"cache_backend"` // fs or badger
}

func newConfig() (*CLIConfig, error) {
	var config CLIConfig
	err := viper.Unmarshal(&config)
	if err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *CLIConfig) setTreestashParams(flags *flagsT) {
	if flags.root.server == "" {
		flags.root.server = c.Server
	}
	if flags.root.namespace == "" {
		flags.root.namespace = c.Namespace
	}
	if flags.root.cacheDir == "" {
		flags.root.cacheDir = c.CacheDir
	}
	if flags.root.cacheBackend == "" {
		flags.root.cacheBackend = c.CacheBackend
	}
}

// configCmd represents the config related commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Commands to manage a config",
	Long: `Commands to manage the treestash CLI config.

Configuration for treestash is the common set of flags that are needed for most
commands and do not change across runs.`,
}

func init() {
	rootCmd.AddCommand(configCmd)
}
