package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "treestash",
	Short: "Treestash synchronizes file trees with a content-addressed store",
	Long: `Treestash archives file trees into a remote content-addressed store and
materializes them back, transferring each distinct piece of content at most once.

A tree is identified by the digest of its manifest: archive a directory to get
its digest, hand the digest to someone else, and they download the exact same
tree, files the store has never seen travel over the wire and nothing else.
`,
}

var config *CLIConfig

// used to patch over calls to os.Exit() during test
var logFatalln = log.Fatalln
var osExit = os.Exit

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		osExit(1)
	}
}

func init() {
	log.SetFlags(0)
	cobra.OnInitialize(initConfig)

	addServerFlag(rootCmd)
	addNamespaceFlag(rootCmd)
	addLogLevelFlag(rootCmd)
	addCacheFlags(rootCmd)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	viper.SetDefault("namespace", "default-gzip")
	viper.SetDefault("cache_backend", "fs")
	if os.Getenv("TREESTASH_CONFIG") != "" {
		viper.SetConfigFile(os.Getenv("TREESTASH_CONFIG"))
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.treestash")
		viper.AddConfigPath("/etc/treestash")
		viper.SetConfigName("treestash")
	}

	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil {
		log.Println("Using config file:", viper.ConfigFileUsed())
	}
	var err error
	config, err = newConfig()
	if err != nil {
		logFatalln(err)
	}
	config.setTreestashParams(&params)
}
