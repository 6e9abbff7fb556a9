package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/onebox/internal/model"
)

// Version is set via ldflags at build time.
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "onebox",
	Short: "onebox - multi-mailbox email aggregator",
	Long: "Onebox synchronizes multiple IMAP mailboxes, classifies incoming " +
		"messages, and forwards actionable ones to chat and webhook sinks.",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("onebox version %s\n", Version)
	},
}

func configPathOrDefault() string {
	if configPath != "" {
		return configPath
	}
	return model.DefaultConfigPath()
}

func loadConfig() (*model.AppConfig, error) {
	return model.LoadConfig(configPathOrDefault())
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&configPath, "config", "",
		"Config file path (default: ~/.config/onebox/config.yaml)",
	)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(credentialCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
