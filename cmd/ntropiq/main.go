// Package main provides the ntropiq CLI: an HTTP server for the analytics assistant,
// a terminal chat and notebook, and tools for stored sessions.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"ntropiq/internal/config"
	"ntropiq/internal/logger"
)

var (
	logLevel   string
	logFile    string
	testMode   bool
	configPath string
	provider   string
	model      string
	storageDrv string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ntropiq",
	Short: "ntropiq - conversational analytics assistant",
	Long: `ntropiq pairs a chat assistant and an analytics notebook with LLM collaborators.
Run "ntropiq serve" for the HTTP API or "ntropiq chat" for a terminal conversation.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&logLevel, "log-level", "", "Set log level (debug|info|warn|error) [default: info]")
	flags.StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr")
	flags.BoolVar(&testMode, "test-mode", false, "Run with deterministic ids and without .env files")
	flags.StringVar(&configPath, "config", "", "Config file [default: $XDG_CONFIG_HOME/ntropiq/config.yaml]")
	flags.StringVar(&provider, "provider", "", "LLM provider (gemini|openai|anthropic)")
	flags.StringVar(&model, "model", "", "LLM model name")
	flags.StringVar(&storageDrv, "storage", "", "Session storage driver (memory|badger|sqlite)")

	for _, name := range []string{"log-level", "log-file", "test-mode"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding %s flag: %v\n", name, err)
			os.Exit(1)
		}
	}

	rootCmd.AddCommand(serveCmd, chatCmd, notebookCmd, sessionsCmd, versionCmd)
	cobra.OnInitialize(initLogger)
}

func initLogger() {
	if err := logger.Configure(logLevel, logFile, testMode); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration with the persistent flags layered on top.
func loadConfig() (*config.Config, error) {
	flags := rootCmd.PersistentFlags()
	return config.Load(config.Options{
		Path:     configPath,
		TestMode: viper.GetBool("test-mode"),
		Flags: map[string]*pflag.Flag{
			"llm.provider":   flags.Lookup("provider"),
			"llm.model":      flags.Lookup("model"),
			"storage.driver": flags.Lookup("storage"),
		},
	})
}
