package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/anime-shed/palm-oracle-go/internal/config"
)

var (
	cfgFile  string
	logLevel string
)

// NewRootCommand creates the root command
func NewRootCommand(version, commit, date string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "palmctl",
		Short: "AI palm reading from the command line or the browser",
		Long: `palmctl sends a photograph of a palm to a hosted multimodal model and
prints the reading it returns.

Run "palmctl serve" for the web page, or "palmctl read" for a one-off reading
of a local file or an image URL. GEMINI_API_KEY must be set.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML config file; environment variables take precedence")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newReadCommand())
	rootCmd.AddCommand(newVersionCommand(version, commit, date))

	return rootCmd
}

func newVersionCommand(version, commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			if version == "" {
				version = "dev"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "palmctl %s (%s) built on %s\n", version, commit, date)
			fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", runtime.Version())
		},
	}
}

// loadConfig reads the config file named by --config, then the environment,
// then applies --log-level
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}
