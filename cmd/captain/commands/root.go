package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/bryanchriswhite/captain/internal/config"
	"github.com/bryanchriswhite/captain/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "captain",
		Short: "Captain - workflow-driven screen capture",
		Long: `Captain captures screenshots and screen recordings through configurable
workflows. A workflow picks a screen region, encodes it with a codec and
passes the result through a chain of handlers.

Features:
  • Still workflows (PNG, JPEG, BMP)
  • Motion workflows (animated GIF, Motion JPEG)
  • Manual, fixed, active monitor and full desktop regions
  • Save to file with templated names, copy to clipboard
  • Persistent configuration
  • REST API with live workflow events`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.InitWithWriter(viper.GetString("log_level"), viper.GetBool("pretty"), os.Stderr)
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/captain/options.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8080)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("backend", "", "capture backend (auto, x11, screenshot)")
	rootCmd.PersistentFlags().Bool("pretty", true, "human-readable log output")

	// Bind flags to viper
	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("capture_backend", rootCmd.PersistentFlags().Lookup("backend"))
	viper.BindPFlag("pretty", rootCmd.PersistentFlags().Lookup("pretty"))
}

func initConfig() {
	viper.SetEnvPrefix("CAPTAIN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// loadConfig opens the options file and applies the configured log level
// unless one was given on the command line or in the environment
func loadConfig() (*config.Manager, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if viper.GetString("log_level") == "" {
		logger.InitWithWriter(configMgr.Get().LogLevel, viper.GetBool("pretty"), os.Stderr)
	}
	return configMgr, nil
}

// effectiveBackend prefers the flag or environment over the options file
func effectiveBackend(opts *config.Options) string {
	if b := viper.GetString("capture_backend"); b != "" {
		return b
	}
	return opts.CaptureBackend
}
