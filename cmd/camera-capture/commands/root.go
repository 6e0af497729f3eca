package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/menta2k/camera-capture/internal/config"
	"github.com/menta2k/camera-capture/internal/logger"
)

var (
	cfgFile string
	cfg     *config.Config
	rootCmd = &cobra.Command{
		Use:   "camera-capture",
		Short: "camera-capture - still capture with post-processing and output routing",
		Long: `camera-capture drives a camera session: it queues configuration until the
sensor is open, takes one picture at a time, fixes orientation, mirrors the
image on request and delivers it to memory, disk, the camera roll or a
temporary cache.

Features:
  • Quality tiers mapped onto supported picture sizes
  • Flash and torch control
  • Media index registration for camera roll captures
  • REST and WebSocket API for integration`,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/camera-capture/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("pretty", false, "human readable log output")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("pretty", rootCmd.PersistentFlags().Lookup("pretty"))
}

// loadConfig reads the configuration and sets up logging before any
// subcommand runs
func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if level := viper.GetString("log_level"); level != "" {
		loaded.LogLevel = level
	}
	logger.InitWriter(cmd.ErrOrStderr(), loaded.LogLevel, viper.GetBool("pretty"))

	cfg = loaded
	return nil
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
	if cfgFile != "" {
		return cfgFile
	}
	return config.GetConfigPath()
}
