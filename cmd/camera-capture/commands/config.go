package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/menta2k/camera-capture/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage camera-capture configuration",
	Long:  `View and create camera-capture configuration files.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration after defaults and environment overrides.`,
	Example: `  # Show configuration as YAML (default)
  camera-capture config show

  # Show configuration as JSON
  camera-capture config show --format json`,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Example: `  # Write the default configuration to the default path
  camera-capture config init

  # Write it somewhere else, replacing an existing file
  camera-capture config init --config ./camera.yaml --force`,
	RunE: runConfigInit,
}

var (
	formatFlag string
	forceFlag  bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)

	configShowCmd.Flags().StringVarP(&formatFlag, "format", "f", "yaml", "output format (yaml or json)")
	configInitCmd.Flags().BoolVar(&forceFlag, "force", false, "overwrite an existing file")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	switch formatFlag {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	case "yaml":
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(cfg)
	default:
		return fmt.Errorf("unsupported format: %s (use 'yaml' or 'json')", formatFlag)
	}
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := GetConfigFile()
	if _, err := os.Stat(path); err == nil && !forceFlag {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := config.Default().SaveToFile(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return nil
}
