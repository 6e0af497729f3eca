package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/menta2k/camera-capture/internal/utils"
	"github.com/menta2k/camera-capture/pkg/processing"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect FILE",
	Short: "Show format and dimensions of an image file",
	Example: `  # Inspect a capture from the camera roll
  camera-capture inspect ~/DCIM/Camera/IMG_20240309_140507.jpg

  # One line summary
  camera-capture inspect --human /tmp/IMG_20240309_140507.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

var inspectHuman bool

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().BoolVar(&inspectHuman, "human", false, "print a one line summary instead of JSON")
}

func runInspect(cmd *cobra.Command, args []string) error {
	data, err := afero.ReadFile(afero.NewOsFs(), args[0])
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	info, err := processing.NewProcessor().Inspect(data)
	if err != nil {
		return err
	}

	if inspectHuman {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %dx%d %s\n",
			info.Format, info.Width, info.Height, utils.FormatFileSize(int64(info.Bytes)))
		return err
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}
