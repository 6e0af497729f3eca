package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/menta2k/camera-capture/pkg/sizing"
	"github.com/menta2k/camera-capture/pkg/types"
)

var sizesCmd = &cobra.Command{
	Use:   "sizes",
	Short: "List supported picture sizes and the size each quality tier selects",
	RunE:  runSizes,
}

func init() {
	rootCmd.AddCommand(sizesCmd)
}

func runSizes(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	camera, err := openCamera(ctx, nil)
	if err != nil {
		return err
	}
	defer camera.Close()

	sizes, err := camera.Session().SupportedSizes()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Supported sizes:")
	for _, size := range sizes {
		fmt.Fprintf(out, "  %s\n", size)
	}

	fmt.Fprintln(out, "Quality tiers:")
	for _, tier := range types.QualityTiers() {
		size, err := sizing.Select(sizes, tier)
		if err != nil {
			fmt.Fprintf(out, "  %-8s %v\n", tier, err)
			continue
		}
		fmt.Fprintf(out, "  %-8s %s\n", tier, size)
	}
	return nil
}
