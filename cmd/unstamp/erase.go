package main

import (
	"fmt"
	"log"
	"runtime"
	"time"

	"github.com/soypat/unstamp"
	"github.com/soypat/unstamp/filters"
	"github.com/soypat/unstamp/internal/imgio"
	"github.com/soypat/unstamp/internal/pipeline"
	"github.com/spf13/cobra"
)

var eraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "Rotate an image 180 degrees and whiten pixels inside the threshold band",
	Args:  cobra.NoArgs,
	RunE:  runErase,
}

func init() {
	eraseCmd.Flags().StringP("input", "i", "", "Input image file")
	eraseCmd.Flags().StringP("output", "o", "", "Output image file, format taken from its extension")
	eraseCmd.Flags().Int("low", int(filters.DefaultBand.Low), "Lowest channel value that whitens a pixel (0-255)")
	eraseCmd.Flags().Int("high", int(filters.DefaultBand.High), "Highest channel value that whitens a pixel (0-255)")
	eraseCmd.Flags().Bool("no-whiten", false, "Only rotate the image")
	eraseCmd.Flags().Int("workers", runtime.GOMAXPROCS(0), "Goroutines processing rows")
	eraseCmd.Flags().Int("quality", imgio.DefaultJPEGQuality, "JPEG quality (1-100)")
	eraseCmd.Flags().Bool("gpu", false, "Run the transform on a WebGPU device")
	eraseCmd.MarkFlagRequired("input")
	eraseCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(eraseCmd)
}

func runErase(cmd *cobra.Command, args []string) error {
	inputPath, _ := cmd.Flags().GetString("input")
	outputPath, _ := cmd.Flags().GetString("output")
	low, _ := cmd.Flags().GetInt("low")
	high, _ := cmd.Flags().GetInt("high")
	noWhiten, _ := cmd.Flags().GetBool("no-whiten")
	workers, _ := cmd.Flags().GetInt("workers")
	quality, _ := cmd.Flags().GetInt("quality")
	useGPU, _ := cmd.Flags().GetBool("gpu")

	band, err := filters.NewBand(low, high)
	if err != nil {
		return err
	}
	format, err := imgio.FormatFromPath(outputPath)
	if err != nil {
		return fmt.Errorf("output %s: %w", outputPath, err)
	} else if !format.CanEncode() {
		return fmt.Errorf("output %s: %w: %s images can only be read", outputPath, unstamp.ErrInvalidArgument, format)
	}

	inputData, err := imgio.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	opts := pipeline.Options{
		Band:    band,
		Mode:    filters.ModeErase,
		Workers: workers,
		Format:  format,
		Quality: quality,
	}
	if noWhiten {
		opts.Mode = filters.ModeRotate
	}
	if useGPU {
		device, queue, release, err := filters.OpenGPU()
		if err != nil {
			return err
		}
		defer release()
		g, err := filters.NewEraseGPU(device, queue, band)
		if err != nil {
			return fmt.Errorf("GPU setup: %w", err)
		}
		defer g.Cleanup()
		opts.GPU = g
		log.Printf("using GPU backend")
	}

	start := time.Now()
	result, err := pipeline.Run(cmd.Context(), inputData, opts)
	if err != nil {
		return fmt.Errorf("%s: %w", inputPath, err)
	}
	log.Printf("%s: %dx%d %s, mode %v, band %v, %d workers, took %v",
		inputPath, result.Width, result.Height, result.SrcFormat, opts.Mode, band, workers, time.Since(start))

	if err := imgio.WriteFile(outputPath, result.Data); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Output: %s (%d bytes)\n", outputPath, len(result.Data))
	return nil
}
