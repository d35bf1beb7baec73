package main

import (
	"bytes"
	"fmt"
	"image/color"

	"github.com/soypat/unstamp/internal/imgio"
	"github.com/spf13/cobra"
)

var identifyCmd = &cobra.Command{
	Use:   "identify [file]",
	Short: "Inspect image format and dimensions",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)
}

func runIdentify(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := imgio.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	cfg, format, err := imgio.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "File:        %s\n", path)
	fmt.Fprintf(w, "Format:      %s\n", format)
	fmt.Fprintf(w, "Dimensions:  %d x %d\n", cfg.Width, cfg.Height)
	fmt.Fprintf(w, "Color model: %s\n", modelName(cfg.ColorModel))
	fmt.Fprintf(w, "File size:   %d bytes (%.1f MB)\n", len(data), float64(len(data))/(1024*1024))
	return nil
}

func modelName(m color.Model) string {
	if p, ok := m.(color.Palette); ok {
		return fmt.Sprintf("paletted (%d colors)", len(p))
	}
	switch m {
	case color.RGBAModel:
		return "RGBA"
	case color.RGBA64Model:
		return "RGBA64"
	case color.NRGBAModel:
		return "NRGBA"
	case color.NRGBA64Model:
		return "NRGBA64"
	case color.GrayModel:
		return "Gray"
	case color.Gray16Model:
		return "Gray16"
	case color.YCbCrModel:
		return "YCbCr"
	case color.CMYKModel:
		return "CMYK"
	}
	return fmt.Sprintf("%T", m)
}
