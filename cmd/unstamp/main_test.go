package main

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/soypat/unstamp"
	"github.com/soypat/unstamp/internal/imgio"
	"github.com/spf13/pflag"
)

// execute runs the root command with args, resetting flags left over from
// previous runs in the same process.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, c := range rootCmd.Commands() {
		c.Flags().VisitAll(func(f *pflag.Flag) {
			f.Value.Set(f.DefValue)
			f.Changed = false
		})
	}
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeInput(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	img.SetNRGBA(0, 0, color.NRGBA{R: 200, G: 20, B: 30, A: 255})
	data, err := imgio.EncodeBytes(img, imgio.FormatPNG, imgio.EncodeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "in.png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEraseCommand(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir)
	outPath := filepath.Join(dir, "out.png")

	stdout, err := execute(t, "erase", "-i", in, "-o", outPath, "--workers", "2")
	if err != nil {
		t.Fatalf("erase: %v", err)
	}
	if !strings.Contains(stdout, outPath) {
		t.Errorf("output path not reported: %q", stdout)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	img, _, err := imgio.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	buf, err := unstamp.FromImage(img)
	if err != nil {
		t.Fatal(err)
	}
	// Source (0,0) lands on (2,1) and is whitened.
	if px := buf.Pixel(2, 1); px[0] != 255 || px[1] != 255 || px[2] != 255 {
		t.Errorf("stamp pixel not whitened: %v", px)
	}
	if px := buf.Pixel(0, 0); px[0] != 10 || px[1] != 20 || px[2] != 30 {
		t.Errorf("background pixel modified: %v", px)
	}
}

func TestEraseCommandNoWhiten(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir)
	outPath := filepath.Join(dir, "out.bmp")
	if _, err := execute(t, "erase", "-i", in, "-o", outPath, "--no-whiten"); err != nil {
		t.Fatalf("erase: %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	img, f, err := imgio.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if f != imgio.FormatBMP {
		t.Errorf("got format %s", f)
	}
	r, _, _, _ := img.At(2, 1).RGBA()
	if r>>8 != 200 {
		t.Errorf("rotated stamp pixel red = %d, want 200", r>>8)
	}
}

func TestEraseCommandErrors(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir)
	tests := []struct {
		name string
		args []string
		want error
	}{
		{"missing input", []string{"-i", filepath.Join(dir, "missing.png"), "-o", filepath.Join(dir, "a.png")}, unstamp.ErrIO},
		{"inverted band", []string{"-i", in, "-o", filepath.Join(dir, "b.png"), "--low", "200", "--high", "100"}, unstamp.ErrInvalidArgument},
		{"band out of range", []string{"-i", in, "-o", filepath.Join(dir, "c.png"), "--high", "300"}, unstamp.ErrInvalidArgument},
		{"unknown extension", []string{"-i", in, "-o", filepath.Join(dir, "d.svg")}, unstamp.ErrInvalidArgument},
		{"decode only format", []string{"-i", in, "-o", filepath.Join(dir, "e.webp")}, unstamp.ErrInvalidArgument},
		{"bad quality", []string{"-i", in, "-o", filepath.Join(dir, "f.jpg"), "--quality", "101"}, unstamp.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, append([]string{"erase"}, tt.args...)...)
			if !errors.Is(err, tt.want) {
				t.Errorf("want %v, got %v", tt.want, err)
			}
		})
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("failed runs left files behind: %v", entries)
	}
}

func TestEraseCommandRequiresFlags(t *testing.T) {
	if _, err := execute(t, "erase", "-i", "in.png"); err == nil {
		t.Error("expected error for missing --output")
	}
}

func TestIdentifyCommand(t *testing.T) {
	in := writeInput(t, t.TempDir())
	stdout, err := execute(t, "identify", in)
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	for _, want := range []string{"Format:      png", "Dimensions:  3 x 2", "Color model: RGBA"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("missing %q in output:\n%s", want, stdout)
		}
	}

	garbage := filepath.Join(t.TempDir(), "bad.png")
	if err := os.WriteFile(garbage, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "identify", garbage); !errors.Is(err, unstamp.ErrDecode) {
		t.Errorf("want ErrDecode, got %v", err)
	}
}
