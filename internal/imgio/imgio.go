// Package imgio decodes and encodes images for the command line tools and
// writes output files atomically.
package imgio

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/soypat/unstamp"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp" // Register WEBP decoder.
)

// Format identifies an image encoding.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatGIF  Format = "gif"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
	FormatWEBP Format = "webp" // Decode only.
)

const DefaultJPEGQuality = 95

var extFormats = map[string]Format{
	".png":  FormatPNG,
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".gif":  FormatGIF,
	".bmp":  FormatBMP,
	".tif":  FormatTIFF,
	".tiff": FormatTIFF,
	".webp": FormatWEBP,
}

// FormatFromPath infers the format from the file extension, case-insensitively.
func FormatFromPath(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	f, ok := extFormats[ext]
	if !ok {
		return "", fmt.Errorf("%w: unsupported image extension %q", unstamp.ErrInvalidArgument, ext)
	}
	return f, nil
}

// CanEncode reports whether images can be written in format f.
func (f Format) CanEncode() bool {
	switch f {
	case FormatPNG, FormatJPEG, FormatGIF, FormatBMP, FormatTIFF:
		return true
	}
	return false
}

// EncodeOptions tunes lossy encoders. The zero value selects defaults.
type EncodeOptions struct {
	// Quality is the JPEG quality 1..100. Zero selects DefaultJPEGQuality.
	Quality int
}

// Validate checks option ranges without encoding anything.
func (o EncodeOptions) Validate() error {
	if o.Quality != 0 && (o.Quality < 1 || o.Quality > 100) {
		return fmt.Errorf("%w: JPEG quality %d outside 1..100", unstamp.ErrInvalidArgument, o.Quality)
	}
	return nil
}

// Decode reads an image in any registered format. Failures wrap [unstamp.ErrDecode].
func Decode(r io.Reader) (image.Image, Format, error) {
	img, name, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", unstamp.ErrDecode, err)
	}
	return img, Format(name), nil
}

// DecodeConfig reads only the image header.
func DecodeConfig(r io.Reader) (image.Config, Format, error) {
	cfg, name, err := image.DecodeConfig(r)
	if err != nil {
		return image.Config{}, "", fmt.Errorf("%w: %w", unstamp.ErrDecode, err)
	}
	return cfg, Format(name), nil
}

// Encode writes img to w in format f.
func Encode(w io.Writer, img image.Image, f Format, opts EncodeOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	var err error
	switch f {
	case FormatPNG:
		err = png.Encode(w, img)
	case FormatJPEG:
		q := opts.Quality
		if q == 0 {
			q = DefaultJPEGQuality
		}
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: q})
	case FormatGIF:
		err = gif.Encode(w, img, nil)
	case FormatBMP:
		err = bmp.Encode(w, img)
	case FormatTIFF:
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("%w: cannot encode format %q", unstamp.ErrInvalidArgument, f)
	}
	if err != nil {
		return fmt.Errorf("encoding %s: %w", f, err)
	}
	return nil
}

// EncodeBytes is like Encode but returns the encoded data.
func EncodeBytes(img image.Image, f Format, opts EncodeOptions) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, f, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadFile reads the whole file at path. Failures wrap [unstamp.ErrIO].
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", unstamp.ErrIO, err)
	}
	return data, nil
}

// WriteFile writes data to a temporary file next to path and renames it into
// place, so path either holds the complete data or is left untouched.
// Failures wrap [unstamp.ErrIO].
func WriteFile(path string, data []byte) (err error) {
	path = filepath.Clean(path)
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("%w: %w", unstamp.ErrIO, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("%w: %w", unstamp.ErrIO, err)
	}
	if err = tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("%w: %w", unstamp.ErrIO, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", unstamp.ErrIO, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %w", unstamp.ErrIO, err)
	}
	return nil
}
