package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/soypat/unstamp"
	"github.com/soypat/unstamp/filters"
	"github.com/soypat/unstamp/internal/imgio"
)

// Options controls the full decode -> erase -> encode pipeline.
type Options struct {
	Band    filters.Band            // whitening band, usually filters.DefaultBand
	Mode    filters.Mode            // zero value rotates and whitens
	Workers int                     // row workers for the CPU filter
	Format  imgio.Format            // output encoding
	Quality int                     // JPEG quality (1-100), 0 for default
	GPU     *filters.EraseFilterGPU // optional: run the transform on the GPU
}

// Result holds the output of a pipeline run.
type Result struct {
	Data      []byte // encoded output image
	Width     int
	Height    int
	SrcFormat imgio.Format
	Format    imgio.Format
}

// Run executes the full pipeline: decode -> rotate and whiten -> encode.
// Band, mode, output format and encoder options are checked before the input is decoded.
func Run(ctx context.Context, data []byte, opts Options) (*Result, error) {
	encOpts := imgio.EncodeOptions{Quality: opts.Quality}
	if err := opts.Band.Validate(); err != nil {
		return nil, err
	} else if err := opts.Mode.Validate(); err != nil {
		return nil, err
	} else if !opts.Format.CanEncode() {
		return nil, fmt.Errorf("%w: cannot encode format %q", unstamp.ErrInvalidArgument, opts.Format)
	} else if err := encOpts.Validate(); err != nil {
		return nil, err
	} else if opts.GPU != nil && opts.Mode == filters.ModeWhiten {
		return nil, fmt.Errorf("%w: mode %v not supported on GPU", unstamp.ErrInvalidArgument, opts.Mode)
	}

	// 1. Decode
	img, srcFormat, err := imgio.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	src, err := unstamp.FromImage(img)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	// 2. Transform
	var out image.Image
	if opts.GPU != nil {
		out, err = runGPU(opts.GPU, src, opts)
	} else {
		out, err = runCPU(ctx, src, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("transform: %w", err)
	}

	// 3. Encode
	encoded, err := imgio.EncodeBytes(out, opts.Format, encOpts)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	d := src.Dims()
	return &Result{
		Data:      encoded,
		Width:     d.Width,
		Height:    d.Height,
		SrcFormat: srcFormat,
		Format:    opts.Format,
	}, nil
}

func runCPU(ctx context.Context, src *unstamp.Buffer, opts Options) (image.Image, error) {
	d := src.Dims()
	f, err := filters.NewFilter(d.Shape, opts.Band, opts.Mode)
	if err != nil {
		return nil, err
	}
	f.Workers = opts.Workers

	dst, err := unstamp.NewBuffer(d.Width, d.Height, d.Shape)
	if err != nil {
		return nil, err
	}
	if _, err := f.ProcessContext(ctx, dst.Buffer(), src, nil); err != nil {
		return nil, err
	}
	return dst.ToImage(), nil
}

func runGPU(g *filters.EraseFilterGPU, src *unstamp.Buffer, opts Options) (image.Image, error) {
	g.SetBand(opts.Band)
	if err := g.SetMode(opts.Mode); err != nil {
		return nil, err
	}
	return g.Process(src.ToImage())
}
