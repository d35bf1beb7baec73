package filters

import (
	"context"
	"fmt"
	"image"
	"unsafe"

	"github.com/soypat/unstamp"
	"golang.org/x/sync/errgroup"
)

// PointFunc processes a contiguous row of pixels.
// dst and src contain rowWidth pixels worth of bytes and may alias.
// The function should iterate through pixels: for i := 0; i < len(src); i += bytesPerPixel { ... }
type PointFunc func(dst, src []byte)

// PointFilter applies a per-pixel transformation using a callback function.
// It handles the iteration, buffering, and ROI logic common to all per-pixel filters.
// The callback is invoked once per row with contiguous pixel data.
//
// When Rotate is set the image is rotated 180 degrees before Fn is applied:
// destination pixel (x,y) is read from source pixel (W-1-x, H-1-y) of the ROI.
// Rotated rows are first copied into dst in reversed pixel order and Fn is
// called with the destination row as both arguments.
type PointFilter struct {
	In    unstamp.Shape
	Out   unstamp.Shape
	Fn    PointFunc
	Ctrls []unstamp.Control // User-defined controls for this filter.
	// Rotate enables 180 degree rotation. Requires In == Out and a distinct destination buffer.
	Rotate bool
	// Workers is the maximum number of goroutines processing disjoint row ranges.
	// Values below 2 process rows sequentially on the calling goroutine.
	Workers int
}

// ShapeIO implements [unstamp.Filter].
func (f *PointFilter) ShapeIO() (output, input unstamp.Shape) {
	return f.Out, f.In
}

// Controls implements [unstamp.Filter].
func (f *PointFilter) Controls() []unstamp.Control {
	return f.Ctrls
}

// Process implements [unstamp.Filter].
func (f *PointFilter) Process(dst []byte, src unstamp.Image, roi *image.Rectangle) (unstamp.Dims, error) {
	return f.ProcessContext(context.Background(), dst, src, roi)
}

// ProcessContext is like Process but stops between rows and returns ctx.Err()
// once ctx is done. The contents of dst are unspecified after cancellation.
func (f *PointFilter) ProcessContext(ctx context.Context, dst []byte, src unstamp.Image, roi *image.Rectangle) (unstamp.Dims, error) {
	if f.Fn == nil {
		return unstamp.Dims{}, errNilPointFunc
	}

	outShape, inShape := f.ShapeIO()
	srcDims := src.Dims()
	if srcDims.Shape != inShape {
		return unstamp.Dims{}, errShapeMismatch
	}
	if f.Rotate {
		if inShape != outShape {
			return unstamp.Dims{}, errRotateShape
		} else if dst == nil {
			return unstamp.Dims{}, errRotateInPlace
		}
	}

	inBytesPerPixel := inShape.BytesPerPixel()
	outBytesPerPixel := outShape.BytesPerPixel()

	// Calculate output dimensions based on ROI or full image.
	var outWidth, outHeight int
	if roi != nil {
		outWidth, outHeight = roi.Dx(), roi.Dy()
	} else {
		outWidth, outHeight = srcDims.Width, srcDims.Height
	}
	outStride := outWidth * outBytesPerPixel

	dstDims := unstamp.Dims{
		Width:  outWidth,
		Height: outHeight,
		Stride: outStride,
		Shape:  outShape,
	}

	dst, _, err := unstamp.ValidateProcessArgs(dst, dstDims, src, roi)
	if err != nil {
		return unstamp.Dims{}, err
	}

	// Determine source region to process.
	startX, startY := 0, 0
	endX, endY := srcDims.Width, srcDims.Height
	if roi != nil {
		startX, startY = roi.Min.X, roi.Min.Y
		endX, endY = roi.Max.X, roi.Max.Y
	}

	// Try to get direct buffer access for better performance.
	var srcBuf []byte
	if buffered, ok := src.(unstamp.ImageBuffered); ok {
		srcBuf = buffered.Buffer()
	}
	if f.Rotate && srcBuf != nil && overlaps(dst, srcBuf) {
		return unstamp.Dims{}, errRotateInPlace
	}

	srcRowBytes := srcDims.SizeRow()
	srcStart := startX * inBytesPerPixel
	srcEnd := endX * inBytesPerPixel

	// processRows handles destination rows [y0, y1) with its own row buffer for unbuffered sources.
	processRows := func(y0, y1 int) error {
		var rowBuf []byte
		if srcBuf == nil {
			rowBuf = make([]byte, srcRowBytes)
		}
		for dstY := y0; dstY < y1; dstY++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			y := startY + dstY
			if f.Rotate {
				y = endY - 1 - dstY
			}
			var srcRow []byte
			if srcBuf != nil {
				srcRowStart := y * srcDims.Stride
				srcRow = srcBuf[srcRowStart : srcRowStart+srcRowBytes]
			} else {
				var err error
				srcRow, err = unstamp.ImageRow(rowBuf, src, y)
				if err != nil {
					return fmt.Errorf("reading source row %d: %w", y, err)
				}
			}

			dstRowStart := dstY * outStride
			dstRow := dst[dstRowStart : dstRowStart+outStride]
			if f.Rotate {
				reversePixels(dstRow, srcRow[srcStart:srcEnd], inBytesPerPixel)
				f.Fn(dstRow, dstRow)
				continue
			}
			f.Fn(dstRow, srcRow[srcStart:srcEnd])
		}
		return nil
	}

	workers := min(f.Workers, outHeight)
	if workers < 2 {
		if err := processRows(0, outHeight); err != nil {
			return unstamp.Dims{}, err
		}
		return dstDims, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	ctx = gctx
	step := (outHeight + workers - 1) / workers
	for y0 := 0; y0 < outHeight; y0 += step {
		y1 := min(y0+step, outHeight)
		g.Go(func() error { return processRows(y0, y1) })
	}
	if err := g.Wait(); err != nil {
		return unstamp.Dims{}, err
	}
	return dstDims, nil
}

// reversePixels writes the pixels of src into dst in reverse order.
func reversePixels(dst, src []byte, bpp int) {
	n := len(src) / bpp
	for i := 0; i < n; i++ {
		copy(dst[i*bpp:(i+1)*bpp], src[(n-1-i)*bpp:(n-i)*bpp])
	}
}

// overlaps reports whether a and b share backing memory.
func overlaps(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	a0, a1 := &a[0], &a[len(a)-1]
	b0, b1 := &b[0], &b[len(b)-1]
	return !(addr(a1) < addr(b0) || addr(b1) < addr(a0))
}

func addr(p *byte) uintptr { return uintptr(unsafe.Pointer(p)) }

var (
	errNilPointFunc  = errorString("nil PointFunc")
	errShapeMismatch = fmt.Errorf("%w: pixel shape mismatch", unstamp.ErrInvalidArgument)
	errRotateShape   = fmt.Errorf("%w: rotation requires matching input and output shapes", unstamp.ErrInvalidArgument)
	errRotateInPlace = fmt.Errorf("%w: rotation cannot write to its own source buffer", unstamp.ErrInvalidArgument)
)

type errorString string

func (e errorString) Error() string { return string(e) }
