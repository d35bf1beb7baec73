package unstamp

import (
	"image"
	"io"

	"golang.org/x/image/draw"
)

// Buffer is an in-memory [ImageBuffered] with tightly packed rows.
type Buffer struct {
	dims Dims
	pix  []byte
}

var _ ImageBuffered = (*Buffer)(nil)

// NewBuffer allocates a zeroed image of the given size and shape.
func NewBuffer(width, height int, shape Shape) (*Buffer, error) {
	d := Dims{Width: width, Height: height, Shape: shape}
	d.Stride = d.SizeRow()
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &Buffer{dims: d, pix: make([]byte, d.Size())}, nil
}

// NewBufferFrom wraps pix without copying. pix must hold at least d.Size() bytes.
func NewBufferFrom(d Dims, pix []byte) (*Buffer, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	} else if int64(len(pix)) < d.Size() {
		return nil, invalidf("buffer of %d bytes too small for %dx%d %s", len(pix), d.Width, d.Height, d.Shape)
	}
	return &Buffer{dims: d, pix: pix}, nil
}

func (b *Buffer) Dims() Dims { return b.dims }

func (b *Buffer) Buffer() []byte { return b.pix }

func (b *Buffer) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, invalidf("negative offset")
	} else if off >= int64(len(b.pix)) {
		return 0, io.EOF
	}
	n := copy(p, b.pix[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Pixel returns the channel bytes of the pixel at (x, y). The returned slice aliases the buffer.
func (b *Buffer) Pixel(x, y int) []byte {
	bpp := b.dims.Shape.BytesPerPixel()
	off := y*b.dims.Stride + x*bpp
	return b.pix[off : off+bpp : off+bpp]
}

// FromImage copies img into a non-premultiplied RGBA8888 buffer so filters
// see raw channel values. Images with an empty bounds yield an error.
func FromImage(img image.Image) (*Buffer, error) {
	r := img.Bounds()
	buf, err := NewBuffer(r.Dx(), r.Dy(), ShapeRGBA8888)
	if err != nil {
		return nil, err
	}
	rowLen := buf.dims.SizeRow()
	if src, ok := img.(*image.NRGBA); ok {
		for y := 0; y < r.Dy(); y++ {
			off := src.PixOffset(r.Min.X, r.Min.Y+y)
			copy(buf.pix[y*buf.dims.Stride:], src.Pix[off:off+rowLen])
		}
		return buf, nil
	}
	dst := &image.NRGBA{Pix: buf.pix, Stride: buf.dims.Stride, Rect: image.Rect(0, 0, r.Dx(), r.Dy())}
	draw.Draw(dst, dst.Rect, img, r.Min, draw.Src)
	return buf, nil
}

// ToImage returns the buffer as an [image.NRGBA]. RGBA8888 buffers are shared,
// not copied. RGB888 buffers are expanded with opaque alpha.
func (b *Buffer) ToImage() *image.NRGBA {
	rect := image.Rect(0, 0, b.dims.Width, b.dims.Height)
	switch b.dims.Shape {
	case ShapeRGBA8888:
		return &image.NRGBA{Pix: b.pix, Stride: b.dims.Stride, Rect: rect}
	}
	out := image.NewNRGBA(rect)
	bpp := b.dims.Shape.BytesPerPixel()
	for y := 0; y < b.dims.Height; y++ {
		srcRow := b.pix[y*b.dims.Stride:]
		dstRow := out.Pix[y*out.Stride:]
		for x := 0; x < b.dims.Width; x++ {
			s, d := srcRow[x*bpp:], dstRow[x*4:]
			d[0], d[1], d[2], d[3] = s[0], s[1], s[2], 255
		}
	}
	return out
}
