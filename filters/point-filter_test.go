package filters

import (
	"context"
	"errors"
	"image"
	"io"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/soypat/unstamp"
)

// readerImage hides the in-memory buffer so filters must go through ReadAt.
type readerImage struct {
	b *unstamp.Buffer
}

func (r readerImage) Dims() unstamp.Dims { return r.b.Dims() }

func (r readerImage) ReadAt(p []byte, off int64) (int, error) { return r.b.ReadAt(p, off) }

// shortImage returns fewer bytes than asked for without reporting an error.
type shortImage struct{ readerImage }

func (s shortImage) ReadAt(p []byte, off int64) (int, error) {
	return s.readerImage.ReadAt(p[:len(p)/2], off)
}

func TestPointFilterWorkersMatchSequential(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	src := randomImage(rng, 57, 103, unstamp.ShapeRGBA8888)
	seq, err := Erase(src, DefaultBand)
	if err != nil {
		t.Fatal(err)
	}
	for _, workers := range []int{2, 3, 8, 200} {
		f, err := NewErase(unstamp.ShapeRGBA8888, DefaultBand)
		if err != nil {
			t.Fatal(err)
		}
		f.Workers = workers
		dst := make([]byte, len(seq.Buffer()))
		if _, err := f.Process(dst, src, nil); err != nil {
			t.Fatalf("workers=%d: %v", workers, err)
		}
		if diff := cmp.Diff(seq.Buffer(), dst); diff != "" {
			t.Errorf("workers=%d differs from sequential (-want +got):\n%s", workers, diff)
		}
	}
}

func TestPointFilterReadAtSource(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	src := randomImage(rng, 13, 9, unstamp.ShapeRGB888)
	want, err := Erase(src, DefaultBand)
	if err != nil {
		t.Fatal(err)
	}
	for _, workers := range []int{0, 4} {
		f, err := NewErase(unstamp.ShapeRGB888, DefaultBand)
		if err != nil {
			t.Fatal(err)
		}
		f.Workers = workers
		dst := make([]byte, len(want.Buffer()))
		if _, err := f.Process(dst, readerImage{src}, nil); err != nil {
			t.Fatalf("workers=%d: %v", workers, err)
		}
		if diff := cmp.Diff(want.Buffer(), dst); diff != "" {
			t.Errorf("workers=%d ReadAt source mismatch (-want +got):\n%s", workers, diff)
		}
	}
}

func TestPointFilterShortRead(t *testing.T) {
	src := newImage(t, 4, 3, unstamp.ShapeRGBA8888, make([]byte, 4*3*4))
	for _, workers := range []int{0, 3} {
		f, err := NewErase(unstamp.ShapeRGBA8888, DefaultBand)
		if err != nil {
			t.Fatal(err)
		}
		f.Workers = workers
		_, err = f.Process(make([]byte, 4*3*4), shortImage{readerImage{src}}, nil)
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("workers=%d: want io.ErrUnexpectedEOF, got %v", workers, err)
		}
	}
}

func TestPointFilterCancel(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	src := randomImage(rng, 8, 8, unstamp.ShapeRGBA8888)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, workers := range []int{1, 4} {
		f, err := NewErase(unstamp.ShapeRGBA8888, DefaultBand)
		if err != nil {
			t.Fatal(err)
		}
		f.Workers = workers
		_, err = f.ProcessContext(ctx, make([]byte, 8*8*4), src, nil)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("workers=%d: want context.Canceled, got %v", workers, err)
		}
	}
}

func TestPointFilterRotateRejectsAliasing(t *testing.T) {
	src := newImage(t, 2, 2, unstamp.ShapeRGB888, make([]byte, 12))
	f, err := NewErase(unstamp.ShapeRGB888, DefaultBand)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Process(nil, src, nil); !errors.Is(err, unstamp.ErrInvalidArgument) {
		t.Errorf("nil dst: want ErrInvalidArgument, got %v", err)
	}
	if _, err := f.Process(src.Buffer(), src, nil); !errors.Is(err, unstamp.ErrInvalidArgument) {
		t.Errorf("aliased dst: want ErrInvalidArgument, got %v", err)
	}
	if _, err := f.Process(src.Buffer()[3:], src, nil); !errors.Is(err, unstamp.ErrInvalidArgument) {
		t.Errorf("overlapping dst: want ErrInvalidArgument, got %v", err)
	}
}

func TestPointFilterErrors(t *testing.T) {
	src := newImage(t, 2, 2, unstamp.ShapeRGB888, make([]byte, 12))
	var nilFn PointFilter
	nilFn.In, nilFn.Out = unstamp.ShapeRGB888, unstamp.ShapeRGB888
	if _, err := nilFn.Process(make([]byte, 12), src, nil); err != errNilPointFunc {
		t.Errorf("want errNilPointFunc, got %v", err)
	}

	mixed := &PointFilter{In: unstamp.ShapeRGB888, Out: unstamp.ShapeRGBA8888, Fn: func(dst, src []byte) {}, Rotate: true}
	if _, err := mixed.Process(make([]byte, 16), src, nil); !errors.Is(err, unstamp.ErrInvalidArgument) {
		t.Errorf("rotate with shape change: want ErrInvalidArgument, got %v", err)
	}

	f, err := NewErase(unstamp.ShapeRGB888, DefaultBand)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Process(make([]byte, 11), src, nil); !errors.Is(err, unstamp.ErrInvalidArgument) {
		t.Errorf("short dst: want ErrInvalidArgument, got %v", err)
	}
	roi := image.Rect(1, 1, 3, 2)
	if _, err := f.Process(make([]byte, 12), src, &roi); !errors.Is(err, unstamp.ErrInvalidArgument) {
		t.Errorf("ROI out of bounds: want ErrInvalidArgument, got %v", err)
	}
}
