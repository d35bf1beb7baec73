package filters

import (
	"fmt"

	"github.com/soypat/unstamp"
)

// Band is an inclusive range of channel intensities subject to whitening.
type Band struct {
	Low, High uint8
}

// DefaultBand whitens mid-to-high intensities, which erases reddish stamps on scans.
var DefaultBand = Band{Low: 125, High: 255}

// NewBand validates integer bounds before narrowing them to a [Band].
// Values outside 0..255 are rejected rather than clamped.
func NewBand(low, high int) (Band, error) {
	if low < 0 || low > 255 || high < 0 || high > 255 {
		return Band{}, fmt.Errorf("%w: threshold band [%d,%d] outside 0..255", unstamp.ErrInvalidArgument, low, high)
	}
	b := Band{Low: uint8(low), High: uint8(high)}
	return b, b.Validate()
}

func (b Band) Validate() error {
	if b.Low > b.High {
		return fmt.Errorf("%w: low threshold %d above high threshold %d", unstamp.ErrInvalidArgument, b.Low, b.High)
	}
	return nil
}

// Contains reports whether Low <= v <= High.
func (b Band) Contains(v uint8) bool {
	return b.Low <= v && v <= b.High
}

func (b Band) String() string { return fmt.Sprintf("[%d,%d]", b.Low, b.High) }

// whitenRow sets red, green and blue to 255 for every pixel with any of
// those channels inside band. Channels past the third are copied untouched.
func whitenRow(dst, src []byte, bpp int, band *Band) {
	for i := 0; i+bpp <= len(src); i += bpp {
		r, g, b := src[i], src[i+1], src[i+2]
		if band.Contains(r) || band.Contains(g) || band.Contains(b) {
			dst[i], dst[i+1], dst[i+2] = 255, 255, 255
		} else {
			dst[i], dst[i+1], dst[i+2] = r, g, b
		}
		copy(dst[i+3:i+bpp], src[i+3:i+bpp])
	}
}

func checkShape(shape unstamp.Shape) error {
	switch shape {
	case unstamp.ShapeRGB888, unstamp.ShapeRGBA8888:
		return nil
	}
	return fmt.Errorf("%w: unsupported pixel shape %s", unstamp.ErrInvalidArgument, shape)
}

// Mode selects which parts of the erase transform a filter applies.
type Mode uint8

const (
	ModeErase  Mode = iota // rotate and whiten
	ModeWhiten             // whiten in place, no rotation
	ModeRotate             // rotate only
)

func (m Mode) String() string {
	switch m {
	case ModeErase:
		return "erase"
	case ModeWhiten:
		return "whiten"
	case ModeRotate:
		return "rotate"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// Validate reports an [unstamp.ErrInvalidArgument] error for unknown modes.
func (m Mode) Validate() error {
	if m > ModeRotate {
		return fmt.Errorf("%w: unknown mode %v", unstamp.ErrInvalidArgument, m)
	}
	return nil
}

// NewErase creates a filter that rotates the image 180 degrees and whitens
// pixels with any of red, green or blue inside band. Alpha is passed through.
func NewErase(shape unstamp.Shape, band Band) (*PointFilter, error) {
	return NewFilter(shape, band, ModeErase)
}

// NewWhiten creates a filter that whitens in-band pixels without moving them.
func NewWhiten(shape unstamp.Shape, band Band) (*PointFilter, error) {
	return NewFilter(shape, band, ModeWhiten)
}

// NewRotate creates a filter that only rotates the image 180 degrees.
// Applying it twice yields the original image.
func NewRotate(shape unstamp.Shape) (*PointFilter, error) {
	return NewFilter(shape, DefaultBand, ModeRotate)
}

// NewFilter creates the erase family filter for mode. Its controls are
// "Mode", "Low threshold" and "High threshold"; changing them reconfigures
// the returned filter for subsequent Process calls.
func NewFilter(shape unstamp.Shape, band Band, mode Mode) (*PointFilter, error) {
	if err := checkShape(shape); err != nil {
		return nil, err
	} else if err := band.Validate(); err != nil {
		return nil, err
	}
	bpp := shape.BytesPerPixel()
	whiten := false
	f := &PointFilter{
		In:  shape,
		Out: shape,
		Fn: func(dst, src []byte) {
			if whiten {
				whitenRow(dst, src, bpp, &band)
			} else {
				copy(dst, src)
			}
		},
	}
	modeCtrl := &unstamp.ControlEnum[Mode]{
		Name:        "Mode",
		Description: "Rotate and whiten, whiten only or rotate only",
		Value:       ModeErase,
		ValidValues: []Mode{ModeErase, ModeWhiten, ModeRotate},
		OnChange: func(m Mode) error {
			f.Rotate = m != ModeWhiten
			whiten = m != ModeRotate
			return nil
		},
	}
	low := &unstamp.ControlOrdered[uint8]{
		Name:        "Low threshold",
		Description: "Lowest channel intensity that triggers whitening",
		Value:       band.Low,
		Max:         255,
		Step:        1,
		OnChange: func(v uint8) error {
			nb := Band{Low: v, High: band.High}
			if err := nb.Validate(); err != nil {
				return err
			}
			band = nb // Seen by Fn on the next Process call.
			return nil
		},
	}
	high := &unstamp.ControlOrdered[uint8]{
		Name:        "High threshold",
		Description: "Highest channel intensity that triggers whitening",
		Value:       band.High,
		Max:         255,
		Step:        1,
		OnChange: func(v uint8) error {
			nb := Band{Low: band.Low, High: v}
			if err := nb.Validate(); err != nil {
				return err
			}
			band = nb
			return nil
		},
	}
	if err := modeCtrl.ChangeValue(mode); err != nil {
		return nil, err
	}
	f.Ctrls = []unstamp.Control{modeCtrl, low, high}
	return f, nil
}

// Erase returns a new image holding src rotated 180 degrees with in-band
// pixels whitened. src must be RGB888 or RGBA8888.
func Erase(src unstamp.Image, band Band) (*unstamp.Buffer, error) {
	d := src.Dims()
	f, err := NewErase(d.Shape, band)
	if err != nil {
		return nil, err
	}
	dst, err := unstamp.NewBuffer(d.Width, d.Height, d.Shape)
	if err != nil {
		return nil, err
	}
	if _, err := f.Process(dst.Buffer(), src, nil); err != nil {
		return nil, err
	}
	return dst, nil
}
