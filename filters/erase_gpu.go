package filters

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/soypat/unstamp"
)

const rotateSource = `
fn source(p: vec2<u32>, dims: vec2<u32>) -> vec2<u32> {
    return dims - vec2<u32>(1u, 1u) - p;
}
`

// Channels are compared as rounded bytes so results match the CPU filter exactly.
const eraseTransform = `
fn transform(c: vec4<f32>) -> vec4<f32> {
    let v = round(c.rgb * 255.0);
    let inBand = (v >= vec3<f32>(u.param0)) & (v <= vec3<f32>(u.param1));
    if (any(inBand)) {
        return vec4<f32>(1.0, 1.0, 1.0, c.a);
    }
    return c;
}
`

// EraseFilterGPU rotates an image 180 degrees and whitens in-band pixels using GPU compute.
// Only [ModeErase] and [ModeRotate] are supported on the GPU.
type EraseFilterGPU struct {
	PointFilterGPU
	stateMu sync.Mutex // guards band and mode together with the uploaded params
	band    Band
	mode    Mode

	modeCtrl *unstamp.ControlEnum[Mode]
	lowCtrl  *unstamp.ControlOrdered[uint8]
	highCtrl *unstamp.ControlOrdered[uint8]
}

// NewEraseGPU creates a GPU-accelerated erase filter.
func NewEraseGPU(device *wgpu.Device, queue *wgpu.Queue, band Band) (*EraseFilterGPU, error) {
	if err := band.Validate(); err != nil {
		return nil, err
	}
	f := &EraseFilterGPU{}
	if err := f.InitMapped(device, queue, rotateSource, eraseTransform); err != nil {
		return nil, err
	}
	f.modeCtrl = &unstamp.ControlEnum[Mode]{
		Name:        "Mode",
		Description: "Rotate and whiten or rotate only",
		Value:       ModeErase,
		ValidValues: []Mode{ModeErase, ModeRotate},
		OnChange:    f.SetMode,
	}
	f.lowCtrl = &unstamp.ControlOrdered[uint8]{
		Name:        "Low threshold",
		Description: "Lowest channel intensity that triggers whitening",
		Value:       band.Low,
		Max:         255,
		Step:        1,
		OnChange: func(v uint8) error {
			return f.updateBand(func(b *Band) { b.Low = v })
		},
	}
	f.highCtrl = &unstamp.ControlOrdered[uint8]{
		Name:        "High threshold",
		Description: "Highest channel intensity that triggers whitening",
		Value:       band.High,
		Max:         255,
		Step:        1,
		OnChange: func(v uint8) error {
			return f.updateBand(func(b *Band) { b.High = v })
		},
	}
	f.SetBand(band)
	return f, nil
}

// updateBand applies fn to a copy of the band and stores it if valid.
// The mode is left as is, so thresholds can be edited while whitening is off.
func (f *EraseFilterGPU) updateBand(fn func(*Band)) error {
	f.stateMu.Lock()
	defer f.stateMu.Unlock()
	nb := f.band
	fn(&nb)
	if err := nb.Validate(); err != nil {
		return err
	}
	f.band = nb
	f.uploadLocked()
	return nil
}

// uploadLocked writes the shader params for the current band and mode
// and mirrors them into the controls.
func (f *EraseFilterGPU) uploadLocked() {
	if f.modeCtrl != nil {
		f.modeCtrl.Value = f.mode
		f.lowCtrl.Value, f.highCtrl.Value = f.band.Low, f.band.High
	}
	if f.mode == ModeRotate {
		// Empty band: no byte value lies in [256,-1].
		f.SetParam(0, 256)
		f.SetParam(1, -1)
		return
	}
	f.SetParam(0, float32(f.band.Low))
	f.SetParam(1, float32(f.band.High))
}

// SetBand sets the whitening band and enables whitening. The band is not validated.
func (f *EraseFilterGPU) SetBand(b Band) {
	f.stateMu.Lock()
	defer f.stateMu.Unlock()
	f.band = b
	f.mode = ModeErase
	f.uploadLocked()
}

// Band returns the configured whitening band. It is kept while whitening is disabled.
func (f *EraseFilterGPU) Band() Band {
	f.stateMu.Lock()
	defer f.stateMu.Unlock()
	return f.band
}

// Mode reports whether the filter currently whitens ([ModeErase]) or only rotates ([ModeRotate]).
func (f *EraseFilterGPU) Mode() Mode {
	f.stateMu.Lock()
	defer f.stateMu.Unlock()
	return f.mode
}

// SetMode switches between [ModeErase] and [ModeRotate].
func (f *EraseFilterGPU) SetMode(m Mode) error {
	if m != ModeErase && m != ModeRotate {
		return fmt.Errorf("%w: mode %v not supported on GPU", unstamp.ErrInvalidArgument, m)
	}
	f.stateMu.Lock()
	defer f.stateMu.Unlock()
	f.mode = m
	f.uploadLocked()
	return nil
}

// DisableWhitening leaves pixels untouched so only the rotation applies.
// Equivalent to SetMode(ModeRotate).
func (f *EraseFilterGPU) DisableWhitening() {
	f.SetMode(ModeRotate)
}

// Controls returns the filter's adjustable parameters.
func (f *EraseFilterGPU) Controls() []unstamp.Control {
	return []unstamp.Control{f.modeCtrl, f.lowCtrl, f.highCtrl}
}

// ErrNoGPU is returned by [OpenGPU] when no WebGPU adapter or device is available.
var ErrNoGPU = errors.New("no WebGPU device available")

// OpenGPU acquires a WebGPU device and queue. The returned release function
// frees them and must be called once the filters using them are cleaned up.
func OpenGPU() (*wgpu.Device, *wgpu.Queue, func(), error) {
	instance := wgpu.CreateInstance(nil)
	if instance == nil {
		return nil, nil, nil, ErrNoGPU
	}

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, nil, nil, fmt.Errorf("%w: adapter: %w", ErrNoGPU, err)
	}

	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, nil, nil, fmt.Errorf("%w: device: %w", ErrNoGPU, err)
	}

	queue := device.GetQueue()
	release := func() {
		queue.Release()
		device.Release()
		adapter.Release()
		instance.Release()
	}
	return device, queue, release, nil
}
