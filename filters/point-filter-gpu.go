package filters

import (
	_ "embed"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/soypat/unstamp"
)

//go:embed point-filter-gpu.wgsl
var baseShaderWGSL string

const (
	errGPUNotReady   = errorString("gpu filter not initialized")
	errShaderSnippet = errorString("shader snippet missing placeholder")
)

// PointFilterGPU runs a one-pixel-in one-pixel-out compute shader over
// packed RGBA8 pixels. Concrete filters embed it and supply the WGSL for
// the coordinate mapping and the colour transform.
type PointFilterGPU struct {
	mu       sync.Mutex
	res      gpuResources
	uniforms [4]float32 // width, height, param0, param1
	ready    bool
}

type gpuResources struct {
	device   *wgpu.Device
	queue    *wgpu.Queue
	module   *wgpu.ShaderModule
	pipeline *wgpu.ComputePipeline
	layout   *wgpu.BindGroupLayout
	uniform  *wgpu.Buffer

	// Sized to the last processed image and reused while dimensions match.
	src, dst, staging *wgpu.Buffer
	bind              *wgpu.BindGroup
	width, height     int
}

// InitMapped compiles the shader from a coordinate mapping and a colour transform.
// sourceCode must define: fn source(p: vec2<u32>, dims: vec2<u32>) -> vec2<u32>
// returning the source pixel read for destination pixel p.
// transformCode must define: fn transform(c: vec4<f32>) -> vec4<f32>
func (f *PointFilterGPU) InitMapped(device *wgpu.Device, queue *wgpu.Queue, sourceCode, transformCode string) error {
	shader, err := buildShader(sourceCode, transformCode)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.res.releaseAll()
	f.ready = false
	f.res.device, f.res.queue = device, queue
	if err := f.res.compile(shader); err != nil {
		f.res.releaseAll()
		return err
	}
	f.ready = true
	return nil
}

func buildShader(sourceCode, transformCode string) (string, error) {
	if !strings.Contains(sourceCode, "fn source(") || !strings.Contains(transformCode, "fn transform(") {
		return "", errShaderSnippet
	}
	r := strings.NewReplacer(
		"// SOURCE_PLACEHOLDER", sourceCode,
		"// TRANSFORM_PLACEHOLDER", transformCode,
	)
	return r.Replace(baseShaderWGSL), nil
}

func (r *gpuResources) compile(shader string) (err error) {
	r.module, err = r.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shader},
	})
	if err != nil {
		return fmt.Errorf("gpu shader module: %w", err)
	}
	r.pipeline, err = r.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Compute: wgpu.ProgrammableStageDescriptor{Module: r.module, EntryPoint: "main"},
	})
	if err != nil {
		return fmt.Errorf("gpu compute pipeline: %w", err)
	}
	r.layout = r.pipeline.GetBindGroupLayout(0)
	r.uniform, err = r.device.CreateBuffer(&wgpu.BufferDescriptor{
		Size:  16,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("gpu uniform buffer: %w", err)
	}
	return nil
}

// Process runs the shader over img and returns a newly allocated result of
// the same size. img must start at the origin with a tight stride.
func (f *PointFilterGPU) Process(img *image.NRGBA) (*image.NRGBA, error) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: empty image", unstamp.ErrInvalidArgument)
	} else if img.Rect.Min != (image.Point{}) || img.Stride != 4*w {
		return nil, fmt.Errorf("%w: GPU filter requires a tightly packed image at the origin", unstamp.ErrInvalidArgument)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.ready {
		return nil, errGPUNotReady
	}
	if err := f.res.resize(w, h); err != nil {
		return nil, err
	}
	f.uniforms[0], f.uniforms[1] = float32(w), float32(h)
	f.res.queue.WriteBuffer(f.res.uniform, 0, wgpu.ToBytes(f.uniforms[:]))
	f.res.queue.WriteBuffer(f.res.src, 0, img.Pix[:4*w*h])

	if err := f.res.run(); err != nil {
		return nil, err
	}
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	if err := f.res.readStaging(out.Pix); err != nil {
		return nil, err
	}
	return out, nil
}

// resize (re)allocates the per-image buffers and bind group for a w x h image.
func (r *gpuResources) resize(w, h int) (err error) {
	if w == r.width && h == r.height && r.bind != nil {
		return nil
	}
	r.releaseSized()
	size := uint64(4 * w * h)
	buffers := []struct {
		dst   **wgpu.Buffer
		usage wgpu.BufferUsage
		name  string
	}{
		{&r.src, wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst, "source"},
		{&r.dst, wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc, "destination"},
		{&r.staging, wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst, "staging"},
	}
	for _, b := range buffers {
		*b.dst, err = r.device.CreateBuffer(&wgpu.BufferDescriptor{Size: size, Usage: b.usage})
		if err != nil {
			r.releaseSized()
			return fmt.Errorf("gpu %s buffer: %w", b.name, err)
		}
	}
	r.bind, err = r.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: r.layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: r.uniform, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: r.src, Size: wgpu.WholeSize},
			{Binding: 2, Buffer: r.dst, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		r.releaseSized()
		return fmt.Errorf("gpu bind group: %w", err)
	}
	r.width, r.height = w, h
	return nil
}

// run dispatches the compute pass and copies its output into the staging
// buffer within a single submission.
func (r *gpuResources) run() error {
	encoder, err := r.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("gpu command encoder: %w", err)
	}
	defer encoder.Release()

	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(r.pipeline)
	pass.SetBindGroup(0, r.bind, nil)
	pass.DispatchWorkgroups(uint32((r.width+7)/8), uint32((r.height+7)/8), 1)
	pass.End()
	pass.Release()

	encoder.CopyBufferToBuffer(r.dst, 0, r.staging, 0, uint64(4*r.width*r.height))
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("gpu finish: %w", err)
	}
	r.queue.Submit(cmd)
	return nil
}

func (r *gpuResources) readStaging(dst []byte) error {
	size := uint64(4 * r.width * r.height)
	done := make(chan wgpu.BufferMapAsyncStatus, 1)
	r.staging.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		done <- status
	})
	r.device.Poll(true, nil)
	if status := <-done; status != wgpu.BufferMapAsyncStatusSuccess {
		return fmt.Errorf("gpu readback map failed: %v", status)
	}
	copy(dst, r.staging.GetMappedRange(0, uint(size)))
	r.staging.Unmap()
	return nil
}

func (r *gpuResources) releaseSized() {
	if r.bind != nil {
		r.bind.Release()
		r.bind = nil
	}
	for _, b := range []**wgpu.Buffer{&r.src, &r.dst, &r.staging} {
		if *b != nil {
			(*b).Release()
			*b = nil
		}
	}
	r.width, r.height = 0, 0
}

func (r *gpuResources) releaseAll() {
	r.releaseSized()
	if r.uniform != nil {
		r.uniform.Release()
		r.uniform = nil
	}
	if r.layout != nil {
		r.layout.Release()
		r.layout = nil
	}
	if r.pipeline != nil {
		r.pipeline.Release()
		r.pipeline = nil
	}
	if r.module != nil {
		r.module.Release()
		r.module = nil
	}
}

// Cleanup releases all GPU resources owned by the filter. The device and
// queue belong to the caller.
func (f *PointFilterGPU) Cleanup() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.res.releaseAll()
	f.ready = false
}

// SetParam sets shader parameter 0 or 1 (u.param0, u.param1). Other indices are ignored.
func (f *PointFilterGPU) SetParam(index int, value float32) {
	if index < 0 || index > 1 {
		return
	}
	f.mu.Lock()
	f.uniforms[2+index] = value
	f.mu.Unlock()
}

// PointFilterGPU works on *image.NRGBA so it deliberately does not satisfy unstamp.Filter.
var _ interface{ Controls() []unstamp.Control } = (*PointFilterGPU)(nil)

// Controls returns nil; filters embedding PointFilterGPU override it.
func (f *PointFilterGPU) Controls() []unstamp.Control { return nil }
