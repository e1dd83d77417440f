package backend

import (
	"fmt"
	"sync"

	"github.com/ColonelBlimp/rtaudio/internal/device"
	"github.com/ColonelBlimp/rtaudio/internal/format"
)

// VirtualDevice describes one device the Dummy adapter pretends to own.
// It exists so tests can reproduce spec §8's literal scenarios (E1-E6)
// without any real sound card, the same seam the teacher's capture.go
// keeps behind an injectable malgo context in capture_test.go.
type VirtualDevice struct {
	Name              string
	MaxOutputChannels int
	MaxInputChannels  int
	Rates             []float64
	Formats           []format.Sample
	DefaultOutput     bool
	DefaultInput      bool
}

// DefaultVirtualDevices reproduces spec §8 E1 literally: dev-A (2-out,
// rates 44100/48000, s16/f32) and dev-B (1-in, rates 16000/44100, s16).
func DefaultVirtualDevices() []VirtualDevice {
	return []VirtualDevice{
		{
			Name: "dev-A", MaxOutputChannels: 2,
			Rates:   []float64{44100, 48000},
			Formats: []format.Sample{format.SInt16, format.Float32},
			DefaultOutput: true,
		},
		{
			Name: "dev-B", MaxInputChannels: 1,
			Rates:   []float64{16000, 44100},
			Formats: []format.Sample{format.SInt16},
			DefaultInput: true,
		},
	}
}

// Dummy is a pure-Go, device-less Backend. It never touches real audio
// hardware: capture ticks are satisfied by an injectable CaptureSource
// (defaulting to silence) and playback ticks are handed to an injectable
// PlaybackSink (defaulting to a discard), so tests can assert on exactly
// what the engine would have written to, or read from, a device.
type Dummy struct {
	mu      sync.Mutex
	devices []VirtualDevice
}

// NewDummy constructs a Dummy backend over the given virtual devices. A
// nil/empty list uses DefaultVirtualDevices.
func NewDummy(devices []VirtualDevice) *Dummy {
	if len(devices) == 0 {
		devices = DefaultVirtualDevices()
	}
	return &Dummy{devices: devices}
}

func (d *Dummy) Tag() Tag { return Dummy }

func (d *Dummy) Enumerate() ([]device.Descriptor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]device.Descriptor, 0, len(d.devices))
	for _, vd := range d.devices {
		var mask uint32
		for _, f := range vd.Formats {
			mask |= format.MaskOf(f)
		}
		duplex := vd.MaxOutputChannels
		if vd.MaxInputChannels < duplex {
			duplex = vd.MaxInputChannels
		}
		out = append(out, device.Descriptor{
			Name:              vd.Name,
			Probed:            true,
			MaxOutputChannels: vd.MaxOutputChannels,
			MaxInputChannels:  vd.MaxInputChannels,
			MaxDuplexChannels: duplex,
			DiscreteRates:     append([]float64(nil), vd.Rates...),
			PreferredRate:     device.PreferredRate(vd.Rates),
			NativeFormatMask:  mask,
			DefaultOutput:     vd.DefaultOutput,
			DefaultInput:      vd.DefaultInput,
		})
	}
	return out, nil
}

// dummyHandle is the Handle ProbeOpen installs on a stream.
type dummyHandle struct {
	mu sync.Mutex

	deviceIndex    int
	outputActive   bool
	inputActive    bool
	blockFrames    int
	deviceFormat   format.Sample
	deviceChannels struct{ out, in int }

	running bool

	// CaptureSource fills one capture block of device-layout bytes; it
	// defaults to silence. PlaybackSink receives one written playback
	// block of device-layout bytes; it defaults to a discard. Tests set
	// these directly on the handle returned from ProbeOpen.
	CaptureSource func(buf []byte, frames int)
	PlaybackSink  func(buf []byte, frames int)
}

func (h *dummyHandle) Directions() (output, input bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outputActive, h.inputActive
}

func (d *Dummy) ProbeOpen(req OpenRequest) (OpenResult, error) {
	if req.DeviceIndex < 0 || req.DeviceIndex >= len(d.devices) {
		return OpenResult{}, fmt.Errorf("dummy: device index %d out of range", req.DeviceIndex)
	}
	vd := d.devices[req.DeviceIndex]

	var h *dummyHandle
	if req.Existing != nil {
		var ok bool
		h, ok = req.Existing.(*dummyHandle)
		if !ok {
			return OpenResult{}, fmt.Errorf("dummy: Existing handle of unexpected type")
		}
	} else {
		h = &dummyHandle{deviceIndex: req.DeviceIndex}
	}

	deviceChannels := req.UserChannels + req.FirstChannel
	switch req.Direction {
	case Output:
		if deviceChannels > vd.MaxOutputChannels {
			deviceChannels = vd.MaxOutputChannels
		}
		if deviceChannels < req.UserChannels+req.FirstChannel {
			return OpenResult{}, fmt.Errorf("dummy: device %q cannot supply %d output channels", vd.Name, req.UserChannels+req.FirstChannel)
		}
		h.outputActive = true
		h.deviceChannels.out = deviceChannels
	case Input:
		if deviceChannels > vd.MaxInputChannels {
			deviceChannels = vd.MaxInputChannels
		}
		if deviceChannels < req.UserChannels+req.FirstChannel {
			return OpenResult{}, fmt.Errorf("dummy: device %q cannot supply %d input channels", vd.Name, req.UserChannels+req.FirstChannel)
		}
		h.inputActive = true
		h.deviceChannels.in = deviceChannels
	}

	devFormat := chooseNativeFormat(req.UserFormat, vd.Formats)
	h.deviceFormat = devFormat

	block := req.BlockFrames
	if req.Options.MinimizeLatency {
		block = 2
	}
	if h.blockFrames != 0 && h.blockFrames != block {
		// Duplex promotion disagreeing on block size: spec §4.3 step 3
		// requires failing rather than silently picking one.
		return OpenResult{}, fmt.Errorf("dummy: duplex block size mismatch: have %d, want %d", h.blockFrames, block)
	}
	h.blockFrames = block

	return OpenResult{
		Handle:             h,
		DeviceFormat:       devFormat,
		DeviceChannels:     deviceChannels,
		Interleaved:        !req.Options.NonInterleaved,
		BlockFrames:        block,
		DeviceLittleEndian: true,
	}, nil
}

// chooseNativeFormat implements spec §4.3 step 1: prefer the user format
// if natively supported, else try f64, f32, s32, s24, s16, s8 in that
// order and accept the first natively supported one.
func chooseNativeFormat(user format.Sample, native []format.Sample) format.Sample {
	supports := func(s format.Sample) bool {
		for _, n := range native {
			if n == s {
				return true
			}
		}
		return false
	}
	if supports(user) {
		return user
	}
	for _, candidate := range []format.Sample{format.Float64, format.Float32, format.SInt32, format.SInt24, format.SInt16, format.SInt8} {
		if supports(candidate) {
			return candidate
		}
	}
	return user
}

func (d *Dummy) Start(h Handle) error {
	hh := h.(*dummyHandle)
	hh.mu.Lock()
	defer hh.mu.Unlock()
	hh.running = true
	return nil
}

func (d *Dummy) Stop(h Handle) error {
	hh := h.(*dummyHandle)
	hh.mu.Lock()
	defer hh.mu.Unlock()
	hh.running = false
	return nil
}

func (d *Dummy) Abort(h Handle) error {
	return d.Stop(h)
}

func (d *Dummy) Close(h Handle) error {
	hh := h.(*dummyHandle)
	hh.mu.Lock()
	defer hh.mu.Unlock()
	hh.running = false
	hh.outputActive = false
	hh.inputActive = false
	return nil
}

func (d *Dummy) Tick(h Handle, req TickRequest) error {
	hh := h.(*dummyHandle)
	hh.mu.Lock()
	src, sink := hh.CaptureSource, hh.PlaybackSink
	hh.mu.Unlock()

	if req.Capture != nil {
		if src != nil {
			src(req.Capture, req.CaptureFrames)
		} else {
			for i := range req.Capture {
				req.Capture[i] = 0
			}
		}
	}
	if req.Playback != nil && sink != nil {
		sink(req.Playback, req.PlaybackFrames)
	}
	return nil
}

func (d *Dummy) Ready(h Handle) (int, error) {
	hh := h.(*dummyHandle)
	hh.mu.Lock()
	defer hh.mu.Unlock()
	return hh.blockFrames, nil
}
