// Package rtaudio is the Public Facade (C7): backend selection, device
// enumeration, and the single entry point through which a client opens,
// drives and tears down one realtime audio stream at a time.
//
// Every exported type here is an alias onto the matching internal
// package's type, so a caller never has to import anything under
// internal/ directly — the facade is the library's entire public
// surface, grounded on the teacher's own `cmd`-thin/`internal`-heavy
// layout where all real logic lives under internal/ and the root of the
// module exposes only what a consumer needs.
package rtaudio

import (
	"fmt"
	"sync"
	"time"

	"github.com/ColonelBlimp/rtaudio/internal/backend"
	"github.com/ColonelBlimp/rtaudio/internal/device"
	"github.com/ColonelBlimp/rtaudio/internal/driver"
	"github.com/ColonelBlimp/rtaudio/internal/errs"
	"github.com/ColonelBlimp/rtaudio/internal/format"
	"github.com/ColonelBlimp/rtaudio/internal/stream"
)

// Version identifies this implementation, mirroring the original's
// getVersion() facade metadata (§3 supplemented features).
const Version = "rtaudio-go/1.0"

// Sample is the closed set of PCM sample formats, re-exported from
// internal/format so callers never import that package directly.
type Sample = format.Sample

const (
	SInt8   = format.SInt8
	SInt16  = format.SInt16
	SInt24  = format.SInt24
	SInt32  = format.SInt32
	Float32 = format.Float32
	Float64 = format.Float64
)

// Tag is the closed set of backend-selection string tags from spec §6.
type Tag = backend.Tag

const (
	ALSA        = backend.ALSA
	OSS         = backend.OSS
	Pulse       = backend.Pulse
	JACK        = backend.JACK
	Core        = backend.Core
	DSound      = backend.DSound
	WASAPI      = backend.WASAPI
	Dummy       = backend.Dummy
	Unspecified = backend.Unspecified
)

// Options mirrors spec §6's recognized per-direction stream options.
type Options = backend.Options

// Descriptor is the immutable per-enumeration-pass device snapshot.
type Descriptor = device.Descriptor

// State is one of the four stream lifecycle states.
type State = stream.State

const (
	Closed   = stream.Closed
	Stopped  = stream.Stopped
	Running  = stream.Running
	Stopping = stream.Stopping
)

// Status is the xrun bitmask the callback ABI reports per tick.
type Status = stream.Status

const (
	OutputUnderflow = stream.OutputUnderflow
	InputOverflow   = stream.InputOverflow
)

// ErrorKind is the closed error taxonomy of spec §7.
type ErrorKind = errs.Kind

const (
	Warning          = errs.Warning
	NoDevicesFound   = errs.NoDevicesFound
	InvalidDevice    = errs.InvalidDevice
	InvalidStream    = errs.InvalidStream
	InvalidUse       = errs.InvalidUse
	InvalidParameter = errs.InvalidParameter
	MemoryError      = errs.MemoryError
	DriverError      = errs.DriverError
	SystemError      = errs.SystemError
	ThreadError      = errs.ThreadError
)

// Callback is the client-facing ABI of spec §6:
// (output, input, frames, stream_time_seconds, status, user_context) ->
// 0 continue, 1 drain-and-stop, 2 abort.
type Callback = driver.Callback

// StreamParams is the caller-supplied request for one direction of a
// stream, per the parameters spec §4.3 opens against.
type StreamParams struct {
	DeviceIndex  int
	Channels     int
	FirstChannel int
	Format       Sample
	Options      Options
}

// OpenParams is everything needed to open a stream with one or both
// directions active; at least one of Output/Input must be non-nil.
// Populating both in a single call opens a duplex stream, per §4.7.
type OpenParams struct {
	SampleRate  float64
	BlockFrames int
	Output      *StreamParams
	Input       *StreamParams

	// NumberOfBuffers is not read by Open. The callback driver's drain
	// tail (§4.5 step 7) is sized by SetCallback's numberOfBuffers
	// argument, and the per-direction backend buffer count by
	// Options.NumberOfBuffers.
	NumberOfBuffers int
}

// Facade is one client's handle onto a selected backend: it owns at most
// one open stream and, in callback mode, the driver thread moving it.
type Facade struct {
	mu sync.Mutex

	backend  backend.Backend
	tag      Tag
	registry *device.Registry

	stream *stream.Stream
	driver *driver.Driver
}

// New selects a backend and enumerates its devices, per spec §4.7's
// "select a backend... enumerate devices" surface. An empty or
// "unspecified" tag auto-picks the first compiled, natively-available
// backend in priority order; any other recognized tag selects that
// backend explicitly. The dummy backend exists for tests and demos and
// must be requested by name.
func New(tag string) (*Facade, error) {
	var b backend.Backend
	var resolved Tag
	var err error

	parsed := backend.ParseTag(tag)
	if tag == "" || parsed == Unspecified {
		b, resolved, err = backend.PickDefault()
		if err != nil {
			return nil, errs.Wrap(errs.NoDevicesFound, "no backend available", err)
		}
	} else {
		b, err = backend.New(parsed)
		if err != nil {
			return nil, errs.Wrap(errs.InvalidParameter, fmt.Sprintf("backend %q", tag), err)
		}
		resolved = parsed
	}

	reg := device.NewRegistry()
	f := &Facade{backend: b, tag: resolved, registry: reg}
	if _, err := f.Refresh(); err != nil {
		return nil, err
	}
	return f, nil
}

// Backend reports the tag this facade resolved to.
func (f *Facade) Backend() Tag { return f.tag }

// CompiledBackends lists every backend tag this build can instantiate,
// in preference order, per the original's getCompiledApiList() (§3).
func CompiledBackends() []Tag { return backend.CompiledBackends() }

// DisplayName returns the human-readable name for a backend tag.
func DisplayName(t Tag) string { return backend.DisplayName(t) }

// SetShowWarnings toggles whether WARNING-kind reports reach the
// installed sink, mirroring RtAudio::showWarnings (§3 supplemented
// features). Defaults to true.
func SetShowWarnings(show bool) { errs.SetShowWarnings(show) }

// SetSink installs the process-wide diagnostic hook every warning and
// fatal error is routed through (§7). Passing nil restores the default
// stderr sink.
func SetSink(sink errs.Sink) { errs.SetSink(sink) }

// Refresh re-enumerates the selected backend's devices, atomically
// replacing the registry's descriptor snapshot (§4.2/§5). Returns the new
// device count.
func (f *Facade) Refresh() (int, error) {
	devs, err := f.backend.Enumerate()
	if err != nil {
		return 0, errs.Wrap(errs.NoDevicesFound, "enumerate", err)
	}
	f.registry.Refresh(devs)
	return len(devs), nil
}

// DeviceCount is the number of currently visible devices (§4.2 count()).
func (f *Facade) DeviceCount() int { return f.registry.Count() }

// DeviceInfo returns the descriptor at index, or the cached snapshot for
// a device this process already has open (§4.2 info()).
func (f *Facade) DeviceInfo(index int) (Descriptor, error) {
	return f.registry.Info(index)
}

// DefaultOutput is the index of the backend-declared default output
// device, falling back to the first probed device with output channels.
func (f *Facade) DefaultOutput() (int, error) { return f.registry.DefaultOutput() }

// DefaultInput is the index of the backend-declared default input
// device, falling back to the first probed device with input channels.
func (f *Facade) DefaultInput() (int, error) { return f.registry.DefaultInput() }

// Open negotiates and opens a stream with one or both directions active,
// per spec §4.3/§4.7. Opening a second stream on a Facade that already
// has one open is forbidden.
func (f *Facade) Open(p OpenParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stream != nil && f.stream.IsOpen() {
		return errs.New(errs.InvalidUse, "open: facade already has an open stream")
	}
	if p.Output == nil && p.Input == nil {
		return errs.New(errs.InvalidParameter, "open requires at least one of Output or Input")
	}

	spec := stream.OpenSpec{SampleRate: p.SampleRate, BlockFrames: p.BlockFrames}
	if p.Output != nil {
		spec.Output = toDirectionSpec(p.Output)
	}
	if p.Input != nil {
		spec.Input = toDirectionSpec(p.Input)
	}

	s, err := stream.Open(f.backend, f.registry, spec)
	if err != nil {
		return err
	}
	f.stream = s
	f.driver = nil
	return nil
}

func toDirectionSpec(p *StreamParams) *stream.DirectionSpec {
	return &stream.DirectionSpec{
		DeviceIndex:  p.DeviceIndex,
		UserChannels: p.Channels,
		FirstChannel: p.FirstChannel,
		UserFormat:   p.Format,
		Options:      p.Options,
	}
}

// SetCallback installs the client callback and starts this stream's
// driver goroutine in callback mode, per §4.5. It must be called after
// Open and before Start. userCtx is handed back on every invocation
// uninterpreted; numberOfBuffers sizes the drain tail (1 means "backend
// minimum").
func (f *Facade) SetCallback(cb Callback, userCtx any, numberOfBuffers int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stream == nil || !f.stream.IsOpen() {
		return errs.New(errs.InvalidUse, "set_callback: no open stream")
	}
	f.driver = driver.New(f.stream, cb, userCtx, numberOfBuffers)
	f.driver.Run()
	return nil
}

// Start transitions the stream STOPPED -> RUNNING (§4.3/§4.5 step 1-2).
func (f *Facade) Start() error {
	s, err := f.activeStream()
	if err != nil {
		return err
	}
	return s.Start()
}

// Stop drains pending data and transitions RUNNING -> STOPPED.
func (f *Facade) Stop() error {
	s, err := f.activeStream()
	if err != nil {
		return err
	}
	return s.Stop()
}

// Abort discards pending data and transitions RUNNING -> STOPPED.
func (f *Facade) Abort() error {
	s, err := f.activeStream()
	if err != nil {
		return err
	}
	return s.Abort()
}

// Tick performs one blocking-mode block transfer (§4.4 tick), for
// clients that drive the stream themselves instead of installing a
// callback via SetCallback.
func (f *Facade) Tick() (Status, error) {
	s, err := f.activeStream()
	if err != nil {
		return 0, err
	}
	return s.PerformTick()
}

// OutputBuffer is the buffer a blocking-mode client fills before Tick;
// nil if no output direction is active.
func (f *Facade) OutputBuffer() []byte {
	if f.stream == nil {
		return nil
	}
	return f.stream.OutputUserBuffer()
}

// InputBuffer is the buffer Tick fills for a blocking-mode client to
// read; nil if no input direction is active.
func (f *Facade) InputBuffer() []byte {
	if f.stream == nil {
		return nil
	}
	return f.stream.InputUserBuffer()
}

// Close releases the stream's native handles and, if a driver was
// started, waits for it to exit through Driver.Join, which has no time
// limit (§4.5 cancellation). Closing a
// Facade with no open stream is a non-fatal no-op.
func (f *Facade) Close() error {
	f.mu.Lock()
	s := f.stream
	d := f.driver
	f.mu.Unlock()

	if s == nil {
		errs.ReportWarning("close: facade has no open stream")
		return nil
	}
	if err := s.Close(); err != nil {
		return err
	}
	if d != nil {
		d.Join()
	}

	f.mu.Lock()
	f.stream = nil
	f.driver = nil
	f.mu.Unlock()
	return nil
}

func (f *Facade) activeStream() (*stream.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stream == nil {
		return nil, errs.New(errs.InvalidUse, "stream is not open")
	}
	return f.stream, nil
}

// IsOpen reports whether this facade currently owns an open stream.
func (f *Facade) IsOpen() bool {
	f.mu.Lock()
	s := f.stream
	f.mu.Unlock()
	return s != nil && s.IsOpen()
}

// IsRunning reports whether the open stream is in state RUNNING.
func (f *Facade) IsRunning() bool {
	f.mu.Lock()
	s := f.stream
	f.mu.Unlock()
	return s != nil && s.IsRunning()
}

// SampleRate is the negotiated stream sample rate; zero if no stream is
// open.
func (f *Facade) SampleRate() float64 {
	f.mu.Lock()
	s := f.stream
	f.mu.Unlock()
	if s == nil {
		return 0
	}
	return s.SampleRate()
}

// BlockFrames is the negotiated block size; zero if no stream is open.
func (f *Facade) BlockFrames() int {
	f.mu.Lock()
	s := f.stream
	f.mu.Unlock()
	if s == nil {
		return 0
	}
	return s.BlockFrames()
}

// Latency estimates the stream's one-block buffering delay;
// RtAudio::getStreamLatency()'s equivalent (§3). Zero if no stream is
// open.
func (f *Facade) Latency() time.Duration {
	f.mu.Lock()
	s := f.stream
	f.mu.Unlock()
	if s == nil {
		return 0
	}
	return s.Latency()
}

// StreamTime is the monotonic seconds accumulated since the stream was
// opened, per §4.5 step 6; Start does not reset it. Zero if no stream
// is open.
func (f *Facade) StreamTime() float64 {
	f.mu.Lock()
	s := f.stream
	f.mu.Unlock()
	if s == nil {
		return 0
	}
	return s.StreamTime()
}
