package stream

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ColonelBlimp/rtaudio/internal/backend"
	"github.com/ColonelBlimp/rtaudio/internal/device"
	"github.com/ColonelBlimp/rtaudio/internal/errs"
	"github.com/ColonelBlimp/rtaudio/internal/format"
)

// Stream owns a single stream's configuration, buffers, conversion
// plan and state machine, per spec §3/§4.3. It exclusively owns its
// buffers, its backend handle(s), its mutex and condition variable; the
// driver thread (C5) is the only other party allowed to touch it, and
// only through the exported methods below.
type Stream struct {
	mu   sync.Mutex
	cond *sync.Cond

	state    State
	terminal bool // Close has been requested; driver must exit

	backend  backend.Backend
	registry *device.Registry

	sampleRate  float64
	blockFrames int

	output *directionState
	input  *directionState

	// deviceBuf is the single shared device-layout scratch allocation,
	// per §3's "at most one shared device-side scratch buffer" rule. A
	// true duplex tick needs its capture and playback halves to hold
	// distinct bytes at once (the backend's Tick call receives both
	// simultaneously), so the two live in disjoint regions of this one
	// allocation rather than aliasing the same bytes; captureRegion/
	// playbackRegion below are simply deviceBuf sliced at open time.
	deviceBuf      []byte
	captureRegion  []byte
	playbackRegion []byte

	streamTimeBits atomic.Uint64
}

// Open implements §4.3 steps 1-8: negotiate device format/channels/rate/
// block size for each requested direction, compute the convert plan,
// allocate buffers, and transition CLOSED -> STOPPED.
func Open(b backend.Backend, reg *device.Registry, spec OpenSpec) (*Stream, error) {
	if spec.Output == nil && spec.Input == nil {
		return nil, errs.New(errs.InvalidParameter, "open requires at least one of Output or Input")
	}

	s := &Stream{backend: b, registry: reg, sampleRate: spec.SampleRate, blockFrames: spec.BlockFrames}
	s.cond = sync.NewCond(&s.mu)

	var outRes, inRes backend.OpenResult
	var outHandle backend.Handle

	if spec.Output != nil {
		res, err := probeDirection(b, backend.Output, spec, spec.Output, nil)
		if err != nil {
			return nil, err
		}
		outRes = res
		outHandle = res.Handle
		s.output = newDirectionState(spec.Output, res, !spec.Output.Options.NonInterleaved)
		s.output.buildOutputPlan()
		reg.MarkOpen(spec.Output.DeviceIndex, mustInfo(reg, spec.Output.DeviceIndex))
	}

	if spec.Input != nil {
		var existing backend.Handle
		if spec.Output != nil && spec.Input.DeviceIndex == spec.Output.DeviceIndex {
			existing = outHandle
		}
		res, err := probeDirection(b, backend.Input, spec, spec.Input, existing)
		if err != nil {
			if s.output != nil {
				_ = b.Close(s.output.handle)
				reg.MarkClosed(spec.Output.DeviceIndex)
			}
			return nil, err
		}
		inRes = res
		s.input = newDirectionState(spec.Input, res, !spec.Input.Options.NonInterleaved)
		s.input.buildInputPlan()
		reg.MarkOpen(spec.Input.DeviceIndex, mustInfo(reg, spec.Input.DeviceIndex))

		// §4.3 step 3: duplex directions must agree on negotiated block
		// size.
		if spec.Output != nil && outRes.BlockFrames != inRes.BlockFrames {
			_ = b.Close(s.output.handle)
			_ = b.Close(s.input.handle)
			return nil, errs.New(errs.InvalidStream, fmt.Sprintf(
				"duplex block size mismatch: output=%d input=%d", outRes.BlockFrames, inRes.BlockFrames))
		}
	}

	if spec.Output != nil {
		s.blockFrames = outRes.BlockFrames
	} else {
		s.blockFrames = inRes.BlockFrames
	}

	s.allocateBuffers()
	s.state = Stopped
	return s, nil
}

func probeDirection(b backend.Backend, dir backend.Direction, spec OpenSpec, ds *DirectionSpec, existing backend.Handle) (backend.OpenResult, error) {
	res, err := b.ProbeOpen(backend.OpenRequest{
		DeviceIndex:  ds.DeviceIndex,
		Direction:    dir,
		UserChannels: ds.UserChannels,
		FirstChannel: ds.FirstChannel,
		SampleRate:   spec.SampleRate,
		UserFormat:   ds.UserFormat,
		BlockFrames:  spec.BlockFrames,
		Options:      ds.Options,
		Existing:     existing,
	})
	if err != nil {
		return backend.OpenResult{}, errs.Wrap(errs.InvalidDevice, fmt.Sprintf("probe_open %s direction", dir), err)
	}
	return res, nil
}

func mustInfo(reg *device.Registry, index int) device.Descriptor {
	d, err := reg.Info(index)
	if err != nil {
		return device.Descriptor{}
	}
	return d
}

// allocateBuffers implements §4.3 step 6: per-direction user buffers,
// plus one shared device scratch buffer sized to the larger of the two
// directions' requirements, allocated only if at least one direction
// needs conversion.
func (s *Stream) allocateBuffers() {
	captureSize, playbackSize := 0, 0

	if s.output != nil {
		s.output.userBuf = make([]byte, s.output.userBufferSize(s.blockFrames))
		if s.output.needsConvert {
			playbackSize = s.output.deviceFrameSize() * s.blockFrames
		}
	}
	if s.input != nil {
		s.input.userBuf = make([]byte, s.input.userBufferSize(s.blockFrames))
		if s.input.needsConvert {
			captureSize = s.input.deviceFrameSize() * s.blockFrames
		}
	}

	if captureSize+playbackSize == 0 {
		return
	}
	// Both directions active and converting needs disjoint bytes held
	// simultaneously across one backend Tick call; a single direction
	// reuses the whole allocation every tick, matching §3's "at most
	// one shared device-side scratch buffer" for the simplex case.
	if captureSize > 0 && playbackSize > 0 {
		s.deviceBuf = make([]byte, captureSize+playbackSize)
		s.captureRegion = s.deviceBuf[:captureSize]
		s.playbackRegion = s.deviceBuf[captureSize:]
		return
	}
	size := captureSize + playbackSize
	s.deviceBuf = make([]byte, size)
	s.captureRegion = s.deviceBuf
	s.playbackRegion = s.deviceBuf
}

// --- read-only accessors, safe without holding mu ---

func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Stream) IsOpen() bool { return s.State() != Closed }

func (s *Stream) IsRunning() bool { return s.State() == Running }

func (s *Stream) HasOutput() bool { return s.output != nil }
func (s *Stream) HasInput() bool  { return s.input != nil }

func (s *Stream) SampleRate() float64 { return s.sampleRate }
func (s *Stream) BlockFrames() int    { return s.blockFrames }

// Latency estimates one block's worth of buffering delay.
func (s *Stream) Latency() time.Duration {
	if s.sampleRate <= 0 {
		return 0
	}
	seconds := float64(s.blockFrames) / s.sampleRate
	return time.Duration(seconds * float64(time.Second))
}

// RealtimeOptions reports whether either active direction requested
// realtime scheduling for the driver thread (the schedule_realtime
// stream option, §6) and the priority to request; the higher of the
// two directions' priorities wins when both ask for it.
func (s *Stream) RealtimeOptions() (realtime bool, priority int) {
	if s.output != nil && s.output.options.ScheduleRealtime {
		realtime = true
		priority = s.output.options.Priority
	}
	if s.input != nil && s.input.options.ScheduleRealtime {
		realtime = true
		if s.input.options.Priority > priority {
			priority = s.input.options.Priority
		}
	}
	return
}

func (s *Stream) StreamTime() float64 {
	return math.Float64frombits(s.streamTimeBits.Load())
}

// AdvanceTime advances stream_time by block_frames/sample_rate
// regardless of xruns, per §4.5 step 6, and returns the new value.
func (s *Stream) AdvanceTime() float64 {
	for {
		old := s.streamTimeBits.Load()
		next := math.Float64frombits(old) + float64(s.blockFrames)/s.sampleRate
		if s.streamTimeBits.CompareAndSwap(old, math.Float64bits(next)) {
			return next
		}
	}
}

// OutputUserBuffer is the buffer the client callback fills with
// user-layout PCM before PerformTick is called. Nil if no output
// direction is active.
func (s *Stream) OutputUserBuffer() []byte {
	if s.output == nil {
		return nil
	}
	return s.output.userBuf
}

// InputUserBuffer is the buffer PerformTick fills with user-layout PCM;
// the client callback reads it after PerformTick returns. Nil if no
// input direction is active.
func (s *Stream) InputUserBuffer() []byte {
	if s.input == nil {
		return nil
	}
	return s.input.userBuf
}

// --- state machine ---

// Start implements STOPPED -> RUNNING. Starting an already-running
// stream is a non-fatal no-op, per §7's misuse policy.
func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Running:
		errs.ReportWarning("start: stream is already running")
		return nil
	case Closed:
		return errs.New(errs.InvalidUse, "start: stream is not open")
	}

	if s.output != nil {
		if err := s.backend.Start(s.output.handle); err != nil {
			return err
		}
	}
	if s.input != nil && (s.output == nil || s.input.handle != s.output.handle) {
		if err := s.backend.Start(s.input.handle); err != nil {
			return err
		}
	}
	s.state = Running
	s.cond.Broadcast()
	return nil
}

// Stop implements RUNNING -> STOPPED, draining pending data at the
// backend level.
func (s *Stream) Stop() error {
	return s.halt(false)
}

// Abort implements RUNNING -> STOPPED, discarding pending data.
func (s *Stream) Abort() error {
	return s.halt(true)
}

func (s *Stream) halt(discard bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Running && s.state != Stopping {
		errs.ReportWarning("stop/abort: stream is not running")
		return nil
	}

	var err error
	for _, h := range s.activeHandlesLocked() {
		if discard {
			err = s.backend.Abort(h)
		} else {
			err = s.backend.Stop(h)
		}
		if err != nil {
			errs.Report(errs.DriverError, err.Error())
		}
	}
	s.state = Stopped
	s.cond.Broadcast()
	return nil
}

// BeginStopping implements RUNNING -> STOPPING: the driver calls this
// when the client callback requests drain-and-stop, before it emits the
// trailing silence blocks §4.5 step 7 requires.
func (s *Stream) BeginStopping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Running {
		return errs.New(errs.InvalidUse, "begin_stopping: stream is not running")
	}
	s.state = Stopping
	return nil
}

// FinishStopping implements STOPPING -> STOPPED once the driver has
// finished emitting trailing silence.
func (s *Stream) FinishStopping() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Stopped
	s.cond.Broadcast()
}

// Close implements any -> CLOSED. From RUNNING it behaves as abort
// followed by close, per invariant 5.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		errs.ReportWarning("close: stream is already closed")
		return nil
	}
	wasRunning := s.state == Running || s.state == Stopping
	s.terminal = true
	s.mu.Unlock()

	if wasRunning {
		_ = s.Abort()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, h := range s.activeHandlesLocked() {
		if err := s.backend.Close(h); err != nil {
			errs.Report(errs.DriverError, err.Error())
		}
	}
	if s.output != nil {
		s.registry.MarkClosed(s.output.deviceIndex)
	}
	if s.input != nil {
		s.registry.MarkClosed(s.input.deviceIndex)
	}
	s.state = Closed
	s.cond.Broadcast()
	return nil
}

// activeHandlesLocked returns the distinct backend handles this stream
// owns (one, or two for a duplex stream spanning separate devices). mu
// must already be held.
func (s *Stream) activeHandlesLocked() []backend.Handle {
	var out []backend.Handle
	if s.output != nil {
		out = append(out, s.output.handle)
	}
	if s.input != nil && (s.output == nil || s.input.handle != s.output.handle) {
		out = append(out, s.input.handle)
	}
	return out
}

// IsClosing reports whether Close has been requested, for the driver's
// loop-exit check.
func (s *Stream) IsClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminal
}

// WaitRunning blocks while the stream is STOPPED, waking when it
// becomes RUNNING or CLOSED, per §4.5 step 1-2.
func (s *Stream) WaitRunning() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.state == Stopped {
		s.cond.Wait()
	}
	return s.state
}

// --- tick ---

// PerformTick executes one block of the §4.4 tick contract: capture
// first (device -> convert -> user buffer), then playback (user buffer
// -> convert -> device), applying byte-swap at the device-buffer
// boundary. OutputUserBuffer must already hold the block to play before
// this is called; InputUserBuffer holds the captured block afterward.
func (s *Stream) PerformTick() (Status, error) {
	s.mu.Lock()

	var status Status
	req := backend.TickRequest{}

	if s.input != nil {
		if s.input.needsConvert {
			req.Capture = s.captureRegion[:s.input.deviceFrameSize()*s.blockFrames]
		} else {
			req.Capture = s.input.userBuf
		}
		req.CaptureFrames = s.blockFrames
	}
	if s.output != nil {
		if s.output.needsConvert {
			playBuf := s.playbackRegion[:s.output.deviceFrameSize()*s.blockFrames]
			p := s.output.plan
			format.Convert(playBuf, p.DstFormat, p.DstChannels, p.DstInterleaved,
				s.output.userBuf, p.SrcFormat, p.SrcChannels, p.SrcInterleaved, s.blockFrames)
			if s.output.doByteSwap {
				format.ByteSwap(playBuf, s.blockFrames*s.output.deviceChannels, s.output.deviceFormat)
			}
			req.Playback = playBuf
		} else {
			req.Playback = s.output.userBuf
		}
		req.PlaybackFrames = s.blockFrames
	}

	handle := s.tickHandle()

	// backend.Tick can block indefinitely on a stalled device (a full
	// playback ring or a capture underrun); holding mu across that call
	// would transitively wedge Start/Stop/Abort/Close, which must never
	// block on the device itself (§5). Release it here and re-acquire
	// only to fold the result back into the input buffer.
	s.mu.Unlock()
	tickErr := s.backend.Tick(handle, req)
	s.mu.Lock()
	defer s.mu.Unlock()

	if tickErr != nil {
		errs.Report(errs.Warning, fmt.Sprintf("tick: %v", tickErr))
		status |= OutputUnderflow | InputOverflow
	}

	if s.input != nil && s.input.needsConvert {
		if s.input.doByteSwap {
			format.ByteSwap(req.Capture, s.blockFrames*s.input.deviceChannels, s.input.deviceFormat)
		}
		p := s.input.plan
		format.Convert(s.input.userBuf, p.DstFormat, p.DstChannels, p.DstInterleaved,
			req.Capture, p.SrcFormat, p.SrcChannels, p.SrcInterleaved, s.blockFrames)
	}

	return status, nil
}

// tickHandle picks whichever handle is active; for a true duplex stream
// on one device the two directions share a single handle.
func (s *Stream) tickHandle() backend.Handle {
	if s.output != nil {
		return s.output.handle
	}
	return s.input.handle
}
