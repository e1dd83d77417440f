// Package driver implements the Callback Driver (C5): the long-lived,
// per-stream worker that repeatedly invokes the client's callback and
// moves one block through the stream per cycle, per spec §4.5.
package driver

import (
	"fmt"
	"runtime"

	"github.com/sourcegraph/conc"

	"github.com/ColonelBlimp/rtaudio/internal/errs"
	"github.com/ColonelBlimp/rtaudio/internal/stream"
)

// Callback is the engine-facing shape of the client-facing callback ABI
// from spec §6: (output, input, frames, stream_time, status, user_ctx)
// -> 0 continue, 1 drain-and-stop, 2 abort.
type Callback func(output, input []byte, frames int, streamTime float64, status stream.Status, userCtx any) int

const (
	continueCode = 0
	drainCode    = 1
	abortCode    = 2
)

// Driver owns the single OS-level goroutine spawned per stream in
// callback mode, per §4.5's "single OS-level thread is spawned per
// stream" model — Go's scheduler multiplexes goroutines onto OS
// threads, so a dedicated long-lived goroutine is the idiomatic
// equivalent here, the same substitution the teacher's capture.go makes
// for its one cancellation-watcher goroutine.
type Driver struct {
	s        *stream.Stream
	cb       Callback
	userCtx  any
	nBuffers int // used to size the drain-silence tail, §4.5 step 7
	done     chan struct{}
}

// New constructs a Driver for s. nBuffers is the backend's negotiated
// buffer count (spec option number_of_buffers, or the backend's
// minimum); the drain tail emits nBuffers+2 blocks of silence.
func New(s *stream.Stream, cb Callback, userCtx any, nBuffers int) *Driver {
	if nBuffers < 1 {
		nBuffers = 1
	}
	return &Driver{s: s, cb: cb, userCtx: userCtx, nBuffers: nBuffers, done: make(chan struct{})}
}

// Run spawns the driver loop and returns immediately; Join waits for it
// to exit. A panicking callback is recovered and reported as a
// DRIVER_ERROR rather than crashing the process, the same intent as the
// teacher's internal/recovery.HandlePanicFunc generalized from a
// one-shot cleanup call to a long-lived worker that must survive the
// panic and settle the stream into STOPPED.
func (d *Driver) Run() {
	var wg conc.WaitGroup
	wg.Go(d.loop)
	go func() {
		wg.Wait()
		close(d.done)
	}()
}

// Join blocks until the driver loop has exited. The wait has no time
// limit: if the loop never exits, Join never returns.
func (d *Driver) Join() {
	<-d.done
}

func (d *Driver) loop() {
	defer func() {
		if r := recover(); r != nil {
			errs.Report(errs.DriverError, fmt.Sprintf("callback driver panic: %v", r))
			_ = d.s.Abort()
		}
	}()

	if realtime, priority := d.s.RealtimeOptions(); realtime {
		// SCHED_FIFO is a per-thread attribute, so the goroutine must be
		// pinned to its OS thread before requesting it — otherwise Go's
		// scheduler is free to hand the next tick to a thread that never
		// asked for realtime priority.
		runtime.LockOSThread()
		if err := setRealtimeScheduling(priority); err != nil {
			errs.Report(errs.Warning, fmt.Sprintf("driver: realtime scheduling unavailable: %v", err))
		}
	}

	var lastStatus stream.Status

	for {
		// Step 1-2: block in STOPPED until RUNNING or CLOSED.
		state := d.s.WaitRunning()
		if state == stream.Closed || d.s.IsClosing() {
			return
		}

		// Step 3: invoke the client callback with the current buffers
		// and the status flags raised by the previous tick. `in` holds
		// whatever the previous iteration's tick captured (zero-valued
		// on the very first iteration, before any tick has run); `out`
		// is where the callback writes this block's playback data for
		// step 5's tick to pick up immediately after.
		out := d.s.OutputUserBuffer()
		in := d.s.InputUserBuffer()
		streamTime := d.s.StreamTime()

		code := d.cb(out, in, d.s.BlockFrames(), streamTime, lastStatus, d.userCtx)

		// Step 5: call tick (PerformTick holds the stream mutex except
		// around the backend's Tick call). This both writes out's
		// contents to the device and fills in with the next iteration's
		// capture.
		status, tickErr := d.s.PerformTick()
		if tickErr != nil {
			errs.Report(errs.Warning, fmt.Sprintf("driver tick: %v", tickErr))
		}
		lastStatus = status

		// Step 6: advance stream_time regardless of xruns.
		d.s.AdvanceTime()

		switch code {
		case continueCode:
			// loop again
		case drainCode:
			d.drainAndStop()
		case abortCode:
			_ = d.s.Abort()
		}

		if d.s.IsClosing() {
			return
		}
	}
}

// drainAndStop implements §4.5 step 7: RUNNING -> STOPPING, emit
// n_buffers+2 blocks of silence, then STOPPING -> STOPPED.
func (d *Driver) drainAndStop() {
	if err := d.s.BeginStopping(); err != nil {
		errs.Report(errs.Warning, fmt.Sprintf("drain: %v", err))
		return
	}
	out := d.s.OutputUserBuffer()
	for i := 0; i < d.nBuffers+2; i++ {
		for j := range out {
			out[j] = 0
		}
		if _, err := d.s.PerformTick(); err != nil {
			errs.Report(errs.Warning, fmt.Sprintf("drain tick %d: %v", i, err))
		}
		d.s.AdvanceTime()
	}
	d.s.FinishStopping()
}
