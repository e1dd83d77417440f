package driver

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/ColonelBlimp/rtaudio/internal/backend"
	"github.com/ColonelBlimp/rtaudio/internal/device"
	"github.com/ColonelBlimp/rtaudio/internal/format"
	"github.com/ColonelBlimp/rtaudio/internal/stream"
)

func openTestStream(t *testing.T, blockFrames int) *stream.Stream {
	t.Helper()
	b := backend.NewDummy(nil)
	devs, err := b.Enumerate()
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	reg := device.NewRegistry()
	reg.Refresh(devs)

	s, err := stream.Open(b, reg, stream.OpenSpec{
		SampleRate: 44100, BlockFrames: blockFrames,
		Output: &stream.DirectionSpec{DeviceIndex: 0, UserChannels: 2, UserFormat: format.SInt16},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

// TestDrainOnCallbackReturn1 reproduces spec §8 E5: the callback returns
// 1 on its 10th invocation, the driver emits n_buffers+2 silent blocks,
// transitions to STOPPED, and a subsequent start() resumes with
// stream_time preserved.
func TestDrainOnCallbackReturn1(t *testing.T) {
	s := openTestStream(t, 64)
	var invocations atomic.Int64

	cb := func(output, input []byte, frames int, streamTime float64, status stream.Status, userCtx any) int {
		n := invocations.Add(1)
		if n == 10 {
			return drainCode
		}
		return continueCode
	}

	d := New(s, cb, nil, 2)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	d.Run()

	deadline := time.After(2 * time.Second)
	for s.State() != stream.Stopped {
		select {
		case <-deadline:
			t.Fatalf("stream did not reach Stopped after drain, state=%v", s.State())
		default:
			time.Sleep(time.Millisecond)
		}
	}

	preserved := s.StreamTime()
	if preserved <= 0 {
		t.Fatalf("stream_time should be preserved and positive, got %v", preserved)
	}
	// 10 callback ticks plus nBuffers+2 = 4 silent drain ticks.
	wantTime := 14 * 64.0 / 44100.0
	if diff := preserved - wantTime; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("stream_time after drain = %v, want %v (10 blocks + 4 silent blocks)", preserved, wantTime)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("re-Start after drain: %v", err)
	}
	if s.State() != stream.Running {
		t.Fatalf("State() after re-Start = %v, want Running", s.State())
	}
	if got := s.StreamTime(); got < preserved {
		t.Fatalf("stream_time regressed after re-Start: %v -> %v", preserved, got)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	d.Join()
}

// TestAbortOnCallbackReturn2 reproduces spec §8 E6: the callback returns
// 2 on its 5th invocation and the stream reaches STOPPED with no further
// callback invocations.
func TestAbortOnCallbackReturn2(t *testing.T) {
	s := openTestStream(t, 64)
	var invocations atomic.Int64

	cb := func(output, input []byte, frames int, streamTime float64, status stream.Status, userCtx any) int {
		n := invocations.Add(1)
		if n == 5 {
			return abortCode
		}
		return continueCode
	}

	d := New(s, cb, nil, 2)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	d.Run()

	deadline := time.After(2 * time.Second)
	for s.State() != stream.Stopped {
		select {
		case <-deadline:
			t.Fatalf("stream did not reach Stopped after abort, state=%v", s.State())
		default:
			time.Sleep(time.Millisecond)
		}
	}

	time.Sleep(20 * time.Millisecond)
	finalCount := invocations.Load()
	if finalCount != 5 {
		t.Fatalf("callback invoked %d times, want exactly 5 (none after abort)", finalCount)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	d.Join()
}
