package rtaudio

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestNewSelectsDummyByName(t *testing.T) {
	f, err := New("dummy")
	if err != nil {
		t.Fatalf("New(dummy): %v", err)
	}
	if f.Backend() != Dummy {
		t.Fatalf("Backend() = %v, want %v", f.Backend(), Dummy)
	}
	if f.DeviceCount() != 2 {
		t.Fatalf("DeviceCount() = %d, want 2 (E1 dev-A/dev-B)", f.DeviceCount())
	}
}

func TestDeviceInfoMatchesE1(t *testing.T) {
	f, err := New("dummy")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := f.DefaultOutput()
	if err != nil {
		t.Fatalf("DefaultOutput: %v", err)
	}
	in, err := f.DefaultInput()
	if err != nil {
		t.Fatalf("DefaultInput: %v", err)
	}
	if out != 0 {
		t.Fatalf("DefaultOutput() = %d, want 0", out)
	}
	if in != 1 {
		t.Fatalf("DefaultInput() = %d, want 1", in)
	}

	d0, err := f.DeviceInfo(0)
	if err != nil {
		t.Fatalf("DeviceInfo(0): %v", err)
	}
	if d0.PreferredRate != 48000 {
		t.Fatalf("DeviceInfo(0).PreferredRate = %v, want 48000", d0.PreferredRate)
	}
	d1, err := f.DeviceInfo(1)
	if err != nil {
		t.Fatalf("DeviceInfo(1): %v", err)
	}
	if d1.PreferredRate != 44100 {
		t.Fatalf("DeviceInfo(1).PreferredRate = %v, want 44100", d1.PreferredRate)
	}
}

func TestOpenForbidsSecondStream(t *testing.T) {
	f, err := New("dummy")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	params := OpenParams{
		SampleRate: 44100, BlockFrames: 256,
		Output: &StreamParams{DeviceIndex: 0, Channels: 2, Format: SInt16},
	}
	if err := f.Open(params); err != nil {
		t.Fatalf("first Open: %v", err)
	}
	defer func() { _ = f.Close() }()

	if err := f.Open(params); err == nil {
		t.Fatal("second Open on a facade with an open stream should error")
	}
}

func TestOpenDuplexSingleCall(t *testing.T) {
	f, err := New("dummy")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// The dummy default devices are not individually duplex-capable, so
	// the duplex stream pairs dev-A's output with dev-B's input.
	if err := f.Open(OpenParams{
		SampleRate: 16000, BlockFrames: 512,
		Output: &StreamParams{DeviceIndex: 0, Channels: 2, Format: SInt16},
		Input:  &StreamParams{DeviceIndex: 1, Channels: 1, Format: SInt16},
	}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !f.IsOpen() {
		t.Fatal("IsOpen() = false after Open")
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if f.IsOpen() {
		t.Fatal("IsOpen() = true after Close")
	}
}

// TestCallbackDrivesStream reproduces the gist of E2 (playback scenario)
// against the dummy backend: a callback mode stream runs, advances
// stream_time, and reports no callback overlap.
func TestCallbackDrivesStream(t *testing.T) {
	f, err := New("dummy")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := f.Open(OpenParams{
		SampleRate: 44100, BlockFrames: 256,
		Output: &StreamParams{DeviceIndex: 0, Channels: 2, Format: Float32},
	}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = f.Close() }()

	var invocations atomic.Int64
	var overlapping atomic.Bool
	var inCallback atomic.Bool

	cb := func(output, _ []byte, frames int, _ float64, status Status, _ any) int {
		if !inCallback.CompareAndSwap(false, true) {
			overlapping.Store(true)
		}
		invocations.Add(1)
		for i := range output {
			output[i] = 0
		}
		inCallback.Store(false)
		_ = frames
		_ = status
		return 0
	}
	if err := f.SetCallback(cb, nil, 2); err != nil {
		t.Fatalf("SetCallback: %v", err)
	}
	if err := f.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for invocations.Load() < 20 {
		select {
		case <-deadline:
			t.Fatalf("only %d callback invocations after 2s", invocations.Load())
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if overlapping.Load() {
		t.Fatal("callback invocations overlapped")
	}
	if f.StreamTime() <= 0 {
		t.Fatal("StreamTime() should be positive once running")
	}
	if err := f.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestCompiledBackendsIncludesDummy(t *testing.T) {
	found := false
	for _, tag := range CompiledBackends() {
		if tag == Dummy {
			found = true
		}
	}
	if !found {
		t.Fatal("CompiledBackends() should include dummy")
	}
}
