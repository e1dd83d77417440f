package backend

import (
	"testing"

	"github.com/ColonelBlimp/rtaudio/internal/format"
)

// TestDummyEnumerateMatchesE1 reproduces spec §8 E1 through the Backend
// interface instead of the bare registry, so it also exercises
// Enumerate's format-mask and preferred-rate computation.
func TestDummyEnumerateMatchesE1(t *testing.T) {
	b := NewDummy(nil)
	devs, err := b.Enumerate()
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(devs) != 2 {
		t.Fatalf("Enumerate returned %d devices, want 2", len(devs))
	}
	if devs[0].PreferredRate != 48000 {
		t.Errorf("dev-A PreferredRate = %v, want 48000", devs[0].PreferredRate)
	}
	if devs[1].PreferredRate != 44100 {
		t.Errorf("dev-B PreferredRate = %v, want 44100", devs[1].PreferredRate)
	}
	if !devs[0].SupportsFormat(format.SInt16) || !devs[0].SupportsFormat(format.Float32) {
		t.Errorf("dev-A format mask missing s16/f32")
	}
}

func TestDummyProbeOpenRejectsExcessChannels(t *testing.T) {
	b := NewDummy(nil)
	_, err := b.ProbeOpen(OpenRequest{
		DeviceIndex: 0,
		Direction:   Output,
		UserChannels: 4, // dev-A only has 2
		SampleRate:  44100,
		UserFormat:  format.SInt16,
		BlockFrames: 256,
	})
	if err == nil {
		t.Fatal("ProbeOpen with too many channels should fail")
	}
}

func TestDummyTickDrivesCaptureSourceAndPlaybackSink(t *testing.T) {
	b := NewDummy(nil)
	res, err := b.ProbeOpen(OpenRequest{
		DeviceIndex: 1,
		Direction:   Input,
		UserChannels: 1,
		SampleRate:  44100,
		UserFormat:  format.SInt16,
		BlockFrames: 4,
	})
	if err != nil {
		t.Fatalf("ProbeOpen: %v", err)
	}
	h := res.Handle.(*dummyHandle)

	h.CaptureSource = func(buf []byte, frames int) {
		for i := range buf {
			buf[i] = byte(i + 1)
		}
	}

	captured := make([]byte, 8)
	if err := b.Tick(res.Handle, TickRequest{Capture: captured, CaptureFrames: 4}); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	for i, v := range captured {
		if v != byte(i+1) {
			t.Fatalf("captured[%d] = %d, want %d", i, v, i+1)
		}
	}

	var written []byte
	h.PlaybackSink = func(buf []byte, frames int) {
		written = append([]byte(nil), buf...)
	}
	out := []byte{9, 9, 9, 9}
	if err := b.Tick(res.Handle, TickRequest{Playback: out, PlaybackFrames: 1}); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(written) != 4 || written[0] != 9 {
		t.Fatalf("PlaybackSink did not receive the written block: %v", written)
	}
}

func TestDummyDuplexBlockSizeMismatchFails(t *testing.T) {
	b := NewDummy([]VirtualDevice{
		{
			Name: "duplex-dev", MaxOutputChannels: 2, MaxInputChannels: 2,
			Rates:   []float64{44100},
			Formats: []format.Sample{format.SInt16},
		},
	})
	res, err := b.ProbeOpen(OpenRequest{
		DeviceIndex: 0, Direction: Output, UserChannels: 1,
		SampleRate: 44100, UserFormat: format.SInt16, BlockFrames: 256,
	})
	if err != nil {
		t.Fatalf("ProbeOpen output: %v", err)
	}

	_, err = b.ProbeOpen(OpenRequest{
		DeviceIndex: 0, Direction: Input, UserChannels: 1,
		SampleRate: 44100, UserFormat: format.SInt16, BlockFrames: 128,
		Existing: res.Handle,
	})
	if err == nil {
		t.Fatal("duplex promotion with mismatched block size should fail")
	}
}
