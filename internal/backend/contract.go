// Package backend implements the Backend Adapter Contract (C4): the
// abstract interface every host-audio-API adapter satisfies, plus the
// concrete adapters themselves (one malgo-backed adapter instantiated
// per native backend tag, and a pure-Go "dummy" adapter used by tests).
package backend

import (
	"github.com/ColonelBlimp/rtaudio/internal/device"
	"github.com/ColonelBlimp/rtaudio/internal/errs"
	"github.com/ColonelBlimp/rtaudio/internal/format"
)

// Tag is the closed set of backend-selection string tags from spec §6.
type Tag string

const (
	ALSA        Tag = "alsa"
	OSS         Tag = "oss"
	Pulse       Tag = "pulse"
	JACK        Tag = "jack"
	Core        Tag = "core"
	DSound      Tag = "ds"
	WASAPI      Tag = "wasapi"
	Dummy       Tag = "dummy"
	Unspecified Tag = "unspecified"
)

// displayNames gives the facade's display-name-per-tag surface.
var displayNames = map[Tag]string{
	ALSA:        "ALSA",
	OSS:         "OSS",
	Pulse:       "PulseAudio",
	JACK:        "JACK",
	Core:        "CoreAudio",
	DSound:      "DirectSound",
	WASAPI:      "WASAPI",
	Dummy:       "Dummy",
	Unspecified: "Unspecified",
}

// DisplayName returns the human-readable name for a backend tag.
func DisplayName(t Tag) string {
	if n, ok := displayNames[t]; ok {
		return n
	}
	return displayNames[Unspecified]
}

// ParseTag performs a case-insensitive match against the closed tag set,
// per spec §6; an unrecognized string maps to Unspecified.
func ParseTag(s string) Tag {
	for _, t := range []Tag{ALSA, OSS, Pulse, JACK, Core, DSound, WASAPI, Dummy, Unspecified} {
		if equalFold(string(t), s) {
			return t
		}
	}
	return Unspecified
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Direction identifies which half of a stream an operation concerns.
type Direction int

const (
	Output Direction = iota
	Input
)

func (d Direction) String() string {
	if d == Input {
		return "input"
	}
	return "output"
}

// Options mirrors spec §6's recognized stream options.
type Options struct {
	NonInterleaved   bool
	MinimizeLatency  bool
	HogDevice        bool
	ScheduleRealtime bool
	Priority         int
	AlsaUseDefault   bool
	StreamName       string
	NumberOfBuffers  int // 1 means "backend minimum"
}

// Handle is an opaque, backend-owned native resource. Every Backend
// method receives back exactly the Handle value it returned from
// ProbeOpen, letting each adapter store whatever native pointers/contexts
// it needs without the engine knowing their shape — the typed-owner
// wrapper called for in spec §9's "raw pointer handles" redesign note.
type Handle interface {
	// Directions reports which logical direction(s) this handle serves;
	// a duplex promotion reuses the same Handle for both.
	Directions() (output, input bool)
}

// OpenRequest is everything ProbeOpen needs to negotiate a device
// format/channel/rate/block-size combination, per spec §4.3 steps 1-3.
type OpenRequest struct {
	DeviceIndex  int
	Direction    Direction
	UserChannels int
	FirstChannel int
	SampleRate   float64
	UserFormat   format.Sample
	BlockFrames  int // requested; ProbeOpen may replace this
	Options      Options

	// Existing is non-nil when this call is promoting an already-open
	// stream to duplex: the new direction's negotiation must agree with
	// the existing handle's accepted block size, per §4.3 step 3.
	Existing Handle
}

// OpenResult is what ProbeOpen negotiates and hands back to C3 so it can
// compute the conversion plan, per spec §4.3 steps 1-7.
type OpenResult struct {
	Handle         Handle
	DeviceFormat   format.Sample
	DeviceChannels int
	Interleaved    bool
	BlockFrames    int // negotiated; replaces the caller's request

	// DeviceLittleEndian reports the wire endianness of DeviceFormat as
	// the backend will actually deliver/accept it, so C3 can derive
	// doByteSwap per §4.3 step 4. Every adapter in this package normalizes
	// to host order already (miniaudio does this internally, and Dummy has
	// no real wire), so both report true; a future adapter fed directly
	// from a fixed-endianness protocol would report false on a
	// foreign-endian host.
	DeviceLittleEndian bool
}

// TickRequest carries the device-layout buffers Tick operates on. A nil
// buffer means that direction is not active this tick. Capture is
// filled by Tick; Playback is read by Tick. Byte-swap, if required, is
// applied by the caller (internal/stream) at the device-buffer boundary
// immediately around the Tick call, per spec §4.4's tick contract step 3
// — it is a backend-agnostic concern and lives in one place rather than
// duplicated across every adapter.
type TickRequest struct {
	Capture        []byte
	CaptureFrames  int
	Playback       []byte
	PlaybackFrames int
}

// Backend is the abstract interface every host-audio-API adapter
// implements, per spec §4.4.
type Backend interface {
	Tag() Tag

	// Enumerate populates and returns the device registry's descriptor
	// list via the capability-probing protocol of spec §4.2.
	Enumerate() ([]device.Descriptor, error)

	// ProbeOpen negotiates and installs a native handle for one
	// direction of a stream.
	ProbeOpen(req OpenRequest) (OpenResult, error)

	Start(h Handle) error
	Stop(h Handle) error
	Abort(h Handle) error
	Close(h Handle) error

	// Tick moves exactly one block in each active direction; order for
	// duplex is capture then playback, per spec §4.4.
	Tick(h Handle, req TickRequest) error

	// Ready is a non-blocking query for frames that can be moved
	// immediately without blocking.
	Ready(h Handle) (int, error)
}

// wrapDriverError turns a lower-level failure into the DRIVER_ERROR kind
// spec §7 mandates for unrecoverable device errors during a running
// stream.
func wrapDriverError(message string, err error) error {
	return errs.Wrap(errs.DriverError, message, err)
}
