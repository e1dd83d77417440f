package stream

import (
	"github.com/ColonelBlimp/rtaudio/internal/backend"
	"github.com/ColonelBlimp/rtaudio/internal/format"
)

// directionState holds everything C3 owns for one active direction of a
// stream: the negotiated device geometry, the precomputed convert plan,
// and the user-side buffer handed to the client.
type directionState struct {
	deviceIndex int
	handle      backend.Handle

	userFormat   format.Sample
	userChannels int
	firstChannel int
	interleaved  bool // user-side interleave mode

	deviceFormat      format.Sample
	deviceChannels    int
	deviceInterleaved bool // device-side interleave mode, as negotiated

	needsConvert bool
	doByteSwap   bool

	options backend.Options

	userBuf []byte
	plan    format.Plan
}

func newDirectionState(spec *DirectionSpec, res backend.OpenResult, userInterleaved bool) *directionState {
	ds := &directionState{
		deviceIndex:       spec.DeviceIndex,
		handle:            res.Handle,
		userFormat:        spec.UserFormat,
		userChannels:      spec.UserChannels,
		firstChannel:      spec.FirstChannel,
		interleaved:       userInterleaved,
		deviceFormat:      res.DeviceFormat,
		deviceChannels:    res.DeviceChannels,
		deviceInterleaved: res.Interleaved,
		options:           spec.Options,
	}
	// §4.3 step 5: needs-convert iff format differs, user-channels <
	// device-channels, or interleave differs and channels > 1. The
	// engine always presents the user side in the caller's requested
	// interleave mode and the device side in whatever the backend
	// negotiated (res.Interleaved); a mismatch between those is the
	// "interleave differs" case.
	ds.needsConvert = spec.UserFormat != res.DeviceFormat ||
		spec.UserChannels < res.DeviceChannels ||
		(maxInt(spec.UserChannels, res.DeviceChannels) > 1 && userInterleaved != res.Interleaved)

	ds.doByteSwap = format.BytesPerSample(res.DeviceFormat) > 1 && res.DeviceLittleEndian != hostLittleEndian
	return ds
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// userBufferSize is the byte size of this direction's user buffer, per
// §3: user_channels x block_frames x bytes(user_format).
func (ds *directionState) userBufferSize(blockFrames int) int {
	return format.BytesPerFrame(ds.userFormat, ds.userChannels) * blockFrames
}

// deviceFrameSize is the per-frame byte width this direction needs from
// the shared device scratch buffer.
func (ds *directionState) deviceFrameSize() int {
	return format.BytesPerFrame(ds.deviceFormat, ds.deviceChannels)
}

// buildOutputPlan and buildInputPlan precompute the §4.1 convert-plan
// record for the direction (output: user -> device; input/capture:
// device -> user).
func (ds *directionState) buildOutputPlan() {
	ds.plan = format.Plan{
		SrcFormat: ds.userFormat, SrcChannels: ds.userChannels, SrcInterleaved: ds.interleaved,
		DstFormat: ds.deviceFormat, DstChannels: ds.deviceChannels, DstInterleaved: ds.deviceInterleaved,
	}
}

func (ds *directionState) buildInputPlan() {
	ds.plan = format.Plan{
		SrcFormat: ds.deviceFormat, SrcChannels: ds.deviceChannels, SrcInterleaved: ds.deviceInterleaved,
		DstFormat: ds.userFormat, DstChannels: ds.userChannels, DstInterleaved: ds.interleaved,
	}
}
