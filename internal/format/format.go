// Package format implements the PCM sample-format taxonomy and the
// byte-swap / conversion pipeline that reconciles a client's requested
// buffer geometry with whatever a device natively supports.
//
// The engine here is pure and stateless: every function operates on
// caller-supplied byte slices and never allocates on the hot path beyond
// what the caller already owns.
package format

import (
	"math"
)

// Sample is the closed set of PCM sample formats the engine understands.
type Sample int

const (
	SInt8 Sample = iota
	SInt16
	SInt24 // stored in the upper three bytes of a 32-bit container
	SInt32
	Float32
	Float64
)

// All lists every Sample variant, in the order §3 and the conversion
// table enumerate them.
var All = []Sample{SInt8, SInt16, SInt24, SInt32, Float32, Float64}

func (s Sample) String() string {
	switch s {
	case SInt8:
		return "s8"
	case SInt16:
		return "s16"
	case SInt24:
		return "s24"
	case SInt32:
		return "s32"
	case Float32:
		return "f32"
	case Float64:
		return "f64"
	default:
		return "unknown"
	}
}

// BytesPerSample is the container width of one sample of the given
// format: s24 occupies a full 32-bit container per §3.
func BytesPerSample(s Sample) int {
	switch s {
	case SInt8:
		return 1
	case SInt16:
		return 2
	case SInt24, SInt32:
		return 4
	case Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

// BytesPerFrame is the total container width across every channel of a
// single format.
func BytesPerFrame(s Sample, channels int) int {
	return BytesPerSample(s) * channels
}

// Mask bits, one per Sample, used by the Device Registry to record which
// formats a device natively supports.
const (
	MaskS8 uint32 = 1 << iota
	MaskS16
	MaskS24
	MaskS32
	MaskF32
	MaskF64
)

func MaskOf(s Sample) uint32 {
	switch s {
	case SInt8:
		return MaskS8
	case SInt16:
		return MaskS16
	case SInt24:
		return MaskS24
	case SInt32:
		return MaskS32
	case Float32:
		return MaskF32
	case Float64:
		return MaskF64
	default:
		return 0
	}
}

// ByteSwap reverses the byte order of n samples of the given format,
// in place. 24-bit samples follow the 32-bit swap pattern because they
// occupy a 32-bit container.
func ByteSwap(buf []byte, n int, s Sample) {
	width := BytesPerSample(s)
	if width <= 1 {
		return
	}
	need := n * width
	if len(buf) < need {
		need = len(buf) - (len(buf) % width)
	}
	for off := 0; off+width <= need; off += width {
		for i, j := 0, width-1; i < j; i, j = i+1, j-1 {
			buf[off+i], buf[off+j] = buf[off+j], buf[off+i]
		}
	}
}

// offsets precomputes, for one side, the byte stride to advance one
// frame at a fixed channel and the byte stride to move from one
// channel's base to the next at a fixed frame. Convert computes it once
// per call, so its per-sample loop never branches on interleave mode.
// It is not stored in Plan; Plan holds only the formats, channel counts
// and interleave flags.
type offsets struct {
	frameStep   int // bytes between consecutive frames of the same channel
	channelStep int // bytes between the start of consecutive channels
	sampleWidth int
}

func computeOffsets(s Sample, channels, frames int, interleaved bool) offsets {
	width := BytesPerSample(s)
	if interleaved {
		// L R L R ...: advancing one frame skips over every channel's
		// sample; advancing one channel skips a single sample.
		return offsets{frameStep: width * channels, channelStep: width, sampleWidth: width}
	}
	// L L L ... R R R ...: advancing one frame skips a single sample;
	// advancing one channel skips the other channel's whole block.
	return offsets{frameStep: width, channelStep: width * frames, sampleWidth: width}
}

// Plan is the precomputed per-direction conversion plan a Stream stores
// at open time, per §4.1 / §4.3 step 7.
type Plan struct {
	SrcFormat, DstFormat     Sample
	SrcChannels, DstChannels int
	SrcInterleaved, DstInterleaved bool
	ClearDst                       bool
}

// NeedsConversion reports whether this plan requires any work at all:
// format differs, channel counts differ, or (for channels > 1) the
// interleave mode differs, per §4.3 step 5.
func (p Plan) NeedsConversion() bool {
	if p.SrcFormat != p.DstFormat {
		return true
	}
	if p.SrcChannels != p.DstChannels {
		return true
	}
	if p.SrcChannels > 1 && p.SrcInterleaved != p.DstInterleaved {
		return true
	}
	return false
}

// Convert copies frames frames from src to dst, performing format
// promotion/demotion, channel compaction/padding, and interleave
// transform as needed. It is pure: no allocation, no global state.
func Convert(dst []byte, dstFormat Sample, dstChannels int, dstInterleaved bool,
	src []byte, srcFormat Sample, srcChannels int, srcInterleaved bool,
	frames int) {

	channels := srcChannels
	if dstChannels < channels {
		channels = dstChannels
	}

	if dstChannels != srcChannels {
		// Destination channels beyond the copied count must read as
		// silence (playback padding) per §3 and §4.1.
		zero(dst, dstFormat, dstChannels, frames)
	}

	so := computeOffsets(srcFormat, srcChannels, frames, srcInterleaved)
	do := computeOffsets(dstFormat, dstChannels, frames, dstInterleaved)

	for ch := 0; ch < channels; ch++ {
		srcBase := ch * so.channelStep
		dstBase := ch * do.channelStep

		for f := 0; f < frames; f++ {
			sOff := srcBase + f*so.frameStep
			dOff := dstBase + f*do.frameStep
			if sOff+so.sampleWidth > len(src) || dOff+do.sampleWidth > len(dst) {
				break
			}
			convertSample(dst[dOff:dOff+do.sampleWidth], dstFormat, src[sOff:sOff+so.sampleWidth], srcFormat)
		}
	}
}

func zero(dst []byte, format Sample, channels, frames int) {
	width := BytesPerSample(format)
	need := width * channels * frames
	if need > len(dst) {
		need = len(dst)
	}
	for i := range dst[:need] {
		dst[i] = 0
	}
}

// convertSample promotes/demotes a single sample according to the fixed
// table in spec §4.1. Float-to-integer conversions truncate toward zero
// and are never clipped; the caller must clip if saturation matters.
func convertSample(dst []byte, dstFormat Sample, src []byte, srcFormat Sample) {
	if dstFormat == srcFormat {
		copy(dst, src)
		return
	}

	// Normalize the source to a float64 in [-1, 1] for cross-family
	// conversions, and to an int32 "upper-aligned" value for integer
	// families, matching the scales in the spec table so that full-scale
	// integers round-trip to +/-1.0 floats.
	switch srcFormat {
	case SInt8:
		v := int8(src[0])
		writeFromS8(dst, dstFormat, v)
	case SInt16:
		v := int16(src[0]) | int16(src[1])<<8
		writeFromS16(dst, dstFormat, v)
	case SInt24:
		v := int32(src[0]) | int32(src[1])<<8 | int32(src[2])<<16 | int32(src[3])<<24
		writeFromS32Upper24(dst, dstFormat, v)
	case SInt32:
		v := int32(src[0]) | int32(src[1])<<8 | int32(src[2])<<16 | int32(src[3])<<24
		writeFromS32(dst, dstFormat, v)
	case Float32:
		bits := uint32(src[0]) | uint32(src[1])<<8 | uint32(src[2])<<16 | uint32(src[3])<<24
		v := math.Float32frombits(bits)
		writeFromF32(dst, dstFormat, v)
	case Float64:
		bits := uint64(src[0]) | uint64(src[1])<<8 | uint64(src[2])<<16 | uint64(src[3])<<24 |
			uint64(src[4])<<32 | uint64(src[5])<<40 | uint64(src[6])<<48 | uint64(src[7])<<56
		v := math.Float64frombits(bits)
		writeFromF64(dst, dstFormat, v)
	}
}

func putS16(dst []byte, v int16) { dst[0] = byte(v); dst[1] = byte(v >> 8) }
func putS32(dst []byte, v int32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 24)
}
func putF32(dst []byte, v float32) { putS32(dst, int32(math.Float32bits(v))) }
func putF64(dst []byte, v float64) {
	bits := math.Float64bits(v)
	for i := 0; i < 8; i++ {
		dst[i] = byte(bits >> (8 * i))
	}
}

func writeFromS8(dst []byte, dstFormat Sample, v int8) {
	switch dstFormat {
	case SInt8:
		dst[0] = byte(v)
	case SInt16:
		putS16(dst, int16(v)<<8)
	case SInt24, SInt32:
		putS32(dst, int32(v)<<24)
	case Float32:
		putF32(dst, float32(v)/128.0)
	case Float64:
		putF64(dst, float64(v)/128.0)
	}
}

func writeFromS16(dst []byte, dstFormat Sample, v int16) {
	switch dstFormat {
	case SInt8:
		dst[0] = byte(v >> 8)
	case SInt16:
		putS16(dst, v)
	case SInt24, SInt32:
		putS32(dst, int32(v)<<16)
	case Float32:
		putF32(dst, float32(v)/32768.0)
	case Float64:
		putF64(dst, float64(v)/32768.0)
	}
}

// writeFromS32Upper24 interprets v as a 24-bit value already left-aligned
// into the upper three bytes of a 32-bit container (the "s24 (high)" row
// of the spec table).
func writeFromS32Upper24(dst []byte, dstFormat Sample, v int32) {
	switch dstFormat {
	case SInt8:
		dst[0] = byte(v >> 24)
	case SInt16:
		putS16(dst, int16(v>>16))
	case SInt24:
		putS32(dst, v)
	case SInt32:
		putS32(dst, v&^0xFF)
	case Float32:
		putF32(dst, float32(v)/float32(1<<31))
	case Float64:
		putF64(dst, float64(v)/float64(int64(1)<<31))
	}
}

func writeFromS32(dst []byte, dstFormat Sample, v int32) {
	switch dstFormat {
	case SInt8:
		dst[0] = byte(v >> 24)
	case SInt16:
		putS16(dst, int16(v>>16))
	case SInt24:
		putS32(dst, v&^0xFF)
	case SInt32:
		putS32(dst, v)
	case Float32:
		putF32(dst, float32(v)/float32(1<<31))
	case Float64:
		putF64(dst, float64(v)/float64(int64(1)<<31))
	}
}

func writeFromF32(dst []byte, dstFormat Sample, v float32) {
	switch dstFormat {
	case SInt8:
		dst[0] = byte(int8(v * 127))
	case SInt16:
		putS16(dst, int16(v*32767))
	case SInt24:
		putS32(dst, int32(v*(1<<31))&^0xFF)
	case SInt32:
		putS32(dst, int32(v*(1<<31)))
	case Float32:
		putF32(dst, v)
	case Float64:
		putF64(dst, float64(v))
	}
}

func writeFromF64(dst []byte, dstFormat Sample, v float64) {
	switch dstFormat {
	case SInt8:
		dst[0] = byte(int8(v * 127))
	case SInt16:
		putS16(dst, int16(v*32767))
	case SInt24:
		putS32(dst, int32(v*(1<<31))&^0xFF)
	case SInt32:
		putS32(dst, int32(v*(1<<31)))
	case Float32:
		putF32(dst, float32(v))
	case Float64:
		putF64(dst, v)
	}
}
