// Package stream implements the Stream State & Buffer Plan (C3): a
// stream's configuration, its user- and device-side buffers, the
// per-direction conversion plan, and the four-state lifecycle machine
// shared by every backend.
package stream

import (
	"github.com/ColonelBlimp/rtaudio/internal/backend"
	"github.com/ColonelBlimp/rtaudio/internal/format"
)

// State is one of the four stream lifecycle states of spec §3.
type State int

const (
	Closed State = iota
	Stopped
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Status is the bitmask of xrun flags the callback ABI reports per tick.
type Status uint32

const (
	OutputUnderflow Status = 1 << iota
	InputOverflow
)

// DirectionSpec is the caller-supplied request for one direction of a
// stream, per the parameters §4.3 opens against.
type DirectionSpec struct {
	DeviceIndex  int
	UserChannels int
	FirstChannel int
	UserFormat   format.Sample
	Options      backend.Options
}

// OpenSpec is everything needed to open a stream with one or both
// directions active. At least one of Output/Input must be non-nil.
type OpenSpec struct {
	SampleRate  float64
	BlockFrames int
	Output      *DirectionSpec
	Input       *DirectionSpec
}
