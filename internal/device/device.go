// Package device implements the backend-agnostic device registry: it
// enumerates devices exposed by a Backend, probes their capabilities,
// and hands out immutable descriptor copies to the facade.
package device

import (
	"github.com/ColonelBlimp/rtaudio/internal/format"
)

// RateRange describes a continuous sample-rate range a device supports,
// used when the backend cannot report a discrete list.
type RateRange struct {
	Min, Max float64
}

// Descriptor is the immutable, per-enumeration-pass snapshot of one
// device's capabilities, per spec §3.
type Descriptor struct {
	Name string

	// Probed is false when capability probing failed for any reason
	// other than "device busy"; the name is still populated so the
	// application can see it.
	Probed bool

	MaxOutputChannels int
	MaxInputChannels  int
	MaxDuplexChannels int

	// DiscreteRates holds the probed rates in the order the backend
	// reported them; it is not sorted. When the
	// backend reports a continuous range instead, DiscreteRates is nil
	// and ContinuousRange is set.
	DiscreteRates    []float64
	ContinuousRange  *RateRange
	PreferredRate    float64
	NativeFormatMask uint32

	DefaultInput  bool
	DefaultOutput bool
}

// SupportsRate reports whether rate is usable by this device, either as
// an exact discrete match or within the continuous range.
func (d Descriptor) SupportsRate(rate float64) bool {
	if d.ContinuousRange != nil {
		return rate >= d.ContinuousRange.Min && rate <= d.ContinuousRange.Max
	}
	for _, r := range d.DiscreteRates {
		if r == rate {
			return true
		}
	}
	return false
}

// SupportsFormat reports whether the device's native format mask
// includes s.
func (d Descriptor) SupportsFormat(s format.Sample) bool {
	return d.NativeFormatMask&format.MaskOf(s) != 0
}

// ProbeRates is the fixed list of candidate probe rates (§4.2 step 5).
// No adapter in this module reads it: Dummy reports each virtual
// device's configured rates, and the malgo adapter reports the rates of
// miniaudio's native data formats.
var ProbeRates = []float64{
	4000, 5512, 8000, 9600, 11025, 16000, 22050, 32000,
	44100, 48000, 88200, 96000, 176400, 192000,
}

// PreferredRate picks the largest probed rate <= 48000, falling back to
// the largest probed rate overall when none qualifies, per §4.2 step 5.
func PreferredRate(probed []float64) float64 {
	var best float64
	var bestOverall float64
	for _, r := range probed {
		if r > bestOverall {
			bestOverall = r
		}
		if r <= 48000 && r > best {
			best = r
		}
	}
	if best > 0 {
		return best
	}
	return bestOverall
}
