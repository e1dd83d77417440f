package backend

import "fmt"

// Available is the closed set of tags a build can possibly compile in,
// per spec §6. The malgo-backed adapter is native-only; Dummy is always
// available so the engine can run (and be tested) with no sound card.
func Available() []Tag {
	return []Tag{ALSA, OSS, Pulse, JACK, Core, DSound, WASAPI, Dummy}
}

// CompiledBackends reports which tags this build can actually
// instantiate, in the priority order spec §3's supplemented
// CompiledBackends() operation enumerates them. malgo links every
// native backend its build target supports into a single binary, so on
// a host where malgo itself linked successfully every native tag here
// is real; Dummy is always present as the hardware-free fallback.
func CompiledBackends() []Tag {
	return append([]Tag{ALSA, Pulse, JACK, OSS, Core, WASAPI, DSound}, Dummy)
}

// New instantiates the adapter for tag, or an error if tag names a
// backend this build did not compile in.
func New(tag Tag) (Backend, error) {
	switch tag {
	case Dummy:
		return NewDummy(nil), nil
	case ALSA, OSS, Pulse, JACK, Core, DSound, WASAPI:
		return newMalgoBackend(tag)
	default:
		return nil, fmt.Errorf("backend: unrecognized tag %q", tag)
	}
}

// PickDefault returns the first compiled, natively-available backend in
// priority order, per spec §4.7's "no backend tag specified" step. It
// never returns Dummy: callers that want the hardware-free adapter ask
// for it by name.
func PickDefault() (Backend, Tag, error) {
	for _, tag := range CompiledBackends() {
		if tag == Dummy {
			continue
		}
		b, err := New(tag)
		if err != nil {
			continue
		}
		if _, err := b.Enumerate(); err != nil {
			continue
		}
		return b, tag, nil
	}
	return nil, Unspecified, fmt.Errorf("backend: no compiled backend is available on this host")
}
