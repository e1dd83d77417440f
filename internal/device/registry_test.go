package device

import "testing"

func sampleDevices() []Descriptor {
	return []Descriptor{
		{
			Name: "dev-A", Probed: true,
			MaxOutputChannels: 2, MaxInputChannels: 0,
			DiscreteRates: []float64{44100, 48000}, PreferredRate: 48000,
			DefaultOutput: true,
		},
		{
			Name: "dev-B", Probed: true,
			MaxOutputChannels: 0, MaxInputChannels: 1,
			DiscreteRates: []float64{16000, 44100}, PreferredRate: 44100,
			DefaultInput: true,
		},
	}
}

// TestEnumerateOnlyScenario covers spec §8 E1 literally.
func TestEnumerateOnlyScenario(t *testing.T) {
	r := NewRegistry()
	r.Refresh(sampleDevices())

	if got := r.Count(); got != 2 {
		t.Fatalf("Count() = %d, want 2", got)
	}

	infoA, err := r.Info(0)
	if err != nil {
		t.Fatalf("Info(0): %v", err)
	}
	if infoA.PreferredRate != 48000 {
		t.Errorf("Info(0).PreferredRate = %v, want 48000", infoA.PreferredRate)
	}

	infoB, err := r.Info(1)
	if err != nil {
		t.Fatalf("Info(1): %v", err)
	}
	if infoB.PreferredRate != 44100 {
		t.Errorf("Info(1).PreferredRate = %v, want 44100", infoB.PreferredRate)
	}

	out, err := r.DefaultOutput()
	if err != nil || out != 0 {
		t.Errorf("DefaultOutput() = (%d, %v), want (0, nil)", out, err)
	}
	in, err := r.DefaultInput()
	if err != nil || in != 1 {
		t.Errorf("DefaultInput() = (%d, %v), want (1, nil)", in, err)
	}
}

func TestDefaultFallsBackToFirstQualifying(t *testing.T) {
	r := NewRegistry()
	r.Refresh([]Descriptor{
		{Name: "no-output", Probed: true, MaxOutputChannels: 0},
		{Name: "has-output", Probed: true, MaxOutputChannels: 2},
	})

	out, err := r.DefaultOutput()
	if err != nil {
		t.Fatalf("DefaultOutput(): %v", err)
	}
	if out != 1 {
		t.Errorf("DefaultOutput() = %d, want 1 (first device with output channels)", out)
	}
}

func TestInfoReturnsBusySnapshot(t *testing.T) {
	r := NewRegistry()
	devs := sampleDevices()
	r.Refresh(devs)

	busy := devs[0]
	busy.Name = "dev-A (snapshot)"
	r.MarkOpen(0, busy)

	got, err := r.Info(0)
	if err != nil {
		t.Fatalf("Info(0): %v", err)
	}
	if got.Name != "dev-A (snapshot)" {
		t.Errorf("Info(0) returned live descriptor %q, want cached busy snapshot", got.Name)
	}

	r.MarkClosed(0)
	got, err = r.Info(0)
	if err != nil {
		t.Fatalf("Info(0) after MarkClosed: %v", err)
	}
	if got.Name != "dev-A" {
		t.Errorf("Info(0) after close = %q, want live descriptor %q", got.Name, "dev-A")
	}
}

func TestRefreshInvalidatesOldIndices(t *testing.T) {
	r := NewRegistry()
	r.Refresh(sampleDevices())
	r.MarkOpen(0, Descriptor{Name: "stale"})

	r.Refresh(sampleDevices())
	got, err := r.Info(0)
	if err != nil {
		t.Fatalf("Info(0): %v", err)
	}
	if got.Name != "dev-A" {
		t.Errorf("Info(0) after Refresh = %q, want fresh descriptor %q (busy snapshot must be dropped)", got.Name, "dev-A")
	}
}

func TestPreferredRate(t *testing.T) {
	cases := []struct {
		probed []float64
		want   float64
	}{
		{[]float64{44100, 48000}, 48000},
		{[]float64{16000, 44100}, 44100},
		{[]float64{88200, 96000}, 96000}, // none <= 48000: fall back to largest overall
		{[]float64{48000}, 48000},
	}
	for _, c := range cases {
		if got := PreferredRate(c.probed); got != c.want {
			t.Errorf("PreferredRate(%v) = %v, want %v", c.probed, got, c.want)
		}
	}
}

func TestInfoOutOfRange(t *testing.T) {
	r := NewRegistry()
	r.Refresh(sampleDevices())
	if _, err := r.Info(5); err == nil {
		t.Error("Info(5) expected error for out-of-range index")
	}
}
