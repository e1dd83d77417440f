// cmd/rtaudioctl/root.go
package rtaudioctl

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/ColonelBlimp/rtaudio"
	"github.com/ColonelBlimp/rtaudio/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "rtaudioctl",
	Short: "Inspect and drive realtime audio devices",
	Long:  `A thin command-line harness over the rtaudio library: enumerate backends and devices, probe capabilities, and run small playback/loopback demos.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "execution error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("backend", "b", "unspecified", "backend tag (alsa, oss, pulse, jack, core, ds, wasapi, dummy, unspecified)")
	rootCmd.PersistentFlags().BoolP("debug", "D", false, "enable debug output")

	cobra.CheckErr(viper.BindPFlag("backend", rootCmd.PersistentFlags().Lookup("backend")))
	cobra.CheckErr(viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")))

	rootCmd.AddCommand(listCmd, probeCmd, sineCmd, loopbackCmd)
}

func initConfig() {
	if err := config.Init(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
}

// openFacade selects the configured backend and enumerates its devices,
// the first step every subcommand here needs.
func openFacade() (*rtaudio.Facade, *config.Settings, error) {
	settings, err := config.Get()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	f, err := rtaudio.New(settings.Backend)
	if err != nil {
		return nil, nil, fmt.Errorf("select backend: %w", err)
	}
	return f, settings, nil
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the selected backend's devices",
	RunE: func(_ *cobra.Command, _ []string) error {
		f, _, err := openFacade()
		if err != nil {
			return err
		}
		fmt.Printf("backend: %s (%s)\n", f.Backend(), rtaudio.DisplayName(f.Backend()))
		n := f.DeviceCount()
		for i := 0; i < n; i++ {
			d, err := f.DeviceInfo(i)
			if err != nil {
				return fmt.Errorf("device %d: %w", i, err)
			}
			fmt.Printf("  [%d] %-24s out=%d in=%d preferred_rate=%.0f probed=%v\n",
				i, d.Name, d.MaxOutputChannels, d.MaxInputChannels, d.PreferredRate, d.Probed)
		}
		return nil
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe <index>",
	Short: "Print one device's full capability descriptor",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		f, _, err := openFacade()
		if err != nil {
			return err
		}
		index, err := parseIndex(args[0])
		if err != nil {
			return err
		}
		d, err := f.DeviceInfo(index)
		if err != nil {
			return err
		}
		fmt.Printf("name:                %s\n", d.Name)
		fmt.Printf("probed:              %v\n", d.Probed)
		fmt.Printf("max_output_channels: %d\n", d.MaxOutputChannels)
		fmt.Printf("max_input_channels:  %d\n", d.MaxInputChannels)
		fmt.Printf("max_duplex_channels: %d\n", d.MaxDuplexChannels)
		fmt.Printf("preferred_rate:      %.0f\n", d.PreferredRate)
		fmt.Printf("discrete_rates:      %v\n", d.DiscreteRates)
		fmt.Printf("default_output:      %v\n", d.DefaultOutput)
		fmt.Printf("default_input:       %v\n", d.DefaultInput)
		return nil
	},
}

var sineCmd = &cobra.Command{
	Use:   "sine <index>",
	Short: "Play a two-channel sawtooth through a device for a fixed duration",
	Long:  "Reproduces spec scenario E2: per-channel sawtooth with increments 0.005 and 0.0055 over f32 buffers.",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		f, settings, err := openFacade()
		if err != nil {
			return err
		}
		index, err := parseIndex(args[0])
		if err != nil {
			return err
		}

		if err := f.Open(rtaudio.OpenParams{
			SampleRate:  settings.SampleRate,
			BlockFrames: settings.BlockFrames,
			Output: &rtaudio.StreamParams{
				DeviceIndex: index,
				Channels:    2,
				Format:      rtaudio.Float32,
			},
			NumberOfBuffers: settings.NumberOfBuffers,
		}); err != nil {
			return fmt.Errorf("open: %w", err)
		}
		defer func() { _ = f.Close() }()

		phase := [2]float32{0, 0}
		const incA, incB = 0.005, 0.0055

		cb := func(output, _ []byte, frames int, _ float64, _ rtaudio.Status, _ any) int {
			for i := 0; i < frames; i++ {
				writeF32(output, i*2+0, sawtooth(&phase[0], incA))
				writeF32(output, i*2+1, sawtooth(&phase[1], incB))
			}
			return 0
		}
		if err := f.SetCallback(cb, nil, settings.NumberOfBuffers); err != nil {
			return fmt.Errorf("set_callback: %w", err)
		}
		if err := f.Start(); err != nil {
			return fmt.Errorf("start: %w", err)
		}

		fmt.Println("playing sawtooth, press Ctrl+C to stop early...")
		time.Sleep(2 * time.Second)
		return f.Stop()
	},
}

var loopbackCmd = &cobra.Command{
	Use:   "loopback <index>",
	Short: "Open a device full-duplex and copy capture straight to playback",
	Long:  "Reproduces spec scenario E4: duplex passthrough, one block of capture latency.",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		f, settings, err := openFacade()
		if err != nil {
			return err
		}
		index, err := parseIndex(args[0])
		if err != nil {
			return err
		}

		if err := f.Open(rtaudio.OpenParams{
			SampleRate:  settings.SampleRate,
			BlockFrames: settings.BlockFrames,
			Output: &rtaudio.StreamParams{
				DeviceIndex: index,
				Channels:    settings.Channels,
				Format:      rtaudio.SInt16,
			},
			Input: &rtaudio.StreamParams{
				DeviceIndex: index,
				Channels:    settings.Channels,
				Format:      rtaudio.SInt16,
			},
			NumberOfBuffers: settings.NumberOfBuffers,
		}); err != nil {
			return fmt.Errorf("open duplex: %w", err)
		}
		defer func() { _ = f.Close() }()

		cb := func(output, input []byte, _ int, _ float64, _ rtaudio.Status, _ any) int {
			copy(output, input)
			return 0
		}
		if err := f.SetCallback(cb, nil, settings.NumberOfBuffers); err != nil {
			return fmt.Errorf("set_callback: %w", err)
		}
		if err := f.Start(); err != nil {
			return fmt.Errorf("start: %w", err)
		}

		fmt.Println("looping back, press Ctrl+C to stop early...")
		time.Sleep(5 * time.Second)
		return f.Stop()
	},
}

func parseIndex(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, fmt.Errorf("invalid device index %q", s)
	}
	return n, nil
}

// sawtooth advances phase by inc, wrapping at +1.0 back to -1.0, and
// returns the pre-advance value.
func sawtooth(phase *float32, inc float32) float32 {
	v := *phase
	*phase += inc
	if *phase > 1 {
		*phase -= 2
	}
	return v
}

func writeF32(buf []byte, sampleIndex int, v float32) {
	bits := math.Float32bits(v)
	o := sampleIndex * 4
	buf[o+0] = byte(bits)
	buf[o+1] = byte(bits >> 8)
	buf[o+2] = byte(bits >> 16)
	buf[o+3] = byte(bits >> 24)
}
