package main

import (
	"github.com/ColonelBlimp/rtaudio/cmd/rtaudioctl"
	"github.com/ColonelBlimp/rtaudio/internal/recovery"
)

func main() {
	defer recovery.HandlePanic()
	rtaudioctl.Execute()
}
