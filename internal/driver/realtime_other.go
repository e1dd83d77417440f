//go:build !linux

package driver

import "fmt"

// setRealtimeScheduling has no sched_setscheduler-equivalent wired on
// this platform; the schedule_realtime option degrades to a reported
// warning instead of failing the stream open.
func setRealtimeScheduling(priority int) error {
	return fmt.Errorf("realtime scheduling is not implemented for this platform")
}
