//go:build linux

package driver

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

const schedFIFO = 1

// schedParam mirrors the C struct sched_param layout sched_setscheduler
// expects: a single priority field is all SCHED_FIFO/SCHED_RR need.
type schedParam struct {
	priority int32
}

// setRealtimeScheduling requests SCHED_FIFO at priority for the calling
// OS thread, per the schedule_realtime stream option. The caller must
// already be pinned to its OS thread via runtime.LockOSThread, since
// scheduling policy is a per-thread attribute and Go's scheduler is
// otherwise free to move the goroutine to a thread that never asked
// for it.
func setRealtimeScheduling(priority int) error {
	if priority <= 0 {
		priority = 1
	}
	if priority > 99 {
		priority = 99
	}
	param := schedParam{priority: int32(priority)}
	_, _, errno := unix.Syscall(unix.SYS_SCHED_SETSCHEDULER, 0, uintptr(schedFIFO), uintptr(unsafe.Pointer(&param)))
	if errno != 0 {
		return errno
	}
	return nil
}
