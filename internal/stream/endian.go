package stream

import "unsafe"

// hostLittleEndian is computed once, the same zero-copy byte-reinterpret
// trick the teacher's internal/audio package uses to view a []byte as
// []float32 without a conversion loop.
var hostLittleEndian = func() bool {
	var x uint16 = 1
	b := (*[2]byte)(unsafe.Pointer(&x))
	return b[0] == 1
}()
