//go:build !(linux && cgo)

package pmemlog

import "unsafe"

// sfence is a no-op on platforms without the x86 asm barrier; durability
// in that case relies entirely on msync in (*Log).persistRange.
func sfence() {}

func flushRange(unsafe.Pointer, int) {}

func hasNativeBarrier() bool { return false }
