//go:build linux && cgo

package pmemlog

/*
#include <stdint.h>

// x86-64 store fence: ensures all prior stores are globally visible
// before any subsequent store. Required after a run of clflush/clwb
// so the persist is ordered against later log allocations.
static inline void sfence_impl(void) {
    __asm__ __volatile__("sfence" ::: "memory");
}

// clflush evicts the cache line containing addr, forcing it back to
// the memory controller. This is the fallback persistence primitive
// when clwb/clflushopt are not known to be available.
static inline void clflush_impl(const void* addr) {
    __asm__ __volatile__("clflush (%0)" :: "r"(addr));
}
*/
import "C"
import "unsafe"

// sfence issues a store fence (x86 SFENCE instruction).
func sfence() {
	C.sfence_impl()
}

// flushRange evicts every cache line covering [addr, addr+n) so that
// the bytes are durable after the following sfence.
func flushRange(addr unsafe.Pointer, n int) {
	const cacheLineSize = 64
	base := uintptr(addr)
	end := base + uintptr(n)
	for line := base - base%cacheLineSize; line < end; line += cacheLineSize {
		C.clflush_impl(unsafe.Pointer(line))
	}
}

func hasNativeBarrier() bool { return true }
