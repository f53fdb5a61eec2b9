// Package pmemlog implements the persistent, append-only page log (C2):
// a fixed-size pool that durably stores page-sized blobs and hands back
// a stable pool-relative address for each one.
//
// A real deployment backs this pool with libpmemobj against a DAX mount;
// this package instead mmaps a regular file and durs writes with msync
// plus an x86 cache-line-flush/sfence pair when built with cgo on Linux
// (see barrier.go). The allocation and crash-consistency contract —
// "index insert happens only after the log persist returns" — is
// identical either way; only the flush primitive differs.
package pmemlog

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/siisee11/pmdfc-go/internal/logging"
)

// ErrLogFull is returned by AllocAndPersist when the pool has no room
// left for the requested allocation.
var ErrLogFull = errors.New("pmemlog: log full")

// Address is a pool-relative byte offset. It remains valid for the
// lifetime of the pool; dereferencing it requires the pool's base
// pointer, which (*Log).Read supplies internally.
type Address uint64

// Log is a crash-consistent, append-only persistent pool of page blobs.
type Log struct {
	path   string
	size   int64
	data   []byte // mmap'd pool
	mu     sync.Mutex
	cursor int64 // next free byte offset; guarded by mu
	logger *logging.Logger
}

// Open creates the pool file at path if it does not exist (sized to
// size bytes) or reopens it if it does. The cursor always starts at 0;
// on reopen, the caller must restore it via SetCursor before issuing
// any AllocAndPersist, using the reopened index's high-water mark (the
// index, not the log, is the source of truth for "how much of the log
// is still referenced").
func Open(path string, size int64, logger *logging.Logger) (*Log, error) {
	if logger == nil {
		logger = logging.Default()
	}

	created := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		created = true
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, fmt.Errorf("pmemlog: open %s: %w", path, err)
	}
	defer f.Close()

	if created {
		if err := f.Truncate(size); err != nil {
			return nil, fmt.Errorf("pmemlog: truncate %s: %w", path, err)
		}
		logger.Infof("created log pool %s (%d bytes)", path, size)
	} else {
		st, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("pmemlog: stat %s: %w", path, err)
		}
		size = st.Size()
		logger.Infof("reopened log pool %s (%d bytes)", path, size)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("pmemlog: mmap %s: %w", path, err)
	}

	l := &Log{
		path:   path,
		size:   size,
		data:   data,
		logger: logger,
	}
	if created {
		l.cursor = 0
	}
	return l, nil
}

// Close unmaps the pool. The file itself is left intact on disk.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.data == nil {
		return nil
	}
	err := unix.Munmap(l.data)
	l.data = nil
	return err
}

// SetCursor resumes allocation at off. Called once on restart, after
// the index has been reopened and replayed, with the index's
// high-water mark: conservative but sufficient, since spec.md's
// crash-consistency model tolerates leaked log space from incomplete
// writes, never torn or overwritten data.
func (l *Log) SetCursor(off int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cursor = off
}

// AllocAndPersist allocates len(p) contiguous bytes in the pool,
// copies p into them, durs the range, and returns the pool-local
// address. It fails with ErrLogFull if the pool is exhausted.
func (l *Log) AllocAndPersist(p []byte) (Address, error) {
	l.mu.Lock()
	if l.data == nil {
		l.mu.Unlock()
		return 0, errors.New("pmemlog: log closed")
	}
	off := l.cursor
	if off+int64(len(p)) > l.size {
		l.mu.Unlock()
		return 0, ErrLogFull
	}
	l.cursor = off + int64(len(p))
	dst := l.data[off : off+int64(len(p))]
	l.mu.Unlock()

	copy(dst, p)
	l.persistRange(dst)

	return Address(off), nil
}

// Read returns a view of the page blob at addr. The returned slice
// aliases the mmap'd pool and must not be retained past the next
// mutation of the log.
func (l *Log) Read(addr Address, n int) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.data == nil {
		return nil, errors.New("pmemlog: log closed")
	}
	if int64(addr)+int64(n) > int64(len(l.data)) {
		return nil, fmt.Errorf("pmemlog: read [%d,%d) out of range (pool size %d)", addr, int64(addr)+int64(n), len(l.data))
	}
	return l.data[addr : int64(addr)+int64(n)], nil
}

// persistRange makes dst durable: flush cache lines covering it
// (when a native barrier is available), fence, then msync as the
// portable fallback/backstop against the page cache.
func (l *Log) persistRange(dst []byte) {
	if len(dst) == 0 {
		return
	}
	if hasNativeBarrier() {
		flushRange(unsafe.Pointer(&dst[0]), len(dst))
		sfence()
	}
	// msync keeps the contract correct even when the native barrier is
	// unavailable (non-cgo builds) or the backing store is a normal
	// filesystem rather than DAX-mapped PMem.
	_ = unix.Msync(alignToPage(l.data, dst), unix.MS_SYNC)
}

// alignToPage widens dst to whole-page boundaries within pool so that
// Msync (which operates on page ranges) covers it exactly.
func alignToPage(pool, dst []byte) []byte {
	pageSize := os.Getpagesize()
	base := uintptr(unsafe.Pointer(&pool[0]))
	start := uintptr(unsafe.Pointer(&dst[0]))
	end := start + uintptr(len(dst))
	alignedStart := start - (start-base)%uintptr(pageSize)
	alignedEnd := end
	if rem := (end - base) % uintptr(pageSize); rem != 0 {
		alignedEnd += uintptr(pageSize) - rem
	}
	lo := alignedStart - base
	hi := alignedEnd - base
	if hi > uintptr(len(pool)) {
		hi = uintptr(len(pool))
	}
	return pool[lo:hi]
}

// Size returns the total pool size in bytes.
func (l *Log) Size() int64 { return l.size }
