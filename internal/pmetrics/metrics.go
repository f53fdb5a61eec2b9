// Package pmetrics tracks operational statistics for the page cache
// server, generalized from the teacher's root-level metrics.go
// (block-device read/write/discard/flush counters) to this server's
// write/read/commit/abort protocol.
package pmetrics

import (
	"sync/atomic"
	"time"
)

// Metrics tracks request-level counters for the dispatcher and
// staging table.
type Metrics struct {
	WriteRequests atomic.Uint64 // WRITE_REQUEST messages handled
	Writes        atomic.Uint64 // WRITE (commit) messages handled
	ReadRequests  atomic.Uint64 // READ_REQUEST messages handled
	ReadReplies   atomic.Uint64 // READ_REPLY (staging-free) messages handled

	WritesCommitted atomic.Uint64 // WRITE commits that completed (one per commit, not per page)
	ReadsAborted    atomic.Uint64 // READ_REQUEST aborted for a missing key

	BytesWritten atomic.Uint64 // page bytes persisted into the log
	BytesRead    atomic.Uint64 // page bytes copied into read staging

	StagingBytesInFlight atomic.Int64 // currently allocated staging bytes
	StagingHighWater     atomic.Int64

	ProtocolErrors atomic.Uint64 // protocol- or allocation-fatal dispatch errors logged and dropped

	StartTime atomic.Int64 // UnixNano
}

// New creates a Metrics instance with StartTime set to now.
func New() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordWriteRequest records a WRITE_REQUEST and the staging buffer it
// allocated.
func (m *Metrics) RecordWriteRequest(stagingBytes int64) {
	m.WriteRequests.Add(1)
	m.addStaging(stagingBytes)
}

// RecordWriteCommit records one completed WRITE commit totalling
// bytesWritten page bytes, freeing the staging buffer it consumed.
func (m *Metrics) RecordWriteCommit(bytesWritten uint64, stagingBytesFreed int64) {
	m.Writes.Add(1)
	m.WritesCommitted.Add(1)
	m.BytesWritten.Add(bytesWritten)
	m.addStaging(-stagingBytesFreed)
}

// RecordReadRequest records a READ_REQUEST that resolved bytesRead
// bytes into a freshly allocated staging buffer.
func (m *Metrics) RecordReadRequest(bytesRead uint64, stagingBytes int64) {
	m.ReadRequests.Add(1)
	m.BytesRead.Add(bytesRead)
	m.addStaging(stagingBytes)
}

// RecordReadAbort records a READ_REQUEST aborted for a missing key.
func (m *Metrics) RecordReadAbort() {
	m.ReadRequests.Add(1)
	m.ReadsAborted.Add(1)
}

// RecordReadReply records a READ_REPLY freeing stagingBytesFreed bytes
// of read staging.
func (m *Metrics) RecordReadReply(stagingBytesFreed int64) {
	m.ReadReplies.Add(1)
	m.addStaging(-stagingBytesFreed)
}

// RecordProtocolError records a dispatch error that was logged and
// dropped (protocol- or allocation-fatal; provider-fatal errors stop
// the dispatcher instead and are not recorded here).
func (m *Metrics) RecordProtocolError() {
	m.ProtocolErrors.Add(1)
}

func (m *Metrics) addStaging(delta int64) {
	newVal := m.StagingBytesInFlight.Add(delta)
	for {
		high := m.StagingHighWater.Load()
		if newVal <= high {
			return
		}
		if m.StagingHighWater.CompareAndSwap(high, newVal) {
			return
		}
	}
}

// Snapshot is a point-in-time copy of Metrics' counters.
type Snapshot struct {
	WriteRequests        uint64
	Writes               uint64
	ReadRequests         uint64
	ReadReplies          uint64
	WritesCommitted      uint64
	ReadsAborted         uint64
	BytesWritten         uint64
	BytesRead            uint64
	StagingBytesInFlight int64
	StagingHighWater     int64
	ProtocolErrors       uint64
	UptimeNs             uint64
}

// Snapshot returns a consistent point-in-time view of m.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		WriteRequests:        m.WriteRequests.Load(),
		Writes:               m.Writes.Load(),
		ReadRequests:         m.ReadRequests.Load(),
		ReadReplies:          m.ReadReplies.Load(),
		WritesCommitted:      m.WritesCommitted.Load(),
		ReadsAborted:         m.ReadsAborted.Load(),
		BytesWritten:         m.BytesWritten.Load(),
		BytesRead:            m.BytesRead.Load(),
		StagingBytesInFlight: m.StagingBytesInFlight.Load(),
		StagingHighWater:     m.StagingHighWater.Load(),
		ProtocolErrors:       m.ProtocolErrors.Load(),
		UptimeNs:             uint64(time.Now().UnixNano() - m.StartTime.Load()),
	}
}

// Observer allows pluggable collection of dispatcher events.
type Observer interface {
	ObserveWriteRequest(stagingBytes int64)
	ObserveWriteCommit(bytesWritten uint64, stagingBytesFreed int64)
	ObserveReadRequest(bytesRead uint64, stagingBytes int64)
	ObserveReadAbort()
	ObserveReadReply(stagingBytesFreed int64)
	ObserveProtocolError()
}

// NoOpObserver discards every event.
type NoOpObserver struct{}

func (NoOpObserver) ObserveWriteRequest(int64)            {}
func (NoOpObserver) ObserveWriteCommit(uint64, int64)     {}
func (NoOpObserver) ObserveReadRequest(uint64, int64)     {}
func (NoOpObserver) ObserveReadAbort()                    {}
func (NoOpObserver) ObserveReadReply(int64)               {}
func (NoOpObserver) ObserveProtocolError()                {}

// MetricsObserver records events into a *Metrics.
type MetricsObserver struct {
	M *Metrics
}

func (o *MetricsObserver) ObserveWriteRequest(stagingBytes int64) {
	o.M.RecordWriteRequest(stagingBytes)
}
func (o *MetricsObserver) ObserveWriteCommit(bytesWritten uint64, stagingBytesFreed int64) {
	o.M.RecordWriteCommit(bytesWritten, stagingBytesFreed)
}
func (o *MetricsObserver) ObserveReadRequest(bytesRead uint64, stagingBytes int64) {
	o.M.RecordReadRequest(bytesRead, stagingBytes)
}
func (o *MetricsObserver) ObserveReadAbort() { o.M.RecordReadAbort() }
func (o *MetricsObserver) ObserveReadReply(stagingBytesFreed int64) {
	o.M.RecordReadReply(stagingBytesFreed)
}
func (o *MetricsObserver) ObserveProtocolError() { o.M.RecordProtocolError() }

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = NoOpObserver{}
