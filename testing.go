package pcache

import "sync"

// RecordingObserver is an Observer that records every event it
// receives for assertions in caller tests, the way the teacher's
// MockBackend tracks call counts for its Backend interface.
type RecordingObserver struct {
	mu sync.Mutex

	WriteRequests  int
	WriteCommits   int
	ReadRequests   int
	ReadAborts     int
	ReadReplies    int
	ProtocolErrors int

	BytesWritten uint64
	BytesRead    uint64
}

// NewRecordingObserver creates an empty RecordingObserver.
func NewRecordingObserver() *RecordingObserver {
	return &RecordingObserver{}
}

func (o *RecordingObserver) ObserveWriteRequest(stagingBytes int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.WriteRequests++
}

func (o *RecordingObserver) ObserveWriteCommit(bytesWritten uint64, stagingBytesFreed int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.WriteCommits++
	o.BytesWritten += bytesWritten
}

func (o *RecordingObserver) ObserveReadRequest(bytesRead uint64, stagingBytes int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ReadRequests++
	o.BytesRead += bytesRead
}

func (o *RecordingObserver) ObserveReadAbort() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ReadAborts++
}

func (o *RecordingObserver) ObserveReadReply(stagingBytesFreed int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ReadReplies++
}

func (o *RecordingObserver) ObserveProtocolError() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ProtocolErrors++
}

var _ Observer = (*RecordingObserver)(nil)
