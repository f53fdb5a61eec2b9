// Package wire defines the on-the-wire layout shared between the page
// cache server and its kernel-resident client: the immediate-value
// encoding, message types, and the client metadata region geometry.
package wire

// PageSize is the fixed size of a cached page, in bytes.
const PageSize = 4096

// MetadataSize is the per-entry stride inside a client metadata
// sub-slice: 8 bytes for the page key, 8 bytes reserved for the
// server-written staging address.
const MetadataSize = 16

// NumEntry is the number of METADATA_SIZE-strided key slots per
// (node, pid) sub-slice, i.e. the maximum batch size of a single
// request.
const NumEntry = 32

// MaxNode is the maximum number of concurrently bootstrapped client
// nodes.
const MaxNode = 256

// MaxProcess is the maximum number of distinct pids per node that may
// have in-flight staging state.
const MaxProcess = 256

// PerNodeMetaRegionSize is the size in bytes of one node's slice of
// the client metadata region.
const PerNodeMetaRegionSize = MaxProcess * NumEntry * MetadataSize

// LocalMetaRegionSize is the total size of the client-facing metadata
// region on the server, partitioned into MaxNode per-node slices.
const LocalMetaRegionSize = MaxNode * PerNodeMetaRegionSize

// MsgType enumerates the message types carried in the 4-bit type
// field of the RDMA immediate.
type MsgType uint8

const (
	MsgWriteRequest MsgType = iota
	MsgWriteRequestReply
	MsgWrite
	MsgWriteReply
	MsgReadRequest
	MsgReadRequestReply
	MsgReadReply
)

func (t MsgType) String() string {
	switch t {
	case MsgWriteRequest:
		return "WRITE_REQUEST"
	case MsgWriteRequestReply:
		return "WRITE_REQUEST_REPLY"
	case MsgWrite:
		return "WRITE"
	case MsgWriteReply:
		return "WRITE_REPLY"
	case MsgReadRequest:
		return "READ_REQUEST"
	case MsgReadRequestReply:
		return "READ_REQUEST_REPLY"
	case MsgReadReply:
		return "READ_REPLY"
	default:
		return "UNKNOWN"
	}
}

// TxState enumerates the transaction-state field of the RDMA
// immediate, carried on reply messages.
type TxState uint8

const (
	TxNone TxState = iota
	TxWriteReady
	TxWriteCommitted
	TxReadReady
	TxReadAborted
	TxWriteAborted
)

func (s TxState) String() string {
	switch s {
	case TxWriteReady:
		return "WRITE_READY"
	case TxWriteCommitted:
		return "WRITE_COMMITTED"
	case TxReadReady:
		return "READ_READY"
	case TxReadAborted:
		return "READ_ABORTED"
	case TxWriteAborted:
		return "WRITE_ABORTED"
	default:
		return "NONE"
	}
}
