// Package bootstrap implements the TCP connection bootstrap and queue
// pair state machine (C5): the out-of-band exchange that negotiates
// RDMA queue-pair attributes before the RDMA control plane can be
// used.
package bootstrap

import (
	"encoding/binary"
	"fmt"
	"io"
)

// NodeInfo is the fixed-size struct exchanged verbatim over TCP during
// bootstrap. spec.md §6 calls for "fixed-size, little-endian native
// layout (no portability conversion applied)" — both peers must agree
// on the exact byte layout, so the wire encoding here is a literal
// little-endian field dump, not a portable framing format.
type NodeInfo struct {
	NodeID uint8
	IBPort uint8
	_      [2]byte // pad to 4-byte align LID/QPN/PSN
	LID    uint16
	_      [2]byte
	QPN    uint32
	PSN    uint32
	GID    [16]byte
	MM     uint64 // base address of this node's ClientMetaRegion slice
	Rkey   uint32
	_      [4]byte // pad struct to a multiple of 8 bytes
}

// nodeInfoSize is sizeof(NodeInfo) under the layout above: 1+1+2+2+2+4+4+16+8+4+4.
const nodeInfoSize = 48

// WriteTo writes n to w in the fixed little-endian wire layout. A
// short write is fatal per spec.md §6.
func (n *NodeInfo) WriteTo(w io.Writer) error {
	buf := make([]byte, nodeInfoSize)
	buf[0] = n.NodeID
	buf[1] = n.IBPort
	binary.LittleEndian.PutUint16(buf[4:6], n.LID)
	binary.LittleEndian.PutUint32(buf[8:12], n.QPN)
	binary.LittleEndian.PutUint32(buf[12:16], n.PSN)
	copy(buf[16:32], n.GID[:])
	binary.LittleEndian.PutUint64(buf[32:40], n.MM)
	binary.LittleEndian.PutUint32(buf[40:44], n.Rkey)

	written, err := w.Write(buf)
	if err != nil {
		return err
	}
	if written != nodeInfoSize {
		return fmt.Errorf("bootstrap: short write of NodeInfo (%d of %d bytes)", written, nodeInfoSize)
	}
	return nil
}

// ReadNodeInfo reads a full NodeInfo from r. A short read is fatal.
func ReadNodeInfo(r io.Reader) (NodeInfo, error) {
	buf := make([]byte, nodeInfoSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return NodeInfo{}, fmt.Errorf("bootstrap: short read of NodeInfo: %w", err)
	}
	var n NodeInfo
	n.NodeID = buf[0]
	n.IBPort = buf[1]
	n.LID = binary.LittleEndian.Uint16(buf[4:6])
	n.QPN = binary.LittleEndian.Uint32(buf[8:12])
	n.PSN = binary.LittleEndian.Uint32(buf[12:16])
	copy(n.GID[:], buf[16:32])
	n.MM = binary.LittleEndian.Uint64(buf[32:40])
	n.Rkey = binary.LittleEndian.Uint32(buf[40:44])
	return n, nil
}
