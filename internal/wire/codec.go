package wire

import "encoding/binary"

// Pack encodes (nodeID, pid, msgType, txState, num) into the 32-bit
// RDMA-Write-with-Immediate payload:
//
//	bits[31:24] = nodeID
//	bits[23:16] = pid
//	bits[15:12] = msgType
//	bits[11:8]  = txState
//	bits[7:0]   = num
//
// nodeID, pid and num must fit in a byte; msgType and txState must fit
// in a nibble. Pack is total over the representable domain and is the
// left inverse of Unpack.
func Pack(nodeID, pid uint8, msgType MsgType, txState TxState, num uint8) uint32 {
	return uint32(nodeID)<<24 |
		uint32(pid)<<16 |
		uint32(msgType&0xf)<<12 |
		uint32(txState&0xf)<<8 |
		uint32(num)
}

// Unpack is the inverse of Pack.
func Unpack(imm uint32) (nodeID, pid uint8, msgType MsgType, txState TxState, num uint8) {
	nodeID = uint8(imm >> 24)
	pid = uint8(imm >> 16)
	msgType = MsgType((imm >> 12) & 0xf)
	txState = TxState((imm >> 8) & 0xf)
	num = uint8(imm)
	return
}

// PutImmediate writes imm to b in network (big-endian) byte order, as
// carried on the wire by the RDMA immediate field.
func PutImmediate(b []byte, imm uint32) {
	binary.BigEndian.PutUint32(b, imm)
}

// Immediate reads a big-endian 32-bit immediate from b.
func Immediate(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}
