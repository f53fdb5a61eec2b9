package wire

import "testing"

func TestPackUnpackRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		nodeID  uint8
		pid     uint8
		msgType MsgType
		txState TxState
		num     uint8
	}{
		{"zero", 0, 0, 0, 0, 0},
		{"write request", 1, 2, MsgWriteRequest, TxNone, 4},
		{"read reply", 255, 128, MsgReadReply, TxReadAborted, 1},
		{"boundary all ones", 255, 255, 0xf, 0xf, 255},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			imm := Pack(tt.nodeID, tt.pid, tt.msgType, tt.txState, tt.num)
			gotNode, gotPid, gotType, gotState, gotNum := Unpack(imm)
			if gotNode != tt.nodeID || gotPid != tt.pid || gotType != tt.msgType || gotState != tt.txState || gotNum != tt.num {
				t.Errorf("Unpack(Pack(...)) = (%d,%d,%d,%d,%d), want (%d,%d,%d,%d,%d)",
					gotNode, gotPid, gotType, gotState, gotNum,
					tt.nodeID, tt.pid, tt.msgType, tt.txState, tt.num)
			}
		})
	}
}

// TestBoundaryEncoding verifies the S5 scenario from the test plan:
// pack(255,255,15,15,255) == 0xFFFFFFFF.
func TestBoundaryEncoding(t *testing.T) {
	imm := Pack(255, 255, 0xf, 0xf, 255)
	if imm != 0xFFFFFFFF {
		t.Errorf("Pack(255,255,15,15,255) = 0x%x, want 0xFFFFFFFF", imm)
	}

	nodeID, pid, msgType, txState, num := Unpack(0xFFFFFFFF)
	if nodeID != 255 || pid != 255 || msgType != 15 || txState != 15 || num != 255 {
		t.Errorf("Unpack(0xFFFFFFFF) = (%d,%d,%d,%d,%d), want (255,255,15,15,255)",
			nodeID, pid, msgType, txState, num)
	}
}
