package bootstrap

import "fmt"

// qpState names the queue-pair lifecycle stage reached during
// bootstrap. A real implementation would issue an ibv_modify_qp call
// with the full attribute set at each step; none of those attributes
// (MTU, timeouts, retry counts, access flags) are recorded here. Since
// no ibverbs binding exists to build against, bringUpQP validates the
// attributes that matter for
// correctness (nonzero PSN/QPN, dest LID known) and records the
// transition; the concrete rdma.Provider, not this state machine, owns
// the actual verbs call in a hardware-backed implementation.
type qpState int

const (
	qpReset qpState = iota
	qpInit
	qpRTR
	qpRTS
)

func (s qpState) String() string {
	switch s {
	case qpReset:
		return "RESET"
	case qpInit:
		return "INIT"
	case qpRTR:
		return "RTR"
	case qpRTS:
		return "RTS"
	default:
		return "UNKNOWN"
	}
}

// qpAttrs carries the negotiated attributes needed to drive RESET ->
// INIT -> RTR -> RTS, per spec.md §4.5's table.
type qpAttrs struct {
	ibPort  uint8
	localPSN uint32
	peer    NodeInfo
}

// bringUpQP drives the documented state machine and returns the final
// state (RTS) or an error if any transition's required attributes are
// missing. Any failure here is fatal for the peer per spec.md §4.5:
// the caller closes the socket and continues accepting others.
func bringUpQP(attrs qpAttrs) (qpState, error) {
	state := qpReset

	// RESET -> INIT: access flags + pkey_idx + port are local-only and
	// always satisfiable once ibPort is known.
	if attrs.ibPort == 0 {
		return state, fmt.Errorf("bootstrap: ib_port must be nonzero")
	}
	state = qpInit

	// INIT -> RTR: requires the peer's qpn, rq_psn and dlid.
	if attrs.peer.QPN == 0 {
		return state, fmt.Errorf("bootstrap: peer QPN is zero")
	}
	if attrs.peer.LID == 0 && isZeroGID(attrs.peer.GID) {
		return state, fmt.Errorf("bootstrap: peer has neither LID nor GID")
	}
	state = qpRTR

	// RTR -> RTS: requires our own local PSN for sq_psn.
	if attrs.localPSN == 0 {
		return state, fmt.Errorf("bootstrap: local PSN is zero")
	}
	state = qpRTS

	return state, nil
}

func isZeroGID(gid [16]byte) bool {
	for _, b := range gid {
		if b != 0 {
			return false
		}
	}
	return true
}
