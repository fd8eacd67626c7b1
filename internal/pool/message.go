package pool

// Messages crossing the coordinator/host boundary form a closed, tagged set:
// an execute command in one direction, and result/aborted/fault replies in
// the other. Abort is not a channel message (see package doc).

// execCmd carries one task to a host: its id, the program, and the snapshot
// to restore before running. The snapshot was already cloned at submission;
// the host owns this copy outright.
type execCmd struct {
	id      TaskID
	program string
	state   Snapshot
}

// hostMsgKind discriminates host replies.
type hostMsgKind int

const (
	msgResult hostMsgKind = iota // run finished; result carries the outcome
	msgAborted                   // run observed the interrupt flag
	msgFault                     // host failed outside the protocol; terminal
)

// hostMsg is one reply from a host to the coordinator. host identifies the
// sender so the coordinator can ignore messages from hosts it has already
// discarded (after a fault or a pool reset).
type hostMsg struct {
	host   *Host
	kind   hostMsgKind
	id     TaskID
	result *ExecuteResult // msgResult only
	err    error          // msgFault only
}
