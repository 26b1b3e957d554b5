package engine

import (
	"github.com/shurinov/fadroma/core/coin"
	"github.com/shurinov/fadroma/core/execution"
)

// EntryKind is the kind of a trace entry.
type EntryKind string

const (
	// ExecuteKind is the kind of an execute call.
	ExecuteKind EntryKind = "execute"
	// InstantiateKind is the kind of an instantiation.
	InstantiateKind EntryKind = "instantiate"
	// ReplyKind is the kind of a reply callback.
	ReplyKind EntryKind = "reply"
	// TransferKind is the kind of a bank transfer.
	TransferKind EntryKind = "transfer"
	// StakingKind is the kind of a delegation operation.
	StakingKind EntryKind = "staking"
)

// Entry is an element of the trace of a call.
type Entry interface {
	Kind() EntryKind
}

// Trace is the ordered list of effects triggered by a top-level call. The
// order is the pre-order traversal of the call tree: a sub-message is followed
// by its own nested effects, then by its reply and the effects of the reply,
// before the next sibling.
type Trace []Entry

// ExecuteResult is the trace entry of a successful execute message.
type ExecuteResult struct {
	Sender   string
	Address  string
	Msg      []byte
	Funds    coin.Coins
	Response execution.Response
}

// Kind implements engine.Entry.
func (ExecuteResult) Kind() EntryKind {
	return ExecuteKind
}

// InstantiateResult is the trace entry of a successful instantiate message.
type InstantiateResult struct {
	Sender   string
	Address  string
	CodeID   uint64
	Msg      []byte
	Funds    coin.Coins
	Response execution.Response
}

// Kind implements engine.Entry.
func (InstantiateResult) Kind() EntryKind {
	return InstantiateKind
}

// ReplyResult is the trace entry of a successful reply. The address is the
// contract that received the reply.
type ReplyResult struct {
	Address  string
	Reply    execution.Reply
	Response execution.Response
}

// Kind implements engine.Entry.
func (ReplyResult) Kind() EntryKind {
	return ReplyKind
}

// TransferResult is the trace entry of a bank transfer.
type TransferResult struct {
	Sender   string
	Receiver string
	Coins    coin.Coins
}

// Kind implements engine.Entry.
func (TransferResult) Kind() EntryKind {
	return TransferKind
}

// StakingOp is the operation of a staking entry.
type StakingOp string

const (
	// DelegateOp moves coins from the balance to a delegation.
	DelegateOp StakingOp = "delegate"
	// UndelegateOp moves coins from a delegation to the unbonding queue.
	UndelegateOp StakingOp = "undelegate"
	// RedelegateOp moves coins from a delegation to another.
	RedelegateOp StakingOp = "redelegate"
	// WithdrawOp pays the rewards of a delegation.
	WithdrawOp StakingOp = "withdraw"
)

// StakingResult is the trace entry of a delegation operation. The amount is
// the stake that moved, or the rewards that were paid for a withdraw.
type StakingResult struct {
	Op          StakingOp
	Delegator   string
	Validator   string
	Destination string
	Recipient   string
	Amount      coin.Coins
}

// Kind implements engine.Entry.
func (StakingResult) Kind() EntryKind {
	return StakingKind
}

// InstantiateResponse is the result of a successful top-level instantiation.
type InstantiateResponse struct {
	Sender   string
	Address  string
	CodeID   uint64
	Msg      []byte
	Response execution.Response
	Trace    Trace
}

// ExecuteResponse is the result of a successful top-level execute call.
type ExecuteResponse struct {
	Sender   string
	Address  string
	Msg      []byte
	Response execution.Response
	Trace    Trace
}

// CallEvent is the event sent to the observers of the engine when a top-level
// call returns. Err is nil when the call succeeded and its effects are
// committed. The setup errors detected before the dispatch are not notified.
type CallEvent struct {
	Kind   EntryKind
	Sender string
	Target string
	Height uint64
	Trace  Trace
	Err    error
}
