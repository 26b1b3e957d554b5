package execution

import (
	"fmt"

	"github.com/shurinov/fadroma/core/coin"
)

// Message is a message emitted by a contract and interpreted by the engine. It
// is implemented by the message types of this package only.
type Message interface {
	isMessage()

	fmt.Stringer
}

// ExecuteMsg calls an existing contract instance.
type ExecuteMsg struct {
	Contract string
	Msg      []byte
	Funds    coin.Coins
}

// InstantiateMsg creates a new instance of a registered code. The label is
// used as the address of the instance, or the engine assigns one if it is
// empty.
type InstantiateMsg struct {
	CodeID uint64
	Label  string
	Msg    []byte
	Funds  coin.Coins
}

// TransferMsg sends coins from the emitting contract to an address.
type TransferMsg struct {
	To     string
	Amount coin.Coins
}

// DelegateMsg delegates coins of the emitting contract to a validator.
type DelegateMsg struct {
	Validator string
	Amount    coin.Coin
}

// UndelegateMsg starts the unbonding of a delegation of the emitting contract.
type UndelegateMsg struct {
	Validator string
	Amount    coin.Coin
}

// RedelegateMsg moves a delegation of the emitting contract to another
// validator.
type RedelegateMsg struct {
	Source      string
	Destination string
	Amount      coin.Coin
}

// WithdrawMsg withdraws the rewards of a delegation of the emitting contract.
// The rewards are sent to the recipient, or to the contract if it is empty.
type WithdrawMsg struct {
	Validator string
	Recipient string
}

func (ExecuteMsg) isMessage()     {}
func (InstantiateMsg) isMessage() {}
func (TransferMsg) isMessage()    {}
func (DelegateMsg) isMessage()    {}
func (UndelegateMsg) isMessage()  {}
func (RedelegateMsg) isMessage()  {}
func (WithdrawMsg) isMessage()    {}

func (m ExecuteMsg) String() string {
	return fmt.Sprintf("execute(%s)", m.Contract)
}

func (m InstantiateMsg) String() string {
	return fmt.Sprintf("instantiate(%d, %s)", m.CodeID, m.Label)
}

func (m TransferMsg) String() string {
	return fmt.Sprintf("transfer(%s, %s)", m.To, m.Amount)
}

func (m DelegateMsg) String() string {
	return fmt.Sprintf("delegate(%s, %s)", m.Validator, m.Amount)
}

func (m UndelegateMsg) String() string {
	return fmt.Sprintf("undelegate(%s, %s)", m.Validator, m.Amount)
}

func (m RedelegateMsg) String() string {
	return fmt.Sprintf("redelegate(%s, %s, %s)", m.Source, m.Destination, m.Amount)
}

func (m WithdrawMsg) String() string {
	return fmt.Sprintf("withdraw(%s, %s)", m.Validator, m.Recipient)
}

// ReplyOn defines when the engine calls back the emitter of a sub-message.
type ReplyOn int

const (
	// ReplyNever never calls back. A failure of the sub-message fails the
	// emitter.
	ReplyNever ReplyOn = iota

	// ReplySuccess calls back only when the sub-message succeeds.
	ReplySuccess

	// ReplyError calls back only when the sub-message fails.
	ReplyError

	// ReplyAlways calls back in both cases.
	ReplyAlways
)

// OnSuccess returns true if the policy calls back a success.
func (r ReplyOn) OnSuccess() bool {
	return r == ReplySuccess || r == ReplyAlways
}

// OnError returns true if the policy calls back a failure.
func (r ReplyOn) OnError() bool {
	return r == ReplyError || r == ReplyAlways
}

func (r ReplyOn) String() string {
	switch r {
	case ReplyNever:
		return "never"
	case ReplySuccess:
		return "success"
	case ReplyError:
		return "error"
	case ReplyAlways:
		return "always"
	default:
		return fmt.Sprintf("ReplyOn(%d)", int(r))
	}
}

// SubMsg is a message with its reply policy and the identifier given back in
// the reply.
type SubMsg struct {
	ID      uint64
	Msg     Message
	ReplyOn ReplyOn
}

// NewSubMsg creates a sub-message that never replies.
func NewSubMsg(msg Message) SubMsg {
	return SubMsg{Msg: msg, ReplyOn: ReplyNever}
}

// ReplyAlwaysMsg creates a sub-message that always replies.
func ReplyAlwaysMsg(msg Message, id uint64) SubMsg {
	return SubMsg{ID: id, Msg: msg, ReplyOn: ReplyAlways}
}

// ReplyOnSuccessMsg creates a sub-message that replies on success.
func ReplyOnSuccessMsg(msg Message, id uint64) SubMsg {
	return SubMsg{ID: id, Msg: msg, ReplyOn: ReplySuccess}
}

// ReplyOnErrorMsg creates a sub-message that replies on error.
func ReplyOnErrorMsg(msg Message, id uint64) SubMsg {
	return SubMsg{ID: id, Msg: msg, ReplyOn: ReplyError}
}
