package counter

import (
	"github.com/shurinov/fadroma/core/execution"
	fjson "github.com/shurinov/fadroma/core/execution/json"
)

// Instantiate returns the payload of an instantiation. A nil identifier means
// that no reply fails.
func Instantiate(replyFailID *uint64) []byte {
	return mustEncode(InstantiateMsg{ReplyFailID: replyFailID})
}

// FailOn returns the identifier to pass to Instantiate.
func FailOn(id uint64) *uint64 {
	return &id
}

// RunMsgs returns the payload of a call that emits the sub-messages.
func RunMsgs(msgs ...execution.SubMsg) []byte {
	wrapped := fjson.Wrap(msgs...)
	return mustEncode(ExecuteMsg{RunMsgs: &wrapped})
}

// IncrNumber returns the payload of a call that increments the counter.
func IncrNumber(amount uint32) []byte {
	return mustEncode(ExecuteMsg{IncrNumber: &amount})
}

// IncrAndSend returns the payload of a call that increments the counter and
// sends coins from the instance to the recipient.
func IncrAndSend(amount uint32, recipient string) []byte {
	return mustEncode(ExecuteMsg{IncrAndSend: &IncrAndSendMsg{Amount: amount, Recipient: recipient}})
}

// Fail returns the payload of a call that fails.
func Fail() []byte {
	return mustEncode(ExecuteMsg{Fail: &struct{}{}})
}

// ReplyResponse returns the payload of a call that stores the sub-message to
// emit in the next reply.
func ReplyResponse(msg execution.SubMsg) []byte {
	return mustEncode(ExecuteMsg{ReplyResponse: &fjson.SubMsg{SubMsg: msg}})
}

// Call returns the message to execute the payload on the instance.
func Call(addr string, payload []byte) execution.ExecuteMsg {
	return execution.ExecuteMsg{Contract: addr, Msg: payload}
}

func mustEncode(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic("failed to encode message: " + err.Error())
	}

	return data
}
