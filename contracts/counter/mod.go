// Package counter implements a contract that keeps a counter and runs the
// sub-messages it is given. It is used to exercise the ordering and the
// rollback rules of the engine.
package counter

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/shurinov/fadroma/core/coin"
	"github.com/shurinov/fadroma/core/execution"
	fjson "github.com/shurinov/fadroma/core/execution/json"
	"github.com/shurinov/fadroma/core/store"
	"golang.org/x/xerrors"
)

// Limit is the largest value the counter accepts.
const Limit = 10

// EventType is the type of the event emitted by a reply.
const EventType = "msg_order"

// SendAmount is the amount of the bonded denomination sent by IncrAndSend.
const SendAmount = 100

var (
	// ErrFail is returned by the Fail message.
	ErrFail = xerrors.New("fail")

	// ErrTooBig is returned when the counter goes over the limit.
	ErrTooBig = xerrors.New("number is bigger than 10")

	// ErrReply is returned by a reply with the configured identifier.
	ErrReply = xerrors.New("failed in reply")

	keyNum   = []byte("num")
	keyFail  = []byte("fail")
	keyReply = []byte("reply")

	json = jsoniter.ConfigCompatibleWithStandardLibrary
)

// InstantiateMsg is the message to create an instance. When set, the replies
// with the given identifier fail.
type InstantiateMsg struct {
	ReplyFailID *uint64 `json:"reply_fail_id,omitempty"`
}

// IncrAndSendMsg increments the counter and sends coins to the recipient.
type IncrAndSendMsg struct {
	Amount    uint32 `json:"amount"`
	Recipient string `json:"recipient"`
}

// ExecuteMsg is the message of an execute call. Exactly one field is set.
type ExecuteMsg struct {
	RunMsgs       *[]fjson.SubMsg `json:"run_msgs,omitempty"`
	IncrNumber    *uint32         `json:"incr_number,omitempty"`
	IncrAndSend   *IncrAndSendMsg `json:"incr_and_send,omitempty"`
	Fail          *struct{}       `json:"fail,omitempty"`
	ReplyResponse *fjson.SubMsg   `json:"reply_response,omitempty"`
}

// QueryResponse is the answer to any query.
type QueryResponse struct {
	Num     uint32    `json:"num"`
	Balance coin.Coin `json:"balance"`
}

// Contract is the counter contract.
//
// - implements execution.Contract
type Contract struct{}

// NewContract returns a new counter contract.
func NewContract() Contract {
	return Contract{}
}

// Instantiate implements execution.Contract. It stores the identifier of the
// replies to fail, if any.
func (Contract) Instantiate(deps execution.Deps, env execution.Env, info execution.Info,
	msg []byte) (execution.Response, error) {

	var m InstantiateMsg

	if len(msg) > 0 {
		err := json.Unmarshal(msg, &m)
		if err != nil {
			return execution.Response{}, xerrors.Errorf("failed to decode: %v", err)
		}
	}

	if m.ReplyFailID != nil {
		err := save(deps.Store, keyFail, *m.ReplyFailID)
		if err != nil {
			return execution.Response{}, err
		}
	}

	return execution.Response{}, nil
}

// Execute implements execution.Contract.
func (Contract) Execute(deps execution.Deps, env execution.Env, info execution.Info,
	msg []byte) (execution.Response, error) {

	var m ExecuteMsg

	err := json.Unmarshal(msg, &m)
	if err != nil {
		return execution.Response{}, xerrors.Errorf("failed to decode: %v", err)
	}

	resp := execution.Response{}

	switch {
	case m.RunMsgs != nil:
		resp = resp.AddSubMessages(fjson.Unwrap(*m.RunMsgs)...)
	case m.IncrNumber != nil:
		err = increment(deps.Store, *m.IncrNumber)
		if err != nil {
			return resp, err
		}
	case m.IncrAndSend != nil:
		err = increment(deps.Store, m.IncrAndSend.Amount)
		if err != nil {
			return resp, err
		}

		resp = resp.AddMessage(execution.TransferMsg{
			To:     m.IncrAndSend.Recipient,
			Amount: coin.Coins{coin.New(SendAmount, deps.Querier.BondedDenom())},
		})
	case m.ReplyResponse != nil:
		err = save(deps.Store, keyReply, *m.ReplyResponse)
		if err != nil {
			return resp, err
		}
	case m.Fail != nil:
		return resp, ErrFail
	default:
		return resp, xerrors.New("empty message")
	}

	return resp, nil
}

// Query implements execution.Contract. It returns the counter and the balance
// of the instance.
func (Contract) Query(deps execution.QueryDeps, env execution.Env, msg []byte) ([]byte, error) {
	num, err := loadNum(deps.Store)
	if err != nil {
		return nil, err
	}

	balance, err := deps.Querier.Balance(env.Contract.Address, deps.Querier.BondedDenom())
	if err != nil {
		return nil, xerrors.Errorf("failed to query balance: %v", err)
	}

	data, err := json.Marshal(QueryResponse{Num: num, Balance: balance})
	if err != nil {
		return nil, xerrors.Errorf("failed to encode: %v", err)
	}

	return data, nil
}

// Reply implements execution.Contract. It fails for the configured identifier
// and otherwise emits an event describing the reply, followed by the stored
// sub-message if any.
func (Contract) Reply(deps execution.Deps, env execution.Env,
	reply execution.Reply) (execution.Response, error) {

	var failID uint64

	found, err := load(deps.Store, keyFail, &failID)
	if err != nil {
		return execution.Response{}, err
	}

	if found && failID == reply.ID {
		return execution.Response{}, ErrReply
	}

	event := execution.NewEvent(EventType).AddAttribute("submsg_reply",
		fmt.Sprintf("address: %s, id: %d, success: %t",
			env.Contract.Address, reply.ID, reply.Result.IsOk()))

	resp := execution.Response{}.AddEvent(event)

	var next fjson.SubMsg

	found, err = load(deps.Store, keyReply, &next)
	if err != nil {
		return execution.Response{}, err
	}

	if found {
		resp = resp.AddSubMessage(next.SubMsg)

		err = deps.Store.Delete(keyReply)
		if err != nil {
			return execution.Response{}, xerrors.Errorf("failed to delete reply: %v", err)
		}
	}

	return resp, nil
}

func increment(s store.Snapshot, amount uint32) error {
	num, err := loadNum(s)
	if err != nil {
		return err
	}

	num += amount

	err = save(s, keyNum, num)
	if err != nil {
		return err
	}

	if num > Limit {
		return ErrTooBig
	}

	return nil
}

func loadNum(s store.Readable) (uint32, error) {
	var num uint32

	_, err := load(s, keyNum, &num)

	return num, err
}

func load(s store.Readable, key []byte, v interface{}) (bool, error) {
	data, err := s.Get(key)
	if err != nil {
		return false, xerrors.Errorf("failed to read '%s': %v", key, err)
	}

	if data == nil {
		return false, nil
	}

	err = json.Unmarshal(data, v)
	if err != nil {
		return false, xerrors.Errorf("failed to decode '%s': %v", key, err)
	}

	return true, nil
}

func save(s store.Writable, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return xerrors.Errorf("failed to encode '%s': %v", key, err)
	}

	err = s.Set(key, data)
	if err != nil {
		return xerrors.Errorf("failed to write '%s': %v", key, err)
	}

	return nil
}
