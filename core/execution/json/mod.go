// Package json defines the JSON format of the messages and sub-messages that
// contracts exchange with the engine.
//
// A message is an object with a single key naming its kind:
//
//	{"execute": {"contract": "A", "msg": {...}, "funds": [...]}}
//
// Contract payloads are embedded as raw JSON and must therefore be valid JSON.
package json

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/shurinov/fadroma/core/coin"
	"github.com/shurinov/fadroma/core/execution"
	"golang.org/x/xerrors"
)

var api = jsoniter.ConfigCompatibleWithStandardLibrary

// ExecuteJSON is the JSON message of an execute message.
type ExecuteJSON struct {
	Contract string             `json:"contract"`
	Msg      jsoniter.RawMessage `json:"msg,omitempty"`
	Funds    coin.Coins          `json:"funds,omitempty"`
}

// InstantiateJSON is the JSON message of an instantiate message.
type InstantiateJSON struct {
	CodeID uint64              `json:"code_id"`
	Label  string              `json:"label,omitempty"`
	Msg    jsoniter.RawMessage `json:"msg,omitempty"`
	Funds  coin.Coins          `json:"funds,omitempty"`
}

// TransferJSON is the JSON message of a transfer.
type TransferJSON struct {
	To     string     `json:"to"`
	Amount coin.Coins `json:"amount"`
}

// DelegationJSON is the JSON message of a delegate or an undelegate message.
type DelegationJSON struct {
	Validator string    `json:"validator"`
	Amount    coin.Coin `json:"amount"`
}

// RedelegateJSON is the JSON message of a redelegate message.
type RedelegateJSON struct {
	Source      string    `json:"src_validator"`
	Destination string    `json:"dst_validator"`
	Amount      coin.Coin `json:"amount"`
}

// WithdrawJSON is the JSON message of a withdraw message.
type WithdrawJSON struct {
	Validator string `json:"validator"`
	Recipient string `json:"recipient,omitempty"`
}

// MessageJSON is the JSON message wrapping the different kinds. Exactly one
// field is expected to be set.
type MessageJSON struct {
	Execute     *ExecuteJSON     `json:"execute,omitempty"`
	Instantiate *InstantiateJSON `json:"instantiate,omitempty"`
	Transfer    *TransferJSON    `json:"transfer,omitempty"`
	Delegate    *DelegationJSON  `json:"delegate,omitempty"`
	Undelegate  *DelegationJSON  `json:"undelegate,omitempty"`
	Redelegate  *RedelegateJSON  `json:"redelegate,omitempty"`
	Withdraw    *WithdrawJSON    `json:"withdraw,omitempty"`
}

// SubMsgJSON is the JSON message of a sub-message. The reply policy defaults
// to "never" when omitted.
type SubMsgJSON struct {
	ID      uint64      `json:"id,omitempty"`
	ReplyOn string      `json:"reply_on,omitempty"`
	Msg     MessageJSON `json:"msg"`
}

// EncodeMessage returns the JSON data of the message.
func EncodeMessage(msg execution.Message) ([]byte, error) {
	m, err := messageToJSON(msg)
	if err != nil {
		return nil, err
	}

	data, err := api.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal: %v", err)
	}

	return data, nil
}

// DecodeMessage returns the message of the JSON data.
func DecodeMessage(data []byte) (execution.Message, error) {
	m := MessageJSON{}

	err := api.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal: %v", err)
	}

	return messageFromJSON(m)
}

// EncodeSubMsg returns the JSON data of the sub-message.
func EncodeSubMsg(msg execution.SubMsg) ([]byte, error) {
	m, err := subMsgToJSON(msg)
	if err != nil {
		return nil, err
	}

	data, err := api.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal: %v", err)
	}

	return data, nil
}

// DecodeSubMsg returns the sub-message of the JSON data.
func DecodeSubMsg(data []byte) (execution.SubMsg, error) {
	m := SubMsgJSON{}

	err := api.Unmarshal(data, &m)
	if err != nil {
		return execution.SubMsg{}, xerrors.Errorf("failed to unmarshal: %v", err)
	}

	return subMsgFromJSON(m)
}

// SubMsg is a sub-message that can be embedded in the payload of a contract
// and is encoded in the JSON format of this package.
type SubMsg struct {
	execution.SubMsg
}

// MarshalJSON implements json.Marshaler.
func (s SubMsg) MarshalJSON() ([]byte, error) {
	return EncodeSubMsg(s.SubMsg)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *SubMsg) UnmarshalJSON(data []byte) error {
	msg, err := DecodeSubMsg(data)
	if err != nil {
		return err
	}

	s.SubMsg = msg

	return nil
}

// Wrap converts the sub-messages into their embeddable version.
func Wrap(msgs ...execution.SubMsg) []SubMsg {
	res := make([]SubMsg, len(msgs))
	for i, msg := range msgs {
		res[i] = SubMsg{SubMsg: msg}
	}

	return res
}

// Unwrap converts the embeddable sub-messages back.
func Unwrap(msgs []SubMsg) []execution.SubMsg {
	res := make([]execution.SubMsg, len(msgs))
	for i, msg := range msgs {
		res[i] = msg.SubMsg
	}

	return res
}

func subMsgToJSON(msg execution.SubMsg) (SubMsgJSON, error) {
	m, err := messageToJSON(msg.Msg)
	if err != nil {
		return SubMsgJSON{}, err
	}

	replyOn := ""
	if msg.ReplyOn != execution.ReplyNever {
		replyOn = msg.ReplyOn.String()
	}

	return SubMsgJSON{ID: msg.ID, ReplyOn: replyOn, Msg: m}, nil
}

func subMsgFromJSON(m SubMsgJSON) (execution.SubMsg, error) {
	replyOn, err := parseReplyOn(m.ReplyOn)
	if err != nil {
		return execution.SubMsg{}, err
	}

	msg, err := messageFromJSON(m.Msg)
	if err != nil {
		return execution.SubMsg{}, err
	}

	return execution.SubMsg{ID: m.ID, Msg: msg, ReplyOn: replyOn}, nil
}

func parseReplyOn(str string) (execution.ReplyOn, error) {
	switch str {
	case "", "never":
		return execution.ReplyNever, nil
	case "success":
		return execution.ReplySuccess, nil
	case "error":
		return execution.ReplyError, nil
	case "always":
		return execution.ReplyAlways, nil
	default:
		return 0, xerrors.Errorf("unknown reply policy '%s'", str)
	}
}

func messageToJSON(msg execution.Message) (MessageJSON, error) {
	m := MessageJSON{}

	switch in := msg.(type) {
	case execution.ExecuteMsg:
		payload, err := rawPayload(in.Msg)
		if err != nil {
			return m, err
		}

		m.Execute = &ExecuteJSON{Contract: in.Contract, Msg: payload, Funds: in.Funds}
	case execution.InstantiateMsg:
		payload, err := rawPayload(in.Msg)
		if err != nil {
			return m, err
		}

		m.Instantiate = &InstantiateJSON{
			CodeID: in.CodeID,
			Label:  in.Label,
			Msg:    payload,
			Funds:  in.Funds,
		}
	case execution.TransferMsg:
		m.Transfer = &TransferJSON{To: in.To, Amount: in.Amount}
	case execution.DelegateMsg:
		m.Delegate = &DelegationJSON{Validator: in.Validator, Amount: in.Amount}
	case execution.UndelegateMsg:
		m.Undelegate = &DelegationJSON{Validator: in.Validator, Amount: in.Amount}
	case execution.RedelegateMsg:
		m.Redelegate = &RedelegateJSON{
			Source:      in.Source,
			Destination: in.Destination,
			Amount:      in.Amount,
		}
	case execution.WithdrawMsg:
		m.Withdraw = &WithdrawJSON{Validator: in.Validator, Recipient: in.Recipient}
	default:
		return m, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	return m, nil
}

func messageFromJSON(m MessageJSON) (execution.Message, error) {
	var res []execution.Message

	if m.Execute != nil {
		funds, err := normalize(m.Execute.Funds)
		if err != nil {
			return nil, err
		}

		res = append(res, execution.ExecuteMsg{
			Contract: m.Execute.Contract,
			Msg:      payloadOf(m.Execute.Msg),
			Funds:    funds,
		})
	}
	if m.Instantiate != nil {
		funds, err := normalize(m.Instantiate.Funds)
		if err != nil {
			return nil, err
		}

		res = append(res, execution.InstantiateMsg{
			CodeID: m.Instantiate.CodeID,
			Label:  m.Instantiate.Label,
			Msg:    payloadOf(m.Instantiate.Msg),
			Funds:  funds,
		})
	}
	if m.Transfer != nil {
		amount, err := normalize(m.Transfer.Amount)
		if err != nil {
			return nil, err
		}

		res = append(res, execution.TransferMsg{To: m.Transfer.To, Amount: amount})
	}
	if m.Delegate != nil {
		res = append(res, execution.DelegateMsg{
			Validator: m.Delegate.Validator,
			Amount:    m.Delegate.Amount,
		})
	}
	if m.Undelegate != nil {
		res = append(res, execution.UndelegateMsg{
			Validator: m.Undelegate.Validator,
			Amount:    m.Undelegate.Amount,
		})
	}
	if m.Redelegate != nil {
		res = append(res, execution.RedelegateMsg{
			Source:      m.Redelegate.Source,
			Destination: m.Redelegate.Destination,
			Amount:      m.Redelegate.Amount,
		})
	}
	if m.Withdraw != nil {
		res = append(res, execution.WithdrawMsg{
			Validator: m.Withdraw.Validator,
			Recipient: m.Withdraw.Recipient,
		})
	}

	if len(res) != 1 {
		return nil, xerrors.Errorf("expected one message kind, got %d", len(res))
	}

	return res[0], nil
}

// normalize sorts and merges the coins. An empty list is returned as nil.
func normalize(coins coin.Coins) (coin.Coins, error) {
	if len(coins) == 0 {
		return nil, nil
	}

	res, err := coin.NewCoins(coins...)
	if err != nil {
		return nil, xerrors.Errorf("invalid coins: %v", err)
	}

	if len(res) == 0 {
		return nil, nil
	}

	return res, nil
}

func rawPayload(payload []byte) (jsoniter.RawMessage, error) {
	if len(payload) == 0 {
		return nil, nil
	}

	if !api.Valid(payload) {
		return nil, xerrors.Errorf("payload is not valid JSON: %q", payload)
	}

	return jsoniter.RawMessage(payload), nil
}

func payloadOf(raw jsoniter.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}

	return append([]byte{}, raw...)
}
