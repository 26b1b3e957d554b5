// Package value implements a simple native contract that can store, delete, and
// display values.
package value

import (
	"fmt"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/shurinov/fadroma"
	"github.com/shurinov/fadroma/core/execution"
	"github.com/shurinov/fadroma/core/store"
	"golang.org/x/xerrors"
)

// ErrNotFound is returned when a key has no value.
var ErrNotFound = xerrors.New("key not found")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// commands defines the commands of the value contract. This interface helps in
// testing the contract.
type commands interface {
	write(snap store.Snapshot, arg Entry) error
	read(snap store.Readable, arg Key) (Entry, error)
	delete(snap store.Snapshot, arg Key) error
	list(snap store.Iterable) ([]Entry, error)
}

// Command defines a type of command for the value contract
type Command string

const (
	// CmdWrite defines the command to set a value
	CmdWrite Command = "WRITE"

	// CmdRead defines a command to read a value
	CmdRead Command = "READ"

	// CmdDelete defines a command to delete a value
	CmdDelete Command = "DELETE"

	// CmdList defines a command to display all values set (and not deleted)
	// so far.
	CmdList Command = "LIST"
)

// Entry is a key with its value.
type Entry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Key designates the entry of a command.
type Key struct {
	Key string `json:"key"`
}

// InstantiateMsg is the message to create an instance with some entries.
type InstantiateMsg struct {
	Entries []Entry `json:"entries,omitempty"`
}

// ExecuteMsg is the message of an execute call. Exactly one field is set.
type ExecuteMsg struct {
	Write  *Entry `json:"write,omitempty"`
	Delete *Key   `json:"delete,omitempty"`
}

// QueryMsg is the message of a query. Exactly one field is set.
type QueryMsg struct {
	Read *Key      `json:"read,omitempty"`
	List *struct{} `json:"list,omitempty"`
}

// Contract is a simple smart contract that allows one to handle the storage by
// performing CRUD operations.
//
// - implements execution.Contract
type Contract struct {
	// cmd provides the commands executions
	cmd commands

	// printer is the output used by the READ and LIST commands
	printer io.Writer
}

// NewContract creates a new Value contract
func NewContract() Contract {
	contract := Contract{
		printer: infoLog{},
	}

	contract.cmd = valueCommand{Contract: &contract}

	return contract
}

// Instantiate implements execution.Contract. It writes the initial entries.
func (c Contract) Instantiate(deps execution.Deps, env execution.Env, info execution.Info,
	msg []byte) (execution.Response, error) {

	var m InstantiateMsg

	if len(msg) > 0 {
		err := json.Unmarshal(msg, &m)
		if err != nil {
			return execution.Response{}, xerrors.Errorf("failed to decode: %v", err)
		}
	}

	for _, entry := range m.Entries {
		err := c.cmd.write(deps.Store, entry)
		if err != nil {
			return execution.Response{}, xerrors.Errorf("failed to %s: %v", CmdWrite, err)
		}
	}

	return execution.Response{}, nil
}

// Execute implements execution.Contract. It runs the appropriate command.
func (c Contract) Execute(deps execution.Deps, env execution.Env, info execution.Info,
	msg []byte) (execution.Response, error) {

	var m ExecuteMsg

	err := json.Unmarshal(msg, &m)
	if err != nil {
		return execution.Response{}, xerrors.Errorf("failed to decode: %v", err)
	}

	resp := execution.Response{}

	switch {
	case m.Write != nil:
		err := c.cmd.write(deps.Store, *m.Write)
		if err != nil {
			return resp, xerrors.Errorf("failed to %s: %v", CmdWrite, err)
		}

		resp = resp.AddAttribute("action", "write").AddAttribute("key", m.Write.Key)
	case m.Delete != nil:
		err := c.cmd.delete(deps.Store, *m.Delete)
		if err != nil {
			return resp, xerrors.Errorf("failed to %s: %v", CmdDelete, err)
		}

		resp = resp.AddAttribute("action", "delete").AddAttribute("key", m.Delete.Key)
	default:
		return resp, xerrors.New("unknown command")
	}

	return resp, nil
}

// Query implements execution.Contract. A read returns the entry and a list
// returns every entry ordered by key.
func (c Contract) Query(deps execution.QueryDeps, env execution.Env, msg []byte) ([]byte, error) {
	var m QueryMsg

	err := json.Unmarshal(msg, &m)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode: %v", err)
	}

	var res interface{}

	switch {
	case m.Read != nil:
		entry, err := c.cmd.read(deps.Store, *m.Read)
		if err != nil {
			return nil, xerrors.Errorf("failed to %s: %w", CmdRead, err)
		}

		res = entry
	case m.List != nil:
		entries, err := c.cmd.list(deps.Store)
		if err != nil {
			return nil, xerrors.Errorf("failed to %s: %v", CmdList, err)
		}

		res = entries
	default:
		return nil, xerrors.New("unknown command")
	}

	data, err := json.Marshal(res)
	if err != nil {
		return nil, xerrors.Errorf("failed to encode: %v", err)
	}

	return data, nil
}

// Reply implements execution.Contract. The contract never emits sub-messages,
// so that a reply is unexpected.
func (c Contract) Reply(deps execution.Deps, env execution.Env,
	reply execution.Reply) (execution.Response, error) {

	return execution.Response{}, xerrors.Errorf("unexpected reply %d", reply.ID)
}

// valueCommand implements the commands of the value contract
//
// - implements commands
type valueCommand struct {
	*Contract
}

// write implements commands. It performs the WRITE command
func (c valueCommand) write(snap store.Snapshot, arg Entry) error {
	if arg.Key == "" {
		return xerrors.New("key is empty")
	}

	if arg.Value == "" {
		return xerrors.New("value is empty")
	}

	err := snap.Set([]byte(arg.Key), []byte(arg.Value))
	if err != nil {
		return xerrors.Errorf("failed to set value: %v", err)
	}

	fadroma.Logger.Info().Str("contract", "value").Msgf("setting %s=%s", arg.Key, arg.Value)

	return nil
}

// read implements commands. It performs the READ command
func (c valueCommand) read(snap store.Readable, arg Key) (Entry, error) {
	if arg.Key == "" {
		return Entry{}, xerrors.New("key is empty")
	}

	val, err := snap.Get([]byte(arg.Key))
	if err != nil {
		return Entry{}, xerrors.Errorf("failed to get key '%s': %v", arg.Key, err)
	}

	if val == nil {
		return Entry{}, xerrors.Errorf("'%s': %w", arg.Key, ErrNotFound)
	}

	fmt.Fprintf(c.printer, "%s=%s", arg.Key, val)

	return Entry{Key: arg.Key, Value: string(val)}, nil
}

// delete implements commands. It performs the DELETE command
func (c valueCommand) delete(snap store.Snapshot, arg Key) error {
	if arg.Key == "" {
		return xerrors.New("key is empty")
	}

	err := snap.Delete([]byte(arg.Key))
	if err != nil {
		return xerrors.Errorf("failed to delete key '%s': %v", arg.Key, err)
	}

	return nil
}

// list implements commands. It performs the LIST command
func (c valueCommand) list(snap store.Iterable) ([]Entry, error) {
	entries := []Entry{}
	res := []string{}

	err := snap.Scan(nil, func(key, value []byte) error {
		entries = append(entries, Entry{Key: string(key), Value: string(value)})
		res = append(res, fmt.Sprintf("%s=%s", key, value))

		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to scan: %v", err)
	}

	fmt.Fprint(c.printer, strings.Join(res, ","))

	return entries, nil
}

// infoLog defines an output using zerolog
//
// - implements io.writer
type infoLog struct{}

func (h infoLog) Write(p []byte) (int, error) {
	fadroma.Logger.Info().Msg(string(p))

	return len(p), nil
}
