package value

import (
	"bytes"
	"testing"

	"github.com/shurinov/fadroma/core/execution"
	"github.com/shurinov/fadroma/core/store"
	"github.com/shurinov/fadroma/internal/testing/fake"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestContract_Instantiate(t *testing.T) {
	contract := NewContract()

	snap := fake.NewSnapshot()

	_, err := contract.Instantiate(makeDeps(snap), execution.Env{}, execution.Info{},
		[]byte(`{"entries":[{"key":"a","value":"1"},{"key":"b","value":"2"}]}`))
	require.NoError(t, err)

	value, err := snap.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, "2", string(value))

	_, err = contract.Instantiate(makeDeps(snap), execution.Env{}, execution.Info{}, nil)
	require.NoError(t, err)

	_, err = contract.Instantiate(makeDeps(snap), execution.Env{}, execution.Info{}, []byte("{"))
	require.Error(t, err)
	require.Regexp(t, "^failed to decode: ", err.Error())

	_, err = contract.Instantiate(makeDeps(fake.NewBadSnapshot()), execution.Env{}, execution.Info{},
		[]byte(`{"entries":[{"key":"a","value":"1"}]}`))
	require.EqualError(t, err, fake.Err("failed to WRITE: failed to set value"))
}

func TestContract_Execute(t *testing.T) {
	contract := NewContract()
	contract.cmd = fakeCmd{err: fake.GetError()}

	_, err := contract.Execute(makeDeps(nil), execution.Env{}, execution.Info{},
		[]byte(`{"write":{"key":"a","value":"1"}}`))
	require.EqualError(t, err, fake.Err("failed to WRITE"))

	_, err = contract.Execute(makeDeps(nil), execution.Env{}, execution.Info{},
		[]byte(`{"delete":{"key":"a"}}`))
	require.EqualError(t, err, fake.Err("failed to DELETE"))

	_, err = contract.Execute(makeDeps(nil), execution.Env{}, execution.Info{}, []byte(`{}`))
	require.EqualError(t, err, "unknown command")

	_, err = contract.Execute(makeDeps(nil), execution.Env{}, execution.Info{}, []byte(`[]`))
	require.Error(t, err)
	require.Regexp(t, "^failed to decode: ", err.Error())

	contract.cmd = fakeCmd{}

	resp, err := contract.Execute(makeDeps(nil), execution.Env{}, execution.Info{},
		[]byte(`{"write":{"key":"a","value":"1"}}`))
	require.NoError(t, err)
	require.Equal(t, []execution.Attribute{
		{Key: "action", Value: "write"},
		{Key: "key", Value: "a"},
	}, resp.Attributes)

	resp, err = contract.Execute(makeDeps(nil), execution.Env{}, execution.Info{},
		[]byte(`{"delete":{"key":"a"}}`))
	require.NoError(t, err)
	require.Equal(t, "delete", resp.Attributes[0].Value)
}

func TestContract_Query(t *testing.T) {
	contract := NewContract()
	contract.printer = &bytes.Buffer{}

	snap := fake.NewSnapshot()
	snap.Set([]byte("b"), []byte("2"))
	snap.Set([]byte("a"), []byte("1"))

	deps := execution.QueryDeps{Store: snap}

	data, err := contract.Query(deps, execution.Env{}, []byte(`{"read":{"key":"a"}}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"key":"a","value":"1"}`, string(data))

	data, err = contract.Query(deps, execution.Env{}, []byte(`{"list":{}}`))
	require.NoError(t, err)
	require.JSONEq(t, `[{"key":"a","value":"1"},{"key":"b","value":"2"}]`, string(data))

	_, err = contract.Query(deps, execution.Env{}, []byte(`{"read":{"key":"c"}}`))
	require.EqualError(t, err, "failed to READ: 'c': key not found")
	require.True(t, xerrors.Is(err, ErrNotFound))

	_, err = contract.Query(deps, execution.Env{}, []byte(`{}`))
	require.EqualError(t, err, "unknown command")

	_, err = contract.Query(deps, execution.Env{}, []byte(`{`))
	require.Error(t, err)

	contract.cmd = fakeCmd{err: fake.GetError()}

	_, err = contract.Query(deps, execution.Env{}, []byte(`{"list":{}}`))
	require.EqualError(t, err, fake.Err("failed to LIST"))
}

func TestContract_Reply(t *testing.T) {
	contract := NewContract()

	_, err := contract.Reply(makeDeps(nil), execution.Env{}, execution.Reply{ID: 3})
	require.EqualError(t, err, "unexpected reply 3")
}

func TestCommand_Write(t *testing.T) {
	contract := NewContract()

	cmd := valueCommand{
		Contract: &contract,
	}

	err := cmd.write(fake.NewSnapshot(), Entry{})
	require.EqualError(t, err, "key is empty")

	err = cmd.write(fake.NewSnapshot(), Entry{Key: "dummy"})
	require.EqualError(t, err, "value is empty")

	err = cmd.write(fake.NewBadSnapshot(), Entry{Key: "dummy", Value: "value"})
	require.EqualError(t, err, fake.Err("failed to set value"))

	snap := fake.NewSnapshot()

	err = cmd.write(snap, Entry{Key: "dummy", Value: "value"})
	require.NoError(t, err)

	res, err := snap.Get([]byte("dummy"))
	require.NoError(t, err)
	require.Equal(t, "value", string(res))
}

func TestCommand_Read(t *testing.T) {
	contract := NewContract()

	cmd := valueCommand{
		Contract: &contract,
	}

	_, err := cmd.read(fake.NewSnapshot(), Key{})
	require.EqualError(t, err, "key is empty")

	_, err = cmd.read(fake.NewBadSnapshot(), Key{Key: "dummy"})
	require.EqualError(t, err, fake.Err("failed to get key 'dummy'"))

	snap := fake.NewSnapshot()
	snap.Set([]byte("dummy"), []byte("value"))

	buf := &bytes.Buffer{}
	cmd.Contract.printer = buf

	entry, err := cmd.read(snap, Key{Key: "dummy"})
	require.NoError(t, err)
	require.Equal(t, Entry{Key: "dummy", Value: "value"}, entry)

	require.Equal(t, "dummy=value", buf.String())
}

func TestCommand_Delete(t *testing.T) {
	contract := NewContract()

	cmd := valueCommand{
		Contract: &contract,
	}

	err := cmd.delete(fake.NewSnapshot(), Key{})
	require.EqualError(t, err, "key is empty")

	err = cmd.delete(fake.NewBadSnapshot(), Key{Key: "dummy"})
	require.EqualError(t, err, fake.Err("failed to delete key 'dummy'"))

	snap := fake.NewSnapshot()
	snap.Set([]byte("dummy"), []byte("value"))

	err = cmd.delete(snap, Key{Key: "dummy"})
	require.NoError(t, err)

	res, err := snap.Get([]byte("dummy"))
	require.Nil(t, err)
	require.Nil(t, res)
}

func TestCommand_List(t *testing.T) {
	contract := NewContract()

	buf := &bytes.Buffer{}
	contract.printer = buf

	cmd := valueCommand{
		Contract: &contract,
	}

	snap := fake.NewSnapshot()
	snap.Set([]byte("key2"), []byte("value2"))
	snap.Set([]byte("key1"), []byte("value1"))

	entries, err := cmd.list(snap)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.Equal(t, "key1=value1,key2=value2", buf.String())

	_, err = cmd.list(fake.NewBadSnapshot())
	require.EqualError(t, err, fake.Err("failed to scan"))
}

func TestInfoLog(t *testing.T) {
	log := infoLog{}

	n, err := log.Write([]byte{0b0, 0b1})
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

// -----------------------------------------------------------------------------
// Utility functions

func makeDeps(snap store.IterableSnapshot) execution.Deps {
	return execution.Deps{Store: snap}
}

type fakeCmd struct {
	err error
}

func (c fakeCmd) write(snap store.Snapshot, arg Entry) error {
	return c.err
}

func (c fakeCmd) read(snap store.Readable, arg Key) (Entry, error) {
	return Entry{}, c.err
}

func (c fakeCmd) delete(snap store.Snapshot, arg Key) error {
	return c.err
}

func (c fakeCmd) list(snap store.Iterable) ([]Entry, error) {
	return nil, c.err
}
