package scenario

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/shurinov/fadroma/contracts/counter"
	"github.com/shurinov/fadroma/core/engine"
	"github.com/stretchr/testify/require"
)

func TestRunner_Order(t *testing.T) {
	s, err := Load("testdata/order.yml")
	require.NoError(t, err)
	require.Equal(t, "correct message order", s.Name)
	require.Len(t, s.Steps, 8)

	results, err := newRunner().Run(s)
	require.NoError(t, err)
	require.Len(t, results, 8)

	run := results[3]
	require.Equal(t, "run", run.Name)
	require.Equal(t, "execute", run.Kind)
	require.Equal(t, "A", run.Address)

	kinds := make([]engine.EntryKind, len(run.Trace))
	for i, entry := range run.Trace {
		kinds[i] = entry.Kind()
	}

	require.Equal(t, []engine.EntryKind{
		engine.ExecuteKind,
		engine.ExecuteKind,
		engine.ReplyKind,
		engine.ExecuteKind,
		engine.ReplyKind,
		engine.ExecuteKind,
	}, kinds)

	require.Error(t, results[7].Err)
}

func TestRunner_Ledger(t *testing.T) {
	s, err := Load("testdata/ledger.yml")
	require.NoError(t, err)

	r := newRunner()

	results, err := r.Run(s)
	require.NoError(t, err)
	require.Len(t, results, len(s.Steps))

	require.Equal(t, "rewards", results[9].Kind)
	require.Equal(t, "fast_forward", results[15].Kind)
	require.Equal(t, []string{"registry", "staker"}, r.Engine().Contracts())
}

func TestLoad_Failures(t *testing.T) {
	_, err := Load("testdata/unknown.yml")
	require.Error(t, err)
	require.Regexp(t, "^failed to read scenario: ", err.Error())

	_, err = Parse([]byte("steps:\n  - unknown: true\n"))
	require.Error(t, err)
	require.Regexp(t, "^failed to decode scenario: ", err.Error())

	_, err = Parse([]byte("steps:\n  - next_block: true\n    fast_forward: true\n"))
	require.EqualError(t, err, "step 0: expected one action, got 2")

	_, err = Parse([]byte("steps:\n  - name: nothing\n"))
	require.EqualError(t, err, "step 0: expected one action, got 0")
}

func TestRunner_Failures(t *testing.T) {
	run := func(data string) error {
		s, err := Parse([]byte(data))
		require.NoError(t, err)

		_, err = newRunner().Run(s)

		return err
	}

	err := run("funds: {alice: abc}")
	require.EqualError(t, err, "failed to setup: funds of 'alice': invalid coin 'abc'")

	err = run("validators: ['']")
	require.Error(t, err)
	require.Regexp(t, "^failed to setup: ", err.Error())

	err = run(`
steps:
  - instantiate: {code: unknown, sender: alice}
`)
	require.EqualError(t, err, "step 0 (instantiate): unknown code 'unknown'")

	err = run(`
steps:
  - instantiate: {code: counter, sender: alice, funds: abc}
`)
	require.EqualError(t, err, "step 0 (instantiate): invalid coin 'abc'")

	err = run(`
steps:
  - execute: {sender: alice, contract: A, msg: '{}'}
`)
	require.EqualError(t, err, "step 0 (execute): failed to execute: 'A': unknown contract")

	err = run(`
steps:
  - instantiate: {code: counter, sender: alice, address: A}
  - execute: {sender: alice, contract: A, msg: '{"incr_number": 1}'}
    error: fail
`)
	require.EqualError(t, err, "step 1 (execute): expected error 'fail'")

	err = run(`
steps:
  - instantiate: {code: counter, sender: alice, address: A}
  - execute: {sender: alice, contract: A, msg: '{"fail": {}}'}
    error: empty message
`)
	require.EqualError(t, err,
		"step 1 (execute): expected error 'empty message', got: failed to execute: fail")

	err = run(`
steps:
  - instantiate: {code: counter, sender: alice, address: A}
  - query: {contract: A, expect: '{"num": 2}'}
`)
	require.Error(t, err)
	require.Regexp(t, `^step 1 \(query\): mismatch: expected`, err.Error())

	err = run(`
steps:
  - instantiate: {code: counter, sender: alice, address: A}
  - query: {contract: A, expect: '{'}
`)
	require.Error(t, err)
	require.Regexp(t, `^step 1 \(query\): invalid expectation: `, err.Error())

	err = run(`
steps:
  - balance: {address: alice, expect: 5uscrt}
`)
	require.EqualError(t, err, "step 0 (balance): balance of 'alice': expected '5uscrt', got ''")

	err = run(`
steps:
  - balance: {address: alice, expect: abc}
`)
	require.EqualError(t, err, "step 0 (balance): invalid coin 'abc'")
}

func TestRunner_Register(t *testing.T) {
	r := newRunner()
	r.Register("other", counter.NewContract())

	s, err := Parse([]byte(`
steps:
  - instantiate: {code: other, sender: alice}
`))
	require.NoError(t, err)

	results, err := r.Run(s)
	require.NoError(t, err)
	require.Equal(t, "contract2-1", results[0].Address)
}

// -----------------------------------------------------------------------------
// Utility functions

func newRunner() *Runner {
	return NewRunner(engine.New(engine.WithLogger(zerolog.Nop())))
}
