package engine

import (
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shurinov/fadroma/contracts/counter"
	"github.com/shurinov/fadroma/core/bank"
	"github.com/shurinov/fadroma/core/coin"
	"github.com/shurinov/fadroma/core/execution"
	"github.com/shurinov/fadroma/core/execution/native"
	"github.com/shurinov/fadroma/core/staking"
	"github.com/shurinov/fadroma/core/store"
	"github.com/shurinov/fadroma/core/store/mem"
	"github.com/shurinov/fadroma/core/store/versioned"
	"github.com/shurinov/fadroma/internal/testing/fake"
	"github.com/shurinov/fadroma/internal/tracing"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func TestEngine_New(t *testing.T) {
	e := New()

	require.Equal(t, DefaultConfig(), e.Config())
	require.Equal(t, "fadroma-ensemble-testnet", e.ChainID())
	require.Equal(t, uint64(1), e.Block().Height)
	require.Equal(t, time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), e.Block().Time.UTC())
	require.False(t, e.IsFrozen())
	require.Empty(t, e.Contracts())
	require.Equal(t, float64(1), testutil.ToFloat64(promHeight))
}

func TestEngine_Register(t *testing.T) {
	e := newTestEngine()

	require.Equal(t, uint64(0), e.Register(counter.NewContract()))
	require.Equal(t, uint64(1), e.Register(counter.NewContract()))
}

func TestEngine_Instantiate(t *testing.T) {
	e := newTestEngine()
	code := e.Register(counter.NewContract())

	require.NoError(t, e.AddFunds(sender, uscrt(500)))

	resp, err := e.Instantiate(code, counter.Instantiate(nil),
		NewCallEnv(sender, addrA).WithFunds(uscrt(200)))
	require.NoError(t, err)
	require.Equal(t, addrA, resp.Address)
	require.Equal(t, sender, resp.Sender)
	require.Equal(t, code, resp.CodeID)
	require.Empty(t, resp.Trace)

	requireBalance(t, e, sender, 300)
	requireBalance(t, e, addrA, 200)

	codeID, err := e.CodeOf(addrA)
	require.NoError(t, err)
	require.Equal(t, code, codeID)

	require.Equal(t, uint64(2), e.Block().Height)
	require.Equal(t, []string{addrA}, e.Contracts())
}

func TestEngine_InstantiateGeneratedAddress(t *testing.T) {
	e := newTestEngine()
	e.Register(counter.NewContract())
	code := e.Register(counter.NewContract())

	resp, err := e.Instantiate(code, nil, NewCallEnv(sender, ""))
	require.NoError(t, err)
	require.Equal(t, "contract1-1", resp.Address)

	resp, err = e.Instantiate(code, nil, NewCallEnv(sender, ""))
	require.NoError(t, err)
	require.Equal(t, "contract1-2", resp.Address)

	// an address taken explicitly is skipped
	_, err = e.Instantiate(code, nil, NewCallEnv(sender, "contract1-3"))
	require.NoError(t, err)

	resp, err = e.Instantiate(code, nil, NewCallEnv(sender, ""))
	require.NoError(t, err)
	require.Equal(t, "contract1-4", resp.Address)

	// unknown codes do not consume a sequence number
	_, err = e.Instantiate(9, nil, NewCallEnv(sender, ""))
	require.EqualError(t, err, "failed to instantiate: code 9: unknown code")

	_, err = e.Execute(counter.RunMsgs(
		execution.NewSubMsg(execution.InstantiateMsg{CodeID: 9}),
	), NewCallEnv(sender, "contract1-1"))
	require.EqualError(t, err, "failed to execute: code 9: unknown code")

	resp, err = e.Instantiate(code, nil, NewCallEnv(sender, ""))
	require.NoError(t, err)
	require.Equal(t, "contract1-5", resp.Address)
}

func TestEngine_InstantiateSetupErrors(t *testing.T) {
	e := initCounters(t, nil, nil, nil)
	block := e.Block()

	_, err := e.Instantiate(5, nil, NewCallEnv(sender, "D"))
	require.EqualError(t, err, "failed to instantiate: code 5: unknown code")
	require.True(t, xerrors.Is(err, native.ErrUnknownCode))

	_, err = e.Instantiate(0, nil, NewCallEnv(sender, addrA))
	require.EqualError(t, err, "failed to instantiate: 'A': address already in use")
	require.True(t, xerrors.Is(err, native.ErrAddressInUse))

	require.Equal(t, block, e.Block())
	require.Equal(t, []string{addrA, addrB, addrC}, e.Contracts())
}

func TestEngine_InstantiateFailureRemovesInstance(t *testing.T) {
	e := newTestEngine()
	code := e.Register(counter.NewContract())

	_, err := e.Instantiate(code, []byte("{"), NewCallEnv(sender, addrA))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to instantiate: failed to decode")
	require.Empty(t, e.Contracts())

	_, err = e.Instantiate(code, nil, NewCallEnv(sender, addrA).WithFunds(uscrt(1)))
	require.Error(t, err)
	require.True(t, xerrors.Is(err, bank.ErrInsufficientFunds))
	require.Empty(t, e.Contracts())

	_, err = e.Instantiate(code, nil, NewCallEnv(sender, addrA))
	require.NoError(t, err)
	require.Equal(t, []string{addrA}, e.Contracts())
}

func TestEngine_InstantiateFromMessage(t *testing.T) {
	e := initCounters(t, nil, nil, nil)

	resp, err := e.Execute(counter.RunMsgs(
		execution.NewSubMsg(execution.InstantiateMsg{
			CodeID: 0,
			Label:  "D",
			Msg:    counter.Instantiate(nil),
		}),
		execution.NewSubMsg(counter.Call("D", counter.IncrNumber(4))),
	), NewCallEnv(sender, addrA))
	require.NoError(t, err)

	requireTrace(t, resp.Trace,
		step{kind: InstantiateKind, address: "D", sender: addrA},
		execStep("D", addrA),
	)

	require.Equal(t, uint32(4), counterState(t, e, "D").Num)

	// the instance created by a committed sub-message is removed when an
	// outer level fails.
	resp, err = e.Execute(counter.RunMsgs(
		execution.ReplyOnErrorMsg(callB(counter.RunMsgs(
			execution.NewSubMsg(execution.InstantiateMsg{CodeID: 0, Label: "E"}),
			execution.NewSubMsg(callC(counter.Fail())),
		)), 1),
	), NewCallEnv(sender, addrA))
	require.NoError(t, err)

	requireTrace(t, resp.Trace, replyStep(addrA, 1))

	require.Equal(t, []string{addrA, addrB, addrC, "D"}, e.Contracts())

	_, err = e.ContractStore("E")
	require.True(t, xerrors.Is(err, native.ErrUnknownContract))

	// the address is free again
	_, err = e.Instantiate(0, nil, NewCallEnv(sender, "E"))
	require.NoError(t, err)
}

func TestEngine_Execute(t *testing.T) {
	e := initCounters(t, nil, nil, nil)
	require.NoError(t, e.AddFunds(sender, uscrt(50)))

	resp, err := e.Execute(counter.IncrNumber(2), NewCallEnv(sender, addrA).WithFunds(uscrt(20)))
	require.NoError(t, err)
	require.Equal(t, addrA, resp.Address)
	require.Equal(t, sender, resp.Sender)
	require.Equal(t, counter.IncrNumber(2), resp.Msg)
	require.Empty(t, resp.Trace)

	requireBalance(t, e, sender, 30)
	requireBalance(t, e, addrA, 20)
	require.Equal(t, uint32(2), counterState(t, e, addrA).Num)
}

func TestEngine_ExecuteFailures(t *testing.T) {
	e := initCounters(t, nil, nil, nil)

	_, err := e.Execute(counter.IncrNumber(1), NewCallEnv(sender, "D"))
	require.EqualError(t, err, "failed to execute: 'D': unknown contract")
	require.True(t, xerrors.Is(err, native.ErrUnknownContract))

	_, err = e.Execute(counter.IncrNumber(1), NewCallEnv(sender, addrA).WithFunds(uscrt(1)))
	require.True(t, xerrors.Is(err, bank.ErrInsufficientFunds))

	_, err = e.Execute(counter.IncrNumber(11), NewCallEnv(sender, addrA))
	require.EqualError(t, err, "failed to execute: number is bigger than 10")

	_, err = e.Execute([]byte("{}"), NewCallEnv(sender, addrA))
	require.EqualError(t, err, "failed to execute: empty message")

	require.Equal(t, uint32(0), counterState(t, e, addrA).Num)
}

func TestEngine_FailureRevertsEverything(t *testing.T) {
	e := initCounters(t, nil, nil, nil)

	require.NoError(t, e.AddValidator(staking.Validator{Address: "validator"}))
	require.NoError(t, e.AddFunds(addrA, uscrt(1000)))
	require.NoError(t, e.AddFunds(addrC, uscrt(1000)))

	before := dumpStores(t, e)
	block := e.Block()

	_, err := e.Execute(counter.RunMsgs(
		execution.NewSubMsg(execution.DelegateMsg{
			Validator: "validator",
			Amount:    coin.New(300, "uscrt"),
		}),
		execution.NewSubMsg(execution.TransferMsg{To: addrB, Amount: uscrt(100)}),
		execution.NewSubMsg(execution.InstantiateMsg{CodeID: 0, Label: "D"}),
		execution.ReplyAlwaysMsg(callC(counter.IncrAndSend(3, addrB)), 1),
		execution.NewSubMsg(callB(counter.Fail())),
	), NewCallEnv(sender, addrA))
	require.EqualError(t, err, "failed to execute: fail")

	require.Equal(t, before, dumpStores(t, e))
	require.Equal(t, block, e.Block())
	require.Equal(t, []string{addrA, addrB, addrC}, e.Contracts())
}

func TestEngine_Query(t *testing.T) {
	e := initCounters(t, nil, nil, nil)
	require.NoError(t, e.AddFunds(addrB, uscrt(42)))

	state := counterState(t, e, addrB)
	require.Equal(t, uint32(0), state.Num)
	require.Equal(t, coin.New(42, "uscrt"), state.Balance)

	_, err := e.Query("D", nil)
	require.EqualError(t, err, "failed to query: 'D': unknown contract")
}

func TestEngine_Funds(t *testing.T) {
	e := newTestEngine()

	require.NoError(t, e.AddFunds("alice", coin.Coins{
		coin.New(5, "uatom"),
		coin.New(10, "uscrt"),
	}))

	require.NoError(t, e.RemoveFunds("alice", uscrt(4)))

	balances, err := e.Balances("alice")
	require.NoError(t, err)
	require.Equal(t, coin.Coins{coin.New(5, "uatom"), coin.New(6, "uscrt")}, balances)

	err = e.RemoveFunds("alice", uscrt(7))
	require.True(t, xerrors.Is(err, bank.ErrInsufficientFunds))
	require.Contains(t, err.Error(), "failed to remove funds: ")

	requireBalance(t, e, "alice", 6)
}

func TestEngine_Staking(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UnbondingPeriod = 10 * time.Second
	cfg.BlockInterval = 5 * time.Second

	e := initCounters(t, nil, nil, nil, WithConfig(cfg))

	require.NoError(t, e.AddValidator(staking.Validator{Address: "v1"}))
	require.NoError(t, e.AddValidator(staking.Validator{Address: "v2"}))

	err := e.AddValidator(staking.Validator{Address: "v1"})
	require.True(t, xerrors.Is(err, staking.ErrValidatorExists))

	validators, err := e.Validators()
	require.NoError(t, err)
	require.Len(t, validators, 2)

	require.NoError(t, e.AddFunds(addrA, uscrt(1000)))

	resp, err := e.Execute(counter.RunMsgs(
		execution.NewSubMsg(execution.DelegateMsg{Validator: "v1", Amount: coin.New(300, "uscrt")}),
	), NewCallEnv(sender, addrA))
	require.NoError(t, err)

	requireTrace(t, resp.Trace, step{kind: StakingKind, address: "v1", sender: addrA})
	require.Equal(t, DelegateOp, resp.Trace[0].(StakingResult).Op)

	requireBalance(t, e, addrA, 700)

	delegation, err := e.Delegation(addrA, "v1")
	require.NoError(t, err)
	require.Equal(t, coin.New(300, "uscrt"), delegation.Amount)

	// rewards are sent to the recipient
	require.NoError(t, e.AddRewards(50))

	resp, err = e.Execute(counter.RunMsgs(
		execution.NewSubMsg(execution.WithdrawMsg{Validator: "v1", Recipient: "treasury"}),
	), NewCallEnv(sender, addrA))
	require.NoError(t, err)
	require.Equal(t, uscrt(50), resp.Trace[0].(StakingResult).Amount)

	requireBalance(t, e, "treasury", 50)

	// undelegation locks the redelegation until it matures
	_, err = e.Execute(counter.RunMsgs(
		execution.NewSubMsg(execution.UndelegateMsg{Validator: "v1", Amount: coin.New(100, "uscrt")}),
	), NewCallEnv(sender, addrA))
	require.NoError(t, err)

	unbondings, err := e.Unbondings(addrA)
	require.NoError(t, err)
	require.Len(t, unbondings, 1)
	require.Equal(t, e.Block().Time.Add(5*time.Second).UnixNano(), unbondings[0].Matures.UnixNano())

	redelegate := counter.RunMsgs(execution.NewSubMsg(execution.RedelegateMsg{
		Source:      "v1",
		Destination: "v2",
		Amount:      coin.New(100, "uscrt"),
	}))

	_, err = e.Execute(redelegate, NewCallEnv(sender, addrA))
	require.True(t, xerrors.Is(err, staking.ErrRedelegationLocked))

	requireBalance(t, e, addrA, 700)

	require.NoError(t, e.NextBlock())

	unbondings, err = e.Unbondings(addrA)
	require.NoError(t, err)
	require.Empty(t, unbondings)

	requireBalance(t, e, addrA, 800)

	_, err = e.Execute(redelegate, NewCallEnv(sender, addrA))
	require.NoError(t, err)

	delegations, err := e.Delegations(addrA)
	require.NoError(t, err)
	require.Equal(t, []staking.Delegation{
		{Delegator: addrA, Validator: "v1", Amount: coin.New(100, "uscrt")},
		{Delegator: addrA, Validator: "v2", Amount: coin.New(100, "uscrt")},
	}, delegations)
}

func TestEngine_StakingFailures(t *testing.T) {
	e := initCounters(t, nil, nil, nil)

	require.NoError(t, e.AddValidator(staking.Validator{Address: "v1"}))
	require.NoError(t, e.AddFunds(addrA, uscrt(100)))

	_, err := e.Execute(counter.RunMsgs(
		execution.NewSubMsg(execution.DelegateMsg{Validator: "v1", Amount: coin.New(300, "uscrt")}),
	), NewCallEnv(sender, addrA))
	require.True(t, xerrors.Is(err, bank.ErrInsufficientFunds))

	_, err = e.Execute(counter.RunMsgs(
		execution.NewSubMsg(execution.DelegateMsg{Validator: "v2", Amount: coin.New(10, "uscrt")}),
	), NewCallEnv(sender, addrA))
	require.True(t, xerrors.Is(err, staking.ErrUnknownValidator))

	_, err = e.Execute(counter.RunMsgs(
		execution.NewSubMsg(execution.WithdrawMsg{Validator: "v1"}),
	), NewCallEnv(sender, addrA))
	require.True(t, xerrors.Is(err, staking.ErrDelegationNotFound))

	requireBalance(t, e, addrA, 100)
}

func TestEngine_FastForwardDelegationWaits(t *testing.T) {
	e := initCounters(t, nil, nil, nil)

	require.NoError(t, e.AddValidator(staking.Validator{Address: "v1"}))
	require.NoError(t, e.AddFunds(addrA, uscrt(100)))

	_, err := e.Execute(counter.RunMsgs(
		execution.NewSubMsg(execution.DelegateMsg{Validator: "v1", Amount: coin.New(60, "uscrt")}),
		execution.NewSubMsg(execution.UndelegateMsg{Validator: "v1", Amount: coin.New(60, "uscrt")}),
	), NewCallEnv(sender, addrA))
	require.NoError(t, err)

	requireBalance(t, e, addrA, 40)

	require.NoError(t, e.FastForwardDelegationWaits())

	requireBalance(t, e, addrA, 100)

	unbondings, err := e.Unbondings(addrA)
	require.NoError(t, err)
	require.Empty(t, unbondings)

	// nothing is pending anymore
	require.NoError(t, e.FastForwardDelegationWaits())
	requireBalance(t, e, addrA, 100)
}

func TestEngine_Block(t *testing.T) {
	e := initCounters(t, nil, nil, nil)

	genesis := DefaultConfig().GenesisTime

	require.Equal(t, uint64(4), e.Block().Height)
	require.Equal(t, genesis.Add(15*time.Second), e.Block().Time)

	e.FreezeBlock()
	require.True(t, e.IsFrozen())

	_, err := e.Execute(counter.IncrNumber(1), NewCallEnv(sender, addrA))
	require.NoError(t, err)
	require.Equal(t, uint64(4), e.Block().Height)

	// the block is moved explicitly even when frozen
	require.NoError(t, e.NextBlock())
	require.Equal(t, uint64(5), e.Block().Height)

	e.UnfreezeBlock()

	_, err = e.Execute(counter.IncrNumber(1), NewCallEnv(sender, addrA))
	require.NoError(t, err)
	require.Equal(t, uint64(6), e.Block().Height)

	at := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	e.SetBlock(execution.Block{Height: 100, Time: at})
	require.Equal(t, execution.Block{Height: 100, Time: at}, e.Block())
	require.Equal(t, float64(100), testutil.ToFloat64(promHeight))

	// a failed call keeps the block
	_, err = e.Execute(counter.Fail(), NewCallEnv(sender, addrA))
	require.Error(t, err)
	require.Equal(t, uint64(100), e.Block().Height)
}

func TestEngine_ContractStore(t *testing.T) {
	e := initCounters(t, nil, nil, nil)

	err := e.UpdateContractStore(addrA, func(s store.IterableSnapshot) error {
		return s.Set([]byte("num"), []byte("7"))
	})
	require.NoError(t, err)

	require.Equal(t, uint32(7), counterState(t, e, addrA).Num)

	st, err := e.ContractStore(addrA)
	require.NoError(t, err)

	value, err := st.Get([]byte("num"))
	require.NoError(t, err)
	require.Equal(t, []byte("7"), value)

	_, ok := st.(store.Writable)
	require.False(t, ok)

	err = e.UpdateContractStore(addrA, func(s store.IterableSnapshot) error {
		err := s.Set([]byte("num"), []byte("9"))
		require.NoError(t, err)

		return fake.GetError()
	})
	require.EqualError(t, err, fake.Err("failed to update store of 'A'"))

	require.Equal(t, uint32(7), counterState(t, e, addrA).Num)

	_, err = e.ContractStore("D")
	require.True(t, xerrors.Is(err, native.ErrUnknownContract))

	err = e.UpdateContractStore("D", nil)
	require.True(t, xerrors.Is(err, native.ErrUnknownContract))
}

func TestEngine_Stores(t *testing.T) {
	e := initCounters(t, nil, nil, nil)

	stores := e.Stores()
	require.Len(t, stores, 5)

	for _, name := range []string{"bank", "staking", "contract/A", "contract/B", "contract/C"} {
		require.Contains(t, stores, name)
	}
}

func TestEngine_VersionedStores(t *testing.T) {
	e := initCounters(t, nil, nil, nil, WithStoreFactory(versioned.NewFactory()))

	_, err := e.Execute(counter.RunMsgs(
		execution.ReplyAlwaysMsg(callB(counter.RunMsgs(
			execution.NewSubMsg(callC(counter.IncrNumber(1))),
			execution.NewSubMsg(callC(counter.Fail())),
		)), 0),
		execution.ReplyAlwaysMsg(callB(counter.IncrNumber(2)), 1),
	), NewCallEnv(sender, addrA))
	require.NoError(t, err)

	requireNums(t, e, 0, 2, 0)
}

func TestEngine_BadStore(t *testing.T) {
	e := newTestEngine(WithStoreFactory(func() store.Checkpointed {
		return fake.NewBadStore(mem.NewStore())
	}))

	err := e.AddFunds(sender, uscrt(1))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to add funds: ")

	code := e.Register(counter.NewContract())

	_, err = e.Instantiate(code, counter.Instantiate(counter.FailOn(1)), NewCallEnv(sender, addrA))
	require.EqualError(t, err, fake.Err("failed to instantiate: failed to write 'fail'"))
	require.Empty(t, e.Contracts())

	stores := []*fake.BadStore{}

	e = newTestEngine(WithStoreFactory(func() store.Checkpointed {
		s := &fake.BadStore{Checkpointed: mem.NewStore()}
		stores = append(stores, s)

		return s
	}))

	bankStore := stores[0]
	bankStore.ErrCommit = fake.GetError()

	err = e.NextBlock()
	require.EqualError(t, err, fake.Err("failed to commit"))

	e = newTestEngine(WithStoreFactory(func() store.Checkpointed {
		return &fake.BadStore{Checkpointed: mem.NewStore(), ErrRevert: fake.GetError()}
	}))

	code = e.Register(counter.NewContract())

	_, err = e.Instantiate(code, nil, NewCallEnv(sender, addrA))
	require.NoError(t, err)

	_, err = e.Execute(counter.Fail(), NewCallEnv(sender, addrA))
	require.EqualError(t, err,
		"failed to execute: fail (failed to revert: fake error) (failed to revert: fake error)")
}

func TestEngine_Tracing(t *testing.T) {
	tracer := mocktracer.New()

	e := initCounters(t, nil, nil, nil, WithTracer(tracer))
	tracer.Reset()

	_, err := e.Execute(counter.RunMsgs(
		execution.ReplyAlwaysMsg(callB(counter.IncrNumber(1)), 0),
	), NewCallEnv(sender, addrA))
	require.NoError(t, err)

	spans := tracer.FinishedSpans()

	names := make([]string, len(spans))
	for i, span := range spans {
		names[i] = span.OperationName
	}

	require.Equal(t, []string{"dispatch", "reply", "dispatch", "execute"}, names)

	root := spans[3]
	require.Equal(t, "execute", root.Tag(tracing.KindTag))
	require.Equal(t, sender, root.Tag(tracing.SenderTag))
	require.Equal(t, addrA, root.Tag(tracing.TargetTag))

	reply := spans[1]
	require.Equal(t, addrA, reply.Tag(tracing.TargetTag))
	require.Equal(t, uint64(0), reply.Tag(tracing.ReplyIDTag))
	require.Equal(t, root.SpanContext.TraceID, reply.SpanContext.TraceID)

	tracer.Reset()

	_, err = e.Execute(counter.Fail(), NewCallEnv(sender, addrA))
	require.Error(t, err)

	spans = tracer.FinishedSpans()
	require.Len(t, spans, 2)
	require.Equal(t, true, spans[0].Tag("error"))
	require.Equal(t, true, spans[1].Tag("error"))
}

func TestEngine_Metrics(t *testing.T) {
	e := initCounters(t, nil, nil, nil)

	okCalls := testutil.ToFloat64(promCalls.WithLabelValues("execute", "ok"))
	errCalls := testutil.ToFloat64(promCalls.WithLabelValues("execute", "error"))
	okReplies := testutil.ToFloat64(promReplies.WithLabelValues("ok"))
	errReplies := testutil.ToFloat64(promReplies.WithLabelValues("error"))
	dispatched := testutil.ToFloat64(promDispatch.WithLabelValues("execute"))
	reverts := testutil.ToFloat64(promReverts)

	_, err := e.Execute(counter.RunMsgs(
		execution.ReplyAlwaysMsg(callB(counter.IncrNumber(1)), 0),
		execution.ReplyAlwaysMsg(callB(counter.Fail()), 1),
	), NewCallEnv(sender, addrA))
	require.NoError(t, err)

	_, err = e.Execute(counter.Fail(), NewCallEnv(sender, addrA))
	require.Error(t, err)

	_, err = e.Execute(nil, NewCallEnv(sender, "D"))
	require.Error(t, err)

	require.Equal(t, okCalls+1, testutil.ToFloat64(promCalls.WithLabelValues("execute", "ok")))
	require.Equal(t, errCalls+2, testutil.ToFloat64(promCalls.WithLabelValues("execute", "error")))
	require.Equal(t, okReplies+1, testutil.ToFloat64(promReplies.WithLabelValues("ok")))
	require.Equal(t, errReplies+1, testutil.ToFloat64(promReplies.WithLabelValues("error")))
	require.Equal(t, dispatched+4, testutil.ToFloat64(promDispatch.WithLabelValues("execute")))

	// the failed sub-message, then the dispatch and the root of the failed call
	require.Equal(t, reverts+3, testutil.ToFloat64(promReverts))
	require.Equal(t, float64(e.Block().Height), testutil.ToFloat64(promHeight))
}

func TestEngine_Logging(t *testing.T) {
	logger, check := fake.CheckLog("call succeeded")

	e := New(WithLogger(logger))
	code := e.Register(counter.NewContract())

	_, err := e.Instantiate(code, nil, NewCallEnv(sender, addrA))
	require.NoError(t, err)

	check(t)

	logger, buffer := fake.CaptureLog()

	e = initCounters(t, nil, nil, nil, WithLogger(logger))
	buffer.Reset()

	_, err = e.Execute(counter.RunMsgs(
		execution.ReplyOnErrorMsg(callB(counter.Fail()), 3),
	), NewCallEnv(sender, addrA))
	require.NoError(t, err)

	out := buffer.String()
	require.Contains(t, out, `"message":"dispatch"`)
	require.Contains(t, out, `"message":"revert dispatch"`)
	require.Contains(t, out, `"message":"reply"`)
	require.Contains(t, out, `"message":"call succeeded"`)
	require.Contains(t, out, `"call":"`)

	buffer.Reset()

	_, err = e.Execute(counter.Fail(), NewCallEnv(sender, addrA))
	require.Error(t, err)
	require.Contains(t, buffer.String(), `"message":"call failed"`)
}

func TestEngine_StoresCache(t *testing.T) {
	e := initCounters(t, nil, nil, nil)

	stores := e.stores()
	require.Len(t, stores, 5)
	require.Same(t, &stores[0], &e.stores()[0])

	_, err := e.Instantiate(0, nil, NewCallEnv(sender, "D"))
	require.NoError(t, err)

	stores = e.stores()
	require.Len(t, stores, 6)

	inst, err := e.registry.Get("D")
	require.NoError(t, err)
	require.Same(t, inst.Store, stores[5])

	_, err = e.Execute(counter.RunMsgs(
		execution.NewSubMsg(execution.InstantiateMsg{CodeID: 0, Label: "E"}),
		execution.NewSubMsg(callB(counter.Fail())),
	), NewCallEnv(sender, addrA))
	require.EqualError(t, err, "failed to execute: fail")

	require.False(t, e.registry.Has("E"))
	require.Len(t, e.stores(), 6)
}

func TestEngine_Watch(t *testing.T) {
	e := initCounters(t, nil, nil, nil)

	obs := &fakeObserver{}
	e.Watch(obs)

	_, err := e.Execute(counter.RunMsgs(
		execution.NewSubMsg(callB(counter.IncrNumber(1))),
	), NewCallEnv(sender, addrA))
	require.NoError(t, err)

	_, err = e.Execute(counter.Fail(), NewCallEnv(sender, addrA))
	require.EqualError(t, err, "failed to execute: fail")

	_, err = e.Execute(counter.IncrNumber(1), NewCallEnv(sender, "D"))
	require.Error(t, err)

	require.Len(t, obs.events, 2)

	evt := obs.events[0]
	require.Equal(t, ExecuteKind, evt.Kind)
	require.Equal(t, sender, evt.Sender)
	require.Equal(t, addrA, evt.Target)
	require.Equal(t, uint64(5), evt.Height)
	require.NoError(t, evt.Err)
	requireTrace(t, evt.Trace, execStep(addrB, addrA))

	evt = obs.events[1]
	require.Equal(t, uint64(5), evt.Height)
	require.Empty(t, evt.Trace)
	require.EqualError(t, evt.Err, "fail")

	e.Unwatch(obs)

	_, err = e.Execute(counter.IncrNumber(1), NewCallEnv(sender, addrA))
	require.NoError(t, err)
	require.Len(t, obs.events, 2)
}

// -----------------------------------------------------------------------------
// Utility functions

type fakeObserver struct {
	events []CallEvent
}

func (o *fakeObserver) NotifyCallback(event interface{}) {
	o.events = append(o.events, event.(CallEvent))
}

func newTestEngine(opts ...Option) *Engine {
	return New(append([]Option{WithLogger(zerolog.Nop())}, opts...)...)
}

func requireBalance(t *testing.T, e *Engine, addr string, amount uint64) {
	t.Helper()

	balance, err := e.Balance(addr, "uscrt")
	require.NoError(t, err)
	require.Equal(t, coin.New(amount, "uscrt"), balance, "balance of %s", addr)
}

func dumpStores(t *testing.T, e *Engine) map[string]map[string]string {
	res := map[string]map[string]string{}

	for name, st := range e.Stores() {
		entries := map[string]string{}

		err := st.Scan(nil, func(key, value []byte) error {
			entries[string(key)] = string(value)
			return nil
		})
		require.NoError(t, err)

		res[name] = entries
	}

	return res
}
