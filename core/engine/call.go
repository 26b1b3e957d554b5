package engine

import (
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/shurinov/fadroma/core/coin"
	"github.com/shurinov/fadroma/core/execution"
	"github.com/shurinov/fadroma/core/execution/native"
	"github.com/shurinov/fadroma/internal/tracing"
	"golang.org/x/xerrors"
)

// CallEnv is the environment of a top-level call: who sends it, the contract
// it targets and the funds attached to it. For an instantiation the contract
// is the address of the new instance, or empty to let the engine choose one.
type CallEnv struct {
	Sender   string
	Contract string
	Funds    coin.Coins
}

// NewCallEnv creates an environment without funds.
func NewCallEnv(sender, contract string) CallEnv {
	return CallEnv{Sender: sender, Contract: contract}
}

// WithFunds returns the environment with the funds attached.
func (env CallEnv) WithFunds(funds coin.Coins) CallEnv {
	env.Funds = funds
	return env
}

// call holds the logger and the span of the current position in the call tree.
type call struct {
	logger zerolog.Logger
	span   opentracing.Span
}

// child starts a span below the one of the call.
func (c call) child(tracer opentracing.Tracer, op string) (call, opentracing.Span) {
	span := tracer.StartSpan(op, opentracing.ChildOf(c.span.Context()))

	return call{logger: c.logger, span: span}, span
}

// outcome is the result of a successful dispatch.
type outcome struct {
	address  string
	response execution.Response
	trace    Trace
}

// Instantiate creates an instance of the code. The funds are transferred from
// the sender to the new instance before it is called. The trace holds the
// effects of the messages returned by the instance.
func (e *Engine) Instantiate(codeID uint64, msg []byte, env CallEnv) (InstantiateResponse, error) {
	addr := env.Contract

	_, err := e.registry.Code(codeID)
	if err == nil {
		if addr == "" {
			addr = e.nextAddress(codeID)
		} else if e.registry.Has(addr) {
			err = xerrors.Errorf("'%s': %w", addr, native.ErrAddressInUse)
		}
	}

	if err != nil {
		promCalls.WithLabelValues(string(InstantiateKind), outcomeErr).Inc()
		return InstantiateResponse{}, xerrors.Errorf("failed to instantiate: %w", err)
	}

	out, err := e.root(InstantiateKind, env.Sender, addr, execution.InstantiateMsg{
		CodeID: codeID,
		Label:  addr,
		Msg:    msg,
		Funds:  env.Funds,
	})
	if err != nil {
		return InstantiateResponse{}, xerrors.Errorf("failed to instantiate: %w", err)
	}

	res := InstantiateResponse{
		Sender:   env.Sender,
		Address:  out.address,
		CodeID:   codeID,
		Msg:      msg,
		Response: out.response,
		Trace:    out.trace[1:],
	}

	return res, nil
}

// Execute calls the contract of the environment. The funds are transferred
// from the sender to the contract before it is called. The trace holds the
// effects of the messages returned by the contract.
func (e *Engine) Execute(msg []byte, env CallEnv) (ExecuteResponse, error) {
	_, err := e.registry.Get(env.Contract)
	if err != nil {
		promCalls.WithLabelValues(string(ExecuteKind), outcomeErr).Inc()
		return ExecuteResponse{}, xerrors.Errorf("failed to execute: %w", err)
	}

	out, err := e.root(ExecuteKind, env.Sender, env.Contract, execution.ExecuteMsg{
		Contract: env.Contract,
		Msg:      msg,
		Funds:    env.Funds,
	})
	if err != nil {
		return ExecuteResponse{}, xerrors.Errorf("failed to execute: %w", err)
	}

	res := ExecuteResponse{
		Sender:   env.Sender,
		Address:  out.address,
		Msg:      msg,
		Response: out.response,
		Trace:    out.trace[1:],
	}

	return res, nil
}

// Query sends a read-only query to the contract.
func (e *Engine) Query(addr string, msg []byte) ([]byte, error) {
	res, err := e.query(addr, msg)
	if err != nil {
		return nil, xerrors.Errorf("failed to query: %w", err)
	}

	return res, nil
}

func (e *Engine) query(addr string, msg []byte) ([]byte, error) {
	inst, err := e.registry.Get(addr)
	if err != nil {
		return nil, err
	}

	deps := execution.QueryDeps{
		Store:   readOnly{store: inst.Store},
		Querier: e.querier,
	}

	return inst.Contract.Query(deps, e.env(inst), msg)
}

// root runs a top-level call inside a checkpoint and moves to the next block
// if it succeeds, unless the block is frozen.
func (e *Engine) root(kind EntryKind, sender, target string, msg execution.Message) (outcome, error) {
	span := e.tracer.StartSpan(string(kind))
	span.SetTag(tracing.KindTag, string(kind))
	span.SetTag(tracing.SenderTag, sender)
	span.SetTag(tracing.TargetTag, target)

	defer span.Finish()

	c := call{
		logger: e.logger.With().Str("call", xid.New().String()).Logger(),
		span:   span,
	}

	var out outcome

	err := e.atomic(func() error {
		var err error

		out, err = e.dispatch(c, sender, msg)
		if err != nil {
			return err
		}

		if e.frozen {
			return nil
		}

		return e.advance()
	})

	if err != nil {
		span.SetTag("error", true)
		promCalls.WithLabelValues(string(kind), outcomeErr).Inc()

		e.watcher.Notify(CallEvent{
			Kind:   kind,
			Sender: sender,
			Target: target,
			Height: e.block.Height,
			Err:    err,
		})

		c.logger.Warn().Err(err).
			Str("kind", string(kind)).
			Str("sender", sender).
			Str("target", target).
			Msg("call failed")

		return outcome{}, err
	}

	promCalls.WithLabelValues(string(kind), outcomeOk).Inc()

	e.watcher.Notify(CallEvent{
		Kind:   kind,
		Sender: sender,
		Target: out.address,
		Height: e.block.Height,
		Trace:  out.trace[1:],
	})

	c.logger.Info().
		Str("kind", string(kind)).
		Str("sender", sender).
		Str("target", out.address).
		Int("trace", len(out.trace)-1).
		Uint64("height", e.block.Height).
		Msg("call succeeded")

	return out, nil
}

// dispatch applies the message sent by the sender inside a checkpoint. The
// effects are reverted if the message, or one of the messages it triggers
// without a reply covering the failure, fails.
func (e *Engine) dispatch(parent call, sender string, msg execution.Message) (outcome, error) {
	kind := kindOf(msg)

	promDispatch.WithLabelValues(string(kind)).Inc()

	c, span := parent.child(e.tracer, "dispatch")
	defer span.Finish()

	span.SetTag(tracing.KindTag, string(kind))
	span.SetTag(tracing.SenderTag, sender)

	c.logger.Debug().
		Str("sender", sender).
		Stringer("msg", msg).
		Int("depth", len(e.frames)).
		Msg("dispatch")

	e.checkpoint()

	out, err := e.apply(c, sender, msg)
	if err != nil {
		span.SetTag("error", true)

		c.logger.Debug().Err(err).Stringer("msg", msg).Msg("revert dispatch")

		rerr := e.revert()
		if rerr != nil {
			return outcome{}, xerrors.Errorf("%v (%v)", err, rerr)
		}

		return outcome{}, err
	}

	err = e.commit()
	if err != nil {
		return outcome{}, err
	}

	return out, nil
}

func (e *Engine) apply(c call, sender string, msg execution.Message) (outcome, error) {
	switch m := msg.(type) {
	case execution.ExecuteMsg:
		return e.applyExecute(c, sender, m)
	case execution.InstantiateMsg:
		return e.applyInstantiate(c, sender, m)
	case execution.TransferMsg:
		err := e.bank.Transfer(sender, m.To, m.Amount)
		if err != nil {
			return outcome{}, err
		}

		entry := TransferResult{Sender: sender, Receiver: m.To, Coins: m.Amount}

		return outcome{address: m.To, trace: Trace{entry}}, nil
	case execution.DelegateMsg, execution.UndelegateMsg,
		execution.RedelegateMsg, execution.WithdrawMsg:

		entry, err := e.applyStaking(sender, m)
		if err != nil {
			return outcome{}, err
		}

		return outcome{address: entry.Validator, trace: Trace{entry}}, nil
	default:
		return outcome{}, xerrors.Errorf("unsupported message of type '%T'", msg)
	}
}

func (e *Engine) applyExecute(c call, sender string, m execution.ExecuteMsg) (outcome, error) {
	inst, err := e.registry.Get(m.Contract)
	if err != nil {
		return outcome{}, err
	}

	err = e.bank.Transfer(sender, inst.Address, m.Funds)
	if err != nil {
		return outcome{}, err
	}

	info := execution.Info{Sender: sender, Funds: m.Funds}

	resp, err := inst.Contract.Execute(e.deps(inst), e.env(inst), info, m.Msg)
	if err != nil {
		return outcome{}, err
	}

	trace := Trace{ExecuteResult{
		Sender:   sender,
		Address:  inst.Address,
		Msg:      m.Msg,
		Funds:    m.Funds,
		Response: resp,
	}}

	sub, err := e.runSubmessages(c, inst.Address, resp.Messages)
	if err != nil {
		return outcome{}, err
	}

	return outcome{address: inst.Address, response: resp, trace: append(trace, sub...)}, nil
}

func (e *Engine) applyInstantiate(c call, sender string, m execution.InstantiateMsg) (outcome, error) {
	_, err := e.registry.Code(m.CodeID)
	if err != nil {
		return outcome{}, err
	}

	addr := m.Label
	if addr == "" {
		addr = e.nextAddress(m.CodeID)
	}

	inst, err := e.registry.Add(addr, m.CodeID, e.newStore())
	if err != nil {
		return outcome{}, err
	}

	top := &e.frames[len(e.frames)-1]
	top.created = append(top.created, addr)

	err = e.bank.Transfer(sender, addr, m.Funds)
	if err != nil {
		return outcome{}, err
	}

	info := execution.Info{Sender: sender, Funds: m.Funds}

	resp, err := inst.Contract.Instantiate(e.deps(inst), e.env(inst), info, m.Msg)
	if err != nil {
		return outcome{}, err
	}

	trace := Trace{InstantiateResult{
		Sender:   sender,
		Address:  addr,
		CodeID:   m.CodeID,
		Msg:      m.Msg,
		Funds:    m.Funds,
		Response: resp,
	}}

	sub, err := e.runSubmessages(c, addr, resp.Messages)
	if err != nil {
		return outcome{}, err
	}

	return outcome{address: addr, response: resp, trace: append(trace, sub...)}, nil
}

func (e *Engine) applyStaking(delegator string, msg execution.Message) (StakingResult, error) {
	switch m := msg.(type) {
	case execution.DelegateMsg:
		err := e.bank.RemoveFunds(delegator, coin.Coins{m.Amount})
		if err != nil {
			return StakingResult{}, err
		}

		err = e.staking.Delegate(delegator, m.Validator, m.Amount)
		if err != nil {
			return StakingResult{}, err
		}

		return StakingResult{
			Op:        DelegateOp,
			Delegator: delegator,
			Validator: m.Validator,
			Amount:    coin.Coins{m.Amount},
		}, nil
	case execution.UndelegateMsg:
		err := e.staking.Undelegate(delegator, m.Validator, m.Amount, e.maturity())
		if err != nil {
			return StakingResult{}, err
		}

		return StakingResult{
			Op:        UndelegateOp,
			Delegator: delegator,
			Validator: m.Validator,
			Amount:    coin.Coins{m.Amount},
		}, nil
	case execution.RedelegateMsg:
		err := e.staking.Redelegate(delegator, m.Source, m.Destination, m.Amount)
		if err != nil {
			return StakingResult{}, err
		}

		return StakingResult{
			Op:          RedelegateOp,
			Delegator:   delegator,
			Validator:   m.Source,
			Destination: m.Destination,
			Amount:      coin.Coins{m.Amount},
		}, nil
	case execution.WithdrawMsg:
		rewards, err := e.staking.Withdraw(delegator, m.Validator)
		if err != nil {
			return StakingResult{}, err
		}

		recipient := m.Recipient
		if recipient == "" {
			recipient = delegator
		}

		err = e.bank.AddFunds(recipient, rewards)
		if err != nil {
			return StakingResult{}, err
		}

		return StakingResult{
			Op:        WithdrawOp,
			Delegator: delegator,
			Validator: m.Validator,
			Recipient: recipient,
			Amount:    rewards,
		}, nil
	default:
		return StakingResult{}, xerrors.Errorf("unsupported message of type '%T'", msg)
	}
}

// runSubmessages dispatches the sub-messages emitted by the caller in order,
// and delivers the replies requested by their policies. It fails on the first
// failure that no reply covers, or on the first reply that fails.
func (e *Engine) runSubmessages(c call, caller string, msgs []execution.SubMsg) (Trace, error) {
	trace := Trace{}

	for _, sub := range msgs {
		out, err := e.dispatch(c, caller, sub.Msg)
		if err == nil {
			trace = append(trace, out.trace...)

			if !sub.ReplyOn.OnSuccess() {
				continue
			}

			reply := execution.Reply{
				ID: sub.ID,
				Result: execution.SubMsgResult{
					Events: out.response.Events,
					Data:   out.response.Data,
				},
			}

			replyTrace, err := e.reply(c, caller, reply)
			if err != nil {
				return nil, err
			}

			trace = append(trace, replyTrace...)

			continue
		}

		if !sub.ReplyOn.OnError() {
			return nil, err
		}

		reply := execution.Reply{
			ID:     sub.ID,
			Result: execution.SubMsgResult{Err: err.Error()},
		}

		replyTrace, err := e.reply(c, caller, reply)
		if err != nil {
			return nil, err
		}

		trace = append(trace, replyTrace...)
	}

	return trace, nil
}

// reply delivers the reply to the contract inside a checkpoint, and processes
// the messages it returns.
func (e *Engine) reply(parent call, addr string, reply execution.Reply) (Trace, error) {
	result := outcomeOk
	if !reply.Result.IsOk() {
		result = outcomeErr
	}

	promReplies.WithLabelValues(result).Inc()

	c, span := parent.child(e.tracer, "reply")
	defer span.Finish()

	span.SetTag(tracing.TargetTag, addr)
	span.SetTag(tracing.ReplyIDTag, reply.ID)

	c.logger.Debug().
		Str("target", addr).
		Uint64("id", reply.ID).
		Str("result", result).
		Msg("reply")

	inst, err := e.registry.Get(addr)
	if err != nil {
		return nil, err
	}

	e.checkpoint()

	trace, err := e.runReply(c, inst, reply)
	if err != nil {
		span.SetTag("error", true)

		c.logger.Debug().Err(err).Uint64("id", reply.ID).Msg("revert reply")

		rerr := e.revert()
		if rerr != nil {
			return nil, xerrors.Errorf("%v (%v)", err, rerr)
		}

		return nil, err
	}

	err = e.commit()
	if err != nil {
		return nil, err
	}

	return trace, nil
}

func (e *Engine) runReply(c call, inst *native.Instance, reply execution.Reply) (Trace, error) {
	resp, err := inst.Contract.Reply(e.deps(inst), e.env(inst), reply)
	if err != nil {
		return nil, err
	}

	trace := Trace{ReplyResult{Address: inst.Address, Reply: reply, Response: resp}}

	sub, err := e.runSubmessages(c, inst.Address, resp.Messages)
	if err != nil {
		return nil, err
	}

	return append(trace, sub...), nil
}

func (e *Engine) env(inst *native.Instance) execution.Env {
	return execution.Env{
		Block:   e.block,
		ChainID: e.cfg.ChainID,
		Contract: execution.ContractInfo{
			Address: inst.Address,
			CodeID:  inst.CodeID,
		},
	}
}

func (e *Engine) deps(inst *native.Instance) execution.Deps {
	return execution.Deps{
		Store:   snapshot{IterableSnapshot: inst.Store},
		Querier: e.querier,
	}
}

func kindOf(msg execution.Message) EntryKind {
	switch msg.(type) {
	case execution.ExecuteMsg:
		return ExecuteKind
	case execution.InstantiateMsg:
		return InstantiateKind
	case execution.TransferMsg:
		return TransferKind
	default:
		return StakingKind
	}
}
