// Package engine implements the ensemble: a deterministic simulator that runs
// native contracts against a bank, a delegation ledger and one private store
// per instance.
//
// A top-level call dispatches a message to a contract. The messages returned
// by the contract are dispatched in turn, depth first, and the replies are
// delivered to the emitters according to the reply policy of each
// sub-message. Every dispatch and every reply runs inside a checkpoint of all
// the stores, so that a failure discards exactly the effects of the call tree
// below it.
//
// The engine is not safe for concurrent use.
package engine

import (
	"fmt"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/rs/zerolog"
	"github.com/shurinov/fadroma"
	"github.com/shurinov/fadroma/core"
	"github.com/shurinov/fadroma/core/bank"
	"github.com/shurinov/fadroma/core/coin"
	"github.com/shurinov/fadroma/core/execution"
	"github.com/shurinov/fadroma/core/execution/native"
	"github.com/shurinov/fadroma/core/staking"
	"github.com/shurinov/fadroma/core/store"
	"github.com/shurinov/fadroma/core/store/mem"
	"golang.org/x/xerrors"
)

// frame is the engine side of a checkpoint. It remembers the instances created
// while it is live so that they can be removed if it is reverted.
type frame struct {
	created []string
}

// Engine is the ensemble of contracts.
type Engine struct {
	cfg     Config
	logger  zerolog.Logger
	tracer  opentracing.Tracer
	factory store.Factory

	registry *native.Service
	bank     *bank.Bank
	staking  *staking.Delegations
	querier  querier
	watcher  *core.Watcher

	block    execution.Block
	frozen   bool
	frames   []frame
	sequence uint64

	// Stores of the bank, the delegations and the instances, rebuilt when the
	// version of the registry changes.
	cache        []store.Checkpointed
	cacheVersion uint64
}

type engineTemplate struct {
	cfg     Config
	logger  zerolog.Logger
	tracer  opentracing.Tracer
	factory store.Factory
}

// Option is the type of option to set some fields of the engine.
type Option func(*engineTemplate)

// WithConfig sets the configuration of the engine.
func WithConfig(cfg Config) Option {
	return func(tmpl *engineTemplate) {
		tmpl.cfg = cfg
	}
}

// WithLogger sets the logger of the engine.
func WithLogger(logger zerolog.Logger) Option {
	return func(tmpl *engineTemplate) {
		tmpl.logger = logger
	}
}

// WithTracer sets the tracer used to create the spans of the calls.
func WithTracer(tracer opentracing.Tracer) Option {
	return func(tmpl *engineTemplate) {
		tmpl.tracer = tracer
	}
}

// WithStoreFactory sets the factory of the stores of the bank, the delegation
// ledger and the instances.
func WithStoreFactory(factory store.Factory) Option {
	return func(tmpl *engineTemplate) {
		tmpl.factory = factory
	}
}

// New creates a new engine with the genesis block of the configuration and no
// registered code.
func New(opts ...Option) *Engine {
	tmpl := engineTemplate{
		cfg:     DefaultConfig(),
		logger:  fadroma.Logger,
		tracer:  opentracing.NoopTracer{},
		factory: mem.NewFactory(),
	}

	for _, opt := range opts {
		opt(&tmpl)
	}

	e := &Engine{
		cfg:      tmpl.cfg,
		logger:   tmpl.logger,
		tracer:   tmpl.tracer,
		factory:  tmpl.factory,
		registry: native.NewExecution(),
		bank:     bank.NewBank(tmpl.factory()),
		staking:  staking.NewDelegations(tmpl.factory(), tmpl.cfg.Denom),
		watcher:  core.NewWatcher(),
		block: execution.Block{
			Height: tmpl.cfg.GenesisHeight,
			Time:   tmpl.cfg.GenesisTime,
		},
	}

	e.querier = querier{engine: e}

	promHeight.Set(float64(e.block.Height))

	return e
}

// Config returns the configuration of the engine.
func (e *Engine) Config() Config {
	return e.cfg
}

// Watch adds an observer that is notified with a CallEvent at the end of each
// top-level call.
func (e *Engine) Watch(obs core.Observer) {
	e.watcher.Add(obs)
}

// Unwatch removes the observer.
func (e *Engine) Unwatch(obs core.Observer) {
	e.watcher.Remove(obs)
}

// Register adds the contract as a new code and returns its identifier.
func (e *Engine) Register(contract execution.Contract) uint64 {
	id := e.registry.Register(contract)

	e.logger.Debug().Uint64("code", id).Msg("code registered")

	return id
}

// Contracts returns the addresses of the instances in ascending order.
func (e *Engine) Contracts() []string {
	instances := e.registry.Instances()

	addrs := make([]string, len(instances))
	for i, inst := range instances {
		addrs[i] = inst.Address
	}

	return addrs
}

// CodeOf returns the code identifier of the instance.
func (e *Engine) CodeOf(addr string) (uint64, error) {
	inst, err := e.registry.Get(addr)
	if err != nil {
		return 0, err
	}

	return inst.CodeID, nil
}

// AddFunds credits the coins to the address.
func (e *Engine) AddFunds(addr string, coins coin.Coins) error {
	err := e.bank.AddFunds(addr, coins)
	if err != nil {
		return xerrors.Errorf("failed to add funds: %w", err)
	}

	return nil
}

// RemoveFunds debits the coins from the address.
func (e *Engine) RemoveFunds(addr string, coins coin.Coins) error {
	err := e.bank.RemoveFunds(addr, coins)
	if err != nil {
		return xerrors.Errorf("failed to remove funds: %w", err)
	}

	return nil
}

// Balances returns every balance of the address.
func (e *Engine) Balances(addr string) (coin.Coins, error) {
	return e.bank.Balances(addr)
}

// Balance returns the balance of the address in the denomination.
func (e *Engine) Balance(addr, denom string) (coin.Coin, error) {
	return e.bank.Balance(addr, denom)
}

// AddValidator registers a validator in the delegation ledger.
func (e *Engine) AddValidator(v staking.Validator) error {
	err := e.staking.AddValidator(v)
	if err != nil {
		return xerrors.Errorf("failed to add validator: %w", err)
	}

	return nil
}

// Validators returns the registered validators.
func (e *Engine) Validators() ([]staking.Validator, error) {
	return e.staking.Validators()
}

// AddRewards credits the amount of the bonded denomination to the rewards of
// every delegation.
func (e *Engine) AddRewards(amount uint64) error {
	err := e.staking.DistributeRewards(coin.New(amount, e.cfg.Denom))
	if err != nil {
		return xerrors.Errorf("failed to distribute rewards: %w", err)
	}

	return nil
}

// FastForwardDelegationWaits matures every pending unbonding and credits the
// amounts back to the delegators. It also lifts the redelegation locks.
func (e *Engine) FastForwardDelegationWaits() error {
	err := e.atomic(func() error {
		unbondings, err := e.staking.FastForwardWaits()
		if err != nil {
			return err
		}

		return e.release(unbondings)
	})

	if err != nil {
		return xerrors.Errorf("failed to fast forward: %v", err)
	}

	return nil
}

// Delegation returns the delegation of the pair.
func (e *Engine) Delegation(delegator, validator string) (staking.FullDelegation, error) {
	return e.staking.Delegation(delegator, validator)
}

// Delegations returns every delegation of the delegator.
func (e *Engine) Delegations(delegator string) ([]staking.Delegation, error) {
	return e.staking.AllDelegations(delegator)
}

// Unbondings returns the pending unbondings of the delegator.
func (e *Engine) Unbondings(delegator string) ([]staking.Unbonding, error) {
	return e.staking.Unbondings(delegator)
}

// ContractStore returns a read-only view of the store of the instance.
func (e *Engine) ContractStore(addr string) (store.ReadOnly, error) {
	inst, err := e.registry.Get(addr)
	if err != nil {
		return nil, err
	}

	return readOnly{store: inst.Store}, nil
}

// UpdateContractStore calls the function with the store of the instance. The
// writes are kept only if the function succeeds.
func (e *Engine) UpdateContractStore(addr string, fn func(store.IterableSnapshot) error) error {
	inst, err := e.registry.Get(addr)
	if err != nil {
		return err
	}

	inst.Store.Checkpoint()

	err = fn(snapshot{IterableSnapshot: inst.Store})
	if err != nil {
		rerr := inst.Store.Revert()
		if rerr != nil {
			return xerrors.Errorf("failed to revert: %v", rerr)
		}

		return xerrors.Errorf("failed to update store of '%s': %w", addr, err)
	}

	err = inst.Store.Commit()
	if err != nil {
		return xerrors.Errorf("failed to commit: %v", err)
	}

	return nil
}

// Stores returns a read-only view of every store of the ensemble, indexed by a
// name: "bank", "staking" and "contract/<address>".
func (e *Engine) Stores() map[string]store.ReadOnly {
	res := map[string]store.ReadOnly{
		"bank":    readOnly{store: e.bank.Store()},
		"staking": readOnly{store: e.staking.Store()},
	}

	for _, inst := range e.registry.Instances() {
		res["contract/"+inst.Address] = readOnly{store: inst.Store}
	}

	return res
}

// checkpoint takes a checkpoint of every store.
func (e *Engine) checkpoint() {
	for _, s := range e.stores() {
		s.Checkpoint()
	}

	e.frames = append(e.frames, frame{})
}

// commit keeps the writes of the most recent checkpoint. The instances created
// while it was live are handed to the parent checkpoint.
func (e *Engine) commit() error {
	top := e.popFrame()

	for _, s := range e.stores() {
		err := s.Commit()
		if err != nil {
			return xerrors.Errorf("failed to commit: %v", err)
		}
	}

	if len(e.frames) > 0 {
		parent := &e.frames[len(e.frames)-1]
		parent.created = append(parent.created, top.created...)
	}

	return nil
}

// revert discards the writes of the most recent checkpoint, and the instances
// created while it was live.
func (e *Engine) revert() error {
	top := e.popFrame()

	for _, addr := range top.created {
		e.registry.Remove(addr)
	}

	for _, s := range e.stores() {
		err := s.Revert()
		if err != nil {
			return xerrors.Errorf("failed to revert: %v", err)
		}
	}

	promReverts.Inc()

	return nil
}

func (e *Engine) popFrame() frame {
	if len(e.frames) == 0 {
		panic("checkpoint frames are unbalanced")
	}

	top := e.frames[len(e.frames)-1]
	e.frames = e.frames[:len(e.frames)-1]

	return top
}

// atomic runs the function inside a checkpoint.
func (e *Engine) atomic(fn func() error) error {
	e.checkpoint()

	err := fn()
	if err != nil {
		rerr := e.revert()
		if rerr != nil {
			return xerrors.Errorf("%v (%v)", err, rerr)
		}

		return err
	}

	return e.commit()
}

func (e *Engine) stores() []store.Checkpointed {
	if e.cache != nil && e.cacheVersion == e.registry.Version() {
		return e.cache
	}

	instances := e.registry.Instances()

	res := make([]store.Checkpointed, 0, len(instances)+2)
	res = append(res, e.bank.Store(), e.staking.Store())

	for _, inst := range instances {
		res = append(res, inst.Store)
	}

	e.cache = res
	e.cacheVersion = e.registry.Version()

	return res
}

// newStore creates the store of a new instance with as many checkpoints as the
// other stores so that it follows the next commits and reverts.
func (e *Engine) newStore() store.Checkpointed {
	s := e.factory()

	for range e.frames {
		s.Checkpoint()
	}

	return s
}

// nextAddress returns an unused address for an instance of the code.
func (e *Engine) nextAddress(codeID uint64) string {
	for {
		e.sequence++

		addr := fmt.Sprintf("contract%d-%d", codeID, e.sequence)
		if !e.registry.Has(addr) {
			return addr
		}
	}
}

func (e *Engine) release(unbondings []staking.Unbonding) error {
	for _, u := range unbondings {
		err := e.bank.AddFunds(u.Delegator, coin.Coins{u.Amount})
		if err != nil {
			return xerrors.Errorf("failed to release unbonding of %s: %v", u.Delegator, err)
		}
	}

	return nil
}

// snapshot hides the checkpoint methods of a store from the contracts.
type snapshot struct {
	store.IterableSnapshot
}

// readOnly hides the write methods of a store.
type readOnly struct {
	store store.ReadOnly
}

func (r readOnly) Get(key []byte) ([]byte, error) {
	return r.store.Get(key)
}

func (r readOnly) Scan(prefix []byte, fn func(key, value []byte) error) error {
	return r.store.Scan(prefix, fn)
}
