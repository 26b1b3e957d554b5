// Package execution defines the boundary between the engine and the contracts
// it runs: the interface a contract implements, the environment it receives
// and the messages and responses it exchanges with the engine.
package execution

import (
	"time"

	"github.com/shurinov/fadroma/core/coin"
	"github.com/shurinov/fadroma/core/staking"
	"github.com/shurinov/fadroma/core/store"
)

// Contract is the interface to implement to register a contract in the
// engine. The payloads are opaque to the engine.
type Contract interface {
	// Instantiate initializes the store of a new instance.
	Instantiate(deps Deps, env Env, info Info, msg []byte) (Response, error)

	// Execute runs a call on an existing instance.
	Execute(deps Deps, env Env, info Info, msg []byte) (Response, error)

	// Query answers a read-only request. The store cannot be modified.
	Query(deps QueryDeps, env Env, msg []byte) ([]byte, error)

	// Reply is called with the result of a sub-message emitted by the
	// instance when its reply policy requests it.
	Reply(deps Deps, env Env, reply Reply) (Response, error)
}

// Deps are the dependencies available to a contract during a call that can
// modify its state.
type Deps struct {
	Store   store.IterableSnapshot
	Querier Querier
}

// QueryDeps are the dependencies available to a contract during a query.
type QueryDeps struct {
	Store   store.ReadOnly
	Querier Querier
}

// Querier is a read-only view of the ensemble that a contract can use to
// inspect the ledgers and to query other contracts.
type Querier interface {
	// Balance returns the amount of the denomination held by the address.
	Balance(addr, denom string) (coin.Coin, error)

	// AllBalances returns every balance of the address.
	AllBalances(addr string) (coin.Coins, error)

	// QueryContract sends a query to the contract at the address.
	QueryContract(addr string, msg []byte) ([]byte, error)

	// BondedDenom returns the denomination accepted for delegations.
	BondedDenom() string

	// Validators returns the registered validators.
	Validators() ([]staking.Validator, error)

	// Delegation returns the delegation of the pair.
	Delegation(delegator, validator string) (staking.FullDelegation, error)

	// AllDelegations returns the delegations of the delegator.
	AllDelegations(delegator string) ([]staking.Delegation, error)
}

// Block is the block in which a call is executed.
type Block struct {
	Height uint64
	Time   time.Time
}

// ContractInfo identifies the instance being called.
type ContractInfo struct {
	Address string
	CodeID  uint64
}

// Env is the environment of a call. It is read-only for the contract.
type Env struct {
	Block    Block
	ChainID  string
	Contract ContractInfo
}

// Info describes who sent the call and the funds that were attached and
// already transferred to the instance.
type Info struct {
	Sender string
	Funds  coin.Coins
}
