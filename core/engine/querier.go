package engine

import (
	"github.com/shurinov/fadroma/core/coin"
	"github.com/shurinov/fadroma/core/staking"
)

// querier is the read-only view of the ensemble given to the contracts.
//
// - implements execution.Querier
type querier struct {
	engine *Engine
}

// Balance implements execution.Querier.
func (q querier) Balance(addr, denom string) (coin.Coin, error) {
	return q.engine.bank.Balance(addr, denom)
}

// AllBalances implements execution.Querier.
func (q querier) AllBalances(addr string) (coin.Coins, error) {
	return q.engine.bank.Balances(addr)
}

// QueryContract implements execution.Querier.
func (q querier) QueryContract(addr string, msg []byte) ([]byte, error) {
	return q.engine.query(addr, msg)
}

// BondedDenom implements execution.Querier.
func (q querier) BondedDenom() string {
	return q.engine.staking.Denom()
}

// Validators implements execution.Querier.
func (q querier) Validators() ([]staking.Validator, error) {
	return q.engine.staking.Validators()
}

// Delegation implements execution.Querier.
func (q querier) Delegation(delegator, validator string) (staking.FullDelegation, error) {
	return q.engine.staking.Delegation(delegator, validator)
}

// AllDelegations implements execution.Querier.
func (q querier) AllDelegations(delegator string) ([]staking.Delegation, error) {
	return q.engine.staking.AllDelegations(delegator)
}
