package engine

import (
	"time"

	"github.com/shurinov/fadroma/core/execution"
)

// Block returns the current block.
func (e *Engine) Block() execution.Block {
	return e.block
}

// ChainID returns the chain identifier given to the contracts.
func (e *Engine) ChainID() string {
	return e.cfg.ChainID
}

// SetBlock replaces the current block. No unbonding is matured.
func (e *Engine) SetBlock(block execution.Block) {
	e.setBlock(block)
}

// FreezeBlock stops the block from advancing after each successful call.
func (e *Engine) FreezeBlock() {
	e.frozen = true
}

// UnfreezeBlock lets the block advance again after each successful call.
func (e *Engine) UnfreezeBlock() {
	e.frozen = false
}

// IsFrozen returns true if the block is frozen.
func (e *Engine) IsFrozen() bool {
	return e.frozen
}

// NextBlock moves to the next block and credits the unbondings that are
// mature at its time. It ignores the frozen state.
func (e *Engine) NextBlock() error {
	return e.atomic(e.advance)
}

// advance moves to the next block and releases the unbondings matured at its
// time. It must run inside a checkpoint.
func (e *Engine) advance() error {
	next := execution.Block{
		Height: e.block.Height + 1,
		Time:   e.block.Time.Add(e.cfg.BlockInterval),
	}

	unbondings, err := e.staking.Mature(next.Time)
	if err != nil {
		return err
	}

	err = e.release(unbondings)
	if err != nil {
		return err
	}

	e.setBlock(next)

	return nil
}

func (e *Engine) setBlock(block execution.Block) {
	e.block = block

	promHeight.Set(float64(block.Height))
}

// maturity returns the time at which an unbonding requested now matures.
func (e *Engine) maturity() time.Time {
	return e.block.Time.Add(e.cfg.UnbondingPeriod)
}
