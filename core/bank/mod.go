// Package bank implements the ledger of the ensemble: the balances of every
// address, kept in a checkpointed store so that the engine can revert the
// transfers of a failed call.
package bank

import (
	"github.com/holiman/uint256"
	"github.com/shurinov/fadroma/core/coin"
	"github.com/shurinov/fadroma/core/store"
	"github.com/shurinov/fadroma/core/store/prefixed"
	"golang.org/x/xerrors"
)

const balancePrefix = "balance"

var (
	// ErrInsufficientFunds is returned when an address does not hold enough
	// funds for a transfer or a removal.
	ErrInsufficientFunds = xerrors.New("insufficient funds")

	// ErrOverflow is returned when a credit exceeds the maximum amount.
	ErrOverflow = xerrors.New("balance overflow")

	// ErrInvalidAddress is returned for an empty address.
	ErrInvalidAddress = xerrors.New("invalid address")
)

// Bank holds the balances of the addresses.
type Bank struct {
	store    store.Checkpointed
	balances store.IterableSnapshot
}

// NewBank creates a bank that keeps its balances in the store.
func NewBank(s store.Checkpointed) *Bank {
	return &Bank{
		store:    s,
		balances: prefixed.NewSnapshot(balancePrefix, s),
	}
}

// Store returns the checkpointed store of the bank.
func (b *Bank) Store() store.Checkpointed {
	return b.store
}

// Balance returns the amount of the denomination held by the address.
func (b *Bank) Balance(addr, denom string) (coin.Coin, error) {
	value, err := b.balances.Get(balanceKey(addr, denom))
	if err != nil {
		return coin.Coin{}, xerrors.Errorf("failed to read balance: %v", err)
	}

	res := coin.Coin{Denom: denom}
	res.Amount.SetBytes(value)

	return res, nil
}

// Balances returns every non-zero balance of the address.
func (b *Bank) Balances(addr string) (coin.Coins, error) {
	prefix := balanceKey(addr, "")
	res := coin.Coins{}

	err := b.balances.Scan(prefix, func(key, value []byte) error {
		c := coin.Coin{Denom: string(key[len(prefix):])}
		c.Amount.SetBytes(value)

		if !c.IsZero() {
			res = append(res, c)
		}

		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to scan balances: %v", err)
	}

	return res, nil
}

// AddFunds credits the coins to the address. It is an administrative
// operation that does not debit anyone.
func (b *Bank) AddFunds(addr string, coins coin.Coins) error {
	return b.atomic(func() error {
		return b.credit(addr, coins)
	})
}

// RemoveFunds debits the coins from the address. It fails if the address does
// not hold enough funds.
func (b *Bank) RemoveFunds(addr string, coins coin.Coins) error {
	return b.atomic(func() error {
		return b.debit(addr, coins)
	})
}

// Transfer moves the coins from one address to another. Either every coin is
// moved or none. An empty list of coins is a successful no-op.
func (b *Bank) Transfer(from, to string, coins coin.Coins) error {
	if coins.IsZero() {
		return nil
	}

	if to == "" {
		return xerrors.Errorf("empty recipient: %w", ErrInvalidAddress)
	}

	return b.atomic(func() error {
		err := b.debit(from, coins)
		if err != nil {
			return err
		}

		return b.credit(to, coins)
	})
}

// atomic runs fn behind a checkpoint of the store and discards its writes if
// it fails.
func (b *Bank) atomic(fn func() error) error {
	b.store.Checkpoint()

	err := fn()
	if err != nil {
		rerr := b.store.Revert()
		if rerr != nil {
			return xerrors.Errorf("failed to revert after %v: %v", err, rerr)
		}

		return err
	}

	return b.store.Commit()
}

func (b *Bank) credit(addr string, coins coin.Coins) error {
	if addr == "" {
		return xerrors.Errorf("empty address: %w", ErrInvalidAddress)
	}

	for _, c := range coins {
		if c.IsZero() {
			continue
		}

		balance, err := b.Balance(addr, c.Denom)
		if err != nil {
			return err
		}

		var sum uint256.Int

		_, overflow := sum.AddOverflow(&balance.Amount, &c.Amount)
		if overflow {
			return xerrors.Errorf("crediting %s to %s: %w", c, addr, ErrOverflow)
		}

		err = b.write(addr, c.Denom, &sum)
		if err != nil {
			return err
		}
	}

	return nil
}

func (b *Bank) debit(addr string, coins coin.Coins) error {
	for _, c := range coins {
		if c.IsZero() {
			continue
		}

		balance, err := b.Balance(addr, c.Denom)
		if err != nil {
			return err
		}

		var diff uint256.Int

		_, underflow := diff.SubOverflow(&balance.Amount, &c.Amount)
		if underflow {
			return xerrors.Errorf("%s holds %s, needs %s: %w",
				addr, balance, c, ErrInsufficientFunds)
		}

		err = b.write(addr, c.Denom, &diff)
		if err != nil {
			return err
		}
	}

	return nil
}

func (b *Bank) write(addr, denom string, amount *uint256.Int) error {
	key := balanceKey(addr, denom)

	var err error
	if amount.IsZero() {
		err = b.balances.Delete(key)
	} else {
		err = b.balances.Set(key, amount.Bytes())
	}

	if err != nil {
		return xerrors.Errorf("failed to write balance: %v", err)
	}

	return nil
}

// balanceKey builds the key of a balance. The address is terminated by a zero
// byte so that scanning an address never matches a longer one.
func balanceKey(addr, denom string) []byte {
	key := make([]byte, 0, len(addr)+len(denom)+1)
	key = append(key, addr...)
	key = append(key, 0)

	return append(key, denom...)
}
