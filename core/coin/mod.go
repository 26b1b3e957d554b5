// Package coin defines the fungible amounts moved by the ledger. An amount is
// an unsigned 256-bit integer tagged with a denomination.
package coin

import (
	"regexp"
	"sort"
	"strings"

	"github.com/holiman/uint256"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/xerrors"
)

var (
	// ErrOverflow is returned when an addition exceeds 256 bits.
	ErrOverflow = xerrors.New("amount overflow")

	// ErrInsufficient is returned when a subtraction would go below zero.
	ErrInsufficient = xerrors.New("insufficient amount")

	coinRegexp = regexp.MustCompile(`^([0-9]+)([a-zA-Z][a-zA-Z0-9/:._-]{1,127})$`)

	json = jsoniter.ConfigCompatibleWithStandardLibrary
)

// Coin is an amount of a single denomination.
type Coin struct {
	Denom  string
	Amount uint256.Int
}

// New creates a coin from a 64-bit amount.
func New(amount uint64, denom string) Coin {
	return Coin{
		Denom:  denom,
		Amount: *uint256.NewInt(amount),
	}
}

// IsZero returns true if the amount is zero.
func (c Coin) IsZero() bool {
	return c.Amount.IsZero()
}

// String returns the compact representation of the coin, like "100uscrt".
func (c Coin) String() string {
	return c.Amount.Dec() + c.Denom
}

type jsonCoin struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

// MarshalJSON implements json.Marshaler. The amount is written as a decimal
// string.
func (c Coin) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonCoin{Denom: c.Denom, Amount: c.Amount.Dec()})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Coin) UnmarshalJSON(data []byte) error {
	var m jsonCoin

	err := json.Unmarshal(data, &m)
	if err != nil {
		return xerrors.Errorf("failed to decode coin: %v", err)
	}

	amount, err := uint256.FromDecimal(m.Amount)
	if err != nil {
		return xerrors.Errorf("invalid amount '%s': %v", m.Amount, err)
	}

	c.Denom = m.Denom
	c.Amount = *amount

	return nil
}

// Parse reads a coin from its compact representation.
func Parse(str string) (Coin, error) {
	match := coinRegexp.FindStringSubmatch(strings.TrimSpace(str))
	if match == nil {
		return Coin{}, xerrors.Errorf("invalid coin '%s'", str)
	}

	amount, err := uint256.FromDecimal(match[1])
	if err != nil {
		return Coin{}, xerrors.Errorf("invalid amount '%s': %v", match[1], err)
	}

	return Coin{Denom: match[2], Amount: *amount}, nil
}

// Coins is a list of coins of distinct denominations, sorted by denomination.
// The zero amounts are omitted.
type Coins []Coin

// NewCoins creates a normalized list of coins. The amounts of the same
// denomination are summed.
func NewCoins(coins ...Coin) (Coins, error) {
	res := Coins{}

	for _, c := range coins {
		var err error

		res, err = res.Add(c)
		if err != nil {
			return nil, err
		}
	}

	return res, nil
}

// ParseCoins reads a comma-separated list of coins, like "100uscrt,5uatom".
func ParseCoins(str string) (Coins, error) {
	str = strings.TrimSpace(str)
	if str == "" {
		return Coins{}, nil
	}

	parts := strings.Split(str, ",")
	coins := make([]Coin, len(parts))

	for i, part := range parts {
		c, err := Parse(part)
		if err != nil {
			return nil, err
		}

		coins[i] = c
	}

	return NewCoins(coins...)
}

// AmountOf returns the amount of the denomination.
func (cs Coins) AmountOf(denom string) uint256.Int {
	for _, c := range cs {
		if c.Denom == denom {
			return c.Amount
		}
	}

	return uint256.Int{}
}

// IsZero returns true if every amount is zero.
func (cs Coins) IsZero() bool {
	for _, c := range cs {
		if !c.IsZero() {
			return false
		}
	}

	return true
}

// Add returns a new list with the coins added.
func (cs Coins) Add(coins ...Coin) (Coins, error) {
	res := cs.clone()

	for _, c := range coins {
		if c.IsZero() {
			continue
		}

		i := res.index(c.Denom)
		if i < 0 {
			res = append(res, c)
			sort.Slice(res, func(i, j int) bool { return res[i].Denom < res[j].Denom })

			continue
		}

		var sum uint256.Int

		_, overflow := sum.AddOverflow(&res[i].Amount, &c.Amount)
		if overflow {
			return nil, xerrors.Errorf("%s + %s: %w", res[i], c, ErrOverflow)
		}

		res[i].Amount = sum
	}

	return res, nil
}

// Sub returns a new list with the coins subtracted.
func (cs Coins) Sub(coins ...Coin) (Coins, error) {
	res := cs.clone()

	for _, c := range coins {
		if c.IsZero() {
			continue
		}

		i := res.index(c.Denom)
		if i < 0 {
			return nil, xerrors.Errorf("0%s < %s: %w", c.Denom, c, ErrInsufficient)
		}

		var diff uint256.Int

		_, underflow := diff.SubOverflow(&res[i].Amount, &c.Amount)
		if underflow {
			return nil, xerrors.Errorf("%s < %s: %w", res[i], c, ErrInsufficient)
		}

		if diff.IsZero() {
			res = append(res[:i], res[i+1:]...)
		} else {
			res[i].Amount = diff
		}
	}

	return res, nil
}

// String returns the comma-separated compact representation.
func (cs Coins) String() string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = c.String()
	}

	return strings.Join(parts, ",")
}

func (cs Coins) index(denom string) int {
	for i, c := range cs {
		if c.Denom == denom {
			return i
		}
	}

	return -1
}

func (cs Coins) clone() Coins {
	res := make(Coins, len(cs))
	copy(res, cs)

	return res
}
