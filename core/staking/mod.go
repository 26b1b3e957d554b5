// Package staking implements the delegation ledger of the ensemble.
//
// It records the validators, the stake of every (delegator, validator) pair
// with its accumulated rewards, and the queue of undelegations waiting for
// their maturity. The state lives in a checkpointed store like the bank so
// that the engine reverts it with the rest of a failed call.
//
// The ledger never touches balances: the engine debits the bank before a
// delegation and credits it with the rewards and the matured unbondings.
package staking

import (
	"encoding/binary"
	"time"

	"github.com/holiman/uint256"
	jsoniter "github.com/json-iterator/go"
	"github.com/shurinov/fadroma/core/coin"
	"github.com/shurinov/fadroma/core/store"
	"github.com/shurinov/fadroma/core/store/prefixed"
	"golang.org/x/xerrors"
)

var (
	// ErrUnknownValidator is returned when a validator is not registered.
	ErrUnknownValidator = xerrors.New("unknown validator")

	// ErrValidatorExists is returned when a validator is registered twice.
	ErrValidatorExists = xerrors.New("validator already exists")

	// ErrDelegationNotFound is returned when no delegation exists for the pair.
	ErrDelegationNotFound = xerrors.New("delegation not found")

	// ErrInsufficientDelegation is returned when more than the delegated
	// amount is undelegated or redelegated.
	ErrInsufficientDelegation = xerrors.New("insufficient delegation")

	// ErrRedelegationLocked is returned when a redelegation is requested while
	// an undelegation from the source validator is still waiting.
	ErrRedelegationLocked = xerrors.New("redelegation locked by a pending unbonding")

	// ErrInvalidDenom is returned when the coin is not the bonded denomination.
	ErrInvalidDenom = xerrors.New("invalid denomination")

	// ErrInvalidAmount is returned for a zero amount.
	ErrInvalidAmount = xerrors.New("invalid amount")

	json = jsoniter.ConfigCompatibleWithStandardLibrary
)

const (
	validatorPrefix  = "validator"
	delegationPrefix = "delegation"
	unbondingPrefix  = "unbonding"
	metaPrefix       = "meta"
)

var sequenceKey = []byte("unbonding-sequence")

// Validator is a validator that accepts delegations. The rates are decimal
// strings passed through to the contracts.
type Validator struct {
	Address       string `json:"address"`
	Commission    string `json:"commission"`
	MaxCommission string `json:"max_commission"`
	MaxChangeRate string `json:"max_change_rate"`
}

// Delegation is the stake of a delegator with a validator.
type Delegation struct {
	Delegator string
	Validator string
	Amount    coin.Coin
}

// FullDelegation is a delegation with the amount that can be redelegated and
// the rewards that can be withdrawn.
type FullDelegation struct {
	Delegation
	CanRedelegate      coin.Coin
	AccumulatedRewards coin.Coins
}

// Unbonding is an amount removed from a delegation that is returned to the
// delegator once matured.
type Unbonding struct {
	Delegator string
	Validator string
	Amount    coin.Coin
	Matures   time.Time
}

type delegationRecord struct {
	Amount  coin.Coin  `json:"amount"`
	Rewards coin.Coins `json:"rewards"`
}

type unbondingRecord struct {
	Delegator string    `json:"delegator"`
	Validator string    `json:"validator"`
	Amount    coin.Coin `json:"amount"`
	Matures   int64     `json:"matures"`
}

// Delegations is the delegation ledger.
type Delegations struct {
	store       store.Checkpointed
	validators  store.IterableSnapshot
	delegations store.IterableSnapshot
	unbondings  store.IterableSnapshot
	meta        store.IterableSnapshot
	denom       string
}

// NewDelegations creates a delegation ledger that accepts the bonded
// denomination and keeps its state in the store.
func NewDelegations(s store.Checkpointed, denom string) *Delegations {
	return &Delegations{
		store:       s,
		validators:  prefixed.NewSnapshot(validatorPrefix, s),
		delegations: prefixed.NewSnapshot(delegationPrefix, s),
		unbondings:  prefixed.NewSnapshot(unbondingPrefix, s),
		meta:        prefixed.NewSnapshot(metaPrefix, s),
		denom:       denom,
	}
}

// Store returns the checkpointed store of the ledger.
func (d *Delegations) Store() store.Checkpointed {
	return d.store
}

// Denom returns the bonded denomination.
func (d *Delegations) Denom() string {
	return d.denom
}

// AddValidator registers a new validator.
func (d *Delegations) AddValidator(v Validator) error {
	if v.Address == "" {
		return xerrors.New("validator address is empty")
	}

	data, err := d.validators.Get([]byte(v.Address))
	if err != nil {
		return xerrors.Errorf("failed to read validator: %v", err)
	}

	if data != nil {
		return xerrors.Errorf("'%s': %w", v.Address, ErrValidatorExists)
	}

	return d.put(d.validators, []byte(v.Address), v)
}

// Validator returns the validator registered at the address.
func (d *Delegations) Validator(addr string) (Validator, error) {
	var v Validator

	found, err := d.get(d.validators, []byte(addr), &v)
	if err != nil {
		return v, err
	}

	if !found {
		return v, xerrors.Errorf("'%s': %w", addr, ErrUnknownValidator)
	}

	return v, nil
}

// Validators returns the validators sorted by address.
func (d *Delegations) Validators() ([]Validator, error) {
	res := []Validator{}

	err := d.validators.Scan(nil, func(key, value []byte) error {
		var v Validator

		err := json.Unmarshal(value, &v)
		if err != nil {
			return xerrors.Errorf("failed to decode validator: %v", err)
		}

		res = append(res, v)

		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to scan validators: %v", err)
	}

	return res, nil
}

// Delegate adds the amount to the stake of the delegator. The caller is
// responsible for having debited the amount beforehand.
func (d *Delegations) Delegate(delegator, validator string, amount coin.Coin) error {
	err := d.checkAmount(amount)
	if err != nil {
		return err
	}

	_, err = d.Validator(validator)
	if err != nil {
		return err
	}

	rec, _, err := d.readDelegation(delegator, validator)
	if err != nil {
		return err
	}

	var sum uint256.Int

	_, overflow := sum.AddOverflow(&rec.Amount.Amount, &amount.Amount)
	if overflow {
		return xerrors.Errorf("delegation of %s overflows", amount)
	}

	rec.Amount = coin.Coin{Denom: d.denom, Amount: sum}

	return d.put(d.delegations, delegationKey(delegator, validator), rec)
}

// Undelegate removes the amount from the stake and queues it until the
// maturity time.
func (d *Delegations) Undelegate(delegator, validator string, amount coin.Coin,
	matures time.Time) error {

	err := d.checkAmount(amount)
	if err != nil {
		return err
	}

	_, err = d.Validator(validator)
	if err != nil {
		return err
	}

	err = d.decrease(delegator, validator, amount)
	if err != nil {
		return err
	}

	seq, err := d.nextSequence()
	if err != nil {
		return err
	}

	rec := unbondingRecord{
		Delegator: delegator,
		Validator: validator,
		Amount:    amount,
		Matures:   matures.UnixNano(),
	}

	return d.put(d.unbondings, seq, rec)
}

// Redelegate moves the amount from the source validator to the destination
// one. It is refused while an undelegation from the source validator waits.
func (d *Delegations) Redelegate(delegator, src, dst string, amount coin.Coin) error {
	err := d.checkAmount(amount)
	if err != nil {
		return err
	}

	_, err = d.Validator(src)
	if err != nil {
		return err
	}

	_, err = d.Validator(dst)
	if err != nil {
		return err
	}

	locked, err := d.hasUnbonding(delegator, src)
	if err != nil {
		return err
	}

	if locked {
		return xerrors.Errorf("%s from %s: %w", delegator, src, ErrRedelegationLocked)
	}

	err = d.decrease(delegator, src, amount)
	if err != nil {
		return err
	}

	return d.Delegate(delegator, dst, amount)
}

// Withdraw resets the accumulated rewards of the delegation and returns them.
func (d *Delegations) Withdraw(delegator, validator string) (coin.Coins, error) {
	rec, found, err := d.readDelegation(delegator, validator)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, xerrors.Errorf("%s with %s: %w", delegator, validator, ErrDelegationNotFound)
	}

	rewards := rec.Rewards
	rec.Rewards = coin.Coins{}

	err = d.writeDelegation(delegator, validator, rec)
	if err != nil {
		return nil, err
	}

	if rewards == nil {
		rewards = coin.Coins{}
	}

	return rewards, nil
}

// DistributeRewards credits the amount to the rewards of every delegation with
// a non-zero stake.
func (d *Delegations) DistributeRewards(amount coin.Coin) error {
	type entry struct {
		key []byte
		rec delegationRecord
	}

	entries := []entry{}

	err := d.delegations.Scan(nil, func(key, value []byte) error {
		var rec delegationRecord

		err := json.Unmarshal(value, &rec)
		if err != nil {
			return xerrors.Errorf("failed to decode delegation: %v", err)
		}

		if !rec.Amount.IsZero() {
			entries = append(entries, entry{key: append([]byte{}, key...), rec: rec})
		}

		return nil
	})
	if err != nil {
		return xerrors.Errorf("failed to scan delegations: %v", err)
	}

	for _, e := range entries {
		e.rec.Rewards, err = e.rec.Rewards.Add(amount)
		if err != nil {
			return xerrors.Errorf("failed to add rewards: %v", err)
		}

		err = d.put(d.delegations, e.key, e.rec)
		if err != nil {
			return err
		}
	}

	return nil
}

// Delegation returns the full delegation of the pair.
func (d *Delegations) Delegation(delegator, validator string) (FullDelegation, error) {
	rec, found, err := d.readDelegation(delegator, validator)
	if err != nil {
		return FullDelegation{}, err
	}

	if !found {
		return FullDelegation{}, xerrors.Errorf("%s with %s: %w",
			delegator, validator, ErrDelegationNotFound)
	}

	locked, err := d.hasUnbonding(delegator, validator)
	if err != nil {
		return FullDelegation{}, err
	}

	full := FullDelegation{
		Delegation: Delegation{
			Delegator: delegator,
			Validator: validator,
			Amount:    rec.Amount,
		},
		CanRedelegate:      rec.Amount,
		AccumulatedRewards: rec.Rewards,
	}

	if locked {
		full.CanRedelegate = coin.New(0, d.denom)
	}

	if full.AccumulatedRewards == nil {
		full.AccumulatedRewards = coin.Coins{}
	}

	return full, nil
}

// AllDelegations returns the delegations of the delegator sorted by
// validator.
func (d *Delegations) AllDelegations(delegator string) ([]Delegation, error) {
	prefix := delegationKey(delegator, "")
	res := []Delegation{}

	err := d.delegations.Scan(prefix, func(key, value []byte) error {
		var rec delegationRecord

		err := json.Unmarshal(value, &rec)
		if err != nil {
			return xerrors.Errorf("failed to decode delegation: %v", err)
		}

		res = append(res, Delegation{
			Delegator: delegator,
			Validator: string(key[len(prefix):]),
			Amount:    rec.Amount,
		})

		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to scan delegations: %v", err)
	}

	return res, nil
}

// Unbondings returns the pending unbondings of the delegator in the order
// they were requested.
func (d *Delegations) Unbondings(delegator string) ([]Unbonding, error) {
	all, err := d.pendingUnbondings()
	if err != nil {
		return nil, err
	}

	res := []Unbonding{}
	for _, u := range all {
		if u.Delegator == delegator {
			res = append(res, u.Unbonding)
		}
	}

	return res, nil
}

// Mature removes the unbondings whose maturity is not after the given time
// and returns them in the order they were requested.
func (d *Delegations) Mature(now time.Time) ([]Unbonding, error) {
	return d.release(func(u Unbonding) bool {
		return !u.Matures.After(now)
	})
}

// FastForwardWaits removes every pending unbonding, which also lifts the
// redelegation locks, and returns them. It is a no-op when nothing is
// pending.
func (d *Delegations) FastForwardWaits() ([]Unbonding, error) {
	return d.release(func(Unbonding) bool { return true })
}

type pendingUnbonding struct {
	Unbonding
	key []byte
}

func (d *Delegations) release(match func(Unbonding) bool) ([]Unbonding, error) {
	all, err := d.pendingUnbondings()
	if err != nil {
		return nil, err
	}

	res := []Unbonding{}

	for _, u := range all {
		if !match(u.Unbonding) {
			continue
		}

		err = d.unbondings.Delete(u.key)
		if err != nil {
			return nil, xerrors.Errorf("failed to delete unbonding: %v", err)
		}

		res = append(res, u.Unbonding)
	}

	return res, nil
}

func (d *Delegations) pendingUnbondings() ([]pendingUnbonding, error) {
	res := []pendingUnbonding{}

	err := d.unbondings.Scan(nil, func(key, value []byte) error {
		var rec unbondingRecord

		err := json.Unmarshal(value, &rec)
		if err != nil {
			return xerrors.Errorf("failed to decode unbonding: %v", err)
		}

		res = append(res, pendingUnbonding{
			Unbonding: Unbonding{
				Delegator: rec.Delegator,
				Validator: rec.Validator,
				Amount:    rec.Amount,
				Matures:   time.Unix(0, rec.Matures).UTC(),
			},
			key: append([]byte{}, key...),
		})

		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to scan unbondings: %v", err)
	}

	return res, nil
}

func (d *Delegations) hasUnbonding(delegator, validator string) (bool, error) {
	all, err := d.pendingUnbondings()
	if err != nil {
		return false, err
	}

	for _, u := range all {
		if u.Delegator == delegator && u.Validator == validator {
			return true, nil
		}
	}

	return false, nil
}

func (d *Delegations) decrease(delegator, validator string, amount coin.Coin) error {
	rec, found, err := d.readDelegation(delegator, validator)
	if err != nil {
		return err
	}

	if !found {
		return xerrors.Errorf("%s with %s: %w", delegator, validator, ErrDelegationNotFound)
	}

	var diff uint256.Int

	_, underflow := diff.SubOverflow(&rec.Amount.Amount, &amount.Amount)
	if underflow {
		return xerrors.Errorf("%s delegated %s, requested %s: %w",
			delegator, rec.Amount, amount, ErrInsufficientDelegation)
	}

	rec.Amount = coin.Coin{Denom: d.denom, Amount: diff}

	return d.writeDelegation(delegator, validator, rec)
}

func (d *Delegations) readDelegation(delegator, validator string) (delegationRecord, bool, error) {
	rec := delegationRecord{
		Amount:  coin.New(0, d.denom),
		Rewards: coin.Coins{},
	}

	found, err := d.get(d.delegations, delegationKey(delegator, validator), &rec)

	return rec, found, err
}

// writeDelegation stores the record, or deletes it when neither stake nor
// rewards are left.
func (d *Delegations) writeDelegation(delegator, validator string, rec delegationRecord) error {
	key := delegationKey(delegator, validator)

	if rec.Amount.IsZero() && rec.Rewards.IsZero() {
		err := d.delegations.Delete(key)
		if err != nil {
			return xerrors.Errorf("failed to delete delegation: %v", err)
		}

		return nil
	}

	return d.put(d.delegations, key, rec)
}

func (d *Delegations) checkAmount(amount coin.Coin) error {
	if amount.Denom != d.denom {
		return xerrors.Errorf("'%s' instead of '%s': %w", amount.Denom, d.denom, ErrInvalidDenom)
	}

	if amount.IsZero() {
		return xerrors.Errorf("%s: %w", amount, ErrInvalidAmount)
	}

	return nil
}

func (d *Delegations) nextSequence() ([]byte, error) {
	data, err := d.meta.Get(sequenceKey)
	if err != nil {
		return nil, xerrors.Errorf("failed to read sequence: %v", err)
	}

	seq := uint64(0)
	if len(data) == 8 {
		seq = binary.BigEndian.Uint64(data)
	}

	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)

	next := make([]byte, 8)
	binary.BigEndian.PutUint64(next, seq+1)

	err = d.meta.Set(sequenceKey, next)
	if err != nil {
		return nil, xerrors.Errorf("failed to write sequence: %v", err)
	}

	return key, nil
}

func (d *Delegations) get(s store.Readable, key []byte, v interface{}) (bool, error) {
	data, err := s.Get(key)
	if err != nil {
		return false, xerrors.Errorf("failed to read key '%s': %v", key, err)
	}

	if data == nil {
		return false, nil
	}

	err = json.Unmarshal(data, v)
	if err != nil {
		return false, xerrors.Errorf("failed to decode key '%s': %v", key, err)
	}

	return true, nil
}

func (d *Delegations) put(s store.Writable, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return xerrors.Errorf("failed to encode: %v", err)
	}

	err = s.Set(key, data)
	if err != nil {
		return xerrors.Errorf("failed to write key '%s': %v", key, err)
	}

	return nil
}

func delegationKey(delegator, validator string) []byte {
	key := make([]byte, 0, len(delegator)+len(validator)+1)
	key = append(key, delegator...)
	key = append(key, 0)

	return append(key, validator...)
}
