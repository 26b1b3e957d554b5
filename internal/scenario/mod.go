// Package scenario runs a sequence of calls described in a YAML file against an
// engine, and checks the outcomes the file expects.
//
//	name: transfer
//	funds:
//	  alice: 1000uscrt
//	steps:
//	  - instantiate:
//	      code: counter
//	      sender: alice
//	      address: A
//	  - execute:
//	      sender: alice
//	      contract: A
//	      msg: '{"incr_number":1}'
//	  - query:
//	      contract: A
//	      msg: '{}'
//	      expect: '{"num":1,"balance":{"denom":"uscrt","amount":"0"}}'
//
// The messages are JSON documents written as strings, and the coins use the
// compact representation, like "100uscrt,5uatom".
package scenario

import (
	"io/ioutil"
	"reflect"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/shurinov/fadroma"
	"github.com/shurinov/fadroma/contracts/counter"
	"github.com/shurinov/fadroma/contracts/value"
	"github.com/shurinov/fadroma/core/coin"
	"github.com/shurinov/fadroma/core/engine"
	"github.com/shurinov/fadroma/core/execution"
	"github.com/shurinov/fadroma/core/staking"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Scenario is the content of a scenario file.
type Scenario struct {
	Name       string            `yaml:"name"`
	Funds      map[string]string `yaml:"funds"`
	Validators []string          `yaml:"validators"`
	Steps      []Step            `yaml:"steps"`
}

// Step is a single action of a scenario. Exactly one action is set. When the
// error is not empty, the action must fail with an error that contains it.
type Step struct {
	Name        string           `yaml:"name"`
	Instantiate *InstantiateStep `yaml:"instantiate"`
	Execute     *ExecuteStep     `yaml:"execute"`
	Query       *QueryStep       `yaml:"query"`
	Balance     *BalanceStep     `yaml:"balance"`
	Rewards     uint64           `yaml:"rewards"`
	NextBlock   bool             `yaml:"next_block"`
	FastForward bool             `yaml:"fast_forward"`
	Error       string           `yaml:"error"`
}

// InstantiateStep creates an instance of a code designated by its name. The
// engine chooses the address when it is empty.
type InstantiateStep struct {
	Code    string `yaml:"code"`
	Sender  string `yaml:"sender"`
	Address string `yaml:"address"`
	Msg     string `yaml:"msg"`
	Funds   string `yaml:"funds"`
}

// ExecuteStep calls an instance.
type ExecuteStep struct {
	Sender   string `yaml:"sender"`
	Contract string `yaml:"contract"`
	Msg      string `yaml:"msg"`
	Funds    string `yaml:"funds"`
}

// QueryStep queries an instance and compares the answer to the expected JSON
// document, if any.
type QueryStep struct {
	Contract string `yaml:"contract"`
	Msg      string `yaml:"msg"`
	Expect   string `yaml:"expect"`
}

// BalanceStep compares every balance of the address to the expected coins.
type BalanceStep struct {
	Address string `yaml:"address"`
	Expect  string `yaml:"expect"`
}

// Result is the outcome of a step.
type Result struct {
	Index   int
	Name    string
	Kind    string
	Address string
	Trace   engine.Trace
	Output  []byte
	Err     error
}

// Load reads and parses the scenario file.
func Load(path string) (Scenario, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return Scenario{}, xerrors.Errorf("failed to read scenario: %v", err)
	}

	return Parse(data)
}

// Parse decodes a scenario. Unknown fields are refused.
func Parse(data []byte) (Scenario, error) {
	var s Scenario

	err := yaml.UnmarshalStrict(data, &s)
	if err != nil {
		return Scenario{}, xerrors.Errorf("failed to decode scenario: %v", err)
	}

	for i, step := range s.Steps {
		n := step.actions()
		if n != 1 {
			return Scenario{}, xerrors.Errorf("step %d: expected one action, got %d", i, n)
		}
	}

	return s, nil
}

func (s Step) actions() int {
	n := 0

	for _, set := range []bool{
		s.Instantiate != nil,
		s.Execute != nil,
		s.Query != nil,
		s.Balance != nil,
		s.Rewards > 0,
		s.NextBlock,
		s.FastForward,
	} {
		if set {
			n++
		}
	}

	return n
}

func (s Step) kind() string {
	switch {
	case s.Instantiate != nil:
		return "instantiate"
	case s.Execute != nil:
		return "execute"
	case s.Query != nil:
		return "query"
	case s.Balance != nil:
		return "balance"
	case s.Rewards > 0:
		return "rewards"
	case s.NextBlock:
		return "next_block"
	default:
		return "fast_forward"
	}
}

// Runner runs scenarios against an engine.
type Runner struct {
	engine *engine.Engine
	codes  map[string]uint64
	logger zerolog.Logger
}

// NewRunner returns a runner for the engine. It registers the contracts that
// the scenarios can instantiate by name.
func NewRunner(e *engine.Engine) *Runner {
	r := &Runner{
		engine: e,
		codes:  make(map[string]uint64),
		logger: fadroma.Logger.With().Str("component", "scenario").Logger(),
	}

	r.Register("counter", counter.NewContract())
	r.Register("value", value.NewContract())

	return r
}

// Register adds a contract under the name.
func (r *Runner) Register(name string, contract execution.Contract) {
	r.codes[name] = r.engine.Register(contract)
}

// Engine returns the engine of the runner.
func (r *Runner) Engine() *engine.Engine {
	return r.engine
}

// Run prepares the funds and the validators, then runs every step in order.
// It stops at the first step that does not behave as expected.
func (r *Runner) Run(s Scenario) ([]Result, error) {
	err := r.setup(s)
	if err != nil {
		return nil, xerrors.Errorf("failed to setup: %v", err)
	}

	results := make([]Result, 0, len(s.Steps))

	for i, step := range s.Steps {
		res, err := r.step(step)

		res.Index = i
		res.Name = step.Name
		res.Kind = step.kind()

		if step.Error != "" {
			if err == nil {
				return results, xerrors.Errorf("step %d (%s): expected error '%s'",
					i, res.Kind, step.Error)
			}

			if !strings.Contains(err.Error(), step.Error) {
				return results, xerrors.Errorf("step %d (%s): expected error '%s', got: %w",
					i, res.Kind, step.Error, err)
			}

			res.Err = err
		} else if err != nil {
			return results, xerrors.Errorf("step %d (%s): %w", i, res.Kind, err)
		}

		r.logger.Debug().
			Int("step", i).
			Str("kind", res.Kind).
			Str("address", res.Address).
			Int("trace", len(res.Trace)).
			Msg("step done")

		results = append(results, res)
	}

	return results, nil
}

func (r *Runner) setup(s Scenario) error {
	addrs := make([]string, 0, len(s.Funds))
	for addr := range s.Funds {
		addrs = append(addrs, addr)
	}

	sort.Strings(addrs)

	for _, addr := range addrs {
		coins, err := coin.ParseCoins(s.Funds[addr])
		if err != nil {
			return xerrors.Errorf("funds of '%s': %v", addr, err)
		}

		err = r.engine.AddFunds(addr, coins)
		if err != nil {
			return err
		}
	}

	for _, addr := range s.Validators {
		err := r.engine.AddValidator(staking.Validator{
			Address:       addr,
			Commission:    "0.05",
			MaxCommission: "0.1",
			MaxChangeRate: "0.01",
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *Runner) step(step Step) (Result, error) {
	switch {
	case step.Instantiate != nil:
		return r.instantiate(*step.Instantiate)
	case step.Execute != nil:
		return r.execute(*step.Execute)
	case step.Query != nil:
		return r.query(*step.Query)
	case step.Balance != nil:
		return r.balance(*step.Balance)
	case step.Rewards > 0:
		return Result{}, r.engine.AddRewards(step.Rewards)
	case step.NextBlock:
		return Result{}, r.engine.NextBlock()
	default:
		return Result{}, r.engine.FastForwardDelegationWaits()
	}
}

func (r *Runner) instantiate(step InstantiateStep) (Result, error) {
	code, found := r.codes[step.Code]
	if !found {
		return Result{}, xerrors.Errorf("unknown code '%s'", step.Code)
	}

	funds, err := coin.ParseCoins(step.Funds)
	if err != nil {
		return Result{}, err
	}

	env := engine.NewCallEnv(step.Sender, step.Address).WithFunds(funds)

	resp, err := r.engine.Instantiate(code, payload(step.Msg), env)
	if err != nil {
		return Result{Address: step.Address}, err
	}

	return Result{Address: resp.Address, Trace: resp.Trace}, nil
}

func (r *Runner) execute(step ExecuteStep) (Result, error) {
	funds, err := coin.ParseCoins(step.Funds)
	if err != nil {
		return Result{}, err
	}

	env := engine.NewCallEnv(step.Sender, step.Contract).WithFunds(funds)

	resp, err := r.engine.Execute(payload(step.Msg), env)
	if err != nil {
		return Result{Address: step.Contract}, err
	}

	return Result{Address: resp.Address, Trace: resp.Trace, Output: resp.Response.Data}, nil
}

func (r *Runner) query(step QueryStep) (Result, error) {
	data, err := r.engine.Query(step.Contract, payload(step.Msg))
	if err != nil {
		return Result{}, err
	}

	res := Result{Address: step.Contract, Output: data}

	if step.Expect == "" {
		return res, nil
	}

	equal, err := sameJSON(data, []byte(step.Expect))
	if err != nil {
		return res, err
	}

	if !equal {
		return res, xerrors.Errorf("mismatch: expected %s, got %s", step.Expect, data)
	}

	return res, nil
}

func (r *Runner) balance(step BalanceStep) (Result, error) {
	expected, err := coin.ParseCoins(step.Expect)
	if err != nil {
		return Result{}, err
	}

	balances, err := r.engine.Balances(step.Address)
	if err != nil {
		return Result{}, err
	}

	res := Result{Address: step.Address, Output: []byte(balances.String())}

	if balances.String() != expected.String() {
		return res, xerrors.Errorf("balance of '%s': expected '%s', got '%s'",
			step.Address, expected, balances)
	}

	return res, nil
}

func payload(msg string) []byte {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return nil
	}

	return []byte(msg)
}

func sameJSON(a, b []byte) (bool, error) {
	var left, right interface{}

	err := json.Unmarshal(a, &left)
	if err != nil {
		return false, xerrors.Errorf("invalid answer: %v", err)
	}

	err = json.Unmarshal(b, &right)
	if err != nil {
		return false, xerrors.Errorf("invalid expectation: %v", err)
	}

	return reflect.DeepEqual(left, right), nil
}
