package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/shurinov/fadroma"
	"github.com/shurinov/fadroma/core/engine"
	"github.com/shurinov/fadroma/core/store/kv"
	"github.com/shurinov/fadroma/core/store/versioned"
	"github.com/shurinov/fadroma/internal/scenario"
	"github.com/shurinov/fadroma/internal/tracing"
	"golang.org/x/xerrors"
)

const serviceName = "fadroma"

var getTracer = tracing.GetTracer

// flagSet provides the values of the flags to the action. It is implemented by
// the context of urfave/cli.
type flagSet interface {
	String(name string) string
	Duration(name string) time.Duration
	Path(name string) string
	Int(name string) int
	Bool(name string) bool
}

// runAction loads a scenario, runs it and reports the results.
type runAction struct {
	out io.Writer
}

// Execute runs the scenario designated by the flags.
func (a runAction) Execute(flags flagSet) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	s, err := scenario.Load(flags.Path("scenario"))
	if err != nil {
		return err
	}

	opts := []engine.Option{engine.WithConfig(cfg)}

	if flags.Bool("versioned") {
		opts = append(opts, engine.WithStoreFactory(versioned.NewFactory()))
	}

	if flags.Bool("trace") {
		tracer, err := getTracer(serviceName)
		if err != nil {
			return xerrors.Errorf("failed to get tracer: %v", err)
		}

		defer tracing.CloseAll()

		opts = append(opts, engine.WithTracer(tracer))
	}

	e := engine.New(opts...)

	calls := &callCounter{}
	e.Watch(calls)

	fmt.Fprintf(a.out, "scenario '%s' on %s\n", s.Name, e.ChainID())

	results, err := scenario.NewRunner(e).Run(s)

	for _, res := range results {
		report(a.out, res)
	}

	if err != nil {
		return xerrors.Errorf("scenario failed: %v", err)
	}

	fmt.Fprintf(a.out, "done: %d steps, %d calls (%d failed), height %d\n",
		len(results), calls.total, calls.failed, e.Block().Height)

	path := flags.Path("export")
	if path != "" {
		err = export(path, e)
		if err != nil {
			return err
		}
	}

	path = flags.Path("metrics")
	if path != "" {
		err = writeMetrics(path)
		if err != nil {
			return err
		}
	}

	return nil
}

// loadConfig reads the configuration from the environment and applies the
// values of the flags that are set.
func loadConfig(flags flagSet) (engine.Config, error) {
	cfg, err := engine.LoadConfig()
	if err != nil {
		return cfg, xerrors.Errorf("failed to load config: %v", err)
	}

	if v := flags.String("chain-id"); v != "" {
		cfg.ChainID = v
	}

	if v := flags.String("denom"); v != "" {
		cfg.Denom = v
	}

	if v := flags.Duration("block-interval"); v != 0 {
		cfg.BlockInterval = v
	}

	if v := flags.Duration("unbonding-period"); v != 0 {
		cfg.UnbondingPeriod = v
	}

	if v := flags.Int("genesis-height"); v > 0 {
		cfg.GenesisHeight = uint64(v)
	}

	err = cfg.Validate()
	if err != nil {
		return cfg, xerrors.Errorf("invalid config: %v", err)
	}

	return cfg, nil
}

// callCounter counts the top-level calls of the engine.
type callCounter struct {
	total  int
	failed int
}

func (c *callCounter) NotifyCallback(event interface{}) {
	evt, ok := event.(engine.CallEvent)
	if !ok {
		return
	}

	c.total++
	if evt.Err != nil {
		c.failed++
	}
}

func report(out io.Writer, res scenario.Result) {
	label := res.Kind
	if res.Name != "" {
		label = fmt.Sprintf("%s '%s'", res.Kind, res.Name)
	}

	fmt.Fprintf(out, "[%d] %s %s", res.Index, label, res.Address)

	switch {
	case res.Err != nil:
		fmt.Fprintf(out, ": failed as expected: %v", res.Err)
	case len(res.Output) > 0:
		fmt.Fprintf(out, ": %s", res.Output)
	}

	fmt.Fprintln(out)

	for _, entry := range res.Trace {
		fmt.Fprintf(out, "    %s\n", describe(entry))
	}
}

func describe(entry engine.Entry) string {
	switch e := entry.(type) {
	case engine.ExecuteResult:
		return fmt.Sprintf("execute %s <- %s", e.Address, e.Sender)
	case engine.InstantiateResult:
		return fmt.Sprintf("instantiate %s <- %s (code %d)", e.Address, e.Sender, e.CodeID)
	case engine.ReplyResult:
		if e.Reply.Result.IsOk() {
			return fmt.Sprintf("reply %s #%d ok", e.Address, e.Reply.ID)
		}

		return fmt.Sprintf("reply %s #%d error: %s", e.Address, e.Reply.ID, e.Reply.Result.Err)
	case engine.TransferResult:
		return fmt.Sprintf("transfer %s -> %s %s", e.Sender, e.Receiver, e.Coins)
	case engine.StakingResult:
		return fmt.Sprintf("%s %s %s %s", e.Op, e.Delegator, e.Validator, e.Amount)
	default:
		return string(entry.Kind())
	}
}

// export copies every store of the engine to a bucket of the same name.
func export(path string, e *engine.Engine) error {
	db, err := kv.New(path)
	if err != nil {
		return err
	}

	defer db.Close()

	stores := e.Stores()

	names := make([]string, 0, len(stores))
	for name := range stores {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		err = kv.Export(db, []byte(name), stores[name])
		if err != nil {
			return err
		}
	}

	return nil
}

func writeMetrics(path string) error {
	registry := prometheus.NewRegistry()

	for _, c := range fadroma.PromCollectors {
		err := registry.Register(c)
		if err != nil {
			return xerrors.Errorf("failed to register: %v", err)
		}
	}

	families, err := registry.Gather()
	if err != nil {
		return xerrors.Errorf("failed to gather: %v", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return xerrors.Errorf("failed to create file: %v", err)
	}

	defer file.Close()

	for _, family := range families {
		_, err = expfmt.MetricFamilyToText(file, family)
		if err != nil {
			return xerrors.Errorf("failed to write metrics: %v", err)
		}
	}

	return nil
}
