// Package main implements the command line that runs scenario files against a
// new ensemble.
//
// Unix example:
//
//	# Run the scenario and keep the final state in a bbolt file.
//	fadroma run --scenario order.yml --export state.db
//
//	# Print the entries of a store of the export.
//	fadroma inspect --db state.db --store contract/A
//
//	# Send the spans to the Jaeger agent described by the environment.
//	JAEGER_AGENT_HOST=localhost fadroma run --scenario order.yml --trace
//
// The engine configuration is read from the FADROMA_* environment variables
// and the flags of the run command take precedence.
package main

import (
	"fmt"
	"io"
	"os"

	urfave "github.com/urfave/cli/v2"
)

func main() {
	err := run(os.Args, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	return newApp(out).Run(args)
}

func newApp(out io.Writer) *urfave.App {
	action := runAction{out: out}
	inspect := inspectAction{out: out}

	return &urfave.App{
		Name:      "fadroma",
		Usage:     "deterministic multi-contract ensemble",
		Writer:    out,
		ErrWriter: out,
		Commands: []*urfave.Command{
			{
				Name:  "run",
				Usage: "run a scenario file against a new ensemble",
				Flags: runFlags(),
				Action: func(ctx *urfave.Context) error {
					return action.Execute(ctx)
				},
			},
			{
				Name:  "inspect",
				Usage: "print a store of an exported state",
				Flags: []urfave.Flag{
					&urfave.PathFlag{
						Name:     "db",
						Usage:    "path to the bbolt file written by run --export",
						Required: true,
					},
					&urfave.StringFlag{
						Name:     "store",
						Usage:    "name of the store, like bank or contract/<address>",
						Required: true,
					},
				},
				Action: func(ctx *urfave.Context) error {
					return inspect.Execute(ctx)
				},
			},
		},
	}
}

func runFlags() []urfave.Flag {
	return []urfave.Flag{
		&urfave.PathFlag{
			Name:     "scenario",
			Usage:    "path to the YAML scenario",
			Required: true,
		},
		&urfave.StringFlag{
			Name:  "chain-id",
			Usage: "chain identifier given to the contracts",
		},
		&urfave.StringFlag{
			Name:  "denom",
			Usage: "bonded denomination",
		},
		&urfave.DurationFlag{
			Name:  "block-interval",
			Usage: "time between two blocks",
		},
		&urfave.DurationFlag{
			Name:  "unbonding-period",
			Usage: "time before an undelegation is returned",
		},
		&urfave.IntFlag{
			Name:  "genesis-height",
			Usage: "height of the first block",
		},
		&urfave.BoolFlag{
			Name:  "versioned",
			Usage: "keep the states in versioned databases instead of layered maps",
		},
		&urfave.BoolFlag{
			Name:  "trace",
			Usage: "report the spans of the calls to Jaeger",
		},
		&urfave.PathFlag{
			Name:  "export",
			Usage: "path of a bbolt file that receives the final stores",
		},
		&urfave.PathFlag{
			Name:  "metrics",
			Usage: "path of a file that receives the metrics in the text format",
		},
	}
}
