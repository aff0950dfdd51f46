package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"machinerun.io/sanlvm/logging"
	"machinerun.io/sanlvm/mockrun"
	"machinerun.io/sanlvm/run"
)

var version string

func printTextTable(data [][]string) {
	if len(data) == 0 {
		return
	}

	var lengths = make([]int, len(data[0]))

	for _, line := range data {
		for i, field := range line {
			if len(field) > lengths[i] {
				lengths[i] = len(field)
			}
		}
	}

	fmts := make([]string, len(lengths))

	for i, l := range lengths {
		fmts[i] = fmt.Sprintf("%%-%ds", l)
	}

	pfmt := strings.Join(fmts, " | ") + " |\n"

	for _, line := range data {
		s := make([]interface{}, len(line))
		for i, v := range line {
			s[i] = v
		}

		fmt.Printf(pfmt, s...)
	}
}

// getRunner builds the command runner the subcommands share: a scripted
// mock, a configured local/remote runner, or plain local execution.
func getRunner(c *cli.Context) (run.Runner, error) {
	if layout := c.String("mock"); layout != "" {
		return mockrun.Load(layout), nil
	}

	cfg := run.Config{Local: true}

	if path := c.String("config"); path != "" {
		raw, err := os.ReadFile(path) //nolint:gosec
		if err != nil {
			return nil, err
		}

		cfg = run.Config{}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, err
		}
	}

	return run.New(cfg)
}

func main() {
	app := &cli.App{
		Name:    "sanlvm-demo",
		Version: version,
		Usage:   "Play around or test sanlvm",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "yaml execution config (local/remote, ssh endpoint)",
			},
			&cli.StringFlag{
				Name:  "mock",
				Usage: "json layout file; run against a mock instead of real lvm",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "log at debug level",
			},
		},
		Before: func(c *cli.Context) error {
			level := logging.InfoLevel
			if c.Bool("debug") {
				level = logging.DebugLevel
			}

			logging.Init(logging.Config{Level: level})

			return nil
		},
		Commands: []*cli.Command{
			&vgsCommand,
			&lvsCommand,
			&pvsCommand,
			&createCommand,
			&snapshotCommand,
			&revertCommand,
			&deleteCommand,
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}
