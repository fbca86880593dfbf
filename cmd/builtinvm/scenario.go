package main

import (
	"fmt"
	"strconv"

	"github.com/fortiblox/stratus-builtins/internal/logging"
	"github.com/fortiblox/stratus-builtins/pkg/scenario"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
)

var Scenario = cli.Command{
	Action:    runScenarios,
	Name:      "scenario",
	Usage:     "runs scenario files against a fresh in-memory store",
	ArgsUsage: "<file | directory>...",
}

func runScenarios(ctx *cli.Context) error {
	if ctx.Args().Len() == 0 {
		return fmt.Errorf("missing scenario path")
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Node.LogLevel, cfg.Node.Development)
	if err != nil {
		return err
	}
	defer logger.Sync()

	runner := scenario.NewRunner(cfg.ExecutorSettings(), logger)
	table := tablewriter.NewWriter(ctx.App.Writer)
	table.SetHeader([]string{"Scenario", "Steps", "Transactions", "Gas"})

	var failed error
	for _, path := range ctx.Args().Slice() {
		reports, err := runner.RunPath(path)
		for _, r := range reports {
			table.Append([]string{
				r.Name,
				strconv.Itoa(r.Steps),
				strconv.Itoa(r.Transactions),
				strconv.FormatUint(r.GasUsed, 10),
			})
		}
		if err != nil {
			failed = err
			break
		}
	}
	table.Render()
	return failed
}
