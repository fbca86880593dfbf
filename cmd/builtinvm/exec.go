package main

import (
	"fmt"

	"github.com/fortiblox/stratus-builtins/pkg/scenario"
	"github.com/urfave/cli/v2"
)

var jsonFlag = &cli.BoolFlag{
	Name:  "json",
	Usage: "print JSON instead of tables",
}

var Exec = cli.Command{
	Action:    execTx,
	Name:      "exec",
	Usage:     "executes a single transaction and commits it",
	ArgsUsage: "[<arg>...]",
	Description: `Arguments use the scenario notation: "str:TOKEN-abcdef", "5",
"u64:5", "biguint:1000", "0x0a0b", "address:alice". Addresses may also be
given in base58.`,
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "from", Usage: "sender address", Required: true},
		&cli.StringFlag{Name: "to", Usage: "receiver address, defaults to the sender"},
		&cli.StringFlag{Name: "function", Aliases: []string{"f"}, Usage: "function name"},
		&cli.StringFlag{Name: "value", Usage: "call value in base currency", Value: "0"},
		&cli.StringFlag{Name: "gas-limit", Usage: "gas limit, 0 for unmetered", Value: "0"},
		jsonFlag,
	},
}

func execTx(ctx *cli.Context) error {
	to := ctx.String("to")
	if to == "" {
		to = ctx.String("from")
	}
	spec := scenario.TxSpec{
		From:      ctx.String("from"),
		To:        to,
		Function:  ctx.String("function"),
		Arguments: ctx.Args().Slice(),
		Value:     ctx.String("value"),
		GasLimit:  ctx.String("gas-limit"),
	}
	in, err := spec.Input()
	if err != nil {
		return err
	}

	n, err := openNode(ctx)
	if err != nil {
		return err
	}
	defer n.Close()

	result, err := n.exec.Execute(in)
	if err != nil {
		return err
	}
	view := newResultView(result)
	view.Sequence = n.db.GetSequence()
	view.TxHash = in.Hash().Hex()

	if ctx.Bool(jsonFlag.Name) {
		if err := writeJSON(ctx.App.Writer, view); err != nil {
			return err
		}
	} else {
		writeResult(ctx.App.Writer, view)
	}
	if !result.Succeeded() {
		return fmt.Errorf("transaction failed: %s", result.Status)
	}
	return nil
}
