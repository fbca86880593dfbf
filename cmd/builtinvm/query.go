package main

import (
	"fmt"
	"strconv"

	"github.com/fortiblox/stratus-builtins/internal/types"
	"github.com/fortiblox/stratus-builtins/pkg/accounts"
	"github.com/fortiblox/stratus-builtins/pkg/receipts"
	"github.com/fortiblox/stratus-builtins/pkg/scenario"
	"github.com/fortiblox/stratus-builtins/pkg/vm"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

var Account = cli.Command{
	Action:    showAccount,
	Name:      "account",
	Usage:     "prints an account and its token holdings",
	ArgsUsage: "<address>",
	Flags:     []cli.Flag{jsonFlag},
}

var Receipt = cli.Command{
	Action:    showReceipt,
	Name:      "receipt",
	Usage:     "prints the receipt of a transaction",
	ArgsUsage: "<tx hash | sequence>",
	Flags:     []cli.Flag{jsonFlag},
}

var Logs = cli.Command{
	Action:    showLogs,
	Name:      "logs",
	Usage:     "lists the logs emitted by an address, newest first",
	ArgsUsage: "<address>",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "limit", Usage: "maximum number of logs", Value: 50},
		&cli.StringFlag{Name: "endpoint", Usage: "only logs of this endpoint"},
		&cli.Uint64Flag{Name: "min-sequence", Usage: "only logs at or after this sequence"},
		jsonFlag,
	},
}

func showAccount(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return fmt.Errorf("missing address")
	}
	addr, err := scenario.ParseAddress(ctx.Args().Get(0))
	if err != nil {
		return err
	}

	n, err := openNode(ctx)
	if err != nil {
		return err
	}
	defer n.Close()

	acc, err := n.db.GetAccount(addr)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return fmt.Errorf("account %s not found", addr)
	}
	if err != nil {
		return err
	}
	if ctx.Bool(jsonFlag.Name) {
		return writeJSON(ctx.App.Writer, acc)
	}
	writeAccount(ctx.App.Writer, acc)
	return nil
}

func openReceipts(n *node) (*receipts.Store, error) {
	if n.receipts == nil {
		return nil, fmt.Errorf("receipts are disabled")
	}
	return n.receipts, nil
}

func showReceipt(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return fmt.Errorf("missing tx hash or sequence")
	}
	arg := ctx.Args().Get(0)

	n, err := openNode(ctx)
	if err != nil {
		return err
	}
	defer n.Close()
	store, err := openReceipts(n)
	if err != nil {
		return err
	}

	var r *receipts.Receipt
	if seq, perr := strconv.ParseUint(arg, 10, 64); perr == nil {
		r, err = store.GetReceipt(seq)
	} else {
		hash, herr := types.HashFromHex(arg)
		if herr != nil {
			if hash, herr = types.HashFromBase58(arg); herr != nil {
				return fmt.Errorf("invalid tx hash %q", arg)
			}
		}
		r, err = store.GetReceiptByHash(hash)
	}
	if err != nil {
		return err
	}

	view := newReceiptView(r)
	if ctx.Bool(jsonFlag.Name) {
		return writeJSON(ctx.App.Writer, view)
	}
	writeResult(ctx.App.Writer, view)
	return nil
}

func showLogs(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return fmt.Errorf("missing address")
	}
	addr, err := scenario.ParseAddress(ctx.Args().Get(0))
	if err != nil {
		return err
	}

	n, err := openNode(ctx)
	if err != nil {
		return err
	}
	defer n.Close()
	store, err := openReceipts(n)
	if err != nil {
		return err
	}

	entries, err := store.GetLogsForAddress(addr, &receipts.LogQueryOptions{
		Limit:       ctx.Int("limit"),
		Endpoint:    ctx.String("endpoint"),
		MinSequence: ctx.Uint64("min-sequence"),
	})
	if err != nil {
		return err
	}

	views := make([]logView, 0, len(entries))
	for _, e := range entries {
		v := newLogViews([]vm.TxLog{e.Log})[0]
		v.Sequence = e.Sequence
		views = append(views, v)
	}
	if ctx.Bool(jsonFlag.Name) {
		return writeJSON(ctx.App.Writer, views)
	}
	writeLogs(ctx.App.Writer, views)
	return nil
}
