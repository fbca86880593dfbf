package main

import (
	"fmt"
	"path/filepath"

	"github.com/fortiblox/stratus-builtins/pkg/accounts"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var Snapshot = cli.Command{
	Name:  "snapshot",
	Usage: "exports and imports account store snapshots",
	Subcommands: []*cli.Command{
		{
			Action:    exportSnapshot,
			Name:      "export",
			Usage:     "writes every account to a snapshot file",
			ArgsUsage: "[<file>]",
		},
		{
			Action:    importSnapshot,
			Name:      "import",
			Usage:     "replaces the account store with a snapshot",
			ArgsUsage: "<file>",
		},
		{
			Action:    snapshotInfo,
			Name:      "info",
			Usage:     "prints the header of a snapshot file",
			ArgsUsage: "<file>",
		},
	},
}

func exportSnapshot(ctx *cli.Context) error {
	n, err := openNode(ctx)
	if err != nil {
		return err
	}
	defer n.Close()

	path := ctx.Args().Get(0)
	if path == "" {
		root, err := accounts.ComputeStateRoot(n.db)
		if err != nil {
			return err
		}
		path = filepath.Join(n.config.Node.DataDir, accounts.SnapshotFilename(n.db.GetSequence(), root))
	}

	header, err := accounts.CreateSnapshot(n.db, path)
	if err != nil {
		return err
	}
	n.log.Info("snapshot written",
		zap.String("path", path),
		zap.Uint64("sequence", header.Sequence),
		zap.Uint64("accounts", header.AccountsCount),
		zap.String("root", header.StateRoot.Hex()))
	fmt.Fprintln(ctx.App.Writer, path)
	return nil
}

func importSnapshot(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return fmt.Errorf("missing snapshot file")
	}
	n, err := openNode(ctx)
	if err != nil {
		return err
	}
	defer n.Close()

	header, err := accounts.LoadSnapshot(n.db, ctx.Args().Get(0))
	if err != nil {
		return err
	}
	n.log.Info("snapshot loaded",
		zap.Uint64("sequence", header.Sequence),
		zap.Uint64("accounts", header.AccountsCount),
		zap.String("root", header.StateRoot.Hex()))
	return nil
}

func snapshotInfo(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return fmt.Errorf("missing snapshot file")
	}
	header, err := accounts.ReadSnapshotHeader(ctx.Args().Get(0))
	if err != nil {
		return err
	}
	return writeJSON(ctx.App.Writer, header)
}
