// builtinvm executes builtin-function transactions against a local account
// store, records their receipts and streams their logs.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Version information
var (
	Version   = "0.1.0"
	GitCommit = "dev"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "TOML configuration file",
		EnvVars: []string{"BUILTINVM_CONFIG"},
	}
	dataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "data directory for the account store and receipts",
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "log level: debug, info, warn, error",
	}
	devFlag = &cli.BoolFlag{
		Name:  "dev",
		Usage: "human readable development logging",
	}
	storeFlag = &cli.StringFlag{
		Name:  "store",
		Usage: "account store backend: badger or memory",
	}
)

func newApp() *cli.App {
	return &cli.App{
		Name:    "builtinvm",
		Usage:   "builtin function execution engine",
		Version: fmt.Sprintf("%s (%s)", Version, GitCommit),
		Flags: []cli.Flag{
			configFlag,
			dataDirFlag,
			logLevelFlag,
			devFlag,
			storeFlag,
		},
		Commands: []*cli.Command{
			&Exec,
			&Account,
			&Receipt,
			&Logs,
			&Snapshot,
			&Serve,
			&Scenario,
			&DumpConfig,
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
