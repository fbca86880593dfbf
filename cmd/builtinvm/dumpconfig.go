package main

import (
	"github.com/urfave/cli/v2"
)

var DumpConfig = cli.Command{
	Action: dumpConfig,
	Name:   "dumpconfig",
	Usage:  "prints the effective configuration as TOML",
}

func dumpConfig(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	out, err := cfg.Marshal()
	if err != nil {
		return err
	}
	_, err = ctx.App.Writer.Write(out)
	return err
}
