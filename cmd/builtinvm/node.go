package main

import (
	"strings"

	"github.com/fortiblox/stratus-builtins/internal/logging"
	"github.com/fortiblox/stratus-builtins/pkg/accounts"
	"github.com/fortiblox/stratus-builtins/pkg/config"
	"github.com/fortiblox/stratus-builtins/pkg/executor"
	"github.com/fortiblox/stratus-builtins/pkg/logstream"
	"github.com/fortiblox/stratus-builtins/pkg/receipts"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// loadConfig reads the configuration file, if any, and applies the global
// flags on top of it.
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := ctx.String(configFlag.Name); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if ctx.IsSet(dataDirFlag.Name) {
		cfg.Node.DataDir = ctx.String(dataDirFlag.Name)
	}
	if ctx.IsSet(logLevelFlag.Name) {
		cfg.Node.LogLevel = ctx.String(logLevelFlag.Name)
	}
	if ctx.IsSet(devFlag.Name) {
		cfg.Node.Development = ctx.Bool(devFlag.Name)
	}
	if ctx.IsSet(storeFlag.Name) {
		cfg.Store.Backend = strings.ToLower(ctx.String(storeFlag.Name))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// node bundles the components a command works with.
type node struct {
	config   *config.Config
	log      *zap.Logger
	db       accounts.DB
	receipts *receipts.Store
	hub      *logstream.Hub
	exec     *executor.Executor
}

func openNode(ctx *cli.Context) (*node, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Node.LogLevel, cfg.Node.Development)
	if err != nil {
		return nil, err
	}
	n := &node{config: cfg, log: logger, hub: logstream.NewHub(logger)}

	if n.db, err = openStore(cfg, logger); err != nil {
		n.Close()
		return nil, err
	}
	if cfg.Receipts.Enabled {
		if n.receipts, err = receipts.Open(cfg.ReceiptsStoreConfig()); err != nil {
			n.Close()
			return nil, errors.Wrap(err, "open receipts")
		}
	}

	execConfig := cfg.ExecutorSettings()
	execConfig.Logger = logger
	execConfig.Logs = n.hub
	if n.receipts != nil {
		execConfig.Receipts = n.receipts
	}
	n.exec = executor.New(n.db, nil, execConfig)

	logger.Debug("node opened",
		zap.String("datadir", cfg.Node.DataDir),
		zap.String("store", cfg.Store.Backend),
		zap.Uint64("sequence", n.db.GetSequence()),
		zap.Bool("receipts", n.receipts != nil))
	return n, nil
}

func openStore(cfg *config.Config, logger *zap.Logger) (accounts.DB, error) {
	var db accounts.DB
	switch cfg.Store.Backend {
	case config.BackendMemory:
		db = accounts.NewMemoryDB()
	default:
		bcfg := cfg.BadgerConfig()
		bcfg.Logger = logger.Named("badger")
		bdb, err := accounts.NewBadgerDB(bcfg)
		if err != nil {
			return nil, errors.Wrap(err, "open account store")
		}
		db = bdb
	}
	if cfg.Store.CacheSize == 0 {
		return db, nil
	}
	cached, err := accounts.NewCachedDB(db, cfg.Store.CacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}
	return cached, nil
}

// Close releases everything the node opened. The first error is returned.
func (n *node) Close() error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	n.hub.Close()
	if n.receipts != nil {
		keep(n.receipts.Close())
	}
	if n.db != nil {
		keep(n.db.Close())
	}
	n.log.Sync()
	return first
}
