// Package config loads the node configuration from TOML files.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"unicode"

	"github.com/fortiblox/stratus-builtins/pkg/accounts"
	"github.com/fortiblox/stratus-builtins/pkg/executor"
	"github.com/fortiblox/stratus-builtins/pkg/logstream"
	"github.com/fortiblox/stratus-builtins/pkg/receipts"
	"github.com/fortiblox/stratus-builtins/pkg/vm"
	"github.com/naoina/toml"
	"github.com/pkg/errors"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// tomlSettings keeps field names as written in Go and rejects unknown keys.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		link := ""
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see %s.%s", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// Config is the complete node configuration.
type Config struct {
	Node      NodeConfig
	Store     StoreConfig
	Executor  ExecutorConfig
	Receipts  ReceiptsConfig
	LogStream LogStreamConfig
}

// NodeConfig holds process-wide settings.
type NodeConfig struct {
	// DataDir holds every persistent file. Relative store paths resolve
	// against it.
	DataDir string

	LogLevel    string
	Development bool
}

// StoreConfig selects and tunes the account store.
type StoreConfig struct {
	// Backend is "memory" or "badger".
	Backend string

	// Path of the badger directory.
	Path string

	// CacheSize is the number of accounts kept in the LRU read cache.
	// Zero disables the cache.
	CacheSize int

	SyncWrites bool
}

// ExecutorConfig mirrors executor.Config.
type ExecutorConfig struct {
	MaxCallDepth int
	EnforceRoles bool

	// GasPerDataByte and GasCosts override the default gas schedule.
	GasPerDataByte uint64
	GasCosts       map[string]uint64

	// DisableGas turns gas accounting off.
	DisableGas bool
}

// ReceiptsConfig configures the receipt store.
type ReceiptsConfig struct {
	Enabled   bool
	Path      string
	IndexLogs bool
	NoSync    bool
}

// LogStreamConfig configures the log stream gRPC server.
type LogStreamConfig struct {
	Enabled        bool
	ListenAddr     string
	MaxMessageSize int
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			DataDir:  "data",
			LogLevel: "info",
		},
		Store: StoreConfig{
			Backend:   BackendBadger,
			Path:      "accounts",
			CacheSize: 4096,
		},
		Executor: ExecutorConfig{
			MaxCallDepth:   executor.DefaultMaxCallDepth,
			GasPerDataByte: vm.GasPerDataByte,
		},
		Receipts: ReceiptsConfig{
			Enabled:   true,
			Path:      "receipts.db",
			IndexLogs: true,
		},
		LogStream: LogStreamConfig{
			ListenAddr:     "127.0.0.1:9190",
			MaxMessageSize: logstream.DefaultServerConfig().MaxMessageSize,
		},
	}
}

// Load reads the TOML file at path on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer f.Close()

	if err := tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg); err != nil {
		// Add file name to errors that have a line number.
		if _, ok := err.(*toml.LineError); ok {
			err = errors.New(path + ", " + err.Error())
		}
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Marshal encodes the configuration as TOML.
func (c *Config) Marshal() ([]byte, error) {
	return tomlSettings.Marshal(c)
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "create directory")
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the configuration for inconsistent values.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Store.Backend) {
	case BackendMemory, BackendBadger:
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown store backend %q", c.Store.Backend)
	}
	if c.Store.CacheSize < 0 {
		return errors.Wrap(ErrInvalidConfig, "negative store cache size")
	}
	if c.Executor.MaxCallDepth <= 0 {
		return errors.Wrap(ErrInvalidConfig, "max call depth must be positive")
	}
	if c.LogStream.Enabled && c.LogStream.ListenAddr == "" {
		return errors.Wrap(ErrInvalidConfig, "log stream enabled without listen address")
	}
	return nil
}

// ResolvePath returns p, or p joined to the data directory when relative.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Node.DataDir, p)
}

// GasSchedule builds the gas schedule, or nil when gas is disabled.
func (c *Config) GasSchedule() *vm.GasSchedule {
	if c.Executor.DisableGas {
		return nil
	}
	schedule := vm.DefaultGasSchedule()
	schedule.PerDataByte = c.Executor.GasPerDataByte
	for name, cost := range c.Executor.GasCosts {
		schedule.Costs[name] = cost
	}
	return schedule
}

// BadgerConfig returns the account store configuration.
func (c *Config) BadgerConfig() accounts.BadgerDBConfig {
	cfg := accounts.DefaultBadgerDBConfig(c.ResolvePath(c.Store.Path))
	cfg.SyncWrites = c.Store.SyncWrites
	return cfg
}

// ReceiptsStoreConfig returns the receipt store configuration.
func (c *Config) ReceiptsStoreConfig() receipts.Config {
	cfg := receipts.DefaultConfig(c.ResolvePath(c.Receipts.Path))
	cfg.IndexLogs = c.Receipts.IndexLogs
	cfg.NoSync = c.Receipts.NoSync
	return cfg
}

// ExecutorSettings returns the executor configuration without collaborators.
func (c *Config) ExecutorSettings() executor.Config {
	cfg := executor.DefaultConfig()
	cfg.MaxCallDepth = c.Executor.MaxCallDepth
	cfg.EnforceRoles = c.Executor.EnforceRoles
	cfg.Gas = c.GasSchedule()
	return cfg
}

// LogStreamServerConfig returns the log stream server configuration.
func (c *Config) LogStreamServerConfig() logstream.ServerConfig {
	cfg := logstream.DefaultServerConfig()
	if c.LogStream.MaxMessageSize > 0 {
		cfg.MaxMessageSize = c.LogStream.MaxMessageSize
	}
	return cfg
}
