package scenario

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/fortiblox/stratus-builtins/pkg/accounts"
	"github.com/fortiblox/stratus-builtins/pkg/executor"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// FileSuffix marks scenario files in a directory.
const FileSuffix = ".scen.json"

// Report summarizes a scenario run.
type Report struct {
	Name         string
	Steps        int
	Transactions int
	GasUsed      uint64
}

// Runner executes scenarios. Each run starts from an empty in-memory store.
type Runner struct {
	config executor.Config
	log    *zap.Logger
}

// NewRunner creates a runner whose executors use config. Receipts and log
// sinks set in config observe every run.
func NewRunner(config executor.Config, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Logger == nil {
		config.Logger = logger
	}
	return &Runner{config: config, log: logger}
}

// Run executes s and stops at the first failing step.
func (r *Runner) Run(s *Scenario) (*Report, error) {
	db := accounts.NewMemoryDB()
	defer db.Close()
	exec := executor.New(db, nil, r.config)
	report := &Report{Name: s.Name}

	for i, step := range s.Steps {
		id := step.ID
		if id == "" {
			id = step.Step + " #" + strconv.Itoa(i)
		}
		if err := r.runStep(db, exec, &step, report); err != nil {
			return report, errors.Wrapf(err, "%s: step %s", s.Name, id)
		}
		report.Steps++
	}
	r.log.Info("scenario passed",
		zap.String("name", s.Name),
		zap.Int("steps", report.Steps),
		zap.Int("transactions", report.Transactions))
	return report, nil
}

func (r *Runner) runStep(db accounts.DB, exec *executor.Executor, step *Step, report *Report) error {
	switch step.Step {
	case StepSetState:
		for _, addr := range sortedKeys(step.Accounts) {
			spec := step.Accounts[addr]
			acc, err := spec.Build(addr)
			if err != nil {
				return errors.Wrapf(err, "account %s", addr)
			}
			if err := db.SetAccount(acc.Address, acc); err != nil {
				return err
			}
		}
		return db.Commit()

	case StepTx:
		in, err := step.Tx.Input()
		if err != nil {
			return err
		}
		result, err := exec.Execute(in)
		if err != nil {
			return err
		}
		report.Transactions++
		report.GasUsed += result.GasUsed
		r.log.Debug("scenario tx",
			zap.String("function", in.Function),
			zap.Stringer("status", result.Status),
			zap.String("message", result.Message))
		if step.Expect == nil {
			return nil
		}
		return step.Expect.Check(result)

	case StepCheckState:
		for _, addr := range sortedKeys(step.Accounts) {
			spec := step.Accounts[addr]
			address, err := ParseAddress(addr)
			if err != nil {
				return err
			}
			acc, err := db.GetAccount(address)
			if errors.Is(err, accounts.ErrAccountNotFound) {
				acc = accounts.NewAccount(address)
			} else if err != nil {
				return err
			}
			if err := spec.Check(acc); err != nil {
				return errors.Wrapf(err, "account %s", addr)
			}
		}
		return nil
	}
	return errors.Errorf("unknown step %q", step.Step)
}

// RunFile loads and runs the scenario at path.
func (r *Runner) RunFile(path string) (*Report, error) {
	s, err := Load(path)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), FileSuffix)
	}
	return r.Run(s)
}

// RunPath runs a scenario file, or every scenario file below a directory.
func (r *Runner) RunPath(path string) ([]*Report, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		report, err := r.RunFile(path)
		if err != nil {
			return nil, err
		}
		return []*Report{report}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(p, FileSuffix) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	reports := make([]*Report, 0, len(files))
	for _, f := range files {
		report, err := r.RunFile(f)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func sortedKeys(m map[string]AccountSpec) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
