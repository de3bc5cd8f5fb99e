package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/iota-uz/sar/modules/registry/infrastructure/persistence"
	"github.com/iota-uz/sar/modules/registry/services"
	"github.com/iota-uz/sar/pkg/configuration"
	"github.com/iota-uz/sar/pkg/eventbus"
	"github.com/iota-uz/sar/pkg/logging"
)

// rootOptions holds the persistent flags; each one overrides its SAR_* variable.
type rootOptions struct {
	envFiles   []string
	registry   string
	backend    string
	configPath string
	backupDir  string
	noBackup   bool
	logLevel   string

	conf   *configuration.Configuration
	report *persistence.ReportStore
}

func (o *rootOptions) bind(f *pflag.FlagSet) {
	f.StringSliceVar(&o.envFiles, "env-file", configuration.DefaultEnvFiles, "env files to load before reading the environment")
	f.StringVar(&o.registry, "registry", "", "registry workbook (.xlsx) or directory of CSV sheets")
	f.StringVar(&o.backend, "backend", "", "storage backend: xlsx|csv (detected from --registry when empty)")
	f.StringVar(&o.configPath, "config", "", "YAML file supplying LOOKUPS and RULES")
	f.StringVar(&o.backupDir, "backup-dir", "", "directory for pre-write backups")
	f.BoolVar(&o.noBackup, "no-backup", false, "skip the backup taken before every write")
	f.StringVar(&o.logLevel, "log-level", "", "silent|error|warn|info|debug")
}

func (o *rootOptions) load() error {
	conf, err := configuration.Load(o.envFiles)
	if err != nil {
		return withCode(exitUsage, err)
	}
	o.conf = conf

	reg := &conf.Registry
	if o.registry != "" {
		reg.Path = o.registry
		if o.backend == "" {
			reg.Backend = detectBackend(o.registry)
		}
	}
	if o.backend != "" {
		backend := strings.ToLower(strings.TrimSpace(o.backend))
		if backend != configuration.BackendXLSX && backend != configuration.BackendCSV {
			return withCode(exitUsage, fmt.Errorf("invalid --backend %q (expected xlsx|csv)", o.backend))
		}
		reg.Backend = backend
	}
	if o.configPath != "" {
		reg.ConfigPath = o.configPath
	}
	if o.backupDir != "" {
		reg.BackupDir = o.backupDir
	}
	if o.noBackup {
		reg.BackupEnabled = false
	}
	if o.logLevel != "" {
		conf.Logger().SetLevel(logging.ParseLevel(o.logLevel))
	}
	return nil
}

func (o *rootOptions) close() {
	if o.report != nil {
		_ = o.report.Close()
		o.report = nil
	}
	if o.conf != nil {
		o.conf.Unload()
	}
}

func detectBackend(path string) string {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return configuration.BackendCSV
	}
	return configuration.BackendXLSX
}

// openRegistry wires the configured store, config source and report sink into a service.
func (o *rootOptions) openRegistry(ctx context.Context) (*services.RegistryService, error) {
	reg := o.conf.Registry
	logger := o.conf.Logger()

	var storeOpts []persistence.StoreOption
	if reg.BackupDir != "" {
		storeOpts = append(storeOpts, persistence.WithBackupDir(reg.BackupDir))
	}
	svcOpts := []services.Option{
		services.WithLogger(logrus.NewEntry(logger)),
		services.WithBackups(reg.BackupEnabled),
	}

	var store services.Store
	switch reg.Backend {
	case configuration.BackendCSV:
		s := persistence.NewCSVStore(reg.Path, storeOpts...)
		store = s
		svcOpts = append(svcOpts, services.WithWriter(s))
	default:
		s := persistence.NewXLSXStore(reg.Path, storeOpts...)
		store = s
		svcOpts = append(svcOpts, services.WithWriter(s))
	}

	bus := eventbus.New(logger)
	if err := bus.Subscribe(func(e *services.RecordChanged) {
		logger.WithFields(logrus.Fields{
			"op":       e.Op,
			"level":    e.Level,
			"human_id": e.HumanID,
			"run_id":   e.Run.ID.String(),
			"errors":   e.Run.Summary.Errors,
		}).Info("record changed")
	}); err != nil {
		return nil, err
	}
	svcOpts = append(svcOpts, services.WithEventBus(bus))

	if reg.ConfigPath != "" {
		svcOpts = append(svcOpts, services.WithConfigSource(persistence.NewYAMLConfigStore(reg.ConfigPath)))
	}

	if o.conf.Report.Enabled() {
		report, err := o.openReport(ctx)
		if err != nil {
			return nil, err
		}
		svcOpts = append(svcOpts, services.WithRunSink(report))
	}

	logger.WithFields(logrus.Fields{
		"registry": reg.Path,
		"backend":  reg.Backend,
		"backups":  reg.BackupEnabled,
	}).Debug("registry opened")
	return services.NewRegistryService(store, svcOpts...), nil
}

func (o *rootOptions) openReport(ctx context.Context) (*persistence.ReportStore, error) {
	if o.report != nil {
		return o.report, nil
	}
	if !o.conf.Report.Enabled() {
		return nil, withCode(exitUsage, errors.New("SAR_REPORT_DSN is not set"))
	}
	report, err := persistence.OpenReportStore(ctx, o.conf.Report.Driver, o.conf.Report.DSN)
	if err != nil {
		return nil, withCode(exitStorage, err)
	}
	o.report = report
	return report, nil
}

// registryError maps a service failure onto an exit code.
