package app

import (
	"context"
	"fmt"

	analyticssvc "github.com/pulsehr/analytics_layer/internal/app/services/analytics"
	backupsvc "github.com/pulsehr/analytics_layer/internal/app/services/backup"
	"github.com/pulsehr/analytics_layer/internal/app/services/directory"
	exportsvc "github.com/pulsehr/analytics_layer/internal/app/services/export"
	"github.com/pulsehr/analytics_layer/internal/app/storage"
	"github.com/pulsehr/analytics_layer/internal/app/storage/memory"
	"github.com/pulsehr/analytics_layer/internal/app/system"
	"github.com/pulsehr/analytics_layer/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Employees     storage.EmployeeStore
	Contributions storage.ContributionStore
	Engagement    storage.EngagementStore
}

// Options carries filesystem paths and scheduling knobs for the backup and
// export engines. Zero values get sensible defaults.
type Options struct {
	BackupDir      string
	DataDir        string
	ExportDir      string
	RetentionDays  int
	BackupSchedule string
}

func (o *Options) applyDefaults() {
	if o.BackupDir == "" {
		o.BackupDir = "backups"
	}
	if o.DataDir == "" {
		o.DataDir = "data"
	}
	if o.ExportDir == "" {
		o.ExportDir = o.DataDir
	}
	if o.RetentionDays == 0 {
		o.RetentionDays = 7
	}
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	// DataDir is the directory swept by full-snapshot operations.
	DataDir string

	Directory *directory.Service
	Analytics *analyticssvc.Service
	Backups   *backupsvc.Service
	Exports   *exportsvc.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	opts.applyDefaults()

	mem := memory.New()
	if stores.Employees == nil {
		stores.Employees = mem
	}
	if stores.Contributions == nil {
		stores.Contributions = mem
	}
	if stores.Engagement == nil {
		stores.Engagement = mem
	}

	manager := system.NewManager()

	dirService := directory.New(stores.Employees, stores.Contributions, stores.Engagement, log)
	analyticsService := analyticssvc.New(stores.Employees, stores.Contributions, stores.Engagement, log)

	backupService, err := backupsvc.New(opts.BackupDir, log)
	if err != nil {
		return nil, fmt.Errorf("init backup service: %w", err)
	}

	exportService, err := exportsvc.New(opts.ExportDir, analyticsService, nil, log)
	if err != nil {
		return nil, fmt.Errorf("init export service: %w", err)
	}

	for _, name := range []string{"directory", "analytics"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	scheduler := backupsvc.NewScheduler(backupService, opts.BackupSchedule, opts.DataDir, opts.RetentionDays, log)
	if err := manager.Register(scheduler); err != nil {
		return nil, fmt.Errorf("register %s: %w", scheduler.Name(), err)
	}

	return &Application{
		manager:   manager,
		log:       log,
		DataDir:   opts.DataDir,
		Directory: dirService,
		Analytics: analyticsService,
		Backups:   backupService,
		Exports:   exportService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
