// Package app runs the polling loop that visits every edge host once per cycle.
package app

import (
	"context"
	"fmt"
	"time"

	"edgelogd/internal/backup"
	"edgelogd/internal/config"
	"edgelogd/internal/journal"
	"edgelogd/internal/metrics"
	"edgelogd/internal/remote"
	"edgelogd/internal/routing"
	"edgelogd/internal/storage"
	"edgelogd/internal/transfer"

	"go.uber.org/zap"
)

// Poller represents the main collection application
type Poller struct {
	cfg     *config.Config
	logger  *zap.Logger
	runner  *HostRunner
	journal journal.Store
	metrics *metrics.Collector
	tick    time.Duration
}

// New creates a new poller instance
func New(cfg *config.Config, logger *zap.Logger) (*Poller, error) {
	dialer, err := remote.NewSSHDialer(remote.Config{
		Username:       cfg.Servers.Username,
		Password:       cfg.Servers.Password,
		PrivateKeyFile: cfg.Servers.PrivateKeyFile,
		KnownHostsFile: cfg.Servers.KnownHostsFile,
		Port:           cfg.Servers.Port,
		ConnectTimeout: cfg.Servers.ConnectTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ssh dialer: %w", err)
	}

	var store journal.Store = journal.Nop{}
	if cfg.Journal != "" {
		s, err := journal.NewSQLiteStore(cfg.Journal)
		if err != nil {
			return nil, fmt.Errorf("failed to create journal store: %w", err)
		}
		store = s
	}

	deps := transfer.Deps{
		Merger:  backup.NewMerger(cfg.FinalArchiveRoot, cfg.BackupTreeName),
		Journal: store,
		Metrics: metrics.New(),
		Logger:  logger,
	}

	if cfg.Offsite.Enabled() {
		mirror, err := storage.NewMinIOClient(storage.Config{
			Endpoint:  cfg.Offsite.Endpoint,
			AccessKey: cfg.Offsite.AccessKey,
			SecretKey: cfg.Offsite.SecretKey,
			Secure:    cfg.Offsite.Secure,
			Bucket:    cfg.Offsite.Bucket,
			Prefix:    cfg.Offsite.Prefix,
		})
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to create offsite client: %w", err)
		}
		deps.Mirror = mirror
	}

	return newPoller(cfg, dialer, deps), nil
}

func newPoller(cfg *config.Config, dialer remote.Dialer, deps transfer.Deps) *Poller {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Journal == nil {
		deps.Journal = journal.Nop{}
	}

	router := routing.NewRouter(cfg.Mapping(), cfg.WorkFolders)
	tcfg := transfer.Config{
		Layout: transfer.Layout{
			StagingRoot: cfg.LocalStagingRoot,
			FinalRoot:   cfg.FinalArchiveRoot,
			PerHost:     cfg.PerHostDirs,
		},
		ExtraTries:      cfg.Retries,
		CommandTimeout:  cfg.CommandTimeout,
		TransferTimeout: cfg.TransferTimeout,
	}

	return &Poller{
		cfg:     cfg,
		logger:  deps.Logger,
		runner:  NewHostRunner(dialer, router, cfg.RemoteLogDir, tcfg, deps),
		journal: deps.Journal,
		metrics: deps.Metrics,
		tick:    time.Second,
	}
}

// Run polls every host until ctx is cancelled, or once when configured so
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("Starting collection",
		zap.Strings("hosts", p.cfg.Servers.Hosts),
		zap.String("remote_dir", p.cfg.RemoteLogDir),
		zap.Strings("work_folders", p.cfg.WorkFolders),
		zap.Int("interval_seconds", p.cfg.IntervalSeconds),
		zap.Bool("once", p.cfg.Once),
	)

	if p.cfg.MetricsAddr != "" {
		go func() {
			if err := p.metrics.StartServer(ctx, p.cfg.MetricsAddr); err != nil {
				p.logger.Error("Failed to start metrics server", zap.Error(err))
			}
		}()
	}

	for {
		p.RunCycle(ctx)

		if p.cfg.Once {
			p.logger.Info("Single cycle completed")
			return nil
		}
		if !p.wait(ctx) {
			p.logger.Info("Collection stopped")
			return nil
		}
	}
}

// RunCycle visits every configured host once, in configured order
func (p *Poller) RunCycle(ctx context.Context) []BatchReport {
	tracker := p.metrics.GetProgressTracker()
	tracker.StartCycle()
	start := time.Now()

	var reports []BatchReport
	for _, host := range p.cfg.Servers.Hosts {
		if ctx.Err() != nil {
			p.logger.Info("Shutdown requested, skipping remaining hosts")
			break
		}
		reports = append(reports, p.runner.Run(ctx, host))
	}

	elapsed := time.Since(start)
	p.metrics.ObserveCycle(elapsed)
	status := tracker.GetStatus()
	p.logger.Info("Cycle completed",
		zap.String("summary", status.Summary()),
		zap.Duration("elapsed", elapsed),
	)

	return reports
}

// wait sleeps for the configured interval in ticks, returning false as soon
// as ctx is done
func (p *Poller) wait(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	for remaining := p.cfg.Interval(); remaining > 0; remaining -= time.Second {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
	return ctx.Err() == nil
}

// Close cleans up resources
func (p *Poller) Close() error {
	if p.journal != nil {
		return p.journal.Close()
	}
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
