package app

import (
	"context"
	"errors"

	"edgelogd/internal/localfs"
	"edgelogd/internal/metrics"
	"edgelogd/internal/remote"
	"edgelogd/internal/routing"
	"edgelogd/internal/transfer"

	"go.uber.org/zap"
)

// BatchReport summarizes one host visit
type BatchReport struct {
	Host        string
	Listed      int
	Skipped     int
	Results     []transfer.Result
	Interrupted bool
	Err         error
}

// HostRunner lists one host's log directory and feeds every accepted file to
// a transfer machine, one file at a time in listing order
type HostRunner struct {
	dialer    remote.Dialer
	router    *routing.Router
	remoteDir string
	cfg       transfer.Config
	deps      transfer.Deps
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// NewHostRunner creates a host runner
func NewHostRunner(dialer remote.Dialer, router *routing.Router, remoteDir string, cfg transfer.Config, deps transfer.Deps) *HostRunner {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HostRunner{
		dialer:    dialer,
		router:    router,
		remoteDir: remoteDir,
		cfg:       cfg,
		deps:      deps,
		metrics:   deps.Metrics,
		logger:    logger,
	}
}

// Run processes one host batch. Connection and listing failures abort only
// this host. Once ctx is done no further file is started, but the file in
// flight runs to completion.
func (r *HostRunner) Run(ctx context.Context, host string) BatchReport {
	report := BatchReport{Host: host}
	logger := r.logger.With(zap.String("host", host))

	// the dialer applies the configured connect timeout to the whole handshake
	client, err := r.dialer.Dial(ctx, host)
	if err != nil {
		report.Err = &transfer.Fault{Kind: transfer.ConnectionFault, Stage: transfer.StageConnect, Err: err}
		r.hostFailed(host, report.Err, logger)
		return report
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close connection", zap.Error(err))
		}
	}()

	lctx, cancel := withTimeout(ctx, r.cfg.CommandTimeout)
	names, err := remote.List(lctx, client, r.remoteDir)
	cancel()
	if err != nil {
		report.Err = &transfer.Fault{Kind: transfer.ConnectionFault, Stage: transfer.StageList, Err: err}
		r.hostFailed(host, report.Err, logger)
		return report
	}
	report.Listed = len(names)
	if r.metrics != nil {
		r.metrics.GetProgressTracker().AddHost(false)
	}
	logger.Info("Listed remote files", zap.String("dir", r.remoteDir), zap.Int("count", len(names)))

	machine := transfer.New(r.cfg, client, r.deps)

	for _, name := range names {
		if ctx.Err() != nil {
			logger.Info("Shutdown requested, leaving remaining files for the next run")
			report.Interrupted = true
			break
		}

		decision := r.router.Route(name)
		if !decision.Accepted() {
			logger.Debug("Skipping file", zap.String("file", name), zap.String("reason", decision.Reason))
			report.Skipped++
			continue
		}

		if err := r.prepare(host, decision.Folder); err != nil {
			logger.Error("Failed to create local directories, leaving file untouched",
				zap.String("file", name),
				zap.String("folder", decision.Folder),
				zap.Error(err),
			)
			report.Skipped++
			continue
		}

		res := machine.Process(context.WithoutCancel(ctx), transfer.Handle{
			Host:      host,
			RemoteDir: r.remoteDir,
			Name:      name,
			Folder:    decision.Folder,
		})
		report.Results = append(report.Results, res)
	}

	return report
}

func (r *HostRunner) prepare(host, folder string) error {
	if err := localfs.EnsureDir(r.cfg.Layout.StagingDir(host, folder)); err != nil {
		return err
	}
	return localfs.EnsureDir(r.cfg.Layout.FinalDir(host, folder))
}

func (r *HostRunner) hostFailed(host string, err error, logger *zap.Logger) {
	stage := ""
	var fault *transfer.Fault
	if errors.As(err, &fault) {
		stage = string(fault.Stage)
	}
	logger.Error("Host batch aborted", zap.String("stage", stage), zap.Error(err))
	if r.metrics != nil {
		r.metrics.IncHostFailure(host)
		r.metrics.GetProgressTracker().AddHost(true)
	}
}
