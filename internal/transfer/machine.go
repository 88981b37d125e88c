// Package transfer moves one remote log file through claim, verify, delete and
// archive, resuming from whatever checkpoint its remote name encodes.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"edgelogd/internal/backup"
	"edgelogd/internal/checkpoint"
	"edgelogd/internal/journal"
	"edgelogd/internal/localfs"
	"edgelogd/internal/metrics"
	"edgelogd/internal/remote"
	"edgelogd/internal/storage"
	"edgelogd/internal/verify"
)

// Handle identifies one remote file for a single pipeline run.
type Handle struct {
	Host      string
	RemoteDir string
	Name      string
	Folder    string
}

// Outcome is how a pipeline run ended.
type Outcome string

const (
	// OutcomeDone means the file is archived and gone from the remote host.
	OutcomeDone Outcome = "done"
	// OutcomeSkipped means the claim failed and the file kept its original name.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailedDF means the file was left tagged _DF_.
	OutcomeFailedDF Outcome = "failed_df"
	// OutcomeFailedRF means the file was left tagged _RF_.
	OutcomeFailedRF Outcome = "failed_rf"
	// OutcomeCommitFailed means the remote file was deleted but the staged
	// copy could not be moved into the archive.
	OutcomeCommitFailed Outcome = "commit_failed"
)

// Result describes a finished pipeline run.
type Result struct {
	Outcome    Outcome
	Stage      Stage
	BaseName   string
	RemoteName string
	FinalPath  string
	BackupPath string
	Bytes      int64
	Err        error
}

// Config contains pipeline settings
type Config struct {
	Layout          Layout
	ExtraTries      int
	CommandTimeout  time.Duration
	TransferTimeout time.Duration
}

// Deps are the collaborators shared by every machine. Mirror, Journal and
// Metrics are optional.
type Deps struct {
	Merger  *backup.Merger
	Mirror  storage.Uploader
	Journal journal.Store
	Metrics *metrics.Collector
	Logger  *zap.Logger
	Clock   func() time.Time
}

// Machine drives files of one connected host through the pipeline, one at a time.
type Machine struct {
	cfg     Config
	client  remote.Client
	retry   *Escalator
	merger  *backup.Merger
	mirror  storage.Uploader
	journal journal.Store
	metrics *metrics.Collector
	logger  *zap.Logger
	now     func() time.Time

	digestLocal func(path string) (string, error)
}

// New creates a machine bound to client
func New(cfg Config, client remote.Client, deps Deps) *Machine {
	m := &Machine{
		cfg:         cfg,
		client:      client,
		retry:       NewEscalator(cfg.ExtraTries),
		merger:      deps.Merger,
		mirror:      deps.Mirror,
		journal:     deps.Journal,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		now:         deps.Clock,
		digestLocal: verify.Local,
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.journal == nil {
		m.journal = journal.Nop{}
	}
	return m
}

// Process runs h through the pipeline. The branch taken depends only on the
// checkpoint encoded in h.Name.
func (m *Machine) Process(ctx context.Context, h Handle) Result {
	start := time.Now()
	logger := m.logger.With(
		zap.String("host", h.Host),
		zap.String("file", h.Name),
		zap.String("folder", h.Folder),
	)

	cp := checkpoint.Classify(h.Name)

	var res Result
	switch cp.Kind {
	case checkpoint.ReadyForDelete:
		logger.Info("Resuming at remote delete", zap.String("base", cp.Base))
		res = m.resumeDelete(ctx, h, cp.Base, logger)
	case checkpoint.StagedIncomplete, checkpoint.Staged:
		logger.Info("Resuming at checksum",
			zap.String("checkpoint", cp.Kind.String()),
			zap.String("base", cp.Base),
		)
		res = m.transfer(ctx, h, h.Name, cp.Base, logger)
	default:
		res = m.claim(ctx, h, logger)
	}

	m.record(h, res, time.Since(start), logger)
	return res
}

// claim renames the file with a timestamp tag; after this no later listing
// can mistake it for a fresh file.
func (m *Machine) claim(ctx context.Context, h Handle, logger *zap.Logger) Result {
	base := checkpoint.TagWithTimestamp(h.Name, m.now())

	err := m.retry.Attempt(logger, StageClaim, func() error {
		return m.rename(ctx, h, h.Name, base)
	})
	if err != nil {
		logger.Error("Failed to claim file, leaving it for the next cycle", zap.Error(err))
		return Result{
			Outcome:    OutcomeSkipped,
			Stage:      StageClaim,
			BaseName:   h.Name,
			RemoteName: h.Name,
			Err:        transient(StageClaim, err),
		}
	}

	logger.Info("Claimed file", zap.String("base", base))
	return m.transfer(ctx, h, base, base, logger)
}

// transfer checksums, downloads, verifies and deletes the remote file named
// current, whose claimed identity is base.
func (m *Machine) transfer(ctx context.Context, h Handle, current, base string, logger *zap.Logger) Result {
	remotePath := path.Join(h.RemoteDir, current)
	localPath := filepath.Join(m.cfg.Layout.StagingDir(h.Host, h.Folder), base)

	var remoteSum string
	err := m.retry.Attempt(logger, StageChecksum, func() error {
		cctx, cancel := withTimeout(ctx, m.cfg.CommandTimeout)
		defer cancel()

		sum, err := verify.Remote(cctx, m.client, remotePath)
		remoteSum = sum
		return err
	})
	if err != nil {
		return m.escalate(ctx, h, current, base, checkpoint.TagDF, transient(StageChecksum, err), logger)
	}

	err = m.retry.Attempt(logger, StageDownload, func() error {
		cctx, cancel := withTimeout(ctx, m.cfg.TransferTimeout)
		defer cancel()

		return m.client.CopyDown(cctx, remotePath, localPath)
	})
	if err != nil {
		return m.escalate(ctx, h, current, base, checkpoint.TagDF, transient(StageDownload, err), logger)
	}
	logger.Info("Downloaded file", zap.String("local_path", localPath))

	var localSum string
	err = m.retry.Attempt(logger, StageLocalDigest, func() error {
		sum, err := m.digestLocal(localPath)
		localSum = sum
		return err
	})
	if err != nil {
		return m.escalate(ctx, h, current, base, checkpoint.TagDF, transient(StageLocalDigest, err), logger)
	}

	if !verify.Match(localSum, remoteSum) {
		logger.Error("Digest mismatch, keeping remote file",
			zap.String("local_md5", localSum),
			zap.String("remote_md5", remoteSum),
		)
		fault := &Fault{
			Kind:  IntegrityFault,
			Stage: StageVerify,
			Err:   fmt.Errorf("local md5 %s does not match remote md5 %s", localSum, remoteSum),
		}
		return m.escalate(ctx, h, current, base, checkpoint.TagDF, fault, logger)
	}
	logger.Info("Digest verified", zap.String("md5", localSum))

	if err := m.deleteRemote(ctx, h, current, logger); err != nil {
		return m.escalate(ctx, h, current, base, checkpoint.TagRF, transient(StageDelete, err), logger)
	}

	return m.commit(ctx, h, base, localPath, logger)
}

// resumeDelete finishes a file whose download was verified in an earlier run.
func (m *Machine) resumeDelete(ctx context.Context, h Handle, base string, logger *zap.Logger) Result {
	localPath := filepath.Join(m.cfg.Layout.StagingDir(h.Host, h.Folder), base)

	// the staged copy is the only other copy; without it the file has to be fetched again
	if _, err := os.Stat(localPath); err != nil {
		logger.Error("Staged copy missing, remote file will be downloaded again",
			zap.String("local_path", localPath),
			zap.Error(err),
		)
		return m.escalate(ctx, h, h.Name, base, checkpoint.TagDF, transient(StageLocalCopy, err), logger)
	}

	if err := m.deleteRemote(ctx, h, h.Name, logger); err != nil {
		return m.escalate(ctx, h, h.Name, base, checkpoint.TagRF, transient(StageDelete, err), logger)
	}

	return m.commit(ctx, h, base, localPath, logger)
}

// commit moves the verified file into the archive and appends it to the
// backup. Nothing here is retried: the remote file is already gone.
func (m *Machine) commit(ctx context.Context, h Handle, base, localPath string, logger *zap.Logger) Result {
	finalPath := filepath.Join(m.cfg.Layout.FinalDir(h.Host, h.Folder), base)

	if err := localfs.Move(localPath, finalPath); err != nil {
		logger.Error("Failed to move verified file into archive, staged copy is orphaned",
			zap.String("stage", string(StageMove)),
			zap.String("local_path", localPath),
			zap.String("final_path", finalPath),
			zap.Error(err),
		)
		return Result{
			Outcome:  OutcomeCommitFailed,
			Stage:    StageMove,
			BaseName: base,
			Err:      transient(StageMove, err),
		}
	}

	res := Result{
		Outcome:   OutcomeDone,
		BaseName:  base,
		FinalPath: finalPath,
	}
	if info, err := os.Stat(finalPath); err == nil {
		res.Bytes = info.Size()
	}
	logger.Info("Archived file", zap.String("final_path", finalPath), zap.Int64("size", res.Bytes))

	backupPath, err := m.merger.Append(finalPath, base)
	if err != nil {
		kind := TransientFault
		if errors.Is(err, backup.ErrBadName) {
			kind = FormatFault
		}
		res.Err = &Fault{Kind: kind, Stage: StageBackup, Err: err}
		res.Stage = StageBackup
		logger.Error("Failed to append to backup archive",
			zap.String("stage", string(StageBackup)),
			zap.String("fault", kind.String()),
			zap.Error(err),
		)
	} else {
		res.BackupPath = backupPath
		logger.Info("Backed up file", zap.String("backup_path", backupPath))
	}

	if m.mirror != nil {
		key := path.Join(h.Host, h.Folder, base)
		cctx, cancel := withTimeout(ctx, m.cfg.TransferTimeout)
		err := m.mirror.UploadFile(cctx, key, finalPath)
		cancel()
		if err != nil {
			logger.Warn("Failed to mirror file offsite", zap.String("key", key), zap.Error(err))
			if res.Err == nil {
				res.Err = transient(StageMirror, err)
			}
		} else {
			logger.Debug("Mirrored file offsite", zap.String("key", key))
		}
	}

	return res
}

// escalate tags the remote file with <folder>_<tag>_<base> and ends the run.
// No rename is issued when the file already carries that exact name.
func (m *Machine) escalate(ctx context.Context, h Handle, current, base string, tag checkpoint.Tag, fault *Fault, logger *zap.Logger) Result {
	outcome := OutcomeFailedDF
	if tag == checkpoint.TagRF {
		outcome = OutcomeFailedRF
	}

	res := Result{
		Outcome:    outcome,
		Stage:      fault.Stage,
		BaseName:   base,
		RemoteName: current,
		Err:        fault,
	}

	target := checkpoint.FailureTag(h.Folder, tag, base)
	logger.Error("Stage failed",
		zap.String("stage", string(fault.Stage)),
		zap.String("fault", fault.Kind.String()),
		zap.String("tag", target),
		zap.Error(fault.Err),
	)
	if target == current {
		return res
	}

	err := m.retry.Attempt(logger, StageTag, func() error {
		return m.rename(ctx, h, current, target)
	})
	if err != nil {
		logger.Error("Failed to tag remote file, manual intervention may be required",
			zap.String("tag", target),
			zap.Error(err),
		)
		return res
	}

	res.RemoteName = target
	return res
}

func (m *Machine) deleteRemote(ctx context.Context, h Handle, name string, logger *zap.Logger) error {
	err := m.retry.Attempt(logger, StageDelete, func() error {
		cctx, cancel := withTimeout(ctx, m.cfg.CommandTimeout)
		defer cancel()

		return remote.Remove(cctx, m.client, path.Join(h.RemoteDir, name))
	})
	if err == nil {
		logger.Info("Deleted remote file", zap.String("remote_name", name))
	}
	return err
}

func (m *Machine) rename(ctx context.Context, h Handle, from, to string) error {
	cctx, cancel := withTimeout(ctx, m.cfg.CommandTimeout)
	defer cancel()

	return remote.Rename(cctx, m.client, path.Join(h.RemoteDir, from), path.Join(h.RemoteDir, to))
}

func (m *Machine) record(h Handle, res Result, duration time.Duration, logger *zap.Logger) {
	if m.metrics != nil {
		m.metrics.ObserveFile(string(res.Outcome), res.Bytes, duration)

		tracker := m.metrics.GetProgressTracker()
		switch res.Outcome {
		case OutcomeDone:
			tracker.AddDone(res.Bytes)
		case OutcomeSkipped:
			tracker.AddSkipped()
		case OutcomeCommitFailed:
			tracker.AddCommitFailure()
		default:
			tracker.AddFailed()
		}
	}

	entry := &journal.Entry{
		Host:       h.Host,
		Folder:     h.Folder,
		BaseName:   res.BaseName,
		RemoteName: res.RemoteName,
		Outcome:    string(res.Outcome),
		Stage:      string(res.Stage),
		Bytes:      res.Bytes,
	}
	if res.Err != nil {
		entry.LastError = res.Err.Error()
	}
	if err := m.journal.Record(entry); err != nil {
		logger.Warn("Failed to record journal entry", zap.Error(err))
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
