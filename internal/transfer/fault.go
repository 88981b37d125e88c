package transfer

import (
	"errors"
	"fmt"
)

// Stage names a step of the per-file pipeline.
type Stage string

const (
	StageConnect     Stage = "connect"
	StageList        Stage = "list"
	StageClaim       Stage = "claim"
	StageChecksum    Stage = "checksum"
	StageDownload    Stage = "download"
	StageLocalDigest Stage = "local_digest"
	StageVerify      Stage = "verify"
	StageDelete      Stage = "delete"
	StageLocalCopy   Stage = "local_copy"
	StageTag         Stage = "tag"
	StageMove        Stage = "move"
	StageBackup      Stage = "backup"
	StageMirror      Stage = "mirror"
)

// FaultKind classifies why a stage failed.
type FaultKind int

const (
	// TransientFault is a connection, command or transfer I/O failure.
	TransientFault FaultKind = iota + 1
	// IntegrityFault is a digest mismatch. It is never retried at the same name.
	IntegrityFault
	// FormatFault is a file name that cannot be parsed for backup.
	FormatFault
	// ConnectionFault is a host-level dial or handshake failure.
	ConnectionFault
)

func (k FaultKind) String() string {
	switch k {
	case TransientFault:
		return "transient"
	case IntegrityFault:
		return "integrity"
	case FormatFault:
		return "format"
	case ConnectionFault:
		return "connection"
	default:
		return "none"
	}
}

// Fault is the error returned by a failed stage.
type Fault struct {
	Kind  FaultKind
	Stage Stage
	Err   error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s fault at %s: %v", f.Kind, f.Stage, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// KindOf returns the fault kind carried by err, or 0 if err is not a Fault.
func KindOf(err error) FaultKind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return 0
}

func transient(stage Stage, err error) *Fault {
	return &Fault{Kind: TransientFault, Stage: stage, Err: err}
}
