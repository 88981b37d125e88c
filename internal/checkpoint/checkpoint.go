// Package checkpoint encodes a file's transfer progress into its remote name.
//
// The remote name is the only durable record of how far a file got, so every
// name the pipeline produces must classify back to exactly one Checkpoint.
//
//	grpc-app.log                          Raw
//	20240101_000000_grpc-app.log          Staged
//	grpc_DF_20240101_000000_grpc-app.log  StagedIncomplete
//	grpc_RF_20240101_000000_grpc-app.log  ReadyForDelete
package checkpoint

// Kind is the processing stage a remote name encodes.
type Kind int

const (
	// Raw is a newly discovered, unclaimed file.
	Raw Kind = iota
	// Staged is a claimed file (timestamp tag) whose run stopped before tagging a failure.
	Staged
	// StagedIncomplete is a claimed file that failed before or during download/verify.
	StagedIncomplete
	// ReadyForDelete is a downloaded and verified file whose remote delete failed.
	ReadyForDelete
)

func (k Kind) String() string {
	switch k {
	case Raw:
		return "raw"
	case Staged:
		return "staged"
	case StagedIncomplete:
		return "staged_incomplete"
	case ReadyForDelete:
		return "ready_for_delete"
	default:
		return "unknown"
	}
}

// Checkpoint is the decoded form of a remote name.
// Folder is only set for marked kinds; Base is the claimed identity
// (the timestamped name) for every kind except Raw, where it is the name itself.
type Checkpoint struct {
	Kind   Kind
	Folder string
	Base   string
}

// Classify decodes a remote name. Marker detection wins over timestamp parsing.
func Classify(name string) Checkpoint {
	switch DetectMarker(name) {
	case MarkerReadyForDelete:
		return Checkpoint{Kind: ReadyForDelete, Folder: markerFolder(name, rfMarker), Base: StripMarker(name)}
	case MarkerStagedIncomplete:
		return Checkpoint{Kind: StagedIncomplete, Folder: markerFolder(name, dfMarker), Base: StripMarker(name)}
	}

	if _, ok := SplitTimestamp(name); ok {
		return Checkpoint{Kind: Staged, Base: name}
	}
	return Checkpoint{Kind: Raw, Base: name}
}

// Render is the inverse of Classify.
func Render(cp Checkpoint) string {
	switch cp.Kind {
	case ReadyForDelete:
		return FailureTag(cp.Folder, TagRF, cp.Base)
	case StagedIncomplete:
		return FailureTag(cp.Folder, TagDF, cp.Base)
	default:
		return cp.Base
	}
}

// Claimed reports whether the name has already been renamed away from its
// original, unclaimed identity.
func (cp Checkpoint) Claimed() bool {
	return cp.Kind != Raw
}
