package checkpoint

import (
	"regexp"
	"strings"
	"time"
)

// TimestampLayout is the claim tag prepended to a file name.
const TimestampLayout = "20060102_150405"

// Tag names the stage a file failed at.
type Tag string

const (
	// TagDF marks a failure before or during download/verify.
	TagDF Tag = "DF"
	// TagRF marks a failure where only the remote delete remains.
	TagRF Tag = "RF"
)

// Marker is the result of DetectMarker.
type Marker int

const (
	MarkerNone Marker = iota
	MarkerReadyForDelete
	MarkerStagedIncomplete
)

const (
	rfMarker = "_" + string(TagRF) + "_"
	dfMarker = "_" + string(TagDF) + "_"
)

var stagedName = regexp.MustCompile(`^(\d{8})_(\d{6})_(.+)$`)

// TagWithTimestamp prefixes name with a second-granularity timestamp.
func TagWithTimestamp(name string, now time.Time) string {
	return now.Format(TimestampLayout) + "_" + name
}

// SplitTimestamp removes the timestamp tag added by TagWithTimestamp.
func SplitTimestamp(name string) (string, bool) {
	m := stagedName.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	if _, err := time.Parse(TimestampLayout, m[1]+"_"+m[2]); err != nil {
		return "", false
	}
	return m[3], true
}

// DetectMarker reports which failure marker name carries. _RF_ takes priority.
func DetectMarker(name string) Marker {
	switch {
	case strings.Contains(name, rfMarker):
		return MarkerReadyForDelete
	case strings.Contains(name, dfMarker):
		return MarkerStagedIncomplete
	default:
		return MarkerNone
	}
}

// StripMarker returns the part of name after its last marker of either kind,
// which is the identity the file had before it was first tagged. Unmarked
// names are returned as is.
func StripMarker(name string) string {
	cut := -1
	for _, marker := range []string{rfMarker, dfMarker} {
		if i := strings.LastIndex(name, marker); i >= 0 && i+len(marker) > cut {
			cut = i + len(marker)
		}
	}
	if cut < 0 {
		return name
	}
	return name[cut:]
}

// FailureTag builds <folder>_<tag>_<name>.
func FailureTag(folder string, tag Tag, name string) string {
	return folder + "_" + string(tag) + "_" + name
}

// ExtractDateAndOriginalName parses YYYYMMDD_HHMMSS_<original>.
func ExtractDateAndOriginalName(name string) (date, original string, ok bool) {
	m := stagedName.FindStringSubmatch(name)
	if m == nil {
		return "", "", false
	}
	return m[1], m[3], true
}

func markerFolder(name, marker string) string {
	return name[:strings.Index(name, marker)]
}
