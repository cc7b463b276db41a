// Package version holds build-time version information for csb.
package version

import "strconv"

// Overridable at build time:
// go build -ldflags "-X csb/internal/version.Version=1.0.0 -X csb/internal/version.Commit=abc123"
var (
	// Version is the semantic version of csb
	Version = "0.4.0"

	// Commit is the git commit hash (set at build time)
	Commit = "unknown"

	// BuildDate is the build timestamp (set at build time)
	BuildDate = "unknown"
)

// SnapshotFormat is bumped whenever the persisted unit record changes shape.
// Snapshots written under another format are discarded.
const SnapshotFormat = 3

// Info returns a formatted version string
func Info() string {
	if Commit != "unknown" && len(Commit) > 7 {
		return Version + " (" + Commit[:7] + ")"
	}
	return Version
}

// SnapshotVersion identifies the snapshot layout written by this binary.
func SnapshotVersion() string {
	return Version + "/" + strconv.Itoa(SnapshotFormat)
}

// Full returns complete version information
func Full() string {
	return "csb version " + Version + "\n" +
		"Commit: " + Commit + "\n" +
		"Built: " + BuildDate + "\n" +
		"Snapshot format: " + strconv.Itoa(SnapshotFormat)
}
