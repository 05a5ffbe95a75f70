// Package buildinfo describes the running lazystage binary. The linker
// stamps cmd/lazystage; main hands the values over with Set.
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

// Info is the build metadata shown by --version.
type Info struct {
	Version string
	Commit  string // full revision
	Date    string
	BuiltBy string
}

const (
	unsetCommit  = "none"
	unsetBuilder = "unknown"
)

var current = Info{Version: "dev", Commit: unsetCommit, Date: "unknown", BuiltBy: unsetBuilder}

// Set replaces the metadata with linker-provided values.
func Set(version, commit, date, builtBy string) {
	current = Info{Version: version, Commit: commit, Date: date, BuiltBy: builtBy}
}

// Current returns the metadata of this binary.
func Current() Info {
	return current
}

// Enrich fills unset fields from the module build info embedded by the Go
// toolchain, for binaries built with plain go build or go install.
func Enrich() {
	if bi, ok := debug.ReadBuildInfo(); ok {
		current = current.withBuild(bi)
	}
}

func (i Info) withBuild(bi *debug.BuildInfo) Info {
	if i.Commit == unsetCommit {
		for _, setting := range bi.Settings {
			if setting.Key == "vcs.revision" {
				i.Commit = setting.Value
			}
		}
	}
	if i.BuiltBy == unsetBuilder && bi.GoVersion != "" {
		i.BuiltBy = bi.GoVersion
	}
	return i
}

// String is the one-line --version text with a shortened commit.
func (i Info) String() string {
	commit := i.Commit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	return fmt.Sprintf("%s (commit %s, built %s by %s)", i.Version, commit, i.Date, i.BuiltBy)
}
