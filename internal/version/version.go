// Package version reports the keytune build version.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

// Set with -ldflags "-X github.com/muurk/keytune/internal/version.Version=v1.2.3".
// Unset values are filled from the module's VCS stamp.
var (
	Version = ""
	Commit  = ""
)

func init() {
	Version, Commit = resolve(Version, Commit, vcsSettings())
}

func vcsSettings() map[string]string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	out := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		out[s.Key] = s.Value
	}
	return out
}

// resolve fills missing values from VCS settings. A build without either
// gets a timestamped dev version and "unknown" commit.
func resolve(version, commit string, vcs map[string]string) (string, string) {
	if commit == "" {
		if rev := vcs["vcs.revision"]; rev != "" {
			commit = rev[:min(len(rev), 7)]
			if vcs["vcs.modified"] == "true" {
				commit += "-dirty"
			}
		}
	}
	if version == "" {
		if t, err := time.Parse(time.RFC3339, vcs["vcs.time"]); err == nil {
			version = "dev-" + t.Format("20060102")
		}
	}

	if version == "" {
		version = "dev-" + time.Now().Format("20060102-150405")
	}
	if commit == "" {
		commit = "unknown"
	}
	return version, commit
}

// Info is the version block served by the bridge and stamped into snapshots.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// Get returns the current build's version info.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (i Info) String() string {
	return fmt.Sprintf("%s (commit: %s, %s, %s)", i.Version, i.Commit, i.GoVersion, i.Platform)
}
