// Package version reports build information stamped into the captioner
// binary through -ldflags, falling back to what the Go toolchain embeds.
package version

import "runtime/debug"

// Set with -ldflags "-X github.com/samcharles93/captioner/internal/version.Version=...".
var (
	Version   = ""
	Commit    = ""
	BuildTime = ""
)

const devVersion = "dev"

// Info is the resolved build description served by /healthz and
// `captioner version`.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version,omitempty"`
}

// Resolve prefers ldflags values and fills the rest from debug.ReadBuildInfo.
func Resolve() Info {
	info := Info{Version: Version, Commit: Commit, BuildTime: BuildTime}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.merge(bi)
	}
	if info.Version == "" {
		info.Version = devVersion
	}
	return info
}

func (i *Info) merge(bi *debug.BuildInfo) {
	i.GoVersion = bi.GoVersion
	if v := bi.Main.Version; i.Version == "" && v != "" && v != "(devel)" {
		i.Version = v
	}
	vcs := map[string]string{}
	for _, s := range bi.Settings {
		vcs[s.Key] = s.Value
	}
	if i.Commit == "" {
		i.Commit = vcs["vcs.revision"]
		i.Modified = vcs["vcs.modified"] == "true"
	}
	if i.BuildTime == "" {
		i.BuildTime = vcs["vcs.time"]
	}
}

// String renders "v1.2.3 (0123456789ab)", with "-dirty" appended to the
// commit for modified trees.
func (i Info) String() string {
	if i.Commit == "" {
		return i.Version
	}
	c := i.Commit
	if len(c) > 12 {
		c = c[:12]
	}
	if i.Modified {
		c += "-dirty"
	}
	return i.Version + " (" + c + ")"
}
