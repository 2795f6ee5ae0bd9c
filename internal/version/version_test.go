package version

import (
	"runtime/debug"
	"testing"
)

func TestResolveUsesStampedValues(t *testing.T) {
	prevV, prevC, prevB := Version, Commit, BuildTime
	t.Cleanup(func() { Version, Commit, BuildTime = prevV, prevC, prevB })

	Version, Commit, BuildTime = "v1.2.3", "0123456789abcdef0123", "2026-01-02T03:04:05Z"
	info := Resolve()
	if info.Version != "v1.2.3" || info.Commit != Commit || info.BuildTime != BuildTime {
		t.Fatalf("unexpected info %+v", info)
	}
	if got := info.String(); got != "v1.2.3 (0123456789ab)" {
		t.Fatalf("unexpected version string %q", got)
	}
}

func TestMergeBuildInfo(t *testing.T) {
	t.Parallel()
	var info Info
	info.merge(&debug.BuildInfo{
		GoVersion: "go1.26.0",
		Main:      debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "abcdef0123456789"},
			{Key: "vcs.modified", Value: "true"},
			{Key: "vcs.time", Value: "2026-10-01T00:00:00Z"},
		},
	})
	if info.Version != "" {
		t.Fatalf("devel module version should not be used, got %q", info.Version)
	}
	if info.GoVersion != "go1.26.0" || info.BuildTime != "2026-10-01T00:00:00Z" {
		t.Fatalf("unexpected info %+v", info)
	}
	info.Version = "dev"
	if got := info.String(); got != "dev (abcdef012345-dirty)" {
		t.Fatalf("unexpected string %q", got)
	}
}

func TestResolveNeverEmpty(t *testing.T) {
	prevV, prevC, prevB := Version, Commit, BuildTime
	t.Cleanup(func() { Version, Commit, BuildTime = prevV, prevC, prevB })

	Version, Commit, BuildTime = "", "", ""
	if info := Resolve(); info.Version == "" {
		t.Fatal("expected a fallback version")
	}
	if got := (Info{Version: "v1"}).String(); got != "v1" {
		t.Fatalf("no commit should print the bare version, got %q", got)
	}
}
