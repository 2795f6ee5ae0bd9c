package checkpoint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/samcharles93/captioner/internal/vocab"
	"github.com/samcharles93/captioner/internal/workdir"
)

func newTestCheckpoint(t *testing.T, name string) *Checkpoint {
	t.Helper()
	v, err := vocab.New([]string{"a", "dog", "cat", "on", "grass"})
	if err != nil {
		t.Fatalf("vocab.New: %v", err)
	}
	ck, err := New(name, v, 8, 4, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ck
}

func saveTestCheckpoint(t *testing.T, root, name string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := Save(dir, newTestCheckpoint(t, name)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return dir
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ck := newTestCheckpoint(t, "tiny")
	dir := filepath.Join(t.TempDir(), "tiny")
	if err := Save(dir, ck); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !filepath.IsAbs(ck.Dir) {
		t.Fatalf("expected absolute dir, got %q", ck.Dir)
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Name() != "tiny" {
		t.Fatalf("unexpected name %q", got.Name())
	}
	if got.Manifest.Defaults != DefaultSearch {
		t.Fatalf("unexpected defaults %+v", got.Manifest.Defaults)
	}
	if !slices.Equal(got.Vocab.Words(), ck.Vocab.Words()) {
		t.Fatal("vocabulary changed on round trip")
	}
	if !slices.Equal(got.Model.Weights().Out.Data, ck.Model.Weights().Out.Data) {
		t.Fatal("weights changed on round trip")
	}
}

func TestSaveLoadSafetensorsWeights(t *testing.T) {
	ck := newTestCheckpoint(t, "tiny")
	ck.Manifest.Weights = WeightsSafetensors
	dir := filepath.Join(t.TempDir(), "tiny")
	if err := Save(dir, ck); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, WeightsSafetensors)); err != nil {
		t.Fatalf("weights file not written: %v", err)
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := ck.Model.Weights()
	have := got.Model.Weights()
	pairs := []struct {
		name      string
		got, want []float32
	}{
		{"project", have.Project.Data, want.Project.Data},
		{"project_bias", have.ProjectBias, want.ProjectBias},
		{"embed", have.Embed.Data, want.Embed.Data},
		{"recur", have.Recur.Data, want.Recur.Data},
		{"hidden_bias", have.HiddenBias, want.HiddenBias},
		{"out", have.Out.Data, want.Out.Data},
		{"out_bias", have.OutBias, want.OutBias},
	}
	for _, p := range pairs {
		if !slices.Equal(p.got, p.want) {
			t.Fatalf("%s changed on round trip", p.name)
		}
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(t.TempDir())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadDetectsMismatch(t *testing.T) {
	dir := saveTestCheckpoint(t, t.TempDir(), "tiny")
	path := filepath.Join(dir, ManifestName)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	raw = []byte(strings.Replace(string(raw), "hidden: 8", "hidden: 9", 1))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if _, err := Load(dir); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
}

func TestLoadRejectsInvalidManifest(t *testing.T) {
	dir := t.TempDir()
	body := "name: broken\nweights: weights.json\nvocab: vocab.json\ndefaults:\n  beam_size: 0\n  max_len: 4\n"
	if err := os.WriteFile(filepath.Join(dir, ManifestName), []byte(body), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	_, err := Load(dir)
	if err == nil || !strings.Contains(err.Error(), "beam_size must be at least 1") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestProviderCachesAndResolves(t *testing.T) {
	root := t.TempDir()
	saveTestCheckpoint(t, root, "only")

	p := NewProvider(ProviderConfig{Root: root})
	a, err := p.Get(context.Background(), "")
	if err != nil {
		t.Fatalf("Get default: %v", err)
	}
	b, err := p.Get(context.Background(), "only")
	if err != nil {
		t.Fatalf("Get by name: %v", err)
	}
	if a != b {
		t.Fatal("expected the cached checkpoint to be reused")
	}

	if _, err := p.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProviderAmbiguousDefault(t *testing.T) {
	root := t.TempDir()
	saveTestCheckpoint(t, root, "b")
	saveTestCheckpoint(t, root, "a")

	p := NewProvider(ProviderConfig{Root: root})
	if _, err := p.Get(context.Background(), ""); err == nil {
		t.Fatal("expected error with several checkpoints and no default")
	}

	p = NewProvider(ProviderConfig{Root: root, Default: "b"})
	ck, err := p.Get(context.Background(), "")
	if err != nil {
		t.Fatalf("Get with default: %v", err)
	}
	if ck.Name() != "b" {
		t.Fatalf("unexpected default %q", ck.Name())
	}

	infos, err := p.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 || infos[0].Name != "a" || infos[1].Name != "b" {
		t.Fatalf("unexpected listing %+v", infos)
	}
}

func TestProviderByPath(t *testing.T) {
	dir := saveTestCheckpoint(t, t.TempDir(), "elsewhere")

	p := NewProvider(ProviderConfig{AllowPaths: true})
	ck, err := p.Get(context.Background(), dir)
	if err != nil {
		t.Fatalf("Get by path: %v", err)
	}
	if ck.Name() != "elsewhere" {
		t.Fatalf("unexpected checkpoint %q", ck.Name())
	}
}

func TestProviderRejectsPathsFromRequests(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "ckpts")
	saveTestCheckpoint(t, root, "inside")
	outside := saveTestCheckpoint(t, base, "outside")

	p := NewProvider(ProviderConfig{Root: root})
	for _, name := range []string{outside, "../outside", "./inside", "inside/../../outside", `..\outside`} {
		if _, err := p.Get(context.Background(), name); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(%q): expected ErrNotFound, got %v", name, err)
		}
	}
	if _, err := p.Get(context.Background(), "inside"); err != nil {
		t.Fatalf("Get by name: %v", err)
	}

	// A path default set by the operator is still honoured.
	p = NewProvider(ProviderConfig{Root: root, Default: outside})
	ck, err := p.Get(context.Background(), "")
	if err != nil {
		t.Fatalf("Get path default: %v", err)
	}
	if ck.Name() != "outside" {
		t.Fatalf("unexpected checkpoint %q", ck.Name())
	}
}

func TestProviderRelativeRootSurvivesChdir(t *testing.T) {
	base := t.TempDir()
	saveTestCheckpoint(t, filepath.Join(base, "ckpts"), "a")
	saveTestCheckpoint(t, filepath.Join(base, "ckpts"), "b")
	t.Chdir(base)

	p := NewProvider(ProviderConfig{Root: "ckpts", Default: "./ckpts/a"})
	if _, err := p.Get(context.Background(), "b"); err != nil {
		t.Fatalf("Get before chdir: %v", err)
	}

	// Another load holds the working directory inside checkpoint a.
	scope, err := workdir.Enter(filepath.Join(base, "ckpts", "a"))
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	defer func() { _ = scope.Close() }()

	ck, err := p.Get(context.Background(), "b")
	if err != nil {
		t.Fatalf("Get while another directory is current: %v", err)
	}
	if ck.Name() != "b" {
		t.Fatalf("unexpected checkpoint %q", ck.Name())
	}
	infos, err := p.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("unexpected listing %+v", infos)
	}
	if dir, err := p.resolve(""); err != nil || filepath.Base(dir) != "a" || !filepath.IsAbs(dir) {
		t.Fatalf("default resolved to %q, %v", dir, err)
	}
}

func TestDiscoverSkipsPlainDirs(t *testing.T) {
	root := t.TempDir()
	saveTestCheckpoint(t, root, "real")
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	dirs, err := Discover(root)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(dirs) != 1 || filepath.Base(dirs[0]) != "real" {
		t.Fatalf("unexpected checkpoints %v", dirs)
	}
}
