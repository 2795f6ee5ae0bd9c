package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/samcharles93/captioner/internal/logger"
)

// Info describes a checkpoint without loading its weights.
type Info struct {
	Name     string   `json:"name"`
	Dir      string   `json:"dir"`
	Defaults Defaults `json:"defaults"`
}

// ProviderConfig configures a Provider.
type ProviderConfig struct {
	// Root is the directory holding checkpoint directories.
	Root string
	// Default is used when a request names no checkpoint. It may be a name
	// under Root or a path.
	Default string
	// AllowPaths lets Get take a directory path instead of a name under
	// Root. Only set it when names come from a trusted caller such as the
	// command line.
	AllowPaths bool
}

// Provider loads checkpoints on first use and keeps them for the lifetime
// of the process. It is safe for concurrent use.
type Provider struct {
	cfg   ProviderConfig
	mu    sync.Mutex
	cache map[string]*entry
}

type entry struct {
	once sync.Once
	ck   *Checkpoint
	err  error
}

// NewProvider returns a Provider over cfg. Root and a path-form Default are
// made absolute so later working directory changes do not move them.
func NewProvider(cfg ProviderConfig) *Provider {
	cfg.Root = absPath(cfg.Root)
	if looksLikePath(strings.TrimSpace(cfg.Default)) {
		cfg.Default = absPath(strings.TrimSpace(cfg.Default))
	}
	return &Provider{
		cfg:   cfg,
		cache: make(map[string]*entry),
	}
}

// Get returns the checkpoint named name, loading it if needed.
func (p *Provider) Get(ctx context.Context, name string) (*Checkpoint, error) {
	dir, err := p.resolve(name)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	e, ok := p.cache[dir]
	if !ok {
		e = &entry{}
		p.cache[dir] = e
	}
	p.mu.Unlock()

	e.once.Do(func() {
		logger.FromContext(ctx).Info("loading checkpoint", "dir", dir)
		e.ck, e.err = Load(dir)
	})
	if e.err != nil {
		// Let a later request retry, e.g. after the files were fixed.
		p.mu.Lock()
		if p.cache[dir] == e {
			delete(p.cache, dir)
		}
		p.mu.Unlock()
		return nil, e.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.ck, nil
}

// List describes every checkpoint under the root, sorted by directory.
func (p *Provider) List() ([]Info, error) {
	dirs, err := Discover(p.cfg.Root)
	if err != nil {
		return nil, err
	}
	infos := make([]Info, 0, len(dirs))
	for _, dir := range dirs {
		m, err := ReadManifest(dir)
		if err != nil {
			return nil, err
		}
		infos = append(infos, Info{Name: m.Name, Dir: dir, Defaults: m.Defaults})
	}
	return infos, nil
}

func (p *Provider) resolve(name string) (string, error) {
	name = strings.TrimSpace(name)
	trusted := p.cfg.AllowPaths
	if name == "" {
		name = strings.TrimSpace(p.cfg.Default)
		trusted = true
	}
	if name != "" {
		if looksLikePath(name) {
			if !trusted {
				return "", fmt.Errorf("%w: %q is not a checkpoint name", ErrNotFound, name)
			}
			return absPath(name), nil
		}
		if p.cfg.Root == "" {
			return "", fmt.Errorf("checkpoints root is required to resolve %q", name)
		}
		dir := filepath.Join(p.cfg.Root, name)
		if rel, err := filepath.Rel(p.cfg.Root, dir); err != nil || rel != name {
			return "", fmt.Errorf("%w: %q is not a checkpoint name", ErrNotFound, name)
		}
		if !isCheckpoint(dir) {
			return "", fmt.Errorf("%w: %q in %s", ErrNotFound, name, p.cfg.Root)
		}
		return dir, nil
	}

	dirs, err := Discover(p.cfg.Root)
	if err != nil {
		return "", err
	}
	switch len(dirs) {
	case 0:
		return "", fmt.Errorf("%w: no checkpoints in %s", ErrNotFound, p.cfg.Root)
	case 1:
		return dirs[0], nil
	default:
		return "", fmt.Errorf("multiple checkpoints found in %s; specify one", p.cfg.Root)
	}
}

// Discover returns the checkpoint directories directly under root, sorted.
func Discover(root string) ([]string, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("checkpoints root is empty")
	}
	st, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("checkpoints root is not a directory: %s", root)
	}
	ents, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	dirs := make([]string, 0, len(ents))
	for _, e := range ents {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if isCheckpoint(dir) {
			dirs = append(dirs, dir)
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// ReadManifest reads only the manifest of the checkpoint in dir.
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	raw, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return m, err
	}
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return m, fmt.Errorf("parse %s: %w", filepath.Join(dir, ManifestName), err)
	}
	if m.Defaults == (Defaults{}) {
		m.Defaults = DefaultSearch
	}
	return m, nil
}

func isCheckpoint(dir string) bool {
	st, err := os.Stat(filepath.Join(dir, ManifestName))
	return err == nil && st.Mode().IsRegular()
}

// absPath cleans p and makes it absolute. Empty stays empty.
func absPath(p string) string {
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

func looksLikePath(v string) bool {
	return filepath.IsAbs(v) || strings.ContainsAny(v, `/\`) || strings.HasPrefix(v, ".")
}
