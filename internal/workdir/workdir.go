// Package workdir switches the process working directory for a bounded
// piece of work and always switches it back.
//
// The working directory is process-wide, so scopes are serialized: Enter
// blocks while another scope is open and scopes must not be nested.
package workdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var mu sync.Mutex

// Scope is an entered working directory. Close restores the previous one.
type Scope struct {
	dir     string
	restore func() error

	once sync.Once
	err  error
}

// Enter changes the working directory to dir. The caller must Close the
// returned Scope on every path, typically with defer.
func Enter(dir string) (*Scope, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("workdir: resolve %s: %w", dir, err)
	}

	mu.Lock()
	restore, err := saveCurrent()
	if err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("workdir: save current directory: %w", err)
	}
	if err := os.Chdir(abs); err != nil {
		_ = restore()
		mu.Unlock()
		return nil, fmt.Errorf("workdir: %w", err)
	}
	return &Scope{dir: abs, restore: restore}, nil
}

// Dir is the absolute directory the scope switched to.
func (s *Scope) Dir() string { return s.dir }

// Close restores the directory that was current when the scope was
// entered. It is safe to call more than once.
func (s *Scope) Close() error {
	s.once.Do(func() {
		defer mu.Unlock()
		if err := s.restore(); err != nil {
			s.err = fmt.Errorf("workdir: restore: %w", err)
		}
	})
	return s.err
}

// Run calls fn with dir as the working directory and restores the previous
// directory afterwards, also when fn fails or panics.
func Run(dir string, fn func() error) (err error) {
	s, err := Enter(dir)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, s.Close())
	}()
	return fn()
}
