// Package paths resolves the filesystem roots the captioner reads from.
//
// Components receive a Roots value instead of reading process-wide
// constants, so tests and servers can point them anywhere.
package paths

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/samcharles93/captioner/internal/validation"
)

const (
	EnvDataDir        = "CAPTIONER_DATA_DIR"
	EnvCheckpointsDir = "CAPTIONER_CHECKPOINTS_DIR"

	// FeaturesFile is the name of the feature file inside a split directory.
	FeaturesFile = "features.json"
)

// Roots are the data and checkpoint directories.
type Roots struct {
	Data        string `yaml:"data_dir" json:"data_dir" validate:"required"`
	Checkpoints string `yaml:"checkpoints_dir" json:"checkpoints_dir" validate:"required"`
}

// Resolve fills unset roots from the environment and then from the
// defaults ~/.data/COCO and <data>/checkpoints. A leading ~ is expanded and
// both roots come back absolute, so a later chdir does not move them.
func Resolve(r Roots) (Roots, error) {
	if strings.TrimSpace(r.Data) == "" {
		r.Data = strings.TrimSpace(os.Getenv(EnvDataDir))
	}
	if r.Data == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Roots{}, err
		}
		r.Data = filepath.Join(home, ".data", "COCO")
	}
	if strings.TrimSpace(r.Checkpoints) == "" {
		r.Checkpoints = strings.TrimSpace(os.Getenv(EnvCheckpointsDir))
	}

	var err error
	if r.Data, err = expandHome(r.Data); err != nil {
		return Roots{}, err
	}
	if r.Checkpoints == "" {
		r.Checkpoints = filepath.Join(r.Data, "checkpoints")
	}
	if r.Checkpoints, err = expandHome(r.Checkpoints); err != nil {
		return Roots{}, err
	}

	if r.Data, err = filepath.Abs(r.Data); err != nil {
		return Roots{}, err
	}
	if r.Checkpoints, err = filepath.Abs(r.Checkpoints); err != nil {
		return Roots{}, err
	}
	if err := validation.Struct(r); err != nil {
		return Roots{}, err
	}
	return r, nil
}

// Features returns the feature file of a dataset split such as "val".
func (r Roots) Features(split string) (string, error) {
	split = strings.TrimSpace(split)
	if split == "" || strings.ContainsAny(split, `/\`) || split == ".." {
		return "", errors.New("split must be a plain directory name")
	}
	return filepath.Join(r.Data, split, FeaturesFile), nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
