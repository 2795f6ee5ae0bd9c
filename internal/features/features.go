// Package features loads pre-extracted image feature vectors.
//
// Feature extraction itself happens elsewhere; this package only reads its
// output. A file holds either a bare vector, one object, or an array of
// objects:
//
//	[0.12, -0.5, ...]
//	{"image_id": "000000397133", "features": [0.12, -0.5, ...]}
//	[{"image_id": "a", "features": [...]}, {"image_id": "b", "features": [...]}]
package features

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
)

var ErrEmpty = errors.New("features: no feature vectors found")

// Image is one feature vector and the image it was extracted from.
type Image struct {
	ID       string    `json:"image_id"`
	Features []float32 `json:"features"`
}

// Load reads every feature vector in path. A bare vector gets the file name,
// without extension, as its ID.
func Load(path string) ([]Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Parse(raw, id)
}

// Parse decodes the formats accepted by Load. defaultID names a bare vector.
func Parse(raw []byte, defaultID string) ([]Image, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, ErrEmpty
	}

	var images []Image
	switch raw[0] {
	case '{':
		var img Image
		if err := json.Unmarshal(raw, &img); err != nil {
			return nil, fmt.Errorf("parse features json: %w", err)
		}
		images = []Image{img}
	case '[':
		var vec []float32
		if err := json.Unmarshal(raw, &vec); err == nil {
			images = []Image{{ID: defaultID, Features: vec}}
			break
		}
		if err := json.Unmarshal(raw, &images); err != nil {
			return nil, fmt.Errorf("parse features json: %w", err)
		}
	default:
		return nil, fmt.Errorf("features json must be array or object")
	}

	if len(images) == 0 {
		return nil, ErrEmpty
	}
	for i, img := range images {
		if len(img.Features) == 0 {
			return nil, fmt.Errorf("features: image %d (%q) has an empty vector", i, img.ID)
		}
		if img.ID == "" {
			images[i].ID = fmt.Sprintf("%s-%d", defaultID, i)
		}
	}
	return images, nil
}
