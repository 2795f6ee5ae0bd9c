package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/samcharles93/captioner/internal/decoder"
	"github.com/samcharles93/captioner/internal/safetensors"
	"github.com/samcharles93/captioner/internal/tensor"
)

const (
	WeightsJSON        = "weights.json"
	WeightsSafetensors = "weights.safetensors"
)

// Tensor names used in safetensors weight files. Matrices are [rows, cols].
const (
	tensorProject     = "project.weight"
	tensorProjectBias = "project.bias"
	tensorEmbed       = "embed.weight"
	tensorRecur       = "recur.weight"
	tensorHiddenBias  = "recur.bias"
	tensorOut         = "out.weight"
	tensorOutBias     = "out.bias"
)

func isSafetensors(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".safetensors")
}

func loadWeights(path string) (decoder.Weights, error) {
	if isSafetensors(path) {
		return loadSafetensorsWeights(path)
	}
	var w decoder.Weights
	f, err := os.Open(path)
	if err != nil {
		return w, err
	}
	defer func() { _ = f.Close() }()
	if err := json.NewDecoder(f).Decode(&w); err != nil {
		return w, fmt.Errorf("parse %s: %w", path, err)
	}
	return w, nil
}

func saveWeights(path string, w *decoder.Weights) error {
	if isSafetensors(path) {
		return saveSafetensorsWeights(path, w)
	}
	raw, err := json.Marshal(w)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func loadSafetensorsWeights(path string) (decoder.Weights, error) {
	var w decoder.Weights
	sf, err := safetensors.Open(path)
	if err != nil {
		return w, err
	}

	mats := []struct {
		name string
		dst  *tensor.Mat
	}{
		{tensorProject, &w.Project},
		{tensorEmbed, &w.Embed},
		{tensorRecur, &w.Recur},
		{tensorOut, &w.Out},
	}
	for _, m := range mats {
		data, info, err := sf.ReadFloat32(m.name)
		if err != nil {
			return w, err
		}
		if len(info.Shape) != 2 {
			return w, fmt.Errorf("%s: expected a matrix, got shape %v", m.name, info.Shape)
		}
		if *m.dst, err = tensor.NewMatFromData(info.Shape[0], info.Shape[1], data); err != nil {
			return w, fmt.Errorf("%s: %w", m.name, err)
		}
	}

	vecs := []struct {
		name string
		dst  *[]float32
	}{
		{tensorProjectBias, &w.ProjectBias},
		{tensorHiddenBias, &w.HiddenBias},
		{tensorOutBias, &w.OutBias},
	}
	for _, v := range vecs {
		data, info, err := sf.ReadFloat32(v.name)
		if err != nil {
			return w, err
		}
		if len(info.Shape) != 1 {
			return w, fmt.Errorf("%s: expected a vector, got shape %v", v.name, info.Shape)
		}
		*v.dst = data
	}
	return w, nil
}

func saveSafetensorsWeights(path string, w *decoder.Weights) error {
	mat := func(name string, m tensor.Mat) safetensors.Tensor {
		return safetensors.Tensor{Name: name, Shape: []int{m.R, m.C}, Data: m.Data}
	}
	vec := func(name string, v []float32) safetensors.Tensor {
		return safetensors.Tensor{Name: name, Shape: []int{len(v)}, Data: v}
	}
	return safetensors.Write(path, []safetensors.Tensor{
		mat(tensorProject, w.Project),
		vec(tensorProjectBias, w.ProjectBias),
		mat(tensorEmbed, w.Embed),
		mat(tensorRecur, w.Recur),
		vec(tensorHiddenBias, w.HiddenBias),
		mat(tensorOut, w.Out),
		vec(tensorOutBias, w.OutBias),
	}, map[string]string{"format": "captioner-decoder"})
}
