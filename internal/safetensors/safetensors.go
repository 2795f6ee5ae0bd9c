// Package safetensors reads and writes float tensors in the safetensors
// format: an 8-byte little-endian header length, a JSON header mapping
// tensor names to dtype, shape and data offsets, then the raw data.
//
// Reading accepts F32, F16 and BF16 tensors and widens them to float32.
// Writing always produces F32.
package safetensors

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"github.com/goccy/go-json"
)

const metadataKey = "__metadata__"

// maxHeaderLen bounds the JSON header so a corrupt length cannot force a
// huge allocation.
const maxHeaderLen = 100 << 20

var (
	ErrTensorNotFound = errors.New("safetensors: tensor not found")
	ErrFormat         = errors.New("safetensors: malformed file")
)

type TensorInfo struct {
	DType string
	Shape []int
	Start int64
	End   int64
}

// Tensor is a named float32 tensor to write.
type Tensor struct {
	Name  string
	Shape []int
	Data  []float32
}

type File struct {
	Path      string
	DataStart int64
	Tensors   map[string]TensorInfo
	Metadata  map[string]string
}

type tensorHeader struct {
	DType       string  `json:"dtype"`
	Shape       []int   `json:"shape"`
	DataOffsets []int64 `json:"data_offsets"`
}

// Open reads the header of path and checks every tensor's offsets against
// the file size. Tensor data is read on demand.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	var prefix [8]byte
	if _, err := io.ReadFull(f, prefix[:]); err != nil {
		return nil, fmt.Errorf("%w: header length: %v", ErrFormat, err)
	}
	n := binary.LittleEndian.Uint64(prefix[:])
	if n > maxHeaderLen || int64(n) > st.Size()-8 {
		return nil, fmt.Errorf("%w: header length %d exceeds file size", ErrFormat, n)
	}
	hdr := make([]byte, n)
	if _, err := io.ReadFull(f, hdr); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrFormat, err)
	}

	out := &File{Path: path, DataStart: 8 + int64(n)}
	if err := out.parseHeader(hdr, st.Size()-out.DataStart); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *File) parseHeader(hdr []byte, dataLen int64) error {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(hdr, &entries); err != nil {
		return fmt.Errorf("%w: header: %v", ErrFormat, err)
	}
	if meta, ok := entries[metadataKey]; ok {
		if err := json.Unmarshal(meta, &f.Metadata); err != nil {
			return fmt.Errorf("%w: metadata: %v", ErrFormat, err)
		}
		delete(entries, metadataKey)
	}

	f.Tensors = make(map[string]TensorInfo, len(entries))
	for name, entry := range entries {
		var h tensorHeader
		if err := json.Unmarshal(entry, &h); err != nil {
			return fmt.Errorf("%w: tensor %s: %v", ErrFormat, name, err)
		}
		if len(h.DataOffsets) != 2 {
			return fmt.Errorf("%w: tensor %s: want 2 data_offsets, got %d", ErrFormat, name, len(h.DataOffsets))
		}
		info := TensorInfo{DType: h.DType, Shape: h.Shape, Start: h.DataOffsets[0], End: h.DataOffsets[1]}
		if info.Start < 0 || info.End < info.Start || info.End > dataLen {
			return fmt.Errorf("%w: tensor %s: offsets [%d, %d) outside data of %d bytes", ErrFormat, name, info.Start, info.End, dataLen)
		}
		f.Tensors[name] = info
	}
	return nil
}

// Info returns the header entry for name.
func (f *File) Info(name string) (TensorInfo, bool) {
	info, ok := f.Tensors[name]
	return info, ok
}

// Names returns the tensor names in sorted order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Tensors))
	for name := range f.Tensors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ReadTensor returns the raw little-endian bytes of name.
func (f *File) ReadTensor(name string) ([]byte, TensorInfo, error) {
	info, ok := f.Info(name)
	if !ok {
		return nil, TensorInfo{}, fmt.Errorf("%w: %s", ErrTensorNotFound, name)
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, TensorInfo{}, err
	}
	defer func() { _ = fh.Close() }()

	raw := make([]byte, info.End-info.Start)
	if _, err := fh.ReadAt(raw, f.DataStart+info.Start); err != nil {
		return nil, TensorInfo{}, fmt.Errorf("safetensors: read %s: %w", name, err)
	}
	return raw, info, nil
}

// ReadFloat32 reads a tensor and widens it to float32.
func (f *File) ReadFloat32(name string) ([]float32, TensorInfo, error) {
	raw, info, err := f.ReadTensor(name)
	if err != nil {
		return nil, info, err
	}
	count, err := numElements(info.Shape)
	if err != nil {
		return nil, info, fmt.Errorf("%w: tensor %s: %v", ErrFormat, name, err)
	}
	var width int
	var decode func([]byte) float32
	switch info.DType {
	case "F32":
		width, decode = 4, func(b []byte) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b)) }
	case "F16":
		width, decode = 2, func(b []byte) float32 { return fp16ToFloat32(binary.LittleEndian.Uint16(b)) }
	case "BF16":
		width, decode = 2, func(b []byte) float32 { return math.Float32frombits(uint32(binary.LittleEndian.Uint16(b)) << 16) }
	default:
		return nil, info, fmt.Errorf("safetensors: tensor %s: unsupported dtype %s", name, info.DType)
	}
	if len(raw) != count*width {
		return nil, info, fmt.Errorf("%w: tensor %s: %d bytes for %d %s values", ErrFormat, name, len(raw), count, info.DType)
	}

	vals := make([]float32, count)
	for i := range vals {
		vals[i] = decode(raw[i*width:])
	}
	return vals, info, nil
}

// Write stores tensors as F32 in path. Tensors are laid out in name order
// and the header is padded to a multiple of 8 bytes.
func Write(path string, tensors []Tensor, metadata map[string]string) error {
	sorted := slices.Clone(tensors)
	slices.SortFunc(sorted, func(a, b Tensor) int { return cmp.Compare(a.Name, b.Name) })

	header := make(map[string]any, len(sorted)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}
	var offset int64
	for i, t := range sorted {
		if t.Name == "" || t.Name == metadataKey {
			return fmt.Errorf("safetensors: invalid tensor name %q", t.Name)
		}
		if i > 0 && sorted[i-1].Name == t.Name {
			return fmt.Errorf("safetensors: duplicate tensor %q", t.Name)
		}
		n, err := numElements(t.Shape)
		if err != nil {
			return fmt.Errorf("safetensors: tensor %s: %w", t.Name, err)
		}
		if n != len(t.Data) {
			return fmt.Errorf("safetensors: tensor %s: shape %v holds %d values, got %d", t.Name, t.Shape, n, len(t.Data))
		}
		end := offset + int64(n)*4
		header[t.Name] = tensorHeader{DType: "F32", Shape: t.Shape, DataOffsets: []int64{offset, end}}
		offset = end
	}

	headerBytes, err := json.Marshal(header)
	if err != nil {
		return err
	}
	if pad := len(headerBytes) % 8; pad != 0 {
		headerBytes = append(headerBytes, bytes.Repeat([]byte{' '}, 8-pad)...)
	}

	buf := make([]byte, 0, 8+len(headerBytes)+int(offset))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(headerBytes)))
	buf = append(buf, headerBytes...)
	for _, t := range sorted {
		for _, v := range t.Data {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
	}
	return os.WriteFile(path, buf, 0o644)
}

// numElements multiplies out shape, rejecting empty shapes, non-positive
// dims and overflow.
func numElements(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, errors.New("empty shape")
	}
	count := 1
	for _, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("dimension %d is not positive", d)
		}
		if count > math.MaxInt/d {
			return 0, fmt.Errorf("shape %v overflows int", shape)
		}
		count *= d
	}
	return count, nil
}

// fp16ToFloat32 decodes an IEEE 754 half. Every half is exactly
// representable as a float32.
func fp16ToFloat32(h uint16) float32 {
	neg := h&0x8000 != 0
	exp := int(h>>10) & 0x1f
	frac := float64(h & 0x3ff)

	var v float64
	switch exp {
	case 0:
		v = math.Ldexp(frac, -24)
	case 0x1f:
		if frac != 0 {
			return float32(math.NaN())
		}
		v = math.Inf(1)
	default:
		v = math.Ldexp(1024+frac, exp-25)
	}
	if neg {
		v = -v
	}
	return float32(v)
}
