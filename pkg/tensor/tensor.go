// Package tensor provides the float32 tensor operations used by the
// meshed-memory captioning model. Storage is a flat slice with precomputed
// strides; all operations allocate their result rather than mutating inputs.
package tensor

import (
	"fmt"
	"math"
	"strings"
)

// Tensor is a multi-dimensional array of float32 values.
type Tensor struct {
	Data    []float32 // Flattened row-major storage
	Shape   []int     // Dimensions, e.g. [batch, heads, seq, dim]
	Strides []int     // Precomputed strides for indexing
}

func computeStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func copyShape(shape []int) []int {
	out := make([]int, len(shape))
	copy(out, shape)
	return out
}

// New creates a tensor of the given shape, initialized to zeros.
func New(shape ...int) *Tensor {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	return &Tensor{
		Data:    make([]float32, size),
		Shape:   copyShape(shape),
		Strides: computeStrides(shape),
	}
}

// FromSlice creates a tensor that copies the given data.
// Returns an error if the data size does not match the shape.
func FromSlice(data []float32, shape ...int) (*Tensor, error) {
	expected := 1
	for _, dim := range shape {
		if dim < 0 {
			return nil, fmt.Errorf("invalid dimension %d in shape %v", dim, shape)
		}
		expected *= dim
	}
	if len(data) != expected {
		return nil, fmt.Errorf("data size %d does not match shape %v (expected %d elements)",
			len(data), shape, expected)
	}
	dataCopy := make([]float32, len(data))
	copy(dataCopy, data)
	return &Tensor{
		Data:    dataCopy,
		Shape:   copyShape(shape),
		Strides: computeStrides(shape),
	}, nil
}

// Size returns the total number of elements.
func (t *Tensor) Size() int {
	size := 1
	for _, dim := range t.Shape {
		size *= dim
	}
	return size
}

// NumDims returns the rank of the tensor.
func (t *Tensor) NumDims() int {
	return len(t.Shape)
}

// FlatIndex converts multi-dimensional indices to a flat index.
// Out-of-range indices are a programmer error and panic.
func (t *Tensor) FlatIndex(indices []int) int {
	if len(indices) != len(t.Shape) {
		panic(fmt.Sprintf("indices length %d does not match shape dimensions %d",
			len(indices), len(t.Shape)))
	}
	idx := 0
	for i := range t.Shape {
		if indices[i] < 0 || indices[i] >= t.Shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d with size %d",
				indices[i], i, t.Shape[i]))
		}
		idx += indices[i] * t.Strides[i]
	}
	return idx
}

// At retrieves the value at the specified indices.
func (t *Tensor) At(indices ...int) float32 {
	return t.Data[t.FlatIndex(indices)]
}

// SetAt stores a value at the specified indices.
func (t *Tensor) SetAt(value float32, indices ...int) {
	t.Data[t.FlatIndex(indices)] = value
}

// Clone creates a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	out := New(t.Shape...)
	copy(out.Data, t.Data)
	return out
}

// View returns a tensor with a different shape sharing the same data.
// Returns an error if the total size does not match.
func (t *Tensor) View(shape ...int) (*Tensor, error) {
	size := 1
	for _, dim := range shape {
		if dim < 0 {
			return nil, fmt.Errorf("invalid dimension %d in shape %v", dim, shape)
		}
		size *= dim
	}
	if size != len(t.Data) {
		return nil, fmt.Errorf("cannot view tensor of size %d as shape %v (total size %d)",
			len(t.Data), shape, size)
	}
	return &Tensor{
		Data:    t.Data,
		Shape:   copyShape(shape),
		Strides: computeStrides(shape),
	}, nil
}

// Reshape is View for shapes known to be compatible; size mismatch panics.
func (t *Tensor) Reshape(shape ...int) *Tensor {
	out, err := t.View(shape...)
	if err != nil {
		panic(err)
	}
	return out
}

// Transpose exchanges two dimensions, copying into a new contiguous tensor.
func (t *Tensor) Transpose(dim1, dim2 int) (*Tensor, error) {
	if dim1 < 0 || dim1 >= len(t.Shape) || dim2 < 0 || dim2 >= len(t.Shape) {
		return nil, fmt.Errorf("invalid transpose dimensions %d and %d for tensor with %d dimensions",
			dim1, dim2, len(t.Shape))
	}
	if dim1 == dim2 {
		return t.Clone(), nil
	}

	newShape := copyShape(t.Shape)
	newShape[dim1], newShape[dim2] = newShape[dim2], newShape[dim1]
	result := New(newShape...)

	indices := make([]int, len(t.Shape))
	var walk func(pos int)
	walk = func(pos int) {
		if pos == len(t.Shape) {
			srcIdx := 0
			for i := range t.Shape {
				srcIdx += indices[i] * t.Strides[i]
			}
			dst := make([]int, len(indices))
			copy(dst, indices)
			dst[dim1], dst[dim2] = dst[dim2], dst[dim1]
			dstIdx := 0
			for i := range dst {
				dstIdx += dst[i] * result.Strides[i]
			}
			result.Data[dstIdx] = t.Data[srcIdx]
			return
		}
		for i := 0; i < t.Shape[pos]; i++ {
			indices[pos] = i
			walk(pos + 1)
		}
	}
	walk(0)
	return result, nil
}

// ShapeEquals reports whether two tensors have identical shapes.
func (t *Tensor) ShapeEquals(other *Tensor) bool {
	if len(t.Shape) != len(other.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != other.Shape[i] {
			return false
		}
	}
	return true
}

// Equals reports whether two tensors have the same shape and values equal
// within the given tolerance.
func (t *Tensor) Equals(other *Tensor, tolerance float32) bool {
	if !t.ShapeEquals(other) {
		return false
	}
	for i := range t.Data {
		if math.Abs(float64(t.Data[i]-other.Data[i])) > float64(tolerance) {
			return false
		}
	}
	return true
}

// String returns a compact representation showing shape and leading values.
func (t *Tensor) String() string {
	var sb strings.Builder
	sb.WriteString("Tensor[")
	for i, dim := range t.Shape {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%d", dim)
	}
	sb.WriteString("]: [")
	limit := len(t.Data)
	if limit > 8 {
		limit = 8
	}
	for i := 0; i < limit; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%g", t.Data[i])
	}
	if len(t.Data) > limit {
		sb.WriteString(", ...")
	}
	sb.WriteString("]")
	return sb.String()
}
