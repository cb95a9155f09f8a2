package tensor

import (
	"fmt"
	"math"
)

// MaskValue is the fill value for invalid attention positions.
// Softmax drives entries at this value to effectively zero probability.
const MaskValue = float32(-1e9)

// Matmul multiplies the last two dimensions of a and b.
// Supported combinations:
//   - (m, n) @ (n, p) and equal-rank batched tensors with matching batch dims
//   - (batch..., m, n) @ (n, p): the 2D operand is broadcast over the batch
//   - (m, n) @ (batch..., n, p): likewise
func Matmul(a, b *Tensor) (*Tensor, error) {
	if len(a.Shape) < 2 || len(b.Shape) < 2 {
		return nil, fmt.Errorf("matmul requires at least 2D tensors, got %dD and %dD",
			len(a.Shape), len(b.Shape))
	}

	m := a.Shape[len(a.Shape)-2]
	n := a.Shape[len(a.Shape)-1]
	p := b.Shape[len(b.Shape)-1]
	if b.Shape[len(b.Shape)-2] != n {
		return nil, fmt.Errorf("incompatible shapes for matmul: %v and %v (inner dimensions %d and %d)",
			a.Shape, b.Shape, n, b.Shape[len(b.Shape)-2])
	}

	switch {
	case len(a.Shape) > 2 && len(b.Shape) == 2:
		batch := len(a.Data) / (m * n)
		resultShape := append(copyShape(a.Shape[:len(a.Shape)-2]), m, p)
		result := New(resultShape...)
		for bi := 0; bi < batch; bi++ {
			matmul2D(a.Data[bi*m*n:], b.Data, result.Data[bi*m*p:], m, n, p)
		}
		return result, nil

	case len(a.Shape) == 2 && len(b.Shape) > 2:
		batch := len(b.Data) / (n * p)
		resultShape := append(copyShape(b.Shape[:len(b.Shape)-2]), m, p)
		result := New(resultShape...)
		for bi := 0; bi < batch; bi++ {
			matmul2D(a.Data, b.Data[bi*n*p:], result.Data[bi*m*p:], m, n, p)
		}
		return result, nil

	case len(a.Shape) == len(b.Shape):
		for i := 0; i < len(a.Shape)-2; i++ {
			if a.Shape[i] != b.Shape[i] {
				return nil, fmt.Errorf("incompatible batch dimensions for matmul: %v and %v", a.Shape, b.Shape)
			}
		}
		batch := len(a.Data) / (m * n)
		resultShape := append(copyShape(a.Shape[:len(a.Shape)-2]), m, p)
		result := New(resultShape...)
		for bi := 0; bi < batch; bi++ {
			matmul2D(a.Data[bi*m*n:], b.Data[bi*n*p:], result.Data[bi*m*p:], m, n, p)
		}
		return result, nil
	}

	return nil, fmt.Errorf("unsupported matmul ranks: %v and %v", a.Shape, b.Shape)
}

// matmul2D computes dst = a @ b for row-major (m,n) and (n,p) blocks.
func matmul2D(a, b, dst []float32, m, n, p int) {
	for i := 0; i < m; i++ {
		row := dst[i*p : (i+1)*p]
		for k := range row {
			row[k] = 0
		}
		for j := 0; j < n; j++ {
			av := a[i*n+j]
			if av == 0 {
				continue
			}
			brow := b[j*p : (j+1)*p]
			for k := 0; k < p; k++ {
				row[k] += av * brow[k]
			}
		}
	}
}

// Scale multiplies all elements by a scalar.
func (t *Tensor) Scale(s float32) *Tensor {
	result := New(t.Shape...)
	for i := range t.Data {
		result.Data[i] = t.Data[i] * s
	}
	return result
}

// Softmax normalizes along the given dimension with max-subtraction for
// numerical stability. A fully-masked row comes out uniform, which is the
// accepted degenerate case for padding-only inputs.
func Softmax(t *Tensor, dim int) (*Tensor, error) {
	if dim < 0 || dim >= len(t.Shape) {
		return nil, fmt.Errorf("invalid softmax dimension %d for tensor with %d dimensions", dim, len(t.Shape))
	}

	size := t.Shape[dim]
	inner := 1
	for i := dim + 1; i < len(t.Shape); i++ {
		inner *= t.Shape[i]
	}
	outer := len(t.Data) / (size * inner)

	result := New(t.Shape...)
	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			base := o*size*inner + in

			maxVal := float32(math.Inf(-1))
			for k := 0; k < size; k++ {
				if v := t.Data[base+k*inner]; v > maxVal {
					maxVal = v
				}
			}

			sum := float32(0)
			for k := 0; k < size; k++ {
				e := float32(math.Exp(float64(t.Data[base+k*inner] - maxVal)))
				result.Data[base+k*inner] = e
				sum += e
			}
			for k := 0; k < size; k++ {
				result.Data[base+k*inner] /= sum
			}
		}
	}
	return result, nil
}

// SoftmaxLast applies softmax along the last dimension.
func SoftmaxLast(t *Tensor) *Tensor {
	result, err := Softmax(t, len(t.Shape)-1)
	if err != nil {
		panic(err)
	}
	return result
}

// Add performs element-wise addition with trailing-dimension broadcasting.
func Add(a, b *Tensor) (*Tensor, error) {
	return elementWise(a, b, func(x, y float32) float32 { return x + y })
}

// Mul performs element-wise multiplication with trailing-dimension broadcasting.
func Mul(a, b *Tensor) (*Tensor, error) {
	return elementWise(a, b, func(x, y float32) float32 { return x * y })
}

func elementWise(a, b *Tensor, op func(float32, float32) float32) (*Tensor, error) {
	outShape, err := broadcastShapes(a.Shape, b.Shape)
	if err != nil {
		return nil, fmt.Errorf("cannot broadcast shapes %v and %v: %w", a.Shape, b.Shape, err)
	}

	result := New(outShape...)
	indices := make([]int, len(outShape))
	var walk func(dim int)
	walk = func(dim int) {
		if dim == len(outShape) {
			av := a.Data[broadcastIndex(indices, a.Shape)]
			bv := b.Data[broadcastIndex(indices, b.Shape)]
			result.Data[result.FlatIndex(indices)] = op(av, bv)
			return
		}
		for i := 0; i < outShape[dim]; i++ {
			indices[dim] = i
			walk(dim + 1)
		}
	}
	walk(0)
	return result, nil
}

// broadcastShapes aligns shapes from the trailing dimension; each pair of
// dimensions must match or one of them must be 1.
func broadcastShapes(a, b []int) ([]int, error) {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	result := make([]int, maxLen)
	for i := 0; i < maxLen; i++ {
		dimA, dimB := 1, 1
		if i < len(a) {
			dimA = a[len(a)-1-i]
		}
		if i < len(b) {
			dimB = b[len(b)-1-i]
		}
		if dimA != dimB && dimA != 1 && dimB != 1 {
			return nil, fmt.Errorf("incompatible dimensions %d and %d", dimA, dimB)
		}
		if dimA > dimB {
			result[maxLen-1-i] = dimA
		} else {
			result[maxLen-1-i] = dimB
		}
	}
	return result, nil
}

// broadcastIndex maps output indices to a flat index in a tensor whose shape
// was broadcast to the output shape.
func broadcastIndex(outIndices []int, inShape []int) int {
	diff := len(outIndices) - len(inShape)
	idx := 0
	stride := 1
	for i := len(inShape) - 1; i >= 0; i-- {
		pos := outIndices[i+diff]
		if inShape[i] == 1 {
			pos = 0
		}
		idx += pos * stride
		stride *= inShape[i]
	}
	return idx
}

// Concatenate joins tensors along the given dimension. All other dimensions
// must match exactly.
func Concatenate(tensors []*Tensor, dim int) (*Tensor, error) {
	if len(tensors) == 0 {
		return nil, fmt.Errorf("cannot concatenate an empty list of tensors")
	}
	rank := len(tensors[0].Shape)
	if dim < 0 || dim >= rank {
		return nil, fmt.Errorf("invalid concatenation dimension %d for %dD tensors", dim, rank)
	}

	outShape := copyShape(tensors[0].Shape)
	for i := 1; i < len(tensors); i++ {
		t := tensors[i]
		if len(t.Shape) != rank {
			return nil, fmt.Errorf("tensor %d has %d dimensions, expected %d", i, len(t.Shape), rank)
		}
		for j := range t.Shape {
			if j == dim {
				continue
			}
			if t.Shape[j] != outShape[j] {
				return nil, fmt.Errorf("tensor %d has shape %v, incompatible with %v at dimension %d",
					i, t.Shape, tensors[0].Shape, j)
			}
		}
		outShape[dim] += t.Shape[dim]
	}

	result := New(outShape...)

	outer := 1
	for i := 0; i < dim; i++ {
		outer *= outShape[i]
	}
	inner := 1
	for i := dim + 1; i < rank; i++ {
		inner *= outShape[i]
	}

	outRow := outShape[dim] * inner
	for o := 0; o < outer; o++ {
		offset := o * outRow
		for _, t := range tensors {
			row := t.Shape[dim] * inner
			copy(result.Data[offset:offset+row], t.Data[o*row:(o+1)*row])
			offset += row
		}
	}
	return result, nil
}

// MaskedFill replaces entries of t where mask is zero with MaskValue.
// The mask marks valid positions with nonzero values and must broadcast-align
// with t from the trailing dimension.
func MaskedFill(t, mask *Tensor) (*Tensor, error) {
	if _, err := broadcastShapes(t.Shape, mask.Shape); err != nil {
		return nil, fmt.Errorf("mask shape %v does not broadcast to %v: %w", mask.Shape, t.Shape, err)
	}

	result := New(t.Shape...)
	indices := make([]int, len(t.Shape))
	var walk func(dim int)
	walk = func(dim int) {
		if dim == len(t.Shape) {
			idx := t.FlatIndex(indices)
			if mask.Data[broadcastIndex(indices, mask.Shape)] == 0 {
				result.Data[idx] = MaskValue
			} else {
				result.Data[idx] = t.Data[idx]
			}
			return
		}
		for i := 0; i < t.Shape[dim]; i++ {
			indices[dim] = i
			walk(dim + 1)
		}
	}
	walk(0)
	return result, nil
}

// Ones creates a tensor of the given shape filled with ones.
func Ones(shape ...int) *Tensor {
	t := New(shape...)
	for i := range t.Data {
		t.Data[i] = 1
	}
	return t
}
