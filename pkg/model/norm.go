package model

import (
	"fmt"
	"math"

	"github.com/Jeff-AB/ImageCaptioningSchoolProject/pkg/tensor"
)

// LayerNorm normalizes the last dimension to zero mean and unit variance and
// applies a learned scale (gamma) and shift (beta).
type LayerNorm struct {
	Scale *tensor.Tensor // (dim,) gamma
	Shift *tensor.Tensor // (dim,) beta
	Eps   float32
}

// NewLayerNorm creates a LayerNorm over the given dimension with scale 1 and
// shift 0.
func NewLayerNorm(dim int, eps float32) *LayerNorm {
	scale := tensor.Ones(dim)
	shift := tensor.New(dim)
	return &LayerNorm{Scale: scale, Shift: shift, Eps: eps}
}

// Forward applies layer normalization. Any input shape whose last dimension
// matches the layer's dimension is accepted; each position is normalized
// independently.
func (ln *LayerNorm) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) == 0 {
		return nil, fmt.Errorf("cannot apply LayerNorm to a 0D tensor")
	}
	dim := x.Shape[len(x.Shape)-1]
	if dim != len(ln.Scale.Data) {
		return nil, fmt.Errorf("input last dimension %d doesn't match LayerNorm dimension %d",
			dim, len(ln.Scale.Data))
	}

	result := tensor.New(x.Shape...)
	rows := len(x.Data) / dim
	for r := 0; r < rows; r++ {
		offset := r * dim

		mean := float32(0)
		for i := 0; i < dim; i++ {
			mean += x.Data[offset+i]
		}
		mean /= float32(dim)

		variance := float32(0)
		for i := 0; i < dim; i++ {
			diff := x.Data[offset+i] - mean
			variance += diff * diff
		}
		variance /= float32(dim)

		invStd := float32(1.0 / math.Sqrt(float64(variance+ln.Eps)))
		for i := 0; i < dim; i++ {
			normed := (x.Data[offset+i] - mean) * invStd
			result.Data[offset+i] = normed*ln.Scale.Data[i] + ln.Shift.Data[i]
		}
	}
	return result, nil
}

// Parameters returns the scale and shift tensors.
func (ln *LayerNorm) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{ln.Scale, ln.Shift}
}
