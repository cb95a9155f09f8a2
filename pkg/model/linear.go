package model

import (
	"fmt"

	"github.com/Jeff-AB/ImageCaptioningSchoolProject/pkg/tensor"
)

// Linear is a learned affine map applied to the last dimension:
// y = x @ W + B.
type Linear struct {
	W *tensor.Tensor // (in, out)
	B *tensor.Tensor // (out)
}

// NewLinear creates a linear layer with Xavier-uniform weights and zero bias.
func NewLinear(in, out int) *Linear {
	l := &Linear{
		W: tensor.New(in, out),
		B: tensor.New(out),
	}
	l.W.InitXavierUniform()
	return l
}

// Forward applies the affine map. Input shape (..., in), output (..., out).
func (l *Linear) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.Shape[len(x.Shape)-1] != l.W.Shape[0] {
		return nil, fmt.Errorf("input dimension %d doesn't match linear input dimension %d",
			x.Shape[len(x.Shape)-1], l.W.Shape[0])
	}
	out, err := tensor.Matmul(x, l.W)
	if err != nil {
		return nil, fmt.Errorf("linear projection failed: %w", err)
	}
	return tensor.Add(out, l.B)
}

// Parameters returns the weight and bias tensors.
func (l *Linear) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{l.W, l.B}
}
