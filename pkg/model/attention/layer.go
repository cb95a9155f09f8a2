package attention

import (
	"fmt"

	"github.com/Jeff-AB/ImageCaptioningSchoolProject/pkg/tensor"
)

// Mechanism is implemented by Attention and MemoryAttention.
type Mechanism interface {
	Forward(queries, keys, values, mask *tensor.Tensor, training bool) (*tensor.Tensor, error)
	Parameters() []*tensor.Tensor
}

// Normalizer applies layer normalization. Satisfied by model.LayerNorm;
// declared here so this package does not depend on the model package.
type Normalizer interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
	Parameters() []*tensor.Tensor
}

// Layer wraps an attention mechanism with dropout, a residual connection
// from the queries, and post-norm layer normalization:
//
//	out = Norm(queries + Dropout(Mech(queries, keys, values, mask)))
type Layer struct {
	Mech    Mechanism
	Norm    Normalizer
	Dropout float32
}

// NewLayer creates the residual attention wrapper.
func NewLayer(mech Mechanism, norm Normalizer, dropout float32) *Layer {
	return &Layer{Mech: mech, Norm: norm, Dropout: dropout}
}

// Forward runs the wrapped mechanism followed by dropout, residual add and
// normalization. Shapes match Mechanism.Forward.
func (l *Layer) Forward(queries, keys, values, mask *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	out, err := l.Mech.Forward(queries, keys, values, mask, training)
	if err != nil {
		return nil, err
	}
	out = out.Dropout(l.Dropout, training)

	out, err = tensor.Add(queries, out)
	if err != nil {
		return nil, fmt.Errorf("failed to add attention residual: %w", err)
	}
	return l.Norm.Forward(out)
}

// Parameters returns the mechanism and normalization parameters.
func (l *Layer) Parameters() []*tensor.Tensor {
	return append(l.Mech.Parameters(), l.Norm.Parameters()...)
}
