package model

import (
	"fmt"

	"github.com/Jeff-AB/ImageCaptioningSchoolProject/pkg/tensor"
)

// FeedForward is the position-wise feed-forward network of a transformer
// layer: two linear maps with a ReLU between, same input and output width.
// Dropout, residual and normalization are handled by the owning layer.
type FeedForward struct {
	FC1 *Linear // (out_size, ff_size)
	FC2 *Linear // (ff_size, out_size)
}

// NewFeedForward creates the feed-forward network for the given widths.
func NewFeedForward(outSize, ffSize int) *FeedForward {
	return &FeedForward{
		FC1: NewLinear(outSize, ffSize),
		FC2: NewLinear(ffSize, outSize),
	}
}

// Forward applies FC2(ReLU(FC1(x))). Input and output shape
// (batch, seq, out_size).
func (ff *FeedForward) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	hidden, err := ff.FC1.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("feed-forward expansion failed: %w", err)
	}
	out, err := ff.FC2.Forward(hidden.ReLU())
	if err != nil {
		return nil, fmt.Errorf("feed-forward contraction failed: %w", err)
	}
	return out, nil
}

// Parameters returns the weights of both linear maps.
func (ff *FeedForward) Parameters() []*tensor.Tensor {
	return append(ff.FC1.Parameters(), ff.FC2.Parameters()...)
}
