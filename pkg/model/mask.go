package model

import (
	"fmt"

	"github.com/Jeff-AB/ImageCaptioningSchoolProject/pkg/tensor"
)

// Masks use 1 for valid positions and 0 for invalid ones. Attention fills
// invalid score positions with a large negative value before softmax, so they
// receive effectively zero probability.

// CausalMask builds the (1, 1, maxLen, maxLen) lower-triangular mask that
// prevents a position from attending to later positions. It depends only on
// maxLen, so the decoder constructs it once.
func CausalMask(maxLen int) *tensor.Tensor {
	mask := tensor.New(1, 1, maxLen, maxLen)
	for i := 0; i < maxLen; i++ {
		for j := 0; j <= i; j++ {
			mask.Data[i*maxLen+j] = 1
		}
	}
	return mask
}

// FeaturePaddingMask derives the (batch, 1, 1, detections) validity mask
// from a (batch, detections, channels) feature tensor. A detection is valid
// iff at least one channel is nonzero; all-zero rows are padding.
func FeaturePaddingMask(features *tensor.Tensor) (*tensor.Tensor, error) {
	if len(features.Shape) != 3 {
		return nil, fmt.Errorf("expected 3D features (batch, detections, channels), got %dD with shape %v",
			len(features.Shape), features.Shape)
	}
	batch, detections, channels := features.Shape[0], features.Shape[1], features.Shape[2]

	mask := tensor.New(batch, 1, 1, detections)
	for b := 0; b < batch; b++ {
		for d := 0; d < detections; d++ {
			offset := (b*detections + d) * channels
			for c := 0; c < channels; c++ {
				if features.Data[offset+c] != 0 {
					mask.Data[b*detections+d] = 1
					break
				}
			}
		}
	}
	return mask, nil
}

// TokenPaddingMask derives the (batch, 1, 1, seq) validity mask from a
// (batch, seq) token tensor: positions holding padToken are invalid.
func TokenPaddingMask(tokens *tensor.Tensor, padToken int) (*tensor.Tensor, error) {
	if len(tokens.Shape) != 2 {
		return nil, fmt.Errorf("expected 2D tokens (batch, seq), got %dD with shape %v",
			len(tokens.Shape), tokens.Shape)
	}
	mask := tensor.New(tokens.Shape[0], 1, 1, tokens.Shape[1])
	for i, v := range tokens.Data {
		if int(v) != padToken {
			mask.Data[i] = 1
		}
	}
	return mask, nil
}

// CombineMasks intersects validity masks (logical AND) with broadcasting,
// e.g. a (1,1,seq,seq) causal mask with a (batch,1,1,seq) padding mask
// yields (batch,1,seq,seq).
func CombineMasks(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.Mul(a, b)
}
