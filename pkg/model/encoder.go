package model

import (
	"fmt"

	"github.com/Jeff-AB/ImageCaptioningSchoolProject/pkg/model/attention"
	"github.com/Jeff-AB/ImageCaptioningSchoolProject/pkg/tensor"
)

// EncoderLayer is one transformer block of the meshed encoder:
// memory-augmented self-attention followed by a position-wise feed-forward,
// each with dropout, residual connection and layer normalization.
type EncoderLayer struct {
	SelfAttn *attention.Layer
	FF       *FeedForward
	FFNorm   *LayerNorm
	Dropout  float32
}

// NewEncoderLayer creates one encoder block. Each layer owns its own memory
// bank; banks are never shared across layers.
func NewEncoderLayer(cfg Config) *EncoderLayer {
	attnCfg := attention.Config{
		OutSize:   cfg.OutSize,
		KeySize:   cfg.KeySize,
		ValueSize: cfg.ValueSize,
		NumHeads:  cfg.NumHeads,
		Dropout:   cfg.Dropout,
	}
	mem := attention.NewMemory(attnCfg, cfg.NumMemSlots)
	return &EncoderLayer{
		SelfAttn: attention.NewLayer(mem, NewLayerNorm(cfg.OutSize, 1e-5), cfg.Dropout),
		FF:       NewFeedForward(cfg.OutSize, cfg.FeedForwardSize),
		FFNorm:   NewLayerNorm(cfg.OutSize, 1e-5),
		Dropout:  cfg.Dropout,
	}
}

// Forward runs self-attention and the feed-forward block.
//
// x: (batch, detections, out_size), mask: (batch, 1, 1, detections).
// Output shape matches x.
func (l *EncoderLayer) Forward(x, mask *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	x, err := l.SelfAttn.Forward(x, x, x, mask, training)
	if err != nil {
		return nil, fmt.Errorf("self-attention failed: %w", err)
	}

	ffOut, err := l.FF.Forward(x)
	if err != nil {
		return nil, err
	}
	ffOut = ffOut.Dropout(l.Dropout, training)
	x, err = tensor.Add(x, ffOut)
	if err != nil {
		return nil, fmt.Errorf("failed to add feed-forward residual: %w", err)
	}
	return l.FFNorm.Forward(x)
}

// Parameters returns the layer's learned tensors.
func (l *EncoderLayer) Parameters() []*tensor.Tensor {
	params := l.SelfAttn.Parameters()
	params = append(params, l.FF.Parameters()...)
	return append(params, l.FFNorm.Parameters()...)
}

// Encoder is the meshed-memory encoder. It projects raw region features to
// the model dimension, derives the padding mask, and runs a stack of
// memory-augmented layers, keeping every layer's output so the decoder can
// attend to all of them.
type Encoder struct {
	Config    Config
	InputProj *Linear
	Layers    []*EncoderLayer
	Training  bool
}

// NewEncoder creates a meshed-memory encoder for the given configuration.
func NewEncoder(cfg Config) (*Encoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid encoder config: %w", err)
	}
	e := &Encoder{
		Config:    cfg,
		InputProj: NewLinear(cfg.InSize, cfg.OutSize),
		Layers:    make([]*EncoderLayer, cfg.NumLayers),
		Training:  true,
	}
	for i := range e.Layers {
		e.Layers[i] = NewEncoderLayer(cfg)
	}
	return e, nil
}

// SetTraining toggles dropout for this instance.
func (e *Encoder) SetTraining(training bool) {
	e.Training = training
}

// Encode runs the encoder stack over a (batch, detections, in_size) feature
// tensor. Detections whose feature vector is entirely zero are treated as
// padding.
//
// It returns one (batch, detections, out_size) tensor per layer, in layer
// order, plus the (batch, 1, 1, detections) validity mask. The full set of
// per-layer outputs is what the decoder meshes over.
func (e *Encoder) Encode(features *tensor.Tensor) ([]*tensor.Tensor, *tensor.Tensor, error) {
	if len(features.Shape) != 3 {
		return nil, nil, fmt.Errorf("expected 3D features (batch, detections, in_size), got %dD with shape %v",
			len(features.Shape), features.Shape)
	}
	if features.Shape[2] != e.Config.InSize {
		return nil, nil, fmt.Errorf("feature channels %d don't match configured in_size %d",
			features.Shape[2], e.Config.InSize)
	}

	// The mask comes from the raw features, before projection can smear
	// zero rows.
	mask, err := FeaturePaddingMask(features)
	if err != nil {
		return nil, nil, err
	}

	x, err := e.InputProj.Forward(features)
	if err != nil {
		return nil, nil, fmt.Errorf("input projection failed: %w", err)
	}
	x = x.ReLU().Dropout(e.Config.Dropout, e.Training)

	outputs := make([]*tensor.Tensor, 0, len(e.Layers))
	for i, layer := range e.Layers {
		x, err = layer.Forward(x, mask, e.Training)
		if err != nil {
			return nil, nil, fmt.Errorf("encoder layer %d failed: %w", i, err)
		}
		outputs = append(outputs, x)
	}
	return outputs, mask, nil
}

// Parameters returns all learned tensors of the encoder.
func (e *Encoder) Parameters() []*tensor.Tensor {
	params := e.InputProj.Parameters()
	for _, layer := range e.Layers {
		params = append(params, layer.Parameters()...)
	}
	return params
}

// NumParameters returns the total learned parameter count.
func (e *Encoder) NumParameters() int {
	total := 0
	for _, p := range e.Parameters() {
		total += p.Size()
	}
	return total
}
