package model

import (
	"fmt"
	"math"

	"github.com/Jeff-AB/ImageCaptioningSchoolProject/pkg/model/attention"
	"github.com/Jeff-AB/ImageCaptioningSchoolProject/pkg/tensor"
)

// DecoderLayer is one block of the meshed decoder:
//
//  1. memory-augmented self-attention over the token positions, causally
//     masked
//  2. meshed cross-attention: one plain attention pass per encoder layer
//     output, each contribution weighted by a learned sigmoid gate, summed
//     and scaled by 1/sqrt(num_encoder_layers)
//  3. position-wise feed-forward
//
// Each stage applies dropout, a residual connection and layer normalization.
type DecoderLayer struct {
	SelfAttn   *attention.Layer
	CrossAttn  *attention.Attention
	CrossGates []*Linear // one gate per encoder layer, (2*out_size, out_size)
	CrossNorm  *LayerNorm
	FF         *FeedForward
	FFNorm     *LayerNorm
	Dropout    float32

	meshScale float32
}

// NewDecoderLayer creates one decoder block meshing over
// cfg.NumEncoderLayers encoder outputs.
func NewDecoderLayer(cfg Config) *DecoderLayer {
	attnCfg := attention.Config{
		OutSize:   cfg.OutSize,
		KeySize:   cfg.KeySize,
		ValueSize: cfg.ValueSize,
		NumHeads:  cfg.NumHeads,
		Dropout:   cfg.Dropout,
	}
	gates := make([]*Linear, cfg.NumEncoderLayers)
	for i := range gates {
		gates[i] = NewLinear(2*cfg.OutSize, cfg.OutSize)
	}
	return &DecoderLayer{
		SelfAttn:   attention.NewLayer(attention.NewMemory(attnCfg, cfg.NumMemSlots), NewLayerNorm(cfg.OutSize, 1e-5), cfg.Dropout),
		CrossAttn:  attention.New(attnCfg),
		CrossGates: gates,
		CrossNorm:  NewLayerNorm(cfg.OutSize, 1e-5),
		FF:         NewFeedForward(cfg.OutSize, cfg.FeedForwardSize),
		FFNorm:     NewLayerNorm(cfg.OutSize, 1e-5),
		Dropout:    cfg.Dropout,
		meshScale:  float32(1.0 / math.Sqrt(float64(cfg.NumEncoderLayers))),
	}
}

// Forward runs one decoder block.
//
//   - y: (batch, seq, out_size) token representations
//   - encOutputs: ordered per-layer encoder outputs, each
//     (batch, detections, out_size); consumed read-only
//   - encMask: (batch, 1, 1, detections) encoder validity mask
//   - selfMask: combined causal and padding mask broadcastable to
//     (batch, heads, seq, seq)
func (l *DecoderLayer) Forward(y *tensor.Tensor, encOutputs []*tensor.Tensor, encMask, selfMask *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	if len(encOutputs) != len(l.CrossGates) {
		return nil, fmt.Errorf("decoder layer meshes over %d encoder layers but got %d outputs",
			len(l.CrossGates), len(encOutputs))
	}

	y, err := l.SelfAttn.Forward(y, y, y, selfMask, training)
	if err != nil {
		return nil, fmt.Errorf("self-attention failed: %w", err)
	}

	meshed, err := l.mesh(y, encOutputs, encMask, training)
	if err != nil {
		return nil, err
	}
	meshed = meshed.Dropout(l.Dropout, training)
	y, err = tensor.Add(y, meshed)
	if err != nil {
		return nil, fmt.Errorf("failed to add cross-attention residual: %w", err)
	}
	y, err = l.CrossNorm.Forward(y)
	if err != nil {
		return nil, err
	}

	ffOut, err := l.FF.Forward(y)
	if err != nil {
		return nil, err
	}
	ffOut = ffOut.Dropout(l.Dropout, training)
	y, err = tensor.Add(y, ffOut)
	if err != nil {
		return nil, fmt.Errorf("failed to add feed-forward residual: %w", err)
	}
	return l.FFNorm.Forward(y)
}

// mesh attends over every encoder layer's output with shared cross-attention
// weights and fuses the per-layer results through their gates.
func (l *DecoderLayer) mesh(y *tensor.Tensor, encOutputs []*tensor.Tensor, encMask *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	var sum *tensor.Tensor
	for i, enc := range encOutputs {
		ctx, err := l.CrossAttn.Forward(y, enc, enc, encMask, training)
		if err != nil {
			return nil, fmt.Errorf("cross-attention over encoder layer %d failed: %w", i, err)
		}

		gateIn, err := tensor.Concatenate([]*tensor.Tensor{y, ctx}, 2)
		if err != nil {
			return nil, fmt.Errorf("failed to build gate input for encoder layer %d: %w", i, err)
		}
		gate, err := l.CrossGates[i].Forward(gateIn)
		if err != nil {
			return nil, fmt.Errorf("gate projection for encoder layer %d failed: %w", i, err)
		}
		contrib, err := tensor.Mul(gate.Sigmoid(), ctx)
		if err != nil {
			return nil, err
		}

		if sum == nil {
			sum = contrib
		} else if sum, err = tensor.Add(sum, contrib); err != nil {
			return nil, err
		}
	}
	return sum.Scale(l.meshScale), nil
}

// Parameters returns the layer's learned tensors.
func (l *DecoderLayer) Parameters() []*tensor.Tensor {
	params := l.SelfAttn.Parameters()
	params = append(params, l.CrossAttn.Parameters()...)
	for _, g := range l.CrossGates {
		params = append(params, g.Parameters()...)
	}
	params = append(params, l.CrossNorm.Parameters()...)
	params = append(params, l.FF.Parameters()...)
	return append(params, l.FFNorm.Parameters()...)
}

// Decoder generates vocabulary logits from token sequences and the full set
// of encoder layer outputs.
type Decoder struct {
	Config   Config
	TokEmb   *tensor.Tensor // (vocab_size, out_size)
	PosEmb   *tensor.Tensor // (max_sequence_len, out_size), learned
	Layers   []*DecoderLayer
	OutProj  *Linear
	Training bool

	causal *tensor.Tensor // (1, 1, max_len, max_len), built once
}

// NewDecoder creates a meshed decoder for the given configuration.
func NewDecoder(cfg Config) (*Decoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid decoder config: %w", err)
	}
	d := &Decoder{
		Config:   cfg,
		TokEmb:   tensor.New(cfg.VocabSize, cfg.OutSize),
		PosEmb:   tensor.New(cfg.MaxSequenceLen, cfg.OutSize),
		Layers:   make([]*DecoderLayer, cfg.NumLayers),
		OutProj:  NewLinear(cfg.OutSize, cfg.VocabSize),
		Training: true,
		causal:   CausalMask(cfg.MaxSequenceLen),
	}
	d.TokEmb.InitNormal(0.02)
	d.PosEmb.InitNormal(0.02)
	for i := range d.Layers {
		d.Layers[i] = NewDecoderLayer(cfg)
	}
	return d, nil
}

// SetTraining toggles dropout for this instance.
func (d *Decoder) SetTraining(training bool) {
	d.Training = training
}

// Decode runs the decoder over a (batch, seq) token tensor and the encoder's
// per-layer outputs, returning raw (batch, seq, vocab_size) logits. Softmax
// is left to the caller.
//
// Fails fast on: sequence longer than max_sequence_len, token ids outside
// the vocabulary, or a number of encoder outputs different from the
// configured num_encoder_layers.
func (d *Decoder) Decode(tokens *tensor.Tensor, encOutputs []*tensor.Tensor, encMask *tensor.Tensor) (*tensor.Tensor, error) {
	if len(tokens.Shape) != 2 {
		return nil, fmt.Errorf("expected 2D tokens (batch, seq), got %dD with shape %v",
			len(tokens.Shape), tokens.Shape)
	}
	seq := tokens.Shape[1]
	if seq > d.Config.MaxSequenceLen {
		return nil, fmt.Errorf("sequence length %d exceeds max_sequence_len %d", seq, d.Config.MaxSequenceLen)
	}
	if len(encOutputs) != d.Config.NumEncoderLayers {
		return nil, fmt.Errorf("configured for %d encoder layers but got %d encoder outputs",
			d.Config.NumEncoderLayers, len(encOutputs))
	}
	for i, enc := range encOutputs {
		if len(enc.Shape) != 3 || enc.Shape[2] != d.Config.OutSize {
			return nil, fmt.Errorf("encoder output %d has shape %v, expected (batch, detections, %d)",
				i, enc.Shape, d.Config.OutSize)
		}
	}

	y, err := d.embed(tokens)
	if err != nil {
		return nil, err
	}
	y = y.Dropout(d.Config.Dropout, d.Training)

	selfMask, err := d.selfAttentionMask(tokens)
	if err != nil {
		return nil, err
	}

	for i, layer := range d.Layers {
		y, err = layer.Forward(y, encOutputs, encMask, selfMask, d.Training)
		if err != nil {
			return nil, fmt.Errorf("decoder layer %d failed: %w", i, err)
		}
	}

	logits, err := d.OutProj.Forward(y)
	if err != nil {
		return nil, fmt.Errorf("output projection failed: %w", err)
	}
	return logits, nil
}

// embed looks up token embeddings and adds the learned positional
// embeddings.
func (d *Decoder) embed(tokens *tensor.Tensor) (*tensor.Tensor, error) {
	batch, seq := tokens.Shape[0], tokens.Shape[1]
	out := d.Config.OutSize

	y := tensor.New(batch, seq, out)
	for b := 0; b < batch; b++ {
		for s := 0; s < seq; s++ {
			id := int(tokens.Data[b*seq+s])
			if id < 0 || id >= d.Config.VocabSize {
				return nil, fmt.Errorf("token id %d at position (%d, %d) out of range for vocab_size %d",
					id, b, s, d.Config.VocabSize)
			}
			dst := y.Data[(b*seq+s)*out : (b*seq+s+1)*out]
			copy(dst, d.TokEmb.Data[id*out:(id+1)*out])
			for i, p := range d.PosEmb.Data[s*out : (s+1)*out] {
				dst[i] += p
			}
		}
	}
	return y, nil
}

// selfAttentionMask combines the causal mask with token padding:
// position i may attend to position j iff j <= i and token j is not padding.
// Result shape (batch, 1, seq, seq).
func (d *Decoder) selfAttentionMask(tokens *tensor.Tensor) (*tensor.Tensor, error) {
	seq := tokens.Shape[1]

	causal := tensor.New(1, 1, seq, seq)
	maxLen := d.Config.MaxSequenceLen
	for i := 0; i < seq; i++ {
		copy(causal.Data[i*seq:(i+1)*seq], d.causal.Data[i*maxLen:i*maxLen+seq])
	}

	padding, err := TokenPaddingMask(tokens, d.Config.PadToken)
	if err != nil {
		return nil, err
	}
	return CombineMasks(causal, padding)
}

// Parameters returns all learned tensors of the decoder.
func (d *Decoder) Parameters() []*tensor.Tensor {
	params := []*tensor.Tensor{d.TokEmb, d.PosEmb}
	for _, layer := range d.Layers {
		params = append(params, layer.Parameters()...)
	}
	return append(params, d.OutProj.Parameters()...)
}

// NumParameters returns the total learned parameter count.
func (d *Decoder) NumParameters() int {
	total := 0
	for _, p := range d.Parameters() {
		total += p.Size()
	}
	return total
}
