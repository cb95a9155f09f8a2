// Package attention implements the attention mechanisms of the meshed-memory
// captioning transformer:
//   - Attention: scaled dot-product multi-head attention over separate
//     query/key/value inputs
//   - MemoryAttention: attention augmented with a learned memory bank,
//     blended with the data-only attention through a sigmoid gate
//   - Layer: dropout + residual + layer-norm wrapper shared by the encoder
//     and decoder stacks
package attention

import (
	"fmt"
	"math"

	"github.com/Jeff-AB/ImageCaptioningSchoolProject/pkg/tensor"
)

// Config holds the construction parameters for an attention instance.
type Config struct {
	OutSize   int     // Model dimension of inputs and output
	KeySize   int     // Per-head query/key dimension
	ValueSize int     // Per-head value dimension
	NumHeads  int     // Number of attention heads
	Dropout   float32 // Dropout rate applied to attention weights
}

// Validate checks the attention configuration.
func (c Config) Validate() error {
	if c.OutSize <= 0 || c.KeySize <= 0 || c.ValueSize <= 0 || c.NumHeads <= 0 {
		return fmt.Errorf("attention sizes must be positive, got out=%d key=%d value=%d heads=%d",
			c.OutSize, c.KeySize, c.ValueSize, c.NumHeads)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("dropout must be in [0, 1), got %g", c.Dropout)
	}
	return nil
}

// Attention implements scaled dot-product multi-head attention.
//
// Queries, keys and values are projected independently into
// num_heads * key_size (queries, keys) and num_heads * value_size (values),
// attention is computed per head, and the concatenated head outputs are
// projected back to the model dimension.
type Attention struct {
	OutSize   int
	KeySize   int
	ValueSize int
	NumHeads  int
	Dropout   float32
	Scale     float32 // 1/sqrt(key_size)

	WQuery *tensor.Tensor // (out_size, heads*key_size)
	BQuery *tensor.Tensor // (heads*key_size)
	WKey   *tensor.Tensor // (out_size, heads*key_size)
	BKey   *tensor.Tensor // (heads*key_size)
	WValue *tensor.Tensor // (out_size, heads*value_size)
	BValue *tensor.Tensor // (heads*value_size)
	WOut   *tensor.Tensor // (heads*value_size, out_size)
	BOut   *tensor.Tensor // (out_size)
}

// New creates a scaled dot-product attention instance. The configuration is
// assumed valid; callers constructing full models validate it once up front.
func New(cfg Config) *Attention {
	a := &Attention{
		OutSize:   cfg.OutSize,
		KeySize:   cfg.KeySize,
		ValueSize: cfg.ValueSize,
		NumHeads:  cfg.NumHeads,
		Dropout:   cfg.Dropout,
		Scale:     float32(1.0 / math.Sqrt(float64(cfg.KeySize))),
		WQuery:    tensor.New(cfg.OutSize, cfg.NumHeads*cfg.KeySize),
		BQuery:    tensor.New(cfg.NumHeads * cfg.KeySize),
		WKey:      tensor.New(cfg.OutSize, cfg.NumHeads*cfg.KeySize),
		BKey:      tensor.New(cfg.NumHeads * cfg.KeySize),
		WValue:    tensor.New(cfg.OutSize, cfg.NumHeads*cfg.ValueSize),
		BValue:    tensor.New(cfg.NumHeads * cfg.ValueSize),
		WOut:      tensor.New(cfg.NumHeads*cfg.ValueSize, cfg.OutSize),
		BOut:      tensor.New(cfg.OutSize),
	}
	a.WQuery.InitXavierUniform()
	a.WKey.InitXavierUniform()
	a.WValue.InitXavierNormal()
	a.WOut.InitXavierUniform()
	return a
}

// Forward computes multi-head attention.
//
// Input shapes:
//   - queries: (batch, nq, out_size)
//   - keys:    (batch, nk, out_size)
//   - values:  (batch, nk, out_size)
//   - mask: optional validity mask broadcastable to (batch, heads, nq, nk),
//     nonzero marking valid key positions; nil attends everywhere
//
// Output shape: (batch, nq, out_size)
func (a *Attention) Forward(queries, keys, values, mask *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	if err := a.checkInputs(queries, keys, values); err != nil {
		return nil, err
	}

	q, err := a.projectHeads(queries, a.WQuery, a.BQuery, a.KeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to project queries: %w", err)
	}
	k, err := a.projectHeads(keys, a.WKey, a.BKey, a.KeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to project keys: %w", err)
	}
	v, err := a.projectHeads(values, a.WValue, a.BValue, a.ValueSize)
	if err != nil {
		return nil, fmt.Errorf("failed to project values: %w", err)
	}

	return a.attend(q, k, v, mask, training)
}

func (a *Attention) checkInputs(queries, keys, values *tensor.Tensor) error {
	for name, t := range map[string]*tensor.Tensor{"queries": queries, "keys": keys, "values": values} {
		if len(t.Shape) != 3 {
			return fmt.Errorf("expected 3D %s (batch, n, out_size), got %dD with shape %v",
				name, len(t.Shape), t.Shape)
		}
		if t.Shape[2] != a.OutSize {
			return fmt.Errorf("%s dimension %d doesn't match model dimension %d", name, t.Shape[2], a.OutSize)
		}
	}
	if keys.Shape[0] != queries.Shape[0] || values.Shape[0] != queries.Shape[0] {
		return fmt.Errorf("batch sizes differ: queries %d, keys %d, values %d",
			queries.Shape[0], keys.Shape[0], values.Shape[0])
	}
	if keys.Shape[1] != values.Shape[1] {
		return fmt.Errorf("keys and values disagree on sequence length: %d vs %d",
			keys.Shape[1], values.Shape[1])
	}
	return nil
}

// project applies the flat linear map W plus bias: (batch, n, out_size) ->
// (batch, n, heads*size).
func (a *Attention) project(x, w, b *tensor.Tensor) (*tensor.Tensor, error) {
	flat, err := tensor.Matmul(x, w)
	if err != nil {
		return nil, err
	}
	return tensor.Add(flat, b)
}

// projectHeads projects and splits into heads: (batch, n, out_size) ->
// (batch, heads, n, size).
func (a *Attention) projectHeads(x, w, b *tensor.Tensor, size int) (*tensor.Tensor, error) {
	flat, err := a.project(x, w, b)
	if err != nil {
		return nil, err
	}
	return splitHeads(flat, a.NumHeads, size)
}

// splitHeads reshapes (batch, n, heads*size) into (batch, heads, n, size).
func splitHeads(x *tensor.Tensor, heads, size int) (*tensor.Tensor, error) {
	batch, n := x.Shape[0], x.Shape[1]
	return x.Reshape(batch, n, heads, size).Transpose(1, 2)
}

// attend runs the per-head attention computation and output projection.
//
// q: (batch, heads, nq, key_size)
// k: (batch, heads, nk, key_size)
// v: (batch, heads, nk, value_size)
//
// Returns (batch, nq, out_size).
func (a *Attention) attend(q, k, v, mask *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	weights, err := a.weights(q, k, mask)
	if err != nil {
		return nil, err
	}
	weights = weights.Dropout(a.Dropout, training)

	ctx, err := tensor.Matmul(weights, v)
	if err != nil {
		return nil, fmt.Errorf("failed to apply attention to values: %w", err)
	}

	// (batch, heads, nq, value_size) -> (batch, nq, heads*value_size)
	ctx, err = ctx.Transpose(1, 2)
	if err != nil {
		return nil, fmt.Errorf("failed to merge heads: %w", err)
	}
	batch, nq := ctx.Shape[0], ctx.Shape[1]
	merged := ctx.Reshape(batch, nq, a.NumHeads*a.ValueSize)

	return a.project(merged, a.WOut, a.BOut)
}

// weights computes the softmax-normalized attention weights
// (batch, heads, nq, nk). Split out so tests can assert masking directly.
func (a *Attention) weights(q, k, mask *tensor.Tensor) (*tensor.Tensor, error) {
	kt, err := k.Transpose(2, 3)
	if err != nil {
		return nil, fmt.Errorf("failed to transpose keys: %w", err)
	}
	scores, err := tensor.Matmul(q, kt)
	if err != nil {
		return nil, fmt.Errorf("failed to compute attention scores: %w", err)
	}
	scores = scores.Scale(a.Scale)

	if mask != nil {
		scores, err = tensor.MaskedFill(scores, mask)
		if err != nil {
			return nil, fmt.Errorf("failed to apply attention mask: %w", err)
		}
	}
	return tensor.Softmax(scores, len(scores.Shape)-1)
}

// Parameters returns the learned tensors of this instance.
func (a *Attention) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{a.WQuery, a.BQuery, a.WKey, a.BKey, a.WValue, a.BValue, a.WOut, a.BOut}
}
