package attention

import (
	"fmt"
	"math"

	"github.com/Jeff-AB/ImageCaptioningSchoolProject/pkg/tensor"
)

// MemoryAttention augments scaled dot-product attention with a bank of
// learned memory slots. The slots are input-independent key/value pairs
// concatenated onto the projected keys and values, acting as a learned prior
// the model can fall back on when the input signal is weak.
//
// Two attention passes are computed: one over the data keys/values alone and
// one over data plus memory. A sigmoid gate conditioned on the query and the
// data-only output blends them per position and channel:
//
//	lambda = sigmoid([queries ; dataOut] @ WGate + BGate)
//	output = lambda * memOut + (1 - lambda) * dataOut
//
// Each instance owns its banks; they are never shared across layers.
type MemoryAttention struct {
	*Attention
	NumMemSlots int

	MemKeys   *tensor.Tensor // (num_slots, heads*key_size)
	MemValues *tensor.Tensor // (num_slots, heads*value_size)
	WGate     *tensor.Tensor // (2*out_size, out_size)
	BGate     *tensor.Tensor // (out_size)
}

// NewMemory creates a memory-augmented attention instance with numMemSlots
// learned slots.
func NewMemory(cfg Config, numMemSlots int) *MemoryAttention {
	m := &MemoryAttention{
		Attention:   New(cfg),
		NumMemSlots: numMemSlots,
		MemKeys:     tensor.New(numMemSlots, cfg.NumHeads*cfg.KeySize),
		MemValues:   tensor.New(numMemSlots, cfg.NumHeads*cfg.ValueSize),
		WGate:       tensor.New(2*cfg.OutSize, cfg.OutSize),
		BGate:       tensor.New(cfg.OutSize),
	}
	m.MemKeys.InitNormal(1.0 / float32(cfg.KeySize))
	m.MemValues.InitNormal(1.0 / float32(numMemSlots))
	m.WGate.InitXavierUniform()
	return m
}

// Forward computes memory-augmented attention. Shapes match
// Attention.Forward; the mask applies only to the data key positions, memory
// slots are always attendable.
func (m *MemoryAttention) Forward(queries, keys, values, mask *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	if err := m.checkInputs(queries, keys, values); err != nil {
		return nil, err
	}
	batch := keys.Shape[0]

	q, err := m.projectHeads(queries, m.WQuery, m.BQuery, m.KeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to project queries: %w", err)
	}

	// Flat projections are kept around so the memory slots can be appended
	// before the head split.
	kFlat, err := m.project(keys, m.WKey, m.BKey)
	if err != nil {
		return nil, fmt.Errorf("failed to project keys: %w", err)
	}
	vFlat, err := m.project(values, m.WValue, m.BValue)
	if err != nil {
		return nil, fmt.Errorf("failed to project values: %w", err)
	}

	// Data-only pass.
	kData, err := splitHeads(kFlat, m.NumHeads, m.KeySize)
	if err != nil {
		return nil, err
	}
	vData, err := splitHeads(vFlat, m.NumHeads, m.ValueSize)
	if err != nil {
		return nil, err
	}
	dataOut, err := m.attend(q, kData, vData, mask, training)
	if err != nil {
		return nil, fmt.Errorf("data attention failed: %w", err)
	}

	// Memory pass: append the scaled banks to the projected keys/values.
	memKeys := expandBatch(m.MemKeys.Scale(float32(math.Sqrt(float64(m.KeySize)))), batch)
	memValues := expandBatch(m.MemValues.Scale(float32(math.Sqrt(float64(m.NumMemSlots)))), batch)

	kAug, err := tensor.Concatenate([]*tensor.Tensor{kFlat, memKeys}, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to append memory keys: %w", err)
	}
	vAug, err := tensor.Concatenate([]*tensor.Tensor{vFlat, memValues}, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to append memory values: %w", err)
	}

	kMem, err := splitHeads(kAug, m.NumHeads, m.KeySize)
	if err != nil {
		return nil, err
	}
	vMem, err := splitHeads(vAug, m.NumHeads, m.ValueSize)
	if err != nil {
		return nil, err
	}

	memMask, err := extendMask(mask, m.NumMemSlots)
	if err != nil {
		return nil, err
	}
	memOut, err := m.attend(q, kMem, vMem, memMask, training)
	if err != nil {
		return nil, fmt.Errorf("memory attention failed: %w", err)
	}

	return m.blend(queries, dataOut, memOut)
}

// blend applies the learned sigmoid gate between the memory-augmented and
// data-only outputs.
func (m *MemoryAttention) blend(queries, dataOut, memOut *tensor.Tensor) (*tensor.Tensor, error) {
	gateIn, err := tensor.Concatenate([]*tensor.Tensor{queries, dataOut}, 2)
	if err != nil {
		return nil, fmt.Errorf("failed to build gate input: %w", err)
	}
	gateFlat, err := tensor.Matmul(gateIn, m.WGate)
	if err != nil {
		return nil, fmt.Errorf("failed to project gate: %w", err)
	}
	gateFlat, err = tensor.Add(gateFlat, m.BGate)
	if err != nil {
		return nil, err
	}
	lambda := gateFlat.Sigmoid()

	gated, err := tensor.Mul(lambda, memOut)
	if err != nil {
		return nil, err
	}
	inverse := lambda.Scale(-1)
	for i := range inverse.Data {
		inverse.Data[i] += 1
	}
	rest, err := tensor.Mul(inverse, dataOut)
	if err != nil {
		return nil, err
	}
	return tensor.Add(gated, rest)
}

// expandBatch broadcasts a (slots, d) bank to (batch, slots, d).
func expandBatch(bank *tensor.Tensor, batch int) *tensor.Tensor {
	slots, d := bank.Shape[0], bank.Shape[1]
	out := tensor.New(batch, slots, d)
	for b := 0; b < batch; b++ {
		copy(out.Data[b*slots*d:(b+1)*slots*d], bank.Data)
	}
	return out
}

// extendMask appends always-valid columns for the memory slots to a key
// validity mask. A nil mask stays nil.
func extendMask(mask *tensor.Tensor, slots int) (*tensor.Tensor, error) {
	if mask == nil {
		return nil, nil
	}
	onesShape := copyShape(mask.Shape)
	onesShape[len(onesShape)-1] = slots
	return tensor.Concatenate([]*tensor.Tensor{mask, tensor.Ones(onesShape...)}, len(onesShape)-1)
}

func copyShape(shape []int) []int {
	out := make([]int, len(shape))
	copy(out, shape)
	return out
}

// Parameters returns the learned tensors, including the memory banks and
// gate weights.
func (m *MemoryAttention) Parameters() []*tensor.Tensor {
	params := m.Attention.Parameters()
	return append(params, m.MemKeys, m.MemValues, m.WGate, m.BGate)
}
