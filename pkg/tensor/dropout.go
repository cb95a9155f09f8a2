package tensor

import (
	"math/rand"
	"time"
)

// dropoutRand is the package-level generator for dropout masks.
var dropoutRand *rand.Rand

// SetDropoutSeed seeds the dropout generator, making training-mode forward
// passes reproducible in tests.
func SetDropoutSeed(seed int64) {
	dropoutRand = rand.New(rand.NewSource(seed))
}

// Dropout zeros elements with probability p and rescales the survivors by
// 1/(1-p) (inverted dropout). When training is false or p is zero the input
// passes through unchanged, so inference is deterministic.
func (t *Tensor) Dropout(p float32, training bool) *Tensor {
	if !training || p == 0 {
		return t.Clone()
	}
	if p < 0 || p >= 1 {
		panic("dropout probability must be in [0, 1)")
	}

	if dropoutRand == nil {
		dropoutRand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	result := New(t.Shape...)
	scale := 1 / (1 - p)
	for i := range t.Data {
		if dropoutRand.Float32() >= p {
			result.Data[i] = t.Data[i] * scale
		}
	}
	return result
}
