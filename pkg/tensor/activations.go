package tensor

import "math"

// ReLU applies max(0, x) element-wise.
func (t *Tensor) ReLU() *Tensor {
	result := New(t.Shape...)
	for i, v := range t.Data {
		if v > 0 {
			result.Data[i] = v
		}
	}
	return result
}

// Sigmoid applies 1/(1+exp(-x)) element-wise. Used by the memory and
// meshing gates, so outputs always lie strictly in (0, 1).
func (t *Tensor) Sigmoid() *Tensor {
	result := New(t.Shape...)
	for i, v := range t.Data {
		result.Data[i] = float32(1.0 / (1.0 + math.Exp(float64(-v))))
	}
	return result
}
