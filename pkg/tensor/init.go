package tensor

import (
	"math"
	"math/rand"
	"time"
)

// initRand is the package-level generator for weight initialization.
var initRand *rand.Rand

// SetInitSeed seeds the weight-initialization generator so that freshly
// constructed models are reproducible.
func SetInitSeed(seed int64) {
	initRand = rand.New(rand.NewSource(seed))
}

func initSource() *rand.Rand {
	if initRand == nil {
		initRand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return initRand
}

// InitNormal fills the tensor with values drawn from N(0, std^2).
func (t *Tensor) InitNormal(std float32) {
	r := initSource()
	for i := range t.Data {
		t.Data[i] = float32(r.NormFloat64()) * std
	}
}

// InitXavierUniform fills the tensor with Xavier/Glorot uniform values,
// U[-limit, limit] with limit = sqrt(6 / (fan_in + fan_out)) taken from the
// last two dimensions.
func (t *Tensor) InitXavierUniform() {
	r := initSource()
	if len(t.Shape) < 2 {
		for i := range t.Data {
			t.Data[i] = float32(r.Float64()*2 - 1)
		}
		return
	}
	fanIn := t.Shape[len(t.Shape)-2]
	fanOut := t.Shape[len(t.Shape)-1]
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	for i := range t.Data {
		t.Data[i] = float32(r.Float64()*2*limit - limit)
	}
}

// InitXavierNormal fills the tensor with Xavier/Glorot normal values,
// N(0, 2 / (fan_in + fan_out)).
func (t *Tensor) InitXavierNormal() {
	if len(t.Shape) < 2 {
		t.InitNormal(0.02)
		return
	}
	fanIn := t.Shape[len(t.Shape)-2]
	fanOut := t.Shape[len(t.Shape)-1]
	std := math.Sqrt(2.0 / float64(fanIn+fanOut))
	t.InitNormal(float32(std))
}
