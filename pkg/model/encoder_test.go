package model

import (
	"math"
	"testing"

	"github.com/Jeff-AB/ImageCaptioningSchoolProject/pkg/tensor"
)

func smallConfig() Config {
	return Config{
		NumLayers:        2,
		NumEncoderLayers: 2,
		MaxSequenceLen:   10,
		PadToken:         0,
		InSize:           16,
		OutSize:          32,
		KeySize:          8,
		ValueSize:        8,
		FeedForwardSize:  64,
		NumHeads:         4,
		NumMemSlots:      4,
		Dropout:          0.0,
		VocabSize:        50,
	}
}

func randomFeatures(batch, detections, channels int) *tensor.Tensor {
	t := tensor.New(batch, detections, channels)
	for i := range t.Data {
		t.Data[i] = float32((i*13+5)%11)*0.1 - 0.5
		if t.Data[i] == 0 {
			t.Data[i] = 0.05
		}
	}
	return t
}

func TestEncoder_OnePerLayerOutput(t *testing.T) {
	cfg := smallConfig()
	enc, err := NewEncoder(cfg)
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	enc.SetTraining(false)

	features := randomFeatures(2, 5, cfg.InSize)
	// Zero out detection 3 of sample 0 to make it padding.
	for c := 0; c < cfg.InSize; c++ {
		features.SetAt(0, 0, 3, c)
	}

	outputs, mask, err := enc.Encode(features)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if len(outputs) != cfg.NumLayers {
		t.Fatalf("got %d layer outputs, expected %d", len(outputs), cfg.NumLayers)
	}
	for i, out := range outputs {
		expected := []int{2, 5, cfg.OutSize}
		for d, dim := range expected {
			if out.Shape[d] != dim {
				t.Errorf("layer %d output shape = %v, expected %v", i, out.Shape, expected)
			}
		}
	}

	expectedMask := []int{2, 1, 1, 5}
	for d, dim := range expectedMask {
		if mask.Shape[d] != dim {
			t.Fatalf("mask shape = %v, expected %v", mask.Shape, expectedMask)
		}
	}
	if mask.At(0, 0, 0, 3) != 0 {
		t.Error("all-zero detection not marked as padding")
	}
	if mask.At(0, 0, 0, 2) != 1 {
		t.Error("valid detection marked as padding")
	}
}

func TestEncoder_FullyPaddedSample(t *testing.T) {
	cfg := smallConfig()
	enc, err := NewEncoder(cfg)
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	enc.SetTraining(false)

	// Sample 1 has no valid detections; attention over it degenerates to
	// uniform and must stay finite.
	features := randomFeatures(2, 4, cfg.InSize)
	for d := 0; d < 4; d++ {
		for c := 0; c < cfg.InSize; c++ {
			features.SetAt(0, 1, d, c)
		}
	}

	outputs, mask, err := enc.Encode(features)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	for d := 0; d < 4; d++ {
		if mask.At(1, 0, 0, d) != 0 {
			t.Errorf("detection %d of padded sample marked valid", d)
		}
	}
	for _, out := range outputs {
		for _, v := range out.Data {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				t.Fatal("fully-padded sample produced NaN/Inf")
			}
		}
	}
}

func TestEncoder_InputValidation(t *testing.T) {
	cfg := smallConfig()
	enc, err := NewEncoder(cfg)
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}

	if _, _, err := enc.Encode(tensor.New(2, cfg.InSize)); err == nil {
		t.Error("expected error for 2D features")
	}
	if _, _, err := enc.Encode(tensor.New(2, 5, cfg.InSize+1)); err == nil {
		t.Error("expected error for wrong channel width")
	}
}

func TestEncoder_InvalidConfig(t *testing.T) {
	cfg := smallConfig()
	cfg.NumHeads = 0
	if _, err := NewEncoder(cfg); err == nil {
		t.Error("expected error for invalid config")
	}
}

func TestEncoder_DeterministicInEvalMode(t *testing.T) {
	cfg := smallConfig()
	cfg.Dropout = 0.4 // must be inert in eval mode
	enc, err := NewEncoder(cfg)
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	enc.SetTraining(false)

	features := randomFeatures(2, 5, cfg.InSize)
	a, _, err := enc.Encode(features)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	b, _, err := enc.Encode(features)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	for i := range a {
		if !a[i].Equals(b[i], 0) {
			t.Errorf("layer %d outputs differ between eval-mode passes", i)
		}
	}
}

func TestEncoder_ParameterOwnership(t *testing.T) {
	cfg := smallConfig()
	enc, err := NewEncoder(cfg)
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}

	if enc.NumParameters() <= 0 {
		t.Fatal("expected a positive parameter count")
	}

	// Memory banks are per-layer, never shared.
	bank0 := enc.Layers[0].SelfAttn.Parameters()
	bank1 := enc.Layers[1].SelfAttn.Parameters()
	for _, p0 := range bank0 {
		for _, p1 := range bank1 {
			if p0 == p1 {
				t.Fatal("encoder layers share a parameter tensor")
			}
		}
	}
}
