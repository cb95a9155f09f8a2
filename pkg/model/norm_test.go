package model

import (
	"math"
	"testing"

	"github.com/Jeff-AB/ImageCaptioningSchoolProject/pkg/tensor"
)

func TestLayerNorm_NormalizesLastDim(t *testing.T) {
	ln := NewLayerNorm(4, 1e-5)
	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4, 10, 20, 30, 40}, 2, 4)

	out, err := ln.Forward(x)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	for r := 0; r < 2; r++ {
		mean := float32(0)
		for c := 0; c < 4; c++ {
			mean += out.At(r, c)
		}
		mean /= 4
		if math.Abs(float64(mean)) > 1e-5 {
			t.Errorf("row %d mean = %v, expected ~0", r, mean)
		}

		variance := float32(0)
		for c := 0; c < 4; c++ {
			diff := out.At(r, c) - mean
			variance += diff * diff
		}
		variance /= 4
		if math.Abs(float64(variance-1)) > 1e-3 {
			t.Errorf("row %d variance = %v, expected ~1", r, variance)
		}
	}
}

func TestLayerNorm_ScaleAndShift(t *testing.T) {
	ln := NewLayerNorm(3, 1e-5)
	for i := range ln.Scale.Data {
		ln.Scale.Data[i] = 2
		ln.Shift.Data[i] = 5
	}

	x, _ := tensor.FromSlice([]float32{-1, 0, 1}, 1, 3)
	out, err := ln.Forward(x)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	// The middle element normalizes to 0, so scale is invisible and only
	// the shift remains.
	if math.Abs(float64(out.At(0, 1)-5)) > 1e-4 {
		t.Errorf("shifted center = %v, expected 5", out.At(0, 1))
	}
}

func TestLayerNorm_DimensionMismatch(t *testing.T) {
	ln := NewLayerNorm(4, 1e-5)
	x := tensor.New(2, 3)
	if _, err := ln.Forward(x); err == nil {
		t.Error("expected error for mismatched last dimension")
	}
}
