package model

import (
	"testing"

	"github.com/Jeff-AB/ImageCaptioningSchoolProject/pkg/tensor"
)

func TestCausalMask(t *testing.T) {
	mask := CausalMask(4)

	expectedShape := []int{1, 1, 4, 4}
	for i, dim := range expectedShape {
		if mask.Shape[i] != dim {
			t.Fatalf("mask shape = %v, expected %v", mask.Shape, expectedShape)
		}
	}
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			want := float32(0)
			if j <= i {
				want = 1
			}
			if got := mask.At(0, 0, i, j); got != want {
				t.Errorf("mask[%d][%d] = %v, expected %v", i, j, got, want)
			}
		}
	}
}

func TestFeaturePaddingMask(t *testing.T) {
	// Sample 0: detection 1 is all-zero. Sample 1: all valid.
	features := tensor.New(2, 3, 2)
	features.SetAt(0.5, 0, 0, 0)
	features.SetAt(-0.5, 0, 2, 1)
	for d := 0; d < 3; d++ {
		features.SetAt(1, 1, d, 0)
	}

	mask, err := FeaturePaddingMask(features)
	if err != nil {
		t.Fatalf("FeaturePaddingMask failed: %v", err)
	}

	expectedShape := []int{2, 1, 1, 3}
	for i, dim := range expectedShape {
		if mask.Shape[i] != dim {
			t.Fatalf("mask shape = %v, expected %v", mask.Shape, expectedShape)
		}
	}

	want := []float32{1, 0, 1, 1, 1, 1}
	for i, w := range want {
		if mask.Data[i] != w {
			t.Errorf("mask.Data[%d] = %v, expected %v", i, mask.Data[i], w)
		}
	}
}

func TestFeaturePaddingMask_RejectsNon3D(t *testing.T) {
	if _, err := FeaturePaddingMask(tensor.New(2, 3)); err == nil {
		t.Error("expected error for 2D features")
	}
}

func TestTokenPaddingMask(t *testing.T) {
	tokens, _ := tensor.FromSlice([]float32{5, 0, 7, 0}, 2, 2)
	mask, err := TokenPaddingMask(tokens, 0)
	if err != nil {
		t.Fatalf("TokenPaddingMask failed: %v", err)
	}

	want := []float32{1, 0, 1, 0}
	for i, w := range want {
		if mask.Data[i] != w {
			t.Errorf("mask.Data[%d] = %v, expected %v", i, mask.Data[i], w)
		}
	}
}

func TestCombineMasks(t *testing.T) {
	causal := CausalMask(3)
	padding, _ := tensor.FromSlice([]float32{1, 1, 0}, 1, 1, 1, 3)

	combined, err := CombineMasks(causal, padding)
	if err != nil {
		t.Fatalf("CombineMasks failed: %v", err)
	}

	// Position 2 is padding, so its column must be zero everywhere even
	// where the causal mask allows it.
	for i := 0; i < 3; i++ {
		if combined.At(0, 0, i, 2) != 0 {
			t.Errorf("padded column visible at row %d", i)
		}
	}
	if combined.At(0, 0, 2, 1) != 1 {
		t.Error("valid causal position was masked")
	}
}
