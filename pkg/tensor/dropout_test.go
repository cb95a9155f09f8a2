package tensor

import "testing"

func TestDropoutInferencePassThrough(t *testing.T) {
	tn, _ := FromSlice([]float32{1, 2, 3, 4}, 2, 2)
	out := tn.Dropout(0.5, false)
	if !out.Equals(tn, 0) {
		t.Error("dropout must be the identity when not training")
	}
}

func TestDropoutZeroRate(t *testing.T) {
	tn, _ := FromSlice([]float32{1, 2, 3, 4}, 2, 2)
	out := tn.Dropout(0, true)
	if !out.Equals(tn, 0) {
		t.Error("dropout with p=0 must be the identity")
	}
}

func TestDropoutScalingAndZeros(t *testing.T) {
	SetDropoutSeed(7)
	tn := Ones(1000)
	out := tn.Dropout(0.5, true)

	zeros := 0
	for _, v := range out.Data {
		switch v {
		case 0:
			zeros++
		case 2: // survivors scaled by 1/(1-0.5)
		default:
			t.Fatalf("unexpected dropout output value %v", v)
		}
	}
	if zeros < 400 || zeros > 600 {
		t.Errorf("dropped %d of 1000 at p=0.5, outside expected range", zeros)
	}
}

func TestDropoutSeedReproducibility(t *testing.T) {
	tn := Ones(64)

	SetDropoutSeed(11)
	a := tn.Dropout(0.3, true)
	SetDropoutSeed(11)
	b := tn.Dropout(0.3, true)

	if !a.Equals(b, 0) {
		t.Error("same seed must produce the same dropout mask")
	}
}

func TestDropoutInvalidRatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for invalid dropout rate")
		}
	}()
	Ones(4).Dropout(1.5, true)
}
