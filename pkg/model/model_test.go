package model

import (
	"testing"

	"github.com/Jeff-AB/ImageCaptioningSchoolProject/pkg/tensor"
)

// Full encoder-to-decoder pass at the default configuration. Heavy, so it
// only runs without -short.
func TestModel_FullPass(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping full-size forward pass in short mode")
	}

	cfg := DefaultConfig()
	tensor.SetInitSeed(1)

	enc, err := NewEncoder(cfg)
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	dec, err := NewDecoder(cfg)
	if err != nil {
		t.Fatalf("NewDecoder failed: %v", err)
	}
	enc.SetTraining(false)
	dec.SetTraining(false)

	batch, detections := 50, 50
	features := randomFeatures(batch, detections, cfg.InSize)
	// Last detection of sample 0 is padding.
	for c := 0; c < cfg.InSize; c++ {
		features.SetAt(0, 0, detections-1, c)
	}

	encOutputs, encMask, err := enc.Encode(features)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(encOutputs) != cfg.NumLayers {
		t.Fatalf("got %d encoder outputs, expected %d", len(encOutputs), cfg.NumLayers)
	}
	for i, out := range encOutputs {
		for d, dim := range []int{batch, detections, cfg.OutSize} {
			if out.Shape[d] != dim {
				t.Fatalf("encoder output %d has shape %v", i, out.Shape)
			}
		}
	}
	if encMask.At(0, 0, 0, detections-1) != 0 {
		t.Error("padded detection not masked")
	}

	seq := cfg.MaxSequenceLen
	tokens := tensor.New(batch, seq)
	for i := range tokens.Data {
		tokens.Data[i] = float32(1 + (i*37)%(cfg.VocabSize-1))
	}

	logits, err := dec.Decode(tokens, encOutputs, encMask)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	for i, dim := range []int{batch, seq, cfg.VocabSize} {
		if logits.Shape[i] != dim {
			t.Fatalf("logits shape = %v, expected (%d, %d, %d)", logits.Shape, batch, seq, cfg.VocabSize)
		}
	}
}
