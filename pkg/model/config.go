// Package model implements the meshed-memory captioning transformer: a
// region-feature encoder whose decoder attends to every encoder layer's
// output through learned per-layer gates.
package model

import "fmt"

// Config holds the architecture hyperparameters. All values are fixed at
// construction; nothing is mutated at forward time.
type Config struct {
	// NumLayers is the number of layers in the stack being built
	// (encoder layers for the encoder, decoder layers for the decoder).
	NumLayers int

	// NumEncoderLayers is the number of encoder outputs the decoder meshes
	// over. Must equal the encoder's NumLayers.
	NumEncoderLayers int

	// MaxSequenceLen bounds decoder input length (positional table size).
	MaxSequenceLen int

	// PadToken is the token id marking sequence padding.
	PadToken int

	// InSize is the channel width of raw region features fed to the encoder.
	InSize int

	// OutSize is the model dimension used throughout the stacks.
	OutSize int

	// KeySize and ValueSize are the per-head attention dimensions.
	KeySize   int
	ValueSize int

	// FeedForwardSize is the hidden width of the position-wise feed-forward.
	FeedForwardSize int

	// NumHeads is the number of attention heads.
	NumHeads int

	// NumMemSlots is the number of learned memory slots per attention
	// instance.
	NumMemSlots int

	// Dropout is the dropout rate used model-wide.
	Dropout float32

	// VocabSize is the size of the output token vocabulary.
	VocabSize int
}

// DefaultConfig returns the configuration used by the smoke runner: region
// features of width 1024 projected to a 256-wide model with 8 heads.
func DefaultConfig() Config {
	return Config{
		NumLayers:        2,
		NumEncoderLayers: 2,
		MaxSequenceLen:   20,
		PadToken:         0,
		InSize:           1024,
		OutSize:          256,
		KeySize:          32,
		ValueSize:        32,
		FeedForwardSize:  1024,
		NumHeads:         8,
		NumMemSlots:      8,
		Dropout:          0.1,
		VocabSize:        2000,
	}
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	positives := []struct {
		name  string
		value int
	}{
		{"num_layers", c.NumLayers},
		{"num_encoder_layers", c.NumEncoderLayers},
		{"max_sequence_len", c.MaxSequenceLen},
		{"in_size", c.InSize},
		{"out_size", c.OutSize},
		{"key_size", c.KeySize},
		{"value_size", c.ValueSize},
		{"feedforward_size", c.FeedForwardSize},
		{"num_heads", c.NumHeads},
		{"num_mem_slots", c.NumMemSlots},
		{"vocab_size", c.VocabSize},
	}
	for _, p := range positives {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("dropout must be in [0, 1), got %g", c.Dropout)
	}
	if c.PadToken < 0 || c.PadToken >= c.VocabSize {
		return fmt.Errorf("pad_token %d out of range for vocab_size %d", c.PadToken, c.VocabSize)
	}
	return nil
}
