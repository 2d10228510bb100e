// Package model resolves a ModelReference to a triple of inference
// sessions (mel spectrogram, embedding, classifier) for the wake-word
// pipeline (C7). The mel and embedding models are fixed, built-in assets
// shared by every wake word; ModelReference selects only the classifier.
package model

import (
	"errors"
	"fmt"
	"io"
)

// Reference is the tagged ModelReference variant: either a built-in
// classifier selected by name, or a user-supplied one read from an
// arbitrary byte source.
type Reference struct {
	builtin string
	user    io.Reader
}

// BuiltIn returns a Reference to a classifier shipped with the binary.
func BuiltIn(name string) Reference { return Reference{builtin: name} }

// User returns a Reference to a classifier read from r at load time.
func User(r io.Reader) Reference { return Reference{user: r} }

// DefaultReference is the built-in classifier used when no override is
// configured.
func DefaultReference() Reference { return BuiltIn("hey_nabu.onnx") }

func (r Reference) String() string {
	if r.user != nil {
		return "user-supplied"
	}
	return r.builtin
}

// ErrUnknownBuiltIn is returned when a BuiltIn reference names a
// classifier that isn't embedded in this binary.
var ErrUnknownBuiltIn = errors.New("model: unknown built-in classifier name")

// MelFrame is one row of the mel spectrogram output: 32 filterbank energies.
type MelFrame = []float32

// Sessions is the triple of loaded inference sessions the wake-word
// pipeline drives each tick.
type Sessions interface {
	// RunMel computes the mel spectrogram for N raw PCM samples, returning
	// T rows of 32 mel bins (already squeezed and affine-scaled).
	RunMel(samples []float32) ([]MelFrame, error)
	// RunEmbedding consumes a window of exactly 76 mel frames and returns
	// one 96-length embedding vector.
	RunEmbedding(window []MelFrame) ([]float32, error)
	// RunClassifier consumes the last 16 embeddings and returns a single
	// detection score in [0, 1].
	RunClassifier(embeddings [][]float32) (float32, error)
	// Close releases session resources. Safe to call multiple times.
	Close() error
}

// Load resolves ref to a usable Sessions triple, validating that a
// user-supplied model can be instantiated before returning it: on any
// error during construction the caller's existing sessions are left
// untouched (the classifier is hot-swappable only at pipeline
// construction; callers must not call Load while a pipeline built from a
// previous Sessions is in its Listening state).
func Load(ref Reference) (Sessions, error) {
	if ref.user != nil {
		data, err := io.ReadAll(ref.user)
		if err != nil {
			return nil, fmt.Errorf("model: read user classifier: %w", err)
		}
		return newSessions(data)
	}
	data, ok := builtinClassifier(ref.builtin)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBuiltIn, ref.builtin)
	}
	return newSessions(data)
}
