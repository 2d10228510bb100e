package model

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadBuiltIn(t *testing.T) {
	sessions, err := Load(DefaultReference())
	require.NoError(t, err)
	defer sessions.Close()

	frames, err := sessions.RunMel(make([]float32, 1280))
	require.NoError(t, err)
	require.NotEmpty(t, frames)
	for _, f := range frames {
		require.Len(t, f, melBins)
	}
}

func TestLoadUnknownBuiltIn(t *testing.T) {
	_, err := Load(BuiltIn("does-not-exist.onnx"))
	require.ErrorIs(t, err, ErrUnknownBuiltIn)
}

func TestLoadUser(t *testing.T) {
	sessions, err := Load(User(bytes.NewReader([]byte{0x01, 0x02})))
	require.NoError(t, err)
	defer sessions.Close()
}

func TestRunEmbeddingRejectsWrongWindowSize(t *testing.T) {
	sessions, err := Load(DefaultReference())
	require.NoError(t, err)
	defer sessions.Close()

	_, err = sessions.RunEmbedding(make([]MelFrame, 10))
	require.Error(t, err)
}

func TestRunClassifierRejectsWrongWindowSize(t *testing.T) {
	sessions, err := Load(DefaultReference())
	require.NoError(t, err)
	defer sessions.Close()

	_, err = sessions.RunClassifier(make([][]float32, 1))
	require.Error(t, err)
}
