//go:build onnx

package model

import _ "embed"

//go:embed assets/melspectrogram.onnx
var melModelData []byte

//go:embed assets/embedding_model.onnx
var embeddingModelData []byte

//go:embed assets/hey_nabu.onnx
var heyNabuModelData []byte

// builtinClassifiers maps a built-in classifier name to its embedded
// model bytes. Add an entry and a matching //go:embed asset to ship an
// additional built-in wake word.
var builtinClassifiers = map[string][]byte{
	"hey_nabu.onnx": heyNabuModelData,
}

const nativeAvailable = true
