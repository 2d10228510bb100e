//go:build !onnx

package model

// builtinClassifiers holds no model bytes in stub builds: nothing is
// embedded, but the built-in name still resolves (to an empty byte slice)
// so stub sessions can be constructed for the default built-in reference.
var builtinClassifiers = map[string][]byte{
	"hey_nabu.onnx": {},
}

const nativeAvailable = false
