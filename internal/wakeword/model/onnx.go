//go:build onnx

package model

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// melBins is the fixed mel-filterbank width the mel model emits per frame.
const melBins = 32

// embeddingWindow and embeddingSize are the Stage B input window length and
// output vector length.
const (
	embeddingWindow = 76
	embeddingSize   = 96
)

// classifierWindow is the number of embeddings Stage C consumes per call.
const classifierWindow = 16

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

func ensureRuntime() error {
	ortInitOnce.Do(func() {
		libPath, err := locateSharedLibrary()
		if err != nil {
			ortInitErr = fmt.Errorf("resolve ONNX Runtime shared library: %w", err)
			return
		}
		ort.SetSharedLibraryPath(libPath)
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// sharedLibraryName is the ONNX Runtime shared library's platform-specific
// filename; each of the three sessions is driven through the same runtime,
// so only one copy needs to be found per process.
func sharedLibraryName() string {
	switch runtime.GOOS {
	case "darwin":
		return "libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "libonnxruntime.so"
	}
}

// locateSharedLibrary finds the ONNX Runtime shared library the mel,
// embedding, and classifier sessions all run through. WAKESAT_ORT_LIB_PATH
// takes precedence over everything; otherwise it looks next to the running
// executable under lib/<goos>-<goarch>/ (and its bin/ sibling), and only
// falls back to the current working directory when WAKESAT_DEV_MODE=1 —
// CWD lookup is off by default so an attacker-controlled working directory
// can't substitute a hijacked shared library.
func locateSharedLibrary() (string, error) {
	name := sharedLibraryName()

	if envPath := os.Getenv("WAKESAT_ORT_LIB_PATH"); envPath != "" {
		info, err := os.Stat(envPath)
		if err != nil {
			return "", fmt.Errorf("WAKESAT_ORT_LIB_PATH=%q does not exist", envPath)
		}
		if info.IsDir() {
			return "", fmt.Errorf("WAKESAT_ORT_LIB_PATH=%q is a directory, expected a file", envPath)
		}
		return envPath, nil
	}

	platformDir := filepath.Join("lib", runtime.GOOS+"-"+runtime.GOARCH, name)
	platformDirFromBin := filepath.Join("..", "lib", runtime.GOOS+"-"+runtime.GOARCH, name)

	if exePath, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exePath)
		if path, ok := firstExisting(exeDir, platformDir, platformDirFromBin); ok {
			return path, nil
		}
	}

	if os.Getenv("WAKESAT_DEV_MODE") == "1" {
		if dir, err := os.Getwd(); err == nil {
			if path, ok := firstExisting(dir, platformDir, platformDirFromBin); ok {
				return path, nil
			}
		}
	}

	return "", fmt.Errorf("shared library %q not found under lib/<os>-<arch>/ (set WAKESAT_ORT_LIB_PATH to override, or WAKESAT_DEV_MODE=1 to enable a CWD-relative search)", name)
}

func firstExisting(base string, relatives ...string) (string, bool) {
	for _, rel := range relatives {
		path := filepath.Join(base, rel)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// onnxSessions runs the three wake-word stages via ONNX Runtime. The mel
// and embedding models are fixed across every classifier, so they are
// loaded from the embedded built-in assets regardless of which
// classifier was requested.
type onnxSessions struct {
	mel    *ort.DynamicAdvancedSession
	embed  *ort.DynamicAdvancedSession
	classy *ort.DynamicAdvancedSession
}

func newSessions(classifierData []byte) (Sessions, error) {
	if err := ensureRuntime(); err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	if len(melModelData) == 0 || len(embeddingModelData) == 0 {
		return nil, fmt.Errorf("model: mel/embedding assets missing (build without -tags onnx?)")
	}
	if len(classifierData) == 0 {
		return nil, fmt.Errorf("model: classifier data is empty")
	}

	mel, err := ort.NewDynamicAdvancedSessionWithONNXData(
		melModelData, []string{"input"}, []string{"output"}, nil)
	if err != nil {
		return nil, fmt.Errorf("model: load mel session: %w", err)
	}
	embed, err := ort.NewDynamicAdvancedSessionWithONNXData(
		embeddingModelData, []string{"input"}, []string{"output"}, nil)
	if err != nil {
		mel.Destroy()
		return nil, fmt.Errorf("model: load embedding session: %w", err)
	}
	classy, err := ort.NewDynamicAdvancedSessionWithONNXData(
		classifierData, []string{"input"}, []string{"output"}, nil)
	if err != nil {
		mel.Destroy()
		embed.Destroy()
		return nil, fmt.Errorf("model: load classifier session: %w", err)
	}

	return &onnxSessions{mel: mel, embed: embed, classy: classy}, nil
}

// RunMel computes the mel spectrogram for N raw PCM samples. Output shape
// [1,1,T,32] is squeezed to [T,32] and affine-scaled by x/10 + 2.
func (s *onnxSessions) RunMel(samples []float32) ([]MelFrame, error) {
	input, err := ort.NewTensor(ort.NewShape(1, int64(len(samples))), samples)
	if err != nil {
		return nil, fmt.Errorf("model: mel input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	if err := s.mel.Run([]ort.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("model: mel inference: %w", err)
	}
	out := outputs[0].(*ort.Tensor[float32])
	defer out.Destroy()

	shape := out.GetShape()
	t := int(shape[len(shape)-2])
	data := out.GetData()

	frames := make([]MelFrame, t)
	for i := 0; i < t; i++ {
		frame := make(MelFrame, melBins)
		for j := 0; j < melBins; j++ {
			frame[j] = data[i*melBins+j]/10 + 2
		}
		frames[i] = frame
	}
	return frames, nil
}

// RunEmbedding consumes exactly embeddingWindow mel frames and returns one
// embeddingSize-length vector.
func (s *onnxSessions) RunEmbedding(window []MelFrame) ([]float32, error) {
	if len(window) != embeddingWindow {
		return nil, fmt.Errorf("model: embedding window must be %d frames, got %d", embeddingWindow, len(window))
	}
	flat := make([]float32, embeddingWindow*melBins)
	for i, frame := range window {
		copy(flat[i*melBins:], frame)
	}

	input, err := ort.NewTensor(ort.NewShape(1, embeddingWindow, melBins, 1), flat)
	if err != nil {
		return nil, fmt.Errorf("model: embedding input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	if err := s.embed.Run([]ort.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("model: embedding inference: %w", err)
	}
	out := outputs[0].(*ort.Tensor[float32])
	defer out.Destroy()

	vec := make([]float32, embeddingSize)
	copy(vec, out.GetData())
	return vec, nil
}

// RunClassifier consumes the last classifierWindow embeddings and returns a
// single detection score.
func (s *onnxSessions) RunClassifier(embeddings [][]float32) (float32, error) {
	if len(embeddings) != classifierWindow {
		return 0, fmt.Errorf("model: classifier window must be %d embeddings, got %d", classifierWindow, len(embeddings))
	}
	flat := make([]float32, classifierWindow*embeddingSize)
	for i, e := range embeddings {
		copy(flat[i*embeddingSize:], e)
	}

	input, err := ort.NewTensor(ort.NewShape(1, classifierWindow, embeddingSize), flat)
	if err != nil {
		return 0, fmt.Errorf("model: classifier input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	if err := s.classy.Run([]ort.Value{input}, outputs); err != nil {
		return 0, fmt.Errorf("model: classifier inference: %w", err)
	}
	out := outputs[0].(*ort.Tensor[float32])
	defer out.Destroy()

	return out.GetData()[0], nil
}

func (s *onnxSessions) Close() error {
	if s.mel != nil {
		s.mel.Destroy()
		s.mel = nil
	}
	if s.embed != nil {
		s.embed.Destroy()
		s.embed = nil
	}
	if s.classy != nil {
		s.classy.Destroy()
		s.classy = nil
	}
	return nil
}
