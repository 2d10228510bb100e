package supervisor

import (
	"fmt"
	"io"
	"os"
)

// readUserModel reads a user-supplied classifier file in full and closes
// it, so model.Load receives an in-memory byte source.
func readUserModel(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("supervisor: open user model %q: %w", path, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("supervisor: read user model %q: %w", path, err)
	}
	return data, nil
}
