package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// FileDeviceID provides a stable anonymous device identifier persisted to a
// local file. The first call generates a UUID and writes it; later calls
// (and later processes) read it back.
type FileDeviceID struct {
	path string

	mu     sync.Mutex
	cached string
}

// NewFileDeviceID creates a provider backed by the file at path.
func NewFileDeviceID(path string) *FileDeviceID {
	return &FileDeviceID{path: path}
}

// DeviceID returns the stable identifier, generating and persisting one on
// first use.
func (p *FileDeviceID) DeviceID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != "" {
		return p.cached, nil
	}

	if data, err := os.ReadFile(p.path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			p.cached = id
			return id, nil
		}
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return "", fmt.Errorf("infra: ensure device id directory: %w", err)
	}
	if err := os.WriteFile(p.path, []byte(id+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("infra: persist device id: %w", err)
	}
	p.cached = id
	return id, nil
}
