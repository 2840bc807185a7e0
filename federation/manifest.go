package federation

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// ManifestFile is the conventional name of a remote's entry artifact.
const ManifestFile = "remoteEntry.json"

// Manifest is the entry artifact a remote publishes. Exposes maps each
// exposed name to the implementation handle the shell resolves through its
// Catalog.
type Manifest struct {
	Name    string            `json:"name"`
	Exposes map[string]string `json:"exposes"`
	Shared  []SharedLib       `json:"shared,omitempty"`
}

// Handle returns the implementation handle for an exposed name.
func (m Manifest) Handle(exposedName string) (string, bool) {
	handle, ok := m.Exposes[exposedName]
	return handle, ok
}

// Validate checks the manifest is well formed.
func (m Manifest) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidManifest)
	}
	for exposed, handle := range m.Exposes {
		if strings.TrimSpace(exposed) == "" || strings.TrimSpace(handle) == "" {
			return fmt.Errorf("%w: empty exposed entry in %s", ErrInvalidManifest, m.Name)
		}
	}
	seen := make(map[string]bool, len(m.Shared))
	for i, lib := range m.Shared {
		if strings.TrimSpace(lib.Name) == "" {
			return fmt.Errorf("%w: shared[%d] missing name", ErrInvalidManifest, i)
		}
		if seen[lib.Name] {
			return fmt.Errorf("%w: shared library %s declared twice", ErrInvalidManifest, lib.Name)
		}
		seen[lib.Name] = true
	}
	return nil
}

// Encode writes the manifest as JSON.
func (m Manifest) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

// DecodeManifest reads and validates a JSON manifest.
func DecodeManifest(r io.Reader) (Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// ReadManifestFile reads and validates a JSON manifest from path.
func ReadManifestFile(path string) (Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Manifest{}, err
	}
	defer f.Close()
	return DecodeManifest(f)
}
