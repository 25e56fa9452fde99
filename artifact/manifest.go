package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ManifestName is the file listing the artifacts of the last run in a directory
const ManifestName = "manifest.metadata.json"

// WriteManifest records artifacts in dir, replacing any previous manifest
func WriteManifest(dir string, artifacts []Artifact) error {
	b, err := json.MarshalIndent(artifacts, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ManifestName+".*")
	if err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing manifest: %w", err)
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, ManifestName))
}

// ReadManifest returns the artifacts recorded in dir. A directory without a
// manifest has no artifacts.
func ReadManifest(dir string) ([]Artifact, error) {
	b, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var artifacts []Artifact
	if err := json.Unmarshal(b, &artifacts); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return artifacts, nil
}
