// Package manifest describes what a cache generation holds: a version name
// and the relative paths of the resources fetched at install time.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultVersion names the generation of the built-in manifest. Bump it
// whenever StopMotion changes.
const DefaultVersion = "stop-motion-cache-v2"

var (
	ErrNoVersion   = errors.New("manifest: version is required")
	ErrNoResources = errors.New("manifest: at least one resource is required")
)

type Manifest struct {
	Version   string   `json:"version" yaml:"version"`
	Resources []string `json:"resources" yaml:"resources"`
}

// Validate checks the manifest is usable. Duplicates are compared literally;
// paths that only resolve to the same request are rejected later, when the
// manager resolves them against its scope.
func (m Manifest) Validate() error {
	if strings.TrimSpace(m.Version) == "" {
		return ErrNoVersion
	}
	if len(m.Resources) == 0 {
		return ErrNoResources
	}
	seen := make(map[string]struct{}, len(m.Resources))
	for i, r := range m.Resources {
		if strings.TrimSpace(r) == "" {
			return fmt.Errorf("manifest: resource %d is empty", i)
		}
		if _, dup := seen[r]; dup {
			return fmt.Errorf("manifest: duplicate resource %q", r)
		}
		seen[r] = struct{}{}
	}
	return nil
}

// Load reads a manifest from a .json, .yaml or .yml file and validates it.
func Load(path string) (Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(b, &m)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &m)
	default:
		return Manifest{}, fmt.Errorf("manifest: unsupported file type %q", ext)
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("manifest: parse %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// StopMotion is the built-in manifest of the stop-motion animator: the app
// shell, both script bundles, the install icons and every toolbar icon the
// UI loads.
func StopMotion() Manifest {
	return Manifest{
		Version: DefaultVersion,
		Resources: []string{
			"./",
			"./index.html",
			"./animator.css",
			"./manifest.json",
			"./js/main.js",
			"./js/assets.js",
			"./images/stop-motion-192.png",
			"./images/stop-motion-512.png",
			"./images/capture72.png",
			"./images/undo72.png",
			"./images/playpause72.png",
			"./images/clear72.png",
			"./images/save72.png",
			"./images/load72.png",
			"./images/flip72.png",
			"./images/on72.png",
			"./images/off72.png",
			"./images/clock72.png",
			"./images/recordAudio.png",
			"./images/clearAudio.png",
		},
	}
}
