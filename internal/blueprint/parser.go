package blueprint

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// Parse decodes topology content, picking the codec from the file
// extension: .json, .yaml/.yml, or .toml.
func Parse(path string, content []byte) (*Topology, error) {
	var t Topology
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := sonic.Unmarshal(content, &t); err != nil {
			return nil, fmt.Errorf("blueprint: parsing %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(content, &t); err != nil {
			return nil, fmt.Errorf("blueprint: parsing %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(content, &t); err != nil {
			return nil, fmt.Errorf("blueprint: parsing %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("blueprint: unsupported topology format %q", ext)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// ParseFile reads and decodes a topology file.
func ParseFile(path string) (*Topology, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("blueprint: reading %s: %w", path, err)
	}
	return Parse(path, content)
}
