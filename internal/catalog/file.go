package catalog

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// fileFormat is the on-disk layout:
//
//	[voices.female]
//	english = ["en-US-AriaNeural", "en-GB-SoniaNeural"]
type fileFormat struct {
	Voices map[string]map[string][]string `toml:"voices"`
}

// LoadFile reads a TOML voice table. An empty path yields the default catalog.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var f fileFormat
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: decode toml: %w", err)
	}
	return New(f.Voices)
}
