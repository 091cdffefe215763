package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadAliases reads the optional alias book: a YAML map of node ID to
// display name, overlaid on the names nodes announce for themselves.
// A missing file yields an empty map.
func LoadAliases(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}

	aliases := make(map[string]string)
	if err := yaml.Unmarshal(data, &aliases); err != nil {
		return nil, fmt.Errorf("parsing aliases: %w", err)
	}
	return aliases, nil
}
