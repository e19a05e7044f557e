package mappings

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultEntry maps a module/key pair to an account code.
type DefaultEntry struct {
	Module      string `yaml:"module"`
	Key         string `yaml:"key"`
	AccountCode string `yaml:"account_code"`
}

// Defaults is the seed file layout.
type Defaults struct {
	Mappings []DefaultEntry `yaml:"mappings"`
}

// LoadDefaults reads a YAML seed file.
func LoadDefaults(path string) (Defaults, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Defaults{}, fmt.Errorf("mappings: read %s: %w", path, err)
	}
	return ParseDefaults(raw)
}

// ParseDefaults decodes and validates YAML seed content.
func ParseDefaults(raw []byte) (Defaults, error) {
	var d Defaults
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return Defaults{}, fmt.Errorf("mappings: parse defaults: %w", err)
	}
	seen := make(map[string]bool, len(d.Mappings))
	for i, entry := range d.Mappings {
		entry.Module = strings.ToUpper(strings.TrimSpace(entry.Module))
		entry.Key = strings.TrimSpace(entry.Key)
		entry.AccountCode = strings.TrimSpace(entry.AccountCode)
		if entry.Module == "" || entry.Key == "" || entry.AccountCode == "" {
			return Defaults{}, fmt.Errorf("mappings: entry %d requires module, key and account_code", i)
		}
		id := entry.Module + "/" + entry.Key
		if seen[id] {
			return Defaults{}, fmt.Errorf("mappings: duplicate entry %s", id)
		}
		seen[id] = true
		d.Mappings[i] = entry
	}
	return d, nil
}
