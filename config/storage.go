package config

import "fmt"

// HTTPConfig defines the API server settings.
type HTTPConfig struct {
	Addr string `json:"addr"`
}

// SetDefaults fills zero-valued fields.
func (c *HTTPConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend string `json:"backend"` // "memory" or "sqlite"
	Path    string `json:"path"`    // sqlite database file
}

// SetDefaults fills zero-valued fields.
func (c *StorageConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
}

// Validate checks the backend selection.
func (c StorageConfig) Validate() error {
	switch c.Backend {
	case "memory":
		return nil
	case "sqlite":
		if c.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite backend")
		}
		return nil
	default:
		return fmt.Errorf("unknown storage backend %q", c.Backend)
	}
}
