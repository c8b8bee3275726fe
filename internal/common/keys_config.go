package common

// KeysDirConfig contains configuration for key/value file loading, consumed
// by StorageConfig.Keys at startup (internal/app.New).
type KeysDirConfig struct {
	// Dir is the directory containing key/value files in TOML format
	// Each TOML file has [section-name] entries with 'value' and optional 'description' fields
	// Default: ./keys
	Dir string `toml:"dir"`
}
