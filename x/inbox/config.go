package inbox

import (
	"fmt"
)

// Config selects how tx data is submitted.
type Config struct {
	// DAType is DATypeInline or DATypeObjectStore. Blob tx data always uses DATypeBlob.
	DAType DAType `mapstructure:"da_type"    yaml:"da_type"`
	// Compress zlib-compresses inline and object store frame data.
	Compress bool `mapstructure:"compress"   yaml:"compress"`
	// StorePath is the LevelDB directory of the object store, empty for memory.
	StorePath string `mapstructure:"store_path" yaml:"store_path"`
}

func DefaultConfig() Config {
	return Config{
		DAType:   DATypeInline,
		Compress: false,
	}
}

func (c Config) Validate() error {
	if c.DAType != DATypeInline && c.DAType != DATypeObjectStore {
		return fmt.Errorf("da_type must be %d or %d, got %d", DATypeInline, DATypeObjectStore, c.DAType)
	}
	return nil
}
