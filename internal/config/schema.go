package config

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	pkgconfig "github.com/goran-ethernal/ChainFilters/pkg/config"
)

// GenerateSchema returns the JSON schema describing the daemon configuration,
// pretty-printed. Custom types (Duration) contribute their own schemas.
func GenerateSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: false,
	}

	schema := reflector.Reflect(&pkgconfig.Config{})
	schema.Title = "ChainFilters configuration"
	schema.Description = "Configuration for the filterd daemon"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config schema: %w", err)
	}

	return data, nil
}
