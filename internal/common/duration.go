package common

import (
	"time"

	"github.com/invopop/jsonschema"
)

// Duration is a time.Duration wrapper that can be parsed from
// human-readable strings ("30s", "1h30m") in YAML, JSON and TOML configs.
type Duration struct {
	time.Duration
}

// NewDuration creates a Duration from a time.Duration.
func NewDuration(d time.Duration) Duration {
	return Duration{Duration: d}
}

// UnmarshalText implements encoding.TextUnmarshaler, which is honored by
// the yaml.v3, encoding/json and BurntSushi/toml decoders.
func (d *Duration) UnmarshalText(data []byte) error {
	parsed, err := time.ParseDuration(string(data))
	if err != nil {
		return err
	}

	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// JSONSchema returns a custom JSON schema for the Duration type.
func (d Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Title:       "Duration",
		Description: "Duration expressed in units: ns, us, ms, s, m, h (e.g. \"5s\", \"1h30m\")",
		Examples: []any{
			"1m",
			"300ms",
			"5s",
			"1h30m",
		},
	}
}
