package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/invopop/jsonschema"
)

// JSONSchema generates a JSON Schema document for the configuration file
// format, printed by `accessd config schema` so editors can validate and
// autocomplete config files.
func JSONSchema() ([]byte, error) {
	reflector := &jsonschema.Reflector{
		// Config files address fields by their snake_case yaml names,
		// not the Go field names.
		KeyNamer:       snakeCase,
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(&Config{})
	schema.Title = "accessd configuration"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}

func snakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 && !unicode.IsUpper(rune(name[i-1])) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
