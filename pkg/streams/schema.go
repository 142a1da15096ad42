package streams

import (
	"embed"
	"encoding/json"
	"fmt"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// LoadSchema loads the declared JSON schema for a stream by name.
func LoadSchema(name string) (map[string]any, error) {
	data, err := schemaFS.ReadFile("schemas/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("load schema %q: %w", name, err)
	}

	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("parse schema %q: %w", name, err)
	}

	return schema, nil
}

// FilterSensitive returns a copy of schema with every property carrying a
// truthy "sensitive" marker removed. Only the declared schema is filtered;
// record payloads are never touched.
func FilterSensitive(schema map[string]any) map[string]any {
	filtered := make(map[string]any, len(schema))
	for k, v := range schema {
		filtered[k] = v
	}

	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return filtered
	}

	kept := make(map[string]any, len(props))
	for name, raw := range props {
		if prop, ok := raw.(map[string]any); ok {
			if sensitive, ok := prop["sensitive"].(bool); ok && sensitive {
				continue
			}
		}
		kept[name] = raw
	}
	filtered["properties"] = kept

	return filtered
}

// StreamSchema loads a stream schema and applies sensitive-field filtering
// unless the stream opted into including sensitive data.
func StreamSchema(name string, includeSensitive bool) (map[string]any, error) {
	schema, err := LoadSchema(name)
	if err != nil {
		return nil, err
	}
	if includeSensitive {
		return schema, nil
	}
	return FilterSensitive(schema), nil
}
