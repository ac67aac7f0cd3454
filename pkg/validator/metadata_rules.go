package validator

import "fmt"

// JSONMetadata validates that a metadata map is recursively JSON-compatible:
// strings, numbers, bools, nil, []any, and map[string]any only. Exotic types
// (channels, funcs, structs, cyclic values via custom types) are rejected with
// the path of the offending element.
func JSONMetadata(field string, metadata map[string]any) Rule {
	path, ok := checkJSONValue(metadata, "")
	return Rule{
		Check: func() bool {
			return ok
		},
		Error: ValidationError{
			Field:   field,
			Value:   metadata,
			Message: fmt.Sprintf("metadata contains a non-JSON-serializable value at %q", path),
		},
	}
}

// checkJSONValue walks a value and returns the path of the first element that
// is not JSON-compatible.
func checkJSONValue(v any, path string) (string, bool) {
	switch val := v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return "", true
	case []any:
		for i, item := range val {
			itemPath := fmt.Sprintf("%s[%d]", path, i)
			if p, ok := checkJSONValue(item, itemPath); !ok {
				return p, false
			}
		}
		return "", true
	case map[string]any:
		for key, item := range val {
			itemPath := key
			if path != "" {
				itemPath = path + "." + key
			}
			if p, ok := checkJSONValue(item, itemPath); !ok {
				return p, false
			}
		}
		return "", true
	default:
		return path, false
	}
}
