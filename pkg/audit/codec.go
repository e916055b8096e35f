package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp-forge/rdocs/pkg/models"
)

// Flatten converts a mutation into the string fields stored in a stream
// entry. Objects and arrays become their JSON text, strings are stored as
// is, and every other scalar is stored as its JSON literal. The result is a
// flat key/value list sorted by key.
func Flatten(mutation models.Body) ([]interface{}, error) {
	keys := make([]string, 0, len(mutation))
	for k := range mutation {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]interface{}, 0, 2*len(keys))
	for _, k := range keys {
		v, err := flattenValue(mutation[k])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out = append(out, k, v)
	}
	return out, nil
}

func flattenValue(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case nil:
		return "null", nil
	case bool:
		if val {
			return "true", nil
		}
		return "false", nil
	case json.Number:
		return val.String(), nil
	}

	b, err := models.MarshalValue(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Decode reverses Flatten as far as it can. A value that looks like a JSON
// object, array, string or true/false/null literal is parsed as JSON; if
// that fails, or the value looks like anything else, it is kept as text.
//
// A genuine string that happens to look like JSON (for example "[draft]"
// stored from a string field) cannot be told apart from an encoded array and
// comes back as whatever it parses to.
func Decode(values map[string]interface{}) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		s, ok := v.(string)
		if !ok {
			out[k] = v
			continue
		}
		out[k] = decodeValue(s)
	}
	return out
}

func decodeValue(s string) any {
	if !looksLikeJSON(s) {
		return s
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return s
	}
	return v
}

func looksLikeJSON(s string) bool {
	switch s {
	case "true", "false", "null":
		return true
	}
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") || strings.HasPrefix(s, `"`)
}
