package fetcher

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// commonItemKeys are the wrappers open-data APIs put around their records.
var commonItemKeys = []string{"items", "data", "records", "results", "result.records", "result.items"}

// DecodeJSONItems reads a JSON document and returns its records. The document
// is either a top-level array or an object whose array lives under itemsPath
// (a dot path). With no path the common wrapper keys are tried in order.
func DecodeJSONItems(r io.Reader, itemsPath string) ([]map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, eris.Wrap(err, "json: decode document")
	}

	if arr, ok := doc.([]any); ok {
		return objects(arr)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, eris.Errorf("json: expected array or object, got %T", doc)
	}

	paths := commonItemKeys
	if itemsPath != "" {
		paths = []string{itemsPath}
	}
	for _, p := range paths {
		if arr, ok := lookupPath(obj, p).([]any); ok {
			return objects(arr)
		}
	}
	if itemsPath != "" {
		return nil, eris.Errorf("json: no array at %q", itemsPath)
	}
	return nil, eris.New("json: no record array found")
}

func lookupPath(obj map[string]any, path string) any {
	var cur any = obj
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

func objects(arr []any) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(arr))
	for i, el := range arr {
		m, ok := el.(map[string]any)
		if !ok {
			return nil, eris.Errorf("json: element %d is %T, not an object", i, el)
		}
		out = append(out, m)
	}
	return out, nil
}

// FlattenJSON turns a record into string fields keyed by dot path. Arrays of
// scalars are joined with "; ".
func FlattenJSON(rec map[string]any) map[string]string {
	out := make(map[string]string)
	flattenInto(out, "", rec)
	return out
}

func flattenInto(out map[string]string, prefix string, v any) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flattenInto(out, key, val[k])
		}
	case []any:
		parts := make([]string, 0, len(val))
		for i, el := range val {
			switch el.(type) {
			case map[string]any, []any:
				flattenInto(out, fmt.Sprintf("%s.%d", prefix, i), el)
			default:
				parts = append(parts, scalarString(el))
			}
		}
		if len(parts) > 0 {
			out[prefix] = strings.Join(parts, "; ")
		}
	default:
		out[prefix] = scalarString(val)
	}
}

func scalarString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(val)
	}
}
