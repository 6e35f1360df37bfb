package qdrant

import (
	"fmt"
	"sort"
	"strings"
)

// Filter is an equality filter over payload keys. A slice value matches any of its elements.
// Nil and empty values are ignored.
type Filter map[string]any

func matchCondition(key string, value any) map[string]any {
	return map[string]any{"key": key, "match": map[string]any{"value": value}}
}

func matchAnyCondition(key string, values []any) map[string]any {
	return map[string]any{"key": key, "match": map[string]any{"any": values}}
}

// translate builds a qdrant filter with the namespace condition first and the remaining keys in
// sorted order so request bodies are deterministic.
func translate(op, qualifiedNS string, f Filter) (map[string]any, error) {
	must := []any{matchCondition(payloadNamespaceKey, qualifiedNS)}

	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		k := strings.TrimSpace(key)
		if k == "" {
			continue
		}
		if strings.HasPrefix(k, "_nb_") {
			return nil, opErr(op, OperationErrorValidation, fmt.Sprintf("filter key %q is reserved", k), nil)
		}
		switch v := f[key].(type) {
		case nil:
			continue
		case string:
			if strings.TrimSpace(v) == "" {
				continue
			}
			must = append(must, matchCondition(k, v))
		case bool, int, int32, int64, uint, uint32, uint64:
			must = append(must, matchCondition(k, v))
		case float64:
			if v != float64(int64(v)) {
				return nil, opErr(op, OperationErrorValidation, fmt.Sprintf("filter key %q: fractional match value", k), nil)
			}
			must = append(must, matchCondition(k, int64(v)))
		case []string:
			if len(v) == 0 {
				continue
			}
			anyOf := make([]any, 0, len(v))
			for _, s := range v {
				anyOf = append(anyOf, s)
			}
			must = append(must, matchAnyCondition(k, anyOf))
		case []any:
			if len(v) == 0 {
				continue
			}
			must = append(must, matchAnyCondition(k, v))
		default:
			return nil, opErr(op, OperationErrorValidation, fmt.Sprintf("filter key %q: unsupported value type %T", k, v), nil)
		}
	}
	return map[string]any{"must": must}, nil
}
