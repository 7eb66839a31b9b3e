package schema

import (
	"encoding/json"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// Coerce transforms a loosely-typed value toward the shape described by a
// JSON-Schema-like fragment (schema is typically map[string]interface{},
// decoded from JSON). It never fails: any step it cannot apply leaves the
// value unchanged and falls through to the next heuristic. An absent or
// unrecognised schema is the identity transform.
//
// It is separate from JSONSchemaValidator in validator.go, whose Validate
// returns nil for every input. Coerce is coercion, not validation: the
// engine never reports errors, it only does its best to reshape the value.
func Coerce(value interface{}, schema interface{}) interface{} {
	return coerceAny(value, schema, map[uintptr]bool{})
}

func coerceAny(value interface{}, schemaRaw interface{}, visited map[uintptr]bool) interface{} {
	schema, ok := asSchemaMap(schemaRaw)
	if !ok {
		return value
	}
	if ptr, has := mapPointer(schema); has {
		if visited[ptr] {
			return value
		}
		visited = withVisited(visited, ptr)
	}

	if enumRaw, ok := schema["enum"]; ok {
		if enumVals, ok := enumRaw.([]interface{}); ok && len(enumVals) > 0 {
			if coerced, matched := coerceEnum(value, enumVals); matched {
				return coerced
			}
		}
	}

	switch schemaType(schema) {
	case "array":
		return coerceArray(value, schema, visited)
	case "object":
		return coerceObject(value, schema, visited)
	case "string", "number", "integer", "boolean":
		return coerceLeaf(value, schemaType(schema))
	default:
		// No recognised type keyword: fall back on shape-based inference.
		if _, hasProps := schema["properties"]; hasProps {
			return coerceObject(value, schema, visited)
		}
		if _, hasItems := schema["items"]; hasItems {
			return coerceArray(value, schema, visited)
		}
		return value
	}
}

func withVisited(visited map[uintptr]bool, ptr uintptr) map[uintptr]bool {
	next := make(map[uintptr]bool, len(visited)+1)
	for k := range visited {
		next[k] = true
	}
	next[ptr] = true
	return next
}

func mapPointer(m map[string]interface{}) (uintptr, bool) {
	if m == nil {
		return 0, false
	}
	v := reflect.ValueOf(m)
	if v.Kind() != reflect.Map {
		return 0, false
	}
	return v.Pointer(), true
}

func asSchemaMap(schemaRaw interface{}) (map[string]interface{}, bool) {
	switch s := schemaRaw.(type) {
	case map[string]interface{}:
		return s, true
	case nil:
		return nil, false
	default:
		return nil, false
	}
}

func schemaType(schema map[string]interface{}) string {
	t, ok := schema["type"]
	if !ok {
		return ""
	}
	switch v := t.(type) {
	case string:
		return v
	case []interface{}:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

// --- enum coercion ---

func coerceEnum(value interface{}, enumVals []interface{}) (interface{}, bool) {
	for _, candidate := range enumVals {
		if valuesEqual(value, candidate) {
			return candidate, true
		}
	}

	s, ok := valueToString(value)
	if !ok {
		return value, false
	}

	stripped := strings.Join(strings.Fields(s), "")
	if matches := matchEnumStrings(stripped, enumVals, false); len(matches) == 1 {
		return matches[0], true
	}

	quoteStripped := strings.Trim(stripped, `"'`)
	if matches := matchEnumStrings(quoteStripped, enumVals, true); len(matches) == 1 {
		return matches[0], true
	}

	return value, false
}

func matchEnumStrings(candidate string, enumVals []interface{}, alsoQuoteStrip bool) []interface{} {
	var matches []interface{}
	for _, e := range enumVals {
		es, ok := e.(string)
		if !ok {
			continue
		}
		target := strings.Join(strings.Fields(es), "")
		if alsoQuoteStrip {
			target = strings.Trim(target, `"'`)
		}
		if target == candidate {
			matches = append(matches, e)
		}
	}
	return matches
}

func valuesEqual(a, b interface{}) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af == bf
	}
	return false
}

// --- leaf coercion: string/number/integer/boolean ---

func coerceLeaf(value interface{}, targetType string) interface{} {
	// Primitive wrapper extraction: a single-key object whose value is a
	// primitive coercible to the target type unwraps first.
	if m, ok := value.(map[string]interface{}); ok && len(m) == 1 {
		for _, v := range m {
			if isPrimitive(v) {
				value = v
			}
		}
	}

	switch targetType {
	case "string":
		return coerceToString(value)
	case "number":
		v, ok := asFloat(value)
		if ok {
			return v
		}
		return value
	case "integer":
		v, ok := asFloat(value)
		if ok && v == float64(int64(v)) {
			return v
		}
		return value
	case "boolean":
		v, ok := asBool(value)
		if ok {
			return v
		}
		return value
	default:
		return value
	}
}

func isPrimitive(v interface{}) bool {
	switch v.(type) {
	case string, float64, int, int64, bool:
		return true
	default:
		return false
	}
}

func coerceToString(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return formatFloat(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return value
	}
}

func formatFloat(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func asFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asBool(value interface{}) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		if s == "true" {
			return true, true
		}
		if s == "false" {
			return false, true
		}
		return false, false
	case float64:
		if v == 0 {
			return false, true
		}
		if v == 1 {
			return true, true
		}
		return false, false
	case int:
		if v == 0 {
			return false, true
		}
		if v == 1 {
			return true, true
		}
		return false, false
	default:
		return false, false
	}
}

func valueToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case float64:
		return formatFloat(v), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}

// --- array coercion ---

func coerceArray(value interface{}, schema map[string]interface{}, visited map[uintptr]bool) interface{} {
	itemsSchema, _ := schema["items"].(map[string]interface{})
	prefixItems, _ := schema["prefixItems"].([]interface{})

	if arr, ok := value.([]interface{}); ok {
		out := make([]interface{}, len(arr))
		for i, item := range arr {
			if prefixItems != nil && i < len(prefixItems) {
				out[i] = coerceAny(item, prefixItems[i], visited)
				continue
			}
			if itemsSchema != nil {
				out[i] = coerceAny(item, itemsSchema, visited)
				continue
			}
			out[i] = item
		}
		return out
	}

	obj, isObj := value.(map[string]interface{})
	if isObj {
		if len(obj) == 1 {
			for k, v := range obj {
				if inner, ok := v.([]interface{}); ok {
					if k == "item" || !itemsSchemaAcceptsKey(itemsSchema, k) {
						return coerceArray(inner, schema, visited)
					}
				}
			}
		}

		if ordered, ok := asConsecutiveIntegerKeyedArray(obj); ok {
			return coerceArray(ordered, schema, visited)
		}

		if transposed, ok := transposeParallelArrays(obj, itemsSchema); ok {
			return coerceArray(transposed, schema, visited)
		}

		if itemsSchema != nil && schemaType(itemsSchema) == "object" {
			return []interface{}{coerceAny(value, itemsSchema, visited)}
		}
	}

	return []interface{}{value}
}

// itemsSchemaAcceptsKey implements the 4-way test from spec §4.2: the array
// wrapper-unwrap only applies when the items schema cannot plausibly accept
// the wrapper key as one of its own properties.
func itemsSchemaAcceptsKey(itemsSchema map[string]interface{}, key string) bool {
	if itemsSchema == nil || len(itemsSchema) == 0 {
		// Unconstrained items schema: treat as accepting (so we do NOT unwrap).
		return true
	}
	if t := schemaType(itemsSchema); t != "" && t != "object" {
		// A primitive or array items schema plainly cannot accept a wrapper
		// key as one of its own properties.
		return false
	}
	additionalProps, hasAdditional := itemsSchema["additionalProperties"]
	closed := hasAdditional
	if closed {
		if b, ok := additionalProps.(bool); !ok || b {
			closed = false
		}
	}
	if !closed {
		return true
	}
	if props, ok := itemsSchema["properties"].(map[string]interface{}); ok {
		if _, found := props[key]; found {
			return true
		}
	}
	if patterns, ok := itemsSchema["patternProperties"].(map[string]interface{}); ok {
		for pattern := range patterns {
			if re, err := regexp.Compile(pattern); err == nil && re.MatchString(key) {
				return true
			}
		}
	}
	for _, combinator := range []string{"anyOf", "oneOf", "allOf"} {
		branches, ok := itemsSchema[combinator].([]interface{})
		if !ok {
			continue
		}
		for _, branchRaw := range branches {
			branch, ok := branchRaw.(map[string]interface{})
			if !ok {
				continue
			}
			if itemsSchemaAcceptsKey(branch, key) {
				return true
			}
		}
	}
	return false
}

func asConsecutiveIntegerKeyedArray(obj map[string]interface{}) ([]interface{}, bool) {
	if len(obj) == 0 {
		return nil, false
	}
	out := make([]interface{}, len(obj))
	for k, v := range obj {
		idx, err := strconv.Atoi(k)
		if err != nil || idx < 0 || idx >= len(obj) {
			return nil, false
		}
		out[idx] = v
	}
	return out, true
}

func transposeParallelArrays(obj map[string]interface{}, itemsSchema map[string]interface{}) ([]interface{}, bool) {
	if itemsSchema == nil {
		return nil, false
	}
	if additionalProps, ok := itemsSchema["additionalProperties"].(bool); !ok || additionalProps {
		return nil, false
	}
	props, _ := itemsSchema["properties"].(map[string]interface{})
	required, _ := itemsSchema["required"].([]interface{})
	if props == nil || len(required) != len(props) {
		return nil, false
	}

	length := -1
	arrays := make(map[string][]interface{}, len(obj))
	for k, v := range obj {
		arr, ok := v.([]interface{})
		if !ok {
			return nil, false
		}
		if length == -1 {
			length = len(arr)
		} else if len(arr) != length {
			return nil, false
		}
		arrays[k] = arr
	}
	if length <= 0 {
		return nil, false
	}

	out := make([]interface{}, length)
	for i := 0; i < length; i++ {
		row := make(map[string]interface{}, len(arrays))
		for k, arr := range arrays {
			row[k] = arr[i]
		}
		out[i] = row
	}
	return out, true
}

// --- object coercion ---

func coerceObject(value interface{}, schema map[string]interface{}, visited map[uintptr]bool) interface{} {
	if s, ok := value.(string); ok {
		var parsed interface{}
		if err := json.Unmarshal([]byte(s), &parsed); err == nil {
			if _, isObj := parsed.(map[string]interface{}); isObj {
				value = parsed
			}
		}
	}

	obj, ok := value.(map[string]interface{})
	if !ok {
		return value
	}

	properties, _ := schema["properties"].(map[string]interface{})
	patternProps, _ := schema["patternProperties"].(map[string]interface{})
	additionalSchema, additionalIsSchema := schema["additionalProperties"].(map[string]interface{})
	additionalBool, hasAdditionalBool := schema["additionalProperties"].(bool)
	additionalClosed := hasAdditionalBool && !additionalBool

	out := make(map[string]interface{}, len(obj))
	for key, v := range obj {
		if propSchema, found := properties[key]; found {
			out[key] = coerceAny(v, propSchema, visited)
			continue
		}
		matchedPattern := false
		for pattern, patternSchema := range patternProps {
			if re, err := regexp.Compile(pattern); err == nil && re.MatchString(key) {
				out[key] = coerceAny(v, patternSchema, visited)
				matchedPattern = true
				break
			}
		}
		if matchedPattern {
			continue
		}
		if additionalIsSchema {
			out[key] = coerceAny(v, additionalSchema, visited)
			continue
		}
		out[key] = v
	}

	if additionalClosed && properties != nil {
		applyStrictKeyRenaming(out, schema, properties, visited)
	}

	return out
}

// applyStrictKeyRenaming implements spec §4.2's strict-object key-renaming
// rule: when additionalProperties:false and a required key is missing, an
// unambiguous extra key renamed via snake/camel normalisation, leading
// underscore removal, or singular->plural pluralisation is moved onto it.
func applyStrictKeyRenaming(out map[string]interface{}, schema map[string]interface{}, properties map[string]interface{}, visited map[uintptr]bool) {
	required, _ := schema["required"].([]interface{})
	if len(required) == 0 {
		return
	}

	extraKeys := make([]string, 0)
	for k := range out {
		if _, isDeclared := properties[k]; !isDeclared {
			extraKeys = append(extraKeys, k)
		}
	}
	if len(extraKeys) == 0 {
		return
	}

	for _, reqRaw := range required {
		req, ok := reqRaw.(string)
		if !ok {
			continue
		}
		if _, present := out[req]; present {
			continue
		}
		propSchema, _ := properties[req].(map[string]interface{})
		wantsArray := propSchema != nil && schemaType(propSchema) == "array"

		var matches []string
		for _, extra := range extraKeys {
			if _, alreadyUsed := out[extra]; !alreadyUsed {
				continue
			}
			if keysEquivalent(extra, req, wantsArray) {
				matches = append(matches, extra)
			}
		}
		if len(matches) != 1 {
			continue
		}
		matched := matches[0]
		v := out[matched]
		delete(out, matched)
		if propSchema != nil {
			out[req] = coerceAny(v, propSchema, visited)
		} else {
			out[req] = v
		}
	}
}

func keysEquivalent(extra, required string, wantsArray bool) bool {
	if normalizeKey(extra) == normalizeKey(required) {
		return true
	}
	if strings.TrimPrefix(extra, "_") == required || extra == strings.TrimPrefix(required, "_") {
		return true
	}
	if wantsArray && pluralize(extra) == required {
		return true
	}
	return false
}

func normalizeKey(s string) string {
	s = strings.TrimPrefix(s, "_")
	s = strings.ReplaceAll(s, "_", "")
	return strings.ToLower(s)
}

func pluralize(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	switch {
	case strings.HasSuffix(lower, "s"), strings.HasSuffix(lower, "x"), strings.HasSuffix(lower, "z"),
		strings.HasSuffix(lower, "ch"), strings.HasSuffix(lower, "sh"):
		return s + "es"
	case strings.HasSuffix(lower, "y") && len(s) > 1 && !isVowel(rune(lower[len(lower)-2])):
		return s[:len(s)-1] + "ies"
	default:
		return s + "s"
	}
}

func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	default:
		return false
	}
}
