package extract

// normalizeSchema applies §4.J step 2's JSON-schema normalization: force
// additionalProperties:false, mark every declared property required, strip
// any default key (the LLM should never be nudged toward a default instead
// of extracting the real value), and wrap a bare array schema in a
// single-property object so the underlying structured-output API (which
// expects an object at the top level) can still enforce it. Returns the
// normalized schema and whether the original was array-shaped, so the
// caller can unwrap the "items" property after extraction (step 5).
func normalizeSchema(schema map[string]interface{}) (map[string]interface{}, bool) {
	if schema == nil {
		return nil, false
	}

	wasArray := schema["type"] == "array"
	if wasArray {
		schema = map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"items": schema,
			},
			"required": []string{"items"},
		}
	}

	return normalizeObject(schema), wasArray
}

// normalizeObject recursively applies the additionalProperties/required/
// default rules to schema and any nested object/array property schemas.
func normalizeObject(schema map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(schema))
	for k, v := range schema {
		if k == "default" {
			continue
		}
		out[k] = v
	}

	if out["type"] == "object" {
		out["additionalProperties"] = false
		if props, ok := out["properties"].(map[string]interface{}); ok {
			required := make([]string, 0, len(props))
			normalizedProps := make(map[string]interface{}, len(props))
			for name, propSchema := range props {
				required = append(required, name)
				if nested, ok := propSchema.(map[string]interface{}); ok {
					normalizedProps[name] = normalizeObject(nested)
				} else {
					normalizedProps[name] = propSchema
				}
			}
			out["properties"] = normalizedProps
			out["required"] = required
		}
	}

	if out["type"] == "array" {
		if items, ok := out["items"].(map[string]interface{}); ok {
			out["items"] = normalizeObject(items)
		}
	}

	return out
}

// unwrapItems undoes the array-wrapping from normalizeSchema: given the
// extraction result for a wrapped schema, returns the "items" value as the
// effective result (§4.J step 5).
func unwrapItems(result map[string]interface{}) interface{} {
	if result == nil {
		return nil
	}
	return result["items"]
}
