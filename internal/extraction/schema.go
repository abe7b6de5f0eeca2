package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ResultValidator checks raw transformation results against the label sets
// and column types declared in the transform params.
type ResultValidator struct {
	schema *jsonschema.Schema
}

func NewResultValidator(params TransformParams) (*ResultValidator, error) {
	raw, err := json.Marshal(resultSchema(params))
	if err != nil {
		return nil, fmt.Errorf("marshal result schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("result.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add result schema: %w", err)
	}
	schema, err := compiler.Compile("result.json")
	if err != nil {
		return nil, fmt.Errorf("compile result schema: %w", err)
	}
	return &ResultValidator{schema: schema}, nil
}

func (v *ResultValidator) Validate(raw json.RawMessage) error {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("result does not match contract: %w", err)
	}
	return nil
}

func resultSchema(params TransformParams) map[string]interface{} {
	props := map[string]interface{}{
		"ext_file_id":   map[string]interface{}{"type": "string", "minLength": 1},
		"ext_file_name": map[string]interface{}{"type": []string{"string", "null"}},
		"result_id":     map[string]interface{}{"type": []string{"string", "null"}},
	}
	for _, op := range params.Operations {
		props[op.ColumnName] = columnSchema(op)
	}
	return map[string]interface{}{
		"$schema":    "http://json-schema.org/draft-07/schema#",
		"type":       "object",
		"required":   []string{"ext_file_id"},
		"properties": props,
	}
}

func columnSchema(op Operation) map[string]interface{} {
	if op.ColumnType == "text[]" {
		return map[string]interface{}{
			"type":  []string{"array", "null"},
			"items": map[string]interface{}{"type": "string"},
		}
	}
	if op.TransformType == TransformClassification && len(op.OutputValues) > 0 {
		labels := make([]interface{}, 0, len(op.OutputValues)+1)
		keys := make([]string, 0, len(op.OutputValues))
		for k := range op.OutputValues {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			labels = append(labels, k)
		}
		labels = append(labels, nil)
		return map[string]interface{}{"enum": labels}
	}
	return map[string]interface{}{"type": []string{"string", "null"}}
}
