package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/mesh-intelligence/carechain/pkg/types"
)

const descriptorSchemaURL = "https://carechain.schemas.local/payload-fields.schema.json"

// descriptorSchemaJSON constrains the structured descriptor shape. Semantic
// rules that JSON Schema cannot express well (blank labels, min > max,
// options on select) are checked during normalization.
const descriptorSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["label"],
    "properties": {
      "name":        {"type": "string"},
      "label":       {"type": "string", "minLength": 1},
      "type":        {"enum": ["text", "number", "email", "date", "textarea", "select"]},
      "required":    {"type": "boolean"},
      "placeholder": {"type": "string"},
      "options": {
        "type": "array",
        "items": {
          "type": "object",
          "required": ["value"],
          "properties": {
            "label": {"type": "string"},
            "value": {"type": "string"}
          }
        }
      },
      "min": {"type": "number"},
      "max": {"type": "number"}
    }
  }
}`

// descriptorSchema is compiled once; a compiled Schema is safe for
// concurrent use.
var descriptorSchema = mustCompileDescriptorSchema()

func mustCompileDescriptorSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(descriptorSchemaURL, strings.NewReader(descriptorSchemaJSON)); err != nil {
		panic(fmt.Sprintf("descriptor schema load failed: %v", err))
	}
	s, err := c.Compile(descriptorSchemaURL)
	if err != nil {
		panic(fmt.Sprintf("descriptor schema compile failed: %v", err))
	}
	return s
}

// validateStructured checks a structured descriptor against the schema.
func validateStructured(raw []byte) error {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidDescriptor, err)
	}
	if err := descriptorSchema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidDescriptor, err)
	}
	return nil
}
