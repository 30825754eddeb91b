package operations

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"github.com/triage-ai/icio-mcp/internal/apperr"
)

// compileSchema derives the JSON Schema of the operation's arguments. The
// same document is advertised to tool callers and used for the structural
// type check that runs before any field validator. Value ranges are left to
// the validators so they report OutOfRange rather than a type error.
func (d *Descriptor) compileSchema() error {
	props := make(map[string]any, len(d.Fields))
	required := make([]string, 0, len(d.Fields))
	for _, f := range d.Fields {
		p := map[string]any{}
		switch f.Kind {
		case KindCountry, KindCountryOrAggregate, KindSector:
			p["type"] = "string"
		case KindYear, KindLimit:
			p["type"] = "integer"
		case KindCountryList:
			p["type"] = "array"
			p["items"] = map[string]any{"type": "string"}
		}
		if f.Description != "" {
			p["description"] = f.Description
		}
		if f.Default != nil {
			p["default"] = f.Default
		}
		props[f.Name] = p
		if f.Required {
			required = append(required, f.Name)
		}
	}

	doc := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		doc["required"] = required
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal input schema: %w", err)
	}
	schemaObj, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("unmarshal input schema: %w", err)
	}

	url := d.Name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, schemaObj); err != nil {
		return fmt.Errorf("input schema: %w", err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return fmt.Errorf("input schema: %w", err)
	}

	d.inputSchema = raw
	d.schema = sch
	return nil
}

// checkSchema validates decoded arguments structurally and reports the
// violation on the earliest declared field.
func (d *Descriptor) checkSchema(args map[string]any) error {
	err := d.schema.Validate(args)
	if err == nil {
		return nil
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return apperr.New(apperr.KindInvalidType, "", "arguments are invalid: %v", err)
	}

	var found []*apperr.Error
	for _, leaf := range leafErrors(ve) {
		found = append(found, d.schemaViolation(leaf))
	}
	if len(found) == 0 {
		return apperr.New(apperr.KindInvalidType, "", "arguments are invalid")
	}

	first := found[0]
	for _, e := range found[1:] {
		if d.fieldOrder(e.Field) < d.fieldOrder(first.Field) {
			first = e
		}
	}
	return first
}

func leafErrors(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var out []*jsonschema.ValidationError
	for _, c := range ve.Causes {
		out = append(out, leafErrors(c)...)
	}
	return out
}

func (d *Descriptor) schemaViolation(leaf *jsonschema.ValidationError) *apperr.Error {
	switch k := leaf.ErrorKind.(type) {
	case *kind.Required:
		field := ""
		for _, name := range k.Missing {
			if field == "" || d.fieldOrder(name) < d.fieldOrder(field) {
				field = name
			}
		}
		return apperr.New(apperr.KindMissingField, field, "%s is required", field)
	case *kind.Type:
		field, elem := fieldFromLocation(leaf.InstanceLocation)
		if f, ok := d.field(field); ok && f.Kind == KindCountryList && elem == "" {
			return apperr.New(apperr.KindEmptyList, field, "%s must be a non-empty list", field)
		}
		if elem != "" {
			field = field + "[" + elem + "]"
		}
		return apperr.New(apperr.KindInvalidType, field,
			"%s must be %s, got %s", field, strings.Join(k.Want, " or "), k.Got)
	default:
		field, _ := fieldFromLocation(leaf.InstanceLocation)
		return apperr.New(apperr.KindInvalidType, field, "%s is invalid", field)
	}
}

// fieldFromLocation splits an instance location into the argument name and,
// for list elements, the element index.
func fieldFromLocation(loc []string) (field, elem string) {
	if len(loc) > 0 {
		field = loc[0]
	}
	if len(loc) > 1 {
		elem = loc[1]
	}
	return field, elem
}

// fieldOrder ranks fields by declaration; unknown names sort last.
func (d *Descriptor) fieldOrder(name string) int {
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	if i, ok := d.fieldIndex[name]; ok {
		return i
	}
	return len(d.Fields)
}
