package operations

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/triage-ai/icio-mcp/internal/apperr"
	"github.com/triage-ai/icio-mcp/internal/validate"
)

// Binder turns raw tool arguments into validated Params for a descriptor.
//
// Binding runs in three passes and stops at the first failure:
//  1. structural type check against the descriptor's JSON Schema
//  2. defaults, then format and range checks for every field, then the
//     year-range rule
//  3. reference-table lookups, in field order
//
// No pass-3 lookup happens unless every field passed pass 2.
type Binder struct {
	validator *validate.Validator
}

// NewBinder creates a Binder using the given validator for lookups.
func NewBinder(v *validate.Validator) *Binder {
	return &Binder{validator: v}
}

// Bind validates raw against d and returns the bound parameters.
func (b *Binder) Bind(ctx context.Context, d *Descriptor, raw map[string]any) (*Params, error) {
	args, err := decodeArgs(raw)
	if err != nil {
		return nil, err
	}
	if err := d.checkSchema(args); err != nil {
		return nil, err
	}

	values := make(map[string]any, len(d.Fields))
	for _, f := range d.Fields {
		rv, present := args[f.Name]
		if !present || rv == nil {
			if f.Required {
				return nil, apperr.New(apperr.KindMissingField, f.Name, "%s is required", f.Name)
			}
			if f.Default == nil {
				continue
			}
			rv = f.Default
		}
		v, err := checkFormat(f, rv, d.LimitCap)
		if err != nil {
			return nil, err
		}
		values[f.Name] = v
	}

	if r := d.YearRange; r != nil {
		from, fromOK := values[r.From].(int)
		to, toOK := values[r.To].(int)
		if fromOK && toOK {
			if err := validate.CheckRange(r.From, from, r.To, to); err != nil {
				return nil, err
			}
		}
	}

	for _, f := range d.Fields {
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		if err := b.lookup(ctx, f, v); err != nil {
			return nil, err
		}
		if list, ok := v.(validate.CountryList); ok {
			values[f.Name] = list.Codes
		}
	}

	return &Params{values: values}, nil
}

func (b *Binder) lookup(ctx context.Context, f Field, v any) error {
	switch f.Kind {
	case KindCountry, KindCountryOrAggregate:
		return b.validator.LookupCountry(ctx, f.Name, v.(string))
	case KindSector:
		return b.validator.LookupSector(ctx, f.Name, v.(string))
	case KindCountryList:
		return b.validator.LookupCountries(ctx, f.Name, v.(validate.CountryList))
	}
	return nil
}

// checkFormat applies the lookup-free validator for the field's kind.
func checkFormat(f Field, raw any, limitCap int) (any, error) {
	switch f.Kind {
	case KindCountry:
		return validate.CountryCode(f.Name, raw, false)
	case KindCountryOrAggregate:
		return validate.CountryCode(f.Name, raw, true)
	case KindSector:
		return validate.SectorCode(f.Name, raw)
	case KindYear:
		return validate.Year(f.Name, raw)
	case KindLimit:
		return validate.Limit(f.Name, raw, limitCap)
	case KindCountryList:
		return validate.CountryCodes(f.Name, raw)
	}
	return nil, apperr.New(apperr.KindInvalidType, f.Name, "%s has an unsupported kind %q", f.Name, f.Kind)
}

// decodeArgs re-encodes caller arguments into plain JSON values so Go
// callers and the wire protocol go through identical checks. Null arguments
// are dropped and treated as absent.
func decodeArgs(raw map[string]any) (map[string]any, error) {
	if raw == nil {
		return map[string]any{}, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, apperr.New(apperr.KindInvalidType, "", "arguments must be a JSON object: %v", err)
	}
	decoded, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.New(apperr.KindInvalidType, "", "arguments must be a JSON object: %v", err)
	}
	args, ok := decoded.(map[string]any)
	if !ok {
		return nil, apperr.New(apperr.KindInvalidType, "", "arguments must be a JSON object")
	}
	for k, v := range args {
		if v == nil {
			delete(args, k)
		}
	}
	return args, nil
}

// Params is an immutable set of validated parameters.
type Params struct {
	values map[string]any
}

// Has reports whether the parameter was bound.
func (p *Params) Has(name string) bool {
	_, ok := p.values[name]
	return ok
}

// Value returns a parameter suitable for a response or a query argument.
// Lists are copied.
func (p *Params) Value(name string) any {
	v := p.values[name]
	if s, ok := v.([]string); ok {
		return append([]string(nil), s...)
	}
	return v
}

// Args returns the values for the named parameters, in order, as query
// arguments.
func (p *Params) Args(names []string) []any {
	out := make([]any, len(names))
	for i, name := range names {
		out[i] = p.Value(name)
	}
	return out
}
