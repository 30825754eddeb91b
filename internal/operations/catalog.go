// Package operations holds the operation dispatch table: which fields each
// analytical tool accepts, how they are validated, which fixed query they
// run and how the rows are shaped.
package operations

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/triage-ai/icio-mcp/internal/shape"
	"github.com/triage-ai/icio-mcp/internal/validate"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

// FieldKind selects the validator applied to an argument.
type FieldKind string

const (
	KindCountry            FieldKind = "country"
	KindCountryOrAggregate FieldKind = "country_or_aggregate"
	KindSector             FieldKind = "sector"
	KindYear               FieldKind = "year"
	KindLimit              FieldKind = "limit"
	KindCountryList        FieldKind = "country_list"
)

// Builtins are operations served without a shaped analytical query.
const (
	BuiltinHealth   = "health"
	BuiltinHealthDB = "health_db"
)

// Field declares one argument of an operation.
type Field struct {
	Name        string    `yaml:"name"`
	Kind        FieldKind `yaml:"kind"`
	Required    bool      `yaml:"required"`
	Default     any       `yaml:"default"`
	Description string    `yaml:"description"`
}

// YearRange names two year fields that must satisfy from <= to.
type YearRange struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// ColumnSpec maps a result column to an output field.
type ColumnSpec struct {
	Source string       `yaml:"source"`
	Field  string       `yaml:"field"`
	Format shape.Format `yaml:"format"`
}

// ResultSpec declares the output shape. Echo lists validated parameters
// copied into the response; Key names the list of shaped rows. Single
// operations return their first row as the whole response instead.
type ResultSpec struct {
	Echo    []string     `yaml:"echo"`
	Key     string       `yaml:"key"`
	Single  bool         `yaml:"single"`
	Columns []ColumnSpec `yaml:"columns"`
}

// Descriptor is the static definition of one operation. Descriptors are
// built by ParseCatalog and must be treated as read-only.
type Descriptor struct {
	Name        string     `yaml:"name"`
	Alias       string     `yaml:"alias"`
	Description string     `yaml:"description"`
	Builtin     string     `yaml:"builtin"`
	Query       string     `yaml:"query"`
	Args        []string   `yaml:"args"`
	LimitCap    int        `yaml:"limit_cap"`
	Fields      []Field    `yaml:"fields"`
	YearRange   *YearRange `yaml:"year_range"`
	Result      ResultSpec `yaml:"result"`

	sql         string
	columns     []shape.Column
	fieldIndex  map[string]int
	inputSchema json.RawMessage
	schema      *jsonschema.Schema
}

// Names returns the primary name followed by the alias, if any.
func (d *Descriptor) Names() []string {
	if d.Alias == "" {
		return []string{d.Name}
	}
	return []string{d.Name, d.Alias}
}

// InputSchema returns the JSON Schema advertised for the operation's arguments.
func (d *Descriptor) InputSchema() json.RawMessage {
	return d.inputSchema
}

// field returns the declaration of the named field.
func (d *Descriptor) field(name string) (Field, bool) {
	i, ok := d.fieldIndex[name]
	if !ok {
		return Field{}, false
	}
	return d.Fields[i], true
}

// Catalog is the immutable set of operations, indexed by name and alias.
type Catalog struct {
	ops    []*Descriptor
	byName map[string]*Descriptor
}

// LoadCatalog parses the catalogue embedded in the binary.
func LoadCatalog() (*Catalog, error) {
	return ParseCatalog(embeddedCatalog)
}

// ParseCatalog parses and checks a YAML catalogue. Any inconsistency between
// fields, templates and result columns is reported here, at startup.
func ParseCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Operations []*Descriptor `yaml:"operations"`
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("ParseCatalog: %w", err)
	}
	if len(doc.Operations) == 0 {
		return nil, fmt.Errorf("ParseCatalog: no operations defined")
	}

	c := &Catalog{
		ops:    doc.Operations,
		byName: make(map[string]*Descriptor, 2*len(doc.Operations)),
	}
	for _, d := range doc.Operations {
		if err := d.resolve(); err != nil {
			return nil, fmt.Errorf("ParseCatalog: %s: %w", d.Name, err)
		}
		for _, name := range d.Names() {
			if _, dup := c.byName[name]; dup {
				return nil, fmt.Errorf("ParseCatalog: duplicate operation name %q", name)
			}
			c.byName[name] = d
		}
	}
	return c, nil
}

// Lookup resolves a primary name or alias.
func (c *Catalog) Lookup(name string) (*Descriptor, bool) {
	d, ok := c.byName[name]
	return d, ok
}

// Descriptors returns the operations in catalogue order.
func (c *Catalog) Descriptors() []*Descriptor {
	out := make([]*Descriptor, len(c.ops))
	copy(out, c.ops)
	return out
}

var placeholderPattern = regexp.MustCompile(`\$(\d+)`)

func (d *Descriptor) resolve() error {
	if d.Name == "" {
		return fmt.Errorf("operation without a name")
	}

	d.fieldIndex = make(map[string]int, len(d.Fields))
	for i, f := range d.Fields {
		if _, dup := d.fieldIndex[f.Name]; dup {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		d.fieldIndex[f.Name] = i
		if err := d.checkField(f); err != nil {
			return err
		}
	}

	if d.YearRange != nil {
		for _, name := range []string{d.YearRange.From, d.YearRange.To} {
			f, ok := d.field(name)
			if !ok || f.Kind != KindYear {
				return fmt.Errorf("year_range field %q must be a declared year field", name)
			}
		}
		if err := d.checkDefaultRange(); err != nil {
			return err
		}
	}

	switch d.Builtin {
	case "":
		if d.Query == "" {
			return fmt.Errorf("no query and no builtin")
		}
	case BuiltinHealth:
	case BuiltinHealthDB:
		if d.Query == "" {
			return fmt.Errorf("builtin %s requires a query", d.Builtin)
		}
	default:
		return fmt.Errorf("unknown builtin %q", d.Builtin)
	}

	if d.Query != "" {
		sql, ok := queries[d.Query]
		if !ok {
			return fmt.Errorf("unknown query template %q", d.Query)
		}
		d.sql = sql
		if err := d.checkArgs(); err != nil {
			return err
		}
	}

	if err := d.checkResult(); err != nil {
		return err
	}

	return d.compileSchema()
}

func (d *Descriptor) checkField(f Field) error {
	switch f.Kind {
	case KindCountry, KindCountryOrAggregate, KindSector, KindYear, KindCountryList:
	case KindLimit:
		if d.LimitCap < 1 {
			return fmt.Errorf("field %q is a limit but limit_cap is not set", f.Name)
		}
	default:
		return fmt.Errorf("field %q has unknown kind %q", f.Name, f.Kind)
	}
	if f.Required && f.Default != nil {
		return fmt.Errorf("field %q is required and has a default", f.Name)
	}
	if f.Default != nil {
		if _, err := checkFormat(f, f.Default, d.LimitCap); err != nil {
			return fmt.Errorf("default for %q: %w", f.Name, err)
		}
	}
	return nil
}

func (d *Descriptor) checkDefaultRange() error {
	from, _ := d.field(d.YearRange.From)
	to, _ := d.field(d.YearRange.To)
	if from.Default == nil || to.Default == nil {
		return nil
	}
	if _, _, err := validate.YearRange(from.Name, from.Default, to.Name, to.Default); err != nil {
		return fmt.Errorf("default year range %v..%v: %w", from.Default, to.Default, err)
	}
	return nil
}

// checkArgs makes sure every bound argument is a declared field and that the
// template uses exactly as many placeholders as there are arguments.
func (d *Descriptor) checkArgs() error {
	for _, name := range d.Args {
		if _, ok := d.field(name); !ok {
			return fmt.Errorf("query argument %q is not a declared field", name)
		}
	}
	highest := 0
	for _, m := range placeholderPattern.FindAllStringSubmatch(d.sql, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return fmt.Errorf("bad placeholder %q", m[0])
		}
		if n > highest {
			highest = n
		}
	}
	if highest != len(d.Args) {
		return fmt.Errorf("query %q uses %d placeholders but %d args are bound", d.Query, highest, len(d.Args))
	}
	return nil
}

func (d *Descriptor) checkResult() error {
	for _, name := range d.Result.Echo {
		if _, ok := d.field(name); !ok {
			return fmt.Errorf("echoed field %q is not declared", name)
		}
	}
	if d.Builtin != "" {
		return nil
	}
	if !d.Result.Single && d.Result.Key == "" {
		return fmt.Errorf("result needs a key or single: true")
	}
	if len(d.Result.Columns) == 0 {
		return fmt.Errorf("result declares no columns")
	}
	d.columns = make([]shape.Column, 0, len(d.Result.Columns))
	for _, c := range d.Result.Columns {
		if !c.Format.Valid() {
			return fmt.Errorf("column %q has unknown format %q", c.Source, c.Format)
		}
		d.columns = append(d.columns, shape.Column{Source: c.Source, Field: c.Field, Format: c.Format})
	}
	return nil
}
