package core

import (
	"strings"
)

// FormatType is a declared value converter.
type FormatType string

const (
	FormatText     FormatType = "text"
	FormatDecimal  FormatType = "decimal"
	FormatPrice    FormatType = "price"
	FormatNumber   FormatType = "number"
	FormatCheckbox FormatType = "checkbox"
	FormatDate     FormatType = "date"
	FormatDateTime FormatType = "datetime"
	FormatTime     FormatType = "time"
)

// DefaultDateFormat is used when a date-family spec declares no pattern.
const DefaultDateFormat = "dd-MM-yyyy"

// IsNumeric reports whether lookups on this type compare numerically.
func (t FormatType) IsNumeric() bool {
	return t == FormatDecimal || t == FormatPrice || t == FormatNumber
}

// IsDateFamily reports whether the type renders through the date converter.
// Unrecognized types fall into the date family and render the full timestamp.
func (t FormatType) IsDateFamily() bool {
	switch t {
	case FormatText, FormatDecimal, FormatPrice, FormatNumber, FormatCheckbox:
		return false
	}
	return true
}

// Declaration is a raw {key, value} pair: a source column and a target path,
// or for format specs a source column and "<type>[,<date pattern>]".
type Declaration struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// ColumnMapping is the structured form of a mapping declaration.
type ColumnMapping struct {
	SourceColumn string `json:"sourceColumn" yaml:"sourceColumn" validate:"required"`
	TargetPath   string `json:"targetPath" yaml:"targetPath" validate:"required"`
	Required     bool   `json:"required,omitempty" yaml:"required,omitempty"`
	FormatType   string `json:"formatType,omitempty" yaml:"formatType,omitempty"`
	DateFormat   string `json:"dateFormat,omitempty" yaml:"dateFormat,omitempty"`
}

// SourceKey is the column name with the required marker applied.
func (c ColumnMapping) SourceKey() string {
	key := strings.TrimSpace(c.SourceColumn)
	if c.Required && !isRequiredKey(key) {
		key += requiredMarker
	}
	return key
}

// Declaration lowers c to its raw mapping declaration.
func (c ColumnMapping) Declaration() Declaration {
	return Declaration{Key: c.SourceKey(), Value: strings.TrimSpace(c.TargetPath)}
}

// FormatDeclaration lowers c to its raw format declaration, if it has one.
func (c ColumnMapping) FormatDeclaration() (Declaration, bool) {
	t := strings.TrimSpace(c.FormatType)
	if t == "" {
		return Declaration{}, false
	}
	v := t
	if c.DateFormat != "" {
		v += "," + strings.TrimSpace(c.DateFormat)
	}
	return Declaration{Key: c.SourceKey(), Value: v}, true
}

// FormatSpec declares how a source column is converted.
type FormatSpec struct {
	SourceKey  string
	Type       FormatType
	DateFormat string
}

// FieldMapping is one compiled column rule. For relations TargetField is the
// relation field on the target entity and RelatedField is the field the
// related entity is looked up by.
type FieldMapping struct {
	SourceKey        string
	TargetPath       string
	TargetField      string
	IsRelation       bool
	RelatedEntity    string
	RelatedField     string
	RelatedLookupKey string
	CompareType      FormatType
}

// RelationKey identifies the lookup a relation mapping needs.
func (m FieldMapping) RelationKey() string {
	return m.SourceKey + "->" + m.RelatedLookupKey
}

// Mappings is an immutable compiled mapping table.
type Mappings struct {
	primary []FieldMapping
	update  []FieldMapping
	formats []FormatSpec
}

// Primary returns a copy of the primary mappings in declaration order.
func (m *Mappings) Primary() []FieldMapping { return append([]FieldMapping(nil), m.primary...) }

// Update returns a copy of the update-only mappings in declaration order.
func (m *Mappings) Update() []FieldMapping { return append([]FieldMapping(nil), m.update...) }

// Formats returns a copy of the format specs.
func (m *Mappings) Formats() []FormatSpec { return append([]FormatSpec(nil), m.formats...) }

// HasUpdateMappings reports whether a separate update object is built.
func (m *Mappings) HasUpdateMappings() bool { return len(m.update) > 0 }

// Relations returns the relation mappings of primary and update mappings,
// one per relation key, primary first.
func (m *Mappings) Relations() []FieldMapping {
	var out []FieldMapping
	seen := make(map[string]bool)
	for _, list := range [][]FieldMapping{m.primary, m.update} {
		for _, fm := range list {
			if !fm.IsRelation || seen[fm.RelationKey()] {
				continue
			}
			seen[fm.RelationKey()] = true
			out = append(out, fm)
		}
	}
	return out
}

// Format returns the format spec declared for a source key.
func (m *Mappings) Format(sourceKey string) (FormatSpec, bool) {
	for _, f := range m.formats {
		if f.SourceKey == sourceKey {
			return f, true
		}
	}
	return FormatSpec{}, false
}

// RequiredKeys lists source keys carrying the required marker.
func (m *Mappings) RequiredKeys() []string {
	var out []string
	for _, fm := range m.primary {
		if isRequiredKey(fm.SourceKey) {
			out = append(out, fm.SourceKey)
		}
	}
	return out
}

// Unique finds the primary mapping for a unique-key column. Matching ignores
// case, surrounding space and the required marker.
func (m *Mappings) Unique(column string) (FieldMapping, bool) {
	want := strings.ToLower(baseKey(strings.TrimSpace(column)))
	for _, fm := range m.primary {
		if strings.ToLower(baseKey(strings.TrimSpace(fm.SourceKey))) == want {
			return fm, true
		}
	}
	return FieldMapping{}, false
}

// PlainTargetFields lists the target fields of non-relation primary mappings.
func (m *Mappings) PlainTargetFields() []string {
	var out []string
	for _, fm := range m.primary {
		if !fm.IsRelation {
			out = append(out, fm.TargetField)
		}
	}
	return out
}

// ParseFormatSpec parses a raw format declaration "<type>[,<date pattern>]".
// The type defaults to date and the pattern to DefaultDateFormat.
func ParseFormatSpec(d Declaration) (FormatSpec, error) {
	key := strings.TrimSpace(d.Key)
	if key == "" {
		return FormatSpec{}, configError("compile formats", "format declaration without a source column")
	}
	parts := strings.SplitN(strings.TrimSpace(d.Value), ",", 2)
	t := strings.ToLower(strings.TrimSpace(parts[0]))
	if t == "" {
		return FormatSpec{}, configError("compile formats", "format for %q declares no type", key)
	}
	spec := FormatSpec{SourceKey: key, Type: FormatType(t)}
	if spec.Type.IsDateFamily() {
		spec.DateFormat = DefaultDateFormat
		if len(parts) == 2 && strings.TrimSpace(parts[1]) != "" {
			spec.DateFormat = strings.TrimSpace(parts[1])
		}
	}
	return spec, nil
}

// CompileFormats parses all raw format declarations. A later declaration for
// the same source key replaces an earlier one.
func CompileFormats(decls []Declaration) ([]FormatSpec, error) {
	out := make([]FormatSpec, 0, len(decls))
	index := make(map[string]int, len(decls))
	for _, d := range decls {
		spec, err := ParseFormatSpec(d)
		if err != nil {
			return nil, err
		}
		if i, ok := index[spec.SourceKey]; ok {
			out[i] = spec
			continue
		}
		index[spec.SourceKey] = len(out)
		out = append(out, spec)
	}
	return out, nil
}

// CompileMapping compiles one raw declaration against the format specs.
func CompileMapping(d Declaration, formats []FormatSpec) (FieldMapping, error) {
	key := strings.TrimSpace(d.Key)
	path := strings.TrimSpace(d.Value)
	if key == "" || path == "" {
		return FieldMapping{}, configError("compile mappings", "mapping %q -> %q needs both a source column and a target path", d.Key, d.Value)
	}

	fm := FieldMapping{SourceKey: key, TargetPath: path}
	if !strings.Contains(path, pathSeparator) {
		fm.TargetField = SnakeToCamel(path)
		return fm, nil
	}

	segs := strings.Split(path, pathSeparator)
	if len(segs) != 2 || strings.TrimSpace(segs[0]) == "" || strings.TrimSpace(segs[1]) == "" {
		return FieldMapping{}, &InvalidMappingError{SourceKey: key, TargetPath: path}
	}
	relation := SnakeToCamel(strings.TrimSpace(segs[0]))
	fm.IsRelation = true
	fm.TargetField = relation
	fm.RelatedEntity = capitalize(relation)
	fm.RelatedField = SnakeToCamel(strings.TrimSpace(segs[1]))
	fm.RelatedLookupKey = path
	for _, f := range formats {
		if f.SourceKey == key {
			fm.CompareType = f.Type
			break
		}
	}
	return fm, nil
}

// Compile builds the immutable mapping table. Inputs are not modified.
func Compile(primary, update, formats []Declaration) (*Mappings, error) {
	specs, err := CompileFormats(formats)
	if err != nil {
		return nil, err
	}
	m := &Mappings{formats: specs}
	if m.primary, err = compileAll(primary, specs); err != nil {
		return nil, err
	}
	if m.update, err = compileAll(update, specs); err != nil {
		return nil, err
	}
	return m, nil
}

// CompileColumns compiles structured column mappings. Format specs come from
// the columns' formatType/dateFormat options.
func CompileColumns(primary, update []ColumnMapping) (*Mappings, error) {
	var p, u, f []Declaration
	for _, c := range primary {
		p = append(p, c.Declaration())
		if d, ok := c.FormatDeclaration(); ok {
			f = append(f, d)
		}
	}
	for _, c := range update {
		u = append(u, c.Declaration())
		if d, ok := c.FormatDeclaration(); ok {
			f = append(f, d)
		}
	}
	return Compile(p, u, f)
}

func compileAll(decls []Declaration, specs []FormatSpec) ([]FieldMapping, error) {
	out := make([]FieldMapping, 0, len(decls))
	for _, d := range decls {
		fm, err := CompileMapping(d, specs)
		if err != nil {
			return nil, err
		}
		out = append(out, fm)
	}
	return out, nil
}
