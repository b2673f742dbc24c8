package db

import "strings"

// IndexBuilder is a fluent builder for FT index definitions.
type IndexBuilder struct {
	def IndexDefinition
}

// NewIndex starts building an FT index definition.
func NewIndex(name string) *IndexBuilder {
	return &IndexBuilder{def: IndexDefinition{Name: name}}
}

// Prefix adds key prefixes to the index.
func (b *IndexBuilder) Prefix(prefixes ...string) *IndexBuilder {
	b.def.Prefixes = append(b.def.Prefixes, prefixes...)
	return b
}

// Numeric adds NUMERIC fields to the index.
func (b *IndexBuilder) Numeric(names ...string) *IndexBuilder {
	for _, name := range names {
		b.def.Fields = append(b.def.Fields, IndexField{Name: name, Type: IndexFieldNumeric})
	}
	return b
}

// Tag adds TAG fields to the index.
func (b *IndexBuilder) Tag(names ...string) *IndexBuilder {
	for _, name := range names {
		b.def.Fields = append(b.def.Fields, IndexField{Name: name, Type: IndexFieldTag})
	}
	return b
}

// TagWithOpts adds a TAG field with custom separator and case sensitivity.
func (b *IndexBuilder) TagWithOpts(name, separator string, caseSensitive bool) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{
		Name:             name,
		Type:             IndexFieldTag,
		TagSeparator:     separator,
		TagCaseSensitive: caseSensitive,
	})
	return b
}

// VectorHNSW adds an HNSW vector field exposed under alias.
func (b *IndexBuilder) VectorHNSW(name, alias string, dim int, distance DistanceMetric, m, efConstruct int) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{
		Name:              name,
		Alias:             alias,
		Type:              IndexFieldVector,
		VectorDim:         dim,
		VectorDistance:    distance,
		VectorM:           m,
		VectorEFConstruct: efConstruct,
	})
	return b
}

// Build validates and returns the index definition.
func (b *IndexBuilder) Build() (*IndexDefinition, error) {
	if err := b.def.Validate(); err != nil {
		return nil, err
	}
	def := b.def
	return &def, nil
}

// String returns a debug representation resembling the FT.CREATE command.
func (idx *IndexDefinition) String() string {
	parts := []string{"FT.CREATE", idx.Name, "ON", "HASH"}
	if len(idx.Prefixes) > 0 {
		parts = append(parts, "PREFIX")
		parts = append(parts, idx.Prefixes...)
	}
	parts = append(parts, "SCHEMA")
	for i := range idx.Fields {
		f := &idx.Fields[i]
		parts = append(parts, f.Name)
		if f.Alias != "" {
			parts = append(parts, "AS", f.Alias)
		}
		switch f.Type {
		case IndexFieldTag:
			parts = append(parts, "TAG")
		case IndexFieldNumeric:
			parts = append(parts, "NUMERIC")
		case IndexFieldVector:
			parts = append(parts, "VECTOR", "HNSW")
		}
	}
	return strings.Join(parts, " ")
}
