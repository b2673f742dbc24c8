package db

import (
	"errors"
	"fmt"
)

// DistanceMetric used by vector similarity queries.
type DistanceMetric string

// Supported metrics.
const (
	DistanceL2     DistanceMetric = "L2"
	DistanceIP     DistanceMetric = "IP"
	DistanceCosine DistanceMetric = "COSINE"
)

// IndexFieldType enumerates supported FT index field types.
type IndexFieldType int

const (
	// IndexFieldNumeric is a numeric field.
	IndexFieldNumeric IndexFieldType = iota
	// IndexFieldTag is a tag field.
	IndexFieldTag
	// IndexFieldVector is an HNSW vector field.
	IndexFieldVector
)

// IndexField describes a single field in an FT index schema.
type IndexField struct {
	Name  string
	Alias string // AS alias in FT.CREATE SCHEMA
	Type  IndexFieldType

	TagSeparator     string
	TagCaseSensitive bool

	VectorDim         int
	VectorDistance    DistanceMetric
	VectorM           int // max edges per node
	VectorEFConstruct int // build-time candidate list size
}

// IndexDefinition is a complete hash-backed FT index definition.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Fields   []IndexField
}

// Validate checks that the index definition is well-formed.
func (idx *IndexDefinition) Validate() error {
	if idx.Name == "" {
		return errors.New("index name is required")
	}
	if !IsValidIdentifier(idx.Name) {
		return fmt.Errorf("index name %q contains invalid characters", idx.Name)
	}
	if len(idx.Fields) == 0 {
		return errors.New("at least one field is required")
	}

	seen := make(map[string]bool, len(idx.Fields))
	for i := range idx.Fields {
		f := &idx.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("field name is required at position %d", i)
		}
		key := f.Name
		if f.Alias != "" {
			key = f.Alias
		}
		if seen[key] {
			return fmt.Errorf("duplicate field name: %s", key)
		}
		seen[key] = true

		if f.Type == IndexFieldVector && f.VectorDim <= 0 {
			return errors.New("vector field requires positive DIM")
		}
	}
	return nil
}

// IsValidIdentifier returns true if s matches [a-zA-Z0-9_:-]+.
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		if !isAlpha && !isDigit && r != '_' && r != ':' && r != '-' {
			return false
		}
	}
	return true
}
