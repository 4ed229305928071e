package parquet

import (
	"fmt"
	"strings"
)

type Field struct {
	Name          string
	Type          string
	ConvertedType string
}

type Schema []Field

// ToGoParquetSchema renders the schema as parquet-go CSV writer metadata.
func (s Schema) ToGoParquetSchema() []string {
	schema := make([]string, len(s))
	for i, field := range s {
		parts := []string{
			fmt.Sprintf("name=%s", field.Name),
			fmt.Sprintf("type=%s", field.Type),
		}
		if field.ConvertedType != "" {
			parts = append(parts, fmt.Sprintf("convertedtype=%s", field.ConvertedType))
		}
		schema[i] = strings.Join(parts, ", ")
	}

	return schema
}

// ReferenceSchema is the layout of an exported index inventory. Row order
// must match referenceRow.
var ReferenceSchema = Schema{
	{Name: "dataset", Type: "INT32"},
	{Name: "id", Type: "BYTE_ARRAY", ConvertedType: "UTF8"},
	{Name: "number", Type: "INT64"},
	{Name: "url", Type: "BYTE_ARRAY", ConvertedType: "UTF8"},
	{Name: "filename", Type: "BYTE_ARRAY", ConvertedType: "UTF8"},
	{Name: "downloaded", Type: "BOOLEAN"},
	{Name: "size_bytes", Type: "INT64"},
}
