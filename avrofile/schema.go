package avrofile

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"avro-exporter/dataframe"
)

// DefaultRecordName is the record name used for inferred schemas.
const DefaultRecordName = "Root"

// InferSchema derives a record schema from the values in t. Every field is a nullable
// union whose non-null branch fits all values of the column. Field i belongs to column i.
func InferSchema(name string, t *dataframe.Table) map[string]any {
	if name == "" {
		name = DefaultRecordName
	}
	names := FieldNames(t)
	fields := make([]any, len(t.Columns))
	for i := range t.Columns {
		fields[i] = map[string]any{
			"name":    names[i],
			"type":    []any{"null", inferType(t, i)},
			"default": nil,
		}
	}
	return map[string]any{
		"type":   "record",
		"name":   name,
		"fields": fields,
	}
}

// inferType picks the Avro type for a column. Mixed integer and floating point
// values widen to double; any other mix falls back to string.
func inferType(t *dataframe.Table, col int) any {
	var found any
	for _, row := range t.Rows {
		var typ any
		switch row[col].(type) {
		case nil:
			continue
		case int64, int32, int:
			typ = "long"
		case float64, float32:
			typ = "double"
		case bool:
			typ = "boolean"
		case []byte:
			typ = "bytes"
		case time.Time:
			typ = "timestamp"
		default:
			typ = "string"
		}
		switch {
		case found == nil, found == typ:
			found = typ
		case found == "long" && typ == "double", found == "double" && typ == "long":
			found = "double"
		default:
			return "string"
		}
	}
	switch found {
	case nil:
		return "string"
	case "timestamp":
		return map[string]any{"type": "long", "logicalType": "timestamp-micros"}
	}
	return found
}

// FieldNames returns a distinct Avro name for every column of t, in column order.
// Names that collide after FieldName get a numeric suffix.
func FieldNames(t *dataframe.Table) []string {
	names := make([]string, len(t.Columns))
	used := make(map[string]bool, len(t.Columns))
	for i, c := range t.Columns {
		base := FieldName(c.Name)
		name := base
		for n := 1; used[name]; n++ {
			name = base + "_" + strconv.Itoa(n)
		}
		used[name] = true
		names[i] = name
	}
	return names
}

// FieldName turns a column name into a valid Avro name.
func FieldName(column string) string {
	if column == "" {
		return "_"
	}
	var b strings.Builder
	for i, r := range column {
		switch {
		case r == '_', r < unicode.MaxASCII && unicode.IsLetter(r):
			b.WriteRune(r)
		case r < unicode.MaxASCII && unicode.IsDigit(r):
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
