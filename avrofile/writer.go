// Package avrofile writes tables to Avro object container files.
package avrofile

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/hamba/avro/v2"
	"github.com/hamba/avro/v2/ocf"

	"avro-exporter/dataframe"
)

// ErrEncoding is returned when the table does not fit the schema or the schema is invalid.
var ErrEncoding = errors.New("avro encoding error")

var errOutOfRange = errors.New("out of int range")

type Writer struct {
	codec ocf.CodecName
}

// NewWriter returns a Writer compressing blocks with codec ("null", "deflate", "snappy" or "zstandard").
func NewWriter(codec string) (*Writer, error) {
	switch c := ocf.CodecName(codec); c {
	case "":
		return &Writer{codec: ocf.Null}, nil
	case ocf.Null, ocf.Deflate, ocf.Snappy, ocf.ZStandard:
		return &Writer{codec: c}, nil
	default:
		return nil, fmt.Errorf("unsupported avro codec %q", codec)
	}
}

// WriteTable writes t to path, replacing any existing file. A nil schema is inferred from t.
func (w *Writer) WriteTable(path string, t *dataframe.Table, schema map[string]any) error {
	inferred := schema == nil
	if inferred {
		schema = InferSchema(DefaultRecordName, t)
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("%w: failed to serialize schema: %w", ErrEncoding, err)
	}
	parsed, err := avro.Parse(string(raw))
	if err != nil {
		return fmt.Errorf("%w: invalid schema: %w", ErrEncoding, err)
	}
	rec, ok := parsed.(*avro.RecordSchema)
	if !ok {
		return fmt.Errorf("%w: schema must be a record, got %s", ErrEncoding, parsed.Type())
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := ocf.NewEncoder(string(raw), f, ocf.WithCodec(w.codec))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncoding, err)
	}

	columns, err := fieldColumns(rec, t, inferred)
	if err != nil {
		return err
	}
	for i, row := range t.Rows {
		record := make(map[string]any, len(rec.Fields()))
		for j, field := range rec.Fields() {
			idx := columns[j]
			if idx < 0 {
				continue
			}
			v, err := coerce(row[idx], field.Type())
			if err != nil {
				return fmt.Errorf("%w: row %d field %s: value %v %w", ErrEncoding, i, field.Name(), row[idx], err)
			}
			if v == nil && !nullable(field.Type()) {
				// left out so the field default applies, or the encoder reports the missing value
				continue
			}
			record[field.Name()] = v
		}
		if err := enc.Encode(record); err != nil {
			return fmt.Errorf("%w: row %d: %w", ErrEncoding, i, err)
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	return f.Close()
}

// fieldColumns returns, for every record field, the position of the column feeding it or -1.
// Inferred schemas map fields to columns by position. Otherwise a field matches a column with
// the same name, then a column whose cleaned-up name equals it; a cleaned-up name shared by
// several columns is an error.
func fieldColumns(rec *avro.RecordSchema, t *dataframe.Table, inferred bool) ([]int, error) {
	fields := rec.Fields()
	out := make([]int, len(fields))
	if inferred {
		for i := range out {
			out[i] = i
		}
		return out, nil
	}

	raw := make(map[string]int, len(t.Columns))
	cleaned := make(map[string][]int, len(t.Columns))
	for i, c := range t.Columns {
		if _, ok := raw[c.Name]; !ok {
			raw[c.Name] = i
		}
		cleaned[FieldName(c.Name)] = append(cleaned[FieldName(c.Name)], i)
	}
	for i, f := range fields {
		if idx, ok := raw[f.Name()]; ok {
			out[i] = idx
			continue
		}
		switch cols := cleaned[f.Name()]; len(cols) {
		case 0:
			out[i] = -1
		case 1:
			out[i] = cols[0]
		default:
			return nil, fmt.Errorf("%w: field %s matches %d columns", ErrEncoding, f.Name(), len(cols))
		}
	}
	return out, nil
}

func nullable(s avro.Schema) bool {
	switch x := s.(type) {
	case *avro.NullSchema:
		return true
	case *avro.UnionSchema:
		for _, t := range x.Types() {
			if t.Type() == avro.Null {
				return true
			}
		}
	}
	return false
}

// coerce converts v to the Go type the encoder expects for s.
// Integers that do not fit an Avro int fail with errOutOfRange.
func coerce(v any, s avro.Schema) (any, error) {
	if v == nil {
		return nil, nil
	}
	if u, ok := s.(*avro.UnionSchema); ok {
		var branch avro.Schema
		for _, t := range u.Types() {
			if t.Type() == avro.Null {
				continue
			}
			if branch != nil {
				// several non-null branches: leave the choice to the encoder
				return v, nil
			}
			branch = t
		}
		if branch == nil {
			return v, nil
		}
		s = branch
	}

	switch s.Type() {
	case avro.Int:
		if ps, ok := s.(*avro.PrimitiveSchema); ok && ps.Logical() != nil {
			return v, nil
		}
		switch x := v.(type) {
		case int64:
			if x < math.MinInt32 || x > math.MaxInt32 {
				return nil, errOutOfRange
			}
			return int32(x), nil
		case int:
			if x < math.MinInt32 || x > math.MaxInt32 {
				return nil, errOutOfRange
			}
			return int32(x), nil
		case bool:
			if x {
				return int32(1), nil
			}
			return int32(0), nil
		}
	case avro.Long:
		switch x := v.(type) {
		case int:
			return int64(x), nil
		case int32:
			return int64(x), nil
		case bool:
			if x {
				return int64(1), nil
			}
			return int64(0), nil
		}
	case avro.Float:
		switch x := v.(type) {
		case float64:
			return float32(x), nil
		case int64:
			return float32(x), nil
		}
	case avro.Double:
		switch x := v.(type) {
		case int64:
			return float64(x), nil
		case float32:
			return float64(x), nil
		}
	case avro.String:
		switch x := v.(type) {
		case []byte:
			return string(x), nil
		case int64:
			return strconv.FormatInt(x, 10), nil
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64), nil
		case bool:
			return strconv.FormatBool(x), nil
		case time.Time:
			return x.Format(time.RFC3339Nano), nil
		}
	case avro.Bytes:
		if ps, ok := s.(*avro.PrimitiveSchema); ok && ps.Logical() != nil && ps.Logical().Type() == avro.Decimal {
			return toRat(v), nil
		}
		if x, ok := v.(string); ok {
			return []byte(x), nil
		}
	case avro.Boolean:
		if x, ok := v.(int64); ok {
			return x != 0, nil
		}
	}
	return v, nil
}

func toRat(v any) any {
	switch x := v.(type) {
	case string:
		if r, ok := new(big.Rat).SetString(x); ok {
			return r
		}
	case float64:
		if r := new(big.Rat).SetFloat64(x); r != nil {
			return r
		}
	case int64:
		return new(big.Rat).SetInt64(x)
	}
	return v
}
