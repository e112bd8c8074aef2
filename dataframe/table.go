// Package dataframe holds fully materialised query results.
package dataframe

import (
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

type Column struct {
	Name         string
	DatabaseType string
}

// Table is an in-memory result set: named columns and ordered rows.
// Every row has exactly len(Columns) values.
type Table struct {
	Columns []Column
	Rows    [][]any
}

func New(columns ...string) *Table {
	t := &Table{Columns: make([]Column, len(columns))}
	for i, c := range columns {
		t.Columns[i] = Column{Name: c}
	}
	return t
}

// Append adds a row. It fails when the number of values does not match the columns.
func (t *Table) Append(values ...any) error {
	if len(values) != len(t.Columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(values), len(t.Columns))
	}
	t.Rows = append(t.Rows, values)
	return nil
}

func (t *Table) NumRows() int {
	return len(t.Rows)
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Column returns all values of the named column.
func (t *Table) Column(name string) ([]any, bool) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil, false
	}
	out := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, true
}

// FromRows reads every row of rows into a Table. The caller still owns rows and must close it.
func FromRows(rows *sql.Rows) (*Table, error) {
	cols, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types: %w", err)
	}

	t := &Table{Columns: make([]Column, len(cols))}
	for i, c := range cols {
		t.Columns[i] = Column{Name: c.Name(), DatabaseType: c.DatabaseTypeName()}
	}

	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row %d: %w", len(t.Rows), err)
		}
		for i, v := range values {
			values[i] = Normalize(v, t.Columns[i].DatabaseType)
		}
		t.Rows = append(t.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// Normalize maps a driver value onto the small set of Go types the encoders understand:
// nil, int64, float64, bool, string, []byte and time.Time. Unsigned values above
// math.MaxInt64 become decimal strings.
func Normalize(v any, databaseType string) any {
	switch x := v.(type) {
	case nil, int64, float64, bool, string, time.Time:
		return x
	case []byte:
		if isBinaryType(databaseType) {
			b := make([]byte, len(x))
			copy(b, x)
			return b
		}
		return string(x)
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return strconv.FormatUint(x, 10)
		}
		return int64(x)
	case uint:
		if uint64(x) > math.MaxInt64 {
			return strconv.FormatUint(uint64(x), 10)
		}
		return int64(x)
	case float32:
		return float64(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func isBinaryType(databaseType string) bool {
	t := strings.ToUpper(databaseType)
	switch {
	case t == "":
		return false
	case strings.Contains(t, "BLOB"), strings.Contains(t, "BINARY"), t == "BYTEA", t == "BYTES", t == "IMAGE":
		return true
	}
	return false
}
