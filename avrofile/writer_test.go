package avrofile

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hamba/avro/v2/ocf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avro-exporter/dataframe"
)

type fruitRecord struct {
	ID        *int64     `avro:"id"`
	Name      *string    `avro:"name"`
	Price     *float64   `avro:"price"`
	Ripe      *bool      `avro:"ripe"`
	CreatedAt *time.Time `avro:"created_at"`
}

func fruitTable(t *testing.T) *dataframe.Table {
	t.Helper()
	tbl := dataframe.New("id", "name", "price", "ripe", "created_at")
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, tbl.Append(int64(1), "apple", 1.5, true, ts))
	require.NoError(t, tbl.Append(int64(2), nil, 2.25, false, ts))
	return tbl
}

func readAll[T any](t *testing.T, path string) []T {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec, err := ocf.NewDecoder(f)
	require.NoError(t, err)
	var out []T
	for dec.HasNext() {
		var v T
		require.NoError(t, dec.Decode(&v))
		out = append(out, v)
	}
	require.NoError(t, dec.Error())
	return out
}

func TestInferSchema(t *testing.T) {
	tbl := dataframe.New("id", "label", "blob", "nothing", "2nd col")
	require.NoError(t, tbl.Append(nil, "a", []byte{1}, nil, 1.0))
	require.NoError(t, tbl.Append(int64(3), "b", []byte{2}, nil, 2.0))

	schema := InferSchema("", tbl)
	assert.Equal(t, "record", schema["type"])
	assert.Equal(t, DefaultRecordName, schema["name"])

	fields := schema["fields"].([]any)
	require.Len(t, fields, 5)
	want := []struct {
		name string
		typ  any
	}{
		{"id", "long"},
		{"label", "string"},
		{"blob", "bytes"},
		{"nothing", "string"},
		{"_2nd_col", "double"},
	}
	for i, w := range want {
		f := fields[i].(map[string]any)
		assert.Equal(t, w.name, f["name"])
		assert.Equal(t, []any{"null", w.typ}, f["type"])
	}
}

func TestWriteTableInfersSchema(t *testing.T) {
	w, err := NewWriter("deflate")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "fruit.avro")

	require.NoError(t, w.WriteTable(path, fruitTable(t), nil))

	got := readAll[fruitRecord](t, path)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), *got[0].ID)
	assert.Equal(t, "apple", *got[0].Name)
	assert.Equal(t, 1.5, *got[0].Price)
	assert.True(t, *got[0].Ripe)
	assert.True(t, got[0].CreatedAt.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)))
	assert.Nil(t, got[1].Name)
}

func TestWriteTableCoercesToExplicitSchema(t *testing.T) {
	type narrowRecord struct {
		ID    int32   `avro:"id"`
		Price float32 `avro:"price"`
		Code  string  `avro:"code"`
	}
	schema := map[string]any{
		"type": "record",
		"name": "Narrow",
		"fields": []any{
			map[string]any{"name": "id", "type": "int"},
			map[string]any{"name": "price", "type": "float"},
			map[string]any{"name": "code", "type": "string"},
		},
	}
	tbl := dataframe.New("id", "price", "code")
	require.NoError(t, tbl.Append(int64(7), 2.5, []byte("x7")))

	w, err := NewWriter("null")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "narrow.avro")
	require.NoError(t, w.WriteTable(path, tbl, schema))

	got := readAll[narrowRecord](t, path)
	require.Len(t, got, 1)
	assert.Equal(t, narrowRecord{ID: 7, Price: 2.5, Code: "x7"}, got[0])
}

func TestWriteTableOverwrites(t *testing.T) {
	w, err := NewWriter("")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "fruit.avro")
	require.NoError(t, os.WriteFile(path, []byte("stale content that is not avro"), 0o644))

	require.NoError(t, w.WriteTable(path, fruitTable(t), nil))
	assert.Len(t, readAll[fruitRecord](t, path), 2)
}

func TestWriteTableSchemaErrors(t *testing.T) {
	w, err := NewWriter("null")
	require.NoError(t, err)
	dir := t.TempDir()

	err = w.WriteTable(filepath.Join(dir, "a.avro"), fruitTable(t), map[string]any{"type": "nonsense"})
	assert.ErrorIs(t, err, ErrEncoding)

	err = w.WriteTable(filepath.Join(dir, "b.avro"), fruitTable(t), map[string]any{"type": "string"})
	assert.ErrorIs(t, err, ErrEncoding)

	strict := map[string]any{
		"type":   "record",
		"name":   "Strict",
		"fields": []any{map[string]any{"name": "name", "type": "string"}},
	}
	err = w.WriteTable(filepath.Join(dir, "c.avro"), fruitTable(t), strict)
	assert.ErrorIs(t, err, ErrEncoding)
}

func TestWriteTableMissingDirectory(t *testing.T) {
	w, err := NewWriter("null")
	require.NoError(t, err)
	err = w.WriteTable(filepath.Join(t.TempDir(), "missing", "x.avro"), fruitTable(t), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.NotErrorIs(t, err, ErrEncoding)
}

func TestNewWriterRejectsUnknownCodec(t *testing.T) {
	_, err := NewWriter("lzma")
	assert.Error(t, err)
}

func TestFieldName(t *testing.T) {
	assert.Equal(t, "order_id", FieldName("order_id"))
	assert.Equal(t, "order_id", FieldName("order-id"))
	assert.Equal(t, "_1st", FieldName("1st"))
	assert.Equal(t, "_", FieldName(""))
	assert.Equal(t, "caf_", FieldName("café"))
}

func TestWriteTableRejectsIntOverflow(t *testing.T) {
	schema := map[string]any{
		"type":   "record",
		"name":   "Narrow",
		"fields": []any{map[string]any{"name": "id", "type": "int"}},
	}
	for _, v := range []int64{1<<40 + 5, math.MaxInt32 + 1, math.MinInt32 - 1} {
		tbl := dataframe.New("id")
		require.NoError(t, tbl.Append(v))

		w, err := NewWriter("null")
		require.NoError(t, err)
		err = w.WriteTable(filepath.Join(t.TempDir(), "narrow.avro"), tbl, schema)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrEncoding)
		assert.Contains(t, err.Error(), "out of int range")
	}
}

func TestWriteTableIntBoundsFit(t *testing.T) {
	schema := map[string]any{
		"type":   "record",
		"name":   "Narrow",
		"fields": []any{map[string]any{"name": "id", "type": []any{"null", "int"}}},
	}
	tbl := dataframe.New("id")
	require.NoError(t, tbl.Append(int64(math.MaxInt32)))
	require.NoError(t, tbl.Append(int64(math.MinInt32)))

	w, err := NewWriter("null")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "bounds.avro")
	require.NoError(t, w.WriteTable(path, tbl, schema))

	type nullableRecord struct {
		ID *int32 `avro:"id"`
	}
	got := readAll[nullableRecord](t, path)
	require.Len(t, got, 2)
	assert.Equal(t, int32(math.MaxInt32), *got[0].ID)
	assert.Equal(t, int32(math.MinInt32), *got[1].ID)
}

func TestInferSchemaMakesFieldNamesUnique(t *testing.T) {
	tbl := dataframe.New("a b", "a_b", "a-b")
	require.NoError(t, tbl.Append("first", "second", "third"))

	assert.Equal(t, []string{"a_b", "a_b_1", "a_b_2"}, FieldNames(tbl))

	w, err := NewWriter("null")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "dup.avro")
	require.NoError(t, w.WriteTable(path, tbl, nil))

	type dupRecord struct {
		A  *string `avro:"a_b"`
		A1 *string `avro:"a_b_1"`
		A2 *string `avro:"a_b_2"`
	}
	got := readAll[dupRecord](t, path)
	require.Len(t, got, 1)
	assert.Equal(t, "first", *got[0].A)
	assert.Equal(t, "second", *got[0].A1)
	assert.Equal(t, "third", *got[0].A2)
}

func TestWriteTableAmbiguousColumnForExplicitSchema(t *testing.T) {
	schema := map[string]any{
		"type":   "record",
		"name":   "R",
		"fields": []any{map[string]any{"name": "a_c", "type": []any{"null", "string"}}},
	}
	tbl := dataframe.New("a c", "a-c")
	require.NoError(t, tbl.Append("x", "y"))

	w, err := NewWriter("null")
	require.NoError(t, err)
	err = w.WriteTable(filepath.Join(t.TempDir(), "amb.avro"), tbl, schema)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEncoding)
	assert.Contains(t, err.Error(), "matches 2 columns")
}

func TestWriteTableExactColumnNameWins(t *testing.T) {
	type record struct {
		AB *string `avro:"a_b"`
	}
	schema := map[string]any{
		"type":   "record",
		"name":   "R",
		"fields": []any{map[string]any{"name": "a_b", "type": []any{"null", "string"}}},
	}
	tbl := dataframe.New("a b", "a_b")
	require.NoError(t, tbl.Append("cleaned", "exact"))

	w, err := NewWriter("null")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "exact.avro")
	require.NoError(t, w.WriteTable(path, tbl, schema))

	got := readAll[record](t, path)
	require.Len(t, got, 1)
	assert.Equal(t, "exact", *got[0].AB)
}

func TestInferSchemaWidensMixedNumbers(t *testing.T) {
	tbl := dataframe.New("amount", "mixed")
	require.NoError(t, tbl.Append(int64(1), int64(1)))
	require.NoError(t, tbl.Append(2.5, "two"))
	require.NoError(t, tbl.Append(nil, nil))

	fields := InferSchema("", tbl)["fields"].([]any)
	assert.Equal(t, []any{"null", "double"}, fields[0].(map[string]any)["type"])
	assert.Equal(t, []any{"null", "string"}, fields[1].(map[string]any)["type"])

	w, err := NewWriter("null")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "mixed.avro")
	require.NoError(t, w.WriteTable(path, tbl, nil))

	type mixedRecord struct {
		Amount *float64 `avro:"amount"`
		Mixed  *string  `avro:"mixed"`
	}
	got := readAll[mixedRecord](t, path)
	require.Len(t, got, 3)
	assert.Equal(t, 1.0, *got[0].Amount)
	assert.Equal(t, "1", *got[0].Mixed)
	assert.Equal(t, 2.5, *got[1].Amount)
	assert.Equal(t, "two", *got[1].Mixed)
	assert.Nil(t, got[2].Amount)
}
