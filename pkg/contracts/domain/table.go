package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ColumnType is the semantic storage type of a column
type ColumnType string

const (
	TypeInteger     ColumnType = "integer"
	TypeFloat       ColumnType = "float"
	TypeText        ColumnType = "text"
	TypeBoolean     ColumnType = "boolean"
	TypeTimestamp   ColumnType = "timestamp"
	TypeCategorical ColumnType = "categorical"
)

// ParseColumnType converts a string to a ColumnType.
// "int" and "string" are accepted as aliases.
func ParseColumnType(s string) (ColumnType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "integer", "int", "int64":
		return TypeInteger, nil
	case "float", "float64", "number":
		return TypeFloat, nil
	case "text", "string", "object":
		return TypeText, nil
	case "boolean", "bool":
		return TypeBoolean, nil
	case "timestamp", "datetime", "date":
		return TypeTimestamp, nil
	case "categorical", "category":
		return TypeCategorical, nil
	default:
		return "", fmt.Errorf("unknown column type %q", s)
	}
}

// IsNumeric reports whether values of this type are int64 or float64
func (t ColumnType) IsNumeric() bool {
	return t == TypeInteger || t == TypeFloat
}

// IsStringLike reports whether values of this type are strings
func (t ColumnType) IsStringLike() bool {
	return t == TypeText || t == TypeCategorical
}

// Column is a named, typed sequence of values. A nil value marks a missing cell.
//
// Value representation per type: integer -> int64, float -> float64,
// text and categorical -> string, boolean -> bool, timestamp -> time.Time.
type Column struct {
	Name   string
	Type   ColumnType
	Values []any
}

// NewColumn creates a column, normalizing values to the representation of typ.
// Values that cannot be represented become missing.
func NewColumn(name string, typ ColumnType, values []any) *Column {
	normalized := make([]any, len(values))
	for i, v := range values {
		normalized[i] = normalizeValue(typ, v)
	}
	return &Column{Name: name, Type: typ, Values: normalized}
}

// NewFloatColumn creates a float column without missing values
func NewFloatColumn(name string, values []float64) *Column {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return &Column{Name: name, Type: TypeFloat, Values: out}
}

// NewIntColumn creates an integer column without missing values
func NewIntColumn(name string, values []int64) *Column {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return &Column{Name: name, Type: TypeInteger, Values: out}
}

// NewTextColumn creates a text column without missing values
func NewTextColumn(name string, values []string) *Column {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return &Column{Name: name, Type: TypeText, Values: out}
}

// Len returns the number of cells
func (c *Column) Len() int {
	return len(c.Values)
}

// IsMissing reports whether cell i is missing
func (c *Column) IsMissing(i int) bool {
	return c.Values[i] == nil
}

// MissingCount returns the number of missing cells
func (c *Column) MissingCount() int {
	n := 0
	for _, v := range c.Values {
		if v == nil {
			n++
		}
	}
	return n
}

// Float returns cell i as float64. ok is false for missing or non-numeric cells.
func (c *Column) Float(i int) (float64, bool) {
	switch v := c.Values[i].(type) {
	case float64:
		if math.IsNaN(v) {
			return 0, false
		}
		return v, true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Str returns cell i as a string. ok is false for missing cells.
func (c *Column) Str(i int) (string, bool) {
	v := c.Values[i]
	if v == nil {
		return "", false
	}
	return FormatValue(v), true
}

// Time returns cell i as time.Time. ok is false for missing or non-timestamp cells.
func (c *Column) Time(i int) (time.Time, bool) {
	ts, ok := c.Values[i].(time.Time)
	return ts, ok
}

// Floats returns every non-missing numeric value in order
func (c *Column) Floats() []float64 {
	out := make([]float64, 0, len(c.Values))
	for i := range c.Values {
		if f, ok := c.Float(i); ok {
			out = append(out, f)
		}
	}
	return out
}

// Distinct returns the distinct non-missing values as sorted strings
func (c *Column) Distinct() []string {
	seen := make(map[string]struct{})
	for i := range c.Values {
		if s, ok := c.Str(i); ok {
			seen[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Clone returns a copy of the column with its own value slice
func (c *Column) Clone() *Column {
	values := make([]any, len(c.Values))
	copy(values, c.Values)
	return &Column{Name: c.Name, Type: c.Type, Values: values}
}

// Table is an ordered collection of equally long, uniquely named columns
type Table struct {
	columns []*Column
	index   map[string]int
}

// NewTable creates a table from columns. Columns must share a length and have unique names.
func NewTable(columns ...*Column) (*Table, error) {
	t := &Table{index: make(map[string]int, len(columns))}
	for _, c := range columns {
		if err := t.AddColumn(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// MustNewTable is like NewTable but panics on error
func MustNewTable(columns ...*Column) *Table {
	t, err := NewTable(columns...)
	if err != nil {
		panic(err)
	}
	return t
}

// AddColumn appends a column
func (t *Table) AddColumn(c *Column) error {
	if c == nil {
		return fmt.Errorf("nil column")
	}
	if _, exists := t.index[c.Name]; exists {
		return fmt.Errorf("duplicate column name %q", c.Name)
	}
	if len(t.columns) > 0 && c.Len() != t.NumRows() {
		return fmt.Errorf("column %q has %d values, table has %d rows", c.Name, c.Len(), t.NumRows())
	}
	if t.index == nil {
		t.index = make(map[string]int)
	}
	t.index[c.Name] = len(t.columns)
	t.columns = append(t.columns, c)
	return nil
}

// ReplaceColumn swaps the column with the same name in place
func (t *Table) ReplaceColumn(c *Column) error {
	i, ok := t.index[c.Name]
	if !ok {
		return fmt.Errorf("column %q not found", c.Name)
	}
	if c.Len() != t.NumRows() {
		return fmt.Errorf("column %q has %d values, table has %d rows", c.Name, c.Len(), t.NumRows())
	}
	t.columns[i] = c
	return nil
}

// DropColumn removes a column if present
func (t *Table) DropColumn(name string) {
	i, ok := t.index[name]
	if !ok {
		return
	}
	t.columns = append(t.columns[:i], t.columns[i+1:]...)
	t.reindex()
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.columns))
	for i, c := range t.columns {
		t.index[c.Name] = i
	}
}

// Column looks up a column by name
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.columns[i], true
}

// HasColumn reports whether the table has the named column
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Columns returns the columns in order
func (t *Table) Columns() []*Column {
	return t.columns
}

// ColumnNames returns the column names in order
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// NumericColumns returns the names of integer and float columns in order
func (t *Table) NumericColumns() []string {
	var names []string
	for _, c := range t.columns {
		if c.Type.IsNumeric() {
			names = append(names, c.Name)
		}
	}
	return names
}

// NumRows returns the row count
func (t *Table) NumRows() int {
	if len(t.columns) == 0 {
		return 0
	}
	return t.columns[0].Len()
}

// NumCols returns the column count
func (t *Table) NumCols() int {
	return len(t.columns)
}

// Row returns the values of row i
func (t *Table) Row(i int) []any {
	row := make([]any, len(t.columns))
	for j, c := range t.columns {
		row[j] = c.Values[i]
	}
	return row
}

// RowKey returns a string identifying the full content of row i
func (t *Table) RowKey(i int) string {
	var b strings.Builder
	for j, c := range t.columns {
		if j > 0 {
			b.WriteByte(0x1f)
		}
		v := c.Values[i]
		if v == nil {
			b.WriteString("\x00")
			continue
		}
		b.WriteString(FormatValue(v))
	}
	return b.String()
}

// Clone returns a deep copy of the table
func (t *Table) Clone() *Table {
	out := &Table{columns: make([]*Column, len(t.columns))}
	for i, c := range t.columns {
		out.columns[i] = c.Clone()
	}
	out.reindex()
	return out
}

// Filter returns a new table holding only the rows where keep is true
func (t *Table) Filter(keep []bool) *Table {
	out := &Table{columns: make([]*Column, len(t.columns))}
	for i, c := range t.columns {
		values := make([]any, 0, len(c.Values))
		for r, v := range c.Values {
			if keep[r] {
				values = append(values, v)
			}
		}
		out.columns[i] = &Column{Name: c.Name, Type: c.Type, Values: values}
	}
	out.reindex()
	return out
}

// Equal reports whether two tables have the same columns, types and values
func (t *Table) Equal(other *Table) bool {
	if t.NumCols() != other.NumCols() || t.NumRows() != other.NumRows() {
		return false
	}
	for i, c := range t.columns {
		o := other.columns[i]
		if c.Name != o.Name || c.Type != o.Type {
			return false
		}
		for r := range c.Values {
			if !valuesEqual(c.Values[r], o.Values[r]) {
				return false
			}
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return a == b
}

// FormatValue renders a cell value as a string
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}

func normalizeValue(typ ColumnType, v any) any {
	if v == nil {
		return nil
	}
	switch typ {
	case TypeInteger:
		switch x := v.(type) {
		case int64:
			return x
		case int:
			return int64(x)
		case int32:
			return int64(x)
		case float64:
			if math.IsNaN(x) || x != math.Trunc(x) {
				return nil
			}
			return int64(x)
		case json.Number:
			if n, err := x.Int64(); err == nil {
				return n
			}
			if f, err := x.Float64(); err == nil && f == math.Trunc(f) {
				return int64(f)
			}
		}
	case TypeFloat:
		switch x := v.(type) {
		case float64:
			if math.IsNaN(x) {
				return nil
			}
			return x
		case float32:
			return float64(x)
		case int64:
			return float64(x)
		case int:
			return float64(x)
		case json.Number:
			if f, err := x.Float64(); err == nil {
				return f
			}
		}
	case TypeText, TypeCategorical:
		if s, ok := v.(string); ok {
			return s
		}
		return FormatValue(v)
	case TypeBoolean:
		if b, ok := v.(bool); ok {
			return b
		}
	case TypeTimestamp:
		switch x := v.(type) {
		case time.Time:
			return x
		case string:
			if ts, err := time.Parse(time.RFC3339Nano, x); err == nil {
				return ts
			}
		}
	}
	return nil
}

type columnJSON struct {
	Name   string     `json:"name"`
	Type   ColumnType `json:"type"`
	Values []any      `json:"values"`
}

type tableJSON struct {
	Columns []columnJSON `json:"columns"`
}

// MarshalJSON encodes the table as {"columns":[{"name","type","values"}]}
func (t *Table) MarshalJSON() ([]byte, error) {
	payload := tableJSON{Columns: make([]columnJSON, len(t.columns))}
	for i, c := range t.columns {
		values := make([]any, len(c.Values))
		for r, v := range c.Values {
			if ts, ok := v.(time.Time); ok {
				values[r] = ts.Format(time.RFC3339Nano)
				continue
			}
			values[r] = v
		}
		payload.Columns[i] = columnJSON{Name: c.Name, Type: c.Type, Values: values}
	}
	return json.Marshal(payload)
}

// UnmarshalJSON decodes a table and restores typed values from each column type
func (t *Table) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var payload tableJSON
	if err := dec.Decode(&payload); err != nil {
		return err
	}

	decoded := Table{index: make(map[string]int)}
	for _, cj := range payload.Columns {
		if err := decoded.AddColumn(NewColumn(cj.Name, cj.Type, cj.Values)); err != nil {
			return err
		}
	}
	*t = decoded
	return nil
}
