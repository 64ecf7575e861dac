// Package valuemodel implements the tagged Value union (spec C1) used as the
// common currency between backend executors, the chain engine and the
// script host's Lua/Python inter-op layer.
package valuemodel

// Kind tags which field of a Value is populated.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindBigInt
	KindFloat
	KindDouble
	KindString
	KindBinary
	KindArray
	KindMap
)

// KV is one entry of an ordered Map — insertion order is preserved, unlike a
// Go map, because column order and script inter-op both depend on it.
type KV struct {
	Key   string
	Value Value
}

// Value is a tagged union mirroring the Rust source's RelationalValue /
// PairValueEnum. Only the field matching Kind is meaningful.
type Value struct {
	Kind   Kind
	Bool   bool
	Int    int32
	BigInt int64
	Float  float32
	Double float64
	Str    string
	Bin    []byte
	Arr    []Value
	Map    []KV
}

func Null() Value                { return Value{Kind: KindNull} }
func NewBool(b bool) Value        { return Value{Kind: KindBool, Bool: b} }
func NewInt(i int32) Value        { return Value{Kind: KindInt, Int: i} }
func NewBigInt(i int64) Value     { return Value{Kind: KindBigInt, BigInt: i} }
func NewFloat(f float32) Value    { return Value{Kind: KindFloat, Float: f} }
func NewDouble(d float64) Value   { return Value{Kind: KindDouble, Double: d} }
func NewString(s string) Value    { return Value{Kind: KindString, Str: s} }
func NewBinary(b []byte) Value    { return Value{Kind: KindBinary, Bin: b} }
func NewArray(vs []Value) Value   { return Value{Kind: KindArray, Arr: vs} }
func NewMap(kv []KV) Value        { return Value{Kind: KindMap, Map: kv} }

// IsNull reports whether v is the Null variant.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// MapGet looks up a key in a Map value's ordered entries. ok is false if v is
// not a Map or the key is absent.
func (v Value) MapGet(key string) (Value, bool) {
	if v.Kind != KindMap {
		return Value{}, false
	}
	for _, kv := range v.Map {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return Value{}, false
}

// ArrayLen returns len(v.Arr) if v is an Array, else 0.
func (v Value) ArrayLen() int {
	if v.Kind != KindArray {
		return 0
	}
	return len(v.Arr)
}

// ArrayAt returns the element at idx, or Null if out of bounds or v is not
// an Array — this backs the chain engine's "missing bind resolves to Null"
// boundary case (spec §8).
func (v Value) ArrayAt(idx int) Value {
	if v.Kind != KindArray || idx < 0 || idx >= len(v.Arr) {
		return Null()
	}
	return v.Arr[idx]
}

// ColumnRow is a convenience for the column-oriented shape returned by
// executors: Map{column -> Array(rows)}. It returns the cell at [col][row],
// or Null if the column is missing, not an Array, or row is out of range.
func (v Value) ColumnRow(col string, row int) Value {
	column, ok := v.MapGet(col)
	if !ok {
		return Null()
	}
	return column.ArrayAt(row)
}

// FanOutCount returns the length of the longest column array in a column-
// oriented Map result, or 0 if v is not such a Map.
func (v Value) FanOutCount() int {
	if v.Kind != KindMap {
		return 0
	}
	max := 0
	for _, kv := range v.Map {
		if n := kv.Value.ArrayLen(); n > max {
			max = n
		}
	}
	return max
}
