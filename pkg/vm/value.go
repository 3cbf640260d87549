package vm

import (
	"fmt"
	"math"
)

// Tag is the discriminant of the tagged Value union (§3 of the spec this
// package implements): {Nil, Bool, Int, Float, String, Array, Function,
// UserInfo, SymStub}.
type Tag uint8

const (
	TagNil Tag = iota
	TagBool
	TagInt
	TagFloat
	TagString
	TagArray
	TagFunction
	TagUserInfo
	TagSymStub
)

func (t Tag) String() string {
	switch t {
	case TagNil:
		return "nil"
	case TagBool:
		return "boolean"
	case TagInt:
		return "integer"
	case TagFloat:
		return "float"
	case TagString:
		return "string"
	case TagArray:
		return "array"
	case TagFunction:
		return "function"
	case TagUserInfo:
		return "userinfo"
	case TagSymStub:
		return "symstub"
	default:
		return "unknown"
	}
}

// heapObject is implemented by every reference-variant payload. Retain and
// release carry the manual refcounting this engine uses in place of garbage
// collection (§3, §5): a Value holding a reference variant owns exactly one
// refcount on its heapObject.
type heapObject interface {
	retain()
	release() bool // returns true once the refcount has dropped to zero
	refcount() int
	typeName() string
	free() // release any Values this object itself owns
}

// objHeader is embedded by every heap object and supplies the refcounting
// bookkeeping via promoted methods.
type objHeader struct{ rc int }

func (h *objHeader) retain()       { h.rc++ }
func (h *objHeader) release() bool { h.rc--; return h.rc <= 0 }
func (h *objHeader) refcount() int { return h.rc }

// Value is the tagged union every register, constant, global, and argument
// is represented as. Primitive variants (Nil/Bool/Int/Float) are plain data;
// reference variants carry a non-owning handle (obj) into a refcounted heap
// object — "non-owning" in the sense that the Go struct doesn't itself
// retain; whichever *slot* holds the Value is responsible for having called
// retain when the Value was stored there.
type Value struct {
	tag Tag
	b   bool
	i   int64
	f   float64
	obj heapObject
}

var Nil = Value{tag: TagNil}

func BoolValue(b bool) Value  { return Value{tag: TagBool, b: b} }
func IntValue(i int64) Value  { return Value{tag: TagInt, i: i} }
func FloatValue(f float64) Value { return Value{tag: TagFloat, f: f} }

func StringValue(s string) Value {
	return Value{tag: TagString, obj: &StringObject{objHeader: objHeader{rc: 1}, s: s}}
}

func ArrayValue() Value {
	return Value{tag: TagArray, obj: &ArrayObject{objHeader: objHeader{rc: 1}}}
}

func UserInfoValue(data any) Value {
	return Value{tag: TagUserInfo, obj: &UserInfoObject{objHeader: objHeader{rc: 1}, Data: data}}
}

func symStubValue(name string) Value {
	return Value{tag: TagSymStub, obj: &SymStubObject{objHeader: objHeader{rc: 1}, Name: name}}
}

func functionValue(fn *FunctionObject) Value {
	return Value{tag: TagFunction, obj: fn}
}

func (v Value) Tag() Tag   { return v.tag }
func (v Value) IsNil() bool { return v.tag == TagNil }

func (v Value) AsBool() bool     { return v.b }
func (v Value) AsInt() int64     { return v.i }
func (v Value) AsFloat() float64 { return v.f }
func (v Value) AsString() string { return v.obj.(*StringObject).s }
func (v Value) AsArray() *ArrayObject     { return v.obj.(*ArrayObject) }
func (v Value) AsFunction() *FunctionObject { return v.obj.(*FunctionObject) }
func (v Value) AsUserInfo() any           { return v.obj.(*UserInfoObject).Data }

func (v Value) isNumber() bool { return v.tag == TagInt || v.tag == TagFloat }

func (v Value) asFloat64() float64 {
	if v.tag == TagInt {
		return float64(v.i)
	}
	return v.f
}

// refcount reports the current refcount of a reference-variant Value, or 0
// for primitives. Exposed for the engine's own invariant tests (§8).
func (v Value) refcount() int {
	if v.obj == nil {
		return 0
	}
	return v.obj.refcount()
}

// retainValue increments a Value's refcount if it carries one.
func retainValue(v Value) {
	if v.obj != nil {
		v.obj.retain()
	}
}

// releaseValue decrements a Value's refcount if it carries one, freeing the
// object (and transitively releasing whatever it owns) once the count
// reaches zero.
func releaseValue(v Value) {
	if v.obj != nil && v.obj.release() {
		v.obj.free()
	}
}

// ReleaseValue lets a host balance the single reference a fresh Value
// constructor (StringValue, NewNativeFunction, ...) hands back once that
// value has been copied into a longer-lived slot via VM.SetGlobal,
// VM.InstallGroup, or a register write: those installers all retain their
// own copy, so the constructor's original reference must be released or
// the object never reaches a refcount of zero.
func ReleaseValue(v Value) { releaseValue(v) }

// typeName returns the canonical type name used by TYPEOF.
func (v Value) typeName() string {
	switch v.tag {
	case TagNil:
		return "nil"
	case TagBool:
		return "boolean"
	case TagInt, TagFloat:
		return "number"
	case TagString:
		return "string"
	case TagArray:
		return "array"
	case TagFunction:
		return "function"
	case TagUserInfo:
		return "userinfo"
	case TagSymStub:
		return "symstub"
	default:
		return "unknown"
	}
}

// String renders a Value for debugging/host display (print()).
func (v Value) String() string {
	switch v.tag {
	case TagNil:
		return "nil"
	case TagBool:
		if v.b {
			return "true"
		}
		return "false"
	case TagInt:
		return fmt.Sprintf("%d", v.i)
	case TagFloat:
		return formatFloat(v.f)
	case TagString:
		return v.AsString()
	case TagArray:
		return v.AsArray().String()
	case TagFunction:
		fn := v.AsFunction()
		if fn.Native {
			return fmt.Sprintf("<native function %s>", fn.Name)
		}
		return fmt.Sprintf("<function %s>", fn.Name)
	case TagUserInfo:
		return "<userinfo>"
	case TagSymStub:
		return fmt.Sprintf("<unresolved %s>", v.obj.(*SymStubObject).Name)
	default:
		return "<unknown>"
	}
}

func formatFloat(f float64) string {
	if math.IsNaN(f) {
		return "nan"
	}
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	return fmt.Sprintf("%g", f)
}

// equalValues implements the EQ/NE opcode's deep equality.
func equalValues(a, b Value) bool {
	if a.tag != b.tag {
		// Numeric cross-tag equality (Int vs Float) still counts: a value
		// observed as 2 should equal 2.0.
		if a.isNumber() && b.isNumber() {
			return a.asFloat64() == b.asFloat64()
		}
		return false
	}
	switch a.tag {
	case TagNil:
		return true
	case TagBool:
		return a.b == b.b
	case TagInt:
		return a.i == b.i
	case TagFloat:
		return a.f == b.f
	case TagString:
		return a.AsString() == b.AsString()
	case TagArray:
		aa, bb := a.AsArray(), b.AsArray()
		if aa == bb {
			return true
		}
		if len(aa.elems) != len(bb.elems) {
			return false
		}
		for i := range aa.elems {
			if !equalValues(aa.elems[i], bb.elems[i]) {
				return false
			}
		}
		return true
	case TagFunction:
		return a.obj == b.obj
	case TagUserInfo:
		return a.obj == b.obj
	case TagSymStub:
		return a.obj == b.obj
	default:
		return false
	}
}

// orderable reports whether a and b can be compared via LT/LE/GT/GE.
func orderable(a, b Value) bool {
	if a.isNumber() && b.isNumber() {
		return true
	}
	return a.tag == b.tag && a.tag == TagString
}

// compareValues returns a three-valued comparison result for orderable
// operands: negative if a<b, zero if a==b, positive if a>b.
func compareValues(a, b Value) int {
	if a.isNumber() && b.isNumber() {
		af, bf := a.asFloat64(), b.asFloat64()
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := a.AsString(), b.AsString()
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}
