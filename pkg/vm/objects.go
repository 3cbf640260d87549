package vm

import (
	"regvm/pkg/bytecode"
	"strings"
)

// StringObject is an immutable, non-copying string payload.
type StringObject struct {
	objHeader
	s string
}

func (o *StringObject) typeName() string { return "string" }
func (o *StringObject) free()            {} // no owned Values

// ArrayObject is the core's view of the array/aggregate contract: dense
// integer-indexed storage for NEWARR/ARRGET/ARRSET/SIZEOF, plus a
// string-keyed side table so the same value also serves as the library
// namespace table InstallGroup nests builtins under (§6). A fully general
// arbitrary-key hash map (floats, booleans, nested arrays as keys) is out
// of scope (§1's "heap object implementations' business logic... beyond
// what the core needs to invoke") — non-negative Int and String are the
// key types the opcode contract actually exercises.
type ArrayObject struct {
	objHeader
	elems []Value
	props map[string]Value
}

func (o *ArrayObject) typeName() string { return "array" }

func (o *ArrayObject) free() {
	for _, e := range o.elems {
		releaseValue(e)
	}
	o.elems = nil
	for _, v := range o.props {
		releaseValue(v)
	}
	o.props = nil
}

func (o *ArrayObject) Len() int { return len(o.elems) }

func (o *ArrayObject) Get(idx int) (Value, bool) {
	if idx < 0 || idx >= len(o.elems) {
		return Nil, false
	}
	return o.elems[idx], true
}

// Set stores val at idx, growing with Nil-filled holes as needed, and
// retains val while releasing whatever previously occupied the slot.
func (o *ArrayObject) Set(idx int, val Value) {
	for idx >= len(o.elems) {
		o.elems = append(o.elems, Nil)
	}
	retainValue(val)
	releaseValue(o.elems[idx])
	o.elems[idx] = val
}

// GetProp reads a string-keyed entry (the ARRGET contract for a String
// key, and how a library table installed by InstallGroup is read back).
func (o *ArrayObject) GetProp(name string) (Value, bool) {
	v, ok := o.props[name]
	return v, ok
}

// SetProp stores val under the string key name, retaining val and
// releasing whatever previously occupied that key.
func (o *ArrayObject) SetProp(name string, val Value) {
	retainValue(val)
	if old, ok := o.props[name]; ok {
		releaseValue(old)
	}
	if o.props == nil {
		o.props = make(map[string]Value)
	}
	o.props[name] = val
}

func (o *ArrayObject) String() string {
	parts := make([]string, len(o.elems))
	for i, e := range o.elems {
		parts[i] = e.String()
	}
	for k, v := range o.props {
		parts = append(parts, k+": "+v.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// UserInfoObject wraps host-opaque data (§3: "userinfo" variant). The core
// never interprets Data; it only manages the refcount of the Value that
// wraps it.
type UserInfoObject struct {
	objHeader
	Data any
}

func (o *UserInfoObject) typeName() string { return "userinfo" }
func (o *UserInfoObject) free()            {}

// SymStubObject is the sentinel produced by the local symbol table loader
// for an unresolved global reference (§4.6). It is replaced in place on
// first LDSYM touch and must never persist as a register value.
type SymStubObject struct {
	objHeader
	Name string
}

func (o *SymStubObject) typeName() string { return "symstub" }
func (o *SymStubObject) free()            {}

// NativeFunc is the host callback signature (§6): it receives the argument
// slice and host context, and returns a fresh (refcount-1) Value or an
// error. A non-nil error is the "nonzero return code" convention.
type NativeFunc func(vm *VM, args []Value, ctx any) (Value, error)

// FunctionObject is the single representation for native functions, plain
// script functions, and closures (§3's Function object contract). Which
// fields are meaningful depends on Native and Upvalues.
type FunctionObject struct {
	objHeader

	Name   string
	Native bool

	// Native functions only.
	NativeFn NativeFunc

	// Script functions only.
	Image    *bytecode.Image
	Entry    int
	DeclArgc int
	NRegs    int
	TopPrg   bool

	// Local symbol table (§4.6). Only the owner (TopPrg function, or a
	// program's entry function) actually holds the backing slice; nested
	// functions reference it through owner.
	owner      *FunctionObject
	symtab     []Value
	symtabRead bool

	// Closures only (nil Upvalues means this is a plain, non-closure
	// function value — see §4.4's CLOSURE contract).
	Upvalues []Value
}

func (o *FunctionObject) typeName() string { return "function" }

func (o *FunctionObject) free() {
	for _, uv := range o.Upvalues {
		releaseValue(uv)
	}
	o.Upvalues = nil
	if o.TopPrg && o.owner == o {
		for _, v := range o.symtab {
			releaseValue(v)
		}
		o.symtab = nil
	}
}

// NewNativeFunction builds a ready-to-install native function Value.
func NewNativeFunction(name string, fn NativeFunc) Value {
	return functionValue(&FunctionObject{
		objHeader: objHeader{rc: 1},
		Name:      name,
		Native:    true,
		NativeFn:  fn,
	})
}

// newScriptFunction builds a fresh script FunctionObject bound to img,
// sharing owner's local symbol table.
func newScriptFunction(name string, img *bytecode.Image, entry, declArgc, nregs int, topPrg bool, owner *FunctionObject) *FunctionObject {
	fn := &FunctionObject{
		objHeader: objHeader{rc: 1},
		Name:      name,
		Image:     img,
		Entry:     entry,
		DeclArgc:  declArgc,
		NRegs:     nregs,
		TopPrg:    topPrg,
	}
	if topPrg {
		fn.owner = fn
	} else {
		fn.owner = owner
	}
	return fn
}
