package vm

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestInstallGroupGlobal(t *testing.T) {
	machine := New(8, 256, nil, nil)
	err := machine.InstallGroup("", map[string]Value{"answer": IntValue(42)})
	assert.NilError(t, err)

	v, ok := machine.Global("answer")
	assert.Assert(t, ok)
	assert.Equal(t, v.AsInt(), int64(42))
}

// TestSetGlobalWithReleaseValue exercises the documented pattern for a
// host installing a single fresh value directly via SetGlobal rather than
// InstallGroup: retain the install, then release the constructor's own
// reference so the global table ends up the sole owner.
func TestSetGlobalWithReleaseValue(t *testing.T) {
	machine := New(8, 256, nil, nil)
	s := StringValue("hello")
	machine.SetGlobal("greeting", s)
	ReleaseValue(s)

	v, ok := machine.Global("greeting")
	assert.Assert(t, ok)
	assert.Equal(t, v.AsString(), "hello")
	assert.Equal(t, v.refcount(), 1)
}

func TestInstallGroupNamespaced(t *testing.T) {
	machine := New(8, 256, nil, nil)
	fn := NewNativeFunction("double", func(_ *VM, args []Value, _ any) (Value, error) {
		return IntValue(args[0].AsInt() * 2), nil
	})
	err := machine.InstallGroup("math", map[string]Value{"double": fn})
	assert.NilError(t, err)

	// "math" itself is a global, holding an array used as a string-keyed
	// table.
	lib, ok := machine.Global("math")
	assert.Assert(t, ok)
	assert.Equal(t, lib.Tag(), TagArray)

	double, ok := lib.AsArray().GetProp("double")
	assert.Assert(t, ok)
	assert.Equal(t, double.Tag(), TagFunction)

	v, err := machine.CallFunction(double, []Value{IntValue(21)})
	assert.NilError(t, err)
	assert.Equal(t, v.AsInt(), int64(42))
}

func TestInstallGroupReusesExistingLibraryTable(t *testing.T) {
	machine := New(8, 256, nil, nil)
	assert.NilError(t, machine.InstallGroup("math", map[string]Value{"a": IntValue(1)}))
	assert.NilError(t, machine.InstallGroup("math", map[string]Value{"b": IntValue(2)}))

	lib, ok := machine.Global("math")
	assert.Assert(t, ok)
	a, ok := lib.AsArray().GetProp("a")
	assert.Assert(t, ok)
	assert.Equal(t, a.AsInt(), int64(1))
	b, ok := lib.AsArray().GetProp("b")
	assert.Assert(t, ok)
	assert.Equal(t, b.AsInt(), int64(2))
}

func TestInstallGroupRejectsNonTableCollision(t *testing.T) {
	machine := New(8, 256, nil, nil)
	machine.SetGlobal("math", IntValue(1))
	err := machine.InstallGroup("math", map[string]Value{"pi": FloatValue(3.14)})
	assert.ErrorContains(t, err, "not a library table")
}
