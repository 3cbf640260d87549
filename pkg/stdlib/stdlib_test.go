package stdlib_test

import (
	"bytes"
	"strings"
	"testing"

	"regvm/pkg/stdlib"
	"regvm/pkg/vm"

	"gotest.tools/v3/assert"
)

func install(t *testing.T) (*vm.VM, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	machine := vm.New(8, 256, nil, &buf)
	stdlib.Install(machine, &buf)
	return machine, &buf
}

func globalFn(t *testing.T, machine *vm.VM, name string) vm.Value {
	t.Helper()
	v, ok := machine.Global(name)
	assert.Assert(t, ok)
	assert.Equal(t, v.Tag(), vm.TagFunction)
	return v
}

func TestPrintWritesSpaceJoinedArgs(t *testing.T) {
	machine, buf := install(t)
	fn := globalFn(t, machine, "print")

	_, err := machine.CallFunction(fn, []vm.Value{vm.IntValue(1), vm.StringValue("two"), vm.BoolValue(true)})
	assert.NilError(t, err)
	assert.Equal(t, strings.TrimSpace(buf.String()), "1 two true")
}

func TestLenOnStringAndArray(t *testing.T) {
	machine, _ := install(t)
	lenFn := globalFn(t, machine, "len")

	v, err := machine.CallFunction(lenFn, []vm.Value{vm.StringValue("hello")})
	assert.NilError(t, err)
	assert.Equal(t, v.AsInt(), int64(5))

	arr := vm.ArrayValue()
	arr.AsArray().Set(0, vm.IntValue(1))
	arr.AsArray().Set(1, vm.IntValue(2))
	v, err = machine.CallFunction(lenFn, []vm.Value{arr})
	assert.NilError(t, err)
	assert.Equal(t, v.AsInt(), int64(2))
}

func TestUpperLower(t *testing.T) {
	machine, _ := install(t)
	upper := globalFn(t, machine, "upper")
	lower := globalFn(t, machine, "lower")

	v, err := machine.CallFunction(upper, []vm.Value{vm.StringValue("Hello")})
	assert.NilError(t, err)
	assert.Equal(t, v.AsString(), "HELLO")

	v, err = machine.CallFunction(lower, []vm.Value{vm.StringValue("Hello")})
	assert.NilError(t, err)
	assert.Equal(t, v.AsString(), "hello")
}

func TestMatch(t *testing.T) {
	machine, _ := install(t)
	match := globalFn(t, machine, "match")

	v, err := machine.CallFunction(match, []vm.Value{vm.StringValue("hello123"), vm.StringValue(`\d+`)})
	assert.NilError(t, err)
	assert.Equal(t, v.AsBool(), true)

	v, err = machine.CallFunction(match, []vm.Value{vm.StringValue("hello"), vm.StringValue(`\d+`)})
	assert.NilError(t, err)
	assert.Equal(t, v.AsBool(), false)
}

func TestMatchInvalidPattern(t *testing.T) {
	machine, _ := install(t)
	match := globalFn(t, machine, "match")

	_, err := machine.CallFunction(match, []vm.Value{vm.StringValue("x"), vm.StringValue("(")})
	assert.ErrorContains(t, err, "invalid pattern")
}

func TestPiAndE(t *testing.T) {
	machine, _ := install(t)
	pi, ok := machine.Global("PI")
	assert.Assert(t, ok)
	assert.Equal(t, pi.Tag(), vm.TagFloat)

	e, ok := machine.Global("E")
	assert.Assert(t, ok)
	assert.Equal(t, e.Tag(), vm.TagFloat)
}
