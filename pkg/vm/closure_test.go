package vm

import (
	"testing"

	"regvm/pkg/bytecode"

	"gotest.tools/v3/assert"
)

// TestClosureCapturesByValue builds make_counter(), a function returning
// a closure over a local it initializes to 0. Because upvalues are
// captured by value rather than via a live stack reference (there is no
// SETUPVAL opcode in the catalog), invoking the returned closure twice
// must yield the same result both times rather than an incrementing
// counter.
func TestClosureCapturesByValue(t *testing.T) {
	b := bytecode.NewBuilder("closures", 0, 2)

	counterBody := b.EntryFunc().Function(0, 2)
	counterBody.LdUpval(0, 0)
	counterBody.Inc(0)
	counterBody.Ret(0)
	counterBody.EndFunction()
	counterIdx := b.AddFuncDef("counterBody", counterBody)

	makeCounter := b.EntryFunc().Function(0, 3)
	makeCounter.LoadInt(0, 0)
	makeCounter.LdSym(1, counterIdx)
	makeCounter.Closure(1, bytecode.UpvalDescriptor{Kind: bytecode.UpvalLocal, Index: 0})
	makeCounter.Ret(1)
	makeCounter.EndFunction()
	makeCounterIdx := b.AddFuncDef("makeCounter", makeCounter)

	entry := b.EntryFunc()
	entry.LdSym(0, makeCounterIdx)
	entry.Call(1, 0)
	entry.Ret(1)

	img := b.Build()
	machine := New(8, 256, nil, nil)
	top := machine.LoadImage(img)

	closure, err := machine.CallFunction(top, nil)
	assert.NilError(t, err)
	assert.Equal(t, closure.Tag(), TagFunction)

	v1, err := machine.CallFunction(closure, nil)
	assert.NilError(t, err)
	v2, err := machine.CallFunction(closure, nil)
	assert.NilError(t, err)

	assert.Equal(t, v1.AsInt(), int64(1))
	assert.Equal(t, v2.AsInt(), int64(1))
}

// TestVariadicArguments builds a zero-declared-parameter sum() that reads
// all three call-time arguments back out as variadic overflow via
// LDARGC/NTHARG and adds them together.
func TestVariadicArguments(t *testing.T) {
	b := bytecode.NewBuilder("variadic", 0, 4)

	sumFn := b.EntryFunc().Function(0, 6)
	sumFn.LdArgc(0) // r0 = argc, expected 3

	sumFn.LoadInt(1, 0)
	sumFn.NthArg(2, 1) // r2 = arg[0]
	sumFn.LoadInt(1, 1)
	sumFn.NthArg(3, 1) // r3 = arg[1]
	sumFn.LoadInt(1, 2)
	sumFn.NthArg(4, 1) // r4 = arg[2]

	sumFn.Add(5, 2, 3)
	sumFn.Add(5, 5, 4)
	sumFn.Ret(5)
	sumFn.EndFunction()
	sumIdx := b.AddFuncDef("sum", sumFn)

	entry := b.EntryFunc()
	entry.LdSym(0, sumIdx)
	entry.LoadInt(1, 10)
	entry.LoadInt(2, 20)
	entry.LoadInt(3, 30)
	entry.Call(1, 0, 1, 2, 3)
	entry.Ret(1)

	img := b.Build()
	machine := New(8, 256, nil, nil)
	top := machine.LoadImage(img)

	v, err := machine.CallFunction(top, nil)
	assert.NilError(t, err)
	assert.Equal(t, v.AsInt(), int64(60))
}
