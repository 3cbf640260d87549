package vm

import (
	"math"

	"regvm/pkg/bytecode"
)

// step decodes and executes exactly one instruction. It returns (value,
// true, nil) when the frame marked hostRetAddr has just returned — the
// signal runUntilReturn halts on — and (Nil, false, err) the moment any
// opcode raises a runtime error (§7: the dispatcher stops at the first
// error rather than unwinding further).
func (vm *VM) step() (Value, bool, error) {
	addr := vm.ip
	word := vm.image.Code[addr]
	op, a, b, c := bytecode.DecodeLeading(word)
	vm.ip = addr + 1

	errf := func(format string, args ...any) error {
		vm.ip = addr
		return newVMError(vm, format, args...)
	}

	switch op {
	case bytecode.OpNop:

	case bytecode.OpLoadConst:
		switch bytecode.ConstKind(b) {
		case bytecode.ConstNil:
			vm.stack.Set(int(a), Nil)
		case bytecode.ConstTrue:
			vm.stack.Set(int(a), BoolValue(true))
		case bytecode.ConstFalse:
			vm.stack.Set(int(a), BoolValue(false))
		case bytecode.ConstInt:
			lo, hi := vm.image.Code[vm.ip], vm.image.Code[vm.ip+1]
			vm.ip += 2
			vm.stack.Set(int(a), IntValue(bytecode.GetInt64(lo, hi)))
		case bytecode.ConstFloat:
			lo, hi := vm.image.Code[vm.ip], vm.image.Code[vm.ip+1]
			vm.ip += 2
			vm.stack.Set(int(a), FloatValue(bytecode.GetFloat64(lo, hi)))
		default:
			return Nil, false, errf("invalid constant kind %d", b)
		}

	case bytecode.OpMov:
		vm.stack.Set(int(a), vm.stack.Get(int(b)))

	case bytecode.OpAdd:
		res, ok := addValues(vm.stack.Get(int(b)), vm.stack.Get(int(c)))
		if !ok {
			return Nil, false, errf("arithmetic on non-numbers")
		}
		vm.stack.Set(int(a), res)
		releaseValue(res) // res is always a fresh value (never an existing owner)

	case bytecode.OpSub:
		res, ok := subValues(vm.stack.Get(int(b)), vm.stack.Get(int(c)))
		if !ok {
			return Nil, false, errf("arithmetic on non-numbers")
		}
		vm.stack.Set(int(a), res)

	case bytecode.OpMul:
		res, ok := mulValues(vm.stack.Get(int(b)), vm.stack.Get(int(c)))
		if !ok {
			return Nil, false, errf("arithmetic on non-numbers")
		}
		vm.stack.Set(int(a), res)

	case bytecode.OpDiv:
		res, ok, typeErr := divValues(vm.stack.Get(int(b)), vm.stack.Get(int(c)))
		if typeErr {
			return Nil, false, errf("arithmetic on non-numbers")
		}
		if !ok {
			return Nil, false, errf("division by zero")
		}
		vm.stack.Set(int(a), res)

	case bytecode.OpMod:
		res, ok, typeErr := modValues(vm.stack.Get(int(b)), vm.stack.Get(int(c)))
		if typeErr {
			return Nil, false, errf("modulo division of non-integers")
		}
		if !ok {
			return Nil, false, errf("division by zero")
		}
		vm.stack.Set(int(a), res)

	case bytecode.OpNeg:
		res, ok := negValue(vm.stack.Get(int(b)))
		if !ok {
			return Nil, false, errf("unsupported operand type for unary -")
		}
		vm.stack.Set(int(a), res)

	case bytecode.OpInc:
		v := vm.stack.Get(int(a))
		res, ok := addValues(v, IntValue(1))
		if !ok {
			return Nil, false, errf("unsupported operand type for ++")
		}
		vm.stack.Set(int(a), res)

	case bytecode.OpDec:
		v := vm.stack.Get(int(a))
		res, ok := subValues(v, IntValue(1))
		if !ok {
			return Nil, false, errf("unsupported operand type for --")
		}
		vm.stack.Set(int(a), res)

	case bytecode.OpAnd, bytecode.OpOr, bytecode.OpXor, bytecode.OpShl, bytecode.OpShr:
		sym := map[bytecode.OpCode]byte{
			bytecode.OpAnd: 'a', bytecode.OpOr: 'o', bytecode.OpXor: 'x',
			bytecode.OpShl: '<', bytecode.OpShr: '>',
		}[op]
		res, ok := bitwise(sym, vm.stack.Get(int(b)), vm.stack.Get(int(c)))
		if !ok {
			return Nil, false, errf("bitwise operators require integer operands")
		}
		vm.stack.Set(int(a), res)

	case bytecode.OpBitNot:
		v := vm.stack.Get(int(b))
		if v.tag != TagInt {
			return Nil, false, errf("unsupported operand type for ~")
		}
		vm.stack.Set(int(a), IntValue(^v.i))

	case bytecode.OpLogNot:
		v := vm.stack.Get(int(b))
		if v.tag != TagBool {
			return Nil, false, errf("logical negation of non-Boolean value")
		}
		vm.stack.Set(int(a), BoolValue(!v.b))

	case bytecode.OpEq:
		vm.stack.Set(int(a), BoolValue(equalValues(vm.stack.Get(int(b)), vm.stack.Get(int(c)))))

	case bytecode.OpNe:
		vm.stack.Set(int(a), BoolValue(!equalValues(vm.stack.Get(int(b)), vm.stack.Get(int(c)))))

	case bytecode.OpLt, bytecode.OpLe, bytecode.OpGt, bytecode.OpGe:
		l, r := vm.stack.Get(int(b)), vm.stack.Get(int(c))
		if !orderable(l, r) {
			return Nil, false, errf("ordered comparison of uncomparable values")
		}
		cmp := compareValues(l, r)
		var res bool
		switch op {
		case bytecode.OpLt:
			res = cmp < 0
		case bytecode.OpLe:
			res = cmp <= 0
		case bytecode.OpGt:
			res = cmp > 0
		case bytecode.OpGe:
			res = cmp >= 0
		}
		vm.stack.Set(int(a), BoolValue(res))

	case bytecode.OpSizeof:
		v := vm.stack.Get(int(b))
		switch v.tag {
		case TagString:
			vm.stack.Set(int(a), IntValue(int64(len(v.AsString()))))
		case TagArray:
			vm.stack.Set(int(a), IntValue(int64(v.AsArray().Len())))
		default:
			return Nil, false, errf("sizeof is not defined for %s", v.typeName())
		}

	case bytecode.OpTypeof:
		res := StringValue(vm.stack.Get(int(b)).typeName())
		vm.stack.Set(int(a), res)
		releaseValue(res)

	case bytecode.OpConcat:
		l, r := vm.stack.Get(int(b)), vm.stack.Get(int(c))
		if l.tag != TagString || r.tag != TagString {
			return Nil, false, errf("concatenation of non-string values")
		}
		res := StringValue(l.AsString() + r.AsString())
		vm.stack.Set(int(a), res)
		releaseValue(res)

	case bytecode.OpNewArr:
		res := ArrayValue()
		vm.stack.Set(int(a), res)
		releaseValue(res)

	case bytecode.OpArrGet:
		recv := vm.stack.Get(int(b))
		keyVal := vm.stack.Get(int(c))
		switch recv.tag {
		case TagArray:
			arr := recv.AsArray()
			switch keyVal.tag {
			case TagInt:
				elem, ok := arr.Get(int(keyVal.i))
				if !ok {
					return Nil, false, errf("array index %d out of range", keyVal.i)
				}
				vm.stack.Set(int(a), elem)
			case TagString:
				elem, ok := arr.GetProp(keyVal.AsString())
				if !ok {
					return Nil, false, errf("array has no property %q", keyVal.AsString())
				}
				vm.stack.Set(int(a), elem)
			default:
				return Nil, false, errf("array key must be an integer or string")
			}
		case TagString:
			if keyVal.tag != TagInt {
				return Nil, false, errf("string index must be an integer")
			}
			s := recv.AsString()
			idx := int(keyVal.i)
			if idx < 0 {
				idx += len(s)
			}
			if idx < 0 || idx >= len(s) {
				return Nil, false, errf("string index %d out of range", keyVal.i)
			}
			vm.stack.Set(int(a), IntValue(int64(s[idx])))
		default:
			return Nil, false, errf("cannot index into %s", recv.typeName())
		}

	case bytecode.OpArrSet:
		arrVal := vm.stack.Get(int(a))
		if arrVal.tag != TagArray {
			return Nil, false, errf("cannot index into %s", arrVal.typeName())
		}
		keyVal := vm.stack.Get(int(b))
		arr := arrVal.AsArray()
		switch keyVal.tag {
		case TagInt:
			if keyVal.i < 0 {
				return Nil, false, errf("array index must be a non-negative integer")
			}
			arr.Set(int(keyVal.i), vm.stack.Get(int(c)))
		case TagString:
			arr.SetProp(keyVal.AsString(), vm.stack.Get(int(c)))
		case TagFloat:
			if math.IsNaN(keyVal.f) {
				return Nil, false, errf("array key must not be a NaN float")
			}
			return Nil, false, errf("array key must be an integer or string")
		default:
			return Nil, false, errf("array key must be an integer or string")
		}

	case bytecode.OpNthArg:
		h := vm.stack.currentHeader()
		idxVal := vm.stack.Get(int(b))
		if idxVal.tag != TagInt {
			return Nil, false, errf("variadic index must be an integer")
		}
		k := int(idxVal.i)
		if k < 0 || k >= h.extraArgc {
			return Nil, false, errf("argument `%d` of `#` operator is out-of bounds", k)
		}
		vm.stack.Set(int(a), vm.stack.Get(h.nregs()+k))

	case bytecode.OpLdArgc:
		vm.stack.Set(int(a), IntValue(int64(vm.stack.currentHeader().realArgc)))

	case bytecode.OpGlbVal:
		mid := bytecode.Mid(b, c)
		nWords := bytecode.WordsForBytes(int(mid) + 1)
		name := bytecode.GetString(vm.image.Code, vm.ip, nWords)
		next := vm.ip + nWords
		vm.ip = addr // a re-definition error reports the GLBVAL word itself
		if err := vm.DefineGlobal(name, vm.stack.Get(int(a))); err != nil {
			return Nil, false, err
		}
		vm.ip = next

	case bytecode.OpLdSym:
		idx := int(bytecode.Mid(b, c))
		owner := vm.stack.currentHeader().fn
		vm.ip = addr // a resolution error reports the LDSYM word itself
		v, err := vm.resolveSym(owner, idx)
		if err != nil {
			return Nil, false, err
		}
		vm.ip = addr + 1
		vm.stack.Set(int(a), v)

	case bytecode.OpJmp:
		offset := int32(vm.image.Code[vm.ip])
		vm.ip = vm.ip + 1 + int(offset)

	case bytecode.OpJze:
		cond := vm.stack.Get(int(a))
		if cond.tag != TagBool {
			// errf reports addr, the conditional jump's opcode word, not
			// the offset word that follows it (same for JNZ below).
			return Nil, false, errf("register does not contain Boolean value in conditional jump")
		}
		offset := int32(vm.image.Code[vm.ip])
		next := vm.ip + 1
		if !cond.b {
			next += int(offset)
		}
		vm.ip = next

	case bytecode.OpJnz:
		cond := vm.stack.Get(int(a))
		if cond.tag != TagBool {
			return Nil, false, errf("register does not contain Boolean value in conditional jump")
		}
		offset := int32(vm.image.Code[vm.ip])
		next := vm.ip + 1
		if cond.b {
			next += int(offset)
		}
		vm.ip = next

	case bytecode.OpCall:
		return vm.execCall(addr, a, b, c)

	case bytecode.OpRet:
		return vm.execRet(a)

	case bytecode.OpFunction:
		bodyLen := int(vm.image.Code[vm.ip])
		vm.ip += 1 + bodyLen

	case bytecode.OpClosure:
		if err := vm.execClosure(addr, a, b); err != nil {
			return Nil, false, err
		}

	case bytecode.OpLdUpval:
		h := vm.stack.currentHeader()
		if h.fn == nil || int(b) >= len(h.fn.Upvalues) {
			return Nil, false, errf("upvalue index %d out of range", b)
		}
		vm.stack.Set(int(a), h.fn.Upvalues[b])

	default:
		return Nil, false, errf("illegal opcode %d", uint8(op))
	}

	return Nil, false, nil
}

// execCall implements OpCall: dst=a, the register holding the callee is
// b, and c argument-register indices follow packed into whole words
// (§4.2, §4.4).
func (vm *VM) execCall(addr int, dst, funcReg, argc byte) (Value, bool, error) {
	nWords := bytecode.WordsForBytes(int(argc))
	argWords := vm.image.Code[vm.ip : vm.ip+nWords]
	vm.ip += nWords

	calleeVal := vm.stack.Get(int(funcReg))
	if calleeVal.tag != TagFunction {
		vm.ip = addr
		return Nil, false, newVMError(vm, "cannot call a value of type %s", calleeVal.typeName())
	}
	callee := calleeVal.AsFunction()

	args := make([]Value, argc)
	for i := 0; i < int(argc); i++ {
		reg := byte(argWords[i/4] >> uint((i%4)*8))
		args[i] = vm.stack.Get(int(reg))
	}

	if callee.Native {
		vm.stack.pushNativePseudoframe(callee.Name, vm.ip, int(dst))
		result, err := callee.NativeFn(vm, args, vm.ctx)
		if err != nil {
			// The pseudo-frame stays in place so a stack trace shows the
			// failing native call; the next CallFunction unwinds it.
			vm.ip = addr
			return Nil, false, newNativeError(vm, "%s: %v", callee.Name, err)
		}
		vm.stack.popFrame()
		// result is always fresh per NativeFunc's contract (objects.go), never
		// an existing owner, so Set's retain must be balanced here.
		vm.stack.Set(int(dst), result)
		releaseValue(result)
		return Nil, false, nil
	}

	if vm.stack.Depth() >= vm.maxCallDepth {
		vm.ip = addr
		return Nil, false, newVMError(vm, "max call depth %d exceeded", vm.maxCallDepth)
	}

	vm.pushAndCopyArgs(callee, args, vm.ip, int(dst))
	vm.ip = callee.Entry
	return Nil, false, nil
}

// execRet implements OpRet: pop the active frame, deliver its return
// value, and either resume the caller in place or — for the frame
// CallFunction pushed — signal the dispatcher to halt.
func (vm *VM) execRet(src byte) (Value, bool, error) {
	retVal := vm.stack.Get(int(src))
	retainValue(retVal) // survive popFrame's register release below
	h := vm.stack.popFrame()
	if h.retAddr == hostRetAddr {
		// retVal keeps the extra reference retained above; the Go caller
		// (CallFunction) now owns it.
		return retVal, true, nil
	}
	vm.ip = h.retAddr
	vm.stack.Set(h.retSlot, retVal)
	releaseValue(retVal) // Set above retained its own reference
	return Nil, false, nil
}

// execClosure implements OpClosure: register dst already holds a
// prototype function value (loaded via LDSYM); b upvalue descriptor
// words follow, each naming a capture from the enclosing frame's own
// registers (UpvalLocal) or its own upvalue container (UpvalOuter).
// Capture is by value, never by live stack reference (§4.4).
func (vm *VM) execClosure(addr int, dst, count byte) error {
	protoVal := vm.stack.Get(int(dst))
	if protoVal.tag != TagFunction {
		vm.ip = addr
		return newVMError(vm, "CLOSURE target is not a function")
	}
	proto := protoVal.AsFunction()

	h := vm.stack.currentHeader()
	upvals := make([]Value, count)
	for i := 0; i < int(count); i++ {
		descWord := vm.image.Code[vm.ip]
		vm.ip++
		kindByte, idx, _, _ := bytecode.DecodeLeading(descWord)
		switch bytecode.UpvalKind(kindByte) {
		case bytecode.UpvalLocal:
			upvals[i] = vm.stack.Get(int(idx))
		case bytecode.UpvalOuter:
			if h.fn == nil || int(idx) >= len(h.fn.Upvalues) {
				vm.ip = addr
				return newVMError(vm, "outer upvalue index %d out of range", idx)
			}
			upvals[i] = h.fn.Upvalues[idx]
		default:
			vm.ip = addr
			return newVMError(vm, "invalid upvalue kind %d", kindByte)
		}
		retainValue(upvals[i])
	}

	closureFn := &FunctionObject{
		objHeader: objHeader{rc: 1},
		Name:      proto.Name,
		Image:     proto.Image,
		Entry:     proto.Entry,
		DeclArgc:  proto.DeclArgc,
		NRegs:     proto.NRegs,
		owner:     proto.owner,
		Upvalues:  upvals,
	}
	res := functionValue(closureFn)
	vm.stack.Set(int(dst), res)
	releaseValue(res)
	return nil
}
