package vm

import "regvm/pkg/bytecode"

// loadSymtab reads the record stream trailing a top-level program's code
// (§4.6) and materializes it into owner's symtab, which every function
// defined in that program shares by reference.
func loadSymtab(img *bytecode.Image, owner *FunctionObject) []Value {
	off := img.SymtabOffset
	code := img.Code
	var out []Value
	for off < len(code) {
		op, _, _, _ := bytecode.DecodeLeading(code[off])
		off++
		switch bytecode.SymtabRecordKind(op) {
		case bytecode.SymString:
			n := int(code[off])
			off++
			nWords := bytecode.WordsForBytes(n + 1)
			s := bytecode.GetString(code, off, nWords)
			off += nWords
			out = append(out, StringValue(s))
		case bytecode.SymStub:
			n := int(code[off])
			off++
			nWords := bytecode.WordsForBytes(n + 1)
			s := bytecode.GetString(code, off, nWords)
			off += nWords
			out = append(out, symStubValue(s))
		case bytecode.SymFuncDef:
			entry := int(code[off])
			declArgc := int(code[off+1])
			nregs := int(code[off+2])
			n := int(code[off+3])
			off += 4
			nWords := bytecode.WordsForBytes(n + 1)
			name := bytecode.GetString(code, off, nWords)
			off += nWords
			fn := newScriptFunction(name, img, entry, declArgc, nregs, false, owner)
			out = append(out, functionValue(fn))
		default:
			// Unreachable for a well-formed image; stop rather than loop
			// forever on garbage.
			return out
		}
	}
	return out
}

// ensureSymtabLoaded loads owner's local symbol table if it hasn't been
// already. §3's invariant requires this happen "before any instruction
// within it executes" for a topprg function, not lazily on first LDSYM —
// so the host entry point calls this itself rather than leaving it to
// resolveSym.
func (vm *VM) ensureSymtabLoaded(owner *FunctionObject) {
	if owner.symtabRead {
		return
	}
	owner.symtab = loadSymtab(owner.Image, owner)
	owner.symtabRead = true
}

// resolveSym returns the effective value of owner's symtab entry idx,
// resolving a SymStub in place against globals on first touch (§4.5): the
// stub is replaced in the local symbol table by whatever the global table
// holds under that name, the first time it is referenced.
func (vm *VM) resolveSym(owner *FunctionObject, idx int) (Value, error) {
	root := owner.owner
	vm.ensureSymtabLoaded(root)
	if idx < 0 || idx >= len(root.symtab) {
		return Nil, newVMError(vm, "local symbol index %d out of range", idx)
	}
	v := root.symtab[idx]
	if v.Tag() == TagSymStub {
		name := v.obj.(*SymStubObject).Name
		resolved, ok := vm.globals[name]
		if !ok || resolved.tag == TagNil {
			return Nil, newVMError(vm, "global `%s` does not exist or it is nil", name)
		}
		retainValue(resolved)
		releaseValue(root.symtab[idx])
		root.symtab[idx] = resolved
		return resolved, nil
	}
	return v, nil
}
