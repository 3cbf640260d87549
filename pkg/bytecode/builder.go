package bytecode

// Builder assembles a complete Image. It stands in for the external
// compiler/assembler this engine never implements: callers emit one word at
// a time through typed helper methods instead of hand-rolling the encoding.
//
// A Builder owns exactly one continuous code buffer. The entry function and
// every nested function share it: FUNCTION blocks are emitted inline where
// the CLOSURE/symtab reference to them is built, and the dispatcher skips
// over a FUNCTION block when it falls through one rather than being called
// into it via a jump.
type Builder struct {
	name    string
	code    []Word
	entry   *FuncBuilder
	symtab  []symtabRecord
}

type symtabRecord struct {
	kind SymtabRecordKind
	str  string // String / Stub name-or-value
	// FuncDef fields
	entry    int
	declArgc int
	nregs    int
}

// FuncBuilder emits instructions for one function body into the parent
// Builder's shared code buffer.
type FuncBuilder struct {
	b            *Builder
	declArgc     int
	nregs        int
	entryOffset  int // word offset of this function's first body instruction (0 for the entry function)
	headerLenIdx int // index of the FUNCTION block's body-length word, for nested functions
}

// NewBuilder starts a new image. The returned Builder's EntryFunc is the
// top-level program function.
func NewBuilder(name string, declArgc, nregs int) *Builder {
	b := &Builder{name: name}
	b.entry = &FuncBuilder{b: b, declArgc: declArgc, nregs: nregs}
	return b
}

// EntryFunc returns the top-level program's function builder.
func (b *Builder) EntryFunc() *FuncBuilder { return b.entry }

func (b *Builder) emit(w Word) int {
	b.code = append(b.code, w)
	return len(b.code) - 1
}

// --- symbol table construction ---

// AddString interns a string constant into the local symbol table, returning
// its assigned index.
func (b *Builder) AddString(s string) int {
	b.symtab = append(b.symtab, symtabRecord{kind: SymString, str: s})
	return len(b.symtab) - 1
}

// AddStub installs an unresolved global reference under name, returning its
// assigned index.
func (b *Builder) AddStub(name string) int {
	b.symtab = append(b.symtab, symtabRecord{kind: SymStub, str: name})
	return len(b.symtab) - 1
}

// AddFuncDef installs a script function value bound to this program,
// returning its assigned index. fn is typically a *FuncBuilder returned by
// Function(); its Entry() is recorded here.
func (b *Builder) AddFuncDef(name string, fn *FuncBuilder) int {
	b.symtab = append(b.symtab, symtabRecord{
		kind: SymFuncDef, str: name,
		entry: fn.Entry(), declArgc: fn.declArgc, nregs: fn.nregs,
	})
	return len(b.symtab) - 1
}

// Build finalizes the image: the symbol table record stream is appended
// after all function bodies, and its starting offset recorded.
func (b *Builder) Build() *Image {
	symOff := len(b.code)
	for _, rec := range b.symtab {
		switch rec.kind {
		case SymString, SymStub:
			payload := PutString(rec.str)
			b.emit(EncodeLeading(OpCode(rec.kind), 0, 0, 0))
			b.emit(Word(len(rec.str)))
			b.code = append(b.code, payload...)
		case SymFuncDef:
			payload := PutString(rec.str)
			b.emit(EncodeLeading(OpCode(rec.kind), 0, 0, 0))
			b.emit(Word(rec.entry))
			b.emit(Word(rec.declArgc))
			b.emit(Word(rec.nregs))
			b.emit(Word(len(rec.str)))
			b.code = append(b.code, payload...)
		}
	}
	return &Image{
		Name:          b.name,
		Code:          b.code,
		EntryOffset:   0,
		EntryDeclArgc: b.entry.declArgc,
		EntryNRegs:    b.entry.nregs,
		SymtabOffset:  symOff,
	}
}

// --- instruction emission ---

func (fb *FuncBuilder) emit(w Word) int { return fb.b.emit(w) }

// Entry returns the word offset of this function's first body instruction.
// For the top-level program this is always 0.
func (fb *FuncBuilder) Entry() int {
	if fb == fb.b.entry {
		return 0
	}
	return fb.entryOffset
}

// setEntry records the word offset of this function's first body instruction.
func (fb *FuncBuilder) setEntry(off int) { fb.entryOffset = off }

func (fb *FuncBuilder) LoadNil(dst byte) {
	fb.emit(EncodeLeading(OpLoadConst, dst, byte(ConstNil), 0))
}
func (fb *FuncBuilder) LoadTrue(dst byte) {
	fb.emit(EncodeLeading(OpLoadConst, dst, byte(ConstTrue), 0))
}
func (fb *FuncBuilder) LoadFalse(dst byte) {
	fb.emit(EncodeLeading(OpLoadConst, dst, byte(ConstFalse), 0))
}
func (fb *FuncBuilder) LoadInt(dst byte, v int64) {
	fb.emit(EncodeLeading(OpLoadConst, dst, byte(ConstInt), 0))
	words := PutInt64(v)
	fb.emit(words[0])
	fb.emit(words[1])
}
func (fb *FuncBuilder) LoadFloat(dst byte, v float64) {
	fb.emit(EncodeLeading(OpLoadConst, dst, byte(ConstFloat), 0))
	words := PutFloat64(v)
	fb.emit(words[0])
	fb.emit(words[1])
}

func (fb *FuncBuilder) Mov(dst, src byte) { fb.emit(EncodeLeading(OpMov, dst, src, 0)) }

func (fb *FuncBuilder) bin(op OpCode, dst, l, r byte) { fb.emit(EncodeLeading(op, dst, l, r)) }

func (fb *FuncBuilder) Add(dst, l, r byte) { fb.bin(OpAdd, dst, l, r) }
func (fb *FuncBuilder) Sub(dst, l, r byte) { fb.bin(OpSub, dst, l, r) }
func (fb *FuncBuilder) Mul(dst, l, r byte) { fb.bin(OpMul, dst, l, r) }
func (fb *FuncBuilder) Div(dst, l, r byte) { fb.bin(OpDiv, dst, l, r) }
func (fb *FuncBuilder) Mod(dst, l, r byte) { fb.bin(OpMod, dst, l, r) }

func (fb *FuncBuilder) Neg(dst, src byte)    { fb.emit(EncodeLeading(OpNeg, dst, src, 0)) }
func (fb *FuncBuilder) Inc(dst byte)         { fb.emit(EncodeLeading(OpInc, dst, 0, 0)) }
func (fb *FuncBuilder) Dec(dst byte)         { fb.emit(EncodeLeading(OpDec, dst, 0, 0)) }
func (fb *FuncBuilder) BitNot(dst, src byte) { fb.emit(EncodeLeading(OpBitNot, dst, src, 0)) }
func (fb *FuncBuilder) LogNot(dst, src byte) { fb.emit(EncodeLeading(OpLogNot, dst, src, 0)) }

func (fb *FuncBuilder) And(dst, l, r byte) { fb.bin(OpAnd, dst, l, r) }
func (fb *FuncBuilder) Or(dst, l, r byte)  { fb.bin(OpOr, dst, l, r) }
func (fb *FuncBuilder) Xor(dst, l, r byte) { fb.bin(OpXor, dst, l, r) }
func (fb *FuncBuilder) Shl(dst, l, r byte) { fb.bin(OpShl, dst, l, r) }
func (fb *FuncBuilder) Shr(dst, l, r byte) { fb.bin(OpShr, dst, l, r) }

func (fb *FuncBuilder) Eq(dst, l, r byte) { fb.bin(OpEq, dst, l, r) }
func (fb *FuncBuilder) Ne(dst, l, r byte) { fb.bin(OpNe, dst, l, r) }
func (fb *FuncBuilder) Lt(dst, l, r byte) { fb.bin(OpLt, dst, l, r) }
func (fb *FuncBuilder) Le(dst, l, r byte) { fb.bin(OpLe, dst, l, r) }
func (fb *FuncBuilder) Gt(dst, l, r byte) { fb.bin(OpGt, dst, l, r) }
func (fb *FuncBuilder) Ge(dst, l, r byte) { fb.bin(OpGe, dst, l, r) }

func (fb *FuncBuilder) Sizeof(dst, src byte) { fb.emit(EncodeLeading(OpSizeof, dst, src, 0)) }
func (fb *FuncBuilder) Typeof(dst, src byte) { fb.emit(EncodeLeading(OpTypeof, dst, src, 0)) }
func (fb *FuncBuilder) Concat(dst, l, r byte) { fb.bin(OpConcat, dst, l, r) }

func (fb *FuncBuilder) NewArr(dst byte) { fb.emit(EncodeLeading(OpNewArr, dst, 0, 0)) }
func (fb *FuncBuilder) ArrGet(dst, arr, key byte) { fb.bin(OpArrGet, dst, arr, key) }
func (fb *FuncBuilder) ArrSet(arr, key, val byte) { fb.bin(OpArrSet, arr, key, val) }
func (fb *FuncBuilder) NthArg(dst, idxReg byte)   { fb.emit(EncodeLeading(OpNthArg, dst, idxReg, 0)) }
func (fb *FuncBuilder) LdArgc(dst byte)           { fb.emit(EncodeLeading(OpLdArgc, dst, 0, 0)) }

// GlbVal registers register A's value under name in the VM's global table.
func (fb *FuncBuilder) GlbVal(src byte, name string) {
	fb.emit(EncodeLeadingMid(OpGlbVal, src, uint16(len(name))))
	fb.b.code = append(fb.b.code, PutString(name)...)
}

// LdSym loads local symbol table entry idx into register dst.
func (fb *FuncBuilder) LdSym(dst byte, idx int) {
	fb.emit(EncodeLeadingMid(OpLdSym, dst, uint16(idx)))
}

// Jmp emits an unconditional jump and returns a patch handle for PatchToHere.
func (fb *FuncBuilder) Jmp() int {
	fb.emit(EncodeLeading(OpJmp, 0, 0, 0))
	return fb.emit(Word(0)) // placeholder offset word; patched later
}

// Jze emits a jump-if-false on register a and returns a patch handle.
func (fb *FuncBuilder) Jze(a byte) int {
	fb.emit(EncodeLeading(OpJze, a, 0, 0))
	return fb.emit(Word(0))
}

// Jnz emits a jump-if-true on register a and returns a patch handle.
func (fb *FuncBuilder) Jnz(a byte) int {
	fb.emit(EncodeLeading(OpJnz, a, 0, 0))
	return fb.emit(Word(0))
}

// Here returns the current emission position (next instruction's address).
func (fb *FuncBuilder) Here() int { return len(fb.b.code) }

// PatchToHere patches the jump offset word at patchIdx so the jump lands at
// the current emission position.
func (fb *FuncBuilder) PatchToHere(patchIdx int) {
	target := len(fb.b.code)
	offset := int32(target - (patchIdx + 1))
	fb.b.code[patchIdx] = Word(uint32(offset))
}

// Call emits a call: dst = funcReg(argRegs...).
func (fb *FuncBuilder) Call(dst, funcReg byte, argRegs ...byte) {
	fb.emit(EncodeLeading(OpCall, dst, funcReg, byte(len(argRegs))))
	n := WordsForBytes(len(argRegs))
	words := make([]Word, n)
	for i, r := range argRegs {
		words[i/4] |= Word(r) << uint((i%4)*8)
	}
	fb.b.code = append(fb.b.code, words...)
}

func (fb *FuncBuilder) Ret(src byte) { fb.emit(EncodeLeading(OpRet, src, 0, 0)) }

// Function begins a nested function body inline in the shared code buffer
// and returns a handle for emitting its body. The caller must later call
// EndFunction to patch in the body length the dispatcher skips by.
func (fb *FuncBuilder) Function(declArgc, nregs int) *FuncBuilder {
	headerIdx := fb.emit(EncodeLeading(OpFunction, 0, 0, 0))
	lenIdx := fb.emit(Word(0)) // body length in words, patched in EndFunction
	nested := &FuncBuilder{b: fb.b, declArgc: declArgc, nregs: nregs}
	nested.setEntry(len(fb.b.code))
	nested.headerLenIdx = lenIdx
	_ = headerIdx
	return nested
}

// EndFunction patches the FUNCTION block's body length once the nested
// function's instructions have all been emitted.
func (fb *FuncBuilder) EndFunction() {
	bodyLen := len(fb.b.code) - fb.entryOffset
	fb.b.code[fb.headerLenIdx] = Word(bodyLen)
}

// Closure converts the prototype function already sitting in register dst
// into a closure that captures upvals, replacing dst in place.
func (fb *FuncBuilder) Closure(dst byte, upvals ...UpvalDescriptor) {
	fb.emit(EncodeLeading(OpClosure, dst, byte(len(upvals)), 0))
	for _, uv := range upvals {
		fb.emit(EncodeLeading(OpCode(uv.Kind), uv.Index, 0, 0))
	}
}

func (fb *FuncBuilder) LdUpval(dst byte, idx byte) {
	fb.emit(EncodeLeading(OpLdUpval, dst, idx, 0))
}

// UpvalDescriptor describes one CLOSURE capture.
type UpvalDescriptor struct {
	Kind  UpvalKind
	Index byte
}
