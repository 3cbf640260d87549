package vm

// frameHeader describes one activation record. Frames are embedded directly
// in the growable value stack rather than kept in a side structure: a
// header cell sits immediately below its frame's register window, so
// walking headers backward (via retBase) reconstructs a full call stack
// without any separate bookkeeping slice.
type frameHeader struct {
	fn         *FunctionObject // callee; nil for the synthetic bottom frame
	declArgc   int
	extraArgc  int // actual arg count beyond declArgc (variadic tail)
	realArgc   int // total arg count supplied at the call site, for LDARGC
	retAddr    int // caller's resume ip, in words; -1 for frames pushed by CallFunction
	retSlot    int // register index, relative to retBase, of the caller's destination register
	retBase    int // absolute stack index of the caller's own register window
	native     bool
	nativeName string
}

// nregs is the number of named registers declared for this frame's
// function; for native pseudo-frames it is 0.
func (h *frameHeader) nregs() int {
	if h.fn == nil || h.native {
		return 0
	}
	return h.fn.NRegs
}

// window is the count of stack cells occupied by this frame's register
// file, including any variadic tail. Registers and variadic arguments
// share one contiguous index space: register i for i < nregs is a named
// local, and i in [nregs, nregs+extraArgc) is variadic argument
// i-nregs, addressed via NTHARG/LDARGC (§4.1, §4.4). This is the
// resolution of what the register-addressing formula describes as
// slot(i) = -(2+i) relative to the frame pointer: here it is simply
// stack[base+i] for i in [0, nregs+extraArgc).
func (h *frameHeader) window() int {
	return h.nregs() + h.extraArgc
}

// cell is one stack slot: either a live Value or a frameHeader marker.
// isHeader discriminates the two; a Value-holding cell never has
// isHeader set and vice versa.
type cell struct {
	isHeader bool
	header   frameHeader
	val      Value
}

// Stack is the single growable value stack frames are pushed into and
// popped from. It grows by doubling, matching the teacher's slice-growth
// convention, starting from a configurable base capacity.
type Stack struct {
	cells []cell
	top   int // index of the next free cell

	// base is the absolute index of the current frame's register 0.
	// headerAt is the absolute index of the current frame's header cell,
	// always base-1.
	base     int
	headerAt int
}

// NewStack allocates a stack with baseCap cells of initial capacity and
// installs the synthetic bottom frame a host CallFunction call runs in.
func NewStack(baseCap int) *Stack {
	if baseCap <= 0 {
		baseCap = 8
	}
	s := &Stack{cells: make([]cell, baseCap)}
	s.headerAt = 0
	s.cells[0] = cell{isHeader: true, header: frameHeader{retAddr: -1, retSlot: -1, retBase: -1}}
	s.base = 1
	s.top = 1
	return s
}

func (s *Stack) ensure(n int) {
	need := s.top + n
	if need <= len(s.cells) {
		return
	}
	newCap := len(s.cells) * 2
	if newCap < need {
		newCap = need
	}
	grown := make([]cell, newCap)
	copy(grown, s.cells)
	s.cells = grown
}

// currentHeader returns the active frame's header.
func (s *Stack) currentHeader() *frameHeader {
	return &s.cells[s.headerAt].header
}

// reg returns the absolute stack index of register/variadic-slot i in the
// active frame.
func (s *Stack) reg(i int) int { return s.base + i }

// Get reads register i in the active frame.
func (s *Stack) Get(i int) Value { return s.cells[s.reg(i)].val }

// Set stores val into register i in the active frame, retaining val and
// releasing whatever it replaces (§5's refcount discipline: every register
// write is a retain-then-release pair so a value surviving the swap never
// touches zero prematurely).
func (s *Stack) Set(i int, val Value) {
	idx := s.reg(i)
	retainValue(val)
	releaseValue(s.cells[idx].val)
	s.cells[idx].val = val
}

// pushFrame allocates a new frame for fn with every register set to Nil
// and makes it the active frame; the caller (pushAndCopyArgs) copies the
// arguments in afterwards. retAddr/retSlot, together with the saved
// caller base (retBase), describe how to resume the caller on RET.
func (s *Stack) pushFrame(fn *FunctionObject, extraArgc, realArgc, retAddr, retSlot int) {
	window := fn.NRegs + extraArgc
	s.ensure(1 + window)

	newHeaderAt := s.top
	s.cells[newHeaderAt] = cell{isHeader: true, header: frameHeader{
		fn:        fn,
		declArgc:  fn.DeclArgc,
		extraArgc: extraArgc,
		realArgc:  realArgc,
		retAddr:   retAddr,
		retSlot:   retSlot,
		retBase:   s.base,
	}}
	newBase := newHeaderAt + 1
	for i := 0; i < window; i++ {
		s.cells[newBase+i] = cell{val: Nil}
	}
	s.top = newBase + window
	s.base = newBase
	s.headerAt = newHeaderAt
}

// pushNativePseudoframe installs a zero-register marker frame so stack
// traces (§6) can show a native call site without giving it any registers
// of its own.
func (s *Stack) pushNativePseudoframe(name string, retAddr, retSlot int) {
	s.ensure(1)
	newHeaderAt := s.top
	s.cells[newHeaderAt] = cell{isHeader: true, header: frameHeader{
		native:     true,
		nativeName: name,
		retAddr:    retAddr,
		retSlot:    retSlot,
		retBase:    s.base,
	}}
	s.top = newHeaderAt + 1
	s.base = newHeaderAt + 1 // empty window; base==top+? see popFrame symmetry
	s.headerAt = newHeaderAt
}

// popFrame releases every live register in the active frame, then
// restores the caller's base/header, returning the header that was
// popped so the dispatcher can resume at retAddr.
func (s *Stack) popFrame() frameHeader {
	h := s.cells[s.headerAt].header
	window := h.window()
	for i := 0; i < window; i++ {
		releaseValue(s.cells[s.base+i].val)
		s.cells[s.base+i].val = Value{}
	}
	s.top = s.headerAt
	s.base = h.retBase
	if h.retBase > 0 {
		s.headerAt = h.retBase - 1
	} else {
		s.headerAt = 0
	}
	return h
}

// Depth reports the number of activation records currently on the stack,
// including the synthetic bottom frame, for the MaxCallDepth guard (§7).
func (s *Stack) Depth() int {
	n := 0
	at := s.headerAt
	for {
		n++
		h := &s.cells[at].header
		if h.retBase <= 0 {
			return n
		}
		at = h.retBase - 1
	}
}

// Trace walks frame headers from the active frame down to the bottom,
// returning one line per frame (§6's stack trace format).
func (s *Stack) Trace() []string {
	var lines []string
	at := s.headerAt
	for {
		h := &s.cells[at].header
		if h.fn == nil && !h.native {
			break
		}
		name := h.nativeName
		if h.fn != nil {
			name = h.fn.Name
		}
		if name == "" {
			name = "<anonymous>"
		}
		lines = append(lines, name)
		if h.retBase <= 0 {
			break
		}
		at = h.retBase - 1
	}
	return lines
}
