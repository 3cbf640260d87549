package vm

// addValues implements ADD: numeric addition promoting to float whenever
// either operand is a float (§4.4's arithmetic table).
func addValues(a, b Value) (Value, bool) {
	if !a.isNumber() || !b.isNumber() {
		return Nil, false
	}
	if a.tag == TagInt && b.tag == TagInt {
		return IntValue(a.i + b.i), true
	}
	return FloatValue(a.asFloat64() + b.asFloat64()), true
}

func subValues(a, b Value) (Value, bool) {
	if !a.isNumber() || !b.isNumber() {
		return Nil, false
	}
	if a.tag == TagInt && b.tag == TagInt {
		return IntValue(a.i - b.i), true
	}
	return FloatValue(a.asFloat64() - b.asFloat64()), true
}

func mulValues(a, b Value) (Value, bool) {
	if !a.isNumber() || !b.isNumber() {
		return Nil, false
	}
	if a.tag == TagInt && b.tag == TagInt {
		return IntValue(a.i * b.i), true
	}
	return FloatValue(a.asFloat64() * b.asFloat64()), true
}

// divValues implements DIV: Int/Int division wraps to Int (two's-complement,
// truncating), promoting to Float whenever either operand is a Float, same
// as ADD/SUB/MUL.
func divValues(a, b Value) (Value, bool, bool) {
	if !a.isNumber() || !b.isNumber() {
		return Nil, false, true // (_, ok=false, typeOK=false)
	}
	if a.tag == TagInt && b.tag == TagInt {
		if b.i == 0 {
			return Nil, false, false
		}
		return IntValue(a.i / b.i), true, false
	}
	bf := b.asFloat64()
	if bf == 0 {
		return Nil, false, false // typeOK but division by zero
	}
	return FloatValue(a.asFloat64() / bf), true, false
}

// modValues implements MOD: both operands must be Int; the remainder takes
// the sign of the dividend.
func modValues(a, b Value) (Value, bool, bool) {
	if a.tag != TagInt || b.tag != TagInt {
		return Nil, false, true
	}
	if b.i == 0 {
		return Nil, false, false
	}
	return IntValue(a.i % b.i), true, false
}

func negValue(a Value) (Value, bool) {
	switch a.tag {
	case TagInt:
		return IntValue(-a.i), true
	case TagFloat:
		return FloatValue(-a.f), true
	default:
		return Nil, false
	}
}

func bitwise(op byte, a, b Value) (Value, bool) {
	if a.tag != TagInt || b.tag != TagInt {
		return Nil, false
	}
	switch op {
	case 'a':
		return IntValue(a.i & b.i), true
	case 'o':
		return IntValue(a.i | b.i), true
	case 'x':
		return IntValue(a.i ^ b.i), true
	case '<':
		return IntValue(a.i << uint(b.i)), true
	case '>':
		return IntValue(a.i >> uint(b.i)), true
	}
	return Nil, false
}
