package vm

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestValueRefcounting(t *testing.T) {
	s := StringValue("hello")
	assert.Equal(t, s.refcount(), 1)

	retainValue(s)
	assert.Equal(t, s.refcount(), 2)

	releaseValue(s)
	assert.Equal(t, s.refcount(), 1)
}

func TestEqualValuesCrossTagNumeric(t *testing.T) {
	assert.Assert(t, equalValues(IntValue(2), FloatValue(2.0)))
	assert.Assert(t, !equalValues(IntValue(2), FloatValue(2.5)))
	assert.Assert(t, !equalValues(IntValue(2), StringValue("2")))
}

func TestEqualValuesDeepArray(t *testing.T) {
	a := ArrayValue()
	a.AsArray().Set(0, IntValue(1))
	a.AsArray().Set(1, IntValue(2))

	b := ArrayValue()
	b.AsArray().Set(0, IntValue(1))
	b.AsArray().Set(1, IntValue(2))

	assert.Assert(t, equalValues(a, b))

	b.AsArray().Set(1, IntValue(3))
	assert.Assert(t, !equalValues(a, b))
}

func TestOrderableAndCompare(t *testing.T) {
	assert.Assert(t, orderable(IntValue(1), FloatValue(2)))
	assert.Assert(t, orderable(StringValue("a"), StringValue("b")))
	assert.Assert(t, !orderable(StringValue("a"), IntValue(1)))

	assert.Assert(t, compareValues(IntValue(1), IntValue(2)) < 0)
	assert.Assert(t, compareValues(StringValue("b"), StringValue("a")) > 0)
}

func TestTypeName(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{Nil, "nil"},
		{BoolValue(true), "boolean"},
		{IntValue(1), "number"},
		{FloatValue(1), "number"},
		{StringValue("x"), "string"},
		{ArrayValue(), "array"},
	}
	for _, c := range cases {
		assert.Equal(t, c.v.typeName(), c.want)
	}
}
