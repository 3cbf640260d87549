package bytecode

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestEncodeDecodeLeading(t *testing.T) {
	w := EncodeLeading(OpAdd, 1, 2, 3)
	op, a, b, c := DecodeLeading(w)
	assert.Equal(t, op, OpAdd)
	assert.Equal(t, a, byte(1))
	assert.Equal(t, b, byte(2))
	assert.Equal(t, c, byte(3))
}

func TestEncodeLeadingMid(t *testing.T) {
	w := EncodeLeadingMid(OpLdSym, 4, 0x1234)
	op, a, b, c := DecodeLeading(w)
	assert.Equal(t, op, OpLdSym)
	assert.Equal(t, a, byte(4))
	assert.Equal(t, Mid(b, c), uint16(0x1234))
}

func TestPutGetInt64RoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 1 << 40, -(1 << 40)} {
		words := PutInt64(v)
		assert.Equal(t, GetInt64(words[0], words[1]), v)
	}
}

func TestPutGetFloat64RoundTrip(t *testing.T) {
	for _, v := range []float64{0, 1.5, -3.25, 1e300} {
		words := PutFloat64(v)
		assert.Equal(t, GetFloat64(words[0], words[1]), v)
	}
}

func TestPutGetStringRoundTrip(t *testing.T) {
	code := PutString("hello, world")
	got := GetString(code, 0, len(code))
	assert.Equal(t, got, "hello, world")
}

func TestBuilderJumpPatch(t *testing.T) {
	b := NewBuilder("t", 0, 2)
	fb := b.EntryFunc()
	fb.LoadInt(0, 1)
	patch := fb.Jmp()
	fb.LoadInt(0, 2)
	fb.PatchToHere(patch)
	fb.Ret(0)
	img := b.Build()

	// LoadInt(0,1) occupies words [0,2]; Jmp's leading word is at 3, its
	// offset word at 4. The patched offset must land exactly on Ret,
	// skipping the LoadInt(0,2) at words [5,7].
	op, _, _, _ := DecodeLeading(img.Code[3])
	assert.Equal(t, op, OpJmp)
	offset := int32(img.Code[4])
	target := 5 + int(offset)
	assert.Equal(t, target, 8)
	retOp, _, _, _ := DecodeLeading(img.Code[target])
	assert.Equal(t, retOp, OpRet)
}

func TestBuilderSymtabRoundTrip(t *testing.T) {
	b := NewBuilder("t", 0, 1)
	strIdx := b.AddString("hi")
	stubIdx := b.AddStub("globalName")
	img := b.Build()

	assert.Equal(t, strIdx, 0)
	assert.Equal(t, stubIdx, 1)
	// No instructions were emitted, so the record stream starts at word 0.
	assert.Equal(t, img.SymtabOffset, 0)
}

func TestEncodeDecodeImage(t *testing.T) {
	b := NewBuilder("roundtrip", 0, 2)
	fb := b.EntryFunc()
	fb.LoadInt(0, 42)
	fb.Ret(0)
	img := b.Build()

	data := Encode(img)
	decoded, err := Decode(data)
	assert.NilError(t, err)
	assert.Equal(t, decoded.Name, img.Name)
	assert.Equal(t, decoded.EntryOffset, img.EntryOffset)
	assert.Equal(t, len(decoded.Code), len(img.Code))
}
