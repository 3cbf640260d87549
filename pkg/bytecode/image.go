package bytecode

import (
	"encoding/binary"
	"fmt"
	"math"
)

// magic identifies a serialized Image file (cmd/vmrun's -image flag).
const magic = uint32(0x52564d49) // "RVMI"

// SymtabRecordKind tags entries in the local symbol table record stream
// that trails a top-level program's bytecode (§4.6 of the spec this engine
// implements).
type SymtabRecordKind byte

const (
	SymString SymtabRecordKind = iota
	SymStub
	SymFuncDef
)

// Image is the immutable, word-granular bytecode artifact the dispatcher
// consumes. It has no notion of registers, frames, or runtime values — it is
// exactly what an external compiler would hand the VM.
type Image struct {
	Name         string
	Code         []Word
	EntryOffset  int // first instruction of the top-level program
	EntryDeclArgc int
	EntryNRegs   int
	SymtabOffset int // word offset of the local symbol table record stream
}

// PutInt64 encodes a little-endian-by-word int64 immediate as two Words and
// returns them.
func PutInt64(v int64) [2]Word {
	u := uint64(v)
	return [2]Word{Word(u & 0xFFFFFFFF), Word(u >> 32)}
}

// GetInt64 decodes two Words previously produced by PutInt64.
func GetInt64(lo, hi Word) int64 {
	return int64(uint64(lo) | uint64(hi)<<32)
}

// PutFloat64 encodes a float64 immediate as two Words.
func PutFloat64(v float64) [2]Word {
	return PutInt64(int64(math.Float64bits(v)))
}

// GetFloat64 decodes two Words previously produced by PutFloat64.
func GetFloat64(lo, hi Word) float64 {
	return math.Float64frombits(uint64(GetInt64(lo, hi)))
}

// PutString packs s (NUL-terminated) into whole Words, little-endian byte
// order within each Word, and returns those Words.
func PutString(s string) []Word {
	b := append([]byte(s), 0)
	n := WordsForBytes(len(b))
	words := make([]Word, n)
	for i, c := range b {
		words[i/4] |= Word(c) << uint((i%4)*8)
	}
	return words
}

// GetString reads a NUL-terminated string out of n Words starting at code[off].
func GetString(code []Word, off, nWords int) string {
	b := make([]byte, 0, nWords*4)
	for i := 0; i < nWords; i++ {
		w := code[off+i]
		b = append(b, byte(w), byte(w>>8), byte(w>>16), byte(w>>24))
	}
	// trim at the first NUL
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// Encode serializes img to a flat word-granular file: a magic word, four
// header words (EntryOffset, EntryDeclArgc, EntryNRegs, SymtabOffset),
// the code length and code words, then the name length and the name's
// word-padded bytes.
// This is the on-disk counterpart to the in-process image Builder
// produces, for cmd/vmrun's -image flag.
func Encode(img *Image) []byte {
	nameWords := PutString(img.Name)
	total := 1 + 4 + 1 + len(img.Code) + 1 + len(nameWords)
	words := make([]Word, 0, total)
	words = append(words, Word(magic))
	words = append(words, Word(img.EntryOffset), Word(img.EntryDeclArgc), Word(img.EntryNRegs), Word(img.SymtabOffset))
	words = append(words, Word(len(img.Code)))
	words = append(words, img.Code...)
	words = append(words, Word(len(img.Name)))
	words = append(words, nameWords...)

	buf := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(w))
	}
	return buf
}

// Decode parses a file produced by Encode.
func Decode(data []byte) (*Image, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("bytecode: file length %d is not word-aligned", len(data))
	}
	words := make([]Word, len(data)/4)
	for i := range words {
		words[i] = Word(binary.LittleEndian.Uint32(data[i*4:]))
	}
	if len(words) < 6 || words[0] != Word(magic) {
		return nil, fmt.Errorf("bytecode: not a valid image file")
	}
	img := &Image{
		EntryOffset:   int(words[1]),
		EntryDeclArgc: int(words[2]),
		EntryNRegs:    int(words[3]),
		SymtabOffset:  int(words[4]),
	}
	codeLen := int(words[5])
	off := 6
	if off+codeLen > len(words) {
		return nil, fmt.Errorf("bytecode: truncated code section")
	}
	img.Code = words[off : off+codeLen]
	off += codeLen
	if off >= len(words) {
		return nil, fmt.Errorf("bytecode: truncated name section")
	}
	nameLen := int(words[off])
	off++
	nameWords := WordsForBytes(nameLen + 1)
	if off+nameWords > len(words) {
		return nil, fmt.Errorf("bytecode: truncated name bytes")
	}
	img.Name = GetString(words, off, nameWords)
	return img, nil
}
