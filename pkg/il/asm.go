package il

import (
	"encoding/binary"
	"fmt"
)

// Assembler encodes instructions into a method body.
type Assembler struct {
	buf []byte
}

// Offset returns the offset the next instruction will be written at.
func (a *Assembler) Offset() int { return len(a.buf) }

// Bytes returns the encoded body.
func (a *Assembler) Bytes() []byte { return a.buf }

// Emit writes an instruction without operand and returns its offset.
func (a *Assembler) Emit(op Op) int {
	off := len(a.buf)
	a.writeOp(op)
	return off
}

// EmitToken writes an instruction with a token operand.
func (a *Assembler) EmitToken(op Op, tok Token) int {
	off := len(a.buf)
	a.writeOp(op)
	a.buf = binary.LittleEndian.AppendUint32(a.buf, uint32(tok))
	return off
}

// EmitInt writes an instruction with an integer or branch operand.
func (a *Assembler) EmitInt(op Op, v int64) int {
	off := len(a.buf)
	a.writeOp(op)
	switch op.Operand() {
	case OperandInt8, OperandBranch8:
		a.buf = append(a.buf, byte(int8(v)))
	case OperandInt32, OperandBranch32:
		a.buf = binary.LittleEndian.AppendUint32(a.buf, uint32(int32(v)))
	case OperandInt64:
		a.buf = binary.LittleEndian.AppendUint64(a.buf, uint64(v))
	default:
		panic(fmt.Sprintf("il: %s takes no integer operand", op))
	}
	return off
}

// EmitCall writes a call or callvirt, optionally prefixed with tail.
func (a *Assembler) EmitCall(op Op, tok Token, tail bool) int {
	off := len(a.buf)
	if tail {
		a.writeOp(Tail)
	}
	a.writeOp(op)
	a.buf = binary.LittleEndian.AppendUint32(a.buf, uint32(tok))
	return off
}

// EmitRaw appends raw bytes. Used to produce malformed bodies in tests.
func (a *Assembler) EmitRaw(b ...byte) int {
	off := len(a.buf)
	a.buf = append(a.buf, b...)
	return off
}

func (a *Assembler) writeOp(op Op) {
	if op.Size() == 2 {
		a.buf = append(a.buf, twoBytePrefix, byte(op))
		return
	}
	a.buf = append(a.buf, byte(op))
}
