package il

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrTruncated is returned when a body ends in the middle of an instruction.
	ErrTruncated = errors.New("truncated instruction")
	// ErrUnknownOpcode is returned for bytes that do not encode a known opcode.
	ErrUnknownOpcode = errors.New("unknown opcode")
	// ErrDanglingPrefix is returned when a prefix is not followed by an instruction.
	ErrDanglingPrefix = errors.New("prefix without instruction")
)

// Prefixes applied to an instruction.
type Prefixes uint8

const (
	PrefixTail Prefixes = 1 << iota
	PrefixVolatile
	PrefixConstrained
)

// Instruction is one decoded instruction.
type Instruction struct {
	// Offset is the byte offset of the instruction, including its prefixes.
	Offset int
	Op     Op
	// Prefixes lists the prefixes that preceded Op.
	Prefixes Prefixes
	// Token is set for OperandToken instructions.
	Token Token
	// Int holds integer operands and relative branch displacements.
	Int int64
	// Targets holds switch displacements.
	Targets []int32
}

// IsTailCall reports whether the instruction carries the tail. prefix.
func (i Instruction) IsTailCall() bool {
	return i.Prefixes&PrefixTail != 0
}

// IsCallSite reports whether the instruction is a call site subject to rule
// matching: call or callvirt without the tail. prefix.
func (i Instruction) IsCallSite() bool {
	return i.Op.IsCallLike() && !i.IsTailCall()
}

func (i Instruction) String() string {
	s := i.Op.String()
	if i.IsTailCall() {
		s = "tail. " + s
	}
	switch i.Op.Operand() {
	case OperandToken:
		return fmt.Sprintf("IL_%04x: %s %s", i.Offset, s, i.Token)
	case OperandNone:
		return fmt.Sprintf("IL_%04x: %s", i.Offset, s)
	default:
		return fmt.Sprintf("IL_%04x: %s %d", i.Offset, s, i.Int)
	}
}

// DecodeError locates a decoding failure inside a body.
type DecodeError struct {
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("IL_%04x: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode decodes a whole method body. It stops at the first malformed
// instruction and returns a *DecodeError; instructions decoded before the
// failure are not returned.
func Decode(body []byte) ([]Instruction, error) {
	out := make([]Instruction, 0, len(body)/3)
	err := Walk(body, func(inst Instruction) bool {
		out = append(out, inst)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Walk decodes body and calls fn for each instruction until fn returns false.
func Walk(body []byte, fn func(Instruction) bool) error {
	pos := 0
	for pos < len(body) {
		start := pos
		var prefixes Prefixes
		var inst Instruction
		for {
			op, n, err := readOp(body, pos)
			if err != nil {
				return &DecodeError{Offset: pos, Err: err}
			}
			pos += n
			if !op.IsPrefix() {
				inst = Instruction{Offset: start, Op: op, Prefixes: prefixes}
				break
			}
			switch op {
			case Tail:
				prefixes |= PrefixTail
			case Volatile:
				prefixes |= PrefixVolatile
			case Constrain:
				if pos+4 > len(body) {
					return &DecodeError{Offset: pos, Err: ErrTruncated}
				}
				pos += 4
				prefixes |= PrefixConstrained
			}
			if pos >= len(body) {
				return &DecodeError{Offset: start, Err: ErrDanglingPrefix}
			}
		}
		n, err := readOperand(body, pos, &inst)
		if err != nil {
			return &DecodeError{Offset: start, Err: err}
		}
		pos += n
		if !fn(inst) {
			return nil
		}
	}
	return nil
}

func readOp(body []byte, pos int) (Op, int, error) {
	b := body[pos]
	if b != twoBytePrefix {
		op := Op(b)
		if !op.Known() {
			return 0, 0, fmt.Errorf("%w 0x%02X", ErrUnknownOpcode, b)
		}
		return op, 1, nil
	}
	if pos+1 >= len(body) {
		return 0, 0, ErrTruncated
	}
	op := Op(twoBytePrefix)<<8 | Op(body[pos+1])
	if !op.Known() {
		return 0, 0, fmt.Errorf("%w 0xFE%02X", ErrUnknownOpcode, body[pos+1])
	}
	return op, 2, nil
}

func readOperand(body []byte, pos int, inst *Instruction) (int, error) {
	kind := inst.Op.Operand()
	if kind == OperandSwitch {
		if pos+4 > len(body) {
			return 0, ErrTruncated
		}
		count := int(binary.LittleEndian.Uint32(body[pos:]))
		if count < 0 || pos+4+count*4 > len(body) {
			return 0, ErrTruncated
		}
		inst.Targets = make([]int32, count)
		for i := range count {
			inst.Targets[i] = int32(binary.LittleEndian.Uint32(body[pos+4+i*4:]))
		}
		return 4 + count*4, nil
	}

	size := kind.Size()
	if pos+size > len(body) {
		return 0, ErrTruncated
	}
	switch kind {
	case OperandInt8, OperandBranch8:
		inst.Int = int64(int8(body[pos]))
	case OperandInt32, OperandBranch32:
		inst.Int = int64(int32(binary.LittleEndian.Uint32(body[pos:])))
	case OperandInt64:
		inst.Int = int64(binary.LittleEndian.Uint64(body[pos:]))
	case OperandToken:
		inst.Token = Token(binary.LittleEndian.Uint32(body[pos:]))
	}
	return size, nil
}
