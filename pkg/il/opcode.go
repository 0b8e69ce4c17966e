// Package il implements the method-body instruction encoding scanned by the
// audit engine: a CIL-compatible subset with one and two byte opcodes,
// inline operands and the tail. call prefix.
package il

import "fmt"

// Op is an opcode. Two byte opcodes are stored as 0xFE00|second.
type Op uint16

// OperandKind describes the inline operand following an opcode.
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandInt8
	OperandInt32
	OperandInt64
	OperandToken
	OperandBranch8
	OperandBranch32
	OperandSwitch
)

// Size returns the encoded operand size in bytes. Switch operands are
// variable-length and return -1.
func (k OperandKind) Size() int {
	switch k {
	case OperandNone:
		return 0
	case OperandInt8, OperandBranch8:
		return 1
	case OperandInt32, OperandToken, OperandBranch32:
		return 4
	case OperandInt64:
		return 8
	default:
		return -1
	}
}

const twoBytePrefix = 0xFE

const (
	Nop       Op = 0x00
	Break     Op = 0x01
	Ldarg0    Op = 0x02
	Ldarg1    Op = 0x03
	Ldarg2    Op = 0x04
	Ldarg3    Op = 0x05
	Ldloc0    Op = 0x06
	Ldloc1    Op = 0x07
	Ldloc2    Op = 0x08
	Ldloc3    Op = 0x09
	Stloc0    Op = 0x0A
	Stloc1    Op = 0x0B
	Stloc2    Op = 0x0C
	Stloc3    Op = 0x0D
	LdargS    Op = 0x0E
	Ldnull    Op = 0x14
	LdcI4M1   Op = 0x15
	LdcI40    Op = 0x16
	LdcI41    Op = 0x17
	LdcI4S    Op = 0x1F
	LdcI4     Op = 0x20
	LdcI8     Op = 0x21
	Dup       Op = 0x25
	Pop       Op = 0x26
	Jmp       Op = 0x27
	Call      Op = 0x28
	Calli     Op = 0x29
	Ret       Op = 0x2A
	BrS       Op = 0x2B
	BrfalseS  Op = 0x2C
	BrtrueS   Op = 0x2D
	Br        Op = 0x38
	Brfalse   Op = 0x39
	Brtrue    Op = 0x3A
	Switch    Op = 0x45
	Callvirt  Op = 0x6F
	Ldstr     Op = 0x72
	Newobj    Op = 0x73
	Throw     Op = 0x7A
	Ldfld     Op = 0x7B
	Stfld     Op = 0x7D
	Ldsfld    Op = 0x7E
	Stsfld    Op = 0x80
	Box       Op = 0x8C
	Ldftn     Op = 0xFE06
	Ldvirtftn Op = 0xFE07
	Volatile  Op = 0xFE13
	Tail      Op = 0xFE14
	Constrain Op = 0xFE16
)

type opInfo struct {
	name    string
	operand OperandKind
	prefix  bool
}

var opTable = map[Op]opInfo{
	Nop:       {"nop", OperandNone, false},
	Break:     {"break", OperandNone, false},
	Ldarg0:    {"ldarg.0", OperandNone, false},
	Ldarg1:    {"ldarg.1", OperandNone, false},
	Ldarg2:    {"ldarg.2", OperandNone, false},
	Ldarg3:    {"ldarg.3", OperandNone, false},
	Ldloc0:    {"ldloc.0", OperandNone, false},
	Ldloc1:    {"ldloc.1", OperandNone, false},
	Ldloc2:    {"ldloc.2", OperandNone, false},
	Ldloc3:    {"ldloc.3", OperandNone, false},
	Stloc0:    {"stloc.0", OperandNone, false},
	Stloc1:    {"stloc.1", OperandNone, false},
	Stloc2:    {"stloc.2", OperandNone, false},
	Stloc3:    {"stloc.3", OperandNone, false},
	LdargS:    {"ldarg.s", OperandInt8, false},
	Ldnull:    {"ldnull", OperandNone, false},
	LdcI4M1:   {"ldc.i4.m1", OperandNone, false},
	LdcI40:    {"ldc.i4.0", OperandNone, false},
	LdcI41:    {"ldc.i4.1", OperandNone, false},
	LdcI4S:    {"ldc.i4.s", OperandInt8, false},
	LdcI4:     {"ldc.i4", OperandInt32, false},
	LdcI8:     {"ldc.i8", OperandInt64, false},
	Dup:       {"dup", OperandNone, false},
	Pop:       {"pop", OperandNone, false},
	Jmp:       {"jmp", OperandToken, false},
	Call:      {"call", OperandToken, false},
	Calli:     {"calli", OperandToken, false},
	Ret:       {"ret", OperandNone, false},
	BrS:       {"br.s", OperandBranch8, false},
	BrfalseS:  {"brfalse.s", OperandBranch8, false},
	BrtrueS:   {"brtrue.s", OperandBranch8, false},
	Br:        {"br", OperandBranch32, false},
	Brfalse:   {"brfalse", OperandBranch32, false},
	Brtrue:    {"brtrue", OperandBranch32, false},
	Switch:    {"switch", OperandSwitch, false},
	Callvirt:  {"callvirt", OperandToken, false},
	Ldstr:     {"ldstr", OperandToken, false},
	Newobj:    {"newobj", OperandToken, false},
	Throw:     {"throw", OperandNone, false},
	Ldfld:     {"ldfld", OperandToken, false},
	Stfld:     {"stfld", OperandToken, false},
	Ldsfld:    {"ldsfld", OperandToken, false},
	Stsfld:    {"stsfld", OperandToken, false},
	Box:       {"box", OperandToken, false},
	Ldftn:     {"ldftn", OperandToken, false},
	Ldvirtftn: {"ldvirtftn", OperandToken, false},
	Volatile:  {"volatile.", OperandNone, true},
	Tail:      {"tail.", OperandNone, true},
	Constrain: {"constrained.", OperandToken, true},
}

// Known reports whether op is part of the instruction set.
func (op Op) Known() bool {
	_, ok := opTable[op]
	return ok
}

// Operand returns the inline operand kind of op.
func (op Op) Operand() OperandKind {
	return opTable[op].operand
}

// IsPrefix reports whether op modifies the instruction that follows it.
func (op Op) IsPrefix() bool {
	return opTable[op].prefix
}

// IsCallLike reports whether op is a direct or virtual call. Newobj, calli
// and jmp are not call sites for rule matching.
func (op Op) IsCallLike() bool {
	return op == Call || op == Callvirt
}

// Size returns the encoded size of the opcode itself.
func (op Op) Size() int {
	if op>>8 == twoBytePrefix {
		return 2
	}
	return 1
}

func (op Op) String() string {
	if info, ok := opTable[op]; ok {
		return info.name
	}
	return fmt.Sprintf("op(0x%X)", uint16(op))
}

// Token references a metadata row: the high byte selects the table, the low
// three bytes the 1-based row.
type Token uint32

// Metadata tables referenced by tokens.
const (
	TableMethodDef byte = 0x06
	TableMemberRef byte = 0x0A
	TableTypeRef   byte = 0x01
	TableString    byte = 0x70
)

// NewToken builds a token for the given table and 1-based row.
func NewToken(table byte, row int) Token {
	return Token(uint32(table)<<24 | uint32(row)&0x00FFFFFF)
}

// Table returns the table byte.
func (t Token) Table() byte { return byte(t >> 24) }

// Row returns the 1-based row. Zero means the null token.
func (t Token) Row() int { return int(t & 0x00FFFFFF) }

func (t Token) String() string {
	return fmt.Sprintf("0x%08X", uint32(t))
}
