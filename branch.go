package injector

import (
	"fmt"
	"log/slog"
)

const (
	opcodeCALLrel   = 0xe8 // CALL rel32
	opcodeJMP       = 0xe9 // JMP rel32
	opcodeJMPshort  = 0xeb // JMP rel8
	opcodeTwoByte   = 0x0f // escape for JZ/JNZ rel32
	opcodeJZ        = 0x84
	opcodeJNZ       = 0x85
	opcodeIndirect  = 0xff // CALL/JMP r/m64
	opcodeLEA       = 0x8d
	opcodeMOV_r_rm  = 0x8b // MOV r, r/m
	opcodeNOP       = 0x90
	opcodeINT3      = 0xcc
	prefixREXW      = 0x48
	prefixREXWR     = 0x4c
	modrmCALLindRIP = 0x15 // CALL [RIP+disp32]
	modrmJMPindRIP  = 0x25 // JMP [RIP+disp32]
	modrmRCXripRel  = 0x0d // RCX/R9, [RIP+disp32]
	modrmRDXripRel  = 0x15 // RDX/R10, [RIP+disp32]
)

// BranchDestination returns where the instruction at at branches to, or Nil
// if it isn't one of the instructions this package understands:
//
//	E8 rel32                 CALL rel32
//	E9 rel32                 JMP rel32
//	0F 84/85 rel32           JZ/JNZ rel32
//	FF 15/25 disp32          CALL/JMP [RIP+disp32]
//	48/4C 8B/8D 0D/15 disp32 MOV/LEA reg, [RIP+disp32]
//
// For the indirect CALL and JMP the destination is the pointer stored in the
// slot, or the slot's address if the slot can't be read. For MOV and LEA it's
// the address of the operand.
func (p *Patcher) BranchDestination(at Addr) (Addr, error) {
	return p.branchDestination(p.Resolve(at))
}

func (p *Patcher) branchDestination(addr uintptr) (Addr, error) {
	op, err := readAt[uint8](p, addr, p.unprotect)
	if err != nil {
		return Nil, err
	}

	switch op {
	case prefixREXW, prefixREXWR:
		op2, err := readAt[uint8](p, addr+1, p.unprotect)
		if err != nil {
			return Nil, err
		}
		if op2 != opcodeMOV_r_rm && op2 != opcodeLEA {
			break
		}

		modrm, err := readAt[uint8](p, addr+2, p.unprotect)
		if err != nil {
			return Nil, err
		}
		if modrm == modrmRCXripRel || modrm == modrmRDXripRel {
			return p.readRelativeOffset(addr+3, Width32)
		}

	case opcodeCALLrel, opcodeJMP:
		return p.readRelativeOffset(addr+1, Width32)

	case opcodeTwoByte:
		op2, err := readAt[uint8](p, addr+1, p.unprotect)
		if err != nil {
			return Nil, err
		}
		if op2 == opcodeJZ || op2 == opcodeJNZ {
			return p.readRelativeOffset(addr+2, Width32)
		}

	case opcodeIndirect:
		modrm, err := readAt[uint8](p, addr+1, p.unprotect)
		if err != nil {
			return Nil, err
		}
		if modrm != modrmCALLindRIP && modrm != modrmJMPindRIP {
			break
		}

		slot, err := p.readRelativeOffset(addr+2, Width32)
		if err != nil {
			return Nil, err
		}
		dest, err := readAt[uint64](p, slot.Value, p.unprotect)
		if err != nil {
			p.logger.Debug("unreadable branch slot",
				slog.String("site", fmt.Sprintf("%#x", addr)),
				slog.String("slot", slot.String()),
				slog.String("err", err.Error()),
			)
			return slot, nil
		}
		return RawAddr(uintptr(dest)), nil
	}

	return Nil, nil
}
