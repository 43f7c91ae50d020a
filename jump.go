package injector

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
)

const (
	nearBranchSize = 5  // 1 byte opcode + 4 byte displacement
	farJumpSize    = 14 // JMP [RIP+0] + 8 byte address
	farCallSize    = 16 // CALL [RIP+2] + JMP +8 + 8 byte address
)

// JumpSize returns the number of bytes MakeJMP will write at at to reach
// dest. The patch site must have room for at least this many bytes.
func (p *Patcher) JumpSize(at, dest Addr) int {
	if p.isNear(p.Resolve(at), p.Resolve(dest)) {
		return nearBranchSize
	}
	return farJumpSize
}

func (p *Patcher) isNear(addr, target uintptr) bool {
	return FitsRel32(RelativeOffset(RawAddr(target), RawAddr(addr+nearBranchSize)))
}

// MakeJMP overwrites the instruction at at with a jump to dest and returns
// the destination of the branch that was there before, or Nil if there
// wasn't a recognized branch.
//
// A 5-byte JMP rel32 is written when dest is within ±2GB of the end of the
// instruction. Otherwise a 14-byte JMP [RIP+0] followed by the absolute
// address is written.
func (p *Patcher) MakeJMP(at, dest Addr) (Addr, error) {
	addr := p.Resolve(at)
	target := p.Resolve(dest)

	prev, err := p.branchDestination(addr)
	if err != nil {
		return Nil, err
	}

	if p.isNear(addr, target) {
		code := nearBranch(opcodeJMP, addr, target)
		err = writeAt(p, addr, code, p.unprotect)
		if err != nil {
			return Nil, err
		}
		p.logPatch("jmp", addr, target, code[:], len(code))
	} else {
		code := farJump(target)
		err = writeAt(p, addr, code, p.unprotect)
		if err != nil {
			return Nil, err
		}
		p.logPatch("jmp far", addr, target, code[:], 6)
	}

	return prev, nil
}

// MakeCALL overwrites the instruction at at with a call to dest and returns
// the previous branch destination, like MakeJMP.
//
// The far form is 16 bytes: CALL [RIP+2], a 2-byte JMP over the address, and
// the address itself. Execution continues after those 16 bytes when the call
// returns.
func (p *Patcher) MakeCALL(at, dest Addr) (Addr, error) {
	addr := p.Resolve(at)
	target := p.Resolve(dest)

	prev, err := p.branchDestination(addr)
	if err != nil {
		return Nil, err
	}

	if p.isNear(addr, target) {
		code := nearBranch(opcodeCALLrel, addr, target)
		err = writeAt(p, addr, code, p.unprotect)
		if err != nil {
			return Nil, err
		}
		p.logPatch("call", addr, target, code[:], len(code))
	} else {
		code := farCall(target)
		err = writeAt(p, addr, code, p.unprotect)
		if err != nil {
			return Nil, err
		}
		p.logPatch("call far", addr, target, code[:], 8)
	}

	return prev, nil
}

// MakeNOP fills n bytes at at with NOP instructions and returns the address
// after them.
func (p *Patcher) MakeNOP(at Addr, n int) (Addr, error) {
	if n < 0 {
		return Nil, fmt.Errorf("negative NOP count %d", n)
	}

	addr := p.Resolve(at)
	err := writeBytesAt(p, addr, bytes.Repeat([]byte{opcodeNOP}, n), p.unprotect)
	if err != nil {
		return Nil, err
	}
	return at.Add(uintptr(n)), nil
}

// nearBranch encodes a 5-byte rel32 branch at addr. The caller has checked
// that target is in range.
func nearBranch(opcode byte, addr, target uintptr) [nearBranchSize]byte {
	var code [nearBranchSize]byte
	code[0] = opcode
	rel := RelativeOffset(RawAddr(target), RawAddr(addr+nearBranchSize))
	binary.LittleEndian.PutUint32(code[1:], uint32(int32(rel)))
	return code
}

// farJump encodes JMP [RIP+0] with the 8-byte address right after it.
func farJump(target uintptr) [farJumpSize]byte {
	var code [farJumpSize]byte
	code[0] = opcodeIndirect
	code[1] = modrmJMPindRIP
	// Displacement of zero, the address follows the instruction.
	binary.LittleEndian.PutUint32(code[2:], 0)
	binary.LittleEndian.PutUint64(code[6:], uint64(target))
	return code
}

// farCall encodes CALL [RIP+2]; JMP +8 with the 8-byte address after the
// JMP.
func farCall(target uintptr) [farCallSize]byte {
	var code [farCallSize]byte
	code[0] = opcodeIndirect
	code[1] = modrmCALLindRIP
	binary.LittleEndian.PutUint32(code[2:], 2)
	code[6] = opcodeJMPshort
	code[7] = 8
	binary.LittleEndian.PutUint64(code[8:], uint64(target))
	return code
}

func (p *Patcher) logPatch(kind string, addr, target uintptr, code []byte, insnLen int) {
	if !p.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	asm, err := Disassemble(code[:insnLen], addr)
	if err != nil {
		asm = err.Error()
	}
	p.logger.Debug("patched instruction",
		slog.String("kind", kind),
		slog.String("site", fmt.Sprintf("%#x", addr)),
		slog.String("dest", fmt.Sprintf("%#x", target)),
		slog.Int("size", len(code)),
		slog.String("asm", asm),
	)
}
