package injector

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// Disassemble returns a listing of the 64-bit x86 instructions in code, as if
// code was loaded at base.
func Disassemble(code []byte, base uintptr) (string, error) {
	var buf bytes.Buffer

	for i := 0; i < len(code); {
		instruction, err := x86asm.Decode(code[i:], 64)
		if err != nil {
			return "", fmt.Errorf("decode error at offset %d: %w", i, err)
		}
		if instruction.Op == 0 {
			// Prefixes with nothing after them.
			return "", fmt.Errorf("decode error at offset %d: %w", i, x86asm.ErrTruncated)
		}
		pc := uint64(base) + uint64(i)
		fmt.Fprintf(&buf, "0x%08x\t%-20s\t%s\n", pc, hex.EncodeToString(code[i:i+instruction.Len]), x86asm.IntelSyntax(instruction, pc, nil))

		i += instruction.Len
	}

	return buf.String(), nil
}
