// Patch x86-64 machine code in the running process
//
// This package reads and rewrites instruction bytes in the current address
// space. It can decode the destination of the branch shapes commonly found
// at hook sites and overwrite a site with a jump to somewhere else, picking
// the short relative encoding when the destination is in range and an
// absolute indirect jump when it isn't.
//
// Addresses can be relocated through a Translator so offsets taken from one
// build of a binary can be applied to another. Every read and write
// temporarily lifts the page protection and puts back exactly what was there
// before.
//
// Limitations:
//   - Only understands JMP, CALL, JZ/JNZ rel32, indirect JMP/CALL through a
//     RIP-relative slot, and RIP-relative MOV/LEA.
//   - Does not check that the patch site has room for the encoding it
//     writes. Use JumpSize to check first.
//   - Patching code that another thread is executing is up to the caller to
//     serialize.
package injector
