package cpu

// hook types
const (
	// hook a service trap (syscall/break)
	HOOK_INTR = 1 << iota

	// hook each executed instruction
	HOOK_CODE

	// hook register writes
	HOOK_REG

	// hook memory reads/writes
	HOOK_MEM_READ
	HOOK_MEM_WRITE

	// hook all memory errors
	HOOK_MEM_ERR

	HOOK_MEM = HOOK_MEM_READ | HOOK_MEM_WRITE
)

// these errors are used for HOOK_MEM_ERR and MemError.Enum
const (
	MEM_READ_UNMAPPED = iota + 19
	MEM_WRITE_UNMAPPED
	MEM_FETCH_UNMAPPED
	MEM_READ_UNALIGNED
	MEM_WRITE_UNALIGNED
	MEM_FETCH_UNALIGNED
	MEM_WRITE_PROT
)

// these constants are used for memory protections
const (
	PROT_NONE  = 0
	PROT_READ  = 1
	PROT_WRITE = 2
	PROT_EXEC  = 4
	PROT_ALL   = 7
)

// these constants are used in a hook to specify the type of memory access
const (
	MEM_WRITE = 16
	MEM_READ  = 17
	MEM_FETCH = 18
)
