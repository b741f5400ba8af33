package pintos

// PointerValidator is the predicate the syscall layer consults before
// touching user memory (spec §6 "User-pointer validator (consumed): a
// predicate valid(ptr)"). Its implementation lives outside this package's
// scope (requires knowledge of the live page directory and user virtual
// address space layout); callers wire in their own.
type PointerValidator func(ptr uintptr) bool

// AlwaysValid is a permissive validator for tests and embedders that
// enforce pointer validity elsewhere.
func AlwaysValid(uintptr) bool { return true }
