package kernel

// Error describes a kernel error. Kernel errors are declared as package-level
// pointers to Error values so they can be returned before the Go allocator is
// usable; errors.New is never used inside the kernel.
type Error struct {
	// The subsystem that raised the error (e.g. "vmm", "pci").
	Module string

	// The error message
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
