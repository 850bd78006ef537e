package kernel

// Error describes a kernel error. There is no allocator while the early boot
// code runs so errors.New cannot be used; kernel errors are instead declared
// as package-level pointers to Error values and returned as *Error.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
