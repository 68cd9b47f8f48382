package asm

import "fmt"

// CodegenError is a single error encountered while assembling one line of
// source. It is a plain data struct that also implements error, so
// multiple errors can be accumulated per shot and reported together —
// the same shape used by the pack's from-scratch assemblers.
type CodegenError struct {
	Line    int
	Column  int
	Message string
}

func (e CodegenError) String() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

// Error implements the error interface so a CodegenError can be wrapped by
// hashicorp/go-multierror directly.
func (e CodegenError) Error() string {
	return e.String()
}
