package operators

import (
	"errors"
	"fmt"
)

// Causes carried by ParamConstructionError.
var (
	// ErrMissing means a required role, variable or attribute is absent.
	ErrMissing = errors.New("missing")
	// ErrMistyped means an attribute holds a value of the wrong kind.
	ErrMistyped = errors.New("mistyped")
	// ErrUnknownRole means a descriptor binds a role its schema entry does not declare.
	ErrUnknownRole = errors.New("role not declared by schema")
	// ErrNotImplemented marks a valid configuration the operator does not support.
	ErrNotImplemented = errors.New("not implemented")
)

// FieldKind names the part of a descriptor a ParamConstructionError refers to.
type FieldKind string

// Field kinds.
const (
	FieldInput     FieldKind = "input"
	FieldParaInput FieldKind = "para input"
	FieldOutput    FieldKind = "output"
	FieldAttr      FieldKind = "attribute"
)

// ParamConstructionError reports a descriptor that cannot be projected onto
// its operator's Param type.
type ParamConstructionError struct {
	Op   string
	Kind FieldKind
	Name string
	Err  error
}

func (e *ParamConstructionError) Error() string {
	return fmt.Sprintf("operators: %s: %s %q: %v", e.Op, e.Kind, e.Name, e.Err)
}

func (e *ParamConstructionError) Unwrap() error { return e.Err }

// KernelConstructionError reports a failure to allocate a kernel's device resources.
type KernelConstructionError struct {
	Op       string
	Function string
	Err      error
}

func (e *KernelConstructionError) Error() string {
	return fmt.Sprintf("operators: %s: building kernel %q: %v", e.Op, e.Function, e.Err)
}

func (e *KernelConstructionError) Unwrap() error { return e.Err }

// UnknownOperatorError is returned when dispatching a type tag with no registered factory.
type UnknownOperatorError struct {
	Type string
}

func (e *UnknownOperatorError) Error() string {
	return fmt.Sprintf("operators: unknown operator type %q", e.Type)
}
