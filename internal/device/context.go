package device

import (
	"errors"
	"fmt"
)

// CodeLoadMode selects where device compute code is loaded from.
type CodeLoadMode int

// Code load modes.
const (
	// LoadDefault uses the compute functions built into the binary.
	LoadDefault CodeLoadMode = iota
	// LoadCustomPath loads compute functions from InitContext.CustomPath.
	LoadCustomPath
)

// String returns the configuration spelling of the mode.
func (m CodeLoadMode) String() string {
	switch m {
	case LoadDefault:
		return "default"
	case LoadCustomPath:
		return "custom"
	default:
		return fmt.Sprintf("CodeLoadMode(%d)", int(m))
	}
}

// ParseCodeLoadMode parses "default" or "custom".
func ParseCodeLoadMode(s string) (CodeLoadMode, error) {
	switch s {
	case "", "default":
		return LoadDefault, nil
	case "custom":
		return LoadCustomPath, nil
	default:
		return LoadDefault, fmt.Errorf("device: unknown code load mode %q", s)
	}
}

// ErrCustomPathRequired is returned when LoadCustomPath is selected without a path.
var ErrCustomPathRequired = errors.New("device: custom code load mode requires a path")

// InitContext carries kernel construction options.
type InitContext struct {
	CodeLoadMode CodeLoadMode
	// CustomPath is a directory of <function>.wgsl files, required when
	// CodeLoadMode is LoadCustomPath and ignored otherwise.
	CustomPath string
}

// DefaultInitContext loads compute code from the built-in library.
func DefaultInitContext() InitContext {
	return InitContext{CodeLoadMode: LoadDefault}
}

// Validate rejects a custom load mode without a path and unknown modes.
// A path set together with LoadDefault is accepted and ignored.
func (ic InitContext) Validate() error {
	switch ic.CodeLoadMode {
	case LoadDefault:
		return nil
	case LoadCustomPath:
		if ic.CustomPath == "" {
			return ErrCustomPathRequired
		}
		return nil
	default:
		return fmt.Errorf("device: unknown code load mode %d", int(ic.CodeLoadMode))
	}
}
