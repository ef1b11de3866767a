package world

import (
	"fmt"

	"github.com/wippyai/wasm-host/abi"
	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/linker"
)

// Export declares one host-callable function of a world.
type Export struct {
	// Name is the host-facing name.
	Name string
	// Module is the declared module exporting the function. Empty means
	// the primary module.
	Module string
	// Func is the core export name. Empty means Name.
	Func      string
	Signature abi.Signature
}

func (e Export) funcName() string {
	if e.Func != "" {
		return e.Func
	}
	return e.Name
}

// Declaration describes a world: the core modules to link, the host imports
// they may use, and the functions exposed to the host.
type Declaration struct {
	// Host resolves imports that no declared module provides.
	Host linker.Imports
	// Primary is the module exports default to. Empty means Modules[0].
	Primary string
	Modules []string
	Exports []Export
}

func (d Declaration) primary() string {
	if d.Primary != "" {
		return d.Primary
	}
	if len(d.Modules) > 0 {
		return d.Modules[0]
	}
	return ""
}

// Validate checks the declaration for structural mistakes.
func (d Declaration) Validate() error {
	if len(d.Modules) == 0 {
		return errors.InvalidInput(errors.PhaseLoad, "world declares no modules")
	}
	declared := make(map[string]bool, len(d.Modules))
	for _, m := range d.Modules {
		if m == "" {
			return errors.InvalidInput(errors.PhaseLoad, "empty module name")
		}
		if declared[m] {
			return errors.InvalidInput(errors.PhaseLoad, fmt.Sprintf("module %q declared twice", m))
		}
		declared[m] = true
	}
	if !declared[d.primary()] {
		return errors.InvalidInput(errors.PhaseLoad, fmt.Sprintf("primary module %q is not declared", d.Primary))
	}

	names := make(map[string]bool, len(d.Exports))
	for _, e := range d.Exports {
		if e.Name == "" {
			return errors.InvalidInput(errors.PhaseLoad, "export without a name")
		}
		if names[e.Name] {
			return errors.InvalidInput(errors.PhaseLoad, fmt.Sprintf("export %q declared twice", e.Name))
		}
		names[e.Name] = true
		if e.Module != "" && !declared[e.Module] {
			return errors.InvalidInput(errors.PhaseLoad,
				fmt.Sprintf("export %q names undeclared module %q", e.Name, e.Module))
		}
	}
	return nil
}
