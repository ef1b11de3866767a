package abi

import (
	"fmt"
	"strings"
)

// Convention is how a function hands back its result.
type Convention uint8

const (
	// Direct results arrive as flat core values (multi-value return).
	Direct Convention = iota
	// Indirect results are stored by the guest in memory; the function
	// returns one pointer to them.
	Indirect
)

func (c Convention) String() string {
	switch c {
	case Direct:
		return "direct"
	case Indirect:
		return "indirect"
	default:
		return fmt.Sprintf("convention(%d)", uint8(c))
	}
}

// ParseConvention accepts "direct" or "indirect" (also "retptr").
func ParseConvention(s string) (Convention, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "direct", "":
		return Direct, nil
	case "indirect", "retptr":
		return Indirect, nil
	default:
		return 0, fmt.Errorf("unknown calling convention %q", s)
	}
}

// ConventionFor applies the canonical ABI rule: results that flatten to more
// than MaxFlatResults core values are returned indirectly. Metadata
// producers use it; adapters always honor the declared convention.
func ConventionFor(result *Type) Convention {
	if result == nil || len(result.flat) <= MaxFlatResults {
		return Direct
	}
	return Indirect
}

// Signature is the declared interface metadata of one exported function.
type Signature struct {
	Params     []*Type
	Result     *Type
	PostReturn string
	Convention Convention
}

func (s Signature) String() string {
	params := make([]string, len(s.Params))
	for i, p := range s.Params {
		params[i] = p.String()
	}
	out := "func(" + strings.Join(params, ", ") + ")"
	if s.Result != nil {
		out += " -> " + s.Result.String()
	}
	return out
}
