package world

import (
	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/loader"
)

// linkOrder sorts mods so every module follows the declared modules it
// imports from. Independent modules keep their declaration order.
func linkOrder(mods []*loader.Module) ([]*loader.Module, error) {
	index := make(map[string]int, len(mods))
	for i, m := range mods {
		index[m.Name] = i
	}

	deps := make([]map[int]bool, len(mods))
	for i, m := range mods {
		deps[i] = map[int]bool{}
		for _, imp := range m.Imports() {
			if j, ok := index[imp.Module]; ok {
				deps[i][j] = true
			}
		}
	}

	placed := make([]bool, len(mods))
	order := make([]*loader.Module, 0, len(mods))
	for len(order) < len(mods) {
		next := -1
		for i := range mods {
			if !placed[i] && ready(deps[i], placed) {
				next = i
				break
			}
		}
		if next < 0 {
			var stuck []string
			for i, m := range mods {
				if !placed[i] {
					stuck = append(stuck, m.Name)
				}
			}
			return nil, errors.Cycle(stuck)
		}
		placed[next] = true
		order = append(order, mods[next])
	}
	return order, nil
}

func ready(deps map[int]bool, placed []bool) bool {
	for j := range deps {
		if !placed[j] {
			return false
		}
	}
	return true
}
