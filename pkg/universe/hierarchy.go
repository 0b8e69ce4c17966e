package universe

// Hierarchy answers base type queries across a set of modules.
type Hierarchy struct {
	bases map[string]string
}

// NewHierarchy indexes the type definitions of modules. A type defined twice
// keeps its first definition.
func NewHierarchy(modules []*Module) *Hierarchy {
	h := &Hierarchy{bases: make(map[string]string)}
	for _, mod := range modules {
		for _, def := range mod.Types {
			name := def.Type.FullName()
			if _, ok := h.bases[name]; !ok {
				h.bases[name] = def.Base
			}
		}
	}
	return h
}

// BaseTypes returns the base type chain of typ, nearest first. The chain ends
// at the first type without a known definition; cycles are cut.
func (h *Hierarchy) BaseTypes(typ string) []string {
	if h == nil {
		return nil
	}
	var chain []string
	seen := map[string]struct{}{typ: {}}
	for cur := typ; ; {
		base := h.bases[cur]
		if base == "" {
			return chain
		}
		if _, dup := seen[base]; dup {
			return chain
		}
		seen[base] = struct{}{}
		chain = append(chain, base)
		cur = base
	}
}
