// Package analysis maps go/types symbols onto universe references and holds
// the per-function metadata gathered from source.
package analysis

import (
	"go/types"
	"strings"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/715d/callaudit/pkg/universe"
)

// NameCache caches the universe names of types and functions. It is shared
// by the goroutines lowering packages, so both caches are concurrent maps.
type NameCache struct {
	typeCache *xsync.Map[types.Type, string]
	refCache  *xsync.Map[*types.Func, universe.MethodRef]
}

func NewNameCache() *NameCache {
	return &NameCache{
		typeCache: xsync.NewMap[types.Type, string](),
		refCache:  xsync.NewMap[*types.Func, universe.MethodRef](),
	}
}

// TypeName returns typ qualified by package path, e.g. "*net/http.Request"
// or "map[string]github.com/example/game.Player".
func (c *NameCache) TypeName(typ types.Type) string {
	if typ == nil {
		return ""
	}
	if name, ok := c.typeCache.Load(typ); ok {
		return name
	}
	name := types.TypeString(typ, pathQualifier)
	c.typeCache.Store(typ, name)
	return name
}

// TypeRef returns the declaring type reference for a receiver or named
// type. Pointers are dereferenced; generic instantiations keep their type
// arguments in the name ("Cache[string]").
func (c *NameCache) TypeRef(typ types.Type) universe.TypeRef {
	if ptr, ok := typ.(*types.Pointer); ok {
		typ = ptr.Elem()
	}
	named, ok := typ.(*types.Named)
	if !ok {
		return universe.TypeRef{Name: c.TypeName(typ)}
	}
	ref := universe.TypeRef{Name: c.genericTypeName(named)}
	if pkg := named.Obj().Pkg(); pkg != nil {
		ref.Namespace = pkg.Path()
	}
	return ref
}

// MethodRef returns the universe reference of fn. Package level functions
// are declared by their package ("fmt::Sprintf"), methods by their receiver
// type ("sync.Map::Range").
func (c *NameCache) MethodRef(fn *types.Func) universe.MethodRef {
	if fn == nil {
		return universe.MethodRef{}
	}
	if ref, ok := c.refCache.Load(fn); ok {
		return ref
	}
	ref := c.computeMethodRef(fn)
	c.refCache.Store(fn, ref)
	return ref
}

func (c *NameCache) computeMethodRef(fn *types.Func) universe.MethodRef {
	ref := universe.MethodRef{Name: fn.Name()}
	sig, ok := fn.Type().(*types.Signature)
	if !ok {
		return ref
	}
	if recv := sig.Recv(); recv != nil {
		ref.DeclaringType = c.TypeRef(recv.Type())
	} else if pkg := fn.Pkg(); pkg != nil {
		ref.DeclaringType = universe.TypeRef{Namespace: pkg.Path()}
	}
	ref.ReturnType, ref.Params = c.Signature(sig)
	return ref
}

// Signature renders the results and parameters of sig. No result gives an
// empty return type; several are parenthesized.
func (c *NameCache) Signature(sig *types.Signature) (string, []string) {
	var ret string
	switch res := sig.Results(); res.Len() {
	case 0:
	case 1:
		ret = c.TypeName(res.At(0).Type())
	default:
		parts := make([]string, res.Len())
		for i := range res.Len() {
			parts[i] = c.TypeName(res.At(i).Type())
		}
		ret = "(" + strings.Join(parts, ",") + ")"
	}

	var params []string
	if p := sig.Params(); p.Len() > 0 {
		params = make([]string, p.Len())
		for i := range p.Len() {
			params[i] = c.TypeName(p.At(i).Type())
		}
		if sig.Variadic() {
			params[len(params)-1] = "..." + strings.TrimPrefix(params[len(params)-1], "[]")
		}
	}
	return ret, params
}

// genericTypeName returns the unqualified name of a named type, with its
// type arguments for instantiations or its type parameters for generic
// declarations.
func (c *NameCache) genericTypeName(named *types.Named) string {
	name := named.Obj().Name()
	if args := named.TypeArgs(); args != nil && args.Len() > 0 {
		var b strings.Builder
		b.Grow(len(name) + 16*args.Len())
		b.WriteString(name)
		b.WriteByte('[')
		for i := range args.Len() {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(c.TypeName(args.At(i)))
		}
		b.WriteByte(']')
		return b.String()
	}
	if params := named.TypeParams(); params != nil && params.Len() > 0 {
		var b strings.Builder
		b.WriteString(name)
		b.WriteByte('[')
		for i := range params.Len() {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(params.At(i).Obj().Name())
		}
		b.WriteByte(']')
		return b.String()
	}
	return name
}

func pathQualifier(p *types.Package) string { return p.Path() }
