package descriptor

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/715d/callaudit/pkg/universe"
)

var (
	// ErrDuplicateDescriptor is returned when a rule's ID, exact symbol or
	// wildcard namespace is already registered.
	ErrDuplicateDescriptor = errors.New("duplicate descriptor")
	// ErrMalformedDescriptor is returned for rules missing an ID or type, or
	// carrying a wildcard anywhere but the whole member name.
	ErrMalformedDescriptor = errors.New("malformed descriptor")
)

// DuplicateError reports which registered rule a new rule collided with.
type DuplicateError struct {
	ID       string
	Existing string
	Key      string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%v: %s collides with %s on %s", ErrDuplicateDescriptor, e.ID, e.Existing, e.Key)
}

func (e *DuplicateError) Unwrap() error { return ErrDuplicateDescriptor }

type exactKey struct {
	typ    string
	member string
}

// Registry indexes descriptors. Registration is not safe for concurrent use;
// once built the registry is read-only and lookups need no locking.
type Registry struct {
	exact     map[exactKey]*Descriptor
	wildcards map[string]*Descriptor
	byID      map[string]*Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		exact:     make(map[exactKey]*Descriptor),
		wildcards: make(map[string]*Descriptor),
		byID:      make(map[string]*Descriptor),
	}
}

// Register validates d and adds a copy of it. Exact rules without a title get
// the default "'Type.Method' usage" title. On error the registry is unchanged.
func (r *Registry) Register(d Descriptor) error {
	if err := validate(&d); err != nil {
		return err
	}
	if prev, ok := r.byID[d.ID]; ok {
		return &DuplicateError{ID: d.ID, Existing: prev.ID, Key: "id"}
	}

	var key exactKey
	if d.IsWildcard() {
		if prev, ok := r.wildcards[d.Type]; ok {
			return &DuplicateError{ID: d.ID, Existing: prev.ID, Key: d.Symbol()}
		}
	} else {
		key = exactKey{typ: d.Type, member: NormalizeMember(d.Method)}
		if prev, ok := r.exact[key]; ok {
			return &DuplicateError{ID: d.ID, Existing: prev.ID, Key: d.Symbol()}
		}
		if d.Title == "" {
			d.Title = UsageTitle(d.Symbol())
		}
	}

	d.Areas = slices.Clone(d.Areas)
	stored := &d
	if d.IsWildcard() {
		r.wildcards[d.Type] = stored
	} else {
		r.exact[key] = stored
	}
	r.byID[d.ID] = stored
	return nil
}

// RegisterAll registers ds in order and stops at the first error. Rules
// registered before the failing one stay registered.
func (r *Registry) RegisterAll(ds []Descriptor) error {
	for _, d := range ds {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}

func validate(d *Descriptor) error {
	switch {
	case d.ID == "":
		return fmt.Errorf("%w: missing id for %q", ErrMalformedDescriptor, d.Type+"."+d.Method)
	case d.Type == "":
		return fmt.Errorf("%w: %s has no type", ErrMalformedDescriptor, d.ID)
	case d.Method == "":
		return fmt.Errorf("%w: %s has no method", ErrMalformedDescriptor, d.ID)
	case strings.Contains(d.Type, Wildcard):
		return fmt.Errorf("%w: %s: wildcard in type %q", ErrMalformedDescriptor, d.ID, d.Type)
	case d.Method != Wildcard && strings.Contains(d.Method, Wildcard):
		return fmt.Errorf("%w: %s: partial wildcard in method %q", ErrMalformedDescriptor, d.ID, d.Method)
	}
	return nil
}

// Lookup finds the rule for a call to member on typ: the exact rule if one
// exists, otherwise the wildcard rule of the longest matching namespace.
func (r *Registry) Lookup(typ universe.TypeRef, member string) (*Descriptor, bool) {
	if d, ok := r.LookupExact(typ.FullName(), member); ok {
		return d, true
	}
	return r.LookupNamespace(typ.Namespace)
}

// LookupExact finds the exact rule for typ and member. Getter accessors are
// normalized first.
func (r *Registry) LookupExact(typ, member string) (*Descriptor, bool) {
	d, ok := r.exact[exactKey{typ: typ, member: NormalizeMember(member)}]
	return d, ok
}

// LookupNamespace finds the wildcard rule covering ns, trying ns and then
// each shorter prefix ending at a '.' or '/' separator.
func (r *Registry) LookupNamespace(ns string) (*Descriptor, bool) {
	if len(r.wildcards) == 0 {
		return nil, false
	}
	for ns != "" {
		if d, ok := r.wildcards[ns]; ok {
			return d, true
		}
		i := strings.LastIndexAny(ns, "./")
		if i < 0 {
			break
		}
		ns = ns[:i]
	}
	return nil, false
}

// ByID returns the rule with the given ID.
func (r *Registry) ByID(id string) (*Descriptor, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// All returns every rule sorted by ID.
func (r *Registry) All() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.byID))
	for _, d := range r.byID {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b *Descriptor) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Len returns the number of registered rules.
func (r *Registry) Len() int {
	return len(r.byID)
}
