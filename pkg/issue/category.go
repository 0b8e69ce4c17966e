package issue

import (
	"fmt"
	"sync"
)

// Category groups issues by the module that reports them.
type Category int

const (
	CategoryCode Category = iota
	CategoryProjectSetting
	CategoryAsset

	builtinCategories = iota
)

// UnknownCategoryName is the name of categories that were never registered.
const UnknownCategoryName = "Unknown"

// CategoryTable maps category names to values. Custom categories are
// numbered after the built-in ones.
type CategoryTable struct {
	mu     sync.RWMutex
	names  []string
	byName map[string]Category
}

// Categories is the process-wide category table.
var Categories = NewCategoryTable()

// NewCategoryTable returns a table holding the built-in categories.
func NewCategoryTable() *CategoryTable {
	t := &CategoryTable{byName: make(map[string]Category)}
	for _, name := range []string{"Code", "ProjectSetting", "Asset"} {
		t.byName[name] = Category(len(t.names))
		t.names = append(t.names, name)
	}
	return t
}

// GetOrRegister returns the category named name, registering it if needed.
func (t *CategoryTable) GetOrRegister(name string) Category {
	t.mu.RLock()
	c, ok := t.byName[name]
	t.mu.RUnlock()
	if ok {
		return c
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.byName[name]; ok {
		return c
	}
	c = Category(len(t.names))
	t.names = append(t.names, name)
	t.byName[name] = c
	return c
}

// Lookup returns the category named name.
func (t *CategoryTable) Lookup(name string) (Category, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.byName[name]
	return c, ok
}

// Name returns the name of c, or UnknownCategoryName.
func (t *CategoryTable) Name(c Category) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if c < 0 || int(c) >= len(t.names) {
		return UnknownCategoryName
	}
	return t.names[c]
}

// Len returns the number of registered categories.
func (t *CategoryTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.names)
}

// IsBuiltin reports whether c is one of the predefined categories.
func (c Category) IsBuiltin() bool {
	return c >= 0 && c < builtinCategories
}

func (c Category) String() string {
	return Categories.Name(c)
}

func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(text []byte) error {
	v, ok := Categories.Lookup(string(text))
	if !ok {
		return fmt.Errorf("unknown category %q", text)
	}
	*c = v
	return nil
}

// ParseCategory returns the registered category named name.
func ParseCategory(name string) (Category, error) {
	var c Category
	if err := c.UnmarshalText([]byte(name)); err != nil {
		return 0, err
	}
	return c, nil
}
