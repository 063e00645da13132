package opz

import "github.com/samber/mo"

// Context is an immutable, layered mapping of named values threaded through
// a single run. Operations request values from it by declaring
// context-sourced parameters with FromContext; the binder fills those
// parameters last, only when nothing else supplied them.
//
// Context is copy-on-extend: Extend returns a child layer that shadows the
// parent on key collisions and leaves the parent untouched. Lookups walk
// child to parent. Because a layer is never mutated after construction, a
// Context is freely shareable across concurrent branches without locking.
//
// A nil *Context is a valid empty context.
type Context struct {
	parent *Context
	values map[string]any
}

// NewContext creates a root context layer from the given values.
// The map is copied; the caller's map is not retained.
func NewContext(values map[string]any) *Context {
	return (*Context)(nil).Extend(values)
}

// Extend returns a new child context layering the given values on top of c.
// Keys present in both shadow the parent. Passing an empty or nil map yields
// a layer with the same visible values, useful for isolating branches.
func (c *Context) Extend(values map[string]any) *Context {
	copied := make(map[string]any, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &Context{parent: c, values: copied}
}

// Get looks up a key, walking from this layer toward the root.
func (c *Context) Get(key string) mo.Option[any] {
	for layer := c; layer != nil; layer = layer.parent {
		if v, ok := layer.values[key]; ok {
			return mo.Some(v)
		}
	}
	return mo.None[any]()
}

// Has reports whether a key is visible from this layer.
func (c *Context) Has(key string) bool {
	return c.Get(key).IsPresent()
}

// Keys returns the distinct keys visible from this layer, shadowed keys
// counted once. Order is unspecified.
func (c *Context) Keys() []string {
	seen := make(map[string]struct{})
	var keys []string
	for layer := c; layer != nil; layer = layer.parent {
		for k := range layer.values {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys
}
