package breeze

import "reflect"

// extensions is a per-message mapping from a registered type to a single
// value of that type ("duck typing at the source"). It is owned
// exclusively by the task processing one request, so it needs no lock.
type extensions struct {
	m map[reflect.Type]any
}

func newExtensions() extensions {
	return extensions{m: make(map[reflect.Type]any)}
}

func (e *extensions) set(v any) {
	if e.m == nil {
		e.m = make(map[reflect.Type]any)
	}
	e.m[reflect.TypeOf(v)] = v
}

func (e *extensions) get(t reflect.Type) (any, bool) {
	v, ok := e.m[t]
	return v, ok
}

// Extension retrieves the value of type T previously installed with
// SetExtension, if any.
func Extension[T any](c *Ctx) (T, bool) {
	var zero T
	t := reflect.TypeOf(zero)
	v, ok := c.extensions.get(t)
	if !ok {
		return zero, false
	}
	tv, ok := v.(T)
	return tv, ok
}

// SetExtension installs v in the request's extensions map, replacing any
// prior value of the same type.
func SetExtension[T any](c *Ctx, v T) {
	c.extensions.set(v)
}

// ResponseExtension and SetResponseExtension do the same for the
// outbound Response's extensions map.
func ResponseExtension[T any](r *Response) (T, bool) {
	var zero T
	t := reflect.TypeOf(zero)
	v, ok := r.extensions.get(t)
	if !ok {
		return zero, false
	}
	tv, ok := v.(T)
	return tv, ok
}

func SetResponseExtension[T any](r *Response, v T) {
	r.extensions.set(v)
}
