package opz

import (
	"context"
	"reflect"
	"strconv"
	"strings"
)

// Data operations: small Operations for ergonomic access and construction
// of loosely typed data. They return Operations rather than values so
// transformation pipelines can be defined before any data exists and then
// composed with every combinator:
//
//	extractEmail := opz.Get("user", nil).Then(opz.Get("contact.email", "unknown"))

// Get returns an Operation that accesses nested data using dot or bracket
// notation: "user.name", "items.0.price", "items[0].price". Maps, slices,
// arrays, structs (exported fields), and pointers to them are traversed.
// A missing step or nil intermediate yields def instead of a failure.
func Get(path string, def any) Operation {
	return Lift("get "+path, func(data any) any {
		return lookupPath(data, path, def)
	}, Params("data"))
}

func lookupPath(data any, path string, def any) any {
	if path == "" {
		return data
	}
	normalized := strings.ReplaceAll(strings.ReplaceAll(path, "[", "."), "]", "")
	current := data
	for _, part := range strings.Split(normalized, ".") {
		if part == "" {
			continue
		}
		next, ok := step(current, part)
		if !ok {
			return def
		}
		current = next
	}
	if current == nil {
		return def
	}
	return current
}

// step resolves one path segment against maps, sequences, and structs.
func step(current any, part string) (any, bool) {
	if current == nil {
		return nil, false
	}
	if m, ok := current.(map[string]any); ok {
		v, ok := m[part]
		return v, ok
	}

	rv := reflect.ValueOf(current)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(part).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Slice, reflect.Array:
		idx, err := strconv.Atoi(part)
		if err != nil || idx < 0 || idx >= rv.Len() {
			return nil, false
		}
		return rv.Index(idx).Interface(), true
	case reflect.Struct:
		f := rv.FieldByName(part)
		if !f.IsValid() || !f.CanInterface() {
			return nil, false
		}
		return f.Interface(), true
	}
	return nil, false
}

// Build returns an Operation that constructs a map from a schema. Schema
// values may be:
//
//   - an Operation: executed against the input, nil on failure
//   - a func(any) any: applied to the input, nil on panic
//   - a nested map[string]any: built recursively
//   - anything else: used as a constant
//
// Every schema key appears in the output.
//
//	shape := opz.Build(map[string]any{
//	    "id":    opz.Get("user_id", nil),
//	    "email": opz.Get("contact.email", "unknown"),
//	    "kind":  "customer",
//	})
func Build(schema map[string]any) Operation {
	return Lift("build", func(ctx context.Context, data any) (map[string]any, error) {
		return buildObject(ctx, schema, data), nil
	}, Params("data"))
}

func buildObject(ctx context.Context, schema map[string]any, data any) map[string]any {
	out := make(map[string]any, len(schema))
	for key, entry := range schema {
		out[key] = evalEntry(ctx, entry, data)
	}
	return out
}

func evalEntry(ctx context.Context, entry, data any) (value any) {
	switch s := entry.(type) {
	case Operation:
		res := engineFrom(ctx).Run(ctx, s, data)
		if res.IsError() {
			return nil
		}
		return res.MustGet()
	case func(any) any:
		defer func() {
			if recover() != nil {
				value = nil
			}
		}()
		return s(data)
	case map[string]any:
		return buildObject(ctx, s, data)
	default:
		return entry
	}
}

// Merge returns an Operation that folds several map sources into one, later
// sources overriding earlier ones on key collisions. Each source receives
// the same input data (sources are not chained) and may be:
//
//   - a static map[string]any, whose values may themselves be Operations
//   - an Operation producing a map[string]any
//   - a func(any) map[string]any
//
// A source that fails or produces something other than a map is skipped.
func Merge(sources ...any) Operation {
	return Lift("merge", func(ctx context.Context, data any) (map[string]any, error) {
		out := make(map[string]any)
		for _, src := range sources {
			for k, v := range mergeSource(ctx, src, data) {
				out[k] = v
			}
		}
		return out, nil
	}, Params("data"))
}

func mergeSource(ctx context.Context, src, data any) map[string]any {
	switch s := src.(type) {
	case Operation:
		res := engineFrom(ctx).Run(ctx, s, data)
		if res.IsError() {
			return nil
		}
		m, _ := res.MustGet().(map[string]any)
		return m
	case func(any) map[string]any:
		return s(data)
	case map[string]any:
		update := make(map[string]any, len(s))
		for k, v := range s {
			update[k] = evalEntry(ctx, v, data)
		}
		return update
	}
	return nil
}

// Update returns an Operation that overlays values onto its input map,
// leaving the input untouched.
//
//	touch := opz.Update(map[string]any{"status": "processed"})
func Update(values map[string]any) Operation {
	return Lift("update", func(source map[string]any) map[string]any {
		out := make(map[string]any, len(source)+len(values))
		for k, v := range source {
			out[k] = v
		}
		for k, v := range values {
			out[k] = v
		}
		return out
	}, Params("source"))
}
