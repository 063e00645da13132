package opz

import (
	"context"
	"fmt"
	"reflect"
)

var (
	ctxType    = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType    = reflect.TypeOf((*error)(nil)).Elem()
	resultType = reflect.TypeOf(Result{})
)

// outKind classifies how a callable's return set normalizes into a Result.
type outKind uint8

const (
	outNone outKind = iota
	outValue
	outErrOnly
	outValueErr
	outResult
)

// param is one declared value parameter of a lifted callable.
type param struct {
	name        string
	typ         reflect.Type
	fromContext bool
}

// signature is the inspected shape of a lifted callable: its value
// parameters, whether it takes a context, and how its returns normalize.
// Inspection happens once at Lift time; binding reuses it on every call.
type signature struct {
	params   []param
	wantsCtx bool
	out      outKind
	future   bool
	elem     outKind
}

func (s *signature) index(name string) (int, bool) {
	for i := range s.params {
		if s.params[i].name == name {
			return i, true
		}
	}
	return 0, false
}

// inspect analyzes fn and produces its signature. Shape problems are
// configuration mistakes and panic with *ConfigError.
func inspect(op Name, fn any, names []string, ctxNames []string) (*signature, reflect.Value) {
	if fn == nil {
		panic(&ConfigError{Op: op, Reason: "callable is nil"})
	}
	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func {
		panic(&ConfigError{Op: op, Reason: fmt.Sprintf("callable must be a function, got %s", t)})
	}
	if t.IsVariadic() {
		panic(&ConfigError{Op: op, Reason: "variadic callables are not supported"})
	}

	sig := &signature{}

	start := 0
	if t.NumIn() > 0 && t.In(0) == ctxType {
		sig.wantsCtx = true
		start = 1
	}
	for i := start; i < t.NumIn(); i++ {
		sig.params = append(sig.params, param{
			name: fmt.Sprintf("arg%d", i-start),
			typ:  t.In(i),
		})
	}
	if len(names) > 0 {
		if len(names) != len(sig.params) {
			panic(&ConfigError{Op: op, Reason: fmt.Sprintf(
				"Params names %d parameters, callable has %d", len(names), len(sig.params))})
		}
		seen := make(map[string]struct{}, len(names))
		for i, n := range names {
			if _, dup := seen[n]; dup {
				panic(&ConfigError{Op: op, Reason: fmt.Sprintf("duplicate parameter name %q", n)})
			}
			seen[n] = struct{}{}
			sig.params[i].name = n
		}
	}
	for _, n := range ctxNames {
		i, ok := sig.index(n)
		if !ok {
			panic(&ConfigError{Op: op, Reason: fmt.Sprintf("FromContext names unknown parameter %q", n)})
		}
		sig.params[i].fromContext = true
	}

	switch t.NumOut() {
	case 0:
		sig.out = outNone
	case 1:
		rt := t.Out(0)
		switch {
		case rt == errType:
			sig.out = outErrOnly
		case rt == resultType:
			sig.out = outResult
		case rt.Kind() == reflect.Chan:
			if rt.ChanDir() == reflect.SendDir {
				panic(&ConfigError{Op: op, Reason: "future callable must return a receivable channel"})
			}
			sig.future = true
			switch {
			case rt.Elem() == resultType:
				sig.elem = outResult
			case rt.Elem() == errType:
				sig.elem = outErrOnly
			default:
				sig.elem = outValue
			}
		default:
			sig.out = outValue
		}
	case 2:
		if t.Out(1) != errType {
			panic(&ConfigError{Op: op, Reason: "second return value must be error"})
		}
		sig.out = outValueErr
	default:
		panic(&ConfigError{Op: op, Reason: fmt.Sprintf("callable returns %d values, at most 2 supported", t.NumOut())})
	}

	return sig, v
}

// origin records where a resolved argument came from, which drives both the
// precedence rules and the conflict diagnostics.
type origin uint8

const (
	originNone origin = iota
	originSlot
	originBoundPos
	originBoundNamed
	originCallNamed
	originCallPos
	originContext
)

// bindArgs resolves the concrete argument list for one leaf invocation.
//
// Merge order:
//  1. bound positional values claim parameters left to right, Slot marking
//     fill-at-call-time positions
//  2. bound named values claim their parameters
//  3. call-time named values claim theirs; collisions with bound values
//     resolve by the operation's named precedence (call-time wins by default)
//  4. call-time positional values fill Slot positions left to right, then
//     remaining unclaimed parameters left to right, skipping context-sourced
//     parameters; a surplus positional blocked by a call-time named claim is
//     a conflict
//  5. context-sourced parameters still unresolved are filled from the
//     run's Context
//
// Binding is pure: identical inputs always resolve identically.
func bindArgs(op Name, sig *signature, b bound, call Call, env *Context) ([]reflect.Value, error) {
	n := len(sig.params)
	vals := make([]any, n)
	origins := make([]origin, n)

	// 1. bound positionals
	if len(b.pos) > n {
		return nil, &BindingError{Op: op, Reason: fmt.Sprintf(
			"%d bound arguments for %d parameters", len(b.pos), n)}
	}
	for i, v := range b.pos {
		if isSlot(v) {
			origins[i] = originSlot
			continue
		}
		vals[i] = v
		origins[i] = originBoundPos
	}

	// 2. bound named
	for name, v := range b.named {
		i, ok := sig.index(name)
		if !ok {
			return nil, &BindingError{Op: op, Param: name, Reason: "unknown parameter"}
		}
		switch origins[i] {
		case originNone, originSlot:
			vals[i] = v
			origins[i] = originBoundNamed
		default:
			return nil, &BindingError{Op: op, Param: name, Reason: "bound both positionally and by name"}
		}
	}

	// 3. call-time named
	for name, v := range call.Named {
		i, ok := sig.index(name)
		if !ok {
			return nil, &BindingError{Op: op, Param: name, Reason: "unknown parameter"}
		}
		switch origins[i] {
		case originNone, originSlot:
			vals[i] = v
			origins[i] = originCallNamed
		case originBoundPos, originBoundNamed:
			if b.precedence == CallTimeWins {
				vals[i] = v
				origins[i] = originCallNamed
			}
		}
	}

	// 4. call-time positionals: placeholders first, then open parameters
	pos := call.Args
	for i := 0; i < n && len(pos) > 0; i++ {
		if origins[i] == originSlot {
			vals[i] = pos[0]
			origins[i] = originCallPos
			pos = pos[1:]
		}
	}
	blockedByName := ""
	for i := 0; i < n && len(pos) > 0; i++ {
		switch origins[i] {
		case originNone:
			if sig.params[i].fromContext {
				continue
			}
			vals[i] = pos[0]
			origins[i] = originCallPos
			pos = pos[1:]
		case originCallNamed:
			blockedByName = sig.params[i].name
		}
	}
	if len(pos) > 0 && blockedByName != "" {
		return nil, &BindingError{Op: op, Param: blockedByName,
			Reason: "argument supplied both positionally and by name"}
	}
	// Surplus positionals blocked only by bound values are discarded:
	// partial application wins over extra call-time arguments.

	// 5. context-sourced parameters fill last
	for i := range sig.params {
		if origins[i] == originNone && sig.params[i].fromContext {
			if v, ok := env.Get(sig.params[i].name).Get(); ok {
				vals[i] = v
				origins[i] = originContext
			}
		}
	}

	for i := range sig.params {
		switch origins[i] {
		case originSlot:
			return nil, &BindingError{Op: op, Param: sig.params[i].name,
				Reason: "placeholder has no call-time value"}
		case originNone:
			return nil, &BindingError{Op: op, Param: sig.params[i].name,
				Reason: "required parameter is unbound"}
		}
	}

	out := make([]reflect.Value, n)
	for i := range sig.params {
		rv, err := conform(op, sig.params[i], vals[i])
		if err != nil {
			return nil, err
		}
		out[i] = rv
	}
	return out, nil
}

// conform checks a resolved value against the parameter's declared type.
func conform(op Name, p param, v any) (reflect.Value, error) {
	if v == nil {
		switch p.typ.Kind() {
		case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
			return reflect.Zero(p.typ), nil
		}
		return reflect.Value{}, &BindingError{Op: op, Param: p.name,
			Reason: fmt.Sprintf("nil value for non-nilable parameter of type %s", p.typ)}
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(p.typ) {
		return rv, nil
	}
	return reflect.Value{}, &BindingError{Op: op, Param: p.name,
		Reason: fmt.Sprintf("value of type %s is not assignable to %s", rv.Type(), p.typ)}
}
