package opz

// placeholder is the type of the Slot marker. It is unexported so the only
// placeholder value in existence is Slot itself.
type placeholder struct{}

// Slot marks a position in a partial application whose value is supplied at
// call time. Call-time positional arguments fill Slot positions left to
// right before any other parameter.
//
//	mul := opz.Lift("mul", func(x, y int) int { return x * y },
//	    opz.Params("x", "y"))
//
//	triple := mul.Bind(opz.Slot, 3)   // x at call time, y = 3
//	result := opz.Run(ctx, triple, 7) // Ok(21)
//
// A Slot left unfilled at call time is a BindingError.
var Slot = placeholder{}

// isSlot reports whether a bound argument is the placeholder marker.
func isSlot(v any) bool {
	_, ok := v.(placeholder)
	return ok
}
