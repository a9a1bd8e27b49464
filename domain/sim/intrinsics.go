package sim

import (
	"fmt"

	"github.com/PaesslerAG/gval"
	"github.com/PaesslerAG/jsonpath"
)

// intrinsicLanguage extends jsonpath's gval.Language (which already
// resolves "$.register.a"-style paths against the evaluation context)
// with the handful of real Step Functions intrinsic functions
// domain/compiler's builder templates and intrinsic lowering emit.
// Expressions are evaluated after stripping their "States." prefix, so
// "States.MathAdd($.register.a, 1)" is parsed here as "MathAdd($.register.a, 1)".
var intrinsicLanguage = gval.NewLanguage(
	jsonpath.Language(),
	gval.Function("ArrayRange", func(args ...interface{}) (interface{}, error) {
		if len(args) != 3 {
			return nil, fmt.Errorf("ArrayRange takes 3 arguments, got %d", len(args))
		}
		start, ok1 := toFloat(args[0])
		end, ok2 := toFloat(args[1])
		step, ok3 := toFloat(args[2])
		if !ok1 || !ok2 || !ok3 {
			return nil, fmt.Errorf("ArrayRange arguments must be numbers")
		}
		if step == 0 {
			return nil, fmt.Errorf("ArrayRange step must not be zero")
		}
		var out []interface{}
		if step > 0 {
			for v := start; v <= end; v += step {
				out = append(out, v)
			}
		} else {
			for v := start; v >= end; v += step {
				out = append(out, v)
			}
		}
		return out, nil
	}),
	gval.Function("MathAdd", func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("MathAdd takes 2 arguments, got %d", len(args))
		}
		a, ok1 := toFloat(args[0])
		b, ok2 := toFloat(args[1])
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("MathAdd arguments must be numbers")
		}
		return a + b, nil
	}),
	gval.Function("ArrayLength", func(args ...interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("ArrayLength takes 1 argument, got %d", len(args))
		}
		arr, ok := args[0].([]interface{})
		if !ok {
			return nil, fmt.Errorf("ArrayLength argument must be an array")
		}
		return float64(len(arr)), nil
	}),
	gval.Function("Array", func(args ...interface{}) (interface{}, error) {
		return append([]interface{}{}, args...), nil
	}),
	gval.Function("JsonMerge", func(args ...interface{}) (interface{}, error) {
		if len(args) < 2 {
			return nil, fmt.Errorf("JsonMerge takes at least 2 arguments, got %d", len(args))
		}
		target, ok := args[0].(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("JsonMerge first argument must be an object")
		}
		patch, ok := args[1].(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("JsonMerge second argument must be an object")
		}
		out := make(map[string]interface{}, len(target)+len(patch))
		for k, v := range target {
			out[k] = v
		}
		for k, v := range patch {
			out[k] = v
		}
		return out, nil
	}),
)
