// Package sim exercises a compiled state graph (domain/builder.Graph)
// against concrete input, without a real Step Functions substrate: it
// resolves register paths with github.com/PaesslerAG/jsonpath and
// github.com/PaesslerAG/gval, walks Choice/Map/Task/Pass/Parallel nodes,
// and drives Retry policies through infrastructure/resilience's
// backoff-backed Retry. It exists to exercise the testable properties
// from spec.md §8 end to end in this repo's own tests.
package sim

import (
	"context"
	"fmt"
	"strings"

	"github.com/PaesslerAG/jsonpath"

	"github.com/r3e-network/sfnc/domain/cond"
	"github.com/r3e-network/sfnc/domain/compiler"
)

// ResolvePath evaluates a "$.register..."-style JSONPath expression
// against data. A PathRef produced by the compiler for a nested
// register reference resolves the same way a plain path string does.
func ResolvePath(data interface{}, path string) (interface{}, error) {
	v, err := jsonpath.Get(path, data)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	return v, nil
}

// EvalCondition evaluates a Choice predicate tree against data, applying
// the same truth tables domain/cond built it from.
func EvalCondition(c cond.Condition, data interface{}) (bool, error) {
	switch c.Kind {
	case cond.KindAnd:
		for _, sub := range c.All {
			ok, err := EvalCondition(sub, data)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil

	case cond.KindOr:
		for _, sub := range c.Any {
			ok, err := EvalCondition(sub, data)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}

	v, err := ResolvePath(data, c.Path)
	present := err == nil

	switch c.Kind {
	case cond.KindIsPresent:
		return present, nil
	case cond.KindIsNotNull:
		return present && v != nil, nil
	case cond.KindIsBoolTrue:
		b, ok := v.(bool)
		return present && ok && b, nil
	case cond.KindIsStringNotEmpty:
		s, ok := v.(string)
		return present && ok && s != "", nil
	case cond.KindIsNumberNotZero:
		n, ok := toFloat(v)
		return present && ok && n != 0, nil
	case cond.KindStringEquals:
		s, ok := v.(string)
		want, _ := c.Value.(string)
		return present && ok && s == want, nil
	case cond.KindNumberEquals:
		n, ok := toFloat(v)
		want, _ := toFloat(c.Value)
		return present && ok && n == want, nil
	case cond.KindNumberLessThan:
		n, ok := toFloat(v)
		want, _ := toFloat(c.Value)
		return present && ok && n < want, nil
	case cond.KindNumberGreaterThan:
		n, ok := toFloat(v)
		want, _ := toFloat(c.Value)
		return present && ok && n > want, nil
	case cond.KindIsString:
		_, ok := v.(string)
		return present && ok, nil
	case cond.KindStringMatches:
		s, ok := v.(string)
		pattern, _ := c.Value.(string)
		return present && ok && matchesGlob(s, pattern), nil
	default:
		return false, fmt.Errorf("sim: unsupported condition kind %v", c.Kind)
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// matchesGlob supports only the single-trailing-"*" prefix form domain/cond
// emits for `startswith`.
func matchesGlob(s, pattern string) bool {
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(s, strings.TrimSuffix(pattern, "*"))
	}
	return s == pattern
}

// resolveScalar evaluates a Parameters leaf value: a plain literal, a
// ".$"-suffixed path/intrinsic expression (handled by the caller before
// reaching here), or a nested compiler.PathRef recorded for a value
// embedded inside a literal array/object.
func resolveScalar(v interface{}, data interface{}) (interface{}, error) {
	switch val := v.(type) {
	case compiler.PathRef:
		return evalExpr(string(val), data)
	case map[string]interface{}:
		return resolveParams(val, data)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, el := range val {
			r, err := resolveScalar(el, data)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

// resolveParams resolves one Parameters map: ".$"-suffixed keys are
// evaluated as register paths or States.* intrinsic expressions and
// re-keyed without the suffix; every other key is resolved recursively
// as a literal (possibly with nested PathRefs).
func resolveParams(params map[string]interface{}, data interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		if strings.HasSuffix(k, ".$") {
			key := strings.TrimSuffix(k, ".$")
			expr, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("sim: parameter %q: .$ value must be a string expression", k)
			}
			resolved, err := evalExpr(expr, data)
			if err != nil {
				return nil, err
			}
			out[key] = resolved
			continue
		}
		resolved, err := resolveScalar(v, data)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}

// evalExpr evaluates a plain register path ("$.register.a"), a
// States.* intrinsic call (e.g. "States.MathAdd($.register.a, 1)"), or
// a Context Object reference ("$$.Map.Item.Value") against data. The
// Context Object itself isn't part of a real Step Functions state's
// input; runMap stands it in under "__context" so a Map iterator's
// entry Pass can resolve its loop item the same way a live execution
// would resolve $$.
func evalExpr(expr string, data interface{}) (interface{}, error) {
	clean := strings.ReplaceAll(expr, "States.", "")
	clean = strings.Replace(clean, "$$.", "$.__context.", 1)
	eval, err := intrinsicLanguage.NewEvaluable(clean)
	if err != nil {
		return nil, fmt.Errorf("sim: parse expression %q: %w", expr, err)
	}
	v, err := eval(context.Background(), data)
	if err != nil {
		return nil, fmt.Errorf("sim: evaluate expression %q: %w", expr, err)
	}
	return v, nil
}

// setAtPath writes value into data at path, following this compiler's
// own ResultPath conventions: "" replaces data's own top-level keys
// (the terminal-output convention), "$.register" replaces data's
// "register" key, "$.register.<name>" sets one nested key without
// disturbing its siblings, and a bare "$.<key>" (no further dots) sets
// one top-level scratch key wholesale — the shape list.append's
// construct-then-flatten Passes use to stage a value outside the
// register before flattening it back in.
func setAtPath(data map[string]interface{}, path string, value interface{}) error {
	switch {
	case path == "":
		obj, ok := value.(map[string]interface{})
		if !ok {
			return fmt.Errorf("sim: terminal output must be an object, got %T", value)
		}
		for k := range data {
			delete(data, k)
		}
		for k, v := range obj {
			data[k] = v
		}
		return nil

	case path == "$.register":
		obj, ok := value.(map[string]interface{})
		if !ok {
			return fmt.Errorf("sim: $.register must be set from an object, got %T", value)
		}
		data["register"] = obj
		return nil

	case strings.HasPrefix(path, "$.register."):
		reg, _ := data["register"].(map[string]interface{})
		if reg == nil {
			reg = make(map[string]interface{})
		}
		reg[strings.TrimPrefix(path, "$.register.")] = value
		data["register"] = reg
		return nil

	case strings.HasPrefix(path, "$.") && !strings.Contains(strings.TrimPrefix(path, "$."), "."):
		data[strings.TrimPrefix(path, "$.")] = value
		return nil

	default:
		return fmt.Errorf("sim: unsupported ResultPath %q", path)
	}
}
