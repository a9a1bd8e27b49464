package compiler

import (
	"fmt"

	"github.com/r3e-network/sfnc/domain/builder"
	"github.com/r3e-network/sfnc/domain/register"
	"github.com/r3e-network/sfnc/hostlang"
	cerr "github.com/r3e-network/sfnc/infrastructure/errors"
)

// lowerValue lowers a value-position expression by syntactic shape
// (spec.md §4.6.8). The bool result reports whether the value is
// symbolic (a register-path reference, to be suffixed ".$" by the
// caller) as opposed to a literal embedded as-is.
func (c *Compiler) lowerValue(e hostlang.Expr, scope *register.Scope) (interface{}, bool, error) {
	switch n := e.(type) {
	case *hostlang.NameExpr:
		if _, ok := scope.Lookup(n.Name); !ok {
			return nil, false, cerr.UndefinedVariable(n.Name)
		}
		return "$.register." + n.Name, true, nil

	case *hostlang.ConstExpr:
		return n.Value, false, nil

	case *hostlang.ListExpr:
		out := make([]interface{}, len(n.Elems))
		for i, el := range n.Elems {
			v, err := c.lowerNested(el, scope)
			if err != nil {
				return nil, false, err
			}
			out[i] = v
		}
		return out, false, nil

	case *hostlang.DictExpr:
		obj := make(map[string]interface{}, len(n.Keys))
		for i, k := range n.Keys {
			v, err := c.lowerNested(n.Values[i], scope)
			if err != nil {
				return nil, false, err
			}
			obj[k] = v
		}
		return obj, false, nil

	case *hostlang.SubscriptExpr:
		path, err := c.subscriptPath(n, scope)
		if err != nil {
			return nil, false, err
		}
		return path, true, nil

	case *hostlang.AttrExpr:
		if _, ok := n.Base.(*hostlang.SelfExpr); ok {
			// Resolved via the host environment at compile time (spec.md
			// §4.6.8: "resolved via the host environment at compile time").
			// The decorator's lexical-environment snapshot supplies the
			// concrete value; here we record the attribute name as an
			// opaque compile-time literal placeholder.
			return n.Attr, false, nil
		}
		path, err := c.subscriptPath(n, scope)
		if err != nil {
			return nil, false, err
		}
		return path, true, nil

	default:
		return nil, false, cerr.UnsupportedSyntax(fmt.Sprintf("%T in value position", e))
	}
}

// lowerNested lowers e for use as a List/Dict element, where there is no
// sibling key to ".$"-suffix: a symbolic value is instead wrapped as a
// PathRef, the way a real CDK binding's `sfn.JsonPath.stringAt` call
// would appear nested inside a literal array or object.
func (c *Compiler) lowerNested(e hostlang.Expr, scope *register.Scope) (interface{}, error) {
	v, symbolic, err := c.lowerValue(e, scope)
	if err != nil {
		return nil, err
	}
	if symbolic {
		return PathRef(v.(string)), nil
	}
	return v, nil
}

// subscriptPath flattens a Name/Subscript/Attr chain to a single
// register path, e.g. `a[0].c` -> "$.register.a[0].c" (spec.md §4.6.8
// "Subscript chain -> flattened to $.register.a.b[0].c style").
func (c *Compiler) subscriptPath(e hostlang.Expr, scope *register.Scope) (string, error) {
	switch n := e.(type) {
	case *hostlang.NameExpr:
		if _, ok := scope.Lookup(n.Name); !ok {
			return "", cerr.UndefinedVariable(n.Name)
		}
		return "$.register." + n.Name, nil

	case *hostlang.SubscriptExpr:
		base, err := c.subscriptPath(n.Base, scope)
		if err != nil {
			return "", err
		}
		key, ok := n.Key.(*hostlang.ConstExpr)
		if !ok {
			return "", cerr.UnsupportedSyntax("subscript key must be constant")
		}
		switch kv := key.Value.(type) {
		case float64:
			return fmt.Sprintf("%s[%d]", base, int(kv)), nil
		case string:
			return base + "." + kv, nil
		default:
			return "", cerr.UnsupportedSyntax("unsupported subscript key type")
		}

	case *hostlang.AttrExpr:
		base, err := c.subscriptPath(n.Base, scope)
		if err != nil {
			return "", err
		}
		return base + "." + n.Attr, nil

	default:
		return "", cerr.UnsupportedSyntax(fmt.Sprintf("%T in subscript base position", e))
	}
}

// lowerIntrinsicAssign lowers `target = range(...)` / `target = len(...)`
// used as a plain value (spec.md §4.6.4 "Intrinsic... emit a Pass that
// stores the result under a predictable scratch slot, then
// register-update from there"). `range(a,b,c)` becomes
// `ArrayRange(a, MathAdd(b,-1), c)`, expressed with the real Step
// Functions intrinsic functions (States.ArrayRange, States.MathAdd,
// States.ArrayLength) the builder API passes through verbatim.
func (c *Compiler) lowerIntrinsicAssign(target string, call *hostlang.CallExpr, scope *register.Scope) (string, builder.SuccessorSink, error) {
	expr, err := c.intrinsicExpr(call, scope)
	if err != nil {
		return "", builder.SuccessorSink{}, err
	}

	scratch := c.nextScratch("intrinsic")
	scratchNode, scratchSink := c.emitScratchPass("Intrinsic", scratch, expr, scope)

	follow, followSink := c.emitRegisterUpdate("IntrinsicResult", scope,
		map[string]regValue{target: {value: "$.register." + scratch, symbolic: true}},
		map[string]string{target: ""})
	scratchSink.Resolve(follow.ID)

	return scratchNode.ID, followSink, nil
}

func (c *Compiler) intrinsicExpr(call *hostlang.CallExpr, scope *register.Scope) (string, error) {
	name := call.Callee.(*hostlang.NameExpr).Name

	args := make([]string, len(call.Args))
	for i, a := range call.Args {
		v, symbolic, err := c.lowerValue(a, scope)
		if err != nil {
			return "", err
		}
		if symbolic {
			args[i] = v.(string)
		} else {
			args[i] = fmt.Sprintf("%v", v)
		}
	}

	switch name {
	case "len":
		if len(args) != 1 {
			return "", cerr.ArityMismatch("len", 1, len(args))
		}
		return fmt.Sprintf("States.ArrayLength(%s)", args[0]), nil

	case "range":
		switch len(args) {
		case 1:
			return fmt.Sprintf("States.ArrayRange(0, States.MathAdd(%s, -1), 1)", args[0]), nil
		case 2:
			return fmt.Sprintf("States.ArrayRange(%s, States.MathAdd(%s, -1), 1)", args[0], args[1]), nil
		case 3:
			return fmt.Sprintf("States.ArrayRange(%s, States.MathAdd(%s, -1), %s)", args[0], args[1], args[2]), nil
		default:
			return "", cerr.ArityMismatch("range", 3, len(args))
		}

	default:
		return "", cerr.UnknownCallee(name)
	}
}
