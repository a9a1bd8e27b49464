package compiler

import (
	"fmt"
	"strconv"

	"github.com/r3e-network/sfnc/domain/builder"
	"github.com/r3e-network/sfnc/domain/register"
	"github.com/r3e-network/sfnc/hostlang"
	cerr "github.com/r3e-network/sfnc/infrastructure/errors"
)

// lowerAssign lowers `x = const`, `x = expr`, and `x = call(...)` (spec.md
// §4.6.3 rows 1, 2, and 4's single-target case).
func (c *Compiler) lowerAssign(n *hostlang.AssignStmt, scope *register.Scope) (string, builder.SuccessorSink, error) {
	if call, ok := n.Value.(*hostlang.CallExpr); ok {
		if name, ok := call.Callee.(*hostlang.NameExpr); ok && (name.Name == "range" || name.Name == "len") {
			return c.lowerIntrinsicAssign(n.Target, call, scope)
		}
		return c.lowerCall(call, []string{n.Target}, scope, "Call"+n.Target)
	}

	v, symbolic, err := c.lowerValue(n.Value, scope)
	if err != nil {
		return "", builder.SuccessorSink{}, err
	}
	node, sink := c.emitRegisterUpdate("Assign"+n.Target, scope,
		map[string]regValue{n.Target: {value: v, symbolic: symbolic}},
		map[string]string{n.Target: inferType(n.Value)})
	return node.ID, sink, nil
}

// inferType returns a declared-type hint for truthiness narrowing
// (domain/cond) when the RHS syntactically reveals one; "" otherwise.
func inferType(e hostlang.Expr) string {
	if c, ok := e.(*hostlang.ConstExpr); ok {
		switch c.Value.(type) {
		case bool:
			return "bool"
		case string:
			return "str"
		case float64:
			return "float"
		}
	}
	return ""
}

// lowerIndexAssign lowers `x[k] = expr` as the two-Pass shape spec.md
// §4.6.3 describes: a scratch Pass computing `{k: expr}`, then a Pass
// merging it onto `x` (spec.md §9: shallow-merge semantics preserved per
// the open-question resolution in DESIGN.md).
func (c *Compiler) lowerIndexAssign(n *hostlang.IndexAssignStmt, scope *register.Scope) (string, builder.SuccessorSink, error) {
	keyConst, ok := n.Key.(*hostlang.ConstExpr)
	if !ok {
		return "", builder.SuccessorSink{}, cerr.UnsupportedSyntax("index-assignment key must be constant")
	}
	keyStr, ok := keyConst.Value.(string)
	if !ok {
		return "", builder.SuccessorSink{}, cerr.UnsupportedSyntax("index-assignment key must be a string")
	}

	v, symbolic, err := c.lowerValue(n.Value, scope)
	if err != nil {
		return "", builder.SuccessorSink{}, err
	}

	scratch := c.nextScratch("idx")
	scratchParams := map[string]interface{}{}
	if symbolic {
		scratchParams[keyStr+".$"] = v
	} else if v == nil {
		scratchParams[keyStr] = ""
	} else {
		scratchParams[keyStr] = v
	}
	scratchNode, scratchSink := c.b.NewPass(c.ids.Next("IndexScratch"), scratchParams, "", "$.register."+scratch)

	mergeExpr := "States.JsonMerge($.register." + n.Target + ", $.register." + scratch + ", false)"
	mergeNode, mergeSink := c.emitRegisterUpdate("IndexMerge"+n.Target, scope,
		map[string]regValue{n.Target: {value: mergeExpr, symbolic: true}},
		map[string]string{n.Target: ""})

	scratchSink.Resolve(mergeNode.ID)
	return scratchNode.ID, mergeSink, nil
}

// lowerMultiAssignCall lowers `x, y, ... = call(...)`.
func (c *Compiler) lowerMultiAssignCall(n *hostlang.MultiAssignCallStmt, scope *register.Scope) (string, builder.SuccessorSink, error) {
	return c.lowerCall(n.Call, n.Targets, scope, "Call"+n.Targets[0])
}

// lowerAppend lowers `list.append(x)` as the two-Pass construct-then-
// flatten shape spec.md §4.6.3 describes. Embedding a register path as
// a function argument to States.Array doesn't spread its elements — it
// evaluates to the array itself as one value — so the only way to grow
// `list` by one element is to first nest [list, [x]] into a scratch
// slot *outside* the register, then flatten it back with
// "$.<scratch>.arrayConcat[*][*]" used as a bare path reference, never
// as an intrinsic argument.
func (c *Compiler) lowerAppend(n *hostlang.AppendStmt, scope *register.Scope) (string, builder.SuccessorSink, error) {
	if _, ok := scope.Lookup(n.List); !ok {
		return "", builder.SuccessorSink{}, cerr.UndefinedVariable(n.List)
	}
	v, symbolic, err := c.lowerValue(n.Value, scope)
	if err != nil {
		return "", builder.SuccessorSink{}, err
	}

	var valueExpr string
	if symbolic {
		valueExpr = v.(string)
	} else {
		valueExpr = fmt.Sprintf("%v", v)
	}

	scratch := c.nextScratch("append")
	arrayPath := "$.register." + n.List
	nestExpr := fmt.Sprintf("States.Array(%s, States.Array(%s))", arrayPath, valueExpr)
	nested, nestedSink := c.b.NewPass(c.ids.Next("AppendConcat"),
		map[string]interface{}{"arrayConcat.$": nestExpr}, "", "$."+scratch)

	flattenExpr := "$." + scratch + ".arrayConcat[*][*]"
	flatten, flattenSink := c.emitRegisterUpdate("AppendFlatten"+n.List, scope,
		map[string]regValue{n.List: {value: flattenExpr, symbolic: true}},
		map[string]string{n.List: ""})

	nestedSink.Resolve(flatten.ID)
	return nested.ID, flattenSink, nil
}

// lowerAugAssign lowers `x += const` / `x -= const` using the builder's
// math-add intrinsic (spec.md §4.6.3).
func (c *Compiler) lowerAugAssign(n *hostlang.AugAssignStmt, scope *register.Scope) (string, builder.SuccessorSink, error) {
	if _, ok := scope.Lookup(n.Target); !ok {
		return "", builder.SuccessorSink{}, cerr.UndefinedVariable(n.Target)
	}
	constant, ok := n.Value.(*hostlang.ConstExpr)
	if !ok {
		return "", builder.SuccessorSink{}, cerr.UnsupportedSyntax("aug-assign operand must be constant")
	}
	delta, ok := constant.Value.(float64)
	if !ok {
		return "", builder.SuccessorSink{}, cerr.UnsupportedSyntax("aug-assign operand must be numeric")
	}
	if n.Op == "-" {
		delta = -delta
	}

	node, sink := c.emitRegisterUpdate("AugAssign"+n.Target, scope,
		map[string]regValue{n.Target: {
			value:    "States.MathAdd($.register." + n.Target + ", " + floatLiteral(delta) + ")",
			symbolic: true,
		}},
		map[string]string{n.Target: "float"})
	return node.ID, sink, nil
}

func floatLiteral(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
