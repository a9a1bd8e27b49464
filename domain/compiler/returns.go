package compiler

import (
	"github.com/r3e-network/sfnc/domain/builder"
	"github.com/r3e-network/sfnc/domain/register"
	"github.com/r3e-network/sfnc/hostlang"
	cerr "github.com/r3e-network/sfnc/infrastructure/errors"
)

// lowerReturn lowers `return ...` into the terminal Pass spec.md §4.6.7
// describes. The output schema fixes its shape:
//   - no declared schema: a trivial Pass, the machine ends here.
//   - one field: the value may be a name, a constant, or an intrinsic
//     call (range/len).
//   - N fields: the value must be an N-tuple of names or constants,
//     matching the schema length exactly.
//
// The returned sink is always empty: a return statement ends its
// branch, it never has a successor to wire.
func (c *Compiler) lowerReturn(n *hostlang.ReturnStmt, scope *register.Scope) (string, builder.SuccessorSink, error) {
	schema := c.returnSchema

	if len(schema) == 0 {
		if len(n.Values) != 0 {
			return "", builder.SuccessorSink{}, cerr.ArityMismatch("return", 0, len(n.Values))
		}
		node, _ := c.emitTrivialPass(nil)
		node.End = true
		return node.ID, builder.SuccessorSink{}, nil
	}

	if len(n.Values) != len(schema) {
		return "", builder.SuccessorSink{}, cerr.ArityMismatch("return", len(schema), len(n.Values))
	}

	if len(schema) == 1 {
		if call, ok := n.Values[0].(*hostlang.CallExpr); ok {
			if name, ok := call.Callee.(*hostlang.NameExpr); ok && (name.Name == "range" || name.Name == "len") {
				return c.lowerIntrinsicReturn(schema[0], call, scope)
			}
		}
	}

	fields := make(map[string]interface{}, len(schema))
	for i, v := range n.Values {
		value, symbolic, err := c.lowerReturnValue(v, scope)
		if err != nil {
			return "", builder.SuccessorSink{}, err
		}
		setBound(fields, schema[i], value, symbolic)
	}

	node := c.emitOutputPass("Return", fields)
	return node.ID, builder.SuccessorSink{}, nil
}

// lowerReturnValue lowers a single return-position expression: only a
// name or a constant is allowed here (spec.md §4.6.7), the intrinsic
// exception being handled separately by the single-field caller.
func (c *Compiler) lowerReturnValue(e hostlang.Expr, scope *register.Scope) (interface{}, bool, error) {
	switch v := e.(type) {
	case *hostlang.NameExpr:
		if _, ok := scope.Lookup(v.Name); !ok {
			return nil, false, cerr.UndefinedVariable(v.Name)
		}
		return "$.register." + v.Name, true, nil
	case *hostlang.ConstExpr:
		return v.Value, false, nil
	default:
		return nil, false, cerr.UnsupportedSyntax("return value must be a name or constant")
	}
}

// lowerIntrinsicReturn handles the single-field schema's intrinsic-call
// exception: compute the intrinsic into a scratch slot, then emit the
// terminal output Pass reading from it.
func (c *Compiler) lowerIntrinsicReturn(field string, call *hostlang.CallExpr, scope *register.Scope) (string, builder.SuccessorSink, error) {
	expr, err := c.intrinsicExpr(call, scope)
	if err != nil {
		return "", builder.SuccessorSink{}, err
	}

	scratch := c.nextScratch("retintrinsic")
	scratchNode, scratchSink := c.emitScratchPass("ReturnIntrinsic", scratch, expr, scope)

	out := map[string]interface{}{field + ".$": "$.register." + scratch}
	finalNode := c.emitOutputPass("Return", out)
	scratchSink.Resolve(finalNode.ID)

	return scratchNode.ID, builder.SuccessorSink{}, nil
}

// emitOutputPass emits the machine's terminal Pass: params become the
// state's entire output (ResultPath "" in this compiler's convention, as
// opposed to "$.register" for an ordinary register update), and the node
// is marked End rather than wired to a successor.
func (c *Compiler) emitOutputPass(label string, params map[string]interface{}) *builder.Node {
	node, _ := c.b.NewPass(c.ids.Next(label), params, "", "")
	node.Label = label
	node.End = true
	return node
}
