// Package compiler lowers a parsed orchestrator function (hostlang.Program)
// into a state graph, statement by statement, with a root/child/map scope
// stack (spec.md §4.6, the compiler core).
package compiler

import (
	"fmt"

	"github.com/r3e-network/sfnc/domain/attrs"
	"github.com/r3e-network/sfnc/domain/builder"
	"github.com/r3e-network/sfnc/domain/cond"
	"github.com/r3e-network/sfnc/domain/ids"
	"github.com/r3e-network/sfnc/domain/register"
	"github.com/r3e-network/sfnc/domain/templates"
	"github.com/r3e-network/sfnc/domain/units"
	"github.com/r3e-network/sfnc/hostlang"
	cerr "github.com/r3e-network/sfnc/infrastructure/errors"
)

// PathRef marks a lowered value as a register-path reference rather than
// a literal, for use inside nested array/object literals where the
// top-level ".$"-suffix convention does not apply (spec.md §4.6.8:
// "wrapped as the builder's array intrinsic"). The reference
// implementation of domain/builder treats it as an opaque leaf, the way
// a real CDK binding's `sfn.JsonPath.stringAt(...)` intrinsic would.
type PathRef string

// Options configures one compilation run (spec.md §6 "Configuration
// knobs of the decorator").
type Options struct {
	Express                bool
	SkipEmptyPass          bool
	ReturnSchema           []string // overrides the collected output schema when non-empty
	DefaultMapConcurrency  int
}

// Result is everything a successful compilation produces.
type Result struct {
	Graph        *builder.Graph
	StartAt      string
	ReturnSchema []string
}

// Compiler holds the per-run state spec.md §5 requires to be explicit
// rather than global: the machine-index generator, the accumulating
// graph builder, and the lexical symbol table resolving call targets.
type Compiler struct {
	ids       *ids.Generator
	b         builder.Builder
	symbols   map[string]units.CallableRef
	templates map[string]templates.Template
	opts      Options

	returnSchema []string
	scratchSeq   int
}

// New constructs a Compiler for one machine. symbols is the explicit
// lexical environment (name → callable descriptor) the orchestrator's
// call targets resolve against (spec.md §9: "pass an explicit symbol
// table into the compiler; do not reach into the host language's
// frame").
func New(symbols map[string]units.CallableRef, opts Options) *Compiler {
	return &Compiler{
		ids:       ids.NewGenerator(),
		b:         builder.NewGraphBuilder(),
		symbols:   symbols,
		templates: templates.Table,
		opts:      opts,
	}
}

// Compile lowers fn, whose attributes have already been collected, into
// a complete state graph (spec.md §4.6.1 "Entry").
func (c *Compiler) Compile(fn *hostlang.FuncDecl, a attrs.Attrs) (*Result, error) {
	schema := a.ReturnFields
	if len(c.opts.ReturnSchema) > 0 {
		schema = c.opts.ReturnSchema
	}
	c.returnSchema = schema

	bindings := make([]register.Binding, 0, len(a.Required)+len(a.Optional))
	for _, p := range a.Required {
		bindings = append(bindings, register.Binding{Name: p.Name, Type: p.Type})
	}
	for _, p := range a.Optional {
		bindings = append(bindings, register.Binding{Name: p.Name, Type: p.Type})
	}
	scope := register.NewRoot(bindings)

	entry, sink := c.emitInitialPass()
	c.b.SetStart(entry.ID)

	for _, p := range a.Optional {
		choice, nextSink, err := c.emitDefaultGuard(p, scope)
		if err != nil {
			return nil, err
		}
		sink.Resolve(choice.ID)
		sink = nextSink
	}

	bodyStart, bodySink, err := c.lowerStmts(fn.Body, scope)
	if err != nil {
		return nil, err
	}
	sink.Resolve(bodyStart)
	sink = bodySink

	if !sink.Empty() {
		end, _ := c.emitTrivialPass(nil)
		end.End = true
		sink.Resolve(end.ID)
	}

	return &Result{Graph: c.b.Graph(), StartAt: entry.ID, ReturnSchema: schema}, nil
}

// emitInitialPass copies the entire input object into $.register (spec.md
// §4.6.1 step 1).
func (c *Compiler) emitInitialPass() (*builder.Node, builder.SuccessorSink) {
	id := c.ids.Next("InitRegister")
	return c.b.NewPass(id, map[string]interface{}{"register.$": "$"}, "", "$")
}

// emitDefaultGuard emits the Choice(is-not-present) -> Pass(assign
// default) pair for one optional parameter (spec.md §4.6.1 step 2). The
// Choice's "present" branch and the default-assignment Pass's own
// successor both converge on whatever statement follows, so their sinks
// are merged into one for the caller to resolve together.
func (c *Compiler) emitDefaultGuard(p hostlang.OptParam, scope *register.Scope) (*builder.Node, builder.SuccessorSink, error) {
	if p.Default == nil {
		return nil, builder.SuccessorSink{}, cerr.BadDefault(p.Name)
	}
	path := "$.register." + p.Name
	rule := builder.ChoiceRule{
		Condition: presentCondition(path),
	}
	choice, _ := c.b.NewChoice(c.ids.Next(p.Name+"Present"), []builder.ChoiceRule{rule}, nil)

	defaultPass, defaultSink := c.emitRegisterUpdate(p.Name+"Default", scope,
		map[string]regValue{p.Name: {value: p.Default.Value}},
		map[string]string{p.Name: p.Type})
	choice.Default = defaultPass.ID

	var skipSink builder.SuccessorSink
	skipSink.Add(func(successorID string) { choice.Choices[0].Next = successorID })

	return choice, builder.Merge(skipSink, defaultSink), nil
}

// regValue is one binding's lowered RHS: either a literal (symbolic
// false) or a register-path reference (symbolic true).
type regValue struct {
	value    interface{}
	symbolic bool
}

// emitRegisterUpdate emits the central primitive described in spec.md
// §4.6.2: a Pass that writes `bindings` onto the register while carrying
// forward every other variable already known to scope, then declares
// each new binding in scope (marking overwrites as mutations for
// map-scope consolidation).
func (c *Compiler) emitRegisterUpdate(label string, scope *register.Scope, bindings map[string]regValue, types map[string]string) (*builder.Node, builder.SuccessorSink) {
	params := make(map[string]interface{}, len(bindings)+len(scope.KnownNames()))

	for name, v := range bindings {
		if v.symbolic {
			params[name+".$"] = v.value
			continue
		}
		if v.value == nil {
			params[name] = "" // P3: null preservation
		} else {
			params[name] = v.value
		}
	}
	for _, known := range scope.KnownNames() {
		if _, overwritten := bindings[known]; overwritten {
			continue
		}
		params[known+".$"] = "$.register." + known
	}

	id := c.ids.Next(label)
	node, sink := c.b.NewPass(id, params, "", "$.register")
	node.Label = label

	for name := range bindings {
		scope.Declare(name, types[name])
	}
	return node, sink
}

// emitTrivialPass emits a Pass with no parameters, used to terminate a
// body that produced no other emission (Map iterator bodies require a
// terminal, §4.6.5 step 5) or to close out a function that falls off
// its end without an explicit return.
func (c *Compiler) emitTrivialPass(label *string) (*builder.Node, builder.SuccessorSink) {
	l := "Pass"
	if label != nil {
		l = *label
	}
	return c.b.NewPass(c.ids.Next(l), map[string]interface{}{}, "", "")
}

// nextScratch returns a fresh scratch-slot register name for multi-step
// intrinsic and append lowering (spec.md §4.6.4, §4.6.3 `list.append`).
func (c *Compiler) nextScratch(prefix string) string {
	c.scratchSeq++
	return fmt.Sprintf("__%s%d", prefix, c.scratchSeq)
}

// emitScratchPass stores expr (a raw States.* intrinsic expression, or a
// plain register path) under scratch, carrying forward every other
// variable already known to scope the same way emitRegisterUpdate does
// — a Pass targeting ResultPath "$.register" must republish every live
// variable or its Parameters object replaces the register wholesale.
func (c *Compiler) emitScratchPass(label, scratch, expr string, scope *register.Scope) (*builder.Node, builder.SuccessorSink) {
	params := make(map[string]interface{}, len(scope.KnownNames())+1)
	params[scratch+".$"] = expr
	for _, known := range scope.KnownNames() {
		params[known+".$"] = "$.register." + known
	}

	id := c.ids.Next(label)
	node, sink := c.b.NewPass(id, params, "", "$.register")
	node.Label = label
	return node, sink
}

// lowerStmts lowers a statement list in sequence, chaining each
// statement's entry onto the previous statement's successor sink. An
// empty list, or a list whose every statement elides its emission (e.g.
// `pass` under SkipEmptyPass), still yields one trivial Pass so callers
// always have a concrete entry/exit pair to wire.
func (c *Compiler) lowerStmts(stmts []hostlang.Stmt, scope *register.Scope) (string, builder.SuccessorSink, error) {
	var start string
	var tail builder.SuccessorSink
	have := false

	for _, st := range stmts {
		id, sink, err := c.lowerStmt(st, scope)
		if err != nil {
			return "", builder.SuccessorSink{}, err
		}
		if id == "" {
			continue
		}
		if !have {
			start = id
			have = true
		} else {
			tail.Resolve(id)
		}
		tail = sink
	}

	if !have {
		n, sink := c.emitTrivialPass(nil)
		start, tail = n.ID, sink
	}
	return start, tail, nil
}

// lowerStmt dispatches one statement to its lowering routine (spec.md
// §4.6.3). Returns ("", zero-sink, nil) for a statement that elides its
// emission entirely.
func (c *Compiler) lowerStmt(st hostlang.Stmt, scope *register.Scope) (string, builder.SuccessorSink, error) {
	switch n := st.(type) {
	case *hostlang.PassStmt:
		if c.opts.SkipEmptyPass {
			return "", builder.SuccessorSink{}, nil
		}
		node, sink := c.emitTrivialPass(nil)
		return node.ID, sink, nil

	case *hostlang.AssignStmt:
		return c.lowerAssign(n, scope)

	case *hostlang.IndexAssignStmt:
		return c.lowerIndexAssign(n, scope)

	case *hostlang.MultiAssignCallStmt:
		return c.lowerMultiAssignCall(n, scope)

	case *hostlang.ExprStmt:
		return c.lowerCall(n.Call, nil, scope, "Call")

	case *hostlang.AppendStmt:
		return c.lowerAppend(n, scope)

	case *hostlang.AugAssignStmt:
		return c.lowerAugAssign(n, scope)

	case *hostlang.IfStmt:
		return c.lowerIf(n, scope)

	case *hostlang.ForStmt:
		return c.lowerFor(n, scope)

	case *hostlang.ListCompStmt:
		return c.lowerListComp(n, scope)

	case *hostlang.WithRetryStmt:
		return c.lowerWithRetry(n, scope)

	case *hostlang.TryStmt:
		return c.lowerTry(n, scope)

	case *hostlang.ReturnStmt:
		return c.lowerReturn(n, scope)

	default:
		// Any other statement form is skipped with no emission; nothing
		// is logged.
		return "", builder.SuccessorSink{}, nil
	}
}

func presentCondition(path string) cond.Condition {
	return cond.Condition{Kind: cond.KindIsPresent, Path: path, Label: path + " is present"}
}
