package compiler

import (
	"fmt"

	"github.com/r3e-network/sfnc/domain/builder"
	"github.com/r3e-network/sfnc/domain/register"
	"github.com/r3e-network/sfnc/domain/templates"
	"github.com/r3e-network/sfnc/domain/units"
	"github.com/r3e-network/sfnc/hostlang"
	cerr "github.com/r3e-network/sfnc/infrastructure/errors"
)

// invocation distinguishes the three ways a call's result reaches the
// substrate (spec.md §3 "Task... Task-with-token... Task-event").
type invocation int

const (
	invokeSync invocation = iota
	invokeEvent
	invokeWaitToken
)

// lowerCall lowers a call expression and, if targets is non-nil,
// follows it with a register-update Pass binding the callee's declared
// output fields to targets in order (spec.md §4.6.3 "call lowering ...
// followed by a register-update Pass that maps the declared return
// fields to the targets"). targets is nil for a bare call-as-statement,
// whose result is discarded.
func (c *Compiler) lowerCall(call *hostlang.CallExpr, targets []string, scope *register.Scope, label string) (string, builder.SuccessorSink, error) {
	calleeName, ok := call.Callee.(*hostlang.NameExpr)
	if !ok {
		return "", builder.SuccessorSink{}, cerr.UnknownCallee(fmt.Sprintf("%T", call.Callee))
	}

	switch calleeName.Name {
	case "sleep", "time.sleep":
		return c.lowerSleep(call)

	case "event":
		inner, err := innerCall(call)
		if err != nil {
			return "", builder.SuccessorSink{}, err
		}
		innerName, ok := inner.Callee.(*hostlang.NameExpr)
		if !ok {
			return "", builder.SuccessorSink{}, cerr.UnknownCallee(fmt.Sprintf("%T", inner.Callee))
		}
		ref, ok := c.symbols[innerName.Name]
		if !ok {
			return "", builder.SuccessorSink{}, cerr.UnknownCallee(innerName.Name)
		}
		// Fire-and-forget: no result is bound regardless of targets.
		return c.lowerResolvedCall(ref, inner, nil, scope, label, invokeEvent, nil, 0)

	case "await_token":
		return c.lowerAwaitToken(call, targets, scope, label)

	case "concurrent":
		return "", builder.SuccessorSink{}, cerr.UnsupportedSyntax("concurrent() is only valid as a for-loop iterator")

	case "range", "len":
		if len(targets) != 1 {
			return "", builder.SuccessorSink{}, cerr.ArityMismatch(calleeName.Name, 1, len(targets))
		}
		return c.lowerIntrinsicAssign(targets[0], call, scope)

	default:
		ref, ok := c.symbols[calleeName.Name]
		if !ok {
			return "", builder.SuccessorSink{}, cerr.UnknownCallee(calleeName.Name)
		}
		return c.lowerResolvedCall(ref, call, targets, scope, label, invokeSync, nil, 0)
	}
}

func innerCall(call *hostlang.CallExpr) (*hostlang.CallExpr, error) {
	if len(call.Args) != 1 {
		return nil, cerr.ArityMismatch("wrapper", 1, len(call.Args))
	}
	inner, ok := call.Args[0].(*hostlang.CallExpr)
	if !ok {
		return nil, cerr.UnsupportedSyntax("wrapper argument must be a call")
	}
	return inner, nil
}

// lowerAwaitToken lowers `await_token(call(...), returns, [duration])`
// (spec.md §4.6.4 "Callback-token wrapper"): the inner call is recompiled
// with the wait-for-task-token integration and heartbeat `duration`, and
// its declared return fields are rewritten to the explicit `returns`
// list.
func (c *Compiler) lowerAwaitToken(call *hostlang.CallExpr, targets []string, scope *register.Scope, label string) (string, builder.SuccessorSink, error) {
	if len(call.Args) < 2 {
		return "", builder.SuccessorSink{}, cerr.ArityMismatch("await_token", 2, len(call.Args))
	}
	inner, ok := call.Args[0].(*hostlang.CallExpr)
	if !ok {
		return "", builder.SuccessorSink{}, cerr.UnsupportedSyntax("await_token's first argument must be a call")
	}
	returnsList, ok := call.Args[1].(*hostlang.ListExpr)
	if !ok {
		return "", builder.SuccessorSink{}, cerr.UnsupportedSyntax("await_token's second argument must be a list of field names")
	}
	var returns []string
	for _, el := range returnsList.Elems {
		s, ok := el.(*hostlang.ConstExpr)
		if !ok {
			return "", builder.SuccessorSink{}, cerr.UnsupportedSyntax("await_token return field names must be constants")
		}
		name, ok := s.Value.(string)
		if !ok {
			return "", builder.SuccessorSink{}, cerr.UnsupportedSyntax("await_token return field names must be strings")
		}
		returns = append(returns, name)
	}

	heartbeat := 0
	if len(call.Args) >= 3 {
		d, ok := call.Args[2].(*hostlang.ConstExpr)
		if !ok {
			return "", builder.SuccessorSink{}, cerr.UnsupportedSyntax("await_token duration must be constant")
		}
		if secs, ok := d.Value.(float64); ok {
			heartbeat = int(secs)
		}
	}

	calleeName, ok := inner.Callee.(*hostlang.NameExpr)
	if !ok {
		return "", builder.SuccessorSink{}, cerr.UnknownCallee(fmt.Sprintf("%T", inner.Callee))
	}
	ref, ok := c.symbols[calleeName.Name]
	if !ok {
		return "", builder.SuccessorSink{}, cerr.UnknownCallee(calleeName.Name)
	}
	return c.lowerResolvedCall(ref, inner, targets, scope, label, invokeWaitToken, returns, heartbeat)
}

// lowerResolvedCall dispatches on the callable's tagged-union kind
// (spec.md §4.6.4 "Dispatch by target kind").
func (c *Compiler) lowerResolvedCall(ref units.CallableRef, call *hostlang.CallExpr, targets []string, scope *register.Scope, label string, inv invocation, returnsOverride []string, heartbeat int) (string, builder.SuccessorSink, error) {
	switch r := ref.(type) {
	case *units.ComputeUnitRef:
		outputs := returnsOverride
		if outputs == nil {
			outputs = outputNames(r.Outputs)
		}
		return c.lowerInvocation(call, bindParams(r.Params), scope, label, inv, outputs, targets, heartbeat)

	case *units.ForeignRef:
		outputs := returnsOverride
		if outputs == nil {
			outputs = outputNames(r.Outputs)
		}
		return c.lowerInvocation(call, bindParams(r.Params), scope, label, inv, outputs, targets, heartbeat)

	case *units.StateMachineRef:
		return c.lowerNestedMachine(r, call, targets, scope, label)

	case *units.ServiceOperationRef:
		tpl, ok := templates.Lookup(r.Name)
		if !ok {
			return "", builder.SuccessorSink{}, templates.UnknownTemplate(r.Name)
		}
		return c.lowerServiceOperation(tpl, call, targets, scope, label)

	default:
		return "", builder.SuccessorSink{}, cerr.UnknownCallee(ref.RefName())
	}
}

func bindParams(params []units.Param) []string {
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	return names
}

func outputNames(outputs []units.OutputField) []string {
	names := make([]string, len(outputs))
	for i, o := range outputs {
		names[i] = o.Name
	}
	return names
}

// lowerSleep emits a Wait state with a constant duration (spec.md
// §4.6.4 "Sleep").
func (c *Compiler) lowerSleep(call *hostlang.CallExpr) (string, builder.SuccessorSink, error) {
	if len(call.Args) != 1 {
		return "", builder.SuccessorSink{}, cerr.ArityMismatch("sleep", 1, len(call.Args))
	}
	constant, ok := call.Args[0].(*hostlang.ConstExpr)
	if !ok {
		return "", builder.SuccessorSink{}, cerr.UnsupportedSyntax("sleep duration must be constant")
	}
	secs, ok := constant.Value.(float64)
	if !ok {
		return "", builder.SuccessorSink{}, cerr.UnsupportedSyntax("sleep duration must be numeric")
	}
	node, sink := c.b.NewWait(c.ids.Next("Sleep"), int(secs), "")
	return node.ID, sink, nil
}

// lowerInvocation is the common Task-emission path shared by compute-unit,
// foreign, event, and callback-token calls: bind arguments to the
// declared parameter names, emit the Task, and (unless event-fired) chain
// a register-update Pass pulling the declared outputs into the call's
// assignment targets.
func (c *Compiler) lowerInvocation(call *hostlang.CallExpr, paramNames []string, scope *register.Scope, label string, inv invocation, outputs []string, targets []string, heartbeat int) (string, builder.SuccessorSink, error) {
	calleeName, _ := call.Callee.(*hostlang.NameExpr)
	resource := "compute-unit:" + calleeName.Name

	params, err := c.bindArgs(call, paramNames, scope)
	if err != nil {
		return "", builder.SuccessorSink{}, err
	}

	var node *builder.Node
	var sink builder.SuccessorSink
	switch inv {
	case invokeEvent:
		// Fire-and-forget: no result is bound regardless of targets.
		node, sink = c.b.NewTaskEvent(c.ids.Next(label), resource, params, "$.register")
		return node.ID, sink, nil
	case invokeWaitToken:
		node, sink = c.b.NewTaskWithToken(c.ids.Next(label), resource, params, "$.register", "$.register.out", heartbeat)
	default:
		node, sink = c.b.NewTask(c.ids.Next(label), resource, builder.IntegrationSync, params, "$.register", "$.register.out", 0, 0)
	}

	return c.chainOutputBinding(node, sink, "Payload", outputs, targets, scope, label)
}

// chainOutputBinding appends the follow-on register-update Pass that
// pulls declared output fields from $.register.out[.wrapperKey].<field>
// into targets (spec.md §4.6.4). If targets is nil or outputs is empty,
// no Pass is appended and the Task's own sink is returned unchanged.
func (c *Compiler) chainOutputBinding(node *builder.Node, sink builder.SuccessorSink, wrapperKey string, outputs []string, targets []string, scope *register.Scope, label string) (string, builder.SuccessorSink, error) {
	if targets == nil || len(outputs) == 0 {
		return node.ID, sink, nil
	}
	if len(targets) > len(outputs) {
		return "", builder.SuccessorSink{}, cerr.ArityMismatch(label, len(outputs), len(targets))
	}

	base := "$.register.out"
	if wrapperKey != "" {
		base += "." + wrapperKey
	}

	bindings := make(map[string]regValue, len(targets))
	types := make(map[string]string, len(targets))
	for i, t := range targets {
		bindings[t] = regValue{value: fmt.Sprintf("%s.%s", base, outputs[i]), symbolic: true}
		types[t] = ""
	}

	follow, followSink := c.emitRegisterUpdate(label+"Result", scope, bindings, types)
	sink.Resolve(follow.ID)
	return node.ID, followSink, nil
}

// lowerNestedMachine lowers a call to another compiled state machine as
// a "start execution, run to completion" task (spec.md §4.6.4 "Nested
// state machine"), reading results from the nested machine's Output
// section rather than a Payload wrapper.
func (c *Compiler) lowerNestedMachine(ref *units.StateMachineRef, call *hostlang.CallExpr, targets []string, scope *register.Scope, label string) (string, builder.SuccessorSink, error) {
	params, err := c.bindArgs(call, bindParams(ref.Params), scope)
	if err != nil {
		return "", builder.SuccessorSink{}, err
	}
	node, sink := c.b.NewSubMachine(c.ids.Next(label), ref.Name, params, "$.register", "$.register.out")
	return c.chainOutputBinding(node, sink, "Output", outputNames(ref.Outputs), targets, scope, label)
}

// lowerServiceOperation consults the service-operation template table
// (spec.md §4.5) and emits its pre-baked Task.
func (c *Compiler) lowerServiceOperation(tpl templates.Template, call *hostlang.CallExpr, targets []string, scope *register.Scope, label string) (string, builder.SuccessorSink, error) {
	params, err := c.bindArgs(call, nil, scope)
	if err != nil {
		return "", builder.SuccessorSink{}, err
	}
	node, sink := tpl.Build(c.b, c.ids.Next(tpl.StepLabel), params)
	return c.chainOutputBinding(node, sink, "", tpl.OutputFields, targets, scope, label)
}

// bindArgs binds a call's positional then keyword arguments to paramNames
// in declared order (spec.md §4.6.4: "Arguments (positional, then
// keyword) are bound to the target's declared parameter names"), each
// lowered to a literal or a register path. If paramNames is nil (service
// operations, whose "parameters" are the operation's own keyword
// arguments), keyword arguments are bound verbatim by name and bare
// positional arguments are rejected.
func (c *Compiler) bindArgs(call *hostlang.CallExpr, paramNames []string, scope *register.Scope) (map[string]interface{}, error) {
	out := make(map[string]interface{})

	if paramNames == nil {
		if len(call.Args) > 0 {
			return nil, cerr.ArityMismatch("service-operation", 0, len(call.Args))
		}
		for name, expr := range call.Kwargs {
			v, symbolic, err := c.lowerValue(expr, scope)
			if err != nil {
				return nil, err
			}
			setBound(out, name, v, symbolic)
		}
		return out, nil
	}

	if len(call.Args) > len(paramNames) {
		return nil, cerr.ArityMismatch("call", len(paramNames), len(call.Args))
	}
	for i, arg := range call.Args {
		v, symbolic, err := c.lowerValue(arg, scope)
		if err != nil {
			return nil, err
		}
		setBound(out, paramNames[i], v, symbolic)
	}
	for name, expr := range call.Kwargs {
		v, symbolic, err := c.lowerValue(expr, scope)
		if err != nil {
			return nil, err
		}
		setBound(out, name, v, symbolic)
	}
	return out, nil
}

func setBound(out map[string]interface{}, name string, v interface{}, symbolic bool) {
	if symbolic {
		out[name+".$"] = v
		return
	}
	if v == nil {
		out[name] = ""
		return
	}
	out[name] = v
}
