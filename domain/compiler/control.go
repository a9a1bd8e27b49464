package compiler

import (
	"github.com/r3e-network/sfnc/domain/builder"
	"github.com/r3e-network/sfnc/domain/cond"
	"github.com/r3e-network/sfnc/domain/register"
	"github.com/r3e-network/sfnc/hostlang"
	cerr "github.com/r3e-network/sfnc/infrastructure/errors"
)

// lowerIf lowers `if (test) { ... } else { ... }` to a Choice node, each
// arm compiled in its own child scope (spec.md §4.6.3, P6 scope
// isolation: a variable first defined in one arm must not leak past the
// Choice unless also defined in the other arm — child scopes, discarded
// after compiling each arm, enforce exactly that).
func (c *Compiler) lowerIf(n *hostlang.IfStmt, scope *register.Scope) (string, builder.SuccessorSink, error) {
	test, err := cond.Build(n.Test, scope.TypeOf)
	if err != nil {
		return "", builder.SuccessorSink{}, err
	}

	thenScope := scope.Child()
	thenStart, thenSink, err := c.lowerStmts(n.Then, thenScope)
	if err != nil {
		return "", builder.SuccessorSink{}, err
	}

	var elseStart string
	var elseSink builder.SuccessorSink
	if len(n.Else) > 0 {
		elseScope := scope.Child()
		elseStart, elseSink, err = c.lowerStmts(n.Else, elseScope)
		if err != nil {
			return "", builder.SuccessorSink{}, err
		}
		// A name first defined in both arms stays defined after the Choice.
		for _, name := range thenScope.KnownNames() {
			if _, outer := scope.Lookup(name); outer {
				continue
			}
			if _, inElse := elseScope.Lookup(name); inElse {
				scope.Declare(name, "")
			}
		}
	}

	rule := builder.ChoiceRule{Condition: test, Next: thenStart}
	choice, sink := c.b.NewChoice(c.ids.Next("If"), []builder.ChoiceRule{rule}, nil)

	if elseStart != "" {
		choice.Default = elseStart
		return choice.ID, builder.Merge(thenSink, elseSink), nil
	}

	// No else arm: the Choice's own default is the post-if continuation,
	// same as the then-arm's exit.
	var defaultSink builder.SuccessorSink
	defaultSink.Add(func(successorID string) { choice.Default = successorID })
	_ = sink // the combined sink NewChoice returns isn't used; we wire rule.Next directly above.
	return choice.ID, builder.Merge(thenSink, defaultSink), nil
}

// lowerFor lowers `for (const t of iter) { ... }` via Map lowering
// (spec.md §4.6.5).
func (c *Compiler) lowerFor(n *hostlang.ForStmt, scope *register.Scope) (string, builder.SuccessorSink, error) {
	return c.lowerMapLoop(n.Target, n.Iter, n.Body, "", scope)
}

// lowerListComp lowers `target = iter.map(t => expr)` (the host
// language's list comprehension) via the same Map mechanism, with the
// expression becoming the iterator body and Target receiving the
// flattened result (spec.md §4.6.5 "List comprehensions reuse the same
// Map mechanism").
func (c *Compiler) lowerListComp(n *hostlang.ListCompStmt, scope *register.Scope) (string, builder.SuccessorSink, error) {
	body := []hostlang.Stmt{&hostlang.AssignStmt{Target: "__elem", Value: n.Elem}}
	return c.lowerMapLoop(n.ElemTarget, n.Iter, body, n.Target, scope)
}

// lowerMapLoop implements spec.md §4.6.5 steps 1-5. consolidateAs, if
// non-empty, additionally projects the loop's `__elem` scratch binding
// (a list-comprehension result) into that register name.
func (c *Compiler) lowerMapLoop(elemName string, iter hostlang.Expr, body []hostlang.Stmt, consolidateAs string, scope *register.Scope) (string, builder.SuccessorSink, error) {
	itemsPath, maxConcurrency, err := c.resolveIterator(iter, scope)
	if err != nil {
		return "", builder.SuccessorSink{}, err
	}

	loopScope := scope.Map()

	// The iterator body compiles into its own nested graph (spec.md §3
	// "Map state... applies a body to each element"): temporarily swap in
	// a fresh Builder so the body's states land in iteratorGraph rather
	// than the enclosing machine's top-level graph, while still drawing
	// IDs from the same generator so they stay globally unique.
	outer := c.b
	nested := builder.NewGraphBuilder()
	c.b = nested

	// The Map state's own Parameters only carry the outer register down
	// into the iteration (mapParams below); every register-path lookup
	// the compiler emits resolves to "$.register.<name>" regardless of
	// scope (see lowerValue), so the loop variable itself must land
	// there too rather than as a Map-Parameters sibling key. This entry
	// Pass is the iterator graph's real start: it reads the current
	// iteration's item off the Context Object and writes it into the
	// register alongside everything carried down from outside the loop.
	entry, entrySink := c.emitRegisterUpdate("MapElem", loopScope,
		map[string]regValue{elemName: {value: "$$.Map.Item.Value", symbolic: true}},
		map[string]string{elemName: ""})

	bodyStart, bodySink, err := c.lowerStmts(body, loopScope)
	if err != nil {
		c.b = outer
		return "", builder.SuccessorSink{}, err
	}
	entrySink.Resolve(bodyStart)

	mutated := loopScope.MutatedOuterVars()
	if consolidateAs != "" {
		mutated = append(mutated, "__elem")
	}

	if len(mutated) > 0 {
		projection := make(map[string]regValue, len(mutated))
		types := make(map[string]string, len(mutated))
		for _, v := range mutated {
			projection[v] = regValue{value: "$.register." + v, symbolic: true}
			types[v] = ""
		}
		mapReturn, mapReturnSink := c.emitRegisterUpdate("MapReturn", loopScope, projection, types)
		bodySink.Resolve(mapReturn.ID)
		bodySink = mapReturnSink
	} else {
		// Map requires a terminal even with nothing to consolidate
		// (spec.md §4.6.5 step 5).
		end, _ := c.emitTrivialPass(nil)
		end.End = true
		bodySink.Resolve(end.ID)
	}

	iteratorGraph := nested.Graph()
	iteratorGraph.StartAt = entry.ID
	c.b = outer

	mapParams := map[string]interface{}{
		"register.$": "$.register",
	}
	mapNode, mapSink := c.b.NewMap(c.ids.Next("Map"), itemsPath, maxConcurrency, mapParams, "$.register.loopResult", iteratorGraph)

	if len(mutated) == 0 {
		return mapNode.ID, mapSink, nil
	}

	consolidation := make(map[string]regValue, len(mutated))
	types := make(map[string]string, len(mutated))
	for _, v := range mutated {
		target := v
		if consolidateAs != "" && v == "__elem" {
			target = consolidateAs
		}
		consolidation[target] = regValue{
			value:    "$.register.loopResult[*]." + v + "[*]",
			symbolic: true,
		}
		types[target] = ""
	}
	consolidate, consolidateSink := c.emitRegisterUpdate("Consolidate", scope, consolidation, types)
	mapSink.Resolve(consolidate.ID)

	return mapNode.ID, consolidateSink, nil
}

// resolveIterator resolves the iteration source and concurrency cap
// (spec.md §4.6.5 step 1).
func (c *Compiler) resolveIterator(iter hostlang.Expr, scope *register.Scope) (string, int, error) {
	if call, ok := iter.(*hostlang.CallExpr); ok {
		if name, ok := call.Callee.(*hostlang.NameExpr); ok {
			switch name.Name {
			case "concurrent":
				return c.resolveConcurrentIterator(call, scope)
			case "range", "len":
				// Intrinsic call -> emit a Pass precomputing the array into
				// a scratch slot (spec.md §4.6.5 step 1). Reuse the
				// register-bound intrinsic helper under a scratch name.
				scratch := c.nextScratch("iter")
				if _, _, err := c.emitIteratorIntrinsic(scratch, call, scope); err != nil {
					return "", 0, err
				}
				return "$.register." + scratch, 1, nil
			}
		}
	}

	if name, ok := iter.(*hostlang.NameExpr); ok {
		if _, known := scope.Lookup(name.Name); !known {
			return "", 0, cerr.UndefinedVariable(name.Name)
		}
		return "$.register." + name.Name, 1, nil
	}

	return "", 0, cerr.UnsupportedSyntax("unsupported loop iterator shape")
}

// resolveConcurrentIterator unwraps `concurrent(inner, N)`; N becomes
// the maximum concurrency, 0 meaning unbounded (spec.md §4.6.5 step 1,
// and §9's open-question resolution: missing concurrency is unbounded).
func (c *Compiler) resolveConcurrentIterator(call *hostlang.CallExpr, scope *register.Scope) (string, int, error) {
	if len(call.Args) < 1 {
		return "", 0, cerr.ArityMismatch("concurrent", 1, len(call.Args))
	}
	maxConcurrency := c.opts.DefaultMapConcurrency
	if len(call.Args) >= 2 {
		constant, ok := call.Args[1].(*hostlang.ConstExpr)
		if !ok {
			return "", 0, cerr.UnsupportedSyntax("concurrent() concurrency argument must be constant")
		}
		if n, ok := constant.Value.(float64); ok {
			maxConcurrency = int(n)
		}
	}

	inner := call.Args[0]
	path, _, err := c.resolveIterator(inner, scope)
	if err != nil {
		return "", 0, err
	}
	return path, maxConcurrency, nil
}

// emitIteratorIntrinsic precomputes an intrinsic call's result into a
// named scratch register slot (shared logic with lowerIntrinsicAssign,
// specialized for the iterator-resolution call site which does not need
// the resulting Pass chained into the surrounding statement sequence —
// callers consult scope for the scratch path and discard the node).
func (c *Compiler) emitIteratorIntrinsic(scratch string, call *hostlang.CallExpr, scope *register.Scope) (string, builder.SuccessorSink, error) {
	expr, err := c.intrinsicExpr(call, scope)
	if err != nil {
		return "", builder.SuccessorSink{}, err
	}
	node, sink := c.emitScratchPass("IterPrecompute", scratch, expr, scope)
	return node.ID, sink, nil
}

// lowerWithRetry compiles `with Retry(...): body` by compiling the body
// normally and attaching the parsed retry policy to every Task state
// emitted within it (spec.md §4.6.3, §4.6.4's retry-hook contract).
func (c *Compiler) lowerWithRetry(n *hostlang.WithRetryStmt, scope *register.Scope) (string, builder.SuccessorSink, error) {
	if n.Retry == nil {
		return "", builder.SuccessorSink{}, cerr.WithScopeMisuse("with block must wrap a single Retry(...) call")
	}

	before := len(c.b.Graph().Order())
	start, sink, err := c.lowerStmts(n.Body, scope)
	if err != nil {
		return "", builder.SuccessorSink{}, err
	}

	retrier := builder.Retrier{
		ErrorEquals:     n.Retry.Errors,
		IntervalSeconds: n.Retry.IntervalSecs,
		MaxAttempts:     n.Retry.MaxAttempts,
		BackoffRate:     n.Retry.BackoffRate,
	}
	attachRetryToNewTasks(c.b.Graph(), before, retrier)

	return start, sink, nil
}

// attachRetryToNewTasks attaches retrier to every Task-kind state added
// to g since the snapshot taken at `before` (spec.md §4.6.3: "attach the
// parsed retry policy to every body state that exposes a retry hook"),
// using insertion order to scope the attachment to just this block's
// states — so a second, independent `with Retry` block elsewhere in the
// same function is unaffected.
func attachRetryToNewTasks(g *builder.Graph, before int, retrier builder.Retrier) {
	for _, id := range newStateIDs(g, before) {
		node := g.States[id]
		if node.Kind == builder.KindTask {
			node.Retriers = append(node.Retriers, retrier)
		}
	}
}

// newStateIDs returns the IDs added to g at or after position before in
// insertion order.
func newStateIDs(g *builder.Graph, before int) []string {
	order := g.Order()
	if before >= len(order) {
		return nil
	}
	return order[before:]
}

// lowerTry lowers `try { body } catch (e) { handler }` (spec.md §4.6.6).
func (c *Compiler) lowerTry(n *hostlang.TryStmt, scope *register.Scope) (string, builder.SuccessorSink, error) {
	bodyScope := scope.Child()
	before := len(c.b.Graph().Order())
	bodyStart, bodySink, err := c.lowerStmts(n.Body, bodyScope)
	if err != nil {
		return "", builder.SuccessorSink{}, err
	}
	// Snapshot again right after the body but before the handler, so the
	// catcher attaches only to the try body's own states and not the
	// handler's (the handler is not itself guarded by its own catcher).
	bodyEnd := len(c.b.Graph().Order())

	handlerScope := scope.Child()
	resultPath := "$.error-info"
	if n.ExceptName != "" {
		resultPath = "$.register." + n.ExceptName
		handlerScope.Declare(n.ExceptName, "")
	}

	handlerStart, handlerSink, err := c.lowerStmts(n.ExceptBody, handlerScope)
	if err != nil {
		return "", builder.SuccessorSink{}, err
	}

	catcher := builder.Catcher{ErrorEquals: []string{"States.ALL"}, ResultPath: resultPath, Next: handlerStart}
	attachCatchToNewTasks(c.b.Graph(), before, bodyEnd, catcher)

	return bodyStart, builder.Merge(bodySink, handlerSink), nil
}

// attachCatchToNewTasks mirrors attachRetryToNewTasks for try/except
// blocks, scoping the catcher to only the states the try body emitted
// (the [before, bodyEnd) window), not the handler's own states.
func attachCatchToNewTasks(g *builder.Graph, before, bodyEnd int, catcher builder.Catcher) {
	order := g.Order()
	if bodyEnd > len(order) {
		bodyEnd = len(order)
	}
	for _, id := range order[before:bodyEnd] {
		node := g.States[id]
		if node.Kind == builder.KindTask {
			node.Catchers = append(node.Catchers, catcher)
		}
	}
}
