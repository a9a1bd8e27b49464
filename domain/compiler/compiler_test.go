package compiler

import (
	"testing"

	"github.com/r3e-network/sfnc/domain/attrs"
	"github.com/r3e-network/sfnc/domain/builder"
	"github.com/r3e-network/sfnc/domain/units"
	"github.com/r3e-network/sfnc/hostlang"
	cerr "github.com/r3e-network/sfnc/infrastructure/errors"
)

// walk collects every state reachable from start, following Next,
// Choices/Default, and each Catcher's Next, so tests can make assertions
// without hardcoding generated IDs. A Map node's nested Iterator graph is
// not entered.
func walk(g *builder.Graph, start string) map[string]*builder.Node {
	out := make(map[string]*builder.Node)
	var visit func(id string)
	visit = func(id string) {
		if id == "" {
			return
		}
		if _, seen := out[id]; seen {
			return
		}
		n, ok := g.States[id]
		if !ok {
			return
		}
		out[id] = n
		visit(n.Next)
		for _, r := range n.Choices {
			visit(r.Next)
		}
		visit(n.Default)
		for _, c := range n.Catchers {
			visit(c.Next)
		}
	}
	visit(start)
	return out
}

func findByKind(nodes map[string]*builder.Node, kind builder.NodeKind) []*builder.Node {
	var out []*builder.Node
	for _, n := range nodes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func mustCompile(t *testing.T, fn *hostlang.FuncDecl, a attrs.Attrs, symbols map[string]units.CallableRef, opts Options) *Result {
	t.Helper()
	if symbols == nil {
		symbols = map[string]units.CallableRef{}
	}
	c := New(symbols, opts)
	res, err := c.Compile(fn, a)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return res
}

// S1: x = const; return x under a single-field schema.
func TestCompileAssignConstAndReturn(t *testing.T) {
	fn := &hostlang.FuncDecl{
		Name: "f",
		Body: []hostlang.Stmt{
			&hostlang.AssignStmt{Target: "x", Value: &hostlang.ConstExpr{Value: 42.0}},
			&hostlang.ReturnStmt{Values: []hostlang.Expr{&hostlang.NameExpr{Name: "x"}}},
		},
	}
	res := mustCompile(t, fn, attrs.Attrs{Name: "f", ReturnFields: []string{"result"}}, nil, Options{})

	nodes := walk(res.Graph, res.StartAt)
	var terminal *builder.Node
	for _, n := range nodes {
		if n.End {
			terminal = n
		}
	}
	if terminal == nil {
		t.Fatalf("no terminal (End) state reachable from %q", res.StartAt)
	}
	if got := terminal.Parameters["result.$"]; got != "$.register.x" {
		t.Errorf("terminal Parameters[result.$] = %v, want $.register.x", got)
	}
}

// No declared output schema and no return statement: the machine falls
// off the end into a trivial, terminal Pass.
func TestCompileNoReturnValueEndsOnTrivialPass(t *testing.T) {
	fn := &hostlang.FuncDecl{
		Name: "f",
		Body: []hostlang.Stmt{
			&hostlang.AssignStmt{Target: "x", Value: &hostlang.ConstExpr{Value: 1.0}},
		},
	}
	res := mustCompile(t, fn, attrs.Attrs{Name: "f"}, nil, Options{})

	nodes := walk(res.Graph, res.StartAt)
	found := false
	for _, n := range nodes {
		if n.End {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a terminal End state, found none among %d states", len(nodes))
	}
}

// return with an explicit empty schema but a non-empty value list is an
// arity mismatch.
func TestCompileReturnArityMismatchNoSchema(t *testing.T) {
	fn := &hostlang.FuncDecl{
		Name: "f",
		Body: []hostlang.Stmt{
			&hostlang.ReturnStmt{Values: []hostlang.Expr{&hostlang.ConstExpr{Value: 1.0}}},
		},
	}
	c := New(map[string]units.CallableRef{}, Options{})
	_, err := c.Compile(fn, attrs.Attrs{Name: "f"})
	if !cerr.IsCompileError(err) {
		t.Fatalf("expected a CompileError, got %v", err)
	}
}

// N-field schema: return value count must match schema length exactly.
func TestCompileReturnArityMismatchWrongCount(t *testing.T) {
	fn := &hostlang.FuncDecl{
		Name: "f",
		Body: []hostlang.Stmt{
			&hostlang.AssignStmt{Target: "a", Value: &hostlang.ConstExpr{Value: 1.0}},
			&hostlang.ReturnStmt{Values: []hostlang.Expr{&hostlang.NameExpr{Name: "a"}}},
		},
	}
	c := New(map[string]units.CallableRef{}, Options{})
	_, err := c.Compile(fn, attrs.Attrs{Name: "f", ReturnFields: []string{"a", "b"}})
	if !cerr.IsCompileError(err) {
		t.Fatalf("expected a CompileError, got %v", err)
	}
}

// N-field return binds each tuple element to its declared schema field.
func TestCompileReturnNFieldSchema(t *testing.T) {
	fn := &hostlang.FuncDecl{
		Name: "f",
		Body: []hostlang.Stmt{
			&hostlang.AssignStmt{Target: "a", Value: &hostlang.ConstExpr{Value: 1.0}},
			&hostlang.AssignStmt{Target: "b", Value: &hostlang.ConstExpr{Value: "two"}},
			&hostlang.ReturnStmt{Values: []hostlang.Expr{&hostlang.NameExpr{Name: "a"}, &hostlang.NameExpr{Name: "b"}}},
		},
	}
	res := mustCompile(t, fn, attrs.Attrs{Name: "f", ReturnFields: []string{"first", "second"}}, nil, Options{})

	nodes := walk(res.Graph, res.StartAt)
	var terminal *builder.Node
	for _, n := range nodes {
		if n.End {
			terminal = n
		}
	}
	if terminal == nil {
		t.Fatalf("no terminal state found")
	}
	if terminal.Parameters["first.$"] != "$.register.a" {
		t.Errorf("first.$ = %v, want $.register.a", terminal.Parameters["first.$"])
	}
	if terminal.Parameters["second.$"] != "$.register.b" {
		t.Errorf("second.$ = %v, want $.register.b", terminal.Parameters["second.$"])
	}
}

// P6: a variable declared only inside an if-branch (no else) must not
// leak into the scope used to compile statements after the if.
func TestIfWithoutElseDoesNotLeakBranchVariable(t *testing.T) {
	fn := &hostlang.FuncDecl{
		Name: "f",
		Body: []hostlang.Stmt{
			&hostlang.IfStmt{
				Test: &hostlang.NameExpr{Name: "flag"},
				Then: []hostlang.Stmt{
					&hostlang.AssignStmt{Target: "y", Value: &hostlang.ConstExpr{Value: 1.0}},
				},
			},
			// y was only ever declared in the Then branch's child scope.
			&hostlang.AssignStmt{Target: "z", Value: &hostlang.NameExpr{Name: "y"}},
		},
	}
	c := New(map[string]units.CallableRef{}, Options{})
	_, err := c.Compile(fn, attrs.Attrs{
		Name:     "f",
		Required: []hostlang.Param{{Name: "flag", Type: "bool"}},
	})
	if !cerr.IsCompileError(err) {
		t.Fatalf("expected scope-isolation compile error, got %v", err)
	}
}

// P1 sanity: a for-loop emits a Map node carrying its own self-contained
// iterator graph, whose StartAt names one of its own states.
func TestForLoopEmitsMapWithIteratorGraph(t *testing.T) {
	fn := &hostlang.FuncDecl{
		Name: "f",
		Body: []hostlang.Stmt{
			&hostlang.ForStmt{
				Target: "item",
				Iter:   &hostlang.NameExpr{Name: "items"},
				Body: []hostlang.Stmt{
					&hostlang.AssignStmt{Target: "item", Value: &hostlang.ConstExpr{Value: "touched"}},
				},
			},
		},
	}
	res := mustCompile(t, fn, attrs.Attrs{
		Name:     "f",
		Required: []hostlang.Param{{Name: "items", Type: ""}},
	}, nil, Options{})

	nodes := walk(res.Graph, res.StartAt)
	maps := findByKind(nodes, builder.KindMap)
	if len(maps) != 1 {
		t.Fatalf("expected exactly one Map node, got %d", len(maps))
	}
	m := maps[0]
	if m.Iterator == nil || m.Iterator.StartAt == "" {
		t.Fatalf("Map node missing a populated Iterator graph")
	}
	if _, ok := m.Iterator.States[m.Iterator.StartAt]; !ok {
		t.Fatalf("Map iterator StartAt %q not present among its own states", m.Iterator.StartAt)
	}
	if m.ItemsPath != "$.register.items" {
		t.Errorf("ItemsPath = %q, want $.register.items", m.ItemsPath)
	}
}

// list.append(x) must lower to a construct-then-flatten pair: a scratch
// Pass nesting [list, [x]] outside the register, then a Pass flattening
// that nested scratch value back onto the register via a bare
// "<scratch>.arrayConcat[*][*]" path reference (spec.md §4.6.3). The
// nested States.Array(...) call must never embed the flatten path as an
// intrinsic argument — that evaluates to the array as a single value,
// not a spread of its elements.
func TestListAppendEmitsConstructThenFlattenPasses(t *testing.T) {
	fn := &hostlang.FuncDecl{
		Name: "f",
		Body: []hostlang.Stmt{
			&hostlang.AssignStmt{Target: "items", Value: &hostlang.ListExpr{}},
			&hostlang.AppendStmt{List: "items", Value: &hostlang.ConstExpr{Value: "x"}},
		},
	}
	res := mustCompile(t, fn, attrs.Attrs{Name: "f"}, nil, Options{})

	nodes := walk(res.Graph, res.StartAt)
	var nest, flatten *builder.Node
	for _, n := range nodes {
		if n.Kind != builder.KindPass {
			continue
		}
		if _, ok := n.Parameters["arrayConcat.$"]; ok {
			nest = n
		}
		if _, ok := n.Parameters["items.$"]; ok {
			if v, _ := n.Parameters["items.$"].(string); v != "" {
				flatten = n
			}
		}
	}
	if nest == nil {
		t.Fatalf("expected a Pass building arrayConcat, nodes = %+v", nodes)
	}
	if nest.ResultPath == "$.register" || nest.ResultPath == "" {
		t.Fatalf("arrayConcat scratch Pass must not write directly onto the register, got ResultPath %q", nest.ResultPath)
	}
	nestExpr, _ := nest.Parameters["arrayConcat.$"].(string)
	if nestExpr != "States.Array($.register.items, States.Array(x))" {
		t.Errorf("arrayConcat expr = %q, want a nested States.Array(list, States.Array(value)) call", nestExpr)
	}

	if flatten == nil {
		t.Fatalf("expected a Pass flattening arrayConcat back onto register.items, nodes = %+v", nodes)
	}
	flattenExpr, _ := flatten.Parameters["items.$"].(string)
	wantSuffix := ".arrayConcat[*][*]"
	if len(flattenExpr) < len(wantSuffix) || flattenExpr[len(flattenExpr)-len(wantSuffix):] != wantSuffix {
		t.Errorf("flatten expr = %q, want suffix %q (bare path, not a States.Array argument)", flattenExpr, wantSuffix)
	}
	if flatten.ResultPath != "$.register" {
		t.Errorf("flatten ResultPath = %q, want $.register", flatten.ResultPath)
	}
}

// with Retry(...) attaches a retrier only to Task states emitted inside
// its own body, not to Task states from an earlier, independent
// with-Retry block in the same function.
func TestWithRetryScopesToItsOwnBlock(t *testing.T) {
	symbols := map[string]units.CallableRef{
		"unitA": &units.ComputeUnitRef{Name: "unitA", Outputs: []units.OutputField{{Name: "out"}}},
		"unitB": &units.ComputeUnitRef{Name: "unitB", Outputs: []units.OutputField{{Name: "out"}}},
	}
	retrySpec := &hostlang.RetrySpec{Errors: []string{"States.ALL"}, IntervalSecs: 1, MaxAttempts: 3, BackoffRate: 2}

	fn := &hostlang.FuncDecl{
		Name: "f",
		Body: []hostlang.Stmt{
			&hostlang.WithRetryStmt{
				Retry: retrySpec,
				Body: []hostlang.Stmt{
					&hostlang.MultiAssignCallStmt{
						Targets: []string{"a"},
						Call:    &hostlang.CallExpr{Callee: &hostlang.NameExpr{Name: "unitA"}},
					},
				},
			},
			&hostlang.MultiAssignCallStmt{
				Targets: []string{"b"},
				Call:    &hostlang.CallExpr{Callee: &hostlang.NameExpr{Name: "unitB"}},
			},
		},
	}
	res := mustCompile(t, fn, attrs.Attrs{Name: "f"}, symbols, Options{})

	nodes := walk(res.Graph, res.StartAt)
	tasks := findByKind(nodes, builder.KindTask)
	if len(tasks) != 2 {
		t.Fatalf("expected 2 Task states, got %d", len(tasks))
	}
	var retried, unretried int
	for _, task := range tasks {
		switch len(task.Retriers) {
		case 0:
			unretried++
		case 1:
			retried++
		default:
			t.Errorf("task %s has %d retriers, want 0 or 1", task.ID, len(task.Retriers))
		}
	}
	if retried != 1 || unretried != 1 {
		t.Errorf("retried=%d unretried=%d, want exactly one of each", retried, unretried)
	}
}

// try/except attaches a catcher only to states emitted within the try
// body, not to the handler body's own states.
func TestTryExceptDoesNotCatchHandlerStates(t *testing.T) {
	symbols := map[string]units.CallableRef{
		"risky":    &units.ComputeUnitRef{Name: "risky", Outputs: []units.OutputField{{Name: "out"}}},
		"fallback": &units.ComputeUnitRef{Name: "fallback", Outputs: []units.OutputField{{Name: "out"}}},
	}
	fn := &hostlang.FuncDecl{
		Name: "f",
		Body: []hostlang.Stmt{
			&hostlang.TryStmt{
				Body: []hostlang.Stmt{
					&hostlang.MultiAssignCallStmt{
						Targets: []string{"a"},
						Call:    &hostlang.CallExpr{Callee: &hostlang.NameExpr{Name: "risky"}},
					},
				},
				ExceptName: "err",
				ExceptBody: []hostlang.Stmt{
					&hostlang.MultiAssignCallStmt{
						Targets: []string{"b"},
						Call:    &hostlang.CallExpr{Callee: &hostlang.NameExpr{Name: "fallback"}},
					},
				},
			},
		},
	}
	res := mustCompile(t, fn, attrs.Attrs{Name: "f"}, symbols, Options{})

	nodes := walk(res.Graph, res.StartAt)
	tasks := findByKind(nodes, builder.KindTask)
	if len(tasks) != 2 {
		t.Fatalf("expected 2 Task states, got %d", len(tasks))
	}
	var caught, uncaught int
	for _, task := range tasks {
		switch len(task.Catchers) {
		case 0:
			uncaught++
		case 1:
			caught++
		default:
			t.Errorf("task %s has %d catchers, want 0 or 1", task.ID, len(task.Catchers))
		}
	}
	if caught != 1 || uncaught != 1 {
		t.Errorf("caught=%d uncaught=%d, want exactly one of each", caught, uncaught)
	}
}

// P2: an index-assignment's merge Pass must carry forward every other
// register variable already known to scope, not just the mutated key.
func TestIndexAssignPreservesOtherRegisterVars(t *testing.T) {
	fn := &hostlang.FuncDecl{
		Name: "f",
		Body: []hostlang.Stmt{
			&hostlang.AssignStmt{Target: "obj", Value: &hostlang.DictExpr{}},
			&hostlang.AssignStmt{Target: "other", Value: &hostlang.ConstExpr{Value: "untouched"}},
			&hostlang.IndexAssignStmt{Target: "obj", Key: &hostlang.ConstExpr{Value: "k"}, Value: &hostlang.ConstExpr{Value: "v"}},
			&hostlang.ReturnStmt{Values: []hostlang.Expr{&hostlang.NameExpr{Name: "other"}}},
		},
	}
	res := mustCompile(t, fn, attrs.Attrs{Name: "f", ReturnFields: []string{"result"}}, nil, Options{})

	nodes := walk(res.Graph, res.StartAt)
	var mergeNode *builder.Node
	for _, n := range nodes {
		if n.Label != "" && len(n.Label) >= 10 && n.Label[:10] == "IndexMerge" {
			mergeNode = n
		}
	}
	if mergeNode == nil {
		t.Fatalf("no IndexMerge Pass found among %d states", len(nodes))
	}
	if _, ok := mergeNode.Parameters["other.$"]; !ok {
		t.Errorf("IndexMerge Pass dropped the untouched 'other' register variable: %v", mergeNode.Parameters)
	}
}
