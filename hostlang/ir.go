// Package hostlang defines a small intermediate representation for the
// subset of the host language (a documented subset of JavaScript) that
// the compiler accepts, plus a converter that lowers a parsed
// github.com/dop251/goja AST into this IR.
//
// The compiler core never touches goja's AST types directly: isolating
// the conversion here means a change in goja's exact node shapes only
// ever requires editing fromjs.go, not domain/compiler.
package hostlang

// Program is a single parsed source file, expected to declare exactly
// one top-level function.
type Program struct {
	Func *FuncDecl
}

// Param is a required positional parameter.
type Param struct {
	Name string
	Type string // "bool", "str", "int", "float", or "" if undeclared
}

// OptParam is an optional parameter with a literal default.
type OptParam struct {
	Name    string
	Type    string
	Default *ConstExpr
}

// FuncDecl is the one top-level function a source file may declare.
type FuncDecl struct {
	Name         string
	Params       []Param
	Optional     []OptParam
	ReturnFields []string // declared output schema, in order; empty if none declared
	Body         []Stmt
}

// Stmt is one statement-level node in the accepted subset.
type Stmt interface{ stmtNode() }

// AssignStmt is `x = expr` (or an annotated assignment with a constant).
type AssignStmt struct {
	Target string
	Value  Expr
}

func (*AssignStmt) stmtNode() {}

// IndexAssignStmt is `x[k] = expr`.
type IndexAssignStmt struct {
	Target string
	Key    Expr
	Value  Expr
}

func (*IndexAssignStmt) stmtNode() {}

// MultiAssignCallStmt is `x, y, ... = call(...)`.
type MultiAssignCallStmt struct {
	Targets []string
	Call    *CallExpr
}

func (*MultiAssignCallStmt) stmtNode() {}

// ExprStmt is a bare call used as a statement, its result discarded.
type ExprStmt struct {
	Call *CallExpr
}

func (*ExprStmt) stmtNode() {}

// AppendStmt is `list.append(x)` (lowered from JS `list.push(x)`).
type AppendStmt struct {
	List  string
	Value Expr
}

func (*AppendStmt) stmtNode() {}

// AugAssignStmt is `x += const` / `x -= const`.
type AugAssignStmt struct {
	Target string
	Op     string // "+" or "-"
	Value  Expr
}

func (*AugAssignStmt) stmtNode() {}

// IfStmt is `if (test) { ... } else { ... }`.
type IfStmt struct {
	Test Expr
	Then []Stmt
	Else []Stmt
}

func (*IfStmt) stmtNode() {}

// ForStmt is `for (const t of iter) { ... }`.
type ForStmt struct {
	Target string
	Iter   Expr
	Body   []Stmt
}

func (*ForStmt) stmtNode() {}

// ListCompStmt is `target = iter.map(t => expr)`, the JS analog of a
// list comprehension, assigned to Target.
type ListCompStmt struct {
	Target     string
	ElemTarget string
	Iter       Expr
	Elem       Expr
}

func (*ListCompStmt) stmtNode() {}

// RetrySpec is the parsed argument list of a `retry(...)` wrapper call.
type RetrySpec struct {
	Errors       []string
	IntervalSecs float64
	MaxAttempts  int
	BackoffRate  float64
}

// WithRetryStmt is `withRetry({...}, () => { body })`. The JS converter
// in fromjs.go does not produce this node; only IR built directly
// carries it.
type WithRetryStmt struct {
	Retry *RetrySpec
	Body  []Stmt
}

func (*WithRetryStmt) stmtNode() {}

// TryStmt is `try { body } catch (e) { handler }`. ExceptName is empty
// when the catch clause binds no identifier.
type TryStmt struct {
	Body        []Stmt
	ExceptName  string
	ExceptBody  []Stmt
}

func (*TryStmt) stmtNode() {}

// ReturnStmt is `return ...`.
type ReturnStmt struct {
	Values []Expr
}

func (*ReturnStmt) stmtNode() {}

// PassStmt is an explicit no-op statement (an empty JS statement `;`).
type PassStmt struct{}

func (*PassStmt) stmtNode() {}

// Expr is one expression-level node in the accepted subset.
type Expr interface{ exprNode() }

// NameExpr references a variable or callable by name.
type NameExpr struct {
	Name string
}

func (*NameExpr) exprNode() {}

// ConstExpr is a literal value. A nil Value represents the host
// language's null/None.
type ConstExpr struct {
	Value interface{}
}

func (*ConstExpr) exprNode() {}

// ListExpr is an array literal.
type ListExpr struct {
	Elems []Expr
}

func (*ListExpr) exprNode() {}

// DictExpr is an object literal with constant (string) keys.
type DictExpr struct {
	Keys   []string
	Values []Expr
}

func (*DictExpr) exprNode() {}

// SubscriptExpr is `base[key]`.
type SubscriptExpr struct {
	Base Expr
	Key  Expr
}

func (*SubscriptExpr) exprNode() {}

// AttrExpr is `base.attr`, including `self.x` (the enclosing stack
// object) and JSON-path-symbol attribute chains.
type AttrExpr struct {
	Base Expr
	Attr string
}

func (*AttrExpr) exprNode() {}

// CallExpr is `callee(args...)`. Kwargs holds keyword arguments bound by
// name (JS object-literal-as-last-argument convention); Args holds
// positional arguments.
type CallExpr struct {
	Callee Expr
	Args   []Expr
	Kwargs map[string]Expr
}

func (*CallExpr) exprNode() {}

// CompareExpr is `left op right` for op in {"==", "<", ">"}.
type CompareExpr struct {
	Left  Expr
	Op    string
	Right Expr
}

func (*CompareExpr) exprNode() {}

// MethodCallExpr is `receiver.method(args...)`, used for the
// `name.startswith(const)` condition form.
type MethodCallExpr struct {
	Receiver Expr
	Method   string
	Args     []Expr
}

func (*MethodCallExpr) exprNode() {}

// SelfExpr is a bare reference to the enclosing stack object (`this` in
// the host language), resolved at compile time rather than through the
// register.
type SelfExpr struct{}

func (*SelfExpr) exprNode() {}
