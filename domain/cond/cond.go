// Package cond lowers AST boolean expressions into SFN Choice
// conditions, including type-aware truthiness tests (spec.md §4.2).
package cond

import (
	"fmt"

	cerr "github.com/r3e-network/sfnc/infrastructure/errors"
	"github.com/r3e-network/sfnc/hostlang"
)

// Condition is a Choice predicate tree the builder API consumes, plus a
// human-readable label for diagnostics and snapshot readability.
type Condition struct {
	Kind  Kind
	Path  string      // register path this leaf tests, e.g. "$.register.a"
	Value interface{} // literal compared against, for comparison kinds
	Label string

	// All/Any hold sub-conditions for conjunction/disjunction kinds.
	All []Condition
	Any []Condition
}

// Kind enumerates the predicate leaf/combinator shapes the builder API
// exposes.
type Kind int

const (
	KindIsPresent Kind = iota
	KindIsNotNull
	KindIsBoolTrue
	KindIsStringNotEmpty
	KindIsNumberNotZero
	KindStringEquals
	KindNumberEquals
	KindNumberLessThan
	KindNumberGreaterThan
	KindIsString
	KindStringMatches
	KindAnd
	KindOr
)

// Build lowers an `if` test expression into a Condition. typeOf resolves
// the declared type of a name in scope ("bool", "str", "int", "float",
// or "" if unknown); it may be nil, in which case every name is treated
// as unknown.
func Build(test hostlang.Expr, typeOf func(name string) string) (Condition, error) {
	if typeOf == nil {
		typeOf = func(string) string { return "" }
	}

	switch n := test.(type) {
	case *hostlang.NameExpr:
		return truthiness(n.Name, typeOf(n.Name)), nil

	case *hostlang.SubscriptExpr:
		path, err := subscriptPath(n)
		if err != nil {
			return Condition{}, err
		}
		return truthinessAtPath(path, ""), nil

	case *hostlang.CompareExpr:
		return buildCompare(n)

	case *hostlang.MethodCallExpr:
		return buildStartsWith(n)

	default:
		return Condition{}, cerr.UnsupportedTest(fmt.Sprintf("%T", test))
	}
}

// truthiness builds the conjunction described in spec.md §4.2: is-present
// AND is-not-null AND (boolean-true OR non-empty-string OR non-zero-number
// OR first-element-present), narrowed to the declared type when known.
func truthiness(name, declaredType string) Condition {
	return truthinessAtPath("$.register."+name, declaredType)
}

// truthinessAtPath is truthiness's path-based core, reused by the
// SubscriptExpr case (cond.go's Build), which has a register path but no
// bare variable name and no declared type to narrow by.
func truthinessAtPath(path, declaredType string) Condition {
	present := Condition{Kind: KindIsPresent, Path: path, Label: path + " is present"}
	notNull := Condition{Kind: KindIsNotNull, Path: path, Label: path + " is not null"}

	var valueTest Condition
	switch declaredType {
	case "bool":
		valueTest = Condition{Kind: KindIsBoolTrue, Path: path, Label: path + " is true"}
	case "str":
		valueTest = Condition{Kind: KindIsStringNotEmpty, Path: path, Label: path + " is non-empty"}
	case "int", "float":
		valueTest = Condition{Kind: KindIsNumberNotZero, Path: path, Label: path + " is non-zero"}
	default:
		valueTest = Condition{
			Kind:  KindOr,
			Label: path + " is truthy",
			Any: []Condition{
				{Kind: KindIsBoolTrue, Path: path, Label: path + " is true"},
				{Kind: KindIsStringNotEmpty, Path: path, Label: path + " is non-empty string"},
				{Kind: KindIsNumberNotZero, Path: path, Label: path + " is non-zero number"},
				{Kind: KindIsPresent, Path: path + "[0]", Label: path + "[0] is present"},
			},
		}
	}

	return Condition{
		Kind:  KindAnd,
		Label: path + " is truthy",
		All:   []Condition{present, notNull, valueTest},
	}
}

func subscriptPath(n *hostlang.SubscriptExpr) (string, error) {
	base, ok := n.Base.(*hostlang.NameExpr)
	if !ok {
		return "", cerr.UnsupportedTest("subscript base must be a name")
	}
	key, ok := n.Key.(*hostlang.ConstExpr)
	if !ok {
		return "", cerr.UnsupportedTest("subscript key must be constant")
	}
	switch k := key.Value.(type) {
	case float64:
		return fmt.Sprintf("$.register.%s[%d]", base.Name, int(k)), nil
	case string:
		return fmt.Sprintf("$.register.%s.%s", base.Name, k), nil
	default:
		return "", cerr.UnsupportedTest("unsupported subscript key type")
	}
}

func buildCompare(n *hostlang.CompareExpr) (Condition, error) {
	name, ok := n.Left.(*hostlang.NameExpr)
	if !ok {
		return Condition{}, cerr.UnsupportedTest("comparison left side must be a name")
	}
	constant, ok := n.Right.(*hostlang.ConstExpr)
	if !ok {
		return Condition{}, cerr.UnsupportedTest("comparison right side must be constant")
	}
	path := "$.register." + name.Name

	switch v := constant.Value.(type) {
	case string:
		if n.Op != "==" {
			return Condition{}, cerr.UnsupportedTest("string comparison only supports ==")
		}
		return Condition{Kind: KindStringEquals, Path: path, Value: v, Label: fmt.Sprintf("%s == %q", path, v)}, nil

	case float64:
		switch n.Op {
		case "==":
			return Condition{Kind: KindNumberEquals, Path: path, Value: v, Label: fmt.Sprintf("%s == %v", path, v)}, nil
		case "<":
			return Condition{Kind: KindNumberLessThan, Path: path, Value: v, Label: fmt.Sprintf("%s < %v", path, v)}, nil
		case ">":
			return Condition{Kind: KindNumberGreaterThan, Path: path, Value: v, Label: fmt.Sprintf("%s > %v", path, v)}, nil
		default:
			return Condition{}, cerr.UnsupportedTest("unsupported numeric comparison operator")
		}

	default:
		return Condition{}, cerr.UnsupportedTest("unsupported comparison constant type")
	}
}

func buildStartsWith(n *hostlang.MethodCallExpr) (Condition, error) {
	if n.Method != "startswith" && n.Method != "startsWith" {
		return Condition{}, cerr.UnsupportedTest("unsupported method call in condition")
	}
	name, ok := n.Receiver.(*hostlang.NameExpr)
	if !ok {
		return Condition{}, cerr.UnsupportedTest("startswith receiver must be a name")
	}
	if len(n.Args) != 1 {
		return Condition{}, cerr.UnsupportedTest("startswith takes exactly one argument")
	}
	constant, ok := n.Args[0].(*hostlang.ConstExpr)
	if !ok {
		return Condition{}, cerr.UnsupportedTest("startswith argument must be constant")
	}
	prefix, ok := constant.Value.(string)
	if !ok {
		return Condition{}, cerr.UnsupportedTest("startswith argument must be a string")
	}

	path := "$.register." + name.Name
	return Condition{
		Kind:  KindAnd,
		Label: fmt.Sprintf("%s startswith %q", path, prefix),
		All: []Condition{
			{Kind: KindIsPresent, Path: path, Label: path + " is present"},
			{Kind: KindIsString, Path: path, Label: path + " is string"},
			{Kind: KindStringMatches, Path: path, Value: prefix + "*", Label: path + " matches " + prefix + "*"},
		},
	}, nil
}
