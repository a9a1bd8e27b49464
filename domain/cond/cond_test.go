package cond

import (
	"testing"

	"github.com/r3e-network/sfnc/hostlang"
)

func TestBuildBareNameTruthinessUnknownType(t *testing.T) {
	c, err := Build(&hostlang.NameExpr{Name: "a"}, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if c.Kind != KindAnd || len(c.All) != 3 {
		t.Fatalf("expected 3-way conjunction, got %+v", c)
	}
	if c.All[2].Kind != KindOr {
		t.Errorf("expected unknown-type value test to be a disjunction, got %+v", c.All[2])
	}
}

func TestBuildBareNameTruthinessBoolType(t *testing.T) {
	c, err := Build(&hostlang.NameExpr{Name: "opt"}, func(name string) string { return "bool" })
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if c.All[2].Kind != KindIsBoolTrue {
		t.Errorf("expected narrowed bool test, got %+v", c.All[2])
	}
}

func TestBuildCompareString(t *testing.T) {
	test := &hostlang.CompareExpr{
		Left:  &hostlang.NameExpr{Name: "mode"},
		Op:    "==",
		Right: &hostlang.ConstExpr{Value: "fast"},
	}
	c, err := Build(test, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if c.Kind != KindStringEquals || c.Path != "$.register.mode" || c.Value != "fast" {
		t.Errorf("unexpected condition: %+v", c)
	}
}

func TestBuildCompareNumberLessThan(t *testing.T) {
	test := &hostlang.CompareExpr{
		Left:  &hostlang.NameExpr{Name: "secs"},
		Op:    "<",
		Right: &hostlang.ConstExpr{Value: float64(10)},
	}
	c, err := Build(test, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if c.Kind != KindNumberLessThan {
		t.Errorf("Kind = %v, want KindNumberLessThan", c.Kind)
	}
}

func TestBuildCompareUnsupportedOperatorPair(t *testing.T) {
	test := &hostlang.CompareExpr{
		Left:  &hostlang.NameExpr{Name: "mode"},
		Op:    "<",
		Right: &hostlang.ConstExpr{Value: "fast"},
	}
	if _, err := Build(test, nil); err == nil {
		t.Fatal("expected error for string < comparison")
	}
}

func TestBuildStartsWith(t *testing.T) {
	test := &hostlang.MethodCallExpr{
		Receiver: &hostlang.NameExpr{Name: "uri"},
		Method:   "startswith",
		Args:     []hostlang.Expr{&hostlang.ConstExpr{Value: "s3://"}},
	}
	c, err := Build(test, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if c.Kind != KindAnd || len(c.All) != 3 {
		t.Fatalf("expected 3-way conjunction, got %+v", c)
	}
	if c.All[2].Kind != KindStringMatches || c.All[2].Value != "s3://*" {
		t.Errorf("unexpected match leaf: %+v", c.All[2])
	}
}

func TestBuildSubscriptConstantIndex(t *testing.T) {
	test := &hostlang.SubscriptExpr{
		Base: &hostlang.NameExpr{Name: "lst"},
		Key:  &hostlang.ConstExpr{Value: float64(0)},
	}
	c, err := Build(test, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if c.Kind != KindAnd {
		t.Fatalf("expected conjunction with null-check, got %+v", c)
	}
	if c.All[0].Path != "$.register.lst[0]" {
		t.Errorf("Path = %q, want $.register.lst[0]", c.All[0].Path)
	}
}

// A subscript test must use the same full truthiness disjunction as a
// bare name, not just present-and-not-null: `if (x["k"])` on a
// falsy-but-non-null value (0, "", false) must take the else branch.
func TestBuildSubscriptFullTruthinessConjunction(t *testing.T) {
	test := &hostlang.SubscriptExpr{
		Base: &hostlang.NameExpr{Name: "x"},
		Key:  &hostlang.ConstExpr{Value: "k"},
	}
	c, err := Build(test, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if c.Kind != KindAnd || len(c.All) != 3 {
		t.Fatalf("expected 3-way conjunction (present, not-null, value-test), got %+v", c)
	}
	if c.All[2].Kind != KindOr {
		t.Fatalf("expected value test to be the full truthy disjunction, got %+v", c.All[2])
	}
	wantPath := "$.register.x.k"
	for _, leaf := range []Condition{c.All[0], c.All[1]} {
		if leaf.Path != wantPath {
			t.Errorf("leaf path = %q, want %q", leaf.Path, wantPath)
		}
	}
}

func TestBuildUnsupportedShape(t *testing.T) {
	if _, err := Build(&hostlang.ConstExpr{Value: true}, nil); err == nil {
		t.Fatal("expected unsupported-test error for bare constant")
	}
}
