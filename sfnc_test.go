package sfnc

import (
	"context"
	"testing"

	"github.com/r3e-network/sfnc/domain/serializer"
	"github.com/r3e-network/sfnc/domain/units"
)

type fakeStack struct {
	deployed map[string]*serializer.Document
}

func newFakeStack() *fakeStack {
	return &fakeStack{deployed: make(map[string]*serializer.Document)}
}

func (f *fakeStack) Deploy(ctx context.Context, name string, def *serializer.Document, express bool) (string, error) {
	f.deployed[name] = def
	return "arn:aws:states:local:construct/" + name, nil
}

const orderSource = `
function placeOrder(accountId, amount) {
	return accountId;
}
`

func TestDecorateCompilesDeploysAndRegisters(t *testing.T) {
	stack := newFakeStack()
	d := New(stack, map[string]units.CallableRef{})

	handle, err := d.Decorate(context.Background(), Spec{
		MachineName:  "placeOrder",
		Filename:     "placeOrder.js",
		Source:       orderSource,
		ReturnSchema: []string{"accountId"},
	})
	if err != nil {
		t.Fatalf("Decorate: %v", err)
	}
	if handle.ConstructID == "" {
		t.Errorf("expected a non-empty construct ID")
	}
	if len(handle.Params) != 2 {
		t.Errorf("Params = %+v, want 2 entries (accountId, amount)", handle.Params)
	}
	if _, ok := stack.deployed["placeOrder"]; !ok {
		t.Errorf("expected the stack to have received a Deploy call for placeOrder")
	}
}

func TestDecorateRegistersNestedCallTarget(t *testing.T) {
	stack := newFakeStack()
	symbols := map[string]units.CallableRef{}
	d := New(stack, symbols)

	_, err := d.Decorate(context.Background(), Spec{
		MachineName:  "placeOrder",
		Filename:     "placeOrder.js",
		Source:       orderSource,
		ReturnSchema: []string{"accountId"},
	})
	if err != nil {
		t.Fatalf("Decorate: %v", err)
	}

	ref, ok := symbols["placeOrder"]
	if !ok {
		t.Fatalf("expected placeOrder to be registered as a nested call target")
	}
	if _, ok := ref.(*units.StateMachineRef); !ok {
		t.Errorf("ref = %T, want *units.StateMachineRef", ref)
	}
}

func TestDecorateRegistersNestedCallTargetWithParamsForSubsequentCalls(t *testing.T) {
	stack := newFakeStack()
	symbols := map[string]units.CallableRef{}
	d := New(stack, symbols)

	_, err := d.Decorate(context.Background(), Spec{
		MachineName:  "placeOrder",
		Filename:     "placeOrder.js",
		Source:       orderSource,
		ReturnSchema: []string{"accountId"},
	})
	if err != nil {
		t.Fatalf("Decorate: %v", err)
	}

	ref, ok := symbols["placeOrder"].(*units.StateMachineRef)
	if !ok {
		t.Fatalf("expected placeOrder to be registered as a *units.StateMachineRef")
	}
	if len(ref.Params) != 2 {
		t.Fatalf("ref.Params = %+v, want 2 entries (accountId, amount) so a nested call can bind arguments", ref.Params)
	}

	const callerSource = `
	function summarize(customerId, total) {
		result = placeOrder(customerId, total);
		return result;
	}
	`
	_, err = d.Decorate(context.Background(), Spec{
		MachineName:  "summarize",
		Filename:     "summarize.js",
		Source:       callerSource,
		ReturnSchema: []string{"result"},
	})
	if err != nil {
		t.Fatalf("Decorate of the caller failed: %v (a same-process nested call into a parameterized machine must not throw ArityMismatch)", err)
	}
}

func TestResolveReturnsPreviouslyDecoratedHandle(t *testing.T) {
	stack := newFakeStack()
	d := New(stack, map[string]units.CallableRef{})

	_, err := d.Decorate(context.Background(), Spec{
		MachineName:  "placeOrder",
		Filename:     "placeOrder.js",
		Source:       orderSource,
		ReturnSchema: []string{"accountId"},
	})
	if err != nil {
		t.Fatalf("Decorate: %v", err)
	}

	handle, err := d.Resolve(context.Background(), "placeOrder")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if handle.Name != "placeOrder" {
		t.Errorf("Name = %q, want placeOrder", handle.Name)
	}
	if len(handle.ReturnSchema) != 1 || handle.ReturnSchema[0] != "accountId" {
		t.Errorf("ReturnSchema = %v, want [accountId]", handle.ReturnSchema)
	}
}

func TestResolveUnknownNameFails(t *testing.T) {
	stack := newFakeStack()
	d := New(stack, map[string]units.CallableRef{})

	if _, err := d.Resolve(context.Background(), "nope"); err == nil {
		t.Errorf("expected an error resolving an unregistered machine")
	}
}
