// Package sfnc is the public entry point: a decorator factory that
// turns one host-language source function into a deployed
// Step-Functions-style state machine (spec.md §4.8 "State-machine
// decorator glue").
//
// A Decorator is built once per target stack and reused across however
// many functions that stack declares; each call to Decorate compiles
// one function, hands the resulting definition to the stack to deploy,
// and records the deployed handle so a later Decorate on a different
// function can resolve it as a nested StateMachineRef call target.
package sfnc

import (
	"context"
	"time"

	"github.com/r3e-network/sfnc/domain/attrs"
	"github.com/r3e-network/sfnc/domain/compiler"
	"github.com/r3e-network/sfnc/domain/serializer"
	"github.com/r3e-network/sfnc/domain/units"
	"github.com/r3e-network/sfnc/hostlang"
	cerr "github.com/r3e-network/sfnc/infrastructure/errors"
	"github.com/r3e-network/sfnc/infrastructure/registrystore"
)

// StackHandle is the opaque deployed-infrastructure handle the
// decorator targets — the real CDK stack a production binding would
// pass in. Deploy receives the rendered ASL document for one machine
// and returns the construct ID of the state machine it created.
type StackHandle interface {
	Deploy(ctx context.Context, machineName string, def *serializer.Document, express bool) (constructID string, err error)
}

// Decorator is parameterized once per stack (spec.md §4.8: "(stack
// handle, machine name, lexical environment snapshot, express flag,
// skip-empty-pass flag, optional return schema)" — the per-function
// parameters of that list are supplied to Decorate, the stack-wide ones
// here).
type Decorator struct {
	stack    StackHandle
	registry registrystore.Store
	symbols  map[string]units.CallableRef
}

// Option configures a Decorator at construction time.
type Option func(*Decorator)

// WithRegistry overrides the construct-registry store used to persist
// and resolve deployed machine handles. Defaults to an in-memory store,
// suitable for a single-process CLI run or a test.
func WithRegistry(store registrystore.Store) Option {
	return func(d *Decorator) { d.registry = store }
}

// New returns a Decorator bound to stack, resolving nested call targets
// against symbols (spec.md §9: the compiler "never reaches into the
// host language's frame").
func New(stack StackHandle, symbols map[string]units.CallableRef, opts ...Option) *Decorator {
	d := &Decorator{
		stack:    stack,
		registry: registrystore.NewMemoryStore(),
		symbols:  symbols,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Spec is the per-function configuration a decorator application
// supplies (spec.md §4.8's remaining per-call parameters).
type Spec struct {
	MachineName   string
	Filename      string
	Source        string
	Optional      []hostlang.OptParam
	ReturnSchema  []string // explicit override; the source itself yields no return schema
	Express       bool
	SkipEmptyPass bool
	MapConcurrency int
}

// MachineHandle is what gets attached back to the decorated function
// (spec.md §4.8 step (d)): the deployed construct plus the schema other
// machines must honor when calling it.
type MachineHandle struct {
	Name         string
	ConstructID  string
	ReturnSchema []string
	Params       []units.Param
}

// Decorate runs the full pipeline spec.md §4.8 describes: collect the
// function's attributes, compile it, render and deploy the definition,
// then register the resulting handle so a later Decorate on another
// function can resolve spec.MachineName as a StateMachineRef.
func (d *Decorator) Decorate(ctx context.Context, spec Spec) (*MachineHandle, error) {
	a, err := attrs.Collect(spec.Filename, spec.Source, spec.Optional, spec.ReturnSchema)
	if err != nil {
		return nil, err
	}
	if a.Name != spec.MachineName {
		// The function's own name is cosmetic; the decorator's explicit
		// MachineName is the name every other part of the system (the
		// registry, nested-call resolution) addresses it by.
		a.Name = spec.MachineName
	}

	prog, err := hostlang.Parse(spec.Filename, spec.Source)
	if err != nil {
		return nil, cerr.ParseFailure(spec.Filename, err)
	}
	if prog.Func == nil {
		return nil, cerr.NotSingleFunction(spec.Filename)
	}

	c := compiler.New(d.symbols, compiler.Options{
		Express:               spec.Express,
		SkipEmptyPass:         spec.SkipEmptyPass,
		ReturnSchema:          spec.ReturnSchema,
		DefaultMapConcurrency: spec.MapConcurrency,
	})
	result, err := c.Compile(prog.Func, a)
	if err != nil {
		return nil, err
	}

	doc, err := serializer.Render(result.Graph)
	if err != nil {
		return nil, err
	}

	constructID, err := d.stack.Deploy(ctx, spec.MachineName, doc, spec.Express)
	if err != nil {
		return nil, cerr.Internal("deploy state machine "+spec.MachineName, err)
	}

	params := make([]units.Param, 0, len(a.Required)+len(a.Optional))
	for _, p := range a.Required {
		params = append(params, units.Param{Name: p.Name, Type: p.Type})
	}
	for _, p := range a.Optional {
		var def interface{}
		if p.Default != nil {
			def = p.Default.Value
		}
		params = append(params, units.Param{Name: p.Name, Type: p.Type, Default: def, HasDefault: true})
	}
	outputs := make([]units.OutputField, len(result.ReturnSchema))
	for i, f := range result.ReturnSchema {
		outputs[i] = units.OutputField{Name: f}
	}

	rec := registrystore.Record{
		Name:        spec.MachineName,
		ConstructID: constructID,
		Params:      params,
		Outputs:     outputs,
		UpdatedAt:   time.Now(),
	}
	if err := d.registry.Put(ctx, rec); err != nil {
		return nil, err
	}

	// Register this machine as a nested-call target for the rest of this
	// process's decorator applications (spec.md §4.6.4 "Nested state
	// machine"), so a sibling function compiled afterward can call it by
	// name without a separate lookup round trip.
	if d.symbols != nil {
		if _, exists := d.symbols[spec.MachineName]; !exists {
			d.symbols[spec.MachineName] = &units.StateMachineRef{Name: spec.MachineName, Params: params, Outputs: outputs}
		}
	}

	return &MachineHandle{
		Name:         spec.MachineName,
		ConstructID:  constructID,
		ReturnSchema: result.ReturnSchema,
		Params:       params,
	}, nil
}

// Resolve looks up a previously decorated machine by name, for a caller
// that wants its handle without recompiling it in this process (spec.md
// §4.8: "attaches... for later reference").
func (d *Decorator) Resolve(ctx context.Context, name string) (*MachineHandle, error) {
	rec, err := d.registry.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	outputs := make([]string, len(rec.Outputs))
	for i, f := range rec.Outputs {
		outputs[i] = f.Name
	}
	return &MachineHandle{
		Name:         rec.Name,
		ConstructID:  rec.ConstructID,
		ReturnSchema: outputs,
		Params:       rec.Params,
	}, nil
}
