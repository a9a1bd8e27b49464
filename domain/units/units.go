// Package units implements the compute-unit registry and the launcher
// packager that materializes a single dispatcher source file routing to
// every registered callable (spec.md §4.4).
package units

import (
	"fmt"
	"sort"
	"strings"

	cerr "github.com/r3e-network/sfnc/infrastructure/errors"
)

// Param describes one declared parameter: name, declared type, and an
// optional literal default.
type Param struct {
	Name    string
	Type    string
	Default interface{}
	HasDefault bool
}

// OutputField describes one declared named output.
type OutputField struct {
	Name string
	Type string
}

// CallableRef is the tagged-union the compiler's symbol table resolves
// call targets to (spec.md §9 "model callables as tagged variants").
// Exactly one of the concrete *Ref types below implements it.
type CallableRef interface {
	callableRef()
	// RefName returns the registered/declared name used in diagnostics.
	RefName() string
}

// ComputeUnitRef is a native compute unit: its body runs inside the
// backing runtime, and it carries a dispatcher routing key equal to its
// registered name.
type ComputeUnitRef struct {
	Name          string
	Params        []Param
	Outputs       []OutputField
	DispatcherKey string
}

func (*ComputeUnitRef) callableRef()    {}
func (r *ComputeUnitRef) RefName() string { return r.Name }

// ForeignRef is an already-deployed, externally-authored function: the
// user declares its input/output schema but it carries no dispatcher key.
type ForeignRef struct {
	Name    string
	Params  []Param
	Outputs []OutputField
}

func (*ForeignRef) callableRef()    {}
func (r *ForeignRef) RefName() string { return r.Name }

// StateMachineRef is another compiled state machine, invocable as a
// nested sub-machine call (spec.md §4.6.4 "Nested state machine").
type StateMachineRef struct {
	Name    string
	Params  []Param
	Outputs []OutputField
}

func (*StateMachineRef) callableRef()    {}
func (r *StateMachineRef) RefName() string { return r.Name }

// IntrinsicKind enumerates the compiler-recognized intrinsic functions.
type IntrinsicKind int

const (
	IntrinsicRange IntrinsicKind = iota
	IntrinsicLen
)

// IntrinsicRef is a built-in function (`range`, `len`) lowered specially
// by the compiler rather than resolved through user registration.
type IntrinsicRef struct {
	Name string
	Kind IntrinsicKind
}

func (*IntrinsicRef) callableRef()    {}
func (r *IntrinsicRef) RefName() string { return r.Name }

// SleepRef is the `sleep`/`time.sleep` wait primitive.
type SleepRef struct{}

func (*SleepRef) callableRef()    {}
func (*SleepRef) RefName() string { return "sleep" }

// EventWrapperRef is the `event(call(...))` fire-and-forget wrapper.
type EventWrapperRef struct{}

func (*EventWrapperRef) callableRef()    {}
func (*EventWrapperRef) RefName() string { return "event" }

// AwaitTokenWrapperRef is the `await_token(call(...), returns, [duration])`
// callback-token wrapper.
type AwaitTokenWrapperRef struct{}

func (*AwaitTokenWrapperRef) callableRef()    {}
func (*AwaitTokenWrapperRef) RefName() string { return "await_token" }

// ConcurrentWrapperRef is the `concurrent(inner, N)` loop-iterator
// wrapper.
type ConcurrentWrapperRef struct{}

func (*ConcurrentWrapperRef) callableRef()    {}
func (*ConcurrentWrapperRef) RefName() string { return "concurrent" }

// ServiceOperationRef names an entry in the service-operation template
// table (spec.md §4.5); the compiler resolves it via domain/templates,
// not via this registry, but it still participates in the symbol table
// so call-target resolution is uniform.
type ServiceOperationRef struct {
	Name string
}

func (*ServiceOperationRef) callableRef()    {}
func (r *ServiceOperationRef) RefName() string { return r.Name }

// Registry holds all compute units (native and foreign) registered in a
// process. Duplicate names are rejected (spec.md §4.4, error catalogue
// "Duplicate registration").
type Registry struct {
	units map[string]CallableRef
	order []string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{units: make(map[string]CallableRef)}
}

// RegisterNative registers a native compute unit. The dispatcher key
// equals the registered name.
func (r *Registry) RegisterNative(name string, params []Param, outputs []OutputField) (*ComputeUnitRef, error) {
	if _, exists := r.units[name]; exists {
		return nil, cerr.DuplicateRegistration(name)
	}
	ref := &ComputeUnitRef{Name: name, Params: params, Outputs: outputs, DispatcherKey: name}
	r.units[name] = ref
	r.order = append(r.order, name)
	return ref, nil
}

// RegisterForeign registers a foreign (already-deployed) compute unit.
func (r *Registry) RegisterForeign(name string, params []Param, outputs []OutputField) (*ForeignRef, error) {
	if _, exists := r.units[name]; exists {
		return nil, cerr.DuplicateRegistration(name)
	}
	ref := &ForeignRef{Name: name, Params: params, Outputs: outputs}
	r.units[name] = ref
	r.order = append(r.order, name)
	return ref, nil
}

// Lookup returns the registered CallableRef for name, if any.
func (r *Registry) Lookup(name string) (CallableRef, bool) {
	ref, ok := r.units[name]
	return ref, ok
}

// NativeUnits returns every registered ComputeUnitRef, in registration
// order, for use by the launcher packager.
func (r *Registry) NativeUnits() []*ComputeUnitRef {
	var out []*ComputeUnitRef
	for _, name := range r.order {
		if cu, ok := r.units[name].(*ComputeUnitRef); ok {
			out = append(out, cu)
		}
	}
	return out
}

// DispatcherModule is a generated dispatcher source file's module path
// plus the key each registered callable is imported under.
type DispatcherModule struct {
	ModulePath string
	Symbol     string
}

// PackageDispatcher materializes the dispatcher source described in
// spec.md §4.4: it imports every module contributing a registered
// callable, defines a single entry point keyed on `launcher_target`, and
// normalizes the target's result (mapping passes through, a tuple
// becomes `{arg0, arg1, ...}`, anything else becomes `{arg0: value}`).
func PackageDispatcher(reg *Registry, modules map[string]DispatcherModule) (string, error) {
	units := reg.NativeUnits()
	sort.Slice(units, func(i, j int) bool { return units[i].Name < units[j].Name })

	var b strings.Builder
	b.WriteString("'use strict';\n\n")

	seen := make(map[string]bool)
	var importLines []string
	for _, u := range units {
		mod, ok := modules[u.Name]
		if !ok {
			return "", cerr.Internal(fmt.Sprintf("no module registered for compute unit %q", u.Name), nil)
		}
		if seen[mod.ModulePath] {
			continue
		}
		seen[mod.ModulePath] = true
		importLines = append(importLines, fmt.Sprintf("const %s = require(%q);", mod.Symbol, mod.ModulePath))
	}
	sort.Strings(importLines)
	for _, line := range importLines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString("const targets = {\n")
	for _, u := range units {
		mod := modules[u.Name]
		b.WriteString(fmt.Sprintf("  %q: %s.%s,\n", u.DispatcherKey, mod.Symbol, u.Name))
	}
	b.WriteString("};\n\n")

	b.WriteString("exports.handler = function (event) {\n")
	b.WriteString("  const target = targets[event.launcher_target];\n")
	b.WriteString("  if (!target) { throw new Error('unknown launcher_target: ' + event.launcher_target); }\n")
	b.WriteString("  const args = [];\n")
	b.WriteString("  const paramNames = target.__params || [];\n")
	b.WriteString("  for (const name of paramNames) { args.push(event[name]); }\n")
	b.WriteString("  const result = target.apply(null, args);\n")
	b.WriteString("  return normalize(result);\n")
	b.WriteString("};\n\n")

	b.WriteString("function normalize(result) {\n")
	b.WriteString("  if (result !== null && typeof result === 'object' && !Array.isArray(result)) { return result; }\n")
	b.WriteString("  if (Array.isArray(result)) {\n")
	b.WriteString("    const out = {};\n")
	b.WriteString("    result.forEach(function (v, i) { out['arg' + i] = v; });\n")
	b.WriteString("    return out;\n")
	b.WriteString("  }\n")
	b.WriteString("  return { arg0: result };\n")
	b.WriteString("}\n")

	return b.String(), nil
}

// DispatcherFileName returns the generated dispatcher's file name for
// the given machine-id slug, per spec.md §6
// (`<bundle>/<machine-id-slug>_pysfn_launcher.<ext>`), adapted to the
// JS host with a `.js` extension.
func DispatcherFileName(machineIDSlug string) string {
	return machineIDSlug + "_pysfn_launcher.js"
}
