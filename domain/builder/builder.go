// Package builder defines the opaque construct-builder API the compiler
// targets (spec.md §1 treats the real CDK state-machine construct
// library as "an opaque builder API... we consume its state primitives
// as an opaque builder API") plus a concrete in-memory reference
// implementation used by the compiler's own tests and by the definition
// serializer, since a real CDK binding is out of scope (spec.md §1
// non-goals).
//
// It also formalizes the "next_ thunk" protocol from spec.md §9 as
// SuccessorSink: a flattened slice of setter closures invoked exactly
// once when a successor state is materialized.
package builder

import "github.com/r3e-network/sfnc/domain/cond"

// NodeKind enumerates the state-node kinds the compiler emits
// (spec.md §3 "Emitted state graph").
type NodeKind string

const (
	KindPass     NodeKind = "Pass"
	KindChoice   NodeKind = "Choice"
	KindWait     NodeKind = "Wait"
	KindTask     NodeKind = "Task"
	KindMap      NodeKind = "Map"
	KindParallel NodeKind = "Parallel"
)

// TaskIntegration distinguishes the three Task invocation shapes
// (spec.md §3: "Task... Task-with-token... Task-event").
type TaskIntegration string

const (
	IntegrationSync        TaskIntegration = "sync"
	IntegrationWaitToken   TaskIntegration = "waitForTaskToken"
	IntegrationFireAndForget TaskIntegration = "fireAndForget"
)

// Retrier is one entry of a Task's retry policy (spec.md §3 "Retry
// policy").
type Retrier struct {
	ErrorEquals     []string
	IntervalSeconds float64
	MaxAttempts     int
	BackoffRate     float64
}

// Catcher is one entry of a Task's catch handlers (spec.md §3 "Catch
// handler").
type Catcher struct {
	ErrorEquals []string
	ResultPath  string
	Next        string
}

// ChoiceRule pairs one Condition with the state it branches to.
type ChoiceRule struct {
	Condition cond.Condition
	Next      string
}

// Node is one state in the emitted graph. Only the fields relevant to
// its Kind are meaningful; the serializer renders exactly those.
type Node struct {
	ID    string
	Kind  NodeKind
	Label string

	Parameters map[string]interface{}
	InputPath  string
	ResultPath string
	OutputPath string
	Next       string
	End        bool

	Choices []ChoiceRule
	Default string

	SecondsPath string
	Seconds     int

	Integration      TaskIntegration
	Resource         string
	HeartbeatSeconds int
	TimeoutSeconds   int
	ResultSelector   map[string]interface{}

	Retriers []Retrier
	Catchers []Catcher

	ItemsPath      string
	MaxConcurrency int
	Iterator       *Graph

	Branches []*Graph
}

// Setter is one deferred "wire my successor to this ID" callback.
type Setter func(successorID string)

// SuccessorSink is a flattened list of setters, applied exactly once
// when the next state is materialized (spec.md §9 "Next thunks").
type SuccessorSink struct {
	setters []Setter
}

// Add appends a setter to the sink.
func (s *SuccessorSink) Add(fn Setter) {
	s.setters = append(s.setters, fn)
}

// Resolve invokes every pending setter with successorID, then clears the
// sink so it cannot be resolved twice.
func (s *SuccessorSink) Resolve(successorID string) {
	for _, fn := range s.setters {
		fn(successorID)
	}
	s.setters = nil
}

// Empty reports whether the sink has no pending setters (e.g. a branch
// that ended in a Return state, per spec.md §3: "or they end in a Return
// state").
func (s *SuccessorSink) Empty() bool {
	return len(s.setters) == 0
}

// Merge flattens several sinks into one, preserving call order.
func Merge(sinks ...SuccessorSink) SuccessorSink {
	var out SuccessorSink
	for _, s := range sinks {
		out.setters = append(out.setters, s.setters...)
	}
	return out
}

// NodeSink sets a Node's Next field when resolved; if the node should
// terminate the machine instead of advancing, set its End field and
// use an empty sink instead.
func NodeSink(n *Node) SuccessorSink {
	var sink SuccessorSink
	sink.Add(func(successorID string) { n.Next = successorID })
	return sink
}

// Graph is a self-contained nested state-machine graph, the shape a Map
// iterator body or a Parallel branch requires (and the shape
// domain/serializer renders at the top level too).
type Graph struct {
	StartAt string
	States  map[string]*Node
	order   []string // insertion order, for stable traversal before sorting
}

// NewGraph returns an empty Graph.
func NewGraph() *Graph {
	return &Graph{States: make(map[string]*Node)}
}

// Order returns state IDs in the order they were added to the graph.
// Used by callers (e.g. the compiler's retry/catch attachment passes)
// that need to distinguish states added within a bounded window from
// the rest of the graph.
func (g *Graph) Order() []string {
	return g.order
}

// Builder is the opaque construct-builder API the compiler targets.
// Each New* method registers a node in the graph and returns it along
// with a SuccessorSink for its "normal continuation" successor(s).
type Builder interface {
	NewPass(id string, params map[string]interface{}, inputPath, resultPath string) (*Node, SuccessorSink)
	NewChoice(id string, rules []ChoiceRule, defaultNext *SuccessorSink) (*Node, SuccessorSink)
	NewWait(id string, seconds int, secondsPath string) (*Node, SuccessorSink)
	NewTask(id string, resource string, integration TaskIntegration, params map[string]interface{}, inputPath, resultPath string, heartbeat, timeout int) (*Node, SuccessorSink)
	NewTaskWithToken(id string, resource string, params map[string]interface{}, inputPath, resultPath string, heartbeat int) (*Node, SuccessorSink)
	NewTaskEvent(id string, resource string, params map[string]interface{}, inputPath string) (*Node, SuccessorSink)
	NewMap(id string, itemsPath string, maxConcurrency int, params map[string]interface{}, resultPath string, iterator *Graph) (*Node, SuccessorSink)
	NewSubMachine(id string, machineName string, params map[string]interface{}, inputPath, resultPath string) (*Node, SuccessorSink)
	NewParallel(id string, branches []*Graph, resultPath string) (*Node, SuccessorSink)

	// Graph returns the graph accumulated so far.
	Graph() *Graph

	// SetStart designates id as the machine's single entry state
	// (spec.md §3 "Exactly one entry state").
	SetStart(id string)
}

// graphBuilder is the in-memory reference implementation of Builder.
type graphBuilder struct {
	g *Graph
}

// NewGraphBuilder returns a Builder backed by an in-memory Graph.
func NewGraphBuilder() Builder {
	return &graphBuilder{g: NewGraph()}
}

func (b *graphBuilder) add(n *Node) {
	b.g.States[n.ID] = n
	b.g.order = append(b.g.order, n.ID)
}

func (b *graphBuilder) Graph() *Graph { return b.g }

func (b *graphBuilder) SetStart(id string) { b.g.StartAt = id }

func (b *graphBuilder) NewPass(id string, params map[string]interface{}, inputPath, resultPath string) (*Node, SuccessorSink) {
	n := &Node{ID: id, Kind: KindPass, Parameters: params, InputPath: inputPath, ResultPath: resultPath}
	b.add(n)
	return n, NodeSink(n)
}

func (b *graphBuilder) NewChoice(id string, rules []ChoiceRule, defaultNext *SuccessorSink) (*Node, SuccessorSink) {
	n := &Node{ID: id, Kind: KindChoice, Choices: rules}
	b.add(n)

	var sink SuccessorSink
	for i := range n.Choices {
		idx := i
		sink.Add(func(successorID string) { n.Choices[idx].Next = successorID })
	}
	sink.Add(func(successorID string) { n.Default = successorID })
	return n, sink
}

func (b *graphBuilder) NewWait(id string, seconds int, secondsPath string) (*Node, SuccessorSink) {
	n := &Node{ID: id, Kind: KindWait, Seconds: seconds, SecondsPath: secondsPath}
	b.add(n)
	return n, NodeSink(n)
}

func (b *graphBuilder) NewTask(id string, resource string, integration TaskIntegration, params map[string]interface{}, inputPath, resultPath string, heartbeat, timeout int) (*Node, SuccessorSink) {
	n := &Node{
		ID: id, Kind: KindTask, Resource: resource, Integration: integration,
		Parameters: params, InputPath: inputPath, ResultPath: resultPath,
		HeartbeatSeconds: heartbeat, TimeoutSeconds: timeout,
	}
	b.add(n)
	if integration == IntegrationFireAndForget {
		return n, NodeSink(n)
	}
	return n, NodeSink(n)
}

func (b *graphBuilder) NewTaskWithToken(id string, resource string, params map[string]interface{}, inputPath, resultPath string, heartbeat int) (*Node, SuccessorSink) {
	return b.NewTask(id, resource, IntegrationWaitToken, params, inputPath, resultPath, heartbeat, 0)
}

func (b *graphBuilder) NewTaskEvent(id string, resource string, params map[string]interface{}, inputPath string) (*Node, SuccessorSink) {
	return b.NewTask(id, resource, IntegrationFireAndForget, params, inputPath, "", 0, 0)
}

func (b *graphBuilder) NewMap(id string, itemsPath string, maxConcurrency int, params map[string]interface{}, resultPath string, iterator *Graph) (*Node, SuccessorSink) {
	n := &Node{
		ID: id, Kind: KindMap, ItemsPath: itemsPath, MaxConcurrency: maxConcurrency,
		Parameters: params, ResultPath: resultPath, Iterator: iterator,
	}
	b.add(n)
	return n, NodeSink(n)
}

func (b *graphBuilder) NewSubMachine(id string, machineName string, params map[string]interface{}, inputPath, resultPath string) (*Node, SuccessorSink) {
	n := &Node{
		ID: id, Kind: KindTask, Resource: "sub-machine:" + machineName, Integration: IntegrationSync,
		Parameters: params, InputPath: inputPath, ResultPath: resultPath,
	}
	b.add(n)
	return n, NodeSink(n)
}

func (b *graphBuilder) NewParallel(id string, branches []*Graph, resultPath string) (*Node, SuccessorSink) {
	n := &Node{ID: id, Kind: KindParallel, Branches: branches, ResultPath: resultPath}
	b.add(n)
	return n, NodeSink(n)
}
