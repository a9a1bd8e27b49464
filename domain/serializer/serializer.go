// Package serializer renders a compiled state graph (domain/builder.Graph)
// to the stable ASL-shaped JSON document the test suite diffs (spec.md
// §4.7): walk from the start state over every reachable state, including
// states reachable only via a catch handler's Next, sort by the numeric
// state-index suffix domain/ids assigns, and emit a single
// {StartAt, States} object.
package serializer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/r3e-network/sfnc/domain/builder"
	"github.com/r3e-network/sfnc/domain/ids"
)

// Document is the top-level JSON shape written to the build directory.
type Document struct {
	StartAt string                     `json:"StartAt"`
	States  map[string]json.RawMessage `json:"States"`
}

// Walk returns every state reachable from g.StartAt, including states
// reachable only through a Catcher's Next (spec.md §4.7), in ascending
// state-index order.
func Walk(g *builder.Graph) []*builder.Node {
	seen := make(map[string]bool)
	var order []*builder.Node

	var visit func(id string)
	visit = func(id string) {
		if id == "" || seen[id] {
			return
		}
		n, ok := g.States[id]
		if !ok {
			return
		}
		seen[id] = true
		order = append(order, n)

		visit(n.Next)
		for _, r := range n.Choices {
			visit(r.Next)
		}
		visit(n.Default)
		for _, c := range n.Catchers {
			visit(c.Next)
		}
		// A Map node's Iterator graph is a self-contained nested Graph,
		// walked and rendered independently by Render; its states never
		// join this outer graph's own state list.
	}
	visit(g.StartAt)

	sort.Slice(order, func(i, j int) bool {
		return ids.StateIndex(order[i].ID) < ids.StateIndex(order[j].ID)
	})
	return order
}

// Render walks g and marshals it into a Document, ready for
// json.Marshal/MarshalIndent.
func Render(g *builder.Graph) (*Document, error) {
	states := Walk(g)
	out := make(map[string]json.RawMessage, len(states))
	for _, n := range states {
		raw, err := renderNode(n)
		if err != nil {
			return nil, err
		}
		out[n.ID] = raw
	}
	return &Document{StartAt: g.StartAt, States: out}, nil
}

// WriteFile renders g and writes it as indented JSON to path, creating
// parent directories as needed (spec.md §4.7: "writes... to a build
// directory").
func WriteFile(g *builder.Graph, path string) error {
	doc, err := Render(g)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// asl is the shape one rendered state takes; only the fields relevant to
// its Type are ever populated, the others are omitted by omitempty.
type asl struct {
	Type    string                 `json:"Type"`
	Comment string                 `json:"Comment,omitempty"`
	Parameters map[string]interface{} `json:"Parameters,omitempty"`

	InputPath  string `json:"InputPath,omitempty"`
	ResultPath string `json:"ResultPath,omitempty"`
	OutputPath string `json:"OutputPath,omitempty"`

	Next string `json:"Next,omitempty"`
	End  bool   `json:"End,omitempty"`

	Choices []aslChoice `json:"Choices,omitempty"`
	Default string      `json:"Default,omitempty"`

	Seconds     int    `json:"Seconds,omitempty"`
	SecondsPath string `json:"SecondsPath,omitempty"`

	Resource         string                 `json:"Resource,omitempty"`
	HeartbeatSeconds int                    `json:"HeartbeatSeconds,omitempty"`
	TimeoutSeconds   int                    `json:"TimeoutSeconds,omitempty"`
	ResultSelector   map[string]interface{} `json:"ResultSelector,omitempty"`
	Retry            []aslRetrier           `json:"Retry,omitempty"`
	Catch            []aslCatcher           `json:"Catch,omitempty"`

	ItemsPath      string      `json:"ItemsPath,omitempty"`
	MaxConcurrency int         `json:"MaxConcurrency,omitempty"`
	Iterator       *Document   `json:"Iterator,omitempty"`

	Branches []*Document `json:"Branches,omitempty"`
}

type aslChoice struct {
	Condition interface{} `json:"Condition"`
	Next      string      `json:"Next"`
}

type aslRetrier struct {
	ErrorEquals     []string `json:"ErrorEquals"`
	IntervalSeconds float64  `json:"IntervalSeconds,omitempty"`
	MaxAttempts     int      `json:"MaxAttempts,omitempty"`
	BackoffRate     float64  `json:"BackoffRate,omitempty"`
}

type aslCatcher struct {
	ErrorEquals []string `json:"ErrorEquals"`
	ResultPath  string   `json:"ResultPath,omitempty"`
	Next        string   `json:"Next"`
}

func renderNode(n *builder.Node) (json.RawMessage, error) {
	out := asl{
		Type:       string(n.Kind),
		Comment:    n.Label,
		Parameters: n.Parameters,
		InputPath:  n.InputPath,
		ResultPath: n.ResultPath,
		OutputPath: n.OutputPath,
		Next:       n.Next,
		End:        n.End,
	}

	switch n.Kind {
	case builder.KindChoice:
		out.Default = n.Default
		for _, r := range n.Choices {
			out.Choices = append(out.Choices, aslChoice{Condition: r.Condition, Next: r.Next})
		}
	case builder.KindWait:
		out.Seconds = n.Seconds
		out.SecondsPath = n.SecondsPath
	case builder.KindTask:
		out.Resource = n.Resource
		out.HeartbeatSeconds = n.HeartbeatSeconds
		out.TimeoutSeconds = n.TimeoutSeconds
		out.ResultSelector = n.ResultSelector
		for _, r := range n.Retriers {
			out.Retry = append(out.Retry, aslRetrier{
				ErrorEquals:     r.ErrorEquals,
				IntervalSeconds: r.IntervalSeconds,
				MaxAttempts:     r.MaxAttempts,
				BackoffRate:     r.BackoffRate,
			})
		}
		for _, c := range n.Catchers {
			out.Catch = append(out.Catch, aslCatcher{ErrorEquals: c.ErrorEquals, ResultPath: c.ResultPath, Next: c.Next})
		}
	case builder.KindMap:
		out.ItemsPath = n.ItemsPath
		out.MaxConcurrency = n.MaxConcurrency
		if n.Iterator != nil {
			nested, err := Render(n.Iterator)
			if err != nil {
				return nil, err
			}
			out.Iterator = nested
		}
	case builder.KindParallel:
		for _, b := range n.Branches {
			nested, err := Render(b)
			if err != nil {
				return nil, err
			}
			out.Branches = append(out.Branches, nested)
		}
	}

	return json.Marshal(out)
}
