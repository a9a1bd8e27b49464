package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/r3e-network/sfnc/domain/builder"
	"github.com/r3e-network/sfnc/infrastructure/resilience"
)

// TaskFault lets a test inject a failure into a simulated Task
// invocation, to drive Retry/Catch policies (spec.md §8 P7) without a
// real backing service. attempt is 1-indexed. A nil TaskFault never
// fails.
type TaskFault func(resource string, attempt int) error

// Step records one visited state, in execution order.
type Step struct {
	StateID string
	Kind    builder.NodeKind
}

// Run walks g from g.StartAt, applying each state's effect to data and
// returning the document in its final shape along with the states
// visited. data must at least contain a "register" key if the compiled
// function reads any parameter.
func Run(ctx context.Context, g *builder.Graph, data map[string]interface{}, fault TaskFault) (map[string]interface{}, []Step, error) {
	var trace []Step
	id := g.StartAt
	for id != "" {
		node, ok := g.States[id]
		if !ok {
			return nil, trace, fmt.Errorf("sim: state %q not found", id)
		}
		trace = append(trace, Step{StateID: id, Kind: node.Kind})

		next, err := step(ctx, node, data, fault)
		if err != nil {
			return nil, trace, fmt.Errorf("sim: state %q: %w", id, err)
		}
		if node.End {
			return data, trace, nil
		}
		id = next
	}
	return data, trace, nil
}

func step(ctx context.Context, n *builder.Node, data map[string]interface{}, fault TaskFault) (string, error) {
	switch n.Kind {
	case builder.KindPass:
		return n.Next, applyEffect(n, data)

	case builder.KindChoice:
		for _, rule := range n.Choices {
			ok, err := EvalCondition(rule.Condition, data)
			if err != nil {
				return "", err
			}
			if ok {
				return rule.Next, nil
			}
		}
		return n.Default, nil

	case builder.KindWait:
		return n.Next, nil

	case builder.KindTask:
		return runTask(ctx, n, data, fault)

	case builder.KindMap:
		return runMap(ctx, n, data, fault)

	case builder.KindParallel:
		return runParallel(ctx, n, data, fault)

	default:
		return "", fmt.Errorf("unsupported node kind %q", n.Kind)
	}
}

// applyEffect resolves n.Parameters against data and writes the result
// at n.ResultPath.
func applyEffect(n *builder.Node, data map[string]interface{}) error {
	resolved, err := resolveParams(n.Parameters, data)
	if err != nil {
		return err
	}
	return setAtPath(data, n.ResultPath, resolved)
}

func runTask(ctx context.Context, n *builder.Node, data map[string]interface{}, fault TaskFault) (string, error) {
	attempt := 0
	call := func() error {
		attempt++
		if fault != nil {
			return fault(n.Resource, attempt)
		}
		return nil
	}

	var err error
	if len(n.Retriers) > 0 {
		r := n.Retriers[0]
		cfg := resilience.RetryConfig{
			MaxAttempts:  r.MaxAttempts,
			InitialDelay: time.Duration(r.IntervalSeconds * float64(time.Second)),
			Multiplier:   r.BackoffRate,
			MaxDelay:     0,
		}
		err = resilience.Retry(ctx, cfg, call)
	} else {
		err = call()
	}

	if err != nil {
		for _, c := range n.Catchers {
			if catcherMatches(c.ErrorEquals, err) {
				if c.ResultPath != "" {
					if serr := setAtPath(data, c.ResultPath, map[string]interface{}{"Error": err.Error()}); serr != nil {
						return "", serr
					}
				}
				return c.Next, nil
			}
		}
		return "", err
	}

	return n.Next, applyEffect(n, data)
}

func catcherMatches(errorEquals []string, err error) bool {
	for _, e := range errorEquals {
		if e == "States.ALL" || e == err.Error() {
			return true
		}
	}
	return false
}

func runMap(ctx context.Context, n *builder.Node, data map[string]interface{}, fault TaskFault) (string, error) {
	items, err := ResolvePath(data, n.ItemsPath)
	if err != nil {
		return "", err
	}
	list, ok := items.([]interface{})
	if !ok {
		return "", fmt.Errorf("Map itemsPath %q did not resolve to an array (got %T)", n.ItemsPath, items)
	}

	// The compiler's own iterator graph (domain/compiler's lowerMapLoop)
	// opens with a Pass that reads "$$.Map.Item.Value" off the Context
	// Object and writes it into the register under the loop variable's
	// name, the same way a real AWS Step Functions execution would feed
	// it to that state; __context below stands in for that Context
	// Object so evalExpr's "$$."-rewrite has something to resolve against.
	outer, _ := data["register"].(map[string]interface{})
	results := make([]interface{}, len(list))
	for i, item := range list {
		reg := make(map[string]interface{}, len(outer))
		for k, v := range outer {
			reg[k] = v
		}
		iterData := map[string]interface{}{
			"register": reg,
			"__context": map[string]interface{}{
				"Map": map[string]interface{}{
					"Item": map[string]interface{}{"Index": i, "Value": item},
				},
			},
		}

		out, _, err := Run(ctx, n.Iterator, iterData, fault)
		if err != nil {
			return "", fmt.Errorf("map item %d: %w", i, err)
		}
		results[i] = out
	}

	if n.ResultPath != "" {
		if err := setAtPath(data, n.ResultPath, results); err != nil {
			return "", err
		}
	}
	return n.Next, nil
}

func runParallel(ctx context.Context, n *builder.Node, data map[string]interface{}, fault TaskFault) (string, error) {
	results := make([]interface{}, len(n.Branches))
	for i, branch := range n.Branches {
		branchData := make(map[string]interface{}, len(data))
		for k, v := range data {
			branchData[k] = v
		}
		out, _, err := Run(ctx, branch, branchData, fault)
		if err != nil {
			return "", fmt.Errorf("branch %d: %w", i, err)
		}
		results[i] = out
	}
	if n.ResultPath != "" {
		if err := setAtPath(data, n.ResultPath, results); err != nil {
			return "", err
		}
	}
	return n.Next, nil
}
