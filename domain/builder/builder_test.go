package builder

import "testing"

func TestPassChainWiresNextOnResolve(t *testing.T) {
	b := NewGraphBuilder()
	first, sink := b.NewPass("State_0", nil, "", "")
	b.SetStart(first.ID)

	second, _ := b.NewPass("State_1", nil, "", "")
	sink.Resolve(second.ID)

	if first.Next != "State_1" {
		t.Errorf("first.Next = %q, want State_1", first.Next)
	}
	if sink.Empty() == false {
		t.Error("sink should be empty after Resolve")
	}
}

func TestResolveIsIdempotentAfterClear(t *testing.T) {
	b := NewGraphBuilder()
	n, sink := b.NewPass("State_0", nil, "", "")
	sink.Resolve("State_1")
	// Resolving again after the sink cleared must not re-fire setters.
	sink.Resolve("State_2")
	if n.Next != "State_1" {
		t.Errorf("n.Next = %q, want State_1 (second Resolve should be a no-op)", n.Next)
	}
}

func TestChoiceSinkWiresAllBranchesAndDefault(t *testing.T) {
	b := NewGraphBuilder()
	rules := []ChoiceRule{{Next: ""}, {Next: ""}}
	choice, sink := b.NewChoice("State_0", rules, nil)

	join, _ := b.NewPass("State_1", nil, "", "")
	sink.Resolve(join.ID)

	if choice.Choices[0].Next != "State_1" || choice.Choices[1].Next != "State_1" {
		t.Errorf("choice branches not wired: %+v", choice.Choices)
	}
	if choice.Default != "State_1" {
		t.Errorf("choice.Default = %q, want State_1", choice.Default)
	}
}

func TestMergeFlattensMultipleSinksInOrder(t *testing.T) {
	b := NewGraphBuilder()
	a, sinkA := b.NewPass("State_0", nil, "", "")
	c, sinkC := b.NewPass("State_1", nil, "", "")
	merged := Merge(sinkA, sinkC)

	join, _ := b.NewPass("State_2", nil, "", "")
	merged.Resolve(join.ID)

	if a.Next != "State_2" || c.Next != "State_2" {
		t.Errorf("merged sink did not wire both nodes: a=%q c=%q", a.Next, c.Next)
	}
}

func TestGraphBuilderAccumulatesNodesByID(t *testing.T) {
	b := NewGraphBuilder()
	b.NewPass("State_0", nil, "", "")
	b.NewWait("State_1", 5, "")
	b.SetStart("State_0")

	g := b.Graph()
	if g.StartAt != "State_0" {
		t.Errorf("StartAt = %q, want State_0", g.StartAt)
	}
	if len(g.States) != 2 {
		t.Errorf("len(States) = %d, want 2", len(g.States))
	}
	if g.States["State_1"].Kind != KindWait {
		t.Errorf("State_1 kind = %v, want KindWait", g.States["State_1"].Kind)
	}
}

func TestTaskWithTokenSetsWaitForTaskTokenIntegration(t *testing.T) {
	b := NewGraphBuilder()
	n, _ := b.NewTaskWithToken("State_0", "arn:aws:states:::lambda:invoke", nil, "", "", 60)
	if n.Integration != IntegrationWaitToken {
		t.Errorf("Integration = %v, want IntegrationWaitToken", n.Integration)
	}
	if n.HeartbeatSeconds != 60 {
		t.Errorf("HeartbeatSeconds = %d, want 60", n.HeartbeatSeconds)
	}
}

func TestTaskEventSetsFireAndForgetIntegration(t *testing.T) {
	b := NewGraphBuilder()
	n, sink := b.NewTaskEvent("State_0", "arn:aws:states:::sns:publish", nil, "")
	if n.Integration != IntegrationFireAndForget {
		t.Errorf("Integration = %v, want IntegrationFireAndForget", n.Integration)
	}
	if sink.Empty() {
		t.Error("fire-and-forget task has no normal-continuation successor")
	}
}

func TestMapNodeCarriesIteratorGraph(t *testing.T) {
	b := NewGraphBuilder()
	iter := NewGraph()
	iter.StartAt = "Iter_0"
	iter.States["Iter_0"] = &Node{ID: "Iter_0", Kind: KindPass}

	n, _ := b.NewMap("State_0", "$.register.items", 0, nil, "$.register.results", iter)
	if n.Iterator != iter {
		t.Error("Map node does not retain its iterator graph")
	}
	if n.MaxConcurrency != 0 {
		t.Errorf("MaxConcurrency = %d, want 0 (unbounded)", n.MaxConcurrency)
	}
}

func TestParallelNodeCarriesBranches(t *testing.T) {
	b := NewGraphBuilder()
	branch1, branch2 := NewGraph(), NewGraph()
	n, _ := b.NewParallel("State_0", []*Graph{branch1, branch2}, "$.register.out")
	if len(n.Branches) != 2 {
		t.Errorf("len(Branches) = %d, want 2", len(n.Branches))
	}
}
