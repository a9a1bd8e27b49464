package watch

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"

	"github.com/r3e-network/sfnc/domain/serializer"
	"github.com/r3e-network/sfnc/pkg/logger"
)

func TestDiffStateIDsReportsAddedChangedAndRemoved(t *testing.T) {
	prev := `{"StartAt":"A","States":{"A":{"Type":"Pass"},"B":{"Type":"Pass","End":true}}}`
	curr := `{"StartAt":"A","States":{"A":{"Type":"Pass","Next":"C"},"C":{"Type":"Pass","End":true}}}`

	changed := diffStateIDs(prev, curr)
	sort.Strings(changed)
	want := []string{"A", "B", "C"}
	sort.Strings(want)

	if len(changed) != len(want) {
		t.Fatalf("diffStateIDs = %v, want %v", changed, want)
	}
	for i := range want {
		if changed[i] != want[i] {
			t.Errorf("diffStateIDs = %v, want %v", changed, want)
			break
		}
	}
}

func TestDiffStateIDsReportsNothingWhenUnchanged(t *testing.T) {
	doc := `{"StartAt":"A","States":{"A":{"Type":"Pass","End":true}}}`
	if changed := diffStateIDs(doc, doc); len(changed) != 0 {
		t.Errorf("diffStateIDs = %v, want no changes", changed)
	}
}

func TestCheckOnceSeedsThenDetectsDrift(t *testing.T) {
	var mu sync.Mutex
	version := 0
	recompile := func(ctx context.Context, name string) (*serializer.Document, error) {
		mu.Lock()
		defer mu.Unlock()
		version++
		raw, _ := json.Marshal(map[string]string{"Type": "Pass", "Version": string(rune('0' + version))})
		states := map[string]json.RawMessage{"A": raw}
		return &serializer.Document{StartAt: "A", States: states}, nil
	}

	w := New([]string{"orchestrator"}, recompile, logger.NewDefault("watch-test"))

	w.CheckOnce(context.Background())
	if _, ok := w.snapshots["orchestrator"]; !ok {
		t.Fatalf("expected CheckOnce to seed a snapshot on its first run")
	}
	firstSnapshot := w.snapshots["orchestrator"]

	w.CheckOnce(context.Background())
	secondSnapshot := w.snapshots["orchestrator"]
	if firstSnapshot == secondSnapshot {
		t.Errorf("expected the recompiled document to change between runs")
	}
}
