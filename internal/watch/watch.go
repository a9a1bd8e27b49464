// Package watch implements the scheduled drift check (spec.md
// SPEC_FULL.md §4.13): on a cron schedule, recompile every registered
// orchestrator and diff the new rendered definition against the
// previous one, logging only the state IDs that actually changed. This
// supplements P4 (determinism) with a live regression signal during
// development, the way a file watcher would in the original system.
package watch

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/tidwall/gjson"

	"github.com/r3e-network/sfnc/domain/serializer"
	"github.com/r3e-network/sfnc/pkg/logger"
)

// RecompileFunc recompiles one registered machine by name and renders
// its current definition. The caller supplies this rather than watch
// depending on domain/compiler or the root decorator package directly,
// keeping this package usable against whatever wiring cmd/sfnc chooses.
type RecompileFunc func(ctx context.Context, name string) (*serializer.Document, error)

// Watcher periodically recompiles a fixed set of named machines and
// reports drift between successive runs.
type Watcher struct {
	names     []string
	recompile RecompileFunc
	log       *logger.Logger

	mu        sync.Mutex
	snapshots map[string]string // name -> last rendered JSON

	cr      *cron.Cron
	entryID cron.EntryID
}

// New returns a Watcher over names, using recompile to regenerate each
// machine's definition on every tick.
func New(names []string, recompile RecompileFunc, log *logger.Logger) *Watcher {
	return &Watcher{
		names:     names,
		recompile: recompile,
		log:       log,
		snapshots: make(map[string]string, len(names)),
	}
}

// Start schedules CheckOnce on schedule (a robfig/cron/v3 expression,
// e.g. "@every 30s") and begins running it in the background. Start is
// idempotent only in the sense that calling it twice schedules two
// jobs; callers should Stop before a second Start.
func (w *Watcher) Start(schedule string) error {
	w.cr = cron.New()
	id, err := w.cr.AddFunc(schedule, func() { w.CheckOnce(context.Background()) })
	if err != nil {
		return err
	}
	w.entryID = id
	w.cr.Start()
	return nil
}

// Stop halts the scheduler and waits for any in-flight run to finish.
func (w *Watcher) Stop() {
	if w.cr == nil {
		return
	}
	ctx := w.cr.Stop()
	<-ctx.Done()
}

// CheckOnce recompiles every watched machine, diffs it against the
// previous run's snapshot, and logs the state IDs that were added,
// removed, or changed. The first run over a given name only seeds the
// snapshot — there is nothing to diff against yet.
func (w *Watcher) CheckOnce(ctx context.Context) {
	for _, name := range w.names {
		doc, err := w.recompile(ctx, name)
		if err != nil {
			w.log.WithField("machine", name).WithError(err).Warn("watch: recompile failed")
			continue
		}

		data, err := json.Marshal(doc)
		if err != nil {
			w.log.WithField("machine", name).WithError(err).Warn("watch: render failed")
			continue
		}
		raw := string(data)

		w.mu.Lock()
		prev, seen := w.snapshots[name]
		w.snapshots[name] = raw
		w.mu.Unlock()

		if !seen {
			continue
		}
		changed := diffStateIDs(prev, raw)
		if len(changed) > 0 {
			w.log.WithField("machine", name).WithField("states", changed).Warn("watch: definition drift detected")
		}
	}
}

// diffStateIDs compares two rendered documents' "States" objects and
// returns the IDs whose JSON representation changed, was added, or was
// removed, in no particular order.
func diffStateIDs(prevJSON, currJSON string) []string {
	prevStates := gjson.Get(prevJSON, "States").Map()
	currStates := gjson.Get(currJSON, "States").Map()

	var changed []string
	for id, curr := range currStates {
		prev, ok := prevStates[id]
		if !ok || prev.Raw != curr.Raw {
			changed = append(changed, id)
		}
	}
	for id := range prevStates {
		if _, ok := currStates[id]; !ok {
			changed = append(changed, id)
		}
	}
	return changed
}
