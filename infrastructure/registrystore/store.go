// Package registrystore persists the handle a compiled state machine
// receives once its backing construct is deployed: a construct
// ID/ARN-shaped string plus its resolved output schema. A later
// compiler invocation, possibly in a new process, looks the handle up
// by machine name to resolve a StateMachineRef nested-machine call
// target (domain/units.StateMachineRef) without having to recompile
// the referenced machine first.
package registrystore

import (
	"context"
	"time"

	"github.com/r3e-network/sfnc/domain/units"
)

// Record is the persisted construct handle for one named state machine.
type Record struct {
	Name        string
	ConstructID string
	Params      []units.Param
	Outputs     []units.OutputField
	UpdatedAt   time.Time
}

// Store resolves and persists Records keyed by machine name. Both
// implementations in this package (Postgres-backed and in-memory)
// satisfy it.
type Store interface {
	// Put inserts or replaces the Record for rec.Name.
	Put(ctx context.Context, rec Record) error
	// Get returns the Record for name, or a NotFound *errors.CompileError
	// if it has never been registered.
	Get(ctx context.Context, name string) (Record, error)
	// Delete removes the Record for name. It is not an error to delete
	// a name that was never registered.
	Delete(ctx context.Context, name string) error
	// List returns every registered Record, in no particular order.
	List(ctx context.Context) ([]Record, error)
}
