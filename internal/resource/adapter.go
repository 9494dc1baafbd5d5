package resource

import (
	"context"
	"iter"
)

// Adapter is the per-type capability set the orchestrator drives. Adapters
// are stateless transformers; all persistent state lives in the state store.
type Adapter interface {
	// Type returns the declaration this adapter serves.
	Type() Type

	// Fetch lazily yields every instance from the source account.
	Fetch(ctx context.Context) iter.Seq2[Instance, error]

	// Import normalizes a fetched instance for local persistence and returns
	// its source-account identifier.
	Import(ctx context.Context, inst Instance) (string, Instance, error)

	// Create writes a new instance to the destination account and returns the
	// destination identifier with the document the server echoed back.
	Create(ctx context.Context, inst Instance) (string, Instance, error)

	// Update overwrites the destination instance identified by destID.
	Update(ctx context.Context, destID string, inst Instance) (Instance, error)

	// Delete removes the destination instance identified by destID.
	Delete(ctx context.Context, destID string) error

	// PreResourceAction mutates or validates an instance immediately before
	// create, update, or delete.
	PreResourceAction(ctx context.Context, inst Instance) error

	// PreApply runs batch-level validation once per type before any write.
	PreApply(ctx context.Context, all []Instance) error

	// MatchExisting looks up a destination instance by the type's natural key
	// before falling back to create. The default adapter never matches;
	// types with stable natural keys override this.
	MatchExisting(ctx context.Context, inst Instance) (string, bool, error)
}
