package state

import (
	"context"
	"sync"
)

// CorrelationTable maps (type, sourceID) to the destination-account
// identifier. Entries are written once per run and read by every instance
// that references the correlated one; writers on distinct keys never block
// each other.
type CorrelationTable struct {
	entries sync.Map // "type\x00sourceID" -> destID
	destIDs sync.Map // "type\x00destID"   -> struct{}
}

func NewCorrelationTable() *CorrelationTable {
	return &CorrelationTable{}
}

func corrKey(typeName, id string) string {
	return typeName + "\x00" + id
}

// Put records a correlation. The first write for a key wins; entries are
// immutable within a run.
func (t *CorrelationTable) Put(typeName, sourceID, destID string) {
	t.entries.LoadOrStore(corrKey(typeName, sourceID), destID)
	t.destIDs.Store(corrKey(typeName, destID), struct{}{})
}

// Get returns the destination identifier for a source identifier.
func (t *CorrelationTable) Get(typeName, sourceID string) (string, bool) {
	v, ok := t.entries.Load(corrKey(typeName, sourceID))
	if !ok {
		return "", false
	}
	return v.(string), true
}

// IsDestinationID reports whether id is already a destination-account
// identifier for the type. Remap uses this to stay idempotent.
func (t *CorrelationTable) IsDestinationID(typeName, id string) bool {
	_, ok := t.destIDs.Load(corrKey(typeName, id))
	return ok
}

// Remove drops the correlation for one instance (successful reset delete).
func (t *CorrelationTable) Remove(typeName, sourceID string) {
	if destID, ok := t.Get(typeName, sourceID); ok {
		t.destIDs.Delete(corrKey(typeName, destID))
	}
	t.entries.Delete(corrKey(typeName, sourceID))
}

// LoadCorrelations seeds a table from the persisted destination snapshots of
// the given types, making re-runs idempotent.
func (s *Store) LoadCorrelations(ctx context.Context, table *CorrelationTable, typeNames []string) error {
	for _, name := range typeNames {
		entries, err := s.LoadDestination(ctx, name)
		if err != nil {
			return err
		}
		for sourceID, entry := range entries {
			if entry.DestinationID != "" {
				table.Put(name, sourceID, entry.DestinationID)
			}
		}
	}
	return nil
}
