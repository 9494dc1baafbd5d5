package state

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/orgsync-io/orgsync/internal/resource"
)

// DestinationEntry is the persisted record for one instance at the
// destination: the identifier the destination assigned, the last-known
// document, and the diff signature of the desired document that produced it.
type DestinationEntry struct {
	DestinationID string            `json:"destination_id"`
	Instance      resource.Instance `json:"instance"`
	DiffSignature string            `json:"diff_signature,omitempty"`
}

// Store holds the source and destination snapshots for every type. The
// source snapshot is replaced wholesale on each import; destination entries
// are updated per key as operations succeed and are never rolled back.
type Store struct {
	backend Backend

	mu     sync.RWMutex
	source map[string]map[string]resource.Instance
	dest   map[string]*destSnapshot
}

// destSnapshot guards one type's destination entries independently, so
// concurrent writers for unrelated types and keys never contend on a global
// lock.
type destSnapshot struct {
	mu      sync.RWMutex
	entries map[string]DestinationEntry
}

func NewStore(backend Backend) *Store {
	return &Store{
		backend: backend,
		source:  make(map[string]map[string]resource.Instance),
		dest:    make(map[string]*destSnapshot),
	}
}

// Lock takes the backend's run lock; a second process sharing the same state
// must not interleave snapshot writes.
func (s *Store) Lock(ctx context.Context) error {
	return s.backend.Lock(ctx)
}

// Unlock releases the backend's run lock.
func (s *Store) Unlock(ctx context.Context) error {
	return s.backend.Unlock(ctx)
}

func sourceFile(typeName string) string {
	return "source/" + typeName + ".json"
}

func destinationFile(typeName string) string {
	return "destination/" + typeName + ".json"
}

// LoadSource reads a type's source snapshot, caching it in memory.
func (s *Store) LoadSource(ctx context.Context, typeName string) (map[string]resource.Instance, error) {
	s.mu.RLock()
	cached, ok := s.source[typeName]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	data, err := s.backend.Read(ctx, sourceFile(typeName))
	if err != nil {
		if err == ErrNotExist {
			return map[string]resource.Instance{}, nil
		}
		return nil, err
	}
	snapshot := make(map[string]resource.Instance)
	if err := unmarshalNumbers(data, &snapshot); err != nil {
		return nil, fmt.Errorf("corrupt source snapshot for %s: %w", typeName, err)
	}

	s.mu.Lock()
	s.source[typeName] = snapshot
	s.mu.Unlock()
	return snapshot, nil
}

// ReplaceSource supersedes a type's source snapshot and persists it.
func (s *Store) ReplaceSource(ctx context.Context, typeName string, snapshot map[string]resource.Instance) error {
	s.mu.Lock()
	s.source[typeName] = snapshot
	s.mu.Unlock()

	data, err := marshalIndent(snapshot)
	if err != nil {
		return fmt.Errorf("encode source snapshot for %s: %w", typeName, err)
	}
	return s.backend.Write(ctx, sourceFile(typeName), data)
}

// LoadDestination reads a type's destination snapshot, caching it in memory.
func (s *Store) LoadDestination(ctx context.Context, typeName string) (map[string]DestinationEntry, error) {
	snap, err := s.destSnapshot(ctx, typeName)
	if err != nil {
		return nil, err
	}
	snap.mu.RLock()
	defer snap.mu.RUnlock()
	out := make(map[string]DestinationEntry, len(snap.entries))
	for k, v := range snap.entries {
		out[k] = v
	}
	return out, nil
}

// GetDestination returns the destination entry for one source ID.
func (s *Store) GetDestination(ctx context.Context, typeName, sourceID string) (DestinationEntry, bool, error) {
	snap, err := s.destSnapshot(ctx, typeName)
	if err != nil {
		return DestinationEntry{}, false, err
	}
	snap.mu.RLock()
	defer snap.mu.RUnlock()
	entry, ok := snap.entries[sourceID]
	return entry, ok, nil
}

// PutDestination records the last-applied state for one instance. Safe for
// concurrent writers on distinct keys of the same type.
func (s *Store) PutDestination(ctx context.Context, typeName, sourceID string, entry DestinationEntry) error {
	snap, err := s.destSnapshot(ctx, typeName)
	if err != nil {
		return err
	}
	snap.mu.Lock()
	snap.entries[sourceID] = entry
	snap.mu.Unlock()
	return nil
}

// RemoveDestination drops the entry for one instance (successful delete).
func (s *Store) RemoveDestination(ctx context.Context, typeName, sourceID string) error {
	snap, err := s.destSnapshot(ctx, typeName)
	if err != nil {
		return err
	}
	snap.mu.Lock()
	delete(snap.entries, sourceID)
	snap.mu.Unlock()
	return nil
}

// FlushDestination persists a type's destination snapshot. Called after the
// type reaches a terminal state for the run; entries written by instances
// that succeeded before a sibling failed are kept (last-applied-state).
func (s *Store) FlushDestination(ctx context.Context, typeName string) error {
	snap, err := s.destSnapshot(ctx, typeName)
	if err != nil {
		return err
	}
	snap.mu.RLock()
	data, err := marshalIndent(snap.entries)
	snap.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode destination snapshot for %s: %w", typeName, err)
	}
	return s.backend.Write(ctx, destinationFile(typeName), data)
}

func (s *Store) destSnapshot(ctx context.Context, typeName string) (*destSnapshot, error) {
	s.mu.RLock()
	snap, ok := s.dest[typeName]
	s.mu.RUnlock()
	if ok {
		return snap, nil
	}

	entries := make(map[string]DestinationEntry)
	data, err := s.backend.Read(ctx, destinationFile(typeName))
	if err != nil && err != ErrNotExist {
		return nil, err
	}
	if err == nil {
		if err := unmarshalNumbers(data, &entries); err != nil {
			return nil, fmt.Errorf("corrupt destination snapshot for %s: %w", typeName, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.dest[typeName]; ok {
		return existing, nil
	}
	snap = &destSnapshot{entries: entries}
	s.dest[typeName] = snap
	return snap, nil
}

// SourceIDs returns the source identifiers of a loaded type, sorted for
// deterministic sequential processing.
func SourceIDs[T any](snapshot map[string]T) []string {
	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func marshalIndent(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// unmarshalNumbers decodes JSON keeping numbers as json.Number, matching how
// instances are decoded off the wire.
func unmarshalNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
