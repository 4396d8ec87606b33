// Package awareness implements the relay's default presence engine.
//
// Each collaborating client publishes an ephemeral state blob (cursor
// position, user name, selection) under its client id together with a
// monotonically increasing clock. Merging keeps the entry with the higher
// clock; an entry with an empty state blob at a higher clock is a
// tombstone and removes the client from the live set.
//
// Wire encoding of an awareness blob: varint entry count, then per entry
// varint client id, varint clock, varint-length-prefixed state bytes
// (empty state marks a tombstone).
package awareness

import (
	"sort"
	"sync"

	"github.com/cowave/cowave/pkg/protocol"
)

// Event describes the outcome of merging an awareness update. The three
// sets are disjoint.
type Event struct {
	Added   []uint64
	Updated []uint64
	Removed []uint64
}

// UpdateFunc receives merge events along with the origin token of the
// session that caused them. Origin is empty for server-initiated removals.
type UpdateFunc func(ev Event, origin string)

type entry struct {
	clock uint64
	state []byte // nil marks a tombstone
}

// Engine holds one room's awareness state.
type Engine struct {
	mu       sync.Mutex
	entries  map[uint64]*entry
	onUpdate UpdateFunc
}

// New creates an empty awareness engine.
func New() *Engine {
	return &Engine{entries: make(map[uint64]*entry)}
}

// OnUpdate registers the merge event callback. It must be called once,
// before the engine receives any traffic.
func (a *Engine) OnUpdate(fn func(ev Event, origin string)) {
	a.onUpdate = fn
}

// ApplyUpdate merges an encoded awareness blob originating from the
// session identified by origin. Stale entries (clock not newer than what
// the engine holds) are discarded.
func (a *Engine) ApplyUpdate(blob []byte, origin string) error {
	incoming, err := decodeEntries(blob)
	if err != nil {
		return err
	}

	var ev Event
	a.mu.Lock()
	for _, in := range incoming {
		cur, ok := a.entries[in.client]
		if ok && in.clock <= cur.clock {
			continue
		}

		if len(in.state) == 0 {
			// Tombstone. Only report a removal if the client was live.
			if ok && cur.state != nil {
				ev.Removed = append(ev.Removed, in.client)
			}
			a.entries[in.client] = &entry{clock: in.clock}
			continue
		}

		state := make([]byte, len(in.state))
		copy(state, in.state)
		if !ok || cur.state == nil {
			ev.Added = append(ev.Added, in.client)
		} else {
			ev.Updated = append(ev.Updated, in.client)
		}
		a.entries[in.client] = &entry{clock: in.clock, state: state}
	}
	a.mu.Unlock()

	if a.onUpdate != nil && (len(ev.Added)+len(ev.Updated)+len(ev.Removed)) > 0 {
		a.onUpdate(ev, origin)
	}
	return nil
}

// RemoveClients tombstones the given client ids. The reason is
// informational (typically "disconnect") and is surfaced to the caller's
// logging only. Removals are emitted with an empty origin so the
// resulting broadcast reaches every session.
func (a *Engine) RemoveClients(ids []uint64, reason string) {
	var removed []uint64
	a.mu.Lock()
	for _, id := range ids {
		cur, ok := a.entries[id]
		if !ok || cur.state == nil {
			continue
		}
		a.entries[id] = &entry{clock: cur.clock + 1}
		removed = append(removed, id)
	}
	a.mu.Unlock()

	if a.onUpdate != nil && len(removed) > 0 {
		a.onUpdate(Event{Removed: removed}, "")
	}
	_ = reason
}

// EncodeState encodes the entries for the given client ids, including
// tombstones. Unknown ids are skipped.
func (a *Engine) EncodeState(ids []uint64) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	var known []uint64
	for _, id := range ids {
		if _, ok := a.entries[id]; ok {
			known = append(known, id)
		}
	}
	sort.Slice(known, func(i, j int) bool { return known[i] < known[j] })

	e := protocol.NewEncoder()
	e.WriteUvarint(uint64(len(known)))
	for _, id := range known {
		ent := a.entries[id]
		e.WriteUvarint(id)
		e.WriteUvarint(ent.clock)
		e.WriteLenBytes(ent.state)
	}
	return e.Bytes()
}

// ClientIDs returns the ids with live (non-tombstoned) state, ascending.
func (a *Engine) ClientIDs() []uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	var ids []uint64
	for id, ent := range a.entries {
		if ent.state != nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// State returns a copy of a client's live state, or nil if absent or
// tombstoned.
func (a *Engine) State(id uint64) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	ent, ok := a.entries[id]
	if !ok || ent.state == nil {
		return nil
	}
	state := make([]byte, len(ent.state))
	copy(state, ent.state)
	return state
}

type wireEntry struct {
	client uint64
	clock  uint64
	state  []byte
}

func decodeEntries(blob []byte) ([]wireEntry, error) {
	d := protocol.NewDecoder(blob)
	n, err := d.ReadCount()
	if err != nil {
		return nil, err
	}

	entries := make([]wireEntry, 0, n)
	for i := 0; i < n; i++ {
		var we wireEntry
		if we.client, err = d.ReadUvarint(); err != nil {
			return nil, err
		}
		if we.clock, err = d.ReadUvarint(); err != nil {
			return nil, err
		}
		if we.state, err = d.ReadLenBytes(); err != nil {
			return nil, err
		}
		entries = append(entries, we)
	}
	return entries, nil
}

// EncodeEntry encodes a single client's awareness entry as a wire blob.
// Intended for clients and tests; the relay itself only re-encodes state
// it already holds.
func EncodeEntry(client, clock uint64, state []byte) []byte {
	e := protocol.NewEncoder()
	e.WriteUvarint(1)
	e.WriteUvarint(client)
	e.WriteUvarint(clock)
	e.WriteLenBytes(state)
	return e.Bytes()
}
