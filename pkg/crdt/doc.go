// Package crdt implements the relay's default document merge engine.
//
// The document is modeled as a per-client append-only update log. Each
// update is identified by its (client id, sequence number) pair; merging
// two replicas is the set union of their logs, so concurrently produced
// updates commute and re-applying an update is a no-op. A state vector
// (highest sequence seen per client) describes what a replica holds and
// drives the two-step sync handshake: step 1 announces the vector, step 2
// replies with the updates the announcer lacks.
package crdt

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cowave/cowave/pkg/protocol"
)

// ErrUnknownSyncType is returned for sync payloads with an unrecognized
// sub-tag.
var ErrUnknownSyncType = errors.New("crdt: unknown sync message type")

// Update is a single client-produced operation.
type Update struct {
	Client uint64
	Seq    uint64
	Op     []byte
}

// UpdateFunc receives freshly merged updates along with the origin token
// of the session that caused them. The origin is empty for updates that
// did not come from a session (hydration, local mutation).
type UpdateFunc func(update []byte, origin string)

// Doc holds one room's document state.
type Doc struct {
	mu       sync.Mutex
	ops      map[uint64]map[uint64][]byte // client -> seq -> op bytes
	vector   map[uint64]uint64            // client -> highest seq held
	onUpdate UpdateFunc
}

// NewDoc creates an empty document.
func NewDoc() *Doc {
	return &Doc{
		ops:    make(map[uint64]map[uint64][]byte),
		vector: make(map[uint64]uint64),
	}
}

// OnUpdate registers the update callback. It must be called once, before
// the document receives any traffic.
func (d *Doc) OnUpdate(fn func(update []byte, origin string)) {
	d.onUpdate = fn
}

// ApplyUpdate merges an encoded update set into the document. Updates
// already present are discarded, which makes application idempotent.
// Fresh updates are re-emitted through the OnUpdate callback with the
// given origin.
func (d *Doc) ApplyUpdate(update []byte, origin string) error {
	us, err := DecodeUpdateSet(update)
	if err != nil {
		return err
	}

	fresh := d.merge(us)
	if len(fresh) > 0 && d.onUpdate != nil {
		d.onUpdate(EncodeUpdateSet(fresh), origin)
	}
	return nil
}

// merge stores updates not yet present and returns them.
func (d *Doc) merge(us []Update) []Update {
	d.mu.Lock()
	defer d.mu.Unlock()

	var fresh []Update
	for _, u := range us {
		log, ok := d.ops[u.Client]
		if !ok {
			log = make(map[uint64][]byte)
			d.ops[u.Client] = log
		}
		if _, dup := log[u.Seq]; dup {
			continue
		}
		op := make([]byte, len(u.Op))
		copy(op, u.Op)
		log[u.Seq] = op
		if u.Seq > d.vector[u.Client] {
			d.vector[u.Client] = u.Seq
		}
		fresh = append(fresh, Update{Client: u.Client, Seq: u.Seq, Op: op})
	}
	return fresh
}

// EncodeState encodes the full document as an update set. Output is
// deterministic: clients ascending, sequences ascending.
func (d *Doc) EncodeState() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return EncodeUpdateSet(d.snapshotLocked())
}

// StateVector returns a copy of the document's state vector.
func (d *Doc) StateVector() map[uint64]uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	sv := make(map[uint64]uint64, len(d.vector))
	for c, s := range d.vector {
		sv[c] = s
	}
	return sv
}

// BeginSync produces the sync handshake initiation payload: a step-1
// message carrying the local state vector.
func (d *Doc) BeginSync() []byte {
	e := protocol.NewEncoder()
	e.WriteUvarint(uint64(protocol.SyncStep1))
	d.mu.Lock()
	encodeVector(e, d.vector)
	d.mu.Unlock()
	return e.Bytes()
}

// HandleSyncMessage processes one sync payload (sub-tag plus body) from
// the session identified by origin. A step-1 message yields a step-2
// reply when the peer is missing updates, and nil when it is current.
// Step-2 and update messages are merged and yield no direct reply.
func (d *Doc) HandleSyncMessage(msg []byte, origin string) ([]byte, error) {
	dec := protocol.NewDecoder(msg)
	sub, err := dec.ReadUvarint()
	if err != nil {
		return nil, err
	}

	switch protocol.SyncType(sub) {
	case protocol.SyncStep1:
		remote, err := decodeVector(dec)
		if err != nil {
			return nil, err
		}
		diff := d.diff(remote)
		if len(diff) == 0 {
			return nil, nil
		}
		e := protocol.NewEncoder()
		e.WriteUvarint(uint64(protocol.SyncStep2))
		e.WriteBytes(EncodeUpdateSet(diff))
		return e.Bytes(), nil

	case protocol.SyncStep2, protocol.SyncUpdate:
		return nil, d.ApplyUpdate(dec.Rest(), origin)

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownSyncType, sub)
	}
}

// diff returns the updates the holder of remote is missing.
func (d *Doc) diff(remote map[uint64]uint64) []Update {
	d.mu.Lock()
	defer d.mu.Unlock()

	var missing []Update
	for _, u := range d.snapshotLocked() {
		if u.Seq > remote[u.Client] {
			missing = append(missing, u)
		}
	}
	return missing
}

// snapshotLocked returns all updates in deterministic order. Caller must
// hold d.mu.
func (d *Doc) snapshotLocked() []Update {
	clients := make([]uint64, 0, len(d.ops))
	for c := range d.ops {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i] < clients[j] })

	var us []Update
	for _, c := range clients {
		log := d.ops[c]
		seqs := make([]uint64, 0, len(log))
		for s := range log {
			seqs = append(seqs, s)
		}
		sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
		for _, s := range seqs {
			us = append(us, Update{Client: c, Seq: s, Op: log[s]})
		}
	}
	return us
}

// EncodeUpdateSet encodes updates as a wire update set.
func EncodeUpdateSet(us []Update) []byte {
	e := protocol.NewEncoder()
	e.WriteUvarint(uint64(len(us)))
	for _, u := range us {
		e.WriteUvarint(u.Client)
		e.WriteUvarint(u.Seq)
		e.WriteLenBytes(u.Op)
	}
	return e.Bytes()
}

// DecodeUpdateSet decodes a wire update set.
func DecodeUpdateSet(data []byte) ([]Update, error) {
	d := protocol.NewDecoder(data)
	n, err := d.ReadCount()
	if err != nil {
		return nil, err
	}

	us := make([]Update, 0, n)
	for i := 0; i < n; i++ {
		var u Update
		if u.Client, err = d.ReadUvarint(); err != nil {
			return nil, err
		}
		if u.Seq, err = d.ReadUvarint(); err != nil {
			return nil, err
		}
		if u.Op, err = d.ReadLenBytes(); err != nil {
			return nil, err
		}
		us = append(us, u)
	}
	return us, nil
}

func encodeVector(e *protocol.Encoder, v map[uint64]uint64) {
	clients := make([]uint64, 0, len(v))
	for c := range v {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i] < clients[j] })

	e.WriteUvarint(uint64(len(clients)))
	for _, c := range clients {
		e.WriteUvarint(c)
		e.WriteUvarint(v[c])
	}
}

func decodeVector(d *protocol.Decoder) (map[uint64]uint64, error) {
	n, err := d.ReadCount()
	if err != nil {
		return nil, err
	}

	v := make(map[uint64]uint64, n)
	for i := 0; i < n; i++ {
		client, err := d.ReadUvarint()
		if err != nil {
			return nil, err
		}
		clock, err := d.ReadUvarint()
		if err != nil {
			return nil, err
		}
		v[client] = clock
	}
	return v, nil
}
