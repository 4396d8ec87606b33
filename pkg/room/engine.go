package room

import "github.com/cowave/cowave/pkg/awareness"

// DocEngine is the conflict-free document merge engine consumed by a
// room. The default implementation lives in pkg/crdt; tests inject
// fakes. OnUpdate must be called exactly once, before traffic.
type DocEngine interface {
	// OnUpdate registers the port through which merged updates flow
	// back to the room for broadcast and persistence.
	OnUpdate(fn func(update []byte, origin string))

	// ApplyUpdate merges an encoded update set. Used for hydration.
	ApplyUpdate(update []byte, origin string) error

	// EncodeState encodes the full document for persistence.
	EncodeState() []byte

	// BeginSync produces the handshake initiation payload sent to a
	// freshly joined session.
	BeginSync() []byte

	// HandleSyncMessage processes one inbound sync payload from the
	// session identified by origin, returning an optional point-to-point
	// reply payload.
	HandleSyncMessage(msg []byte, origin string) ([]byte, error)
}

// AwarenessEngine is the ephemeral presence engine consumed by a room.
// The default implementation lives in pkg/awareness.
type AwarenessEngine interface {
	// OnUpdate registers the port through which merge events flow back
	// to the room for broadcast.
	OnUpdate(fn func(ev awareness.Event, origin string))

	// ApplyUpdate merges an encoded awareness blob.
	ApplyUpdate(blob []byte, origin string) error

	// EncodeState encodes the entries for the given client ids,
	// including tombstones.
	EncodeState(ids []uint64) []byte

	// RemoveClients tombstones the given client ids.
	RemoveClients(ids []uint64, reason string)

	// ClientIDs returns the ids with live state.
	ClientIDs() []uint64
}

// Transport is the send/close capability of one connected session. Send
// must not block: implementations enqueue onto a bounded buffer and
// report a full or closed buffer as an error, which the room treats as
// an implicit disconnect.
type Transport interface {
	Send(data []byte) error
	Close() error
}
