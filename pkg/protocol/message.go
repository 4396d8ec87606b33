package protocol

// MessageType is the varint tag leading every wire frame.
type MessageType uint64

const (
	MessageSync           MessageType = 0 // document sync protocol
	MessageAwareness      MessageType = 1 // awareness blob, length-prefixed
	MessageAuth           MessageType = 2 // reserved, inert on receipt
	MessageQueryAwareness MessageType = 3 // request full awareness snapshot
)

// String returns the string representation of the message type.
func (mt MessageType) String() string {
	switch mt {
	case MessageSync:
		return "Sync"
	case MessageAwareness:
		return "Awareness"
	case MessageAuth:
		return "Auth"
	case MessageQueryAwareness:
		return "QueryAwareness"
	default:
		return "Unknown"
	}
}

// SyncType is the sub-tag inside a Sync payload.
type SyncType uint64

const (
	SyncStep1  SyncType = 0 // state vector announcement
	SyncStep2  SyncType = 1 // missing updates reply
	SyncUpdate SyncType = 2 // incremental update set
)

// DecodeMessageType reads the leading type tag from a frame and returns
// the remaining payload bytes.
func DecodeMessageType(frame []byte) (MessageType, []byte, error) {
	d := NewDecoder(frame)
	tag, err := d.ReadUvarint()
	if err != nil {
		return 0, nil, err
	}
	return MessageType(tag), d.Rest(), nil
}

// EncodeSyncMessage frames a sync-protocol payload with the Sync tag.
// The payload must already carry its sync sub-tag.
func EncodeSyncMessage(payload []byte) []byte {
	e := NewEncoder()
	e.WriteUvarint(uint64(MessageSync))
	e.WriteBytes(payload)
	return e.Bytes()
}

// EncodeAwarenessMessage frames an awareness blob with the Awareness tag
// and a varint length prefix.
func EncodeAwarenessMessage(blob []byte) []byte {
	e := NewEncoder()
	e.WriteUvarint(uint64(MessageAwareness))
	e.WriteLenBytes(blob)
	return e.Bytes()
}

// DecodeAwarenessPayload extracts the awareness blob from an Awareness
// message payload (the bytes after the type tag).
func DecodeAwarenessPayload(payload []byte) ([]byte, error) {
	return NewDecoder(payload).ReadLenBytes()
}

// EncodeQueryAwareness builds a QueryAwareness frame. It has no payload.
func EncodeQueryAwareness() []byte {
	e := NewEncoder()
	e.WriteUvarint(uint64(MessageQueryAwareness))
	return e.Bytes()
}
