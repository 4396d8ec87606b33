// Package protocol implements the binary wire format spoken between
// collaboration clients and the relay.
//
// Every frame is a binary WebSocket message beginning with a varint type
// tag followed by a type-specific payload:
//
//	Tag 0 (Sync)           sync-protocol payload (see sub-tags below)
//	Tag 1 (Awareness)      varint-length-prefixed awareness blob
//	Tag 2 (Auth)           reserved, ignored on receipt
//	Tag 3 (QueryAwareness) no payload; requests a full awareness snapshot
//
// Sync payloads carry their own sub-tag as a second varint:
//
//	Sub-tag 0 (SyncStep1)  state vector of the sender
//	Sub-tag 1 (SyncStep2)  updates the receiver is missing
//	Sub-tag 2 (SyncUpdate) incremental update set
//
// Unknown top-level tags are ignored by the relay without closing the
// connection; the tag space is open for forward compatibility.
package protocol
