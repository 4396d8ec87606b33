package protocol

import (
	"bytes"
	"io"
	"testing"
)

func TestMessageTypeString(t *testing.T) {
	tests := []struct {
		mt   MessageType
		want string
	}{
		{MessageSync, "Sync"},
		{MessageAwareness, "Awareness"},
		{MessageAuth, "Auth"},
		{MessageQueryAwareness, "QueryAwareness"},
		{MessageType(99), "Unknown"},
	}

	for _, tc := range tests {
		if got := tc.mt.String(); got != tc.want {
			t.Errorf("MessageType(%d).String() = %q, want %q", tc.mt, got, tc.want)
		}
	}
}

func TestDecodeMessageType(t *testing.T) {
	frame := EncodeSyncMessage([]byte{0x01, 0x02, 0x03})

	mt, payload, err := DecodeMessageType(frame)
	if err != nil {
		t.Fatalf("DecodeMessageType: %v", err)
	}
	if mt != MessageSync {
		t.Errorf("type = %v, want %v", mt, MessageSync)
	}
	if !bytes.Equal(payload, []byte{0x01, 0x02, 0x03}) {
		t.Errorf("payload = %v, want [1 2 3]", payload)
	}
}

func TestDecodeMessageTypeEmptyFrame(t *testing.T) {
	if _, _, err := DecodeMessageType(nil); err != io.ErrUnexpectedEOF {
		t.Errorf("error = %v, want %v", err, io.ErrUnexpectedEOF)
	}
}

func TestAwarenessMessageRoundTrip(t *testing.T) {
	blob := []byte("presence-state")
	frame := EncodeAwarenessMessage(blob)

	mt, payload, err := DecodeMessageType(frame)
	if err != nil {
		t.Fatalf("DecodeMessageType: %v", err)
	}
	if mt != MessageAwareness {
		t.Fatalf("type = %v, want %v", mt, MessageAwareness)
	}

	got, err := DecodeAwarenessPayload(payload)
	if err != nil {
		t.Fatalf("DecodeAwarenessPayload: %v", err)
	}
	if !bytes.Equal(got, blob) {
		t.Errorf("blob = %v, want %v", got, blob)
	}
}

func TestQueryAwarenessHasNoPayload(t *testing.T) {
	frame := EncodeQueryAwareness()

	mt, payload, err := DecodeMessageType(frame)
	if err != nil {
		t.Fatalf("DecodeMessageType: %v", err)
	}
	if mt != MessageQueryAwareness {
		t.Errorf("type = %v, want %v", mt, MessageQueryAwareness)
	}
	if len(payload) != 0 {
		t.Errorf("payload = %v, want empty", payload)
	}
}

func TestUnknownTagStillDecodes(t *testing.T) {
	e := NewEncoder()
	e.WriteUvarint(99)
	e.WriteBytes([]byte("future"))

	mt, payload, err := DecodeMessageType(e.Bytes())
	if err != nil {
		t.Fatalf("DecodeMessageType: %v", err)
	}
	if mt != MessageType(99) {
		t.Errorf("type = %v, want 99", mt)
	}
	if string(payload) != "future" {
		t.Errorf("payload = %q, want %q", payload, "future")
	}
}
