package crdt

import (
	"bytes"
	"errors"
	"testing"

	"github.com/cowave/cowave/pkg/protocol"
)

func TestApplyUpdateMergesAndEmits(t *testing.T) {
	d := NewDoc()

	var gotUpdate []byte
	var gotOrigin string
	d.OnUpdate(func(update []byte, origin string) {
		gotUpdate = update
		gotOrigin = origin
	})

	update := EncodeUpdateSet([]Update{
		{Client: 1, Seq: 1, Op: []byte("insert a")},
		{Client: 1, Seq: 2, Op: []byte("insert b")},
	})
	if err := d.ApplyUpdate(update, "sess-1"); err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}

	if gotOrigin != "sess-1" {
		t.Errorf("origin = %q, want %q", gotOrigin, "sess-1")
	}
	us, err := DecodeUpdateSet(gotUpdate)
	if err != nil {
		t.Fatalf("DecodeUpdateSet: %v", err)
	}
	if len(us) != 2 {
		t.Errorf("emitted %d updates, want 2", len(us))
	}

	sv := d.StateVector()
	if sv[1] != 2 {
		t.Errorf("state vector for client 1 = %d, want 2", sv[1])
	}
}

func TestApplyUpdateIdempotent(t *testing.T) {
	d := NewDoc()

	var emits int
	d.OnUpdate(func(update []byte, origin string) { emits++ })

	update := EncodeUpdateSet([]Update{{Client: 7, Seq: 1, Op: []byte("op")}})
	if err := d.ApplyUpdate(update, "a"); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	once := d.EncodeState()

	if err := d.ApplyUpdate(update, "a"); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	twice := d.EncodeState()

	if !bytes.Equal(once, twice) {
		t.Error("state differs after re-applying the same update")
	}
	if emits != 1 {
		t.Errorf("emitted %d events, want 1 (duplicates must not emit)", emits)
	}
}

func TestEncodeStateDeterministic(t *testing.T) {
	build := func(order []Update) *Doc {
		d := NewDoc()
		for _, u := range order {
			if err := d.ApplyUpdate(EncodeUpdateSet([]Update{u}), ""); err != nil {
				t.Fatalf("ApplyUpdate: %v", err)
			}
		}
		return d
	}

	us := []Update{
		{Client: 2, Seq: 1, Op: []byte("x")},
		{Client: 1, Seq: 2, Op: []byte("y")},
		{Client: 1, Seq: 1, Op: []byte("z")},
	}
	forward := build(us)
	reversed := build([]Update{us[2], us[1], us[0]})

	if !bytes.Equal(forward.EncodeState(), reversed.EncodeState()) {
		t.Error("encoded state depends on application order")
	}
}

func TestSyncHandshakeConverges(t *testing.T) {
	source := NewDoc()
	update := EncodeUpdateSet([]Update{
		{Client: 1, Seq: 1, Op: []byte("hello")},
		{Client: 2, Seq: 1, Op: []byte("world")},
	})
	if err := source.ApplyUpdate(update, ""); err != nil {
		t.Fatalf("seed source: %v", err)
	}

	joiner := NewDoc()

	// Joiner announces its (empty) state, source replies with step 2.
	step1 := joiner.BeginSync()
	step2, err := source.HandleSyncMessage(step1, "joiner")
	if err != nil {
		t.Fatalf("source handle step1: %v", err)
	}
	if step2 == nil {
		t.Fatal("expected a step2 reply for an empty joiner")
	}

	reply, err := joiner.HandleSyncMessage(step2, "source")
	if err != nil {
		t.Fatalf("joiner handle step2: %v", err)
	}
	if reply != nil {
		t.Errorf("step2 produced a reply: %v", reply)
	}

	if !bytes.Equal(joiner.EncodeState(), source.EncodeState()) {
		t.Error("documents did not converge after one handshake round")
	}
}

func TestSyncStep1CurrentPeerGetsNoReply(t *testing.T) {
	a := NewDoc()
	b := NewDoc()
	update := EncodeUpdateSet([]Update{{Client: 3, Seq: 1, Op: []byte("op")}})
	if err := a.ApplyUpdate(update, ""); err != nil {
		t.Fatal(err)
	}
	if err := b.ApplyUpdate(update, ""); err != nil {
		t.Fatal(err)
	}

	reply, err := a.HandleSyncMessage(b.BeginSync(), "b")
	if err != nil {
		t.Fatalf("HandleSyncMessage: %v", err)
	}
	if reply != nil {
		t.Errorf("reply = %v, want nil for an up-to-date peer", reply)
	}
}

func TestSyncUpdateEmitsWithOrigin(t *testing.T) {
	d := NewDoc()

	var origin string
	d.OnUpdate(func(update []byte, o string) { origin = o })

	e := protocol.NewEncoder()
	e.WriteUvarint(uint64(protocol.SyncUpdate))
	e.WriteBytes(EncodeUpdateSet([]Update{{Client: 5, Seq: 1, Op: []byte("op")}}))

	reply, err := d.HandleSyncMessage(e.Bytes(), "sess-9")
	if err != nil {
		t.Fatalf("HandleSyncMessage: %v", err)
	}
	if reply != nil {
		t.Errorf("update produced a reply: %v", reply)
	}
	if origin != "sess-9" {
		t.Errorf("origin = %q, want %q", origin, "sess-9")
	}
}

func TestHandleSyncMessageUnknownSubTag(t *testing.T) {
	d := NewDoc()

	e := protocol.NewEncoder()
	e.WriteUvarint(42)

	_, err := d.HandleSyncMessage(e.Bytes(), "")
	if !errors.Is(err, ErrUnknownSyncType) {
		t.Errorf("error = %v, want %v", err, ErrUnknownSyncType)
	}
}

func TestHydrationFromSnapshot(t *testing.T) {
	original := NewDoc()
	update := EncodeUpdateSet([]Update{
		{Client: 1, Seq: 1, Op: []byte("a")},
		{Client: 1, Seq: 2, Op: []byte("b")},
	})
	if err := original.ApplyUpdate(update, ""); err != nil {
		t.Fatal(err)
	}
	snapshot := original.EncodeState()

	restored := NewDoc()
	if err := restored.ApplyUpdate(snapshot, ""); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !bytes.Equal(restored.EncodeState(), snapshot) {
		t.Error("restored state does not match snapshot")
	}
}
