// Package room implements the room actor: the single serialized unit
// that owns one room's session table, document and awareness state,
// passcode admission, message dispatch, broadcast fan-out, and
// persistence triggering.
//
// All state is confined to the actor goroutine. External callers post
// closures onto the mailbox; the loop runs one to completion before the
// next, so no locking guards the session table or the passcode. The
// mailbox is not drained until hydration from the store has finished,
// which is the Initializing to Ready gate: a request arriving during
// hydration parks in the mailbox and observes fully hydrated state.
package room

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/cowave/cowave/pkg/awareness"
	"github.com/cowave/cowave/pkg/protocol"
	"github.com/cowave/cowave/pkg/store"
)

// Admission and lifecycle errors.
var (
	ErrUnauthorized = errors.New("room: invalid passcode")
	ErrClosed       = errors.New("room: closed")
)

const defaultMailboxSize = 256

// disconnectReason is passed to the awareness engine when a session
// closes.
const disconnectReason = "disconnect"

// Hooks are optional instrumentation callbacks. Nil hooks and nil
// fields are skipped. They run on the actor goroutine and must not
// block.
type Hooks struct {
	Message      func(mt protocol.MessageType)
	Broadcast    func(recipients int)
	SendFailure  func()
	PersistError func()
}

// Config configures a room actor.
type Config struct {
	// Store is the persistence backend. Required.
	Store store.Store

	// Doc is the document merge engine. Required; production callers
	// pass the pkg/crdt engine, tests pass fakes.
	Doc DocEngine

	// Awareness is the presence engine. Required; production callers
	// pass the pkg/awareness engine.
	Awareness AwarenessEngine

	// Logger defaults to slog.Default() with component=room.
	Logger *slog.Logger

	// Hooks is optional instrumentation.
	Hooks *Hooks

	// MailboxSize is the actor queue depth. Defaults to 256. Posting
	// blocks when full; the relay applies no backpressure beyond that.
	MailboxSize int
}

// Room is one room's actor. Create with New, start with Run.
type Room struct {
	name   string
	logger *slog.Logger
	store  store.Store
	doc    DocEngine
	aware  AwarenessEngine
	hooks  Hooks

	mailbox chan func()
	done    chan struct{}
	once    sync.Once

	// Actor-confined state. Touched only from Run's goroutine.
	sessions map[Transport]string // transport handle -> identity token
	passcode string               // "" is the Unset admission state
	ready    bool                 // true once hydration completed
}

// New creates a room actor for the given name. Engine update ports are
// registered here, once, for the actor's lifetime.
func New(name string, cfg Config) *Room {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "room")
	}
	size := cfg.MailboxSize
	if size <= 0 {
		size = defaultMailboxSize
	}

	r := &Room{
		name:     name,
		logger:   logger.With("room", name),
		store:    cfg.Store,
		doc:      cfg.Doc,
		aware:    cfg.Awareness,
		mailbox:  make(chan func(), size),
		done:     make(chan struct{}),
		sessions: make(map[Transport]string),
	}
	if cfg.Hooks != nil {
		r.hooks = *cfg.Hooks
	}

	r.doc.OnUpdate(r.handleDocUpdate)
	r.aware.OnUpdate(r.handleAwarenessUpdate)
	return r
}

// Name returns the room name.
func (r *Room) Name() string {
	return r.name
}

// Run hydrates the room from the store and then serves the mailbox. It
// blocks until Close is called. Engines are only touched from this
// goroutine, so their update callbacks also run here.
func (r *Room) Run() {
	r.hydrate()
	r.ready = true

	for {
		select {
		case fn := <-r.mailbox:
			fn()
		case <-r.done:
			return
		}
	}
}

// Close stops the actor. In-flight mailbox entries may be dropped;
// sessions are closed by their own transports.
func (r *Room) Close() {
	r.once.Do(func() { close(r.done) })
}

// hydrate loads the document snapshot and passcode before any request
// is served. Applying the snapshot fires the doc update port, but the
// ready flag suppresses broadcast and re-persistence for it.
func (r *Room) hydrate() {
	ctx := context.Background()

	snap, err := r.store.Get(ctx, r.docKey())
	switch {
	case err == nil:
		if err := r.doc.ApplyUpdate(snap, ""); err != nil {
			r.logger.Error("hydrate: apply snapshot", "error", err)
		}
	case !errors.Is(err, store.ErrNotFound):
		r.logger.Error("hydrate: read snapshot", "error", err)
	}

	pc, err := r.store.Get(ctx, r.passcodeKey())
	switch {
	case err == nil:
		r.passcode = string(pc)
	case !errors.Is(err, store.ErrNotFound):
		r.logger.Error("hydrate: read passcode", "error", err)
	}
}

// post parks fn in the mailbox. Returns ErrClosed after Close.
func (r *Room) post(fn func()) error {
	select {
	case <-r.done:
		return ErrClosed
	default:
	}

	select {
	case r.mailbox <- fn:
		return nil
	case <-r.done:
		return ErrClosed
	}
}

// ask posts fn and waits for it to run.
func (r *Room) ask(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	if err := r.post(func() { fn(); close(ran) }); err != nil {
		return err
	}
	select {
	case <-ran:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrClosed
	}
}

// Admit runs the passcode gate for a connecting client. A nil return
// admits; ErrUnauthorized rejects. The first client to supply a
// passcode while the room is unset fixes it for the room, and that
// write completes before Admit returns.
func (r *Room) Admit(ctx context.Context, passcode string) error {
	var result error
	if err := r.ask(ctx, func() { result = r.admit(passcode) }); err != nil {
		return err
	}
	return result
}

func (r *Room) admit(supplied string) error {
	if r.passcode == "" {
		if supplied != "" {
			if err := r.store.Put(context.Background(), r.passcodeKey(), []byte(supplied)); err != nil {
				r.hooks.persistError()
				r.logger.Error("persist passcode", "error", err)
			}
			r.passcode = supplied
			r.logger.Info("passcode set")
		}
		return nil
	}
	if supplied == r.passcode {
		return nil
	}
	return ErrUnauthorized
}

// Join registers an admitted session and sends it the sync handshake
// initiation plus, when any presence is known, a full awareness
// snapshot. Both go to the new session only.
func (r *Room) Join(t Transport, token string) error {
	return r.post(func() {
		r.sessions[t] = token
		r.logger.Info("session joined", "token", token, "sessions", len(r.sessions))

		r.sendTo(t, protocol.EncodeSyncMessage(r.doc.BeginSync()))
		if ids := r.aware.ClientIDs(); len(ids) > 0 {
			r.sendTo(t, protocol.EncodeAwarenessMessage(r.aware.EncodeState(ids)))
		}
	})
}

// HandleFrame dispatches one inbound binary frame from the session
// owning t. Malformed or unrecognized frames are ignored without
// closing the connection.
func (r *Room) HandleFrame(t Transport, frame []byte) error {
	return r.post(func() { r.dispatch(t, frame) })
}

func (r *Room) dispatch(t Transport, frame []byte) {
	token, ok := r.sessions[t]
	if !ok {
		return
	}

	mt, payload, err := protocol.DecodeMessageType(frame)
	if err != nil {
		r.logger.Debug("drop malformed frame", "error", err)
		return
	}
	r.hooks.message(mt)

	switch mt {
	case protocol.MessageSync:
		resp, err := r.doc.HandleSyncMessage(payload, token)
		if err != nil {
			r.logger.Warn("sync message rejected", "error", err)
			return
		}
		if len(resp) > 0 {
			r.sendTo(t, protocol.EncodeSyncMessage(resp))
		}

	case protocol.MessageAwareness:
		blob, err := protocol.DecodeAwarenessPayload(payload)
		if err != nil {
			r.logger.Debug("drop malformed awareness frame", "error", err)
			return
		}
		if err := r.aware.ApplyUpdate(blob, token); err != nil {
			r.logger.Warn("awareness update rejected", "error", err)
		}

	case protocol.MessageQueryAwareness:
		blob := r.aware.EncodeState(r.aware.ClientIDs())
		r.sendTo(t, protocol.EncodeAwarenessMessage(blob))

	case protocol.MessageAuth:
		// Reserved, inert.

	default:
		r.logger.Debug("ignore unknown message type", "type", uint64(mt))
	}
}

// Leave removes a closed session. Every client id currently known to
// the room's awareness state is tombstoned, not only ids owned by the
// departing session; this mirrors a one-client-per-connection model
// where narrowing the set makes no difference. When the table empties
// the passcode resets to unset so the next arrival may fix a new one.
func (r *Room) Leave(t Transport) error {
	return r.post(func() {
		if _, ok := r.sessions[t]; !ok {
			return
		}
		delete(r.sessions, t)
		r.aware.RemoveClients(r.aware.ClientIDs(), disconnectReason)
		r.logger.Info("session left", "sessions", len(r.sessions))

		if len(r.sessions) == 0 {
			r.passcode = ""
			if err := r.store.Delete(context.Background(), r.passcodeKey()); err != nil {
				r.hooks.persistError()
				r.logger.Error("delete passcode", "error", err)
			}
			r.logger.Info("room empty, passcode reset")
		}
	})
}

// SessionCount reports the current session table size. It flushes the
// mailbox, which also makes it a synchronization point for tests.
func (r *Room) SessionCount(ctx context.Context) (int, error) {
	var n int
	if err := r.ask(ctx, func() { n = len(r.sessions) }); err != nil {
		return 0, err
	}
	return n, nil
}

// handleDocUpdate is the doc engine's update port: broadcast to every
// session except the origin, then persist the full snapshot. It runs on
// the actor goroutine because engines are only invoked there.
func (r *Room) handleDocUpdate(update []byte, origin string) {
	if !r.ready {
		return // hydration replay
	}

	e := protocol.NewEncoder()
	e.WriteUvarint(uint64(protocol.MessageSync))
	e.WriteUvarint(uint64(protocol.SyncUpdate))
	e.WriteBytes(update)
	r.broadcast(e.Bytes(), origin)

	// One full-snapshot write per mutation, no coalescing. A known
	// scaling limit kept as such; the write stays on the actor
	// goroutine so snapshots reach the store in order.
	if err := r.store.Put(context.Background(), r.docKey(), r.doc.EncodeState()); err != nil {
		r.hooks.persistError()
		r.logger.Error("persist snapshot", "error", err)
	}
}

// handleAwarenessUpdate is the awareness engine's update port. Adds and
// updates broadcast together; removals broadcast separately, always as
// their own frame.
func (r *Room) handleAwarenessUpdate(ev awareness.Event, origin string) {
	if !r.ready {
		return
	}

	if changed := append(append([]uint64(nil), ev.Added...), ev.Updated...); len(changed) > 0 {
		r.broadcast(protocol.EncodeAwarenessMessage(r.aware.EncodeState(changed)), origin)
	}
	if len(ev.Removed) > 0 {
		r.broadcast(protocol.EncodeAwarenessMessage(r.aware.EncodeState(ev.Removed)), origin)
	}
}

// broadcast sends msg to every session whose token differs from origin.
// A failed send drops the entry immediately; deleting the key under
// iteration is well-defined for Go maps, so no snapshot of the table is
// taken.
func (r *Room) broadcast(msg []byte, origin string) {
	n := 0
	for t, token := range r.sessions {
		if token == origin {
			continue
		}
		if err := t.Send(msg); err != nil {
			r.hooks.sendFailure()
			r.logger.Warn("send failed, dropping session", "token", token, "error", err)
			delete(r.sessions, t)
			continue
		}
		n++
	}
	r.hooks.broadcast(n)
}

// sendTo sends msg to a single session, dropping it from the table on
// failure.
func (r *Room) sendTo(t Transport, msg []byte) {
	if err := t.Send(msg); err != nil {
		r.hooks.sendFailure()
		r.logger.Warn("send failed, dropping session", "error", err)
		delete(r.sessions, t)
	}
}

func (r *Room) docKey() string {
	return "doc/" + r.name
}

func (r *Room) passcodeKey() string {
	return "passcode/" + r.name
}

// Nil-safe hook invocations.

func (h *Hooks) message(mt protocol.MessageType) {
	if h.Message != nil {
		h.Message(mt)
	}
}

func (h *Hooks) broadcast(n int) {
	if h.Broadcast != nil {
		h.Broadcast(n)
	}
}

func (h *Hooks) sendFailure() {
	if h.SendFailure != nil {
		h.SendFailure()
	}
}

func (h *Hooks) persistError() {
	if h.PersistError != nil {
		h.PersistError()
	}
}
