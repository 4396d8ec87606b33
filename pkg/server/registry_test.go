package server

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cowave/cowave/pkg/store"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	g := NewRegistry(store.NewMemoryStore(), nil, NewMetrics(prometheus.NewRegistry()))
	t.Cleanup(g.Close)
	return g
}

func TestRegistryReturnsSameActorPerName(t *testing.T) {
	g := newTestRegistry(t)

	a := g.GetOrCreate("alpha")
	if a == nil {
		t.Fatal("GetOrCreate returned nil")
	}
	if b := g.GetOrCreate("alpha"); b != a {
		t.Error("second GetOrCreate returned a different actor")
	}
	if c := g.GetOrCreate("beta"); c == a {
		t.Error("distinct names share an actor")
	}
	if got := g.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
}

func TestRegistryCloseStopsActors(t *testing.T) {
	g := newTestRegistry(t)
	r := g.GetOrCreate("gamma")
	g.Close()

	if got := g.Len(); got != 0 {
		t.Errorf("Len() after Close = %d, want 0", got)
	}
	if err := r.Join(nil, "token"); err == nil {
		t.Error("closed actor accepted a join")
	}
}
