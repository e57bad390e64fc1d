package nodestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/meshlab/meshviz/internal/sim"
)

func TestStore_EmptyUntilFirstPoll(t *testing.T) {
	s := New()
	if s.Ready() {
		t.Error("new store should not be ready")
	}
	if s.Snapshot() == nil || s.Snapshot().Len() != 0 {
		t.Error("new store should hold an empty snapshot")
	}
}

func TestStore_ReplaceRemovesAbsentNodes(t *testing.T) {
	s := New()
	s.Replace([]sim.Node{{ID: 3}, {ID: 7}, {ID: 9}})
	before := s.Snapshot()

	s.Replace([]sim.Node{{ID: 3}, {ID: 9}})
	after := s.Snapshot()

	if _, ok := after.Lookup(7); ok {
		t.Error("node 7 should be gone from the new snapshot")
	}
	if _, ok := before.Lookup(7); !ok {
		t.Error("old snapshot must stay unchanged")
	}
	if after.Seq() != before.Seq()+1 {
		t.Errorf("expected seq %d, got %d", before.Seq()+1, after.Seq())
	}
}

func TestSnapshot_KeepsPollOrder(t *testing.T) {
	s := New()
	s.Replace([]sim.Node{{ID: 5}, {ID: 1}, {ID: 3}})
	snap := s.Snapshot()

	want := []int{5, 1, 3}
	for i, id := range want {
		if snap.At(i).ID != id {
			t.Errorf("position %d: expected id %d, got %d", i, id, snap.At(i).ID)
		}
	}
}

func TestSnapshot_IsolatedFromCallerSlice(t *testing.T) {
	s := New()
	nodes := []sim.Node{{ID: 1, X: 10}}
	s.Replace(nodes)
	nodes[0].X = 999

	n, _ := s.Snapshot().Lookup(1)
	if n.X != 10 {
		t.Errorf("snapshot should copy its input, got x=%v", n.X)
	}

	out := s.Snapshot().Nodes()
	out[0].X = 555
	n, _ = s.Snapshot().Lookup(1)
	if n.X != 10 {
		t.Errorf("Nodes() should return a copy, got x=%v", n.X)
	}
}

type flakySource struct {
	calls int
}

func (f *flakySource) Nodes(ctx context.Context) ([]sim.Node, error) {
	f.calls++
	if f.calls > 1 {
		return nil, errors.New("service unavailable")
	}
	return []sim.Node{{ID: 1}, {ID: 2}}, nil
}

func TestPoller_FailureKeepsSnapshot(t *testing.T) {
	s := New()
	feed := s.Poller(&flakySource{}, time.Second, nil)

	_ = feed.Poll(context.Background())
	first := s.Snapshot()
	if err := feed.Poll(context.Background()); err == nil {
		t.Fatal("second poll should fail")
	}

	if s.Snapshot() != first {
		t.Error("failed poll must not replace the snapshot")
	}
	if !s.Ready() {
		t.Error("store should be ready after one successful poll")
	}
}
