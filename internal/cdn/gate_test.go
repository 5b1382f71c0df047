package cdn

import "testing"

func TestInitGateReplaysInOrder(t *testing.T) {
	gate := &InitGate{}
	var order []int
	for i := 1; i <= 3; i++ {
		gate.Enqueue(func() { order = append(order, i) })
	}
	if len(order) != 0 || gate.Pending() != 3 {
		t.Fatalf("requests should wait until open")
	}
	if !gate.Open() {
		t.Fatalf("first open should replay")
	}
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("unexpected replay order %v", order)
	}
	if gate.Pending() != 0 || !gate.Ready() {
		t.Fatalf("gate should be drained and ready")
	}
}

func TestInitGateOpenIsIdempotent(t *testing.T) {
	gate := &InitGate{}
	calls := 0
	gate.Enqueue(func() { calls++ })
	gate.Open()
	if gate.Open() {
		t.Fatalf("second open should report false")
	}
	if calls != 1 {
		t.Fatalf("queued request replayed %d times", calls)
	}
}

func TestInitGateRunsImmediatelyWhenReady(t *testing.T) {
	gate := &InitGate{}
	gate.Open()
	ran := false
	gate.Enqueue(func() { ran = true })
	if !ran {
		t.Fatalf("enqueue after open should run synchronously")
	}
}
