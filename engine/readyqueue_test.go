package engine

import "testing"

func TestReadyQueue_PopOrdersByPriorityThenInsertion(t *testing.T) {
	q := newReadyQueue()
	var order []string
	record := func(name string) func() { return func() { order = append(order, name) } }

	q.push("low", 0, record("low"))
	q.push("high", 5, record("high"))
	q.push("mid-first", 2, record("mid-first"))
	q.push("mid-second", 2, record("mid-second"))

	for i := 0; i < 4; i++ {
		task, ok := q.pop()
		if !ok {
			t.Fatalf("pop() ok = false, want true")
		}
		task.run()
	}

	want := []string{"high", "mid-first", "mid-second", "low"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestReadyQueue_PushAfterCloseIsDropped(t *testing.T) {
	q := newReadyQueue()
	q.close()
	if q.push("n", 0, func() {}) {
		t.Fatalf("push() after close = true, want false")
	}
}

func TestReadyQueue_PopDrainsThenReturnsFalse(t *testing.T) {
	q := newReadyQueue()
	q.push("n", 0, func() {})
	q.close()

	if _, ok := q.pop(); !ok {
		t.Fatalf("pop() ok = false, want true for already-queued task")
	}
	if _, ok := q.pop(); ok {
		t.Fatalf("pop() ok = true, want false once drained and closed")
	}
}
