package ring

import (
	"testing"

	"tickcapture/internal/wire"
)

func rec(seq uint64) wire.Record {
	var r wire.Record
	r.SequenceNumber = seq
	return r
}

func TestNewRoundsUpToPowerOfTwo(t *testing.T) {
	b := New(100000)
	if b.Capacity() != 131072 {
		t.Fatalf("capacity = %d, want 131072", b.Capacity())
	}
}

func TestPushPopOrderPreserving(t *testing.T) {
	b := New(8)
	for i := uint64(1); i <= 5; i++ {
		if !b.Push(ptr(rec(i))) {
			t.Fatalf("push %d failed unexpectedly", i)
		}
	}
	for i := uint64(1); i <= 5; i++ {
		item, ok := b.Pop()
		if !ok {
			t.Fatalf("pop %d: expected ok", i)
		}
		if item.SequenceNumber != i {
			t.Fatalf("pop order: got %d, want %d", item.SequenceNumber, i)
		}
	}
}

func TestBufferExactlyFull(t *testing.T) {
	b := New(4) // capacity 4, usable slots 3
	pushed := 0
	for {
		if !b.Push(ptr(rec(uint64(pushed + 1)))) {
			break
		}
		pushed++
	}
	if pushed != b.Capacity()-1 {
		t.Fatalf("pushed %d items, want %d (capacity-1)", pushed, b.Capacity()-1)
	}
	if b.Size() > b.Capacity()-1 {
		t.Fatalf("size() = %d exceeds capacity-1", b.Size())
	}
	if b.PushFailures() == 0 {
		t.Fatal("expected at least one push failure once full")
	}

	before := rec(999)
	_ = before
	// The rejected push must not have mutated any slot: popping back
	// out yields exactly the sequence we pushed, nothing extra.
	for i := 1; i <= pushed; i++ {
		item, ok := b.Pop()
		if !ok || item.SequenceNumber != uint64(i) {
			t.Fatalf("unexpected drain order at %d: %+v ok=%v", i, item, ok)
		}
	}
}

func TestPopBulkStopsAtEmpty(t *testing.T) {
	b := New(16)
	for i := uint64(1); i <= 5; i++ {
		b.Push(ptr(rec(i)))
	}
	out := make([]wire.Record, 32)
	n := b.PopBulk(out)
	if n != 5 {
		t.Fatalf("PopBulk returned %d, want 5", n)
	}
	for i := 0; i < 5; i++ {
		if out[i].SequenceNumber != uint64(i+1) {
			t.Fatalf("PopBulk out-of-order at %d", i)
		}
	}
}

func TestSizeNeverExceedsCapacityMinusOne(t *testing.T) {
	b := New(4)
	for i := 0; i < 100; i++ {
		b.Push(ptr(rec(uint64(i))))
		if b.Size() > b.Capacity()-1 {
			t.Fatalf("size() = %d exceeds capacity-1 = %d", b.Size(), b.Capacity()-1)
		}
	}
}

func TestOfflineMultisetEquality(t *testing.T) {
	b := New(64)
	const n = 200
	pushedCount := 0
	pushed := make(map[uint64]int)
	popped := make(map[uint64]int)
	for i := 1; i <= n; i++ {
		if b.Push(ptr(rec(uint64(i)))) {
			pushedCount++
			pushed[uint64(i)]++
		}
		if out, ok := b.Pop(); ok {
			popped[out.SequenceNumber]++
		}
	}
	// total_pushed - total_popped must equal the current size.
	if int(b.TotalPushed())-int(b.TotalPopped()) != b.Size() {
		t.Fatalf("pushed-popped mismatch with size: pushed=%d popped=%d size=%d",
			b.TotalPushed(), b.TotalPopped(), b.Size())
	}
	// Completing the run: drain what is left, then the multiset of popped
	// values must equal the multiset of pushed values.
	for {
		out, ok := b.Pop()
		if !ok {
			break
		}
		popped[out.SequenceNumber]++
	}
	if len(popped) != len(pushed) {
		t.Fatalf("popped %d distinct values, pushed %d", len(popped), len(pushed))
	}
	for v, c := range pushed {
		if popped[v] != c {
			t.Fatalf("value %d: pushed %d times, popped %d times", v, c, popped[v])
		}
	}
}

func ptr(r wire.Record) *wire.Record { return &r }
