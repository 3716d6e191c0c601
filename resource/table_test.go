package resource

import (
	"errors"
	"testing"
)

type testObserver struct {
	events []Event
}

func (o *testObserver) OnResourceEvent(e Event) {
	o.events = append(o.events, e)
}

func (o *testObserver) dropped() []Handle {
	var out []Handle
	for _, e := range o.events {
		if e.Type == EventDropped {
			out = append(out, e.Handle)
		}
	}
	return out
}

func TestUnifiedTable_Basic(t *testing.T) {
	table := NewTable()

	h := table.Insert(1, "test")
	if h == 0 {
		t.Fatal("Expected non-zero handle")
	}

	val, ok := table.Get(h)
	if !ok {
		t.Fatal("Get failed")
	}
	if val != "test" {
		t.Fatalf("Expected 'test', got %v", val)
	}

	if _, ok := table.GetTyped(h, 1); !ok {
		t.Fatal("GetTyped with correct type failed")
	}
	if _, ok := table.GetTyped(h, 2); ok {
		t.Fatal("GetTyped with wrong type should fail")
	}

	val, err := table.Remove(h)
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if val != "test" {
		t.Fatalf("Expected 'test', got %v", val)
	}

	if table.Len() != 0 {
		t.Fatal("Expected Len() == 0 after Remove")
	}
}

func TestUnifiedTable_Observer(t *testing.T) {
	table := NewTable()
	obs := &testObserver{}
	table.Subscribe(obs)

	h := table.Insert(1, "test")
	if len(obs.events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(obs.events))
	}
	if obs.events[0].Type != EventCreated {
		t.Fatal("Expected EventCreated")
	}
	if obs.events[0].Handle != h {
		t.Fatal("Wrong handle in event")
	}

	table.Borrow(h)
	table.ReturnBorrow(h)
	if obs.events[1].Type != EventBorrowed || obs.events[2].Type != EventBorrowReturned {
		t.Fatalf("expected borrow events, got %v %v", obs.events[1].Type, obs.events[2].Type)
	}

	_, _ = table.Remove(h)
	if len(obs.events) != 4 {
		t.Fatalf("Expected 4 events, got %d", len(obs.events))
	}
	if obs.events[3].Type != EventDropped {
		t.Fatal("Expected EventDropped")
	}

	table.Unsubscribe(obs)
	table.Insert(1, "test2")
	if len(obs.events) != 4 {
		t.Fatal("Should not receive events after Unsubscribe")
	}
}

func TestUnifiedTable_InsertChild(t *testing.T) {
	table := NewTable()
	obs := &testObserver{}
	table.Subscribe(obs)

	parent := table.Insert(1, "stream")
	child, err := table.InsertChild(parent, 2, "pollable")
	if err != nil {
		t.Fatalf("InsertChild: %v", err)
	}
	if obs.events[1].Parent != parent {
		t.Fatalf("created event should carry parent %d, got %d", parent, obs.events[1].Parent)
	}

	if _, err := table.Remove(parent); !errors.Is(err, ErrHasChildren) {
		t.Fatalf("expected ErrHasChildren, got %v", err)
	}
	if _, ok := table.Get(parent); !ok {
		t.Fatal("refused removal must leave the parent in place")
	}

	if _, err := table.Remove(child); err != nil {
		t.Fatalf("remove child: %v", err)
	}
	if _, err := table.Remove(parent); err != nil {
		t.Fatalf("remove parent: %v", err)
	}
}

func TestUnifiedTable_RemoveTree(t *testing.T) {
	table := NewTable()
	obs := &testObserver{}
	table.Subscribe(obs)

	socket := table.Insert(1, "socket")
	in, _ := table.InsertChild(socket, 2, "in")
	out, _ := table.InsertChild(socket, 2, "out")
	sub, _ := table.InsertChild(in, 3, "sub")

	if err := table.RemoveTree(socket); err != nil {
		t.Fatalf("RemoveTree: %v", err)
	}
	if table.Len() != 0 {
		t.Fatalf("expected empty table, got %d", table.Len())
	}

	pos := map[Handle]int{}
	for i, h := range obs.dropped() {
		pos[h] = i
	}
	if pos[sub] > pos[in] || pos[in] > pos[socket] || pos[out] > pos[socket] {
		t.Fatalf("children must be dropped before parents: %v", obs.dropped())
	}

	if err := table.RemoveTree(socket); !errors.Is(err, ErrInvalidHandle) {
		t.Fatalf("expected ErrInvalidHandle, got %v", err)
	}
}

func TestUnifiedTable_RemoveTreeBorrowedChild(t *testing.T) {
	table := NewTable()

	parent := table.Insert(1, "p")
	child, _ := table.InsertChild(parent, 1, "c")
	table.Borrow(child)

	if err := table.RemoveTree(parent); !errors.Is(err, ErrOutstandingBorrow) {
		t.Fatalf("expected ErrOutstandingBorrow, got %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("nothing should have been dropped, got len %d", table.Len())
	}
}

func TestUnifiedTable_Clear(t *testing.T) {
	table := NewTable()
	obs := &testObserver{}
	table.Subscribe(obs)

	a := table.Insert(1, "a")
	b, _ := table.InsertChild(a, 1, "b")
	c, _ := table.InsertChild(b, 1, "c")

	table.Clear()

	if table.Len() != 0 {
		t.Fatal("Expected Len() == 0 after Clear")
	}
	dropped := obs.dropped()
	if len(dropped) != 3 || dropped[0] != c || dropped[1] != b || dropped[2] != a {
		t.Fatalf("expected drop order [%d %d %d], got %v", c, b, a, dropped)
	}
}

func TestUnifiedTable_Close(t *testing.T) {
	table := NewTable()

	table.Insert(1, "a")
	table.Insert(1, "b")

	if err := table.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if h := table.Insert(1, "c"); h != 0 {
		t.Fatal("Expected Insert to fail after Close")
	}
	if _, err := table.InsertChild(1, 1, "c"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := table.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

type dropCounter struct {
	count int
}

func (d *dropCounter) Drop() {
	d.count++
}

func TestUnifiedTable_DropperInterface(t *testing.T) {
	table := NewTable()
	d := &dropCounter{}

	h := table.Insert(1, d)
	_, _ = table.Remove(h)

	if d.count != 1 {
		t.Fatalf("Expected Drop() to be called once, called %d times", d.count)
	}

	_, _ = table.Remove(h)
	if d.count != 1 {
		t.Fatalf("double remove must not drop twice, called %d times", d.count)
	}
}
