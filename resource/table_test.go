package resource

import (
	"testing"
)

type testObserver struct {
	events []Event
}

func (o *testObserver) OnResourceEvent(e Event) {
	o.events = append(o.events, e)
}

func TestUnifiedTable_Basic(t *testing.T) {
	table := NewTable()

	// Insert
	h := table.Insert(KindNode, "test")
	if h == 0 {
		t.Fatal("Expected non-zero handle")
	}

	// Get
	val, ok := table.Get(h)
	if !ok {
		t.Fatal("Get failed")
	}
	if val != "test" {
		t.Fatalf("Expected 'test', got %v", val)
	}

	// GetTyped with correct type
	_, ok = table.GetTyped(h, KindNode)
	if !ok {
		t.Fatal("GetTyped with correct type failed")
	}

	// GetTyped with wrong type
	_, ok = table.GetTyped(h, KindClient)
	if ok {
		t.Fatal("GetTyped with wrong type should fail")
	}

	// Remove
	val, ok = table.Remove(h)
	if !ok {
		t.Fatal("Remove failed")
	}
	if val != "test" {
		t.Fatalf("Expected 'test', got %v", val)
	}

	// Len should be 0
	if table.Len() != 0 {
		t.Fatal("Expected Len() == 0 after Remove")
	}
}

func TestUnifiedTable_Observer(t *testing.T) {
	table := NewTable()
	obs := &testObserver{}
	table.Subscribe(obs)

	// Insert should trigger EventCreated
	h := table.Insert(KindNode, "test")
	if len(obs.events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(obs.events))
	}
	if obs.events[0].Type != EventCreated {
		t.Fatal("Expected EventCreated")
	}
	if obs.events[0].Handle != h {
		t.Fatal("Wrong handle in event")
	}

	// Remove should trigger EventDropped
	table.Remove(h)
	if len(obs.events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(obs.events))
	}
	if obs.events[1].Type != EventDropped {
		t.Fatal("Expected EventDropped")
	}

	// Unsubscribe
	table.Unsubscribe(obs)
	table.Insert(KindNode, "test2")
	if len(obs.events) != 2 {
		t.Fatal("Should not receive events after Unsubscribe")
	}
}

func TestUnifiedTable_Clear(t *testing.T) {
	table := NewTable()

	table.Insert(KindNode, "a")
	table.Insert(KindNode, "b")
	table.Insert(KindNode, "c")

	if table.Len() != 3 {
		t.Fatal("Expected Len() == 3")
	}

	table.Clear()

	if table.Len() != 0 {
		t.Fatal("Expected Len() == 0 after Clear")
	}
}

func TestUnifiedTable_Close(t *testing.T) {
	table := NewTable()

	table.Insert(KindNode, "a")
	table.Insert(KindNode, "b")

	if err := table.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Insert should fail after Close
	h := table.Insert(KindNode, "c")
	if h != 0 {
		t.Fatal("Expected Insert to fail after Close")
	}
}

func TestUnifiedTable_Borrow(t *testing.T) {
	table := NewTable()
	h := table.Insert(KindSession, "session")

	if _, ok := table.Borrow(h, KindClient); ok {
		t.Fatal("Borrow with wrong kind should fail")
	}

	v, ok := table.Borrow(h, KindSession)
	if !ok || v != "session" {
		t.Fatalf("Borrow failed, got %v", v)
	}

	// Remove is refused while the handle is pinned
	if _, ok := table.Remove(h); ok {
		t.Fatal("Remove should fail with outstanding borrow")
	}

	table.ReturnBorrow(h)
	if _, ok := table.Remove(h); !ok {
		t.Fatal("Remove should succeed after ReturnBorrow")
	}
	if _, ok := table.Remove(h); ok {
		t.Fatal("Second Remove should fail")
	}
}

func TestTyped(t *testing.T) {
	table := NewTable()
	nodes := NewTyped[string](table, KindNode)
	clients := NewTyped[*dropCounter](table, KindClient)

	h := nodes.Insert("ns=2;s=Demo")
	c := clients.Insert(&dropCounter{})

	if v, ok := nodes.Get(h); !ok || v != "ns=2;s=Demo" {
		t.Fatalf("Get failed, got %q", v)
	}
	if _, ok := nodes.Get(c); ok {
		t.Fatal("Typed Get must reject a handle of another kind")
	}
	if _, ok := nodes.Remove(c); ok {
		t.Fatal("Typed Remove must reject a handle of another kind")
	}

	count := 0
	nodes.Each(func(Handle, string) bool {
		count++
		return true
	})
	if count != 1 {
		t.Fatalf("Expected 1 node, got %d", count)
	}

	d, ok := clients.Remove(c)
	if !ok || d.count != 1 {
		t.Fatal("Typed Remove should drop the value")
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

	h := table.Insert(KindSession, d)
	table.Remove(h)

	if d.count != 1 {
		t.Fatalf("Expected Drop() to be called once, called %d times", d.count)
	}
}
