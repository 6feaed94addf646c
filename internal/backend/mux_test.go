package backend

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestOpMuxRegisterResolve(t *testing.T) {
	m := newOpMux()
	id, ch := m.register()
	if m.len() != 1 {
		t.Fatalf("len = %d, want 1", m.len())
	}

	if !m.resolve(id, json.RawMessage(`{"ok":true}`), nil) {
		t.Fatal("resolve returned false for a pending id")
	}
	res := <-ch
	if res.err != nil || string(res.data) != `{"ok":true}` {
		t.Fatalf("result = %+v", res)
	}
	if m.len() != 0 {
		t.Fatalf("len = %d, want 0 after resolve", m.len())
	}
}

func TestOpMuxIDsIncrease(t *testing.T) {
	m := newOpMux()
	prev, _ := m.register()
	for i := 0; i < 10; i++ {
		id, _ := m.register()
		if id <= prev {
			t.Fatalf("id %d not greater than previous %d", id, prev)
		}
		prev = id
	}
}

func TestOpMuxResolveUnknownID(t *testing.T) {
	m := newOpMux()
	if m.resolve(42, nil, nil) {
		t.Fatal("resolve returned true for an unregistered id")
	}
}

func TestOpMuxResolveAfterDrop(t *testing.T) {
	m := newOpMux()
	id, _ := m.register()
	m.drop(id)
	if m.len() != 0 {
		t.Fatalf("len = %d, want 0 after drop", m.len())
	}
	// The late response must be reported as unmatched.
	if m.resolve(id, json.RawMessage(`{}`), nil) {
		t.Fatal("resolve returned true for a dropped id")
	}
}

func TestOpMuxResolveTwice(t *testing.T) {
	m := newOpMux()
	id, ch := m.register()
	if !m.resolve(id, nil, nil) {
		t.Fatal("first resolve failed")
	}
	<-ch
	if m.resolve(id, nil, nil) {
		t.Fatal("second resolve returned true")
	}
}

func TestOpMuxFailAll(t *testing.T) {
	m := newOpMux()
	cause := errors.New("worker gone")
	_, ch1 := m.register()
	_, ch2 := m.register()

	m.failAll(cause)
	if m.len() != 0 {
		t.Fatalf("len = %d, want 0 after failAll", m.len())
	}
	for _, ch := range []<-chan opResult{ch1, ch2} {
		res := <-ch
		if !errors.Is(res.err, cause) {
			t.Fatalf("err = %v, want %v", res.err, cause)
		}
	}
}
