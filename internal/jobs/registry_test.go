package jobs

import (
	"testing"
)

type fakeHandler struct {
	typ string
	ran int
}

func (f *fakeHandler) Type() string       { return f.typ }
func (f *fakeHandler) Run(*Context) error { f.ran++; return nil }

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	h := &fakeHandler{typ: "file_ingest"}
	if err := r.Register(h); err != nil {
		t.Fatalf("register: %v", err)
	}
	got, ok := r.Get("file_ingest")
	if !ok || got != Handler(h) {
		t.Fatalf("expected registered handler back, got %v ok=%v", got, ok)
	}
	if _, ok := r.Get("unknown"); ok {
		t.Fatalf("expected miss for unknown type")
	}
}

func TestRegistryRejectsDuplicatesAndInvalid(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(nil); err == nil {
		t.Fatalf("expected error for nil handler")
	}
	if err := r.Register(&fakeHandler{typ: ""}); err == nil {
		t.Fatalf("expected error for empty type")
	}
	if err := r.Register(&fakeHandler{typ: "file_ingest"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(&fakeHandler{typ: "file_ingest"}); err == nil {
		t.Fatalf("expected error for duplicate type")
	}
}
