package memstore

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/miretskiy/tiercompactor/objectstore"
)

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.Put(ctx, "a/b", bytes.NewReader([]byte("hello"))); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	rc, err := s.Get(ctx, "a/b")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("data = %q, want %q", data, "hello")
	}
}

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	s := New()
	_, err := s.Get(context.Background(), "missing")
	if err != objectstore.ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.Delete(ctx, "never-existed"); err != nil {
		t.Fatalf("Delete() on missing path should not error, got %v", err)
	}

	_ = s.Put(ctx, "x", bytes.NewReader([]byte("y")))
	if err := s.Delete(ctx, "x"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	exists, _ := s.Exists(ctx, "x")
	if exists {
		t.Error("expected x to no longer exist after Delete")
	}
}
