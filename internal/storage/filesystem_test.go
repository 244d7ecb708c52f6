package storage

import (
	"context"
	"testing"
)

func TestWriteAndReadRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	key, err := store.Write(context.Background(), "out1.png", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if key != "out1.png" {
		t.Fatalf("key = %q", key)
	}
	data, err := store.Read(context.Background(), "out1.png")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Fatalf("data = %q", data)
	}
}

func TestKeysCannotEscapeRoot(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.Write(context.Background(), "../escape.png", []byte("x")); err == nil {
		t.Fatalf("expected traversal rejection")
	}
	if _, err := store.Read(context.Background(), "../../etc/passwd"); err == nil {
		t.Fatalf("expected traversal rejection")
	}
}
