package zip

import (
	stdzip "archive/zip"
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestBuildNamesEntriesFromSources(t *testing.T) {
	archive, err := Build("out_", []Entry{
		{Name: "cat.png", Data: []byte("cat-bytes")},
		{Name: "dog.png", Data: []byte("dog-bytes")},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	reader, err := stdzip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(reader.File) != 2 {
		t.Fatalf("entries = %d, want 2", len(reader.File))
	}
	if reader.File[0].Name != "out_cat.png" || reader.File[1].Name != "out_dog.png" {
		t.Fatalf("names = %q, %q", reader.File[0].Name, reader.File[1].Name)
	}
	rc, err := reader.File[1].Open()
	if err != nil {
		t.Fatalf("open entry: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read entry: %v", err)
	}
	if string(data) != "dog-bytes" {
		t.Fatalf("entry data = %q", data)
	}
}

func TestBuildEmptyFails(t *testing.T) {
	if _, err := Build("out_", nil); !errors.Is(err, ErrEmptyArchive) {
		t.Fatalf("err = %v, want ErrEmptyArchive", err)
	}
}
