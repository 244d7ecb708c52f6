package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUploadReturnsArtifactName(t *testing.T) {
	var gotField string
	var gotBytes []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/upload" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotField = header.Filename
		gotBytes, _ = io.ReadAll(file)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"filename":"input_0001.png"}`))
	}))
	defer srv.Close()

	uploader := NewUploader(UploaderOptions{BaseURL: srv.URL})
	name, err := uploader.Upload(context.Background(), "cat.png", []byte{0x89, 'P', 'N', 'G'})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if name != "input_0001.png" {
		t.Fatalf("name = %q", name)
	}
	if gotField != "cat.png" {
		t.Fatalf("sent filename = %q", gotField)
	}
	if len(gotBytes) != 4 {
		t.Fatalf("sent %d bytes, want 4", len(gotBytes))
	}
}

func TestUploadBackendRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":"input store is full"}`))
	}))
	defer srv.Close()

	uploader := NewUploader(UploaderOptions{BaseURL: srv.URL})
	_, err := uploader.Upload(context.Background(), "cat.png", []byte("data"))
	if !errors.Is(err, ErrUpload) {
		t.Fatalf("err = %v, want ErrUpload", err)
	}
}

func TestUploadTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	uploader := NewUploader(UploaderOptions{BaseURL: srv.URL})
	_, err := uploader.Upload(context.Background(), "cat.png", []byte("data"))
	if !errors.Is(err, ErrUpload) {
		t.Fatalf("err = %v, want ErrUpload", err)
	}
}

func TestUploadNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	uploader := NewUploader(UploaderOptions{BaseURL: srv.URL})
	_, err := uploader.Upload(context.Background(), "cat.png", []byte("data"))
	if !errors.Is(err, ErrUpload) {
		t.Fatalf("err = %v, want ErrUpload", err)
	}
}

func TestFetchArtifactBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/out1.png" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	fetcher := NewFetcher(srv.URL, nil)
	data, err := fetcher.Fetch(context.Background(), "out1.png")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Fatalf("data = %q", data)
	}

	if _, err := fetcher.Fetch(context.Background(), "missing.png"); err == nil {
		t.Fatalf("expected error for missing artifact")
	}
}
