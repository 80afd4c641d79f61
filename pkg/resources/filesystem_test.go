package resources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestFilesystemProviderResolvesDefaultRoots(t *testing.T) {
	cacheDir := t.TempDir()
	p, err := NewFilesystemProvider("", cacheDir, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.CacheRoot() != cacheDir {
		t.Errorf("expected cache root %q, got %q", cacheDir, p.CacheRoot())
	}
	if p.GetModelsDir("whisper") != filepath.Join(p.ModelsRoot(), "whisper") {
		t.Errorf("unexpected models dir: %s", p.GetModelsDir("whisper"))
	}
}

func TestFilesystemProviderDownloadAndVerify(t *testing.T) {
	content := []byte("hello model bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer srv.Close()

	cacheDir := t.TempDir()
	p, err := NewFilesystemProvider("", cacheDir, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path, err := p.DownloadFile(context.Background(), srv.URL, "model.bin", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error reading downloaded file: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("downloaded content mismatch: got %q want %q", got, content)
	}

	if _, err := os.Stat(path + ".part"); !os.IsNotExist(err) {
		t.Errorf("expected .part temp file to be removed after rename")
	}
}

func TestFilesystemProviderDownloadSHAMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("some bytes"))
	}))
	defer srv.Close()

	p, err := NewFilesystemProvider("", t.TempDir(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = p.DownloadFile(context.Background(), srv.URL, "model.bin", "0000000000000000000000000000000000000000000000000000000000000000", nil)
	if err == nil {
		t.Errorf("expected sha256 mismatch error")
	}
}
