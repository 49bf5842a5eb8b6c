package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLocal(t *testing.T) {
	dir := t.TempDir()
	fs, err := New("local", filepath.Join(dir, "remote"), "", false, nil)
	if err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(dir, "video.mp4")
	if err := os.WriteFile(src, []byte("video data"), 0644); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := fs.SetMP4(ctx, src, "song_1"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "remote", "song_1.mp4")); err != nil {
		t.Fatalf("stored file: %v", err)
	}
	dst := filepath.Join(dir, "copy.mp4")
	if err := fs.GetMP4(ctx, dst, "song_1"); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "video data" {
		t.Fatalf("GetMP4() = %q; want %q", b, "video data")
	}
	if err := fs.GetJPG(ctx, dst, "missing"); err == nil {
		t.Fatal("GetJPG() err = nil; want error")
	}
	if u := fs.URL(MP4("song_1")); u != "" {
		t.Fatalf("URL() = %q; want empty", u)
	}
	if err := fs.Delete(ctx, "song_1"); err != nil {
		t.Fatalf("Delete() err = %v; want nil", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "remote", "song_1.mp4")); !os.IsNotExist(err) {
		t.Fatalf("stored file after Delete() err = %v; want not exist", err)
	}
}

func TestNewInvalid(t *testing.T) {
	tests := []struct {
		typ  string
		conn string
	}{
		{"ftp", "x"},
		{"local", ""},
		{"s3", "nope"},
		{"s3", "key@bucket.region"},
		{"telegram", "token"},
	}
	for _, tt := range tests {
		if _, err := New(tt.typ, tt.conn, "", false, nil); err == nil {
			t.Fatalf("New(%q, %q) err = nil; want error", tt.typ, tt.conn)
		}
	}
}
