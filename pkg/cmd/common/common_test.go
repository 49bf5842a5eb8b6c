package common

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/igolaizola/lyricvid/pkg/overlay"
)

func TestLoadStyle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "style.yaml")
	data := "font-size: 48\ncolor: yellow\nmax-chars: 30\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := LoadStyle(path, overlay.DefaultStyle())
	if err != nil {
		t.Fatal(err)
	}
	want := overlay.DefaultStyle()
	want.FontSize = 48
	want.Color = "yellow"
	want.MaxChars = 30
	if got != want {
		t.Fatalf("LoadStyle() = %+v; want %+v", got, want)
	}
}

func TestHTTPClient(t *testing.T) {
	if _, err := HTTPClient("://bad"); err == nil {
		t.Fatal("HTTPClient() err = nil; want error")
	}
	c, err := HTTPClient("http://localhost:8080")
	if err != nil {
		t.Fatal(err)
	}
	if c.Transport == nil {
		t.Fatal("HTTPClient() transport = nil; want proxy transport")
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	env, err := Open(context.Background(), &Config{
		DBType: "json",
		DBConn: filepath.Join(dir, "savedData.json"),
		Output: dir,
		Timing: "none",
		Style:  overlay.DefaultStyle(),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer env.Close()
	if env.Pipeline == nil || env.API == nil || env.Store == nil {
		t.Fatalf("Open() = %+v; want every service", env)
	}
}
