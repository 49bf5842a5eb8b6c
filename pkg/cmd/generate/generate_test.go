package generate

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadInput(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		data string
	}{
		{"songs.csv", "name,title,lyrics,style,model,instrumental\nrain,Rain,\"[Verse]\nIt rains\",lofi,V4_5,false\nsun,Sun,Here comes the sun,pop,,false\n"},
		{"songs.json", `[{"name":"rain","title":"Rain","lyrics":"[Verse]\nIt rains","style":"lofi","model":"V4_5"},{"name":"sun","title":"Sun","lyrics":"Here comes the sun","style":"pop"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			if err := os.WriteFile(path, []byte(tt.data), 0644); err != nil {
				t.Fatal(err)
			}
			got, err := readInput(path)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 {
				t.Fatalf("readInput() = %d songs; want 2", len(got))
			}
			if got[0].Name != "rain" || got[0].Lyrics != "[Verse]\nIt rains" || got[0].Model != "V4_5" {
				t.Fatalf("readInput() song 0 = %+v", got[0])
			}
			if got[1].Style != "pop" {
				t.Fatalf("readInput() song 1 style = %q; want %q", got[1].Style, "pop")
			}
		})
	}
}

func TestSongs(t *testing.T) {
	if _, err := songs(&Config{}); err == nil {
		t.Fatal("songs() err = nil; want error")
	}
	path := filepath.Join(t.TempDir(), "lyrics.txt")
	if err := os.WriteFile(path, []byte("la la la"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := songs(&Config{LyricsFile: path, Title: "La"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Lyrics != "la la la" || got[0].Title != "La" {
		t.Fatalf("songs() = %+v", got)
	}
	if _, err := readInput(filepath.Join(t.TempDir(), "songs.txt")); err == nil {
		t.Fatal("readInput() err = nil; want error")
	}
}
