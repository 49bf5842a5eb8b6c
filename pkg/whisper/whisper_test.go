package whisper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestWords(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"words", `{"text":"hello world","words":[{"word":"hello","start":0.1,"end":0.5},{"word":"world","start":0.5,"end":1.0}]}`, 2},
		{"segments", `{"text":"hello big world","segments":[{"id":0,"start":1.0,"end":4.0,"text":" hello big world"}]}`, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/audio/transcriptions" {
					t.Errorf("path = %s; want /v1/audio/transcriptions", r.URL.Path)
				}
				if err := r.ParseMultipartForm(1 << 20); err != nil {
					t.Errorf("ParseMultipartForm() err = %v", err)
				}
				if got := r.FormValue("timestamp_granularities[]"); got != "word" {
					t.Errorf("timestamp_granularities[] = %q; want word", got)
				}
				if got := r.FormValue("response_format"); got != "verbose_json" {
					t.Errorf("response_format = %q; want verbose_json", got)
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			audio := filepath.Join(t.TempDir(), "song.mp3")
			if err := os.WriteFile(audio, []byte("mp3"), 0644); err != nil {
				t.Fatal(err)
			}
			c := New(&Config{Token: "token", BaseURL: srv.URL + "/v1"})
			got, err := c.Words(context.Background(), audio)
			if err != nil {
				t.Fatalf("Words() err = %v; want nil", err)
			}
			if len(got) != tt.want {
				t.Fatalf("Words() = %v; want %d words", got, tt.want)
			}
			for i := 1; i < len(got); i++ {
				if got[i].Start < got[i-1].Start {
					t.Fatalf("Words() = %v; want ordered", got)
				}
			}
		})
	}
}
