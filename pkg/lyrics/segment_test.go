package lyrics

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSegment(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		width int
		want  []Line
	}{
		{"empty", "", 0, nil},
		{"blank lines", "\n \r\n\t\n", 0, nil},
		{
			"markers",
			"[Verse]\nHello world\n\n[Chorus]\r\nGoodbye now",
			0,
			[]Line{
				{Words: []string{"[Verse]"}, Marker: true},
				{Words: []string{"Hello", "world"}},
				{Words: []string{"[Chorus]"}, Marker: true},
				{Words: []string{"Goodbye", "now"}},
			},
		},
		{
			"bare and parenthesized markers",
			"Verse 2:\n(Chorus)\nPre-Chorus\nVerse of my life",
			0,
			[]Line{
				{Words: []string{"Verse", "2:"}, Marker: true},
				{Words: []string{"(Chorus)"}, Marker: true},
				{Words: []string{"Pre-Chorus"}, Marker: true},
				{Words: []string{"Verse", "of", "my", "life"}},
			},
		},
		{
			"meta tag",
			"[Guitar solo]\nla la",
			0,
			[]Line{
				{Words: []string{"[Guitar", "solo]"}, Marker: true},
				{Words: []string{"la", "la"}},
			},
		},
		{
			"wrap",
			"one two three four",
			9,
			[]Line{
				{Words: []string{"one", "two"}},
				{Words: []string{"three"}},
				{Words: []string{"four"}},
			},
		},
		{
			"markers aren't wrapped",
			"[Instrumental break here]",
			5,
			[]Line{
				{Words: []string{"[Instrumental", "break", "here]"}, Marker: true},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Segment(tt.raw, tt.width)
			if err != nil {
				t.Fatalf("Segment() err = %v; want nil", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Segment() = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestSegmentCustomMarkers(t *testing.T) {
	got, err := Segment("Couplet 1\nEstribillo\nhola", 0, WithMarkers("estribillo"))
	if err != nil {
		t.Fatal(err)
	}
	var markers []bool
	for _, l := range got {
		markers = append(markers, l.Marker)
	}
	want := []bool{false, true, false}
	if !reflect.DeepEqual(markers, want) {
		t.Fatalf("markers = %v; want %v", markers, want)
	}
}

func TestSegmentInvalidInput(t *testing.T) {
	if _, err := Segment("bad \xff text", 10); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Segment() err = %v; want %v", err, ErrInvalidInput)
	}
}

func TestSegmentKeepsWords(t *testing.T) {
	tests := []string{
		"[Intro]\nLa vie est belle, mon ami\nOn danse encore\n\n[Refrain]\nEncore et encore, toujours plus fort que la nuit",
		"a b c d e f g h i j k l m n o p",
		"supercalifragilisticexpialidocious is a word\nshort",
		"  spaced    out\twords \r\n\r\n(Outro)\nbye",
	}
	for _, raw := range tests {
		for _, width := range []int{0, 1, 5, 12, 40} {
			lines, err := Segment(raw, width)
			if err != nil {
				t.Fatal(err)
			}
			var got []string
			for _, l := range lines {
				if !l.Marker {
					got = append(got, l.Words...)
				}
			}
			var want []string
			for _, l := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
				if isMarker := markerMatcher(DefaultMarkers); isMarker(strings.TrimSpace(l)) {
					continue
				}
				want = append(want, strings.Fields(l)...)
			}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("Segment(%q, %d) words = %v; want %v", raw, width, got, want)
			}
		}
	}
}

func TestWrap(t *testing.T) {
	words := strings.Fields("the quick brown fox jumps over the extraordinarily lazy dog")
	for _, width := range []int{1, 3, 5, 10, 20, 100} {
		rows := Wrap(words, width)
		var joined []string
		for _, row := range rows {
			text := strings.Join(row, " ")
			if n := utf8.RuneCountInString(text); n > width && len(row) > 1 {
				t.Fatalf("Wrap(%d) row %q has %d chars", width, text, n)
			}
			joined = append(joined, row...)
		}
		if !reflect.DeepEqual(joined, words) {
			t.Fatalf("Wrap(%d) = %v; want %v", width, joined, words)
		}
	}
	if got := Wrap(words, 0); len(got) != 1 {
		t.Fatalf("Wrap(0) rows = %d; want 1", len(got))
	}
	if got := WrapText("très été où", 8); !reflect.DeepEqual(got, []string{"très été", "où"}) {
		t.Fatalf("WrapText() = %q", got)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello,", "hello"},
		{"  Élan   VITAL! ", "elan vital"},
		{"Ã©tÃ©", "ete"},
		{"don't", "dont"},
		{"...", ""},
		{"niño", "nino"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Fatalf("Normalize(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestRepair(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Ã©tÃ©", "été"},
		{"été", "été"},
		{"château", "château"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := Repair(tt.in); got != tt.want {
			t.Fatalf("Repair(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}
