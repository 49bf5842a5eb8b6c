package lyrics

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMarkers are the section keywords recognized as structural markers.
var DefaultMarkers = []string{
	"intro", "verse", "couplet", "pre-chorus", "chorus", "post-chorus",
	"refrain", "hook", "bridge", "interlude", "instrumental", "break",
	"solo", "outro", "end",
}

type segmentConfig struct {
	markers []string
}

type SegmentOption func(*segmentConfig)

// WithMarkers replaces the default marker keywords.
func WithMarkers(markers ...string) SegmentOption {
	return func(c *segmentConfig) {
		c.markers = markers
	}
}

// Segment splits raw lyrics into lines. Blank lines are dropped, section
// markers are kept but flagged and lines wider than maxWidth characters are
// wrapped. A maxWidth lower than 1 disables wrapping.
func Segment(raw string, maxWidth int, opts ...SegmentOption) ([]Line, error) {
	if !utf8.ValidString(raw) {
		return nil, fmt.Errorf("%w: lyrics aren't valid utf-8", ErrInvalidInput)
	}
	cfg := &segmentConfig{markers: DefaultMarkers}
	for _, o := range opts {
		o(cfg)
	}
	isMarker := markerMatcher(cfg.markers)

	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")

	var lines []Line
	for _, text := range strings.Split(raw, "\n") {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		words := strings.Fields(text)
		if isMarker(text) {
			lines = append(lines, Line{Words: words, Marker: true})
			continue
		}
		for _, row := range Wrap(words, maxWidth) {
			lines = append(lines, Line{Words: row})
		}
	}
	return lines, nil
}

// Wrap greedily packs words into rows no wider than width characters. A word
// longer than width gets a row of its own and is never split.
func Wrap(words []string, width int) [][]string {
	if len(words) == 0 {
		return nil
	}
	if width < 1 {
		return [][]string{words}
	}
	var rows [][]string
	var row []string
	size := 0
	for _, w := range words {
		n := utf8.RuneCountInString(w)
		if len(row) > 0 && size+1+n > width {
			rows = append(rows, row)
			row, size = nil, 0
		}
		if len(row) > 0 {
			size++
		}
		row = append(row, w)
		size += n
	}
	return append(rows, row)
}

// WrapText is Wrap for a single string, returning the joined rows.
func WrapText(text string, width int) []string {
	var rows []string
	for _, row := range Wrap(strings.Fields(text), width) {
		rows = append(rows, strings.Join(row, " "))
	}
	return rows
}

// markerMatcher returns a function reporting whether a line is a structural
// marker. Any fully bracketed line is a marker (e.g. "[Chorus]", "[Guitar
// solo]"). Bare or parenthesized lines are markers when they consist of a
// keyword optionally followed by a number and a colon (e.g. "Verse 2:").
func markerMatcher(markers []string) func(string) bool {
	var keywords []string
	for _, m := range markers {
		m = strings.TrimSpace(strings.ToLower(m))
		if m == "" {
			continue
		}
		keywords = append(keywords, regexp.QuoteMeta(m))
	}
	var re *regexp.Regexp
	if len(keywords) > 0 {
		re = regexp.MustCompile(`^(?:` + strings.Join(keywords, "|") + `)(?:\s*\d+)?\s*:?$`)
	}
	return func(line string) bool {
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			return true
		}
		if re == nil {
			return false
		}
		s := strings.ToLower(Repair(line))
		if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
		return re.MatchString(s)
	}
}
