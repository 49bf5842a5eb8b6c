package lyrics

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Alignment is the result of mapping timed words onto lyric lines.
type Alignment struct {
	Lines []AlignedLine `json:"lines"`
	// Matched is the number of lyric words paired with a timed word.
	Matched int `json:"matched"`
	// Degraded is set when nothing matched and intervals were split evenly.
	Degraded bool `json:"degraded"`
}

type alignConfig struct {
	window int
	gap    float64
}

type AlignOption func(*alignConfig)

// WithWindow sets how many words are looked ahead to resynchronize after a
// mismatch.
func WithWindow(n int) AlignOption {
	return func(c *alignConfig) {
		if n >= 0 {
			c.window = n
		}
	}
}

// WithGap sets the pause left between the end of a line and the start of the
// next one, in seconds.
func WithGap(gap float64) AlignOption {
	return func(c *alignConfig) {
		if gap >= 0 {
			c.gap = gap
		}
	}
}

type expectedWord struct {
	text string
	line int
}

type timedToken struct {
	text       string
	start, end float64
}

type lineTiming struct {
	words      int
	matched    int
	start, end float64
}

var bracketed = regexp.MustCompile(`\[[^\]]*\]`)

// Align assigns a time interval to every displayable line using word level
// timestamps. Marker lines are left out of the result.
// If duration is zero, the end of the last timed word is used.
func Align(lines []Line, words []TimedWord, duration float64, opts ...AlignOption) (*Alignment, error) {
	cfg := &alignConfig{window: 3, gap: 0.05}
	for _, o := range opts {
		o(cfg)
	}
	if duration < 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return nil, fmt.Errorf("%w: invalid duration %v", ErrInvalidInput, duration)
	}
	if err := Validate(words); err != nil {
		return nil, err
	}
	if duration == 0 {
		for _, w := range words {
			duration = math.Max(duration, w.End)
		}
	}

	// Displayable lines and the flattened expected words
	var display []Line
	var expected []expectedWord
	for _, l := range lines {
		if l.Marker || len(l.Words) == 0 {
			continue
		}
		idx := len(display)
		display = append(display, l)
		for _, w := range l.Words {
			n := Normalize(w)
			if n == "" {
				continue
			}
			expected = append(expected, expectedWord{text: n, line: idx})
		}
	}
	if len(display) == 0 {
		return &Alignment{}, nil
	}
	timings := make([]lineTiming, len(display))
	for i, l := range display {
		timings[i].words = len(l.Words)
	}

	tokens := tokenize(words)
	matched := match(expected, tokens, cfg.window, func(e expectedWord, t timedToken) {
		lt := &timings[e.line]
		if lt.matched == 0 {
			lt.start, lt.end = t.start, t.end
		} else {
			lt.start = math.Min(lt.start, t.start)
			lt.end = math.Max(lt.end, t.end)
		}
		lt.matched++
	})

	if matched == 0 {
		return &Alignment{
			Lines:    evenSplit(display, duration),
			Degraded: true,
		}, nil
	}

	interpolate(timings, duration)

	out := make([]AlignedLine, len(display))
	for i, l := range display {
		t := timings[i]
		end := t.end
		if i+1 < len(display) {
			next := timings[i+1].start
			if next-cfg.gap < end {
				end = next - cfg.gap
			}
			if end < t.start {
				end = math.Min(t.end, next)
			}
		}
		out[i] = AlignedLine{
			Text:    l.Text(),
			Start:   t.start,
			End:     end,
			Matched: t.matched,
		}
	}
	clip(out, duration)
	return &Alignment{Lines: out, Matched: matched}, nil
}

// tokenize normalizes timed words for matching. Bracketed annotations are
// removed and entries holding several words are split, every token keeping
// the interval of the entry it comes from.
func tokenize(words []TimedWord) []timedToken {
	var tokens []timedToken
	for _, w := range words {
		text := bracketed.ReplaceAllString(w.Word, " ")
		for _, f := range strings.Fields(text) {
			n := Normalize(f)
			if n == "" {
				continue
			}
			for _, part := range strings.Fields(n) {
				tokens = append(tokens, timedToken{text: part, start: w.Start, end: w.End})
			}
		}
	}
	return tokens
}

// match walks both sequences in lockstep and calls fn for every pair of
// matching words. On a mismatch it looks up to window words ahead, first in
// the lyrics and then in the timed words, to resynchronize. If that fails
// both words are skipped.
func match(expected []expectedWord, tokens []timedToken, window int, fn func(expectedWord, timedToken)) int {
	var n, i, j int
	for i < len(expected) && j < len(tokens) {
		if similar(expected[i].text, tokens[j].text) {
			fn(expected[i], tokens[j])
			n++
			i++
			j++
			continue
		}
		resync := false
		for k := 1; k <= window && !resync; k++ {
			switch {
			case i+k < len(expected) && similar(expected[i+k].text, tokens[j].text):
				i += k
				resync = true
			case j+k < len(tokens) && similar(expected[i].text, tokens[j+k].text):
				j += k
				resync = true
			}
		}
		if !resync {
			i++
			j++
		}
	}
	return n
}

// similar reports whether two normalized words are the same, tolerating a
// single edit on words of four or more letters.
func similar(a, b string) bool {
	if a == b {
		return true
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la < 4 || lb < 4 {
		return false
	}
	if d := la - lb; d > 1 || d < -1 {
		return false
	}
	return levenshtein.ComputeDistance(a, b) <= 1
}

// minShare is the shortest time, in seconds, given to an unmatched line.
const minShare = 1.0

// interpolate gives every run of unmatched lines the gap between the previous
// and the next matched lines, split in proportion to word count. When the gap
// is too short the run is centered on it and takes up to half of each
// neighbor.
func interpolate(timings []lineTiming, duration float64) {
	for i := 0; i < len(timings); {
		if timings[i].matched > 0 {
			i++
			continue
		}
		j := i
		for j < len(timings) && timings[j].matched == 0 {
			j++
		}
		lo, hi := 0.0, duration
		loBound, hiBound := 0.0, duration
		if i > 0 {
			prev := timings[i-1]
			lo = prev.end
			loBound = prev.start + (prev.end-prev.start)/2
		}
		if j < len(timings) {
			next := timings[j]
			hi = next.start
			hiBound = next.start + (next.end-next.start)/2
		}
		if need := minShare * float64(j-i); hi-lo < need {
			mid := (lo + hi) / 2
			loBound = math.Min(loBound, mid)
			hiBound = math.Max(hiBound, mid)
			lo = math.Max(mid-need/2, loBound)
			hi = math.Min(lo+need, hiBound)
			lo = math.Max(loBound, math.Min(lo, hi-need))
			if i > 0 && timings[i-1].end > lo {
				timings[i-1].end = math.Max(lo, timings[i-1].start)
			}
			if j < len(timings) && timings[j].start < hi {
				timings[j].start = math.Min(hi, timings[j].end)
			}
		}
		total := 0
		for k := i; k < j; k++ {
			total += timings[k].words
		}
		at := lo
		acc := 0
		for k := i; k < j; k++ {
			acc += timings[k].words
			timings[k].start = at
			timings[k].end = lo + (hi-lo)*float64(acc)/float64(total)
			at = timings[k].end
		}
		i = j
	}
}

// evenSplit divides duration across lines in proportion to their word count.
func evenSplit(lines []Line, duration float64) []AlignedLine {
	total := 0
	for _, l := range lines {
		total += len(l.Words)
	}
	out := make([]AlignedLine, len(lines))
	acc := 0
	at := 0.0
	for i, l := range lines {
		acc += len(l.Words)
		end := duration * float64(acc) / float64(total)
		if i == len(lines)-1 {
			end = duration
		}
		out[i] = AlignedLine{Text: l.Text(), Start: at, End: end}
		at = end
	}
	return out
}

// clip keeps intervals inside [0, duration], ordered and non overlapping.
func clip(lines []AlignedLine, duration float64) {
	for i := range lines {
		l := &lines[i]
		l.Start = math.Max(0, math.Min(l.Start, duration))
		l.End = math.Max(0, math.Min(l.End, duration))
		if i > 0 && l.Start < lines[i-1].Start {
			l.Start = lines[i-1].Start
		}
		if l.End < l.Start {
			l.End = l.Start
		}
	}
	for i := 0; i+1 < len(lines); i++ {
		if lines[i].End > lines[i+1].Start {
			lines[i].End = lines[i+1].Start
		}
	}
}
