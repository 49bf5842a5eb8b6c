package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/igolaizola/lyricvid/pkg/lyrics"
	"github.com/igolaizola/lyricvid/pkg/storage"
	"github.com/igolaizola/lyricvid/pkg/timestamps"
)

// Timing returns the word timestamps of a track, using the cache when
// possible. If refresh is set cached data is ignored.
func (p *Pipeline) Timing(ctx context.Context, t *storage.Track, refresh bool) ([]lyrics.TimedWord, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	fetch := p.fetcher(t)
	if fetch == nil {
		return nil, fmt.Errorf("pipeline: %s: %w", t.ID, timestamps.ErrTimingUnavailable)
	}
	if refresh {
		return p.cache.Refetch(ctx, t.ID, fetch)
	}
	return p.cache.GetOrFetch(ctx, t.ID, fetch)
}

func (p *Pipeline) fetcher(t *storage.Track) timestamps.FetchFunc {
	switch p.cfg.Timing {
	case TimingSuno:
		return func(ctx context.Context, _ string) ([]lyrics.TimedWord, error) {
			if t.TaskID == "" || t.AudioID == "" {
				return nil, errors.New("track has no task or audio id")
			}
			return p.api.TimestampedLyrics(ctx, t.TaskID, t.AudioID, t.MusicIndex)
		}
	case TimingWhisper:
		return func(ctx context.Context, _ string) ([]lyrics.TimedWord, error) {
			if t.Audio == "" {
				return nil, errors.New("track has no audio file")
			}
			return p.transcriber.Words(ctx, t.Audio)
		}
	}
	return nil
}

// Align computes the display interval of every lyric line of a track. When
// timing data can't be obtained lines are spread evenly over the track.
func (p *Pipeline) Align(ctx context.Context, trackID string) (*storage.Track, *lyrics.Alignment, error) {
	t, err := p.store.GetTrack(ctx, trackID)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: couldn't get track: %w", err)
	}
	al, err := p.align(ctx, t)
	if err != nil {
		return nil, nil, err
	}
	return t, al, nil
}

func (p *Pipeline) align(ctx context.Context, t *storage.Track) (*lyrics.Alignment, error) {
	words, err := p.Timing(ctx, t, false)
	switch {
	case errors.Is(err, timestamps.ErrTimingUnavailable):
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Printf("pipeline: timing unavailable for %s, lines will be spread evenly: %v\n", t.ID, err)
		words = nil
	case err != nil:
		return nil, err
	}

	var opts []lyrics.SegmentOption
	if len(p.cfg.Markers) > 0 {
		opts = append(opts, lyrics.WithMarkers(p.cfg.Markers...))
	}
	lines, err := lyrics.Segment(t.Lyrics, p.cfg.Style.MaxChars, opts...)
	if err != nil {
		return nil, fmt.Errorf("pipeline: couldn't segment lyrics of %s: %w", t.ID, err)
	}

	var alignOpts []lyrics.AlignOption
	if p.cfg.Window > 0 {
		alignOpts = append(alignOpts, lyrics.WithWindow(p.cfg.Window))
	}
	if p.cfg.Gap > 0 {
		alignOpts = append(alignOpts, lyrics.WithGap(p.cfg.Gap))
	}
	al, err := lyrics.Align(lines, words, t.Duration, alignOpts...)
	if err != nil {
		return nil, fmt.Errorf("pipeline: couldn't align lyrics of %s: %w", t.ID, err)
	}
	if al.Degraded {
		log.Printf("pipeline: alignment of %s is degraded, no words matched\n", t.ID)
	}
	p.log("pipeline: %s aligned %d lines, %d words matched", t.ID, len(al.Lines), al.Matched)
	return al, nil
}
