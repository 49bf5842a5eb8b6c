package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/igolaizola/lyricvid/pkg/filestore"
	"github.com/igolaizola/lyricvid/pkg/image"
	"github.com/igolaizola/lyricvid/pkg/overlay"
	"github.com/igolaizola/lyricvid/pkg/sound"
	"github.com/igolaizola/lyricvid/pkg/storage"
)

// Video renders the lyric video of a track and records it.
func (p *Pipeline) Video(ctx context.Context, trackID string, progress Progress) (*storage.Video, error) {
	t, err := p.store.GetTrack(ctx, trackID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: couldn't get track: %w", err)
	}
	if err := os.MkdirAll(p.cfg.Output, 0755); err != nil {
		return nil, fmt.Errorf("pipeline: couldn't create output dir: %w", err)
	}

	if !exists(t.Audio) {
		progress.step("downloading audio of %s", t.ID)
		if err := p.download(ctx, t); err != nil {
			return nil, err
		}
		if err := p.store.SetTrack(ctx, t); err != nil {
			return nil, fmt.Errorf("pipeline: couldn't save track %s: %w", t.ID, err)
		}
	}

	progress.step("aligning lyrics of %s", t.ID)
	al, err := p.align(ctx, t)
	if err != nil {
		return nil, err
	}
	if al.Degraded {
		progress.step("no timing matched, lines are spread evenly")
	}

	background := t.Image
	if !exists(background) {
		progress.step("drawing background of %s", t.ID)
		background = p.path(t.ID+"-background", ".png")
		a, err := sound.NewAnalyzer(t.Audio)
		if err != nil {
			return nil, fmt.Errorf("pipeline: couldn't analyze %s: %w", t.ID, err)
		}
		if err := a.Background(t.Title, background); err != nil {
			return nil, fmt.Errorf("pipeline: couldn't draw background of %s: %w", t.ID, err)
		}
	}

	progress.step("rendering %d lines", len(al.Lines))
	output := p.path(t.ID, ".mp4")
	if err := p.renderer.Render(ctx, &overlay.Request{
		Image:    background,
		Audio:    t.Audio,
		Output:   output,
		Lines:    al.Lines,
		Style:    p.cfg.Style,
		Duration: t.Duration,
	}); err != nil {
		return nil, fmt.Errorf("pipeline: couldn't render %s: %w", t.ID, err)
	}

	if p.cfg.Thumbnail && t.Title != "" {
		thumb := p.path(t.ID+"-thumbnail", ".jpg")
		if err := image.Thumbnail(background, thumb, &image.Caption{
			Title:    t.Title,
			Subtitle: t.Style,
			Font:     p.cfg.Style.Font,
			MaxChars: p.cfg.Style.MaxChars,
			Position: image.Center,
		}); err != nil {
			p.log("pipeline: couldn't create thumbnail of %s: %v", t.ID, err)
		}
	}

	v := &storage.Video{
		TrackID:  t.ID,
		Path:     output,
		Lines:    len(al.Lines),
		Matched:  al.Matched,
		Degraded: al.Degraded,
	}
	if p.files != nil {
		progress.step("uploading %s", output)
		if err := p.files.SetMP4(ctx, output, t.ID); err != nil {
			return nil, fmt.Errorf("pipeline: couldn't upload video %s: %w", t.ID, err)
		}
		v.URL = p.files.URL(filestore.MP4(t.ID))
	}
	if err := p.store.SetVideo(ctx, v); err != nil {
		return nil, fmt.Errorf("pipeline: couldn't save video %s: %w", t.ID, err)
	}
	progress.step("video %s ready", output)
	return v, nil
}

// RemoteVideo asks the music API to create its own video of the track and
// downloads it.
func (p *Pipeline) RemoteVideo(ctx context.Context, trackID, author string, progress Progress) (*storage.Video, error) {
	t, err := p.store.GetTrack(ctx, trackID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: couldn't get track: %w", err)
	}
	if t.TaskID == "" || t.AudioID == "" {
		return nil, errors.New("pipeline: track has no task or audio id")
	}
	progress.step("requesting video of %s", t.ID)
	taskID, err := p.api.GenerateVideo(ctx, t.TaskID, t.AudioID, author)
	if err != nil {
		return nil, fmt.Errorf("pipeline: couldn't request video of %s: %w", t.ID, err)
	}
	progress.step("waiting for video task %s", taskID)
	u, err := p.api.WaitVideo(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: couldn't wait for video of %s: %w", t.ID, err)
	}
	output := p.path(t.ID+"-remote", ".mp4")
	if err := p.api.Download(ctx, u, output); err != nil {
		return nil, fmt.Errorf("pipeline: couldn't download video of %s: %w", t.ID, err)
	}
	v := &storage.Video{
		TrackID: t.ID,
		Path:    output,
		URL:     u,
		Remote:  true,
	}
	if err := p.store.SetVideo(ctx, v); err != nil {
		return nil, fmt.Errorf("pipeline: couldn't save video %s: %w", t.ID, err)
	}
	progress.step("video %s ready", output)
	return v, nil
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
