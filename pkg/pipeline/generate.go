package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/igolaizola/lyricvid/pkg/lyrics"
	"github.com/igolaizola/lyricvid/pkg/sound"
	"github.com/igolaizola/lyricvid/pkg/storage"
	"github.com/igolaizola/lyricvid/pkg/suno"
)

// Song is a generation request. Tags are used when reading batches from csv
// or json files.
type Song struct {
	Name         string `json:"name" csv:"name"`
	Title        string `json:"title" csv:"title"`
	Lyrics       string `json:"lyrics" csv:"lyrics"`
	Style        string `json:"style" csv:"style"`
	Model        string `json:"model" csv:"model"`
	Instrumental bool   `json:"instrumental" csv:"instrumental"`
}

// Generate creates the song through the music API, downloads every returned
// clip and saves it as a track.
func (p *Pipeline) Generate(ctx context.Context, song *Song, progress Progress) ([]*storage.Track, error) {
	if strings.TrimSpace(song.Lyrics) == "" && !song.Instrumental {
		return nil, errors.New("pipeline: lyrics are required")
	}
	name := slug(song.Name)
	if name == "" {
		name = slug(song.Title)
	}
	if name == "" {
		name = "song"
	}

	progress.step("generating %s", name)
	taskID, err := p.api.Generate(ctx, &suno.GenerateRequest{
		Prompt:       song.Lyrics,
		Style:        song.Style,
		Title:        song.Title,
		Model:        song.Model,
		Instrumental: song.Instrumental,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: couldn't generate %s: %w", name, err)
	}
	p.log("pipeline: task %s created for %s", taskID, name)
	progress.step("waiting for task %s", taskID)
	rec, err := p.api.Wait(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: couldn't wait for %s: %w", taskID, err)
	}
	clips := rec.Response.SunoData
	if len(clips) == 0 {
		return nil, fmt.Errorf("pipeline: task %s returned no clips", taskID)
	}

	var tracks []*storage.Track
	for i, clip := range clips {
		id, err := p.reserve(ctx, name)
		if err != nil {
			return tracks, err
		}
		title := clip.Title
		if title == "" {
			title = song.Title
		}
		t := &storage.Track{
			ID:         id,
			TaskID:     taskID,
			AudioID:    clip.ID,
			MusicIndex: i,
			Title:      title,
			Style:      song.Style,
			Lyrics:     song.Lyrics,
			Model:      clip.ModelName,
			AudioURL:   clip.Audio(),
			ImageURL:   clip.Image(),
			Duration:   clip.Duration,
		}
		if t.Model == "" {
			t.Model = song.Model
		}
		progress.step("downloading %s", id)
		if err := p.download(ctx, t); err != nil {
			_ = os.Remove(p.path(id, ".mp3"))
			return tracks, err
		}
		if err := p.store.SetTrack(ctx, t); err != nil {
			return tracks, fmt.Errorf("pipeline: couldn't save track %s: %w", id, err)
		}
		if p.files != nil {
			if err := p.files.SetMP3(ctx, t.Audio, id); err != nil {
				return tracks, fmt.Errorf("pipeline: couldn't upload audio %s: %w", id, err)
			}
			if t.Image != "" {
				if err := p.files.SetJPG(ctx, t.Image, id); err != nil {
					return tracks, fmt.Errorf("pipeline: couldn't upload cover %s: %w", id, err)
				}
			}
		}
		progress.step("track %s saved", id)
		tracks = append(tracks, t)
	}
	return tracks, nil
}

// Download fetches again the audio and cover of a stored track.
func (p *Pipeline) Download(ctx context.Context, trackID string) (*storage.Track, error) {
	t, err := p.store.GetTrack(ctx, trackID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: couldn't get track: %w", err)
	}
	if err := os.MkdirAll(p.cfg.Output, 0755); err != nil {
		return nil, fmt.Errorf("pipeline: couldn't create output dir: %w", err)
	}
	if err := p.download(ctx, t); err != nil {
		return nil, err
	}
	if err := p.store.SetTrack(ctx, t); err != nil {
		return nil, fmt.Errorf("pipeline: couldn't save track %s: %w", t.ID, err)
	}
	return t, nil
}

func (p *Pipeline) download(ctx context.Context, t *storage.Track) error {
	audio := p.path(t.ID, ".mp3")
	if err := p.fetch(ctx, t.AudioURL, audio, p.files.GetMP3, t.ID); err != nil {
		return fmt.Errorf("pipeline: couldn't download audio %s: %w", t.ID, err)
	}
	t.Audio = audio
	image := p.path(t.ID, ".jpg")
	if err := p.fetch(ctx, t.ImageURL, image, p.files.GetJPG, t.ID); err != nil {
		// The cover is optional, a background is drawn if it's missing
		p.log("pipeline: couldn't download cover %s: %v", t.ID, err)
	} else {
		t.Image = image
	}
	d, err := sound.Duration(audio)
	if err != nil {
		p.log("pipeline: couldn't get duration of %s: %v", t.ID, err)
		return nil
	}
	t.Duration = d.Seconds()
	return nil
}

// fetch downloads a file from the provider. Provider urls expire, so the
// copy in the file store is used when the url is missing or fails.
func (p *Pipeline) fetch(ctx context.Context, u, output string, backup func(context.Context, string, string) error, id string) error {
	var err error
	if u != "" {
		if err = p.api.Download(ctx, u, output); err == nil {
			return nil
		}
	} else {
		err = errors.New("no url")
	}
	if p.files == nil || ctx.Err() != nil {
		return err
	}
	if berr := backup(ctx, output, id); berr != nil {
		return fmt.Errorf("%w (file store: %v)", err, berr)
	}
	p.log("pipeline: %s restored from file store", filepath.Base(output))
	return nil
}

// reserve returns the first free id with the given prefix and creates an
// empty audio file so concurrent generations don't pick the same one.
func (p *Pipeline) reserve(ctx context.Context, name string) (string, error) {
	p.idLck.Lock()
	defer p.idLck.Unlock()
	if err := os.MkdirAll(p.cfg.Output, 0755); err != nil {
		return "", fmt.Errorf("pipeline: couldn't create output dir: %w", err)
	}
	for n := 1; ; n++ {
		id := fmt.Sprintf("%s_%d", name, n)
		if _, err := os.Stat(p.path(id, ".mp3")); err == nil {
			continue
		}
		_, err := p.store.GetTrack(ctx, id)
		switch {
		case err == nil:
			continue
		case !errors.Is(err, storage.ErrNotFound):
			return "", fmt.Errorf("pipeline: couldn't check track %s: %w", id, err)
		}
		f, err := os.Create(p.path(id, ".mp3"))
		if err != nil {
			return "", fmt.Errorf("pipeline: couldn't reserve %s: %w", id, err)
		}
		_ = f.Close()
		return id, nil
	}
}

func (p *Pipeline) path(id, ext string) string {
	return filepath.Join(p.cfg.Output, id+ext)
}

// slug converts a name into a file name friendly id.
func slug(s string) string {
	return strings.ReplaceAll(lyrics.Normalize(s), " ", "-")
}
