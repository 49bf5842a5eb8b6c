package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/igolaizola/lyricvid/pkg/storage"
)

// Delete removes a track with its local media, its remote copies and every
// record kept for it. Remote failures are logged and don't stop the deletion.
func (p *Pipeline) Delete(ctx context.Context, trackID string) error {
	t, err := p.store.GetTrack(ctx, trackID)
	if err != nil {
		return fmt.Errorf("pipeline: couldn't get track: %w", err)
	}
	videos, err := p.store.ListVideos(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("pipeline: couldn't list videos of %s: %w", t.ID, err)
	}
	for _, f := range localFiles(t, videos, p.path(t.ID+"-thumbnail", ".jpg")) {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("pipeline: couldn't remove %s: %w", f, err)
		}
		p.log("pipeline: removed %s", f)
	}
	if p.files != nil {
		if err := p.files.Delete(ctx, t.ID); err != nil {
			p.log("pipeline: couldn't delete remote files of %s: %v", t.ID, err)
		}
	}
	if err := p.store.DeleteTrack(ctx, t.ID); err != nil {
		return fmt.Errorf("pipeline: couldn't delete track %s: %w", t.ID, err)
	}
	return nil
}

func localFiles(t *storage.Track, videos []*storage.Video, extra ...string) []string {
	var files []string
	seen := map[string]bool{}
	add := func(f string) {
		if f == "" || seen[f] {
			return
		}
		seen[f] = true
		files = append(files, f)
	}
	add(t.Audio)
	add(t.Image)
	for _, v := range videos {
		add(v.Path)
	}
	for _, f := range extra {
		add(f)
	}
	return files
}
