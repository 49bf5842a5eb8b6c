package video

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/igolaizola/lyricvid/pkg/cmd/common"
	"github.com/igolaizola/lyricvid/pkg/storage"
)

type Config struct {
	common.Config
	Tracks []string
	All    bool
	Author string
}

// Run renders the lyric video of the given tracks.
func Run(ctx context.Context, cfg *Config) error {
	return run(ctx, cfg, false)
}

// RunRemote asks the music provider to create the videos.
func RunRemote(ctx context.Context, cfg *Config) error {
	return run(ctx, cfg, true)
}

func run(ctx context.Context, cfg *Config, remote bool) error {
	log.Println("video: process started")
	defer log.Println("video: process ended")

	env, err := common.Open(ctx, &cfg.Config)
	if err != nil {
		return fmt.Errorf("video: %w", err)
	}
	defer env.Close()

	ids := cfg.Tracks
	if cfg.All {
		tracks, err := env.Store.ListTracks(ctx, 0, 0)
		if err != nil {
			return fmt.Errorf("video: %w", err)
		}
		for _, t := range tracks {
			ids = append(ids, t.ID)
		}
	}
	if len(ids) == 0 {
		return errors.New("video: no tracks provided")
	}

	progress := func(format string, args ...any) {
		log.Printf("video: "+format+"\n", args...)
	}
	var nErr int
	for _, id := range ids {
		start := time.Now()
		var v *storage.Video
		var err error
		if remote {
			v, err = env.Pipeline.RemoteVideo(ctx, id, cfg.Author, progress)
		} else {
			v, err = env.Pipeline.Video(ctx, id, progress)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("video: %w", ctx.Err())
		}
		if err != nil {
			log.Printf("video: %s failed: %v\n", id, err)
			nErr++
			continue
		}
		fmt.Printf("%s\t%s\t%s\n", id, v.Path, time.Since(start).Round(time.Second))
	}
	if nErr > 0 {
		return fmt.Errorf("video: %d of %d tracks failed", nErr, len(ids))
	}
	return nil
}
