package download

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/igolaizola/lyricvid/pkg/cmd/common"
)

type Config struct {
	common.Config
	Tracks []string
}

// Run downloads again the audio and cover of the given tracks.
func Run(ctx context.Context, cfg *Config) error {
	if len(cfg.Tracks) == 0 {
		return errors.New("download: no tracks provided")
	}
	env, err := common.Open(ctx, &cfg.Config)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer env.Close()

	for _, id := range cfg.Tracks {
		t, err := env.Pipeline.Download(ctx, id)
		if err != nil {
			return fmt.Errorf("download: %w", err)
		}
		log.Printf("download: %s saved to %s (%.1fs)\n", t.ID, t.Audio, t.Duration)
	}
	return nil
}
