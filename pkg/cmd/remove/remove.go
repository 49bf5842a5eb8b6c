package remove

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

// Run deletes the given tracks with their media and timing data.
func Run(ctx context.Context, cfg *Config) error {
	if len(cfg.Tracks) == 0 {
		return errors.New("delete: no tracks provided")
	}
	env, err := common.Open(ctx, &cfg.Config)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	defer env.Close()

	for _, id := range cfg.Tracks {
		if err := env.Pipeline.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		log.Printf("delete: %s deleted\n", id)
	}
	return nil
}
