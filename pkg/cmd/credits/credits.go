package credits

import (
	"context"
	"fmt"

	"github.com/igolaizola/lyricvid/pkg/cmd/common"
	"github.com/igolaizola/lyricvid/pkg/suno"
)

type Config struct {
	Debug   bool
	Proxy   string
	APIKey  string
	BaseURL string
}

// Run prints the remaining credits of the account.
func Run(ctx context.Context, cfg *Config) error {
	client, err := common.HTTPClient(cfg.Proxy)
	if err != nil {
		return fmt.Errorf("credits: %w", err)
	}
	api := suno.New(&suno.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Debug:   cfg.Debug,
		Client:  client,
	})
	credits, err := api.Credits(ctx)
	if err != nil {
		return fmt.Errorf("credits: %w", err)
	}
	fmt.Printf("%.0f\n", credits)
	return nil
}
